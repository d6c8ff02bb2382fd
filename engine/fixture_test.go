package engine_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect/postgreslike"
	"github.com/zenstackhq/zenstack-v3-sub005/driver"
	"github.com/zenstackhq/zenstack-v3-sub005/engine"
	"github.com/zenstackhq/zenstack-v3-sub005/exec"
	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// testSchema mirrors the fixture the exec package tests against: a
// User/Post pair, with an optional create policy on Post gating who may
// author a post.
func testSchema(withCreatePolicy bool) *schema.Schema {
	s := schema.New(schema.ProviderPostgresLike)

	user := &schema.Model{
		Name: "User",
		Fields: map[string]*schema.Field{
			"id":    {Name: "id", DBColumn: "id", Type: schema.TypeString, IsID: true, Default: &schema.Default{Generator: "cuid"}},
			"email": {Name: "email", DBColumn: "email", Type: schema.TypeString, IsUnique: true},
		},
		FieldOrder: []string{"id", "email"},
	}

	post := &schema.Model{
		Name: "Post",
		Fields: map[string]*schema.Field{
			"id":       {Name: "id", DBColumn: "id", Type: schema.TypeString, IsID: true, Default: &schema.Default{Generator: "cuid"}},
			"title":    {Name: "title", DBColumn: "title", Type: schema.TypeString},
			"authorId": {Name: "authorId", DBColumn: "author_id", Type: schema.TypeString},
		},
		FieldOrder: []string{"id", "title", "authorId"},
	}
	if withCreatePolicy {
		post.Policies = []schema.PolicyRule{
			{
				Kind:       schema.PolicyAllow,
				Operations: []schema.Operation{schema.OpCreate},
				Condition: schema.BinaryOp{
					Op:    "==",
					Left:  schema.Ref{Field: "authorId"},
					Right: schema.Auth{Member: "id"},
				},
			},
		}
	}

	s.Models["User"] = user
	s.Models["Post"] = post
	s.AuthModel = "User"
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return s
}

// newClient wires a Client to a sqlmock-backed driver, returning the mock
// so each test can set its own expectations.
func newClient(t *testing.T, s *schema.Schema) (*engine.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	drv := driver.NewSQLDriver(db)
	ex := exec.NewExecutor(s, drv, testAdapter())
	return engine.NewClient(s, gen.NewRegistry(), ex), mock
}

func testAdapter() dialect.Adapter { return postgreslike.New() }
