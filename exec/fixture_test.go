package exec_test

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect/postgreslike"
	"github.com/zenstackhq/zenstack-v3-sub005/driver"
	"github.com/zenstackhq/zenstack-v3-sub005/exec"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// testSchema builds a small User/Post/Tag schema, the same shape the
// planner package tests against, with an optional create policy on Post
// gating who may author a post.
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

	tag := &schema.Model{
		Name: "Tag",
		Fields: map[string]*schema.Field{
			"id":   {Name: "id", DBColumn: "id", Type: schema.TypeString, IsID: true, Default: &schema.Default{Generator: "cuid"}},
			"name": {Name: "name", DBColumn: "name", Type: schema.TypeString, IsUnique: true},
		},
		FieldOrder: []string{"id", "name"},
	}

	s.Models["User"] = user
	s.Models["Post"] = post
	s.Models["Tag"] = tag
	s.AuthModel = "User"
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return s
}

func testAdapter() dialect.Adapter { return postgreslike.New() }

// newExecutor wires an Executor to a sqlmock-backed driver, returning the
// mock so each test can set its own expectations.
func newExecutor(t *testing.T, s *schema.Schema) (*exec.Executor, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	drv := driver.NewSQLDriver(db)
	return exec.NewExecutor(s, drv, testAdapter()), mock, db
}
