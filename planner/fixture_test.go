package planner_test

import (
	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect/postgreslike"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// testSchema builds a small User/Post/Tag schema exercising a to-many
// owning relation (Post.author -> User) and a many-to-many (Post.tags),
// enough to drive every planner path these tests cover.
func testSchema() *schema.Schema {
	s := schema.New(schema.ProviderPostgresLike)

	user := &schema.Model{
		Name: "User",
		Fields: map[string]*schema.Field{
			"id":    {Name: "id", DBColumn: "id", Type: schema.TypeString, IsID: true, Default: &schema.Default{Generator: "cuid"}},
			"email": {Name: "email", DBColumn: "email", Type: schema.TypeString, IsUnique: true},
			"name":  {Name: "name", DBColumn: "name", Type: schema.TypeString, Optional: true},
			"posts": {Name: "posts", DBColumn: "posts", Type: schema.TypeRelation, Array: true, Relation: &schema.Relation{Model: "Post", Opposite: "author"}},
		},
		FieldOrder: []string{"id", "email", "name", "posts"},
	}

	post := &schema.Model{
		Name: "Post",
		Fields: map[string]*schema.Field{
			"id":        {Name: "id", DBColumn: "id", Type: schema.TypeString, IsID: true, Default: &schema.Default{Generator: "cuid"}},
			"title":     {Name: "title", DBColumn: "title", Type: schema.TypeString},
			"published": {Name: "published", DBColumn: "published", Type: schema.TypeBoolean, Default: &schema.Default{HasLiteral: true, Literal: false}},
			"views":     {Name: "views", DBColumn: "views", Type: schema.TypeInt, Default: &schema.Default{HasLiteral: true, Literal: 0}},
			"updatedAt": {Name: "updatedAt", DBColumn: "updated_at", Type: schema.TypeDateTime, IsUpdatedAt: true},
			"authorId":  {Name: "authorId", DBColumn: "author_id", Type: schema.TypeString},
			"author":    {Name: "author", DBColumn: "author", Type: schema.TypeRelation, Relation: &schema.Relation{Model: "User", Opposite: "posts", Fields: []string{"authorId"}, References: []string{"id"}, OnDelete: schema.ActionCascade}},
			"tags":      {Name: "tags", DBColumn: "tags", Type: schema.TypeRelation, Array: true, Relation: &schema.Relation{Model: "Tag", Opposite: "posts", ManyToMany: true, JoinTable: "_PostToTag"}},
		},
		FieldOrder: []string{"id", "title", "published", "views", "updatedAt", "authorId", "author", "tags"},
	}

	tag := &schema.Model{
		Name: "Tag",
		Fields: map[string]*schema.Field{
			"id":    {Name: "id", DBColumn: "id", Type: schema.TypeString, IsID: true, Default: &schema.Default{Generator: "cuid"}},
			"name":  {Name: "name", DBColumn: "name", Type: schema.TypeString, IsUnique: true},
			"posts": {Name: "posts", DBColumn: "posts", Type: schema.TypeRelation, Array: true, Relation: &schema.Relation{Model: "Post", Opposite: "tags", ManyToMany: true, JoinTable: "_PostToTag"}},
		},
		FieldOrder: []string{"id", "name", "posts"},
	}

	s.Models["User"] = user
	s.Models["Post"] = post
	s.Models["Tag"] = tag
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return s
}

func testAdapter() dialect.Adapter { return postgreslike.New() }

func compileSQL(n ast.Node) (string, []any, error) {
	return ast.NewCompiler(testAdapter()).Compile(n)
}
