package ast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect/postgreslike"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect/sqlitelike"
)

func TestCompileSimpleSelectPostgres(t *testing.T) {
	sel := &ast.Select{
		Columns: []ast.Selection{
			{Expr: ast.Col("id")},
			{Expr: ast.Col("email")},
		},
		From: &ast.From{Table: ast.AliasOf(&ast.Table{Name: "User"}, "t0")},
		Where: &ast.Where{
			Expr: ast.Eq(ast.QCol("t0", "email"), ast.Lit("a@b.com")),
		},
	}

	sql, params, err := ast.NewCompiler(postgreslike.New()).Compile(sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "email" FROM "User" AS "t0" WHERE "t0"."email" = $1`, sql)
	assert.Equal(t, []any{"a@b.com"}, params)
}

func TestCompileSimpleSelectSQLite(t *testing.T) {
	sel := &ast.Select{
		Columns: []ast.Selection{{Expr: ast.Col("id")}},
		From:    &ast.From{Table: &ast.Table{Name: "User"}},
	}

	sql, _, err := ast.NewCompiler(sqlitelike.New()).Compile(sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "User"`, sql)
}

func TestCompileInsertWithOnConflict(t *testing.T) {
	ins := &ast.Insert{
		Table:   &ast.Table{Name: "User"},
		Columns: []string{"id", "email"},
		Values: []ast.ValueList{
			{Values: []ast.Node{ast.Lit("u1"), ast.Lit("a@b.com")}},
		},
		OnConflict: &ast.OnConflict{Columns: []string{"id"}, DoNothing: true},
		Returning:  &ast.Returning{Columns: []ast.Selection{{Expr: ast.Col("id")}}},
	}

	sql, params, err := ast.NewCompiler(postgreslike.New()).Compile(ins)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "User" ("id", "email") VALUES ($1, $2) ON CONFLICT ("id") DO NOTHING RETURNING "id"`, sql)
	assert.Equal(t, []any{"u1", "a@b.com"}, params)
}

func TestCompileUpdateWithLimit(t *testing.T) {
	limit := 1
	upd := &ast.Update{
		Table: &ast.Table{Name: "Post"},
		Set:   []ast.BinaryOp{*ast.Eq(ast.Col("title"), ast.Lit("new title"))},
		Where: &ast.Where{Expr: ast.Eq(ast.Col("id"), ast.Lit("p1"))},
		Limit: &limit,
	}

	sql, params, err := ast.NewCompiler(sqlitelike.New()).Compile(upd)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Post" SET "title" = ? WHERE "id" = ? LIMIT 1`, sql)
	assert.Equal(t, []any{"new title", "p1"}, params)
}

func TestCompileDelete(t *testing.T) {
	del := &ast.Delete{
		Table: &ast.Table{Name: "Post"},
		Where: &ast.Where{Expr: ast.Eq(ast.Col("id"), ast.Lit("p1"))},
	}

	sql, params, err := ast.NewCompiler(postgreslike.New()).Compile(del)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Post" WHERE "id" = $1`, sql)
	assert.Equal(t, []any{"p1"}, params)
}

func TestCompileExistsSubquery(t *testing.T) {
	sub := &ast.Select{
		Columns: []ast.Selection{{Expr: ast.Lit(1)}},
		From:    &ast.From{Table: &ast.Table{Name: "Post"}},
		Where:   &ast.Where{Expr: ast.Eq(ast.Col("authorId"), ast.Col("id"))},
	}
	where := &ast.Where{Expr: ast.Exists(sub)}

	sql, params, err := ast.NewCompiler(postgreslike.New()).Compile(&ast.Select{
		Columns: []ast.Selection{{Expr: ast.Col("id")}},
		From:    &ast.From{Table: &ast.Table{Name: "User"}},
		Where:   where,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "EXISTS(SELECT $1 FROM")
	assert.Equal(t, []any{1}, params)
}

func TestCompileUnsupportedNode(t *testing.T) {
	_, _, err := ast.NewCompiler(postgreslike.New()).Compile(struct{ ast.Node }{})
	assert.Error(t, err)
}
