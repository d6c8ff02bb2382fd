package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

func TestPlanCreateFillsGeneratedDefaults(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreate, "User", planner.Args{
		Data: map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, prog.Steps, 1)
	txn := prog.Steps[0]
	require.Len(t, txn.Steps, 1)
	assert.True(t, txn.Steps[len(txn.Steps)-1].RequiresReadBack)

	sql, args, err := compileSQL(txn.Steps[0].Node)
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO")
	assert.Contains(t, sql, `"User"`)
	assert.Contains(t, args, "a@example.com")
}

func TestPlanCreateWithNestedOwnedConnect(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreate, "Post", planner.Args{
		Data: map[string]any{
			"title":  "hello",
			"author": map[string]any{"connect": map[string]any{"id": "u1"}},
		},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	require.Len(t, txn.Steps, 1)
	sql, args, err := compileSQL(txn.Steps[0].Node)
	require.NoError(t, err)
	assert.Contains(t, sql, `"author_id"`)
	assert.Contains(t, args, "u1")
}

func TestPlanCreateWithNestedToManyCreate(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreate, "User", planner.Args{
		Data: map[string]any{
			"email": "b@example.com",
			"posts": map[string]any{
				"create": map[string]any{"title": "first"},
			},
		},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	// one insert for the user, one for the nested post
	assert.Len(t, txn.Steps, 2)
	assert.Equal(t, "User", txn.Steps[0].Model)
	assert.Equal(t, "Post", txn.Steps[1].Model)
}

func TestPlanCreateManyToManyConnect(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreate, "Post", planner.Args{
		Data: map[string]any{
			"title": "tagged",
			"tags":  map[string]any{"connect": []any{map[string]any{"id": "t1"}}},
		},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	require.Len(t, txn.Steps, 2)
	sql, _, err := compileSQL(txn.Steps[1].Node)
	require.NoError(t, err)
	assert.Contains(t, sql, "_PostToTag")
}

func TestPlanCreateManyCount(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreateMany, "Tag", planner.Args{
		Data: map[string]any{"data": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "count", prog.ResultShape)
	assert.Len(t, prog.Steps[0].Steps, 2)
}
