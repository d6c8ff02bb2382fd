package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

func TestPlanUpdateSetsScalarAndUpdatedAt(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpdate, "Post", planner.Args{
		Where: map[string]any{"id": "p1"},
		Data:  map[string]any{"title": "new title"},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	last := txn.Steps[len(txn.Steps)-1]
	assert.True(t, last.RequiresReadBack)

	sql, args, err := compileSQL(last.Node)
	require.NoError(t, err)
	assert.Contains(t, sql, "UPDATE")
	assert.Contains(t, sql, "CURRENT_TIMESTAMP")
	assert.Contains(t, sql, "LIMIT 1")
	assert.Contains(t, args, "new title")
}

func TestPlanUpdateIncrement(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpdate, "Post", planner.Args{
		Where: map[string]any{"id": "p1"},
		Data:  map[string]any{"views": map[string]any{"increment": 1}},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	sql, _, err := compileSQL(txn.Steps[len(txn.Steps)-1].Node)
	require.NoError(t, err)
	assert.Contains(t, sql, "+")
}

func TestPlanUpdateManyNoImplicitLimit(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpdateMany, "Post", planner.Args{
		Where: map[string]any{"published": false},
		Data:  map[string]any{"published": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "count", prog.ResultShape)
	txn := prog.Steps[0]
	sql, _, err := compileSQL(txn.Steps[len(txn.Steps)-1].Node)
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
}

func TestPlanUpdateWithNestedDisconnect(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpdate, "User", planner.Args{
		Where: map[string]any{"id": "u1"},
		Data: map[string]any{
			"posts": map[string]any{"disconnect": map[string]any{"id": "p1"}},
		},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	assert.Len(t, txn.Steps, 2)
}

func TestPlanUpdateWithNestedCreateRequiresIDFilter(t *testing.T) {
	s := testSchema()
	_, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpdate, "User", planner.Args{
		Where: map[string]any{"email": "a@example.com"},
		Data: map[string]any{
			"posts": map[string]any{"create": map[string]any{"title": "x"}},
		},
	})
	assert.Error(t, err)
}
