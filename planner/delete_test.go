package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

func TestPlanDeleteSingleRow(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpDelete, "Post", planner.Args{
		Where: map[string]any{"id": "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "row", prog.ResultShape)
	txn := prog.Steps[0]
	sql, _, err := compileSQL(txn.Steps[len(txn.Steps)-1].Node)
	require.NoError(t, err)
	assert.Contains(t, sql, "DELETE FROM")
	assert.Contains(t, sql, "LIMIT 1")
}

func TestPlanDeleteCascadesOwningRelation(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpDeleteMany, "User", planner.Args{
		Where: map[string]any{"id": "u1"},
	})
	require.NoError(t, err)
	txn := prog.Steps[0]
	// Post.author -> User is OnDelete: Cascade, so deleting the user
	// cascades a deleteMany on Post before the user row itself.
	require.Len(t, txn.Steps, 2)
	assert.Equal(t, "Post", txn.Steps[0].Model)
	assert.Equal(t, "User", txn.Steps[1].Model)
}
