package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// withOwnerReadPolicy returns a schema identical to testSchema but with a
// `@@allow('read', auth().id == authorId)` rule on Post, so tests can
// confirm the policy filter actually lands in the compiled SQL.
func withOwnerReadPolicy() *schema.Schema {
	s := testSchema()
	s.Models["Post"].Policies = []schema.PolicyRule{
		{
			Kind:       schema.PolicyAllow,
			Operations: []schema.Operation{schema.OpRead},
			Condition: schema.BinaryOp{
				Op:    "==",
				Left:  schema.Auth{Member: "id"},
				Right: schema.Ref{Field: "authorId"},
			},
		},
	}
	s.AuthModel = "User"
	return s
}

func TestPlanFindAppliesReadPolicyBeforeNameMapping(t *testing.T) {
	s := withOwnerReadPolicy()
	prog, err := planner.Plan(s, gen.NewRegistry(), map[string]any{"id": "u1"}, planner.OpFindMany, "Post", planner.Args{})
	require.NoError(t, err)
	sql, args, err := compileSQL(prog.Steps[0].Node)
	require.NoError(t, err)
	assert.Contains(t, sql, `"author_id"`)
	assert.Contains(t, args, "u1")
}

func TestPlanUnknownModelIsQueryError(t *testing.T) {
	s := testSchema()
	_, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpFindMany, "Nope", planner.Args{})
	assert.Error(t, err)
}

func TestPlanUpsertPlansBothBranches(t *testing.T) {
	s := testSchema()
	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpsert, "Tag", planner.Args{
		Data: map[string]any{
			"where":  map[string]any{"name": "go"},
			"update": map[string]any{"name": "go"},
			"create": map[string]any{"name": "go"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "upsert", prog.ResultShape)
	require.Len(t, prog.Steps, 2)
}
