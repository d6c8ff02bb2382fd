package exec_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/exec"
	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

func TestRunFindManyRunsOutsideTransaction(t *testing.T) {
	s := testSchema(false)
	e, mock, _ := newExecutor(t, s)

	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpFindMany, "User", planner.Args{})
	require.NoError(t, err)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
		AddRow("u1", "a@example.com"))

	out, err := e.Run(context.Background(), "User", planner.OpFindMany, nil, prog)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "u1", out.Rows[0][0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCreateCommitsAndReadsBackID(t *testing.T) {
	s := testSchema(false)
	e, mock, _ := newExecutor(t, s)

	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreate, "User", planner.Args{
		Data: map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectCommit()

	out, err := e.Run(context.Background(), "User", planner.OpCreate, nil, prog)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.NumAffectedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCreateRejectedByPrecreatePolicyRollsBack(t *testing.T) {
	s := testSchema(true)
	e, mock, _ := newExecutor(t, s)

	prog, err := planner.Plan(s, gen.NewRegistry(), map[string]any{"id": "someone-else"}, planner.OpCreate, "Post", planner.Args{
		Data: map[string]any{"title": "hi", "authorId": "u1"},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	// the pre-create count(*) check: authorId "u1" != auth().id "someone-else"
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err = e.Run(context.Background(), "Post", planner.OpCreate, map[string]any{"id": "someone-else"}, prog)
	require.Error(t, err)
	assert.True(t, velox.IsRejectedByPolicy(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

// recordingPlugin counts before/after hook invocations and captures the
// last EntityMutation it saw, for assertion.
type recordingPlugin struct {
	exec.BasePlugin
	filter  exec.MutationFilter
	before  int
	after   int
	lastAft exec.EntityMutation
}

func (p *recordingPlugin) MutationInterceptionFilter(context.Context, string, planner.Operation) (exec.MutationFilter, bool) {
	return p.filter, true
}

func (p *recordingPlugin) BeforeEntityMutation(context.Context, exec.EntityMutation) error {
	p.before++
	return nil
}

func (p *recordingPlugin) AfterEntityMutation(_ context.Context, m exec.EntityMutation) error {
	p.after++
	p.lastAft = m
	return nil
}

func TestRunCreateInvokesPluginHooksWithinTransaction(t *testing.T) {
	s := testSchema(false)
	e, mock, _ := newExecutor(t, s)

	plugin := &recordingPlugin{filter: exec.MutationFilter{
		Intercept:                         true,
		LoadAfterMutationEntities:         true,
		RunAfterMutationWithinTransaction: true,
	}}
	e.Use(plugin)

	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpCreate, "User", planner.Args{
		Data: map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectCommit()

	_, err = e.Run(context.Background(), "User", planner.OpCreate, nil, prog)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, plugin.before)
	assert.Equal(t, 1, plugin.after)
	require.Len(t, plugin.lastAft.After, 1)
	assert.Equal(t, "u1", plugin.lastAft.After[0][0])
}

func TestRunUpsertFallsBackToCreateWhenUpdateAffectsNothing(t *testing.T) {
	s := testSchema(false)
	e, mock, _ := newExecutor(t, s)

	prog, err := planner.Plan(s, gen.NewRegistry(), nil, planner.OpUpsert, "Tag", planner.Args{
		Data: map[string]any{
			"where":  map[string]any{"name": "go"},
			"update": map[string]any{"name": "go"},
			"create": map[string]any{"name": "go"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "upsert", prog.ResultShape)

	// update branch: matches zero rows. It still carries a RETURNING
	// clause (read-back is always requested), so it comes back as an
	// empty row set rather than an affected-row count.
	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	// create branch runs instead
	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectCommit()

	out, err := e.Run(context.Background(), "Tag", planner.OpUpsert, nil, prog)
	require.NoError(t, err)
	assert.Equal(t, "row", out.ResultShape)
	require.NoError(t, mock.ExpectationsWereMet())
}
