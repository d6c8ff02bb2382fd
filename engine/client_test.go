package engine_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
	"github.com/zenstackhq/zenstack-v3-sub005/privacy"
)

func TestClientFindUniqueReturnsRow(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
		AddRow("u1", "a@example.com"))

	out, err := c.FindUnique(context.Background(), "User", planner.Args{
		Where: map[string]any{"id": "u1"},
	})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "u1", out.Rows[0][0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientFindUniqueOrThrowReturnsNotFoundOnZeroRows(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	_, err := c.FindUniqueOrThrow(context.Background(), "User", planner.Args{
		Where: map[string]any{"id": "missing"},
	})
	require.Error(t, err)
	assert.True(t, velox.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientCreateCommitsAndReturnsReadBackRow(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)

	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectCommit()

	out, err := c.Create(context.Background(), "User", planner.Args{
		Data: map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.NumAffectedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientCreateRejectedByPolicyWithoutMatchingViewer(t *testing.T) {
	s := testSchema(true)
	c, mock := newClient(t, s)

	mock.ExpectBegin()
	// pre-create count(*) check: authorId "u1" != auth().id "someone-else"
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	ctx := privacy.WithViewer(context.Background(), privacy.ClaimsMap{"id": "someone-else"})
	_, err := c.Create(ctx, "Post", planner.Args{
		Data: map[string]any{"title": "hi", "authorId": "u1"},
	})
	require.Error(t, err)
	assert.True(t, velox.IsRejectedByPolicy(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientCreateAllowedWhenViewerMatchesAuthor(t *testing.T) {
	s := testSchema(true)
	c, mock := newClient(t, s)

	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectCommit()

	ctx := privacy.WithViewer(context.Background(), privacy.ClaimsMap{"id": "u1"})
	out, err := c.Create(ctx, "Post", planner.Args{
		Data: map[string]any{"title": "hi", "authorId": "u1"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.NumAffectedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientTransactionSharesOneTransactionAcrossCalls(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)

	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u2"))
	mock.ExpectCommit()

	err := c.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := c.Create(ctx, "User", planner.Args{Data: map[string]any{"email": "a@example.com"}}); err != nil {
			return err
		}
		_, err := c.Create(ctx, "User", planner.Args{Data: map[string]any{"email": "b@example.com"}})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientTransactionRollsBackOnCallbackError(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)

	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectRollback()

	sentinel := assert.AnError
	err := c.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := c.Create(ctx, "User", planner.Args{Data: map[string]any{"email": "a@example.com"}}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}
