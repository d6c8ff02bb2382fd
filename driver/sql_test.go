package driver_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/driver"
)

func newDriver(t *testing.T) (*driver.SQLDriver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return driver.NewSQLDriver(db), mock
}

func TestExecuteQueryPlainInsertReturnsAffectedCountOnly(t *testing.T) {
	d, mock := newDriver(t)
	conn, err := d.AcquireConnection(context.Background())
	require.NoError(t, err)

	mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := conn.ExecuteQuery(context.Background(), `INSERT INTO "User" (id, email) VALUES ($1, $2)`, []any{"u1", "a@example.com"}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.NumAffectedRows)
	assert.Nil(t, res.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A RETURNING-bearing INSERT/UPDATE/DELETE still produces a row set and
// must be routed through QueryContext, not ExecContext, whose sql.Result
// never carries the returned columns.
func TestExecuteQueryInsertWithReturningCarriesRows(t *testing.T) {
	d, mock := newDriver(t)
	conn, err := d.AcquireConnection(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))

	res, err := conn.ExecuteQuery(context.Background(),
		`INSERT INTO "User" (id, email) VALUES ($1, $2) RETURNING "id"`,
		[]any{"u1", "a@example.com"}, "")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "u1", res.Rows[0][0])
	assert.EqualValues(t, 1, res.NumAffectedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryUpdateWithReturningEmptyRowsStillAffectsZero(t *testing.T) {
	d, mock := newDriver(t)
	conn, err := d.AcquireConnection(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := conn.ExecuteQuery(context.Background(),
		`UPDATE "Tag" SET name = $1 WHERE name = $2 RETURNING "id"`,
		[]any{"go", "go"}, "")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.EqualValues(t, 0, res.NumAffectedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQuerySelectRoutesThroughQuery(t *testing.T) {
	d, mock := newDriver(t)
	conn, err := d.AcquireConnection(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
		AddRow("u1", "a@example.com"))

	res, err := conn.ExecuteQuery(context.Background(), `SELECT "id", "email" FROM "User"`, nil, "")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"id", "email"}, res.Columns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransactionCommit(t *testing.T) {
	d, mock := newDriver(t)
	conn, err := d.AcquireConnection(context.Background())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := conn.BeginTransaction(context.Background(), driver.IsolationRepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransactionRollback(t *testing.T) {
	d, mock := newDriver(t)
	conn, err := d.AcquireConnection(context.Background())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := conn.BeginTransaction(context.Background(), driver.IsolationRepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
