package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLDriver adapts a *sql.DB to the Driver interface. It is the only
// concrete Driver in this module and is independent of the dialect
// adapters; this package stays driver-agnostic so it works with any
// database/sql driver, including DATA-DOG/go-sqlmock in tests.
type SQLDriver struct {
	db *sql.DB
}

// NewSQLDriver wraps an already-opened *sql.DB.
func NewSQLDriver(db *sql.DB) *SQLDriver {
	return &SQLDriver{db: db}
}

func (d *SQLDriver) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("driver: init: %w", err)
	}
	return nil
}

func (d *SQLDriver) AcquireConnection(ctx context.Context) (Conn, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("driver: acquire connection: %w", err)
	}
	return &sqlConn{execer: conn, closer: conn.Close}, nil
}

func (d *SQLDriver) ReleaseConnection(_ context.Context, c Conn) error {
	sc, ok := c.(*sqlConn)
	if !ok {
		return fmt.Errorf("driver: release connection: unexpected conn type %T", c)
	}
	if sc.closer == nil {
		return nil
	}
	return sc.closer()
}

func (d *SQLDriver) Destroy(_ context.Context) error {
	return d.db.Close()
}

// execer is implemented by both *sql.Conn and *sql.Tx, letting sqlConn and
// sqlTx share the same statement-execution code.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlConn struct {
	execer execer
	closer func() error
}

func (c *sqlConn) BeginTransaction(ctx context.Context, level IsolationLevel) (Tx, error) {
	conn, ok := c.execer.(*sql.Conn)
	if !ok {
		return nil, errors.New("driver: begin transaction: conn is already a transaction")
	}
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: toSQLIsolation(level)})
	if err != nil {
		return nil, fmt.Errorf("driver: begin transaction: %w", err)
	}
	return &sqlTx{execer: tx, tx: tx}, nil
}

func (c *sqlConn) ExecuteQuery(ctx context.Context, query string, params []any, _ string) (*Result, error) {
	return executeQuery(ctx, c.execer, query, params)
}

func (c *sqlConn) StreamQuery(ctx context.Context, query string, params []any, batchSize int, fn func([]Row) error) error {
	return streamQuery(ctx, c.execer, query, params, batchSize, fn)
}

type sqlTx struct {
	execer execer
	tx     *sql.Tx
}

func (t *sqlTx) BeginTransaction(context.Context, IsolationLevel) (Tx, error) {
	return nil, ErrTxStarted
}

func (t *sqlTx) ExecuteQuery(ctx context.Context, query string, params []any, _ string) (*Result, error) {
	return executeQuery(ctx, t.execer, query, params)
}

func (t *sqlTx) StreamQuery(ctx context.Context, query string, params []any, batchSize int, fn func([]Row) error) error {
	return streamQuery(ctx, t.execer, query, params, batchSize, fn)
}

func (t *sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }

// ErrTxStarted mirrors the root package's sentinel as a separate value in
// this package, so driver consumers get a typed signal without importing
// the root package purely for this one check.
var ErrTxStarted = errors.New("driver: cannot start a transaction within a transaction")

func toSQLIsolation(level IsolationLevel) sql.IsolationLevel {
	switch level {
	case IsolationReadCommitted:
		return sql.LevelReadCommitted
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

func executeQuery(ctx context.Context, ex execer, query string, params []any) (*Result, error) {
	// An INSERT/UPDATE/DELETE carrying a RETURNING clause still produces a
	// row set and must go through QueryContext, not ExecContext (whose
	// driver.Result never carries columns/rows).
	if looksLikeSelect(query) || hasReturning(query) {
		rows, err := ex.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("driver: query: %w", err)
		}
		defer rows.Close()
		res, err := scanAll(rows)
		if err != nil {
			return nil, err
		}
		if !looksLikeSelect(query) {
			// RowsAffected isn't available through *sql.Rows; the caller
			// (executor) only needs the returned rows themselves, so the
			// row count doubles as the affected count here.
			res.NumAffectedRows = int64(len(res.Rows))
		}
		return res, nil
	}
	res, err := ex.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("driver: exec: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &Result{NumAffectedRows: affected}, nil
}

// hasReturning reports whether query contains "RETURNING" anywhere
// (case-insensitive, not limited to a top-level clause), a cheap scan
// sufficient to distinguish a mutating statement that still yields rows
// from one that doesn't.
func hasReturning(query string) bool {
	for i := 0; i+9 <= len(query); i++ {
		if hasPrefixFold(query[i:], "RETURNING") {
			return true
		}
	}
	return false
}

func streamQuery(ctx context.Context, ex execer, query string, params []any, batchSize int, fn func([]Row) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	rows, err := ex.QueryContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("driver: stream query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("driver: stream query: columns: %w", err)
	}

	batch := make([]Row, 0, batchSize)
	for rows.Next() {
		row, err := scanRow(rows, len(cols))
		if err != nil {
			return err
		}
		batch = append(batch, row)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]Row, 0, batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("driver: stream query: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func scanAll(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("driver: columns: %w", err)
	}
	var out []Row
	for rows.Next() {
		row, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("driver: rows: %w", err)
	}
	return &Result{Columns: cols, Rows: out, NumAffectedRows: int64(len(out))}, nil
}

func scanRow(rows *sql.Rows, n int) (Row, error) {
	dest := make([]any, n)
	ptrs := make([]any, n)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("driver: scan: %w", err)
	}
	return Row(dest), nil
}

// looksLikeSelect is a cheap classification used only to pick between
// QueryContext and ExecContext; the planner always knows statement kind,
// but this driver is also exercised directly in tests with raw SQL.
func looksLikeSelect(query string) bool {
	i := 0
	for i < len(query) && (query[i] == ' ' || query[i] == '\n' || query[i] == '\t' || query[i] == '(') {
		i++
	}
	rest := query[i:]
	return len(rest) >= 6 && (rest[:6] == "SELECT" || rest[:6] == "select" || hasPrefixFold(rest, "WITH") || hasPrefixFold(rest, "VALUES"))
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 32
		}
		p := prefix[i]
		if p >= 'a' && p <= 'z' {
			p -= 32
		}
		if c != p {
			return false
		}
	}
	return true
}
