// Package driver defines the narrow interface the core consumes to talk to
// a database: connection lifecycle, transactions, and statement execution.
// It intentionally does not expose database/sql directly so that the core
// never depends on a specific driver package. SQLDriver (sql.go) is the one
// concrete Driver, wrapping any *sql.DB; the dialect adapters do not ship
// a Driver of their own.
package driver

import (
	"context"
	"time"
)

// IsolationLevel names a transaction isolation level. The core defaults to
// RepeatableRead by default; callers may request a
// different level.
type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// Row is one row of a result set, indexed by column position; Columns gives
// the matching column names.
type Row []any

// Result is the outcome of executeQuery: either the row set (for SELECT)
// or the affected-row count (for INSERT/UPDATE/DELETE without RETURNING).
type Result struct {
	Columns         []string
	Rows            []Row
	NumAffectedRows int64
}

// Driver is the lifecycle + execution surface the core requires. A
// concrete implementation wraps a *sql.DB (or a pooled equivalent) for one
// physical database.
type Driver interface {
	// Init performs any one-time setup (e.g. verifying connectivity).
	Init(ctx context.Context) error

	// AcquireConnection reserves a logical connection for a request,
	// returning a handle the rest of the calls above are scoped to. For
	// drivers backed by database/sql's own pool this may be a no-op
	// returning a zero-value Conn.
	AcquireConnection(ctx context.Context) (Conn, error)
	// ReleaseConnection returns a connection acquired via
	// AcquireConnection back to the pool.
	ReleaseConnection(ctx context.Context, c Conn) error

	// Destroy shuts the driver down, closing all pooled connections.
	Destroy(ctx context.Context) error
}

// Conn is a lease on one physical connection, scoping a transaction and a
// sequence of statement executions.
type Conn interface {
	// BeginTransaction starts a transaction at the given isolation level.
	BeginTransaction(ctx context.Context, level IsolationLevel) (Tx, error)

	// ExecuteQuery runs sql with params and returns the full result.
	// queryID is an opaque correlation id threaded through for logging
	// (see the `-- $$context:...` comment convention); drivers
	// may ignore it.
	ExecuteQuery(ctx context.Context, sql string, params []any, queryID string) (*Result, error)

	// StreamQuery runs sql and delivers rows in batches via the
	// callback, for queries too large to buffer fully in memory. The
	// callback returning an error aborts iteration and is returned
	// unchanged.
	StreamQuery(ctx context.Context, sql string, params []any, batchSize int, fn func([]Row) error) error
}

// Tx is a single transaction scope.
type Tx interface {
	Conn

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PingTimeout is a sane default for Init's connectivity check, matching the
// teacher's observed default connection-establishment budgets.
const PingTimeout = 5 * time.Second
