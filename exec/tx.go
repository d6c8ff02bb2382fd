package exec

import (
	"context"

	"github.com/zenstackhq/zenstack-v3-sub005/driver"
)

// Committer is the interface that wraps the Commit method.
type Committer interface {
	Commit(ctx context.Context, tx driver.Tx) error
}

// CommitFunc is an adapter to allow the use of an ordinary function as a
// Committer.
type CommitFunc func(ctx context.Context, tx driver.Tx) error

func (f CommitFunc) Commit(ctx context.Context, tx driver.Tx) error { return f(ctx, tx) }

// CommitHook defines the "commit middleware": a function that takes a
// Committer and returns a Committer. For example:
//
//	hook := func(next exec.Committer) exec.Committer {
//	    return exec.CommitFunc(func(ctx context.Context, tx driver.Tx) error {
//	        // do something before
//	        if err := next.Commit(ctx, tx); err != nil {
//	            return err
//	        }
//	        // do something after
//	        return nil
//	    })
//	}
type CommitHook func(Committer) Committer

// Rollbacker is the interface that wraps the Rollback method.
type Rollbacker interface {
	Rollback(ctx context.Context, tx driver.Tx) error
}

// RollbackFunc is an adapter to allow the use of an ordinary function as a
// Rollbacker.
type RollbackFunc func(ctx context.Context, tx driver.Tx) error

func (f RollbackFunc) Rollback(ctx context.Context, tx driver.Tx) error { return f(ctx, tx) }

// RollbackHook defines the "rollback middleware", the Rollbacker analogue
// of CommitHook.
type RollbackHook func(Rollbacker) Rollbacker

type ctxKey int

const txKey ctxKey = 0

// WithTx returns a context carrying an already-open transaction, so a
// nested Executor.Run call (e.g. inside a caller's `$transaction(cb)`)
// reuses it instead of opening a fresh one.
func WithTx(ctx context.Context, tx driver.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

func txFromContext(ctx context.Context) (driver.Tx, bool) {
	tx, ok := ctx.Value(txKey).(driver.Tx)
	return tx, ok
}

// scope is one driver.Conn the executor is currently running statements
// against: either a plain connection (for a non-transactional read) or a
// transaction opened for the duration of a StepTransaction group.
type scope struct {
	conn     driver.Conn                        // what ExecuteQuery/StreamQuery run against
	tx       driver.Tx                           // non-nil when conn is also a Tx
	borrowed bool                                // true if conn/tx came from the caller's context, not opened here
	release  func(ctx context.Context) error     // returns the underlying driver.Conn to the pool; nil if borrowed
}

func (s *scope) commit(ctx context.Context, hooks []CommitHook) error {
	if s.tx == nil || s.borrowed {
		return nil
	}
	var c Committer = CommitFunc(func(ctx context.Context, tx driver.Tx) error { return tx.Commit(ctx) })
	for i := len(hooks) - 1; i >= 0; i-- {
		c = hooks[i](c)
	}
	return c.Commit(ctx, s.tx)
}

func (s *scope) rollback(ctx context.Context, hooks []RollbackHook) error {
	if s.tx == nil || s.borrowed {
		return nil
	}
	var r Rollbacker = RollbackFunc(func(ctx context.Context, tx driver.Tx) error { return tx.Rollback(ctx) })
	for i := len(hooks) - 1; i >= 0; i-- {
		r = hooks[i](r)
	}
	return r.Rollback(ctx, s.tx)
}

// close releases the underlying connection back to the driver. It must
// run after commit/rollback has already settled the transaction (a
// *sql.Conn cannot be closed while a Tx derived from it is still active).
func (s *scope) close(ctx context.Context) error {
	if s.release == nil {
		return nil
	}
	return s.release(ctx)
}
