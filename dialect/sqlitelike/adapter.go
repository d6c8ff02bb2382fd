// Package sqlitelike implements dialect.Adapter for SQLite and other
// engines that share its SQL surface: correlated-subquery JSON
// aggregation, no native arrays, native UPDATE/DELETE LIMIT, no DISTINCT
// ON.
package sqlitelike

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	velox "github.com/zenstackhq/zenstack-v3-sub005"
)

// Adapter implements dialect.Adapter for SQLite-like engines.
type Adapter struct{}

// New returns the SQLite-like adapter. It is stateless and safe to share.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() dialect.Name { return dialect.SQLite }

func (a *Adapter) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (a *Adapter) Placeholder(int) string { return "?" }

func (a *Adapter) SupportsUpdateWithLimit() bool { return true }
func (a *Adapter) SupportsDeleteWithLimit() bool { return true }
func (a *Adapter) SupportsDistinctOn() bool      { return false }
func (a *Adapter) SupportsArrays() bool          { return false }
func (a *Adapter) SupportsReturning() bool       { return true }

func (a *Adapter) BuildJSONObject(pairs []string) string {
	return fmt.Sprintf("json_object(%s)", strings.Join(pairs, ", "))
}

func (a *Adapter) BuildJSONAgg(expr string) string {
	return fmt.Sprintf("coalesce(json_group_array(%s), '[]')", expr)
}

func (a *Adapter) BuildArrayLiteral([]string) string {
	// SupportsArrays() is false: the planner never calls this for a
	// SQLite-like schema. Panicking here would turn a planner bug into a
	// crash far from its cause, so this returns an unreachable marker
	// instead, matching InternalError's "should never trigger" contract.
	return "/* sqlitelike: arrays unsupported */"
}

// ClassifyError maps a *sqlite.Error into the module's typed error
// taxonomy using the numeric result codes modernc.org/sqlite exposes
// (unique/foreign-key/check constraint classes), narrowed to this single
// driver's error representation.
func (a *Adapter) ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return velox.NewConstraintError(velox.ConstraintUnique, "", err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return velox.NewConstraintError(velox.ConstraintForeignKey, "", err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return velox.NewConstraintError(velox.ConstraintCheck, "", err)
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return velox.NewConstraintError(velox.ConstraintNotNull, "", err)
		}
	}
	return velox.NewDriverError(err)
}
