// Package postgreslike implements dialect.Adapter for PostgreSQL and other
// engines that share its SQL surface: jsonb aggregation, native arrays,
// DISTINCT ON, and RETURNING, but no UPDATE/DELETE ... LIMIT.
package postgreslike

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	velox "github.com/zenstackhq/zenstack-v3-sub005"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateForeignKeyViolation = "23503"
	sqlstateCheckViolation      = "23514"
	sqlstateNotNullViolation    = "23502"
)

// Adapter implements dialect.Adapter for Postgres-like engines.
type Adapter struct{}

// New returns the Postgres-like adapter. It is stateless and safe to share.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() dialect.Name { return dialect.Postgres }

func (a *Adapter) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (a *Adapter) Placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}

func (a *Adapter) SupportsUpdateWithLimit() bool { return false }
func (a *Adapter) SupportsDeleteWithLimit() bool { return false }
func (a *Adapter) SupportsDistinctOn() bool      { return true }
func (a *Adapter) SupportsArrays() bool          { return true }
func (a *Adapter) SupportsReturning() bool       { return true }

func (a *Adapter) BuildJSONObject(pairs []string) string {
	return fmt.Sprintf("jsonb_build_object(%s)", strings.Join(pairs, ", "))
}

func (a *Adapter) BuildJSONAgg(expr string) string {
	return fmt.Sprintf("coalesce(jsonb_agg(%s), '[]'::jsonb)", expr)
}

func (a *Adapter) BuildArrayLiteral(elems []string) string {
	return "ARRAY[" + strings.Join(elems, ", ") + "]"
}

// ClassifyError maps a *pq.Error into the module's typed error taxonomy by
// SQLSTATE code (unique/foreign-key/check constraint classes), narrowed to
// the single lib/pq representation this adapter targets.
func (a *Adapter) ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case sqlstateUniqueViolation:
			return velox.NewConstraintError(velox.ConstraintUnique, pqErr.Constraint, err)
		case sqlstateForeignKeyViolation:
			return velox.NewConstraintError(velox.ConstraintForeignKey, pqErr.Constraint, err)
		case sqlstateCheckViolation:
			return velox.NewConstraintError(velox.ConstraintCheck, pqErr.Constraint, err)
		case sqlstateNotNullViolation:
			return velox.NewConstraintError(velox.ConstraintNotNull, pqErr.Column, err)
		}
	}
	return velox.NewDriverError(err)
}
