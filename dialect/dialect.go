package dialect

// Name identifies a concrete SQL dialect. Dialects are grouped into two
// families for planning purposes (see schema.Provider): Postgres and
// SQLite each anchor one family, sharing its JSON/array/RETURNING/LIMIT
// feature set with any other engine registered under the same family.
type Name string

const (
	Postgres Name = "postgres"
	SQLite   Name = "sqlite"
)

// Adapter renders dialect-specific SQL fragments the AST compiler cannot
// express generically: JSON aggregation for nested relation selection,
// array literals, and the subset of DML features (DISTINCT ON, LIMIT on
// UPDATE/DELETE) that differ between the two families. It also classifies
// driver-level errors into the package's typed error taxonomy.
type Adapter interface {
	Name() Name

	// Quote wraps an identifier in the dialect's quoting convention.
	Quote(ident string) string
	// Placeholder returns the bind-parameter marker for the i'th
	// parameter (1-indexed), e.g. "$1" for Postgres-like, "?" for
	// SQLite-like.
	Placeholder(i int) string

	// SupportsUpdateWithLimit/SupportsDeleteWithLimit report whether
	// `UPDATE ... LIMIT n` / `DELETE ... LIMIT n` are valid; when false,
	// the planner rewrites the limited mutation into an
	// `id IN (SELECT id ... LIMIT n)` subquery on the primary key instead.
	SupportsUpdateWithLimit() bool
	SupportsDeleteWithLimit() bool
	// SupportsDistinctOn reports whether `SELECT DISTINCT ON (...)` is
	// available; when false, distinct-by-key queries are planned without
	// it and the fetched rows are deduplicated in memory instead.
	SupportsDistinctOn() bool
	// SupportsArrays reports native array column support.
	SupportsArrays() bool
	// SupportsReturning reports RETURNING clause support (both families
	// in this module support it, but the hook stays honest for a future
	// dialect that doesn't).
	SupportsReturning() bool

	// BuildJSONObject renders an object-construction call over
	// alternating key/value SQL fragments, e.g. jsonb_build_object(...)
	// or json_object(...).
	BuildJSONObject(pairs []string) string
	// BuildJSONAgg wraps a single JSON-object expression into an
	// aggregate producing a JSON array of it, e.g. jsonb_agg(...) or
	// json_group_array(...).
	BuildJSONAgg(expr string) string
	// BuildArrayLiteral renders a literal array value's SQL spelling
	// given pre-rendered element fragments.
	BuildArrayLiteral(elems []string) string

	// ClassifyError maps a raw driver error into one of the package's
	// typed errors (ConstraintError, DriverError), inspecting
	// dialect-specific error codes (pq.Error / sqlite.Error).
	ClassifyError(err error) error
}
