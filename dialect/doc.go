// Package dialect provides database dialect abstraction for the query
// engine.
//
// A schema targets one of two dialect families (see schema.Provider):
// Postgres-like or SQLite-like. Each family is represented by an Adapter
// that renders the SQL fragments the AST compiler cannot express
// generically — JSON aggregation for nested relation selection, array
// literals, DISTINCT ON, and LIMIT on UPDATE/DELETE — and classifies
// driver errors into the module's typed error taxonomy.
//
// # Dialect Names
//
//	dialect.Postgres = "postgres"
//	dialect.SQLite   = "sqlite"
//
// # Sub-packages
//
//   - dialect/postgreslike: Adapter implementation backed by lib/pq error
//     codes and jsonb_build_object/jsonb_agg aggregation.
//   - dialect/sqlitelike: Adapter implementation backed by
//     modernc.org/sqlite error codes and json_object/json_group_array
//     aggregation.
package dialect
