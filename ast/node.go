// Package ast defines the immutable SQL abstract syntax tree shared by the
// planner, the name-mapping rewriter, and the policy rewriter. Every node
// is a plain value (never mutated in place); rewriters produce a new tree
// by copying and replacing the parts that change, so two rewriters can run
// in sequence without either observing the other's half-finished work.
package ast

// Node is any element of the tree. The rewriters type-switch on the
// concrete kind; Kind() exists for generic logging/debugging without a
// type switch.
type Node interface {
	Kind() string
}

// Select is a SELECT statement.
type Select struct {
	With     []CTE
	Distinct bool
	// DistinctOn holds the Postgres-like DISTINCT ON expressions; empty
	// unless the dialect supports it and the planner chose it.
	DistinctOn []Node
	Columns    []Selection
	From       *From
	Joins      []Join
	Where      *Where
	GroupBy    []Node
	Having     *Where
	OrderBy    []OrderTerm
	Limit      *int
	Offset     *int
}

func (Select) Kind() string { return "Select" }

// CTE is one WITH-clause entry.
type CTE struct {
	Name  string
	Query *Select
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Expr  Node
	Desc  bool
	Nulls string // "first" | "last" | ""
}

// Insert is an INSERT statement.
type Insert struct {
	Table      *Table
	Columns    []string
	Values     []ValueList
	OnConflict *OnConflict
	Returning  *Returning
}

func (Insert) Kind() string { return "Insert" }

// Update is an UPDATE statement.
type Update struct {
	Table     *Table
	Set       []BinaryOp // each is a `column = expr` BinaryOp
	From      *From      // extra tables joined into the UPDATE (Postgres-like FROM / SQLite-like FROM)
	Where     *Where
	Limit     *int
	Returning *Returning
}

func (Update) Kind() string { return "Update" }

// Delete is a DELETE statement.
type Delete struct {
	Table     *Table
	Using     []Node // extra tables (Postgres USING / SQLite-like equivalent)
	Where     *Where
	Limit     *int
	Returning *Returning
}

func (Delete) Kind() string { return "Delete" }

// From is the FROM clause of a SELECT/UPDATE, a single table or subquery
// expression (further ones are expressed as Joins).
type From struct {
	Table Node // *Table, *Alias(*Select), or *Alias(*From)
}

func (From) Kind() string { return "From" }

// JoinKind names the SQL join variety.
type JoinKind string

const (
	JoinInner JoinKind = "JOIN"
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinLateralLeft JoinKind = "LEFT JOIN LATERAL"
)

// Join is one JOIN clause.
type Join struct {
	Kind JoinKind
	// Target is the joined table/subquery/alias.
	Target Node
	On     Node
}

func (Join) Kind() string { return "Join" }

// Where wraps a boolean expression tree used by WHERE/HAVING/ON.
type Where struct {
	Expr Node
}

func (Where) Kind() string { return "Where" }

// Table is a bare physical table reference, optionally schema-qualified.
type Table struct {
	Schema string
	Name   string
}

func (Table) Kind() string { return "Table" }

// Column is a (possibly-qualified) column reference.
type Column struct {
	Qualifier string // alias or table name; empty if unqualified
	Name      string
}

func (Column) Kind() string { return "Column" }

// Reference is a bare identifier used where a Column would be ambiguous
// with a CTE/alias name (e.g. referencing a CTE in FROM). Distinct from
// Column so the name-mapping rewriter never attempts to rewrite it against
// a model's field list.
type Reference struct {
	Name string
}

func (Reference) Kind() string { return "Reference" }

// Alias wraps any node with an AS-name. Used for: "T AS A" table aliases,
// subquery aliases, and output-column aliases ("expr AS logical_name").
type Alias struct {
	Expr Node
	As   string
}

func (Alias) Kind() string { return "Alias" }

// Value is a literal scalar parameter; Param, when true, means the value
// is bound positionally (the common case); Param false renders the value
// inline (reserved for values that must not be parameterized, e.g. a
// dialect keyword).
type Value struct {
	Val   any
	Param bool
}

func (Value) Kind() string { return "Value" }

// ValueList is a parenthesized tuple of values, as used in
// `INSERT ... VALUES (v1, v2, ...)` and in the pre-create policy probe's
// `VALUES(...) AS t(columns...)`.
type ValueList struct {
	Values []Node
}

func (ValueList) Kind() string { return "ValueList" }

// BinaryOp is a two-operand operator: comparisons, boolean combinators,
// `IN`, and (overloaded) column assignment in
// UPDATE SET / ON CONFLICT DO UPDATE SET, where Op == "=".
type BinaryOp struct {
	Op          string
	Left, Right Node
}

func (BinaryOp) Kind() string { return "BinaryOp" }

// Function is a function-call expression, e.g. `jsonb_build_object(...)`,
// `count(*)`, `coalesce(...)`.
type Function struct {
	Name string
	Args []Node
	// Star renders `name(*)` (only meaningful for Name == "count").
	Star bool
}

func (Function) Kind() string { return "Function" }

// Parens wraps an expression in parentheses, used when operator precedence
// would otherwise be ambiguous after a rewrite (e.g. policy AND injected
// into an OR'd WHERE).
type Parens struct {
	Expr Node
}

func (Parens) Kind() string { return "Parens" }

// Returning is a RETURNING clause.
type Returning struct {
	Columns []Selection
}

func (Returning) Kind() string { return "Returning" }

// Selection is one projected output column: Expr may be a Column, a
// Function (nested relation JSON, aggregates), or any expression; As
// names the output alias when it differs from a bare column name.
type Selection struct {
	Expr Node
	As   string
}

// OnConflict renders `ON CONFLICT (...) DO NOTHING` or
// `ON CONFLICT (...) DO UPDATE SET ...`.
type OnConflict struct {
	Columns   []string
	DoNothing bool
	DoUpdate  []BinaryOp
	Where     *Where
}

func (OnConflict) Kind() string { return "OnConflict" }

// DialectFunc names one dialect-specific rendering operation that the bound
// dialect.Adapter, not the planner, decides the exact SQL for.
type DialectFunc string

const (
	// DialectJSONObject builds a single-row JSON object from alternating
	// key-literal/value-expression args, e.g. jsonb_build_object(...) vs
	// json_object(...).
	DialectJSONObject DialectFunc = "jsonObject"
	// DialectJSONAgg aggregates its single arg into a JSON array, coalesced
	// to an empty array when no rows match.
	DialectJSONAgg DialectFunc = "jsonAgg"
	// DialectArrayLiteral renders its args as a native array literal; only
	// reachable when the schema's provider supports arrays.
	DialectArrayLiteral DialectFunc = "arrayLiteral"
)

// Case renders a single-branch `CASE WHEN Cond THEN Then ELSE Else END`,
// used to mask a projected column under a field-level read policy.
type Case struct {
	Cond, Then, Else Node
}

func (Case) Kind() string { return "Case" }

// DialectCall defers part of a node's rendering to the dialect.Adapter
// bound to the compiler: each Arg is rendered to its own SQL fragment first,
// then handed to the Adapter method matching Func. Planner and policy code
// build these instead of hardcoding jsonb_agg/json_group_array-style
// function names, which differ by provider and aren't decided until
// compile time.
type DialectCall struct {
	Func DialectFunc
	Args []Node
}

func (DialectCall) Kind() string { return "DialectCall" }
