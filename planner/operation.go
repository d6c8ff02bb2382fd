// Package planner turns a validated CRUD call (operation, model, args) into
// one or more SQL AST trees for the executor to run, implementing the
// find/create/update/delete/count/aggregate/groupBy algorithms.
package planner

import "github.com/zenstackhq/zenstack-v3-sub005/dialect"

// Operation enumerates every CRUD entry point the planner accepts.
type Operation string

const (
	OpFindUnique        Operation = "findUnique"
	OpFindUniqueOrThrow  Operation = "findUniqueOrThrow"
	OpFindFirst          Operation = "findFirst"
	OpFindFirstOrThrow   Operation = "findFirstOrThrow"
	OpFindMany           Operation = "findMany"
	OpCreate             Operation = "create"
	OpCreateMany         Operation = "createMany"
	OpCreateManyAndReturn Operation = "createManyAndReturn"
	OpUpdate             Operation = "update"
	OpUpdateMany         Operation = "updateMany"
	OpUpdateManyAndReturn Operation = "updateManyAndReturn"
	OpUpsert             Operation = "upsert"
	OpDelete             Operation = "delete"
	OpDeleteMany         Operation = "deleteMany"
	OpCount              Operation = "count"
	OpAggregate          Operation = "aggregate"
	OpGroupBy            Operation = "groupBy"
)

// IsMutation reports whether op writes data (as opposed to find/count/
// aggregate/groupBy, which only read).
func (op Operation) IsMutation() bool {
	switch op {
	case OpCreate, OpCreateMany, OpCreateManyAndReturn,
		OpUpdate, OpUpdateMany, OpUpdateManyAndReturn, OpUpsert,
		OpDelete, OpDeleteMany:
		return true
	}
	return false
}

// OrThrow reports whether op should surface NotFoundError instead of a nil
// result when no row matches.
func (op Operation) OrThrow() bool {
	return op == OpFindUniqueOrThrow || op == OpFindFirstOrThrow
}

// OrderBy is one `{field: "asc"|"desc"}` entry, in the user-specified order;
// ties are broken by later entries. Id fields are not appended as a final
// tie-break; they become the order only when no entry is given.
type OrderBy struct {
	Field string
	Desc  bool
}

// CursorArgs anchors a find to the row identified by Fields (a unique-key
// value set), continuing from just after (or before, if Take is negative)
// it under the query's effective order.
type CursorArgs struct {
	Fields map[string]any
}

// RelationArgs is the nested args for one `select`/`include` relation
// projection: its own where/orderBy/skip/take/distinct, recursively.
type RelationArgs struct {
	Args
	// A relation's `_count` projection has no field here: it is requested
	// through the parent's Args.Count map (relation name -> true).
}

// Args is the normalized (undefined-stripped) per-operation payload: a
// generic envelope shared by every operation, since no generated typed
// client sits in front of the planner.
type Args struct {
	// Where is a Prisma-shaped nested filter: field keys map to either a
	// literal (implicit `equals`), an operator object
	// ({equals,not,in,notIn,lt,lte,gt,gte,contains,startsWith,endsWith}),
	// a relation filter ({is,isNot} for to-one, {some,every,none} for
	// to-many), or the boolean combinators AND/OR/NOT (each a []Args-shaped
	// map or a single one).
	Where map[string]any

	// Select/Include/Omit name scalar fields and relation projections.
	// Select and Include are mutually exclusive per call, matching the
	// source system's own validation; Omit only applies alongside an
	// implicit "all scalars" projection.
	Select  map[string]any // field name -> true | RelationArgs-shaped map
	Include map[string]any
	Omit    map[string]bool

	OrderBy  []OrderBy
	Skip     int
	Take     int // 0 means unset; negative means "take from the end"
	Cursor   *CursorArgs
	Distinct []string

	// Data carries the create/update payload: field name -> scalar value,
	// or a relation-operations map ({create,connect,connectOrCreate,...}).
	Data map[string]any

	// SkipDuplicates is createMany's ON CONFLICT DO NOTHING toggle.
	SkipDuplicates bool

	// Count selects which `_count` sub-selections to include:
	// relation name -> true, or "*" -> true for the top-level count(*).
	Count map[string]bool

	// Aggregate/GroupBy-only fields.
	Sum, Avg, Min, Max []string
	GroupByFields      []string
	Having             map[string]any

	// Limit bounds an updateMany/deleteMany to at most n rows (unset means
	// unbounded). Rejected at plan time for a polymorphic model, since the
	// id-subselect rewrite a non-limit-supporting dialect needs would have
	// to cross the delegate-base cascade in a way this planner doesn't
	// support.
	Limit *int

	// Adapter reports which SQL features the target dialect supports
	// (UPDATE/DELETE...LIMIT, DISTINCT ON, native arrays); nil falls back
	// to the most conservative (least capable) assumptions everywhere one
	// of these features would otherwise be used.
	Adapter dialect.Adapter
}
