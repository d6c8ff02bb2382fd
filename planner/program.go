package planner

import "github.com/zenstackhq/zenstack-v3-sub005/ast"

// StepKind distinguishes the handful of things a Step can ask the executor
// to do beyond "run this statement".
type StepKind int

const (
	// StepStatement runs Node (a Select/Insert/Update/Delete) and, for a
	// mutation, is subject to the policy pre-create/read-back machinery.
	StepStatement StepKind = iota
	// StepTransaction groups its nested Steps inside one transaction,
	// committing only if every nested step succeeds.
	StepTransaction
)

// Step is one unit of planned work. A Program is a flat ordered list of
// Steps; StepTransaction nests further Steps so the executor can recognize
// transaction boundaries without re-deriving them from statement shape.
type Step struct {
	Kind StepKind

	// Node is the AST statement to execute, set when Kind == StepStatement.
	Node ast.Node

	// Model names the statement's target model, for policy lookups and
	// error labeling.
	Model string
	// Op is the underlying CRUD operation this step realizes (e.g. a
	// `create` Program's base-model insert is itself Op == OpCreate).
	Op Operation

	// PolicyAlias is the alias the policy rewriter should bind the target
	// model's row to when compiling this step's filter.
	PolicyAlias string

	// RequiresReadBack marks a mutation whose RETURNING was collapsed to
	// id-only by the policy rewriter (or whose result needs re-reading for
	// any other reason); the executor issues policy.ReadBack afterward.
	RequiresReadBack bool
	ReadBackIDColumn string

	// Steps holds the nested work of a StepTransaction.
	Steps []Step
}

// Program is the planner's output: an ordered sequence of Steps for
// exec.Executor to run, some individually, some grouped into a transaction.
type Program struct {
	Steps []Step
	// ResultShape tells the executor/client how to reassemble the final
	// result from the steps' outputs: one of "row", "rows", "count",
	// "aggregate", "groups", or "upsert".
	ResultShape string
}

func stmt(model string, op Operation, alias string, n ast.Node) Step {
	return Step{Kind: StepStatement, Node: n, Model: model, Op: op, PolicyAlias: alias}
}

func txn(steps ...Step) Step {
	return Step{Kind: StepTransaction, Steps: steps}
}
