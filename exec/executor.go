package exec

import (
	"context"
	"encoding/json"
	"fmt"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/driver"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
	"github.com/zenstackhq/zenstack-v3-sub005/policy"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// Executor runs a planner.Program: it merges plugin mutation filters,
// chooses a transaction scope, loads pre/post images, runs the policy
// pre-create/read-back checks, and dispatches compiled SQL to a
// driver.Driver.
type Executor struct {
	schema   *schema.Schema
	driver   driver.Driver
	compiler ast.Compiler
	adapter  dialect.Adapter

	plugins       []Plugin
	commitHooks   []CommitHook
	rollbackHooks []RollbackHook
}

// NewExecutor builds an Executor bound to one schema, driver, and dialect
// adapter (the adapter matters both for SQL rendering and for classifying
// the driver errors that rendering's dialect produces).
func NewExecutor(s *schema.Schema, drv driver.Driver, adapter dialect.Adapter) *Executor {
	return &Executor{schema: s, driver: drv, compiler: ast.NewCompiler(adapter), adapter: adapter}
}

// Adapter exposes the dialect adapter this Executor renders SQL with, so
// the planner can be handed the same adapter the compiled SQL will
// ultimately run under.
func (e *Executor) Adapter() dialect.Adapter { return e.adapter }

// Use registers plugins, consulted in registration order for every
// mutating request, in registration order.
func (e *Executor) Use(plugins ...Plugin) { e.plugins = append(e.plugins, plugins...) }

// UseCommitHook/UseRollbackHook register commit/rollback middleware
// wrapping every transaction this Executor opens.
func (e *Executor) UseCommitHook(hooks ...CommitHook)     { e.commitHooks = append(e.commitHooks, hooks...) }
func (e *Executor) UseRollbackHook(hooks ...RollbackHook) { e.rollbackHooks = append(e.rollbackHooks, hooks...) }

// Outcome is the raw result of running one Program: rows/columns for a
// read, or the affected-row count and (if read-back ran) the written
// rows' columns for a mutation. Trimming selected fields, parsing typed
// JSON, and applying omit is the Result Processor's job, layered on top
// of this and out of Executor's scope.
type Outcome struct {
	ResultShape     string
	Columns         []string
	Rows            []driver.Row
	NumAffectedRows int64
}

// Run executes prog for one client call (operation, model, authValue) and
// returns the assembled Outcome.
func (e *Executor) Run(ctx context.Context, model string, op planner.Operation, authValue any, prog *planner.Program) (*Outcome, error) {
	if prog == nil || len(prog.Steps) == 0 {
		return &Outcome{ResultShape: shapeOf(prog)}, nil
	}

	if prog.ResultShape == "upsert" {
		return e.runUpsert(ctx, model, op, authValue, prog)
	}

	var filter MutationFilter
	if op.IsMutation() {
		filter = e.mutationFilter(ctx, model, op)
	}

	var out *Outcome
	for _, step := range prog.Steps {
		res, err := e.runTopStep(ctx, model, op, authValue, step, filter)
		if err != nil {
			return nil, err
		}
		if res != nil {
			out = res
		}
	}
	if out == nil {
		out = &Outcome{}
	}
	out.ResultShape = prog.ResultShape
	return out, nil
}

func shapeOf(prog *planner.Program) string {
	if prog == nil {
		return ""
	}
	return prog.ResultShape
}

// runUpsert runs the UPDATE branch first; if it affected zero rows (the
// target didn't exist, or existed but the update's own filter matched
// none), the CREATE branch runs instead. Both branches were fully planned
// up front by planner.planUpsert.
func (e *Executor) runUpsert(ctx context.Context, model string, op planner.Operation, authValue any, prog *planner.Program) (*Outcome, error) {
	if len(prog.Steps) != 2 {
		return nil, velox.NewInternalError("exec.runUpsert", fmt.Errorf("expected 2 branches, got %d", len(prog.Steps)))
	}
	filter := e.mutationFilter(ctx, model, planner.OpUpdate)
	updateOut, err := e.runTransaction(ctx, model, planner.OpUpdate, authValue, prog.Steps[0], filter)
	if err != nil {
		return nil, err
	}
	if updateOut.NumAffectedRows > 0 {
		updateOut.ResultShape = "row"
		return updateOut, nil
	}
	createFilter := e.mutationFilter(ctx, model, planner.OpCreate)
	createOut, err := e.runTransaction(ctx, model, planner.OpCreate, authValue, prog.Steps[1], createFilter)
	if err != nil {
		return nil, err
	}
	createOut.ResultShape = "row"
	return createOut, nil
}

func (e *Executor) runTopStep(ctx context.Context, model string, op planner.Operation, authValue any, step planner.Step, filter MutationFilter) (*Outcome, error) {
	switch step.Kind {
	case planner.StepStatement:
		sc, err := e.acquireScope(ctx, false)
		if err != nil {
			return nil, err
		}
		defer sc.close(ctx)
		res, err := e.runStatement(ctx, sc, authValue, step)
		if err != nil {
			return nil, err
		}
		return outcomeFromResult(res), nil
	case planner.StepTransaction:
		return e.runTransaction(ctx, model, op, authValue, step, filter)
	default:
		return nil, velox.NewInternalError("exec.runTopStep", fmt.Errorf("unknown step kind %d", step.Kind))
	}
}

// mutationFilter consults every registered plugin's
// MutationInterceptionFilter and ORs the results together.
func (e *Executor) mutationFilter(ctx context.Context, model string, op planner.Operation) MutationFilter {
	if len(e.plugins) == 0 {
		return MutationFilter{}
	}
	filters := make([]MutationFilter, 0, len(e.plugins))
	for _, p := range e.plugins {
		if f, ok := p.MutationInterceptionFilter(ctx, model, op); ok {
			filters = append(filters, f)
		}
	}
	return mergeFilters(filters)
}

// readBackReq pairs a mutation Step that requires read-back with the
// result it produced, so verification can run once every statement in the
// transaction group has executed.
type readBackReq struct {
	step   planner.Step
	result *driver.Result
}

// runTransaction executes every nested statement of a StepTransaction
// group as one atomic unit, running the plugin before/after hooks and the
// policy read-back check around it.
func (e *Executor) runTransaction(ctx context.Context, model string, op planner.Operation, authValue any, group planner.Step, filter MutationFilter) (*Outcome, error) {
	sc, err := e.acquireScope(ctx, true)
	if err != nil {
		return nil, err
	}

	abort := func(cause error) (*Outcome, error) {
		if rbErr := sc.rollback(ctx, e.rollbackHooks); rbErr != nil {
			sc.close(ctx)
			return nil, &velox.RollbackError{Err: rbErr}
		}
		sc.close(ctx)
		return nil, cause
	}

	var before []EntityMutation
	if filter.LoadBeforeMutationEntities {
		ems, err := e.loadBeforeImages(ctx, sc, group.Steps)
		if err != nil {
			return abort(err)
		}
		before = ems
	}

	if filter.Intercept {
		if err := e.runBeforeHooks(ctx, model, op, before); err != nil {
			return abort(err)
		}
	}

	var last *driver.Result
	var readBacks []readBackReq
	var afterImages []EntityMutation
	for _, st := range group.Steps {
		res, err := e.runStatement(ctx, sc, authValue, st)
		if err != nil {
			return abort(err)
		}
		last = res
		if st.RequiresReadBack {
			readBacks = append(readBacks, readBackReq{step: st, result: res})
			if filter.LoadAfterMutationEntities {
				afterImages = append(afterImages, EntityMutation{
					Model:        st.Model,
					Op:           st.Op,
					AfterColumns: res.Columns,
					After:        res.Rows,
				})
			}
		}
	}

	runAfter := func() error {
		if !filter.Intercept {
			return nil
		}
		return e.runAfterHooks(ctx, model, op, before, afterImages)
	}

	if filter.RunAfterMutationWithinTransaction {
		if err := runAfter(); err != nil {
			return abort(err)
		}
	}

	for _, rb := range readBacks {
		if err := e.verifyReadBack(ctx, sc, authValue, rb); err != nil {
			return abort(err)
		}
	}

	if err := sc.commit(ctx, e.commitHooks); err != nil {
		sc.close(ctx)
		return nil, velox.NewDriverError(err)
	}
	sc.close(ctx)

	if !filter.RunAfterMutationWithinTransaction {
		// Runs after commit: a thrown error here doesn't affect the
		// mutation's own persistence.
		_ = runAfter()
	}

	return outcomeFromResult(last), nil
}

func (e *Executor) runBeforeHooks(ctx context.Context, model string, op planner.Operation, before []EntityMutation) error {
	em := EntityMutation{Model: model, Op: op}
	if len(before) > 0 {
		em.BeforeColumns = before[0].BeforeColumns
		for _, b := range before {
			em.Before = append(em.Before, b.Before...)
		}
	}
	for _, p := range e.plugins {
		if err := p.BeforeEntityMutation(ctx, em); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runAfterHooks(ctx context.Context, model string, op planner.Operation, before, after []EntityMutation) error {
	em := EntityMutation{Model: model, Op: op}
	if len(before) > 0 {
		em.BeforeColumns = before[0].BeforeColumns
		for _, b := range before {
			em.Before = append(em.Before, b.Before...)
		}
	}
	if len(after) > 0 {
		em.AfterColumns = after[0].AfterColumns
		for _, a := range after {
			em.After = append(em.After, a.After...)
		}
	}
	for _, p := range e.plugins {
		if err := p.AfterEntityMutation(ctx, em); err != nil {
			return err
		}
	}
	return nil
}

// loadBeforeImages issues one SELECT per update/delete statement in
// steps, reusing its already policy-rewritten WHERE clause, and captures
// the matching rows before the mutation runs.
func (e *Executor) loadBeforeImages(ctx context.Context, sc *scope, steps []planner.Step) ([]EntityMutation, error) {
	var out []EntityMutation
	for _, st := range steps {
		var where *ast.Where
		var tbl *ast.Table
		switch n := st.Node.(type) {
		case *ast.Update:
			where, tbl = n.Where, n.Table
		case *ast.Delete:
			where, tbl = n.Where, n.Table
		default:
			continue
		}
		m, err := e.schema.Model(st.Model)
		if err != nil {
			continue
		}
		sel := &ast.Select{
			Columns: projectionOf(m, st.PolicyAlias),
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Schema: tbl.Schema, Name: tbl.Name}, st.PolicyAlias)},
		}
		if where != nil {
			sel.Where = where
		}
		sqlText, params, err := e.compiler.Compile(sel)
		if err != nil {
			return nil, velox.NewInternalError("exec.loadBeforeImages", err)
		}
		sqlText = appendContextComment(sqlText, st.Model, "beforeImage")
		res, err := sc.conn.ExecuteQuery(ctx, sqlText, params, "")
		if err != nil {
			return nil, e.classifyDriverErr(err)
		}
		out = append(out, EntityMutation{Model: st.Model, Op: st.Op, BeforeColumns: res.Columns, Before: res.Rows})
	}
	return out, nil
}

func projectionOf(m *schema.Model, alias string) []ast.Selection {
	cols := m.ScalarColumns()
	out := make([]ast.Selection, len(cols))
	for i, name := range cols {
		f := m.Fields[name]
		out[i] = ast.Selection{Expr: ast.QCol(alias, f.DBColumn), As: f.Name}
	}
	return out
}

// runStatement executes one planned statement: a pending create's
// pre-create check, RETURNING augmentation when read-back is required,
// and the compiled SQL itself.
func (e *Executor) runStatement(ctx context.Context, sc *scope, authValue any, st planner.Step) (*driver.Result, error) {
	node := st.Node

	if ins, ok := node.(*ast.Insert); ok {
		if err := e.checkPrecreate(ctx, sc, authValue, st.Model, ins); err != nil {
			return nil, err
		}
	}

	if st.RequiresReadBack {
		col, err := e.physicalIDColumn(st.Model, st.ReadBackIDColumn)
		if err != nil {
			return nil, err
		}
		node = withReturning(node, col)
	}

	sqlText, params, err := e.compiler.Compile(node)
	if err != nil {
		return nil, velox.NewInternalError("exec.runStatement", err)
	}
	sqlText = appendContextComment(sqlText, st.Model, string(st.Op))
	res, err := sc.conn.ExecuteQuery(ctx, sqlText, params, "")
	if err != nil {
		return nil, e.classifyDriverErr(err)
	}
	return res, nil
}

// appendContextComment tags sqlText with a trailing SQL comment identifying
// the model/operation that produced it, for observability in slow-query
// logs; downstream tooling may parse it back out but nothing in this
// package depends on that.
func appendContextComment(sqlText, model, op string) string {
	payload, err := json.Marshal(struct {
		Model     string `json:"model"`
		Operation string `json:"operation"`
	}{model, op})
	if err != nil {
		return sqlText
	}
	return fmt.Sprintf("%s -- $$context:%s", sqlText, payload)
}

// checkPrecreate runs policy.PrecreateCheck for every row ins is about to
// insert, when its target model carries a create policy. A table name
// that isn't a schema model (an implicit many-to-many join table) has no
// create policy of its own; it is handed to checkJoinTablePrecreate, which
// checks the join row's endpoints instead.
func (e *Executor) checkPrecreate(ctx context.Context, sc *scope, authValue any, model string, ins *ast.Insert) error {
	m, err := e.schema.Model(model)
	if err != nil {
		return e.checkJoinTablePrecreate(ctx, sc, authValue, model, ins)
	}
	if !m.HasPolicy(schema.OpCreate) {
		return nil
	}
	for _, row := range ins.Values {
		check, err := policy.PrecreateCheck(e.schema, authValue, model, ins.Columns, row.Values)
		if err != nil {
			return err
		}
		sqlText, params, err := e.compiler.Compile(check)
		if err != nil {
			return velox.NewInternalError("exec.checkPrecreate", err)
		}
		sqlText = appendContextComment(sqlText, model, "precreateCheck")
		res, err := sc.conn.ExecuteQuery(ctx, sqlText, params, "")
		if err != nil {
			return e.classifyDriverErr(err)
		}
		if !countPasses(res) {
			return velox.NewRejectedByPolicyError(model, "create", "pre-create check failed")
		}
	}
	return nil
}

// checkJoinTablePrecreate is checkPrecreate's many-to-many counterpart: an
// implicit join table carries no policy of its own, so linking two rows is
// only valid when both are visible under their own model's read policy —
// the join table behaves as a synthetic model whose create rule is the AND
// of its two endpoints. Runs policy.ReadBack per endpoint per row, the same
// query verifyReadBack uses to confirm a written row stayed visible.
func (e *Executor) checkJoinTablePrecreate(ctx context.Context, sc *scope, authValue any, joinTable string, ins *ast.Insert) error {
	modelA, modelB, ok := policy.JoinTableEndpoints(e.schema, joinTable)
	if !ok {
		return nil
	}
	colA, colB := indexOfColumn(ins.Columns, "A"), indexOfColumn(ins.Columns, "B")
	if colA < 0 || colB < 0 {
		return nil
	}
	for _, row := range ins.Values {
		if err := e.checkRowVisible(ctx, sc, authValue, modelA, row.Values[colA]); err != nil {
			return err
		}
		if err := e.checkRowVisible(ctx, sc, authValue, modelB, row.Values[colB]); err != nil {
			return err
		}
	}
	return nil
}

// checkRowVisible rejects with RejectedByPolicyError unless m's row keyed
// by idVal passes m's own read policy. A model without a read policy is
// always visible and short-circuits without a query.
func (e *Executor) checkRowVisible(ctx context.Context, sc *scope, authValue any, m *schema.Model, idVal ast.Node) error {
	if !m.HasPolicy(schema.OpRead) {
		return nil
	}
	sel, err := policy.ReadBack(e.schema, authValue, m.Name, idFieldName(m), []ast.Node{idVal})
	if err != nil {
		return err
	}
	sqlText, params, err := e.compiler.Compile(sel)
	if err != nil {
		return velox.NewInternalError("exec.checkRowVisible", err)
	}
	sqlText = appendContextComment(sqlText, m.Name, "joinTablePrecreateCheck")
	res, err := sc.conn.ExecuteQuery(ctx, sqlText, params, "")
	if err != nil {
		return e.classifyDriverErr(err)
	}
	if len(res.Rows) == 0 {
		return velox.NewRejectedByPolicyError(m.Name, "create", "linked row not visible under read policy")
	}
	return nil
}

func indexOfColumn(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func idFieldName(m *schema.Model) string {
	ids := m.IDFields()
	if len(ids) == 0 {
		return "id"
	}
	return ids[0]
}

// verifyReadBack re-reads the rows a mutation just wrote (or, for delete,
// would have written) through the read policy; a row count mismatch means
// at least one written row isn't visible to the caller, which is rejected
// rather than silently returned.
func (e *Executor) verifyReadBack(ctx context.Context, sc *scope, authValue any, rb readBackReq) error {
	ids := idsFromResult(rb.result)
	if len(ids) == 0 {
		return nil
	}
	sel, err := policy.ReadBack(e.schema, authValue, rb.step.Model, rb.step.ReadBackIDColumn, ids)
	if err != nil {
		return err
	}
	sqlText, params, err := e.compiler.Compile(sel)
	if err != nil {
		return velox.NewInternalError("exec.verifyReadBack", err)
	}
	sqlText = appendContextComment(sqlText, rb.step.Model, "readBack")
	res, err := sc.conn.ExecuteQuery(ctx, sqlText, params, "")
	if err != nil {
		return e.classifyDriverErr(err)
	}
	if len(res.Rows) != len(ids) {
		return velox.NewRejectedByPolicyError(rb.step.Model, string(rb.step.Op), "write not visible under read policy")
	}
	return nil
}

func (e *Executor) physicalIDColumn(model, logicalIDField string) (string, error) {
	m, err := e.schema.Model(model)
	if err != nil {
		return "", err
	}
	f, ok := m.Fields[logicalIDField]
	if !ok {
		return "", velox.NewInternalError("exec.physicalIDColumn", fmt.Errorf("%s has no field %q", model, logicalIDField))
	}
	return f.DBColumn, nil
}

// withReturning adds a single-column RETURNING clause to node, used to
// surface the written rows' ids for verifyReadBack. The executor, not the
// planner, owns this augmentation.
func withReturning(node ast.Node, physicalCol string) ast.Node {
	ret := &ast.Returning{Columns: []ast.Selection{{Expr: ast.Col(physicalCol)}}}
	switch n := node.(type) {
	case *ast.Insert:
		out := *n
		out.Returning = ret
		return &out
	case *ast.Update:
		out := *n
		out.Returning = ret
		return &out
	case *ast.Delete:
		out := *n
		out.Returning = ret
		return &out
	default:
		return node
	}
}

func idsFromResult(res *driver.Result) []ast.Node {
	if res == nil {
		return nil
	}
	out := make([]ast.Node, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, ast.Lit(row[0]))
	}
	return out
}

// countPasses interprets a PrecreateCheck result's single count(*) cell
// as a pass/fail boolean.
func countPasses(res *driver.Result) bool {
	if res == nil || len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return false
	}
	switch v := res.Rows[0][0].(type) {
	case int64:
		return v > 0
	case int:
		return v > 0
	case float64:
		return v > 0
	default:
		return false
	}
}

func outcomeFromResult(res *driver.Result) *Outcome {
	if res == nil {
		return &Outcome{}
	}
	return &Outcome{Columns: res.Columns, Rows: res.Rows, NumAffectedRows: res.NumAffectedRows}
}

// classifyDriverErr maps a raw driver error into the module's typed
// constraint-violation taxonomy using whichever dialect produced it.
func (e *Executor) classifyDriverErr(err error) error {
	if err == nil || e.adapter == nil {
		return err
	}
	return e.adapter.ClassifyError(err)
}

// Transaction opens an explicit transaction and runs fn with a context
// carrying it (via WithTx), so any Executor.Run call fn makes reuses this
// transaction instead of opening its own. This is what a caller's
// `$transaction(cb)` compiles down to.
func (e *Executor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sc, err := e.acquireScope(ctx, true)
	if err != nil {
		return err
	}
	txCtx := WithTx(ctx, sc.tx)
	if cbErr := fn(txCtx); cbErr != nil {
		if rbErr := sc.rollback(ctx, e.rollbackHooks); rbErr != nil {
			sc.close(ctx)
			return &velox.RollbackError{Err: rbErr}
		}
		sc.close(ctx)
		return cbErr
	}
	if err := sc.commit(ctx, e.commitHooks); err != nil {
		sc.close(ctx)
		return velox.NewDriverError(err)
	}
	sc.close(ctx)
	return nil
}

func (e *Executor) acquireScope(ctx context.Context, wantTx bool) (*scope, error) {
	if tx, ok := txFromContext(ctx); ok {
		return &scope{conn: tx, tx: tx, borrowed: true}, nil
	}
	conn, err := e.driver.AcquireConnection(ctx)
	if err != nil {
		return nil, velox.NewDriverError(err)
	}
	release := func(ctx context.Context) error { return e.driver.ReleaseConnection(ctx, conn) }
	if !wantTx {
		return &scope{conn: conn, release: release}, nil
	}
	tx, err := conn.BeginTransaction(ctx, driver.IsolationRepeatableRead)
	if err != nil {
		_ = e.driver.ReleaseConnection(ctx, conn)
		return nil, velox.NewDriverError(err)
	}
	return &scope{conn: tx, tx: tx, release: release}, nil
}
