package policy

import (
	"fmt"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// RewriteContext carries the bits of per-statement context the rewriter
// cannot recover from the AST alone.
type RewriteContext struct {
	// Alias is the alias the statement's own root table is known by (the
	// planner always assigns one, even to single-table statements), used
	// to compile the root policy filter for UPDATE/DELETE/field masking.
	Alias string
}

// Rewrite injects access-policy filters into node: SELECT/JOIN
// targets get wrapped with their model's read policy, UPDATE/DELETE
// targets get their own policy anded into WHERE, and INSERT is statically
// rejected up front when it can never satisfy its create policy. Live
// checks that require executing a query (the pre-create VALUES probe, the
// post-write read-back) are exposed as separate build functions below for
// the executor to run and interpret.
func Rewrite(s *schema.Schema, authValue any, node ast.Node, ctx RewriteContext) (ast.Node, error) {
	r := &rewriter{schema: s, auth: authValue}
	switch t := node.(type) {
	case *ast.Select:
		return r.rewriteSelect(t)
	case *ast.Insert:
		return r.rewriteInsert(t, ctx)
	case *ast.Update:
		return r.rewriteUpdate(t, ctx)
	case *ast.Delete:
		return r.rewriteDelete(t, ctx)
	default:
		return nil, velox.NewInternalError("policy.Rewrite", fmt.Errorf("unsupported statement node %T", node))
	}
}

type rewriter struct {
	schema *schema.Schema
	auth   any
}

// modelAndAlias extracts the logical model and alias a bare-or-aliased
// Table node refers to, returning ok=false when target isn't (yet) a
// recognizable model reference — e.g. it's already a subquery the policy
// rewriter itself (or a caller) produced.
func (r *rewriter) modelAndAlias(target ast.Node) (m *schema.Model, alias string, ok bool) {
	inner := target
	if al, isAlias := target.(*ast.Alias); isAlias {
		alias = al.As
		inner = al.Expr
	}
	tbl, isTable := inner.(*ast.Table)
	if !isTable {
		return nil, "", false
	}
	model, err := r.schema.Model(tbl.Name)
	if err != nil {
		return nil, "", false
	}
	if alias == "" {
		alias = model.Name
	}
	return model, alias, true
}

// wrapWithPolicy rewraps target, a FROM/JOIN table reference, into
// `(SELECT * FROM T WHERE <policy>) AS alias` when its model carries a
// policy for op; a model with no policy for op is returned unchanged.
func (r *rewriter) wrapWithPolicy(target ast.Node, op schema.Operation) (ast.Node, error) {
	m, alias, ok := r.modelAndAlias(target)
	if !ok {
		// Not a bare model reference (already a subquery/CTE/alias this
		// rewriter or the planner produced) — recurse in case it wraps a
		// nested SELECT that itself needs policy filters.
		if al, isAlias := target.(*ast.Alias); isAlias {
			if sub, isSelect := al.Expr.(*ast.Select); isSelect {
				rewritten, err := r.rewriteSelect(sub)
				if err != nil {
					return nil, err
				}
				return &ast.Alias{Expr: rewritten, As: al.As}, nil
			}
		}
		return target, nil
	}
	policyExpr, err := CompileModelPolicy(r.schema, m.Name, op, r.auth, alias)
	if err != nil {
		return nil, err
	}
	if policyExpr == nil {
		return target, nil
	}
	sub := &ast.Select{
		From:  &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		Where: &ast.Where{Expr: policyExpr},
	}
	return &ast.Alias{Expr: sub, As: alias}, nil
}

func (r *rewriter) rewriteSelect(s *ast.Select) (*ast.Select, error) {
	out := *s

	var rootModel *schema.Model
	var rootAlias string
	if s.From != nil {
		if m, alias, ok := r.modelAndAlias(s.From.Table); ok {
			rootModel, rootAlias = m, alias
		}
		wrapped, err := r.wrapWithPolicy(s.From.Table, schema.OpRead)
		if err != nil {
			return nil, err
		}
		out.From = &ast.From{Table: wrapped}
	}

	if len(s.Joins) > 0 {
		newJoins := make([]ast.Join, len(s.Joins))
		for i, j := range s.Joins {
			wrapped, err := r.wrapWithPolicy(j.Target, schema.OpRead)
			if err != nil {
				return nil, err
			}
			newJoins[i] = ast.Join{Kind: j.Kind, Target: wrapped, On: j.On}
		}
		out.Joins = newJoins
	}

	if rootModel != nil {
		masked, err := r.maskFieldPolicies(rootModel, rootAlias, s.Columns)
		if err != nil {
			return nil, err
		}
		out.Columns = masked
	}

	if s.Where != nil {
		expr, err := r.rewriteNestedSelects(s.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Where = &ast.Where{Expr: expr}
	}

	return &out, nil
}

// maskFieldPolicies rewrites every projected scalar column governed by a
// field-level read policy into `CASE WHEN <policy> THEN col ELSE NULL END`,
// so an unreadable field projects as NULL instead of the live value.
// Relation/aggregate selections (anything whose As isn't a scalar field on
// m) pass through untouched — field read policies don't apply to them.
func (r *rewriter) maskFieldPolicies(m *schema.Model, alias string, cols []ast.Selection) ([]ast.Selection, error) {
	out := make([]ast.Selection, len(cols))
	for i, col := range cols {
		f, ok := m.Fields[col.As]
		if !ok || !f.IsScalar() {
			out[i] = col
			continue
		}
		cond, err := CompileFieldPolicy(r.schema, m.Name, f.Name, schema.OpRead, r.auth, alias)
		if err != nil {
			return nil, err
		}
		if cond == nil {
			out[i] = col
			continue
		}
		out[i] = ast.Selection{Expr: &ast.Case{Cond: cond, Then: col.Expr, Else: ast.Raw("NULL")}, As: col.As}
	}
	return out, nil
}

// rewriteNestedSelects walks an expression tree looking for Select nodes
// (correlated subqueries the planner built for relation projections or
// filters) so their own FROM/JOIN targets get the same policy treatment.
func (r *rewriter) rewriteNestedSelects(n ast.Node) (ast.Node, error) {
	switch t := n.(type) {
	case nil:
		return nil, nil
	case *ast.Select:
		return r.rewriteSelect(t)
	case *ast.BinaryOp:
		l, err := r.rewriteNestedSelects(t.Left)
		if err != nil {
			return nil, err
		}
		rr, err := r.rewriteNestedSelects(t.Right)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: t.Op, Left: l, Right: rr}, nil
	case *ast.Function:
		args := make([]ast.Node, len(t.Args))
		for i, a := range t.Args {
			e, err := r.rewriteNestedSelects(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		return &ast.Function{Name: t.Name, Args: args, Star: t.Star}, nil
	case *ast.Parens:
		e, err := r.rewriteNestedSelects(t.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.Parens{Expr: e}, nil
	default:
		return n, nil
	}
}

func isUnconditionalDeny(r schema.PolicyRule) bool {
	if r.Kind != schema.PolicyDeny {
		return false
	}
	lit, ok := r.Condition.(schema.Literal)
	if !ok {
		return false
	}
	b, ok := lit.Value.(bool)
	return ok && b
}

// rewriteInsert performs the static half of INSERT policy handling:
// reject at plan time when create can never succeed. The live pre-create
// probe (built by PrecreateCheck) and its execution are the executor's
// job, run before the statement this function returns.
func (r *rewriter) rewriteInsert(ins *ast.Insert, ctx RewriteContext) (*ast.Insert, error) {
	m, err := r.schema.Model(ins.Table.Name)
	if err != nil {
		// An implicit many-to-many join table isn't a policy-bearing model
		// of its own: it behaves as a synthetic model whose create policy
		// is "both connected rows are visible", statically rejected here
		// when either endpoint can never satisfy its read policy. The
		// live, row-scoped half runs as the executor's pre-create check.
		return ins, r.rejectJoinTableInsert(ins)
	}
	allows, denies := schema.RulesFor(m.Policies, schema.OpCreate)
	if m.HasPolicy(schema.OpCreate) && len(allows) == 0 {
		return nil, velox.NewRejectedByPolicyError(m.Name, "create", "no allow rule for create")
	}
	for _, d := range denies {
		if isUnconditionalDeny(d) {
			return nil, velox.NewRejectedByPolicyError(m.Name, "create", "unconditional deny rule")
		}
	}

	out := *ins
	if ins.OnConflict != nil && !ins.OnConflict.DoNothing {
		updatePolicy, err := CompileModelPolicy(r.schema, m.Name, schema.OpUpdate, r.auth, ctx.Alias)
		if err != nil {
			return nil, err
		}
		if updatePolicy != nil {
			oc := *ins.OnConflict
			if oc.Where != nil && oc.Where.Expr != nil {
				oc.Where = &ast.Where{Expr: ast.And(oc.Where.Expr, updatePolicy)}
			} else {
				oc.Where = &ast.Where{Expr: updatePolicy}
			}
			out.OnConflict = &oc
		}
	}
	return &out, nil
}

// rejectJoinTableInsert is rewriteInsert's many-to-many branch: it treats
// the join table as a synthetic model whose create rule is the AND of its
// two endpoints' read policies, and statically rejects the insert when
// either endpoint can never satisfy its read policy (no allow rule, or an
// unconditional deny) — the same static test rewriteInsert applies to an
// ordinary model's own create policy.
func (r *rewriter) rejectJoinTableInsert(ins *ast.Insert) error {
	modelA, modelB, ok := JoinTableEndpoints(r.schema, ins.Table.Name)
	if !ok {
		return nil
	}
	for _, m := range []*schema.Model{modelA, modelB} {
		allows, denies := schema.RulesFor(m.Policies, schema.OpRead)
		if m.HasPolicy(schema.OpRead) && len(allows) == 0 {
			return velox.NewRejectedByPolicyError(m.Name, "read", "no allow rule for read, required to link via "+ins.Table.Name)
		}
		for _, d := range denies {
			if isUnconditionalDeny(d) {
				return velox.NewRejectedByPolicyError(m.Name, "read", "unconditional deny rule, required to link via "+ins.Table.Name)
			}
		}
	}
	return nil
}

// rewriteUpdate ANDs the target model's update policy into WHERE, plus
// the read policy of any joined table (a FROM-using UPDATE), and statically
// rejects any SET target whose field-level update policy can never pass.
func (r *rewriter) rewriteUpdate(u *ast.Update, ctx RewriteContext) (*ast.Update, error) {
	m, err := r.schema.Model(u.Table.Name)
	if err != nil {
		return nil, velox.NewInternalError("policy.rewriteUpdate", err)
	}
	out := *u

	for _, set := range u.Set {
		col, ok := set.Left.(*ast.Column)
		if !ok {
			continue
		}
		f, ok := fieldByColumn(m, col.Name)
		if !ok {
			continue
		}
		rules, hasRules := m.FieldPolicies[f.Name]
		if !hasRules {
			continue
		}
		allows, denies := schema.RulesFor(rules, schema.OpUpdate)
		if len(allows) == 0 && len(denies) == 0 {
			continue
		}
		if len(allows) == 0 {
			return nil, velox.NewFieldRejectedByPolicyError(m.Name, "update", f.Name, "no allow rule for update")
		}
		for _, d := range denies {
			if isUnconditionalDeny(d) {
				return nil, velox.NewFieldRejectedByPolicyError(m.Name, "update", f.Name, "unconditional deny rule")
			}
		}
	}

	policyExpr, err := CompileModelPolicy(r.schema, m.Name, schema.OpUpdate, r.auth, ctx.Alias)
	if err != nil {
		return nil, err
	}
	if policyExpr != nil {
		out.Where = andWhere(u.Where, policyExpr)
	}

	if u.From != nil {
		wrapped, err := r.wrapWithPolicy(u.From.Table, schema.OpRead)
		if err != nil {
			return nil, err
		}
		out.From = &ast.From{Table: wrapped}
	}

	return &out, nil
}

// fieldByColumn reverse-looks-up the scalar field backing a physical
// column name, the inverse of Field.DBColumn, used where rewriting runs
// after fields have already been lowered to columns (UPDATE SET targets).
func fieldByColumn(m *schema.Model, colName string) (*schema.Field, bool) {
	for _, f := range m.Fields {
		if f.IsScalar() && f.DBColumn == colName {
			return f, true
		}
	}
	return nil, false
}

// rewriteDelete ANDs the target model's delete policy into WHERE.
func (r *rewriter) rewriteDelete(d *ast.Delete, ctx RewriteContext) (*ast.Delete, error) {
	m, err := r.schema.Model(d.Table.Name)
	if err != nil {
		return nil, velox.NewInternalError("policy.rewriteDelete", err)
	}
	out := *d

	policyExpr, err := CompileModelPolicy(r.schema, m.Name, schema.OpDelete, r.auth, ctx.Alias)
	if err != nil {
		return nil, err
	}
	if policyExpr != nil {
		out.Where = andWhere(d.Where, policyExpr)
	}

	if len(d.Using) > 0 {
		newUsing := make([]ast.Node, len(d.Using))
		for i, u := range d.Using {
			wrapped, err := r.wrapWithPolicy(u, schema.OpRead)
			if err != nil {
				return nil, err
			}
			newUsing[i] = wrapped
		}
		out.Using = newUsing
	}

	return &out, nil
}

func andWhere(w *ast.Where, extra ast.Node) *ast.Where {
	if w == nil || w.Expr == nil {
		return &ast.Where{Expr: extra}
	}
	return &ast.Where{Expr: ast.And(w.Expr, extra)}
}

// PrecreateCheck builds the `SELECT count(*) FROM (VALUES(...)) AS
// t(columns...) WHERE <create-policy>` probe for one row about to be
// inserted into model. The executor runs it and, on a zero count,
// raises RejectedByPolicyError before the INSERT executes.
func PrecreateCheck(s *schema.Schema, authValue any, model string, columns []string, row []ast.Node) (*ast.Select, error) {
	if _, err := s.Model(model); err != nil {
		return nil, err
	}
	const alias = "t"
	policyExpr, err := CompileModelPolicy(s, model, schema.OpCreate, authValue, alias)
	if err != nil {
		return nil, err
	}
	if policyExpr == nil {
		policyExpr = ast.Eq(ast.Lit(1), ast.Lit(1))
	}

	values := &ast.ValueList{Values: row}
	valuesTable := &ast.Alias{
		Expr: &ast.Function{Name: "VALUES", Args: []ast.Node{values}},
		As:   alias + "(" + joinColumns(columns) + ")",
	}

	count := &ast.Select{
		Columns: []ast.Selection{{Expr: &ast.Function{Name: "count", Star: true}}},
		From:    &ast.From{Table: valuesTable},
		Where:   &ast.Where{Expr: policyExpr},
	}
	return count, nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// ReadBack builds the post-write verification `SELECT <idColumns> FROM
// model AS alias WHERE id IN (ids...) AND <read-policy>`. The executor
// compares its row count against the number of ids written and raises
// RejectedByPolicyError on a mismatch.
func ReadBack(s *schema.Schema, authValue any, model string, idColumn string, ids []ast.Node) (*ast.Select, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, err
	}
	const alias = "rb"
	f, ok := m.Fields[idColumn]
	if !ok {
		return nil, fmt.Errorf("policy: %s has no field %q for read-back", model, idColumn)
	}
	policyExpr, err := CompileModelPolicy(s, model, schema.OpRead, authValue, alias)
	if err != nil {
		return nil, err
	}
	idCol := ast.QCol(alias, f.DBColumn)
	where := ast.In(idCol, &ast.ValueList{Values: ids})
	if policyExpr != nil {
		where = ast.And(where, policyExpr)
	}
	return &ast.Select{
		Columns: []ast.Selection{{Expr: idCol}},
		From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		Where:   &ast.Where{Expr: where},
	}, nil
}

