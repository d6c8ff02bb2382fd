// Package policy compiles schema.Expr policy conditions into SQL AST
// fragments and rewrites query/mutation trees to enforce them.
package policy

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// exprCompiler carries the per-call state needed to compile one policy
// expression tree: the schema, the operation it's being evaluated for (for
// currentOperation()), the caller-supplied auth value, and a counter used
// to mint fresh aliases for subqueries this compiler introduces.
type exprCompiler struct {
	schema   *schema.Schema
	op       schema.Operation
	auth     any
	aliasSeq int
}

// CompileExpr compiles expr, bound to model's row under alias, into a
// boolean SQL AST fragment. authValue is the caller's resolved principal,
// addressed by schema.Auth member paths as nested map[string]any.
func CompileExpr(s *schema.Schema, model string, op schema.Operation, authValue any, expr schema.Expr, alias string) (ast.Node, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, err
	}
	c := &exprCompiler{schema: s, op: op, auth: authValue}
	return c.compile(m, alias, expr)
}

// CompileModelPolicy composes the effective `OR(allows) AND NOT OR(denies)`
// boolean for model×op, or nil if the model declares no rule for op at all
// (meaning no filter applies — every row passes).
func CompileModelPolicy(s *schema.Schema, model string, op schema.Operation, authValue any, alias string) (ast.Node, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, err
	}
	if !m.HasPolicy(op) {
		return nil, nil
	}
	return compileRuleSet(s, m, op, authValue, alias, m.Policies)
}

// CompileFieldPolicy composes the same `OR(allows) AND NOT OR(denies)`
// boolean as CompileModelPolicy, scoped to one field's own rules rather
// than the model's. Returns nil when field declares no rule for op at all.
func CompileFieldPolicy(s *schema.Schema, model, field string, op schema.Operation, authValue any, alias string) (ast.Node, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, err
	}
	rules, ok := m.FieldPolicies[field]
	if !ok {
		return nil, nil
	}
	allows, denies := schema.RulesFor(rules, op)
	if len(allows) == 0 && len(denies) == 0 {
		return nil, nil
	}
	return compileRuleSet(s, m, op, authValue, alias, rules)
}

// JoinTableEndpoints resolves the two models an implicit many-to-many join
// table connects, ordered the same way joinTableColumns orders their A/B
// columns: alphabetically by model name, A to the lesser. Returns
// ok == false when joinTable doesn't back any many-to-many relation in s.
func JoinTableEndpoints(s *schema.Schema, joinTable string) (modelForA, modelForB *schema.Model, ok bool) {
	for _, m := range s.Models {
		for _, f := range m.Fields {
			rel := f.Relation
			if rel == nil || !rel.ManyToMany || rel.JoinTable != joinTable {
				continue
			}
			target, err := s.Model(rel.Model)
			if err != nil {
				continue
			}
			if m.Name <= target.Name {
				return m, target, true
			}
			return target, m, true
		}
	}
	return nil, nil, false
}

func compileRuleSet(s *schema.Schema, m *schema.Model, op schema.Operation, authValue any, alias string, rules []schema.PolicyRule) (ast.Node, error) {
	allows, denies := schema.RulesFor(rules, op)
	c := &exprCompiler{schema: s, op: op, auth: authValue}

	var allowExpr ast.Node
	if len(allows) == 0 {
		allowExpr = constantFalse()
	} else {
		nodes := make([]ast.Node, 0, len(allows))
		for _, r := range allows {
			n, err := c.compile(m, alias, r.Condition)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		allowExpr = ast.Or(nodes...)
	}

	if len(denies) == 0 {
		return &ast.Parens{Expr: allowExpr}, nil
	}
	denyNodes := make([]ast.Node, 0, len(denies))
	for _, r := range denies {
		n, err := c.compile(m, alias, r.Condition)
		if err != nil {
			return nil, err
		}
		denyNodes = append(denyNodes, n)
	}
	return ast.And(allowExpr, ast.Not(ast.Or(denyNodes...))), nil
}

// constantFalse renders a dialect-neutral `1 = 0`, used when a model has
// policy rules for an operation but zero `allow`s: every row is rejected.
func constantFalse() ast.Node {
	return ast.Eq(ast.Lit(1), ast.Lit(0))
}

func (c *exprCompiler) nextAlias() string {
	c.aliasSeq++
	return fmt.Sprintf("pc%d", c.aliasSeq)
}

func (c *exprCompiler) compile(m *schema.Model, alias string, e schema.Expr) (ast.Node, error) {
	switch t := e.(type) {
	case schema.This:
		return nil, fmt.Errorf("policy: bare `this` is only meaningful in an identity comparison")
	case schema.Auth:
		return c.compileAuthMember(t.Member)
	case schema.Ref:
		f, ok := m.Fields[t.Field]
		if !ok || !f.IsScalar() {
			return nil, fmt.Errorf("policy: %s.%s is not a scalar field", m.Name, t.Field)
		}
		return ast.QCol(alias, f.DBColumn), nil
	case schema.Member:
		return c.compileMember(m, alias, t)
	case schema.Literal:
		return ast.Lit(t.Value), nil
	case schema.BinaryOp:
		return c.compileBinaryOp(m, alias, t)
	case schema.UnaryOp:
		return c.compileUnaryOp(m, alias, t)
	case schema.CollectionPredicate:
		return c.compileCollectionPredicate(m, alias, t)
	case schema.Call:
		return c.compileCall(m, alias, t)
	case schema.Check:
		return c.compileCheck(m, alias, t)
	default:
		return nil, fmt.Errorf("policy: unsupported expression %T", e)
	}
}

func isIdentity(e schema.Expr) bool {
	switch t := e.(type) {
	case schema.This:
		return true
	case schema.Auth:
		return t.Member == ""
	}
	return false
}

func (c *exprCompiler) compileBinaryOp(m *schema.Model, alias string, b schema.BinaryOp) (ast.Node, error) {
	switch b.Op {
	case "&&":
		l, err := c.compile(m, alias, b.Left)
		if err != nil {
			return nil, err
		}
		r, err := c.compile(m, alias, b.Right)
		if err != nil {
			return nil, err
		}
		return ast.And(l, r), nil
	case "||":
		l, err := c.compile(m, alias, b.Left)
		if err != nil {
			return nil, err
		}
		r, err := c.compile(m, alias, b.Right)
		if err != nil {
			return nil, err
		}
		return ast.Or(l, r), nil
	case "==", "!=":
		if isIdentity(b.Left) || isIdentity(b.Right) {
			return c.compileIdentityEquality(m, alias, b)
		}
		l, r, err := c.compilePair(m, alias, b.Left, b.Right)
		if err != nil {
			return nil, err
		}
		op := "="
		if b.Op == "!=" {
			op = "<>"
		}
		return &ast.BinaryOp{Op: op, Left: l, Right: r}, nil
	case "<", "<=", ">", ">=":
		l, r, err := c.compilePair(m, alias, b.Left, b.Right)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: b.Op, Left: l, Right: r}, nil
	case "in":
		l, err := c.compile(m, alias, b.Left)
		if err != nil {
			return nil, err
		}
		var r ast.Node
		if lit, ok := b.Right.(schema.Literal); ok {
			r, err = compileLiteralList(lit.Value)
		} else {
			r, err = c.compile(m, alias, b.Right)
		}
		if err != nil {
			return nil, err
		}
		return ast.In(l, r), nil
	default:
		return nil, fmt.Errorf("policy: unsupported operator %q", b.Op)
	}
}

func (c *exprCompiler) compilePair(m *schema.Model, alias string, left, right schema.Expr) (ast.Node, ast.Node, error) {
	l, err := c.compile(m, alias, left)
	if err != nil {
		return nil, nil, err
	}
	r, err := c.compile(m, alias, right)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func compileLiteralList(v any) (ast.Node, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("policy: right-hand side of `in` must be a list, got %T", v)
	}
	vals := make([]ast.Node, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		vals[i] = ast.Lit(rv.Index(i).Interface())
	}
	return &ast.ValueList{Values: vals}, nil
}

// compileIdentityEquality handles `this == auth()` (and its negation and
// either-order variant): the only place `this`/bare `auth()` are legal.
// Both sides resolve to a model's id-field tuple; the comparison reduces to
// id equality against the auth value's own id. `auth() == null` (and `!=`)
// folds to a constant true/false from whether the auth value is nil.
func (c *exprCompiler) compileIdentityEquality(m *schema.Model, alias string, b schema.BinaryOp) (ast.Node, error) {
	_, leftAuth := b.Left.(schema.Auth)
	_, rightAuth := b.Right.(schema.Auth)
	var other schema.Expr
	switch {
	case isIdentity(b.Left) && isIdentity(b.Right):
		if leftAuth == rightAuth {
			return nil, fmt.Errorf("policy: identity comparison must be `this == auth()` or its negation")
		}
		other = b.Right
	case isIdentity(b.Left):
		other = b.Right
	default:
		other = b.Left
	}
	if lit, ok := other.(schema.Literal); ok && lit.Value == nil && (leftAuth || rightAuth) {
		if (c.auth == nil) == (b.Op == "==") {
			return ast.Eq(ast.Lit(1), ast.Lit(1)), nil
		}
		return constantFalse(), nil
	}
	if !isIdentity(other) {
		// other is not itself `auth()`/`this`; not supported — identity
		// comparisons only make sense against the opposite identity.
		return nil, fmt.Errorf("policy: identity comparison must be `this == auth()` or its negation")
	}

	authID, err := c.resolveAuthID()
	if err != nil {
		return nil, err
	}
	ids := m.IDFields()
	if len(ids) == 0 {
		return nil, fmt.Errorf("policy: model %s has no id field for identity comparison", m.Name)
	}
	eq := ast.Eq(ast.QCol(alias, m.Fields[ids[0]].DBColumn), ast.Lit(authID))
	var result ast.Node = eq
	if len(ids) > 1 {
		// Composite ids: AND together only the fields we can resolve; a
		// single-field match is the common case this compiler targets.
		conds := []ast.Node{eq}
		for _, id := range ids[1:] {
			conds = append(conds, ast.Eq(ast.QCol(alias, m.Fields[id].DBColumn), ast.Lit(authID)))
		}
		result = ast.And(conds...)
	}
	if b.Op == "!=" {
		return ast.Not(result), nil
	}
	return result, nil
}

func (c *exprCompiler) resolveAuthID() (any, error) {
	if !c.schema.HasAuthModel() {
		return nil, fmt.Errorf("policy: auth() used without an auth model configured on the schema")
	}
	am, err := c.schema.Model(c.schema.AuthModel)
	if err != nil {
		return nil, err
	}
	ids := am.IDFields()
	if len(ids) != 1 {
		return nil, fmt.Errorf("policy: auth() identity comparison requires %s to have a single-field id", am.Name)
	}
	return c.resolveAuthPath(ids[0]), nil
}

// resolveAuthPath walks dotted path segments through the auth value,
// which is expected to be a nested map[string]any (the resolved principal
// claims). A missing intermediate segment resolves to nil, matching the
// spec's "missing intermediate members are null" rule.
func (c *exprCompiler) resolveAuthPath(path string) any {
	var cur any = c.auth
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := m[seg]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func (c *exprCompiler) compileAuthMember(member string) (ast.Node, error) {
	if member == "" {
		return nil, fmt.Errorf("policy: bare `auth()` is only valid in an identity comparison")
	}
	return ast.Lit(c.resolveAuthPath(member)), nil
}

func (c *exprCompiler) compileMember(m *schema.Model, alias string, mem schema.Member) (ast.Node, error) {
	switch base := mem.Base.(type) {
	case schema.Auth:
		full := mem.Path
		if base.Member != "" {
			full = base.Member + "." + mem.Path
		}
		return c.compileAuthMember(full)
	case schema.This:
		return c.compileFieldPath(m, alias, mem.Path)
	case schema.Ref:
		return c.compileFieldPath(m, alias, base.Field+"."+mem.Path)
	default:
		return nil, fmt.Errorf("policy: unsupported member base %T", mem.Base)
	}
}

// compileFieldPath resolves a dotted field path against m, hopping through
// to-one relations via correlated scalar subqueries when the path crosses
// a relation boundary.
func (c *exprCompiler) compileFieldPath(m *schema.Model, alias, path string) (ast.Node, error) {
	head, rest, hasRest := strings.Cut(path, ".")
	f, ok := m.Fields[head]
	if !ok {
		return nil, fmt.Errorf("policy: unknown field %s.%s", m.Name, head)
	}
	if !hasRest {
		if !f.IsScalar() {
			return nil, fmt.Errorf("policy: %s.%s is a relation, not a scalar", m.Name, head)
		}
		return ast.QCol(alias, f.DBColumn), nil
	}
	if f.Relation == nil {
		return nil, fmt.Errorf("policy: %s.%s is not a relation, cannot continue path %q", m.Name, head, path)
	}
	return c.compileRelationScalar(m, alias, f, rest)
}

func (c *exprCompiler) compileRelationScalar(m *schema.Model, alias string, relField *schema.Field, restPath string) (ast.Node, error) {
	target, err := c.schema.Model(relField.Relation.Model)
	if err != nil {
		return nil, err
	}
	subAlias := c.nextAlias()
	joinCond, err := c.buildJoinCondition(m, alias, relField, target, subAlias)
	if err != nil {
		return nil, err
	}
	inner, err := c.compileFieldPath(target, subAlias, restPath)
	if err != nil {
		return nil, err
	}
	one := 1
	sub := &ast.Select{
		Columns: []ast.Selection{{Expr: inner}},
		// Table is named logically so the name-mapping rewriter (which
		// runs after the policy rewriter) still renames and star-expands
		// it; the field reference above already used the physical column
		// name directly, which the rewriter leaves untouched on a lookup
		// miss, so the two passes compose without double-mapping.
		From:  &ast.From{Table: ast.AliasOf(&ast.Table{Name: target.Name}, subAlias)},
		Where: &ast.Where{Expr: joinCond},
		Limit: &one,
	}
	return &ast.Parens{Expr: sub}, nil
}

// buildJoinCondition produces the equality predicate linking a row of m
// (under alias) to the relation target (under subAlias) through a to-one
// or to-many (non-many-to-many) relation, from whichever side owns the FK.
func (c *exprCompiler) buildJoinCondition(m *schema.Model, alias string, relField *schema.Field, target *schema.Model, subAlias string) (ast.Node, error) {
	rel := relField.Relation
	if rel.ManyToMany {
		return nil, fmt.Errorf("policy: %s.%s is many-to-many; use a collection predicate instead", m.Name, relField.Name)
	}
	if rel.IsOwning() {
		conds := make([]ast.Node, len(rel.Fields))
		for i, lf := range rel.Fields {
			localField := m.Fields[lf]
			targetField := target.Fields[rel.References[i]]
			conds[i] = ast.Eq(ast.QCol(alias, localField.DBColumn), ast.QCol(subAlias, targetField.DBColumn))
		}
		return ast.And(conds...), nil
	}
	oppField, ok := target.Fields[rel.Opposite]
	if !ok || oppField.Relation == nil {
		return nil, fmt.Errorf("policy: relation %s.%s has no usable opposite on %s", m.Name, relField.Name, target.Name)
	}
	oppRel := oppField.Relation
	conds := make([]ast.Node, len(oppRel.Fields))
	for i, rf := range oppRel.Fields {
		targetField := target.Fields[rf]
		localField := m.Fields[oppRel.References[i]]
		conds[i] = ast.Eq(ast.QCol(subAlias, targetField.DBColumn), ast.QCol(alias, localField.DBColumn))
	}
	return ast.And(conds...), nil
}

// buildToManyJoin is buildJoinCondition generalized to many-to-many: the
// target row qualifies if its id appears in a subselect over the implicit
// join table filtered to this row's id. The join table's two FK columns are
// always named A and B (assigned by joinTableColumns, the same ordering
// planner/create.go's orderedJoinPair uses when it populates them), never by
// model name.
func (c *exprCompiler) buildToManyJoin(m *schema.Model, alias string, relField *schema.Field, target *schema.Model, subAlias string) (ast.Node, error) {
	rel := relField.Relation
	if !rel.ManyToMany {
		return c.buildJoinCondition(m, alias, relField, target, subAlias)
	}
	mCol, targetCol := joinTableColumns(m.Name, target.Name)
	inner := &ast.Select{
		Columns: []ast.Selection{{Expr: ast.Col(targetCol)}},
		From:    &ast.From{Table: &ast.Table{Name: rel.JoinTable}},
		Where:   &ast.Where{Expr: ast.Eq(ast.Col(mCol), ast.QCol(alias, idColumn(m)))},
	}
	return ast.In(ast.QCol(subAlias, idColumn(target)), &ast.Parens{Expr: inner}), nil
}

// joinTableColumns reports which of the implicit join table's fixed A/B
// columns holds each side's id, ordered the same way orderedJoinPair orders
// the values it inserts into them: alphabetically by model name.
func joinTableColumns(modelA, modelB string) (a, b string) {
	if modelA <= modelB {
		return "A", "B"
	}
	return "B", "A"
}

func idColumn(m *schema.Model) string {
	ids := m.IDFields()
	if len(ids) == 0 {
		return "id"
	}
	return m.Fields[ids[0]].DBColumn
}

// selectExists builds `SELECT 1 FROM <target> AS <subAlias> WHERE <where>`.
// target is named logically (see compileRelationScalar) for the same
// name-mapping-composition reason.
func selectExists(target *schema.Model, subAlias string, where ast.Node) *ast.Select {
	return &ast.Select{
		Columns: []ast.Selection{{Expr: ast.Lit(1)}},
		From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: target.Name}, subAlias)},
		Where:   &ast.Where{Expr: where},
	}
}

func (c *exprCompiler) compileUnaryOp(m *schema.Model, alias string, u schema.UnaryOp) (ast.Node, error) {
	if u.Op != "!" {
		return nil, fmt.Errorf("policy: unsupported unary operator %q", u.Op)
	}
	inner, err := c.compile(m, alias, u.Operand)
	if err != nil {
		return nil, err
	}
	return ast.Not(inner), nil
}

func (c *exprCompiler) compileCollectionPredicate(m *schema.Model, alias string, cp schema.CollectionPredicate) (ast.Node, error) {
	f, ok := m.Fields[cp.Field]
	if !ok || f.Relation == nil {
		return nil, fmt.Errorf("policy: %s.%s is not a relation field", m.Name, cp.Field)
	}
	target, err := c.schema.Model(f.Relation.Model)
	if err != nil {
		return nil, err
	}
	subAlias := c.nextAlias()
	joinCond, err := c.buildToManyJoin(m, alias, f, target, subAlias)
	if err != nil {
		return nil, err
	}
	condExpr, err := c.compile(target, subAlias, cp.Cond)
	if err != nil {
		return nil, err
	}

	switch cp.Kind {
	case schema.CollectionSome:
		return ast.Exists(selectExists(target, subAlias, ast.And(joinCond, condExpr))), nil
	case schema.CollectionEvery:
		return ast.NotExists(selectExists(target, subAlias, ast.And(joinCond, ast.Not(condExpr)))), nil
	case schema.CollectionNone:
		return ast.NotExists(selectExists(target, subAlias, ast.And(joinCond, condExpr))), nil
	default:
		return nil, fmt.Errorf("policy: unknown collection predicate kind %d", cp.Kind)
	}
}

// compileCheck inlines rel.model's own effective policy for chk.Operation,
// joined through the relation: `check(rel, op)` delegates visibility to
// whatever rule already governs the related model.
func (c *exprCompiler) compileCheck(m *schema.Model, alias string, chk schema.Check) (ast.Node, error) {
	f, ok := m.Fields[chk.Field]
	if !ok || f.Relation == nil {
		return nil, fmt.Errorf("policy: check(%s, ...) is not a relation field on %s", chk.Field, m.Name)
	}
	target, err := c.schema.Model(f.Relation.Model)
	if err != nil {
		return nil, err
	}
	subAlias := c.nextAlias()
	joinCond, err := c.buildToManyJoin(m, alias, f, target, subAlias)
	if err != nil {
		return nil, err
	}
	policyExpr, err := CompileModelPolicy(c.schema, target.Name, schema.Operation(chk.Operation), c.auth, subAlias)
	if err != nil {
		return nil, err
	}
	where := joinCond
	if policyExpr != nil {
		where = ast.And(joinCond, policyExpr)
	}
	return ast.Exists(selectExists(target, subAlias, where)), nil
}

func (c *exprCompiler) compileCall(m *schema.Model, alias string, call schema.Call) (ast.Node, error) {
	switch call.Name {
	case "contains", "startsWith", "endsWith":
		if len(call.Args) != 2 {
			return nil, fmt.Errorf("policy: %s() takes exactly 2 arguments", call.Name)
		}
		col, err := c.compile(m, alias, call.Args[0])
		if err != nil {
			return nil, err
		}
		needle, err := c.compile(m, alias, call.Args[1])
		if err != nil {
			return nil, err
		}
		var pattern ast.Node
		switch call.Name {
		case "contains":
			pattern = &ast.BinaryOp{Op: "||", Left: &ast.BinaryOp{Op: "||", Left: ast.Lit("%"), Right: needle}, Right: ast.Lit("%")}
		case "startsWith":
			pattern = &ast.BinaryOp{Op: "||", Left: needle, Right: ast.Lit("%")}
		case "endsWith":
			pattern = &ast.BinaryOp{Op: "||", Left: ast.Lit("%"), Right: needle}
		}
		return &ast.BinaryOp{Op: "LIKE", Left: col, Right: pattern}, nil

	case "has":
		if len(call.Args) != 2 {
			return nil, fmt.Errorf("policy: has() takes exactly 2 arguments")
		}
		col, err := c.compile(m, alias, call.Args[0])
		if err != nil {
			return nil, err
		}
		elem, err := c.compile(m, alias, call.Args[1])
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: "=", Left: elem, Right: &ast.Function{Name: "ANY", Args: []ast.Node{col}}}, nil

	case "hasEvery", "hasSome":
		if len(call.Args) != 2 {
			return nil, fmt.Errorf("policy: %s() takes exactly 2 arguments", call.Name)
		}
		lit, ok := call.Args[1].(schema.Literal)
		if !ok {
			return nil, fmt.Errorf("policy: %s()'s second argument must be a literal list", call.Name)
		}
		rv := reflect.ValueOf(lit.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("policy: %s()'s second argument must be a list", call.Name)
		}
		col, err := c.compile(m, alias, call.Args[0])
		if err != nil {
			return nil, err
		}
		preds := make([]ast.Node, rv.Len())
		for i := range preds {
			preds[i] = &ast.BinaryOp{Op: "=", Left: ast.Lit(rv.Index(i).Interface()), Right: &ast.Function{Name: "ANY", Args: []ast.Node{col}}}
		}
		if call.Name == "hasEvery" {
			return ast.And(preds...), nil
		}
		return ast.Or(preds...), nil

	case "isEmpty":
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("policy: isEmpty() takes exactly 1 argument")
		}
		col, err := c.compile(m, alias, call.Args[0])
		if err != nil {
			return nil, err
		}
		return ast.Eq(&ast.Function{Name: "cardinality", Args: []ast.Node{col}}, ast.Lit(0)), nil

	case "now":
		return ast.Lit(time.Now()), nil

	case "currentModel":
		return ast.Lit(applyCasing(m.Name, casingArg(call.Args))), nil

	case "currentOperation":
		return ast.Lit(applyCasing(string(c.op), casingArg(call.Args))), nil

	default:
		return nil, fmt.Errorf("policy: unknown function %q", call.Name)
	}
}

func casingArg(args []schema.Expr) schema.Casing {
	if len(args) == 0 {
		return schema.CasingNone
	}
	if lit, ok := args[0].(schema.Literal); ok {
		if s, ok := lit.Value.(string); ok {
			return schema.Casing(s)
		}
	}
	return schema.CasingNone
}

func applyCasing(s string, casing schema.Casing) string {
	switch casing {
	case schema.CasingCamelCase:
		return inflect.CamelizeDownFirst(s)
	case schema.CasingPascalCase:
		return inflect.Camelize(s)
	default:
		return s
	}
}
