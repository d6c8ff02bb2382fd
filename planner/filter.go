package planner

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// caseFolder is the Unicode-aware case folder `mode: insensitive` literals
// are run through before being bound as query parameters, so "Ü" and "ü"
// compare equal the way simple ASCII lower-casing would not.
var caseFolder = cases.Fold()

// filterCompiler turns a Prisma-shaped nested Where map into a SQL AST
// boolean expression bound to a model row under alias, resolving relation
// filters into correlated EXISTS subqueries the same way the policy
// expression compiler resolves collection predicates.
type filterCompiler struct {
	schema   *schema.Schema
	aliasSeq int
}

func newFilterCompiler(s *schema.Schema) *filterCompiler {
	return &filterCompiler{schema: s}
}

func (c *filterCompiler) nextAlias() string {
	c.aliasSeq++
	return fmt.Sprintf("pl%d", c.aliasSeq)
}

// CompileWhere compiles where against model's row under alias. A nil/empty
// map compiles to nil (no filter).
func (c *filterCompiler) CompileWhere(m *schema.Model, alias string, where map[string]any) (ast.Node, error) {
	if len(where) == 0 {
		return nil, nil
	}
	// Deterministic key order keeps generated SQL (and alias numbering)
	// stable across calls with the same logical filter.
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var preds []ast.Node
	for _, key := range keys {
		v := where[key]
		switch key {
		case "AND":
			n, err := c.compileConjunctionList(m, alias, v, "AND")
			if err != nil {
				return nil, err
			}
			preds = append(preds, n)
		case "OR":
			n, err := c.compileConjunctionList(m, alias, v, "OR")
			if err != nil {
				return nil, err
			}
			preds = append(preds, n)
		case "NOT":
			n, err := c.compileConjunctionList(m, alias, v, "AND")
			if err != nil {
				return nil, err
			}
			preds = append(preds, ast.Not(n))
		default:
			n, err := c.compileField(m, alias, key, v)
			if err != nil {
				return nil, err
			}
			preds = append(preds, n)
		}
	}
	return ast.And(preds...), nil
}

// compileConjunctionList handles AND/OR/NOT's value shape: either a single
// where-map or a list of them.
func (c *filterCompiler) compileConjunctionList(m *schema.Model, alias string, v any, op string) (ast.Node, error) {
	var maps []map[string]any
	switch t := v.(type) {
	case map[string]any:
		maps = []map[string]any{t}
	case []any:
		for _, e := range t {
			mm, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("planner: AND/OR/NOT entries must be filter objects, got %T", e)
			}
			maps = append(maps, mm)
		}
	case []map[string]any:
		maps = t
	default:
		return nil, fmt.Errorf("planner: unsupported AND/OR/NOT value %T", v)
	}
	nodes := make([]ast.Node, 0, len(maps))
	for _, mm := range maps {
		n, err := c.CompileWhere(m, alias, mm)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	if op == "OR" {
		return ast.Or(nodes...), nil
	}
	return ast.And(nodes...), nil
}

func (c *filterCompiler) compileField(m *schema.Model, alias, field string, v any) (ast.Node, error) {
	f, ok := m.Fields[field]
	if !ok {
		return nil, fmt.Errorf("planner: unknown field %s.%s in where clause", m.Name, field)
	}
	if f.IsScalar() {
		return c.compileScalarFilter(ast.QCol(alias, f.DBColumn), v)
	}
	return c.compileRelationFilter(m, alias, f, v)
}

// compileScalarFilter interprets v against col: a bare (non-map) value means
// implicit `equals`; a map carries one or more operator keys, ANDed.
func (c *filterCompiler) compileScalarFilter(col *ast.Column, v any) (ast.Node, error) {
	opMap, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return &ast.BinaryOp{Op: "IS", Left: col, Right: ast.Raw("NULL")}, nil
		}
		return ast.Eq(col, ast.Lit(v)), nil
	}

	keys := make([]string, 0, len(opMap))
	for k := range opMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	insensitive := false
	if m, ok := opMap["mode"]; ok {
		insensitive = m == "insensitive"
	}
	var matchCol ast.Node = col
	fold := identity
	if insensitive {
		matchCol = foldedColumn(col)
		fold = caseFold
	}

	var preds []ast.Node
	for _, op := range keys {
		val := opMap[op]
		switch op {
		case "equals":
			if val == nil {
				preds = append(preds, &ast.BinaryOp{Op: "IS", Left: col, Right: ast.Raw("NULL")})
			} else {
				preds = append(preds, ast.Eq(matchCol, ast.Lit(fold(val))))
			}
		case "not":
			inner, err := c.compileScalarFilter(col, val)
			if err != nil {
				return nil, err
			}
			preds = append(preds, ast.Not(inner))
		case "in":
			preds = append(preds, ast.In(matchCol, literalList(foldList(val, fold))))
		case "notIn":
			preds = append(preds, ast.Not(ast.In(matchCol, literalList(foldList(val, fold)))))
		case "lt":
			preds = append(preds, ast.Lt(col, ast.Lit(val)))
		case "lte":
			preds = append(preds, ast.Lte(col, ast.Lit(val)))
		case "gt":
			preds = append(preds, ast.Gt(col, ast.Lit(val)))
		case "gte":
			preds = append(preds, ast.Gte(col, ast.Lit(val)))
		case "contains":
			preds = append(preds, likePattern(matchCol, "%", fold(val), "%"))
		case "startsWith":
			preds = append(preds, likePattern(matchCol, "", fold(val), "%"))
		case "endsWith":
			preds = append(preds, likePattern(matchCol, "%", fold(val), ""))
		case "mode":
			// consumed above, up front, since it modifies how every other
			// operator in this same map compares rather than contributing
			// a predicate of its own.
			continue
		default:
			return nil, fmt.Errorf("planner: unsupported filter operator %q", op)
		}
	}
	return ast.And(preds...), nil
}

func likePattern(col ast.Node, prefix string, needle any, suffix string) ast.Node {
	s, _ := needle.(string)
	return &ast.BinaryOp{Op: "LIKE", Left: col, Right: ast.Lit(prefix + s + suffix)}
}

// identity leaves a filter operand untouched: the mode: default path.
func identity(v any) any { return v }

// caseFold runs a string operand through Unicode case folding so an
// insensitive comparison matches regardless of the literal's original
// casing; non-string operands pass through unchanged.
func caseFold(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return caseFolder.String(s)
}

// foldList applies fold to every element of an `in`/`notIn` operand list.
func foldList(v any, fold func(any) any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	for i, e := range list {
		out[i] = fold(e)
	}
	return out
}

// foldedColumn wraps col in SQL LOWER(...) so an insensitive comparison's
// column side matches the ASCII-range behavior of caseFold's literal side.
func foldedColumn(col *ast.Column) ast.Node {
	return &ast.Function{Name: "LOWER", Args: []ast.Node{col}}
}

func literalList(v any) ast.Node {
	list, ok := v.([]any)
	if !ok {
		return &ast.ValueList{Values: []ast.Node{ast.Lit(v)}}
	}
	vals := make([]ast.Node, len(list))
	for i, e := range list {
		vals[i] = ast.Lit(e)
	}
	return &ast.ValueList{Values: vals}
}

// compileRelationFilter handles {is,isNot} (to-one) and {some,every,none}
// (to-many) relation filters, each compiling to an EXISTS/NOT EXISTS over a
// correlated subquery joined through the relation's keys.
func (c *filterCompiler) compileRelationFilter(m *schema.Model, alias string, f *schema.Field, v any) (ast.Node, error) {
	target, err := c.schema.Model(f.Relation.Model)
	if err != nil {
		return nil, err
	}
	opMap, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("planner: relation filter %s.%s must be an object", m.Name, f.Name)
	}
	subAlias := c.nextAlias()
	joinCond, err := buildJoinCondition(m, alias, f, target, subAlias)
	if err != nil {
		return nil, err
	}

	for op, sub := range opMap {
		subWhere, _ := sub.(map[string]any)
		switch op {
		case "is":
			cond, err := c.CompileWhere(target, subAlias, subWhere)
			if err != nil {
				return nil, err
			}
			return ast.Exists(existsSelect(target, subAlias, ast.And(joinCond, cond))), nil
		case "isNot":
			cond, err := c.CompileWhere(target, subAlias, subWhere)
			if err != nil {
				return nil, err
			}
			return ast.NotExists(existsSelect(target, subAlias, ast.And(joinCond, cond))), nil
		case "some":
			cond, err := c.CompileWhere(target, subAlias, subWhere)
			if err != nil {
				return nil, err
			}
			return ast.Exists(existsSelect(target, subAlias, ast.And(joinCond, cond))), nil
		case "every":
			cond, err := c.CompileWhere(target, subAlias, subWhere)
			if err != nil {
				return nil, err
			}
			return ast.NotExists(existsSelect(target, subAlias, ast.And(joinCond, ast.Not(cond)))), nil
		case "none":
			cond, err := c.CompileWhere(target, subAlias, subWhere)
			if err != nil {
				return nil, err
			}
			return ast.NotExists(existsSelect(target, subAlias, ast.And(joinCond, cond))), nil
		default:
			return nil, fmt.Errorf("planner: unsupported relation filter operator %q on %s.%s", op, m.Name, f.Name)
		}
	}
	return nil, fmt.Errorf("planner: empty relation filter on %s.%s", m.Name, f.Name)
}

func existsSelect(target *schema.Model, alias string, where ast.Node) *ast.Select {
	return &ast.Select{
		Columns: []ast.Selection{{Expr: ast.Lit(1)}},
		From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: target.Name}, alias)},
		Where:   &ast.Where{Expr: where},
	}
}

// buildJoinCondition links a row of m (under alias) to target (under
// subAlias) through relField, from whichever side owns the FK, or via the
// implicit join table for many-to-many.
func buildJoinCondition(m *schema.Model, alias string, relField *schema.Field, target *schema.Model, subAlias string) (ast.Node, error) {
	rel := relField.Relation
	if rel.ManyToMany {
		localID := idColumn(m)
		targetID := idColumn(target)
		localCol, targetCol := "A", "B"
		if m.Name > target.Name {
			localCol, targetCol = "B", "A"
		}
		inner := &ast.Select{
			Columns: []ast.Selection{{Expr: ast.Col(targetCol)}},
			From:    &ast.From{Table: &ast.Table{Name: rel.JoinTable}},
			Where:   &ast.Where{Expr: ast.Eq(ast.Col(localCol), ast.QCol(alias, localID))},
		}
		return ast.In(ast.QCol(subAlias, targetID), &ast.Parens{Expr: inner}), nil
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
		return nil, fmt.Errorf("planner: relation %s.%s has no usable opposite on %s", m.Name, relField.Name, target.Name)
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

func idColumn(m *schema.Model) string {
	ids := m.IDFields()
	if len(ids) == 0 {
		return "id"
	}
	return m.Fields[ids[0]].DBColumn
}

// idFieldName returns m's primary-key field by its logical name, for
// contexts (like Step.ReadBackIDColumn) that get resolved against
// schema.Model.Fields downstream rather than embedded directly into SQL.
func idFieldName(m *schema.Model) string {
	ids := m.IDFields()
	if len(ids) == 0 {
		return "id"
	}
	return ids[0]
}
