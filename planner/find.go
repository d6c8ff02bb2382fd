package planner

import (
	"fmt"
	"sort"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// findPlan carries a find statement plus the bits of metadata the executor
// needs but that don't fit in the AST itself.
type findPlan struct {
	Select *ast.Select
	// DistinctFields, when non-empty and InMemoryDistinct is true, tells the
	// executor to deduplicate the fetched rows in memory keyed by a
	// JSON-encoded tuple of these (logical) fields, preserving first
	// occurrence under the query's order — the SQLite-like fallback for
	// dialects lacking DISTINCT ON.
	DistinctFields   []string
	InMemoryDistinct bool
}

func buildFind(s *schema.Schema, m *schema.Model, alias string, args Args) (*findPlan, error) {
	fc := newFilterCompiler(s)

	sel := &ast.Select{
		From: &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
	}

	where, err := fc.CompileWhere(m, alias, args.Where)
	if err != nil {
		return nil, err
	}
	if where != nil {
		sel.Where = &ast.Where{Expr: where}
	}

	order := effectiveOrder(m, args)
	negate := args.Take < 0
	for _, o := range order {
		f, ok := m.Fields[o.Field]
		if !ok {
			return nil, fmt.Errorf("planner: unknown orderBy field %s.%s", m.Name, o.Field)
		}
		desc := o.Desc
		if negate {
			desc = !desc
		}
		sel.OrderBy = append(sel.OrderBy, ast.OrderTerm{Expr: ast.QCol(alias, f.DBColumn), Desc: desc})
	}

	if args.Cursor != nil {
		pred, err := buildCursorPredicate(m, alias, order, negate, args.Cursor.Fields)
		if err != nil {
			return nil, err
		}
		sel.Where = &ast.Where{Expr: ast.And(optionalExpr(sel.Where), pred)}
	}

	if args.Skip > 0 {
		off := args.Skip
		sel.Offset = &off
	}
	if args.Take != 0 {
		n := args.Take
		if n < 0 {
			n = -n
		}
		sel.Limit = &n
	}

	fp := &findPlan{}
	distinctOnCols, inMemory := planDistinct(args.Adapter, m, alias, args.Distinct)
	if len(args.Distinct) > 0 {
		if inMemory {
			fp.DistinctFields = args.Distinct
			fp.InMemoryDistinct = true
		} else {
			sel.DistinctOn = distinctOnCols
		}
	}

	cols, err := buildProjection(s, m, alias, args)
	if err != nil {
		return nil, err
	}
	sel.Columns = cols

	fp.Select = sel
	return fp, nil
}

func optionalExpr(w *ast.Where) ast.Node {
	if w == nil {
		return nil
	}
	return w.Expr
}

// effectiveOrder returns args.OrderBy, falling back to an order over id
// fields when absent but skip/take/cursor require a deterministic order.
func effectiveOrder(m *schema.Model, args Args) []OrderBy {
	if len(args.OrderBy) > 0 {
		return args.OrderBy
	}
	if args.Skip > 0 || args.Take != 0 || args.Cursor != nil {
		order := make([]OrderBy, 0, len(m.IDFields()))
		for _, id := range m.IDFields() {
			order = append(order, OrderBy{Field: id})
		}
		return order
	}
	return nil
}

// buildCursorPredicate builds the keyset predicate for cursor pagination
// step 5: for each tie-break prefix of length i, AND equality on 0..i-1 with
// a >=/<= on position i (direction flipped when negate is set), OR'd
// together across all prefixes.
func buildCursorPredicate(m *schema.Model, alias string, order []OrderBy, negate bool, cursorFields map[string]any) (ast.Node, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("planner: cursor requires an effective order")
	}
	cols := make([]*ast.Column, len(order))
	vals := make([]ast.Node, len(order))
	for i, o := range order {
		f, ok := m.Fields[o.Field]
		if !ok {
			return nil, fmt.Errorf("planner: unknown orderBy field %s.%s", m.Name, o.Field)
		}
		cv, ok := cursorFields[o.Field]
		if !ok {
			return nil, fmt.Errorf("planner: cursor missing value for field %s", o.Field)
		}
		cols[i] = ast.QCol(alias, f.DBColumn)
		vals[i] = ast.Lit(cv)
	}

	var branches []ast.Node
	for i := range order {
		var eqs []ast.Node
		for j := 0; j < i; j++ {
			eqs = append(eqs, ast.Eq(cols[j], vals[j]))
		}
		desc := order[i].Desc
		if negate {
			desc = !desc
		}
		var tie ast.Node
		if desc {
			tie = ast.Lte(cols[i], vals[i])
		} else {
			tie = ast.Gte(cols[i], vals[i])
		}
		eqs = append(eqs, tie)
		branches = append(branches, ast.And(eqs...))
	}
	return ast.Or(branches...), nil
}

// planDistinct decides whether distinct fields can use DISTINCT ON or must
// fall back to in-memory dedup, per the bound adapter's own capability
// report rather than a hardcoded provider check. A nil adapter (no dialect
// bound yet) takes the conservative fallback.
func planDistinct(adapter dialect.Adapter, m *schema.Model, alias string, fields []string) (cols []ast.Node, inMemory bool) {
	if len(fields) == 0 {
		return nil, false
	}
	if adapter == nil || !adapter.SupportsDistinctOn() {
		return nil, true
	}
	for _, name := range fields {
		f, ok := m.Fields[name]
		if !ok || !f.IsScalar() {
			return nil, true
		}
		cols = append(cols, ast.QCol(alias, f.DBColumn))
	}
	return cols, false
}

// buildProjection assembles the SELECT list: scalars per select/omit, plus a
// nested JSON selection for every relation named in select/include, plus a
// `_count` JSON object when requested.
func buildProjection(s *schema.Schema, m *schema.Model, alias string, args Args) ([]ast.Selection, error) {
	proj := args.Select
	if proj == nil {
		proj = args.Include
	}

	var out []ast.Selection
	if args.Select != nil {
		names := sortedKeys(args.Select)
		for _, name := range names {
			f, ok := m.Fields[name]
			if !ok {
				return nil, fmt.Errorf("planner: unknown select field %s.%s", m.Name, name)
			}
			if f.IsScalar() {
				out = append(out, ast.Selection{Expr: ast.QCol(alias, f.DBColumn), As: f.Name})
			}
		}
	} else {
		for _, name := range m.FieldOrder {
			f := m.Fields[name]
			if !f.IsScalar() || f.Computed || args.Omit[name] {
				continue
			}
			out = append(out, ast.Selection{Expr: ast.QCol(alias, f.DBColumn), As: f.Name})
		}
	}

	relNames := sortedKeys(proj)
	for _, name := range relNames {
		f, ok := m.Fields[name]
		if !ok || f.Relation == nil {
			continue
		}
		relArgs := relationArgsOf(proj[name])
		node, err := buildRelationSelection(s, m, alias, f, relArgs)
		if err != nil {
			return nil, err
		}
		out = append(out, ast.Selection{Expr: node, As: f.Name})
	}

	if len(args.Count) > 0 {
		node, err := buildCountSelection(s, m, alias, args.Count)
		if err != nil {
			return nil, err
		}
		out = append(out, ast.Selection{Expr: node, As: "_count"})
	}

	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// relationArgsOf normalizes a select/include entry's value: `true` means
// "project all scalars, default args"; a map is itself an Args-shaped
// payload (where/orderBy/skip/take/select/include for the nested rows).
func relationArgsOf(v any) Args {
	m, ok := v.(map[string]any)
	if !ok {
		return Args{}
	}
	args := Args{}
	if w, ok := m["where"].(map[string]any); ok {
		args.Where = w
	}
	if sel, ok := m["select"].(map[string]any); ok {
		args.Select = sel
	}
	if inc, ok := m["include"].(map[string]any); ok {
		args.Include = inc
	}
	if take, ok := m["take"].(int); ok {
		args.Take = take
	}
	if skip, ok := m["skip"].(int); ok {
		args.Skip = skip
	}
	if ob, ok := m["orderBy"].([]OrderBy); ok {
		args.OrderBy = ob
	}
	return args
}

// buildRelationSelection emits the nested JSON construction for one
// relation projection: a correlated subquery producing a JSON object
// (to-one) or JSON array (to-many). Postgres-like and SQLite-like share
// the same correlated-subquery shape here (both of this engine's supported
// families express their JSON aggregate as a simple GROUP-less aggregate,
// not requiring a LATERAL join) — the exact function names and an empty
// to-many's COALESCE to `[]` are deferred to the bound dialect.Adapter via
// ast.DialectCall, since that choice only needs the rendered SQL fragments,
// not anything the planner itself decides.
func buildRelationSelection(s *schema.Schema, m *schema.Model, alias string, f *schema.Field, relArgs Args) (ast.Node, error) {
	target, err := s.Model(f.Relation.Model)
	if err != nil {
		return nil, err
	}
	subAlias := f.Name + "_r"
	fp, err := buildFind(s, target, subAlias, relArgs)
	if err != nil {
		return nil, err
	}
	joinCond, err := buildJoinCondition(m, alias, f, target, subAlias)
	if err != nil {
		return nil, err
	}
	if fp.Select.Where != nil {
		fp.Select.Where = &ast.Where{Expr: ast.And(joinCond, fp.Select.Where.Expr)}
	} else {
		fp.Select.Where = &ast.Where{Expr: joinCond}
	}

	objectExpr := jsonObjectOverColumns(fp.Select.Columns)
	// Replace the select list with the single JSON object expression, then
	// wrap the whole thing as a scalar subquery.
	fp.Select.Columns = []ast.Selection{{Expr: objectExpr}}

	if f.Array {
		aggSelect := &ast.Select{
			Columns: []ast.Selection{{Expr: &ast.DialectCall{Func: ast.DialectJSONAgg, Args: []ast.Node{objectExpr}}}},
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: target.Name}, subAlias)},
			Where:   fp.Select.Where,
			OrderBy: fp.Select.OrderBy,
			Limit:   fp.Select.Limit,
			Offset:  fp.Select.Offset,
		}
		return &ast.Parens{Expr: aggSelect}, nil
	}
	fp.Select.Limit = intPtr(1)
	return &ast.Parens{Expr: fp.Select}, nil
}

func intPtr(i int) *int { return &i }

func jsonObjectOverColumns(cols []ast.Selection) ast.Node {
	args := make([]ast.Node, 0, len(cols)*2)
	for _, c := range cols {
		args = append(args, ast.Lit(c.As), c.Expr)
	}
	return &ast.DialectCall{Func: ast.DialectJSONObject, Args: args}
}

// buildCountSelection builds the `_count` JSON object: one correlated
// `COUNT(*)` per requested relation name.
func buildCountSelection(s *schema.Schema, m *schema.Model, alias string, counts map[string]bool) (ast.Node, error) {
	names := make([]string, 0, len(counts))
	for name, want := range counts {
		if want {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	args := make([]ast.Node, 0, len(names)*2)
	for _, name := range names {
		f, ok := m.Fields[name]
		if !ok || f.Relation == nil {
			return nil, fmt.Errorf("planner: _count references unknown relation %s.%s", m.Name, name)
		}
		target, err := s.Model(f.Relation.Model)
		if err != nil {
			return nil, err
		}
		subAlias := name + "_c"
		joinCond, err := buildJoinCondition(m, alias, f, target, subAlias)
		if err != nil {
			return nil, err
		}
		countSel := &ast.Select{
			Columns: []ast.Selection{{Expr: &ast.Function{Name: "count", Star: true}}},
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: target.Name}, subAlias)},
			Where:   &ast.Where{Expr: joinCond},
		}
		args = append(args, ast.Lit(name), &ast.Parens{Expr: countSel})
	}
	return &ast.DialectCall{Func: ast.DialectJSONObject, Args: args}, nil
}
