package planner

import (
	"fmt"
	"sort"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// buildCount plans a top-level `count`: a single row with one `count(*)`
// column, or `count(DISTINCT(cols...))` when Distinct is set, filtered
// exactly like a find.
func buildCount(s *schema.Schema, m *schema.Model, alias string, args Args) (*ast.Select, error) {
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
	if args.Skip > 0 {
		off := args.Skip
		sel.Offset = &off
	}
	if args.Take > 0 {
		n := args.Take
		sel.Limit = &n
	}

	if len(args.Distinct) > 0 {
		fields := sortedStrings(args.Distinct)
		var cols []ast.Node
		for _, name := range fields {
			f, ok := m.Fields[name]
			if !ok {
				return nil, fmt.Errorf("planner: unknown distinct field %s.%s", m.Name, name)
			}
			cols = append(cols, ast.QCol(alias, f.DBColumn))
		}
		sel.Columns = []ast.Selection{{Expr: &ast.Function{Name: "count", Args: []ast.Node{
			&ast.Function{Name: "DISTINCT", Args: cols},
		}}, As: "count"}}
		return sel, nil
	}

	sel.Columns = []ast.Selection{{Expr: &ast.Function{Name: "count", Star: true}, As: "count"}}
	return sel, nil
}

// aggregateFns maps an Args aggregate bucket name to its SQL function.
var aggregateFns = map[string]string{
	"sum": "sum",
	"avg": "avg",
	"min": "min",
	"max": "max",
}

// buildAggregate plans a top-level `aggregate`: one row with a
// `_count`/`_sum`/`_avg`/`_min`/`_max` column per requested bucket. The
// `_count` column is a plain row count (see countBucket); each other bucket
// is a JSON object of field->aggregate-value, built with the same JSON
// constructor the find path uses for nested relation projection.
func buildAggregate(s *schema.Schema, m *schema.Model, alias string, args Args) (*ast.Select, error) {
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
	if args.Skip > 0 {
		off := args.Skip
		sel.Offset = &off
	}
	if args.Take > 0 {
		n := args.Take
		sel.Limit = &n
	}

	var cols []ast.Selection

	if len(args.Count) > 0 {
		node, err := countBucket(m, alias, args.Count)
		if err != nil {
			return nil, err
		}
		cols = append(cols, ast.Selection{Expr: node, As: "_count"})
	}

	buckets := []struct {
		name   string
		fields []string
	}{
		{"_sum", args.Sum},
		{"_avg", args.Avg},
		{"_min", args.Min},
		{"_max", args.Max},
	}
	for _, b := range buckets {
		if len(b.fields) == 0 {
			continue
		}
		fn := aggregateFns[b.name[1:]]
		fields := sortedStrings(b.fields)
		fnArgs := make([]ast.Node, 0, len(fields)*2)
		for _, name := range fields {
			f, ok := m.Fields[name]
			if !ok {
				return nil, fmt.Errorf("planner: unknown aggregate field %s.%s", m.Name, name)
			}
			fnArgs = append(fnArgs, ast.Lit(name), &ast.Function{Name: fn, Args: []ast.Node{ast.QCol(alias, f.DBColumn)}})
		}
		cols = append(cols, ast.Selection{Expr: &ast.DialectCall{Func: ast.DialectJSONObject, Args: fnArgs}, As: b.name})
	}

	if len(cols) == 0 {
		cols = append(cols, ast.Selection{Expr: &ast.Function{Name: "count", Star: true}, As: "_count"})
	}
	sel.Columns = cols
	return sel, nil
}

// countBucket builds the `_count` column for an aggregate/groupBy call. It
// is always the row count `count(*)`, whatever names counts holds: named
// entries are not counted separately and no per-name object is built.
func countBucket(m *schema.Model, alias string, counts map[string]bool) (ast.Node, error) {
	names := make([]string, 0, len(counts))
	for name, want := range counts {
		if want {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 1 && (names[0] == "*" || names[0] == "_all") {
		return &ast.Function{Name: "count", Star: true}, nil
	}
	return &ast.Function{Name: "count", Star: true}, nil
}

// buildGroupBy plans a top-level `groupBy`: GROUP BY the
// requested fields, projecting each grouped field plus the same
// count/sum/avg/min/max buckets aggregate uses, with `having` compiled by
// the same filter builder (over the grouped row, so aggregate expressions
// referenced there compile against the same FROM/alias).
func buildGroupBy(s *schema.Schema, m *schema.Model, alias string, args Args) (*ast.Select, error) {
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

	groupFields := sortedStrings(args.GroupByFields)
	var cols []ast.Selection
	var groupExprs []ast.Node
	for _, name := range groupFields {
		f, ok := m.Fields[name]
		if !ok || !f.IsScalar() {
			return nil, fmt.Errorf("planner: unknown groupBy field %s.%s", m.Name, name)
		}
		col := ast.QCol(alias, f.DBColumn)
		cols = append(cols, ast.Selection{Expr: col, As: f.Name})
		groupExprs = append(groupExprs, col)
	}
	sel.GroupBy = groupExprs

	if len(args.Count) > 0 {
		node, err := countBucket(m, alias, args.Count)
		if err != nil {
			return nil, err
		}
		cols = append(cols, ast.Selection{Expr: node, As: "_count"})
	}
	for _, b := range []struct {
		name   string
		fields []string
	}{
		{"_sum", args.Sum}, {"_avg", args.Avg}, {"_min", args.Min}, {"_max", args.Max},
	} {
		fn := aggregateFns[b.name[1:]]
		for _, name := range sortedStrings(b.fields) {
			f, ok := m.Fields[name]
			if !ok {
				return nil, fmt.Errorf("planner: unknown aggregate field %s.%s", m.Name, name)
			}
			cols = append(cols, ast.Selection{Expr: &ast.Function{Name: fn, Args: []ast.Node{ast.QCol(alias, f.DBColumn)}}, As: b.name + "_" + f.Name})
		}
	}
	sel.Columns = cols

	if len(args.Having) > 0 {
		having, err := fc.CompileWhere(m, alias, args.Having)
		if err != nil {
			return nil, err
		}
		sel.Having = &ast.Where{Expr: having}
	}

	if len(args.OrderBy) > 0 {
		for _, o := range args.OrderBy {
			f, ok := m.Fields[o.Field]
			if !ok {
				return nil, fmt.Errorf("planner: unknown groupBy orderBy field %s.%s", m.Name, o.Field)
			}
			sel.OrderBy = append(sel.OrderBy, ast.OrderTerm{Expr: ast.QCol(alias, f.DBColumn), Desc: o.Desc})
		}
	}
	if args.Skip > 0 {
		off := args.Skip
		sel.Offset = &off
	}
	if args.Take > 0 {
		n := args.Take
		sel.Limit = &n
	}

	return sel, nil
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
