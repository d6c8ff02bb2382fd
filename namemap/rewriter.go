// Package namemap translates every logical identifier in an AST to its
// physical counterpart: table names, column names, and enum value
// literals, using a stack of scopes so that nested subqueries, joins, and
// aliases are each resolved against the right model.
package namemap

import (
	"fmt"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// Rewriter carries the scope stack for one rewrite pass. Not safe for
// concurrent use; construct one per Rewrite call.
type rewriter struct {
	schema *schema.Schema
	stack  []Scope
}

// Rewrite translates every logical identifier in node to its physical
// counterpart per the model's @@map/@map attributes.
func Rewrite(s *schema.Schema, node ast.Node) (ast.Node, error) {
	r := &rewriter{schema: s}
	return r.rewrite(node)
}

func (r *rewriter) push(s Scope) { r.stack = append(r.stack, s) }
func (r *rewriter) pop()         { r.stack = r.stack[:len(r.stack)-1] }

func (r *rewriter) rewrite(n ast.Node) (ast.Node, error) {
	switch t := n.(type) {
	case *ast.Select:
		return r.rewriteSelect(t)
	case *ast.Insert:
		return r.rewriteInsert(t)
	case *ast.Update:
		return r.rewriteUpdate(t)
	case *ast.Delete:
		return r.rewriteDelete(t)
	default:
		return r.rewriteExpr(n)
	}
}

// rewriteFromTarget handles the From/Join-table rule: a bare table with a
// logical model name becomes `physical AS alias` and pushes a model scope;
// anything else (subquery, already-aliased node) is recursively rewritten
// and pushes an opaque, already-mapped scope.
func (r *rewriter) rewriteFromTarget(n ast.Node) (ast.Node, Scope, error) {
	alias := ""
	inner := n
	if al, ok := n.(*ast.Alias); ok {
		alias = al.As
		inner = al.Expr
	}

	if tbl, ok := inner.(*ast.Table); ok {
		m, err := r.schema.Model(tbl.Name)
		if err != nil {
			// Not a logical model name (already physical, or a join
			// table synthesized by the policy rewriter) — leave as is.
			return n, Scope{Alias: alias}, nil
		}
		if alias == "" {
			alias = m.Name
		}
		scope := Scope{Model: m, Alias: alias, NamesMapped: !hasMappedColumns(m)}
		physical := &ast.Table{Schema: tbl.Schema, Name: m.DBTable}
		return &ast.Alias{Expr: physical, As: alias}, scope, nil
	}

	// Subquery or any other expression: rewrite it against the current
	// stack (for correlated references) and treat its output as already
	// physical.
	rewritten, err := r.rewrite(inner)
	if err != nil {
		return nil, Scope{}, err
	}
	scope := Scope{Alias: alias, NamesMapped: true}
	return ast.AliasOf(rewritten, alias), scope, nil
}

func (r *rewriter) rewriteSelect(s *ast.Select) (*ast.Select, error) {
	out := *s
	pushed := 0

	if s.From != nil {
		newTarget, scope, err := r.rewriteFromTarget(s.From.Table)
		if err != nil {
			return nil, err
		}
		out.From = &ast.From{Table: newTarget}
		r.push(scope)
		pushed++
	}
	defer func() {
		for i := 0; i < pushed; i++ {
			r.pop()
		}
	}()

	if len(s.Joins) > 0 {
		newJoins := make([]ast.Join, len(s.Joins))
		for i, j := range s.Joins {
			newTarget, scope, err := r.rewriteFromTarget(j.Target)
			if err != nil {
				return nil, err
			}
			r.push(scope)
			pushed++
			newOn, err := r.rewriteExpr(j.On)
			if err != nil {
				return nil, err
			}
			newJoins[i] = ast.Join{Kind: j.Kind, Target: newTarget, On: newOn}
		}
		out.Joins = newJoins
	}

	if s.Where != nil {
		expr, err := r.rewriteExpr(s.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Where = &ast.Where{Expr: expr}
	}
	if len(s.GroupBy) > 0 {
		gb := make([]ast.Node, len(s.GroupBy))
		for i, g := range s.GroupBy {
			e, err := r.rewriteExpr(g)
			if err != nil {
				return nil, err
			}
			gb[i] = e
		}
		out.GroupBy = gb
	}
	if s.Having != nil {
		expr, err := r.rewriteExpr(s.Having.Expr)
		if err != nil {
			return nil, err
		}
		out.Having = &ast.Where{Expr: expr}
	}
	if len(s.OrderBy) > 0 {
		ob := make([]ast.OrderTerm, len(s.OrderBy))
		for i, o := range s.OrderBy {
			e, err := r.rewriteExpr(o.Expr)
			if err != nil {
				return nil, err
			}
			ob[i] = ast.OrderTerm{Expr: e, Desc: o.Desc, Nulls: o.Nulls}
		}
		out.OrderBy = ob
	}
	if len(s.DistinctOn) > 0 {
		do := make([]ast.Node, len(s.DistinctOn))
		for i, d := range s.DistinctOn {
			e, err := r.rewriteExpr(d)
			if err != nil {
				return nil, err
			}
			do[i] = e
		}
		out.DistinctOn = do
	}

	cols, err := r.rewriteSelections(s.Columns)
	if err != nil {
		return nil, err
	}
	out.Columns = cols

	return &out, nil
}

// rewriteSelections implements the `SELECT *` expansion and the
// preserve-logical-alias rule for explicit columns.
func (r *rewriter) rewriteSelections(cols []ast.Selection) ([]ast.Selection, error) {
	if len(cols) == 0 {
		if len(r.stack) == 0 {
			return nil, nil
		}
		scope := r.stack[len(r.stack)-1]
		if scope.Model == nil || scope.NamesMapped {
			return nil, nil
		}
		expanded := make([]ast.Selection, 0, len(scope.Model.FieldOrder))
		for _, name := range scope.Model.FieldOrder {
			f := scope.Model.Fields[name]
			if !f.IsScalar() {
				continue
			}
			expanded = append(expanded, ast.Selection{
				Expr: ast.QCol(scope.Alias, f.DBColumn),
				As:   f.Name,
			})
		}
		return expanded, nil
	}

	out := make([]ast.Selection, len(cols))
	for i, c := range cols {
		e, err := r.rewriteExpr(c.Expr)
		if err != nil {
			return nil, err
		}
		as := c.As
		if as == "" {
			if col, ok := c.Expr.(*ast.Column); ok {
				if rewritten, ok := e.(*ast.Column); ok && rewritten.Name != col.Name {
					as = col.Name
				}
			}
		}
		out[i] = ast.Selection{Expr: e, As: as}
	}
	return out, nil
}

// rewriteExpr recursively rewrites any non-statement node: column
// references, operators, function calls, nested selects.
func (r *rewriter) rewriteExpr(n ast.Node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch t := n.(type) {
	case *ast.Column:
		return r.rewriteColumn(t), nil
	case *ast.Reference, *ast.Table, *ast.Value:
		return n, nil
	case *ast.BinaryOp:
		l, err := r.rewriteExpr(t.Left)
		if err != nil {
			return nil, err
		}
		rr, err := r.rewriteExpr(t.Right)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: t.Op, Left: l, Right: rr}, nil
	case *ast.Function:
		args := make([]ast.Node, len(t.Args))
		for i, a := range t.Args {
			e, err := r.rewriteExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		return &ast.Function{Name: t.Name, Args: args, Star: t.Star}, nil
	case *ast.Parens:
		e, err := r.rewriteExpr(t.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.Parens{Expr: e}, nil
	case *ast.Alias:
		e, err := r.rewriteExpr(t.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.Alias{Expr: e, As: t.As}, nil
	case *ast.ValueList:
		vs := make([]ast.Node, len(t.Values))
		for i, v := range t.Values {
			e, err := r.rewriteExpr(v)
			if err != nil {
				return nil, err
			}
			vs[i] = e
		}
		return &ast.ValueList{Values: vs}, nil
	case *ast.Select:
		return r.rewriteSelect(t)
	default:
		return nil, velox.NewInternalError("namemap.rewriteExpr", fmt.Errorf("unsupported node %T", n))
	}
}

func (r *rewriter) rewriteColumn(col *ast.Column) *ast.Column {
	if col.Qualifier != "" {
		for i := len(r.stack) - 1; i >= 0; i-- {
			scope := r.stack[i]
			if !scope.matches(col.Qualifier) {
				continue
			}
			if scope.NamesMapped {
				return col
			}
			if f, ok := scope.fieldByName(col.Name); ok {
				return &ast.Column{Qualifier: col.Qualifier, Name: f.DBColumn}
			}
			return col
		}
		return col
	}

	for i := len(r.stack) - 1; i >= 0; i-- {
		scope := r.stack[i]
		f, ok := scope.fieldByName(col.Name)
		if !ok {
			continue
		}
		if scope.NamesMapped {
			return &ast.Column{Qualifier: scope.Alias, Name: col.Name}
		}
		return &ast.Column{Qualifier: scope.Alias, Name: f.DBColumn}
	}
	return col
}

func (r *rewriter) rewriteInsert(ins *ast.Insert) (*ast.Insert, error) {
	m, err := r.schema.Model(ins.Table.Name)
	if err != nil {
		// Not a logical model name — a join table the planner addresses
		// directly (e.g. an implicit many-to-many table), already
		// physical. Leave table/columns untouched.
		return ins, nil
	}
	out := *ins
	out.Table = &ast.Table{Schema: ins.Table.Schema, Name: m.DBTable}
	out.Columns = make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		out.Columns[i] = physicalColumn(m, c)
	}
	if ins.Returning != nil {
		r.push(Scope{Model: m, Alias: m.Name, NamesMapped: false})
		cols, err := r.rewriteSelections(ins.Returning.Columns)
		r.pop()
		if err != nil {
			return nil, err
		}
		out.Returning = &ast.Returning{Columns: cols}
	}
	if ins.OnConflict != nil {
		oc := *ins.OnConflict
		oc.Columns = make([]string, len(ins.OnConflict.Columns))
		for i, c := range ins.OnConflict.Columns {
			oc.Columns[i] = physicalColumn(m, c)
		}
		r.push(Scope{Model: m, Alias: m.Name, NamesMapped: false})
		set, err := r.rewriteAssignments(ins.OnConflict.DoUpdate)
		if err == nil && ins.OnConflict.Where != nil {
			var expr ast.Node
			expr, err = r.rewriteExpr(ins.OnConflict.Where.Expr)
			oc.Where = &ast.Where{Expr: expr}
		}
		r.pop()
		if err != nil {
			return nil, err
		}
		oc.DoUpdate = set
		out.OnConflict = &oc
	}
	return &out, nil
}

func (r *rewriter) rewriteAssignments(sets []ast.BinaryOp) ([]ast.BinaryOp, error) {
	out := make([]ast.BinaryOp, len(sets))
	for i, s := range sets {
		left, err := r.rewriteExpr(s.Left)
		if err != nil {
			return nil, err
		}
		right, err := r.rewriteExpr(s.Right)
		if err != nil {
			return nil, err
		}
		out[i] = ast.BinaryOp{Op: s.Op, Left: left, Right: right}
	}
	return out, nil
}

func (r *rewriter) rewriteUpdate(u *ast.Update) (*ast.Update, error) {
	m, err := r.schema.Model(u.Table.Name)
	if err != nil {
		return nil, velox.NewInternalError("namemap.rewriteUpdate", err)
	}
	out := *u
	out.Table = &ast.Table{Schema: u.Table.Schema, Name: m.DBTable}

	r.push(Scope{Model: m, Alias: m.Name, NamesMapped: false})
	defer r.pop()

	set, err := r.rewriteAssignments(u.Set)
	if err != nil {
		return nil, err
	}
	out.Set = set

	if u.Where != nil {
		expr, err := r.rewriteExpr(u.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Where = &ast.Where{Expr: expr}
	}
	if u.Returning != nil {
		cols, err := r.rewriteSelections(u.Returning.Columns)
		if err != nil {
			return nil, err
		}
		out.Returning = &ast.Returning{Columns: cols}
	}
	return &out, nil
}

func (r *rewriter) rewriteDelete(d *ast.Delete) (*ast.Delete, error) {
	m, err := r.schema.Model(d.Table.Name)
	if err != nil {
		return nil, velox.NewInternalError("namemap.rewriteDelete", err)
	}
	out := *d
	out.Table = &ast.Table{Schema: d.Table.Schema, Name: m.DBTable}

	r.push(Scope{Model: m, Alias: m.Name, NamesMapped: false})
	defer r.pop()

	if d.Where != nil {
		expr, err := r.rewriteExpr(d.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Where = &ast.Where{Expr: expr}
	}
	if d.Returning != nil {
		cols, err := r.rewriteSelections(d.Returning.Columns)
		if err != nil {
			return nil, err
		}
		out.Returning = &ast.Returning{Columns: cols}
	}
	return &out, nil
}

func physicalColumn(m *schema.Model, logical string) string {
	if f, ok := m.Fields[logical]; ok {
		return f.DBColumn
	}
	return logical
}
