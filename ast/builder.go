package ast

// Small constructor helpers so planner/namemap/policy code reads as a
// sequence of intent rather than struct-literal noise.

// Col builds an unqualified column reference.
func Col(name string) *Column { return &Column{Name: name} }

// QCol builds a qualified column reference.
func QCol(qualifier, name string) *Column { return &Column{Qualifier: qualifier, Name: name} }

// Lit builds a parameterized literal value.
func Lit(v any) *Value { return &Value{Val: v, Param: true} }

// Raw builds an inline (non-parameterized) literal, e.g. a keyword.
func Raw(v any) *Value { return &Value{Val: v, Param: false} }

// And folds predicates with AND, short-circuiting trivial cases.
func And(preds ...Node) Node {
	preds = compact(preds)
	if len(preds) == 0 {
		return nil
	}
	out := preds[0]
	for _, p := range preds[1:] {
		out = &BinaryOp{Op: "AND", Left: out, Right: p}
	}
	return out
}

// Or folds predicates with OR.
func Or(preds ...Node) Node {
	preds = compact(preds)
	if len(preds) == 0 {
		return nil
	}
	out := preds[0]
	for _, p := range preds[1:] {
		out = &BinaryOp{Op: "OR", Left: out, Right: p}
	}
	return out
}

// Not negates a predicate.
func Not(p Node) Node {
	if p == nil {
		return nil
	}
	return &Parens{Expr: &Function{Name: "NOT", Args: []Node{p}}}
}

func compact(preds []Node) []Node {
	out := make([]Node, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Eq/Neq/Lt/Lte/Gt/Gte build column/value comparisons.
func Eq(l, r Node) *BinaryOp  { return &BinaryOp{Op: "=", Left: l, Right: r} }
func Neq(l, r Node) *BinaryOp { return &BinaryOp{Op: "<>", Left: l, Right: r} }
func Lt(l, r Node) *BinaryOp  { return &BinaryOp{Op: "<", Left: l, Right: r} }
func Lte(l, r Node) *BinaryOp { return &BinaryOp{Op: "<=", Left: l, Right: r} }
func Gt(l, r Node) *BinaryOp  { return &BinaryOp{Op: ">", Left: l, Right: r} }
func Gte(l, r Node) *BinaryOp { return &BinaryOp{Op: ">=", Left: l, Right: r} }

// In builds `l IN (r...)`.
func In(l Node, r Node) *BinaryOp { return &BinaryOp{Op: "IN", Left: l, Right: r} }

// Exists wraps a subquery in an EXISTS(...) function call.
func Exists(sub *Select) *Function {
	return &Function{Name: "EXISTS", Args: []Node{sub}}
}

// NotExists wraps a subquery in a NOT EXISTS(...) expression.
func NotExists(sub *Select) Node {
	return &Function{Name: "NOT EXISTS", Args: []Node{sub}}
}

// AliasOf wraps a node in an AS alias, a no-op if as is empty.
func AliasOf(n Node, as string) Node {
	if as == "" {
		return n
	}
	return &Alias{Expr: n, As: as}
}
