// Package querylanguage implements a small boolean predicate algebra with a
// canonical, deterministic string form. It is not used to talk to the
// database directly; the policy package compiles schema.Expr straight to
// SQL AST fragments. No other package of this module imports it; it is a
// standalone predicate vocabulary, including the HasEdge/HasEdgeWith family
// for relation predicates.
package querylanguage

import (
	"fmt"
	"sort"
	"strings"
)

// P is a predicate expression. Every predicate can render itself and negate
// itself without double-wrapping information.
type P interface {
	String() string
	Negate() P
}

// F denotes a reference to a field, used on either side of a comparison.
type F string

func (f F) String() string { return string(f) }

// litString renders a comparison operand, which is either an F (bare field
// reference) or a literal value.
func litString(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case F:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// BinaryExpr is a two-operand comparison, e.g. `a == b`.
type BinaryExpr struct {
	Op          string
	Left, Right any
}

func (b BinaryExpr) String() string {
	return fmt.Sprintf("%s %s %s", litString(b.Left), b.Op, litString(b.Right))
}

// Negate wraps the expression in a boolean not.
func (b BinaryExpr) Negate() P {
	return UnaryExpr{Op: "!", Operand: b}
}

func binary(op string, l, r any) P { return BinaryExpr{Op: op, Left: l, Right: r} }

// EQ builds `l == r`.
func EQ(l, r any) P { return binary("==", l, r) }

// NEQ builds `l != r`.
func NEQ(l, r any) P { return binary("!=", l, r) }

// GT builds `l > r`.
func GT(l, r any) P { return binary(">", l, r) }

// GTE builds `l >= r`.
func GTE(l, r any) P { return binary(">=", l, r) }

// LT builds `l < r`.
func LT(l, r any) P { return binary("<", l, r) }

// LTE builds `l <= r`.
func LTE(l, r any) P { return binary("<=", l, r) }

// FieldEQ builds `field == value`.
func FieldEQ(field string, v any) P { return EQ(F(field), v) }

// FieldNEQ builds `field != value`.
func FieldNEQ(field string, v any) P { return NEQ(F(field), v) }

// FieldGT builds `field > value`.
func FieldGT(field string, v any) P { return GT(F(field), v) }

// FieldGTE builds `field >= value`.
func FieldGTE(field string, v any) P { return GTE(F(field), v) }

// FieldLT builds `field < value`.
func FieldLT(field string, v any) P { return LT(F(field), v) }

// FieldLTE builds `field <= value`.
func FieldLTE(field string, v any) P { return LTE(F(field), v) }

// FieldNil builds `field == nil`.
func FieldNil(field string) P { return EQ(F(field), F("nil")) }

// FieldNotNil builds `field != nil`.
func FieldNotNil(field string) P { return NEQ(F(field), F("nil")) }

// listExpr renders a literal list, e.g. `["fb","ent"]` or `[1,2,3]`.
type listExpr struct{ vs []any }

func (l listExpr) String() string {
	parts := make([]string, len(l.vs))
	for i, v := range l.vs {
		parts[i] = litString(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// FieldIn builds `field in [v1,v2,...]`.
func FieldIn[T any](field string, vs ...T) P {
	anyVs := make([]any, len(vs))
	for i, v := range vs {
		anyVs[i] = v
	}
	return BinaryExpr{Op: "in", Left: F(field), Right: listExpr{vs: anyVs}}
}

// FieldNotIn builds `field not in [v1,v2,...]`.
func FieldNotIn[T any](field string, vs ...T) P {
	anyVs := make([]any, len(vs))
	for i, v := range vs {
		anyVs[i] = v
	}
	return BinaryExpr{Op: "not in", Left: F(field), Right: listExpr{vs: anyVs}}
}

// callExpr renders a function-call predicate, e.g. `contains(a, "b")`.
type callExpr struct {
	name string
	args []any
}

func (c callExpr) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = litString(a)
	}
	return fmt.Sprintf("%s(%s)", c.name, strings.Join(parts, ", "))
}

func (c callExpr) Negate() P {
	return UnaryExpr{Op: "!", Operand: c}
}

func call(name string, args ...any) P { return callExpr{name: name, args: args} }

// FieldContains builds `contains(field, needle)`.
func FieldContains(field, needle string) P { return call("contains", F(field), needle) }

// FieldContainsFold builds `contains_fold(field, needle)`.
func FieldContainsFold(field, needle string) P { return call("contains_fold", F(field), needle) }

// FieldEqualFold builds `equal_fold(field, needle)`.
func FieldEqualFold(field, needle string) P { return call("equal_fold", F(field), needle) }

// FieldHasPrefix builds `has_prefix(field, prefix)`.
func FieldHasPrefix(field, prefix string) P { return call("has_prefix", F(field), prefix) }

// FieldHasSuffix builds `has_suffix(field, suffix)`.
func FieldHasSuffix(field, suffix string) P { return call("has_suffix", F(field), suffix) }

// HasEdge builds `has_edge(name)`.
func HasEdge(name string) P { return call("has_edge", F(name)) }

// HasEdgeWith builds `has_edge(name, p1, p2, ...)`, passing each non-nil
// predicate as its own argument after name.
func HasEdgeWith(name string, ps ...P) P {
	args := make([]any, 0, len(ps)+1)
	args = append(args, F(name))
	for _, p := range ps {
		if p == nil {
			continue
		}
		args = append(args, rawString(p.String()))
	}
	return call("has_edge", args...)
}

// rawString renders verbatim without quoting.
type rawString string

func (r rawString) String() string { return string(r) }

// UnaryExpr is a single-operand boolean operator, e.g. `!(p)`.
type UnaryExpr struct {
	Op      string
	Operand P
}

func (u UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", u.Op, u.Operand.String())
}

// Negate of a double negation just wraps again rather than collapsing the
// double negative implicitly.
func (u UnaryExpr) Negate() P {
	return UnaryExpr{Op: "!", Operand: u}
}

// Not negates p.
func Not(p P) P { return UnaryExpr{Op: "!", Operand: p} }

// NaryExpr is a flattened n-ary boolean combination (&& or ||).
type NaryExpr struct {
	Op    string
	Preds []P
}

func (n NaryExpr) String() string {
	parts := make([]string, len(n.Preds))
	for i, p := range n.Preds {
		parts[i] = p.String()
	}
	s := strings.Join(parts, " "+n.Op+" ")
	if len(n.Preds) > 2 {
		return "(" + s + ")"
	}
	return s
}

func (n NaryExpr) Negate() P {
	return UnaryExpr{Op: "!", Operand: n}
}

// And combines predicates with &&.
func And(ps ...P) P {
	if len(ps) == 1 {
		return ps[0]
	}
	return NaryExpr{Op: "&&", Preds: ps}
}

// Or combines predicates with ||.
func Or(ps ...P) P {
	if len(ps) == 1 {
		return ps[0]
	}
	return NaryExpr{Op: "||", Preds: ps}
}

// SortedKeys is a small helper used by callers that build listExpr values
// from maps and want deterministic output.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
