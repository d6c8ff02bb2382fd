package schema

// PolicyKind distinguishes an allow rule from a deny rule. The effective
// permission for an operation is OR(allow rules) AND NOT OR(deny rules);
// a model with zero allow rules and zero deny rules has no policy applied
// (every row passes), matching the "policies are opt-in" semantics.
type PolicyKind int

const (
	PolicyAllow PolicyKind = iota
	PolicyDeny
)

// Operation names one of the CRUD operations a policy rule can guard.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	// OpAll matches every operation; used by `@@allow('all', ...)`.
	OpAll Operation = "all"
)

// PolicyRule is one @@allow/@@deny (or field-level @allow/@deny)
// declaration.
type PolicyRule struct {
	Kind       PolicyKind
	Operations []Operation
	Condition  Expr
}

// AppliesTo reports whether this rule guards the given operation.
func (r PolicyRule) AppliesTo(op Operation) bool {
	for _, o := range r.Operations {
		if o == OpAll || o == op {
			return true
		}
	}
	return false
}

// RulesFor filters a model's policies down to the ones relevant to op,
// split by kind for the planner's OR(allow) AND NOT OR(deny) composition.
func RulesFor(rules []PolicyRule, op Operation) (allows, denies []PolicyRule) {
	for _, r := range rules {
		if !r.AppliesTo(op) {
			continue
		}
		if r.Kind == PolicyAllow {
			allows = append(allows, r)
		} else {
			denies = append(denies, r)
		}
	}
	return allows, denies
}

// HasPolicy reports whether the model declares any rule (allow or deny)
// for the given operation, at the model level or on any field.
func (m *Model) HasPolicy(op Operation) bool {
	if allows, denies := RulesFor(m.Policies, op); len(allows) > 0 || len(denies) > 0 {
		return true
	}
	for _, rules := range m.FieldPolicies {
		if allows, denies := RulesFor(rules, op); len(allows) > 0 || len(denies) > 0 {
			return true
		}
	}
	return false
}
