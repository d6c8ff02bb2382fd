package namemap

import "github.com/zenstackhq/zenstack-v3-sub005/schema"

// Scope is one entry of the name-mapping rewriter's scope stack: the model
// (if any) a FROM/JOIN target represents, the alias it's known by in the
// query, and whether columns seen through it are already physical.
type Scope struct {
	Model       *schema.Model
	Alias       string
	NamesMapped bool
}

// hasMappedColumns reports whether any scalar field of m has a physical
// column name different from its logical name, or m's table name differs
// from its model name — the condition that makes mapping non-trivial for
// this model.
func hasMappedColumns(m *schema.Model) bool {
	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if f.IsScalar() && f.DBColumn != f.Name {
			return true
		}
	}
	return m.DBTable != m.Name
}

// fieldByName looks up a scalar field by logical name.
func (s Scope) fieldByName(name string) (*schema.Field, bool) {
	if s.Model == nil {
		return nil, false
	}
	f, ok := s.Model.Fields[name]
	if !ok || !f.IsScalar() {
		return nil, false
	}
	return f, true
}

// matches reports whether qualifier X refers to this scope, by alias
// first, then by model name.
func (s Scope) matches(qualifier string) bool {
	if s.Alias != "" && s.Alias == qualifier {
		return true
	}
	return s.Model != nil && s.Model.Name == qualifier
}
