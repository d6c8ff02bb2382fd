package schema

import "sort"

// Model describes one entity type: its physical table, its fields in
// declaration order, and the policy rules guarding each CRUD operation.
type Model struct {
	Name    string
	DBTable string

	// Fields indexes every field (scalar, relation, enum) by name.
	Fields map[string]*Field
	// FieldOrder preserves declaration order for column enumeration and
	// for deterministic VALUES(...) tuples in pre-create policy checks.
	FieldOrder []string

	// IsDelegate marks an abstract base in a delegate hierarchy: rows are
	// never created directly against this model, only through a concrete
	// subtype that discriminates via DiscriminatorField.
	IsDelegate bool
	// DiscriminatorField names the field (declared on this model) whose
	// value identifies which concrete subtype a row belongs to.
	DiscriminatorField string

	// BaseModel names the delegate base this model extends, empty if none.
	BaseModel string
	// BaseIDFields mirrors Relation.Fields for
	// the implicit one-to-one link a concrete subtype holds to its base
	// row (same values, FK chain walked at query-plan time).
	BaseIDFields []string

	// Policies holds every @@allow/@@deny rule declared on the model,
	// in declaration order (order matters only for deterministic Explain
	// output; evaluation itself is order-independent OR/AND composition).
	Policies []PolicyRule

	// FieldPolicies holds @allow/@deny rules scoped to individual fields
	// (field-level read/update masking), keyed by field name.
	FieldPolicies map[string][]PolicyRule

	Attributes map[string][]any

	idFields     []string
	uniqueGroups [][]string
	indexed      bool
}

// index lazily computes derived accessor state: ID fields, unique groups,
// and foreign-key back-references. Safe to call repeatedly; idempotent.
func (m *Model) index() {
	if m.indexed {
		return
	}
	m.indexed = true

	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if f.IsID {
			m.idFields = append(m.idFields, name)
		}
		if f.Relation != nil && f.Relation.IsOwning() {
			for _, fk := range f.Relation.Fields {
				if owned, ok := m.Fields[fk]; ok {
					owned.foreignKeyFor = name
				}
			}
		}
	}
	if group, ok := m.Attributes["@@id"]; ok {
		names := make([]string, 0, len(group))
		for _, n := range group {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		if len(names) > 0 {
			m.idFields = names
		}
	}
	if groups, ok := m.Attributes["@@unique"]; ok {
		for _, g := range groups {
			if names, ok := g.([]string); ok {
				m.uniqueGroups = append(m.uniqueGroups, names)
			}
		}
	}
	for _, name := range m.FieldOrder {
		if f := m.Fields[name]; f.IsUnique {
			m.uniqueGroups = append(m.uniqueGroups, []string{name})
		}
	}
}

// IDFields returns the ordered list of fields composing the primary key.
func (m *Model) IDFields() []string {
	m.index()
	return m.idFields
}

// UniqueFieldGroups returns every unique constraint, including the
// single-field @unique ones and composite @@unique([...]) groups.
func (m *Model) UniqueFieldGroups() [][]string {
	m.index()
	return m.uniqueGroups
}

// ScalarColumns returns the physical columns to write on INSERT/UPDATE:
// every non-computed, non-relation field, in declaration order.
func (m *Model) ScalarColumns() []string {
	out := make([]string, 0, len(m.FieldOrder))
	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if f.IsScalar() && !f.Computed {
			out = append(out, name)
		}
	}
	return out
}

// RelationFields returns every relation field name in declaration order.
func (m *Model) RelationFields() []string {
	out := make([]string, 0)
	for _, name := range m.FieldOrder {
		if m.Fields[name].Type == TypeRelation {
			out = append(out, name)
		}
	}
	return out
}

// BaseChain walks the delegate inheritance chain from this model up to the
// root base, returning models furthest-ancestor-first. A visited set
// guards against a malformed cyclic BaseModel graph so this never loops
// forever even on bad input.
func (m *Model) BaseChain(s *Schema) ([]*Model, error) {
	var chain []*Model
	visited := map[string]bool{}
	cur := m
	for cur.BaseModel != "" {
		if visited[cur.BaseModel] {
			return nil, duplicateBaseModelErr(cur.BaseModel)
		}
		visited[cur.BaseModel] = true
		base, err := s.Model(cur.BaseModel)
		if err != nil {
			return nil, err
		}
		chain = append([]*Model{base}, chain...)
		cur = base
	}
	return chain, nil
}

func duplicateBaseModelErr(name string) error {
	return &cyclicBaseModelError{name: name}
}

type cyclicBaseModelError struct{ name string }

func (e *cyclicBaseModelError) Error() string {
	return "schema: cyclic baseModel chain detected at " + e.name
}

// SortedModelNames returns every model name, alphabetically, useful for
// deterministic iteration (e.g. join-table name derivation).
func (s *Schema) SortedModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for n := range s.Models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
