// Package schema holds the in-memory, process-wide descriptor of a data
// model: its models, fields, relations, enums, attributes and access
// policies. It is populated once at process start by an external loader
// (schema parsing from source text is out of scope for this module) and is
// never mutated afterward, so it can be shared freely across concurrent
// requests.
package schema

import "fmt"

// Provider identifies which of the two supported dialect families a schema
// targets. The planner and rewriters do not read it: they pick features
// (DISTINCT ON, UPDATE...LIMIT, JSON aggregation strategy) from the bound
// dialect.Adapter's capability methods, and SQL text generation is
// delegated to that adapter too.
type Provider string

const (
	ProviderPostgresLike Provider = "postgres-like"
	ProviderSQLiteLike   Provider = "sqlite-like"
)

// Schema is the root descriptor. It is immutable after Validate succeeds.
type Schema struct {
	Models    map[string]*Model
	Enums     map[string]*Enum
	Provider  Provider
	AuthModel string // model name representing the auth() value, if any
}

// New returns an empty schema for the given provider.
func New(provider Provider) *Schema {
	return &Schema{
		Models:   map[string]*Model{},
		Enums:    map[string]*Enum{},
		Provider: provider,
	}
}

// Model looks up a model by name, returning an error (not a panic) so that
// planner code at every call site can surface a clean InternalError instead
// of crashing on a malformed schema.
func (s *Schema) Model(name string) (*Model, error) {
	m, ok := s.Models[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown model %q", name)
	}
	return m, nil
}

// MustModel panics if the model does not exist. Reserved for call sites
// that have already validated the model name (e.g. iterating s.Models).
func (s *Schema) MustModel(name string) *Model {
	m, err := s.Model(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Enum looks up an enum definition by name.
func (s *Schema) Enum(name string) (*Enum, error) {
	e, ok := s.Enums[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown enum %q", name)
	}
	return e, nil
}

// HasAuthModel reports whether auth() resolves to a concrete model.
func (s *Schema) HasAuthModel() bool {
	return s.AuthModel != ""
}

// Validate fills in default Name/DBTable/DBColumn values and performs the
// model invariant checks: every relation's target model and opposite field
// exist, the opposite is itself a relation, at most one side owns the FK,
// and every BaseModel names a known model. Delegate discriminators and m2m
// join-table names are not checked. It is meant to
// run once after a schema is assembled (by whatever external loader
// populates it) and before it is shared across requests.
func (s *Schema) Validate() error {
	for name, m := range s.Models {
		if m.Name == "" {
			m.Name = name
		}
		if m.DBTable == "" {
			m.DBTable = name
		}
		for fname, f := range m.Fields {
			if f.Name == "" {
				f.Name = fname
			}
			if f.DBColumn == "" {
				f.DBColumn = fname
			}
			if f.Relation != nil {
				if err := s.validateRelation(m, f); err != nil {
					return err
				}
			}
		}
		if m.BaseModel != "" {
			if _, err := s.Model(m.BaseModel); err != nil {
				return fmt.Errorf("schema: model %q declares unknown baseModel %q: %w", name, m.BaseModel, err)
			}
		}
	}
	return nil
}

func (s *Schema) validateRelation(m *Model, f *Field) error {
	rel := f.Relation
	opp, err := s.Model(rel.Model)
	if err != nil {
		return fmt.Errorf("schema: relation %s.%s references unknown model: %w", m.Name, f.Name, err)
	}
	oppField, ok := opp.Fields[rel.Opposite]
	if !ok {
		return fmt.Errorf("schema: relation %s.%s has no opposite field %s.%s", m.Name, f.Name, rel.Model, rel.Opposite)
	}
	if oppField.Relation == nil {
		return fmt.Errorf("schema: opposite field %s.%s is not a relation", rel.Model, rel.Opposite)
	}
	if len(rel.Fields) > 0 && len(oppField.Relation.Fields) > 0 {
		return fmt.Errorf("schema: both sides of relation %s.%s / %s.%s own foreign keys", m.Name, f.Name, rel.Model, rel.Opposite)
	}
	return nil
}
