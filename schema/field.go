package schema

// FieldType enumerates the scalar and structural types a field can carry.
// Relation and Enum fields additionally populate Relation/EnumName.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal
	TypeBoolean
	TypeDateTime
	TypeBytes
	TypeJSON
	TypeRelation
	TypeEnum
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeInt:
		return "Int"
	case TypeBigInt:
		return "BigInt"
	case TypeFloat:
		return "Float"
	case TypeDecimal:
		return "Decimal"
	case TypeBoolean:
		return "Boolean"
	case TypeDateTime:
		return "DateTime"
	case TypeBytes:
		return "Bytes"
	case TypeJSON:
		return "Json"
	case TypeRelation:
		return "Relation"
	case TypeEnum:
		return "Enum"
	default:
		return "Unknown"
	}
}

// Default describes how a field's default value is produced when omitted
// from a create payload. Exactly one of Literal/Generator is meaningful.
type Default struct {
	HasLiteral bool
	Literal    any

	// Generator is a registered name in the gen package's registry, e.g.
	// "uuid4", "uuid7", "cuid", "nanoid", "ulid", "now".
	Generator string
	// GeneratorArgs holds constructor arguments, e.g. nanoid(10) -> [10].
	GeneratorArgs []any

	// AuthMember, when non-empty, means the default resolves to a dotted
	// path off auth(), e.g. `default(auth().id)`.
	AuthMember string
}

// Field describes a single model field.
type Field struct {
	Name     string
	DBColumn string
	Type     FieldType
	EnumName string // set when Type == TypeEnum

	Array    bool
	Optional bool

	IsID        bool
	IsUnique    bool
	IsUpdatedAt bool
	// Computed fields are never persisted; they are excluded from every
	// generated INSERT/UPDATE and from physical column enumeration.
	Computed bool

	// OriginModel is set when a field is inherited from a delegate base
	// model, naming the model that physically declares it. Empty for
	// fields declared directly on the model.
	OriginModel string

	Default *Default

	Relation *Relation

	// Attributes holds arbitrary field-level attribute invocations, keyed
	// by attribute name (e.g. "map" -> ["db_column_name"]).
	Attributes map[string][]any

	// foreignKeyFor names the relation field this column backs, populated
	// by Model.index(). Empty for fields that aren't foreign keys.
	foreignKeyFor string
}

// IsScalar reports whether the field holds a plain column value (i.e. is
// not a relation).
func (f *Field) IsScalar() bool {
	return f.Type != TypeRelation
}

// IsForeignKey reports whether this scalar field backs a relation's own
// side (i.e. some *other* relation field on the same model lists it in
// Relation.Fields).
func (f *Field) IsForeignKey() bool {
	return f.foreignKeyFor != ""
}

// ForeignKeyFor names the relation field this column is a foreign key for.
func (f *Field) ForeignKeyFor() string {
	return f.foreignKeyFor
}
