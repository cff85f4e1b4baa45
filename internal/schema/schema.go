package schema

import (
	"fmt"
	"slices"
)

// Schema represents the complete GraphQL schema. A schema is built once,
// has its resolvers bound, and is treated as read-only after being handed
// to an engine.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Directives       map[string]*Directive
	Description      string

	// Meta fields available on the query root only (__schema, __type).
	// Installed by the introspection package.
	MetaFields map[string]*Field `json:"-"`
}

// NewSchema returns an empty schema holding the built-in scalars and directives.
func NewSchema(description string) *Schema {
	s := &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
	for _, t := range builtinScalars {
		s.AddType(t)
	}
	for _, d := range builtinDirectives {
		s.AddDirective(d)
	}
	return s
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.Directives[d.Name] = d
	return s
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// RootType returns the root type for an operation keyword ("query",
// "mutation" or "subscription").
func (s *Schema) RootType(operation string) *Type {
	switch operation {
	case "query", "":
		return s.GetQueryType()
	case "mutation":
		if s.MutationType == "" {
			return nil
		}
		return s.GetMutationType()
	case "subscription":
		if s.SubscriptionType == "" {
			return nil
		}
		return s.GetSubscriptionType()
	}
	return nil
}

// LookupField resolves a field selected on parent, including the
// __typename meta field and the query-root meta fields.
func (s *Schema) LookupField(parent *Type, name string) *Field {
	if parent == nil {
		return nil
	}
	if name == "__typename" {
		return typenameField
	}
	if parent.Name == s.QueryType {
		if f, ok := s.MetaFields[name]; ok {
			return f
		}
	}
	return parent.Field(name)
}

// IsPossibleType reports whether object can be returned where abstract is
// expected.
func (s *Schema) IsPossibleType(abstract, object *Type) bool {
	if abstract == nil || object == nil {
		return false
	}
	if abstract.Name == object.Name {
		return true
	}
	switch abstract.Kind {
	case TypeKindUnion:
		return slices.Contains(abstract.PossibleTypes, object.Name)
	case TypeKindInterface:
		return slices.Contains(object.Interfaces, abstract.Name)
	}
	return false
}

// PossibleTypes lists the object types that may appear at an abstract
// position, in declaration order.
func (s *Schema) PossibleTypes(abstract *Type) []*Type {
	if abstract == nil {
		return nil
	}
	if abstract.Kind == TypeKindObject {
		return []*Type{abstract}
	}
	var out []*Type
	for _, name := range abstract.PossibleTypes {
		if t := s.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

// DoesFragmentApply reports whether a fragment with the given type
// condition applies to an object of type object.
func (s *Schema) DoesFragmentApply(typeCondition string, object *Type) bool {
	if typeCondition == "" {
		return true
	}
	cond := s.Types[typeCondition]
	if cond == nil {
		return false
	}
	return s.IsPossibleType(cond, object)
}

// Bind attaches a resolver to typeName.fieldName.
func (s *Schema) Bind(typeName, fieldName string, r Resolver) error {
	f, err := s.field(typeName, fieldName)
	if err != nil {
		return err
	}
	f.Resolver = r
	return nil
}

// BindAsync attaches a resolver that runs concurrently with its siblings.
func (s *Schema) BindAsync(typeName, fieldName string, r Resolver) error {
	f, err := s.field(typeName, fieldName)
	if err != nil {
		return err
	}
	f.Resolver = r
	f.Async = true
	return nil
}

// BindTypeResolver sets how concrete object types are determined for an
// interface or union.
func (s *Schema) BindTypeResolver(typeName string, r TypeResolver) error {
	t := s.Types[typeName]
	if t == nil || (t.Kind != TypeKindInterface && t.Kind != TypeKindUnion) {
		return fmt.Errorf("%q is not an abstract type", typeName)
	}
	t.ResolveType = r
	return nil
}

// BindScalar installs coercion functions for a custom scalar.
func (s *Schema) BindScalar(typeName string, serialize func(any) (any, error), parseValue func(any) (any, error)) error {
	t := s.Types[typeName]
	if t == nil || t.Kind != TypeKindScalar {
		return fmt.Errorf("%q is not a scalar type", typeName)
	}
	if IsBuiltinScalar(typeName) {
		return fmt.Errorf("built-in scalar %q cannot be rebound", typeName)
	}
	t.Serialize = serialize
	t.ParseValue = parseValue
	return nil
}

func (s *Schema) field(typeName, fieldName string) (*Field, error) {
	t := s.Types[typeName]
	if t == nil {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}
	if t.Kind != TypeKindObject && t.Kind != TypeKindInterface {
		return nil, fmt.Errorf("type %q has no fields", typeName)
	}
	f := t.Field(fieldName)
	if f == nil {
		return nil, fmt.Errorf("unknown field %s.%s", typeName, fieldName)
	}
	return f, nil
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field      // For OBJECT and INTERFACE
	Interfaces     []string      // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes  []string      // For INTERFACE and UNION
	EnumValues     []*EnumValue  // For ENUM
	InputFields    []*InputValue // For INPUT_OBJECT
	SpecifiedByURL *string
	OneOf          bool

	// Coercion for SCALAR types. Nil means values pass through unchanged.
	Serialize  func(any) (any, error) `json:"-"`
	ParseValue func(any) (any, error) `json:"-"`

	// ResolveType picks the concrete object type for INTERFACE and UNION.
	ResolveType TypeResolver `json:"-"`
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type {
	t.Fields = append(t.Fields, f)
	return t
}

func (t *Type) AddInterface(name string) *Type {
	t.Interfaces = append(t.Interfaces, name)
	return t
}

func (t *Type) AddPossibleType(name string) *Type {
	t.PossibleTypes = append(t.PossibleTypes, name)
	return t
}

func (t *Type) AddEnumValue(v *EnumValue) *Type {
	t.EnumValues = append(t.EnumValues, v)
	return t
}

func (t *Type) AddInputField(v *InputValue) *Type {
	t.InputFields = append(t.InputFields, v)
	return t
}

func (t *Type) SetOneOf(oneOf bool) *Type {
	t.OneOf = oneOf
	return t
}

// Field returns the named field or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// InputField returns the named input field or nil.
func (t *Type) InputField(name string) *InputValue {
	for _, f := range t.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// EnumValue returns the named enum value or nil.
func (t *Type) EnumValue(name string) *EnumValue {
	for _, v := range t.EnumValues {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// IsComposite reports whether selections can be made on the type.
func (t *Type) IsComposite() bool {
	return t.Kind == TypeKindObject || t.Kind == TypeKindInterface || t.Kind == TypeKindUnion
}

func (t *Type) IsAbstract() bool {
	return t.Kind == TypeKindInterface || t.Kind == TypeKindUnion
}

func (t *Type) IsLeaf() bool {
	return t.Kind == TypeKindScalar || t.Kind == TypeKindEnum
}

func (t *Type) IsInput() bool {
	return t.Kind == TypeKindScalar || t.Kind == TypeKindEnum || t.Kind == TypeKindInputObject
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Async             bool
	IsDeprecated      bool
	DeprecationReason string

	// Resolver produces the field value. Nil falls back to DefaultResolver.
	Resolver Resolver `json:"-"`
}

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) SetAsync(async bool) *Field {
	f.Async = async
	return f
}

func (f *Field) SetResolver(r Resolver) *Field {
	f.Resolver = r
	return f
}

func (f *Field) AddArgument(arg *InputValue) *Field {
	f.Arguments = append(f.Arguments, arg)
	return f
}

func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

// Argument returns the named argument definition or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// Helper functions for TypeRef
func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

// String renders the reference in SDL notation, e.g. "[Int!]!".
func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	default:
		return t.Named
	}
}

// Equal reports whether two references denote the same wrapped type.
func (t *TypeRef) Equal(o *TypeRef) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind || t.Named != o.Named {
		return false
	}
	if t.Kind == TypeRefKindNamed {
		return true
	}
	return t.OfType.Equal(o.OfType)
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (e *EnumValue) Deprecate(reason string) *EnumValue {
	e.IsDeprecated = true
	e.DeprecationReason = reason
	return e
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	HasDefault        bool
	IsDeprecated      bool
	DeprecationReason string
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue {
	v.DefaultValue = value
	v.HasDefault = true
	return v
}

func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(repeatable bool) *Directive {
	d.IsRepeatable = repeatable
	return d
}

func (d *Directive) AddArgument(arg *InputValue) *Directive {
	d.Arguments = append(d.Arguments, arg)
	return d
}

// Argument returns the named argument definition or nil.
func (d *Directive) Argument(name string) *InputValue {
	for _, a := range d.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether the type is wrapped with Non-Null.
func IsNonNull(t *TypeRef) bool { return t != nil && t.IsNonNull() }

// IsList reports whether the type is (or is wrapped by) a list type.
func IsList(t *TypeRef) bool { return t != nil && t.IsList() }

// Unwrap removes one layer of Non-Null or List wrapping and returns the inner type.
func Unwrap(t *TypeRef) *TypeRef { return t.Unwrap() }

// GetNamedType returns the innermost named type for the given reference.
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }
