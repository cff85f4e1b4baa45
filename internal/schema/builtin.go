package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var stringType = &Type{
	Name:        "String",
	Kind:        TypeKindScalar,
	Description: "The `String` scalar type represents textual data, represented as UTF-8 character sequences.",
	Serialize:   serializeString,
	ParseValue:  parseString,
}

var intType = &Type{
	Name:        "Int",
	Kind:        TypeKindScalar,
	Description: "The `Int` scalar type represents non-fractional signed whole numeric values.",
	Serialize:   serializeInt,
	ParseValue:  parseInt,
}

var floatType = &Type{
	Name:        "Float",
	Kind:        TypeKindScalar,
	Description: "The `Float` scalar type represents signed double-precision fractional values.",
	Serialize:   serializeFloat,
	ParseValue:  parseFloat,
}

var booleanType = &Type{
	Name:        "Boolean",
	Kind:        TypeKindScalar,
	Description: "The `Boolean` scalar type represents `true` or `false`.",
	Serialize:   serializeBoolean,
	ParseValue:  parseBoolean,
}

var idType = &Type{
	Name:        "ID",
	Kind:        TypeKindScalar,
	Description: "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.",
	Serialize:   serializeID,
	ParseValue:  parseID,
}

var builtinScalars = []*Type{stringType, intType, floatType, booleanType, idType}

// IsBuiltinScalar reports whether name is one of the five specified scalars.
func IsBuiltinScalar(name string) bool {
	for _, t := range builtinScalars {
		if t.Name == name {
			return true
		}
	}
	return false
}

var includeDirective = &Directive{
	Name:        "include",
	Description: "Directs the executor to include this field or fragment only when the `if` argument is true.",
	Arguments: []*InputValue{
		{
			Name:        "if",
			Description: "Included when true.",
			Type:        NonNullType(NamedType("Boolean")),
		},
	},
	Locations:    []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	IsRepeatable: false,
}

var skipDirective = &Directive{
	Name:        "skip",
	Description: "Directs the executor to skip this field or fragment when the `if` argument is true.",
	Arguments: []*InputValue{
		{
			Name:        "if",
			Description: "Skipped when true.",
			Type:        NonNullType(NamedType("Boolean")),
		},
	},
	Locations:    []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	IsRepeatable: false,
}

var deprecatedDirective = &Directive{
	Name:        "deprecated",
	Description: "Marks an element of a GraphQL schema as no longer supported.",
	Arguments: []*InputValue{
		{
			Name:         "reason",
			Description:  "Explains why this element was deprecated.",
			Type:         NamedType("String"),
			DefaultValue: "No longer supported",
			HasDefault:   true,
		},
	},
	Locations: []string{"FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INPUT_FIELD_DEFINITION", "ENUM_VALUE"},
}

var specifiedByDirective = &Directive{
	Name:        "specifiedBy",
	Description: "Exposes a URL that specifies the behavior of this scalar.",
	Arguments: []*InputValue{
		{
			Name:        "url",
			Description: "The URL that specifies the behavior of this scalar.",
			Type:        NonNullType(NamedType("String")),
		},
	},
	Locations: []string{"SCALAR"},
}

var builtinDirectives = []*Directive{includeDirective, skipDirective, deprecatedDirective, specifiedByDirective}

func isBuiltinDirective(d *Directive) bool {
	for _, b := range builtinDirectives {
		if b == d {
			return true
		}
	}
	return false
}

var typenameField = &Field{
	Name:        "__typename",
	Description: "The name of the current Object type at runtime.",
	Type:        NonNullType(NamedType("String")),
}

// IsTypenameField reports whether f is the __typename meta field.
func IsTypenameField(f *Field) bool { return f == typenameField }

// ----- scalar coercion -----

func serializeString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	if n, ok := toFloat(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("String cannot represent value: %v", v)
}

func parseString(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, fmt.Errorf("String cannot represent a non string value: %v", v)
}

func serializeInt(v any) (any, error) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return toInt32(v)
}

func parseInt(v any) (any, error) {
	if _, ok := v.(bool); ok {
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
	}
	return toInt32(v)
}

func toInt32(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %v", v)
	}
	return int(f), nil
}

func serializeFloat(v any) (any, error) {
	if b, ok := v.(bool); ok {
		if b {
			return 1.0, nil
		}
		return 0.0, nil
	}
	return parseFloat(v)
}

func parseFloat(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("Float cannot represent non numeric value: %v", v)
	}
	return f, nil
}

func serializeBoolean(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	if f, ok := toFloat(v); ok {
		return f != 0, nil
	}
	return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", v)
}

func parseBoolean(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", v)
}

func serializeID(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	}
	if f, ok := toFloat(v); ok && f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("ID cannot represent value: %v", v)
}

func parseID(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	if f, ok := toFloat(v); ok && f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("ID cannot represent value: %v", v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// SerializeEnum checks that v names a value of the enum type t.
func SerializeEnum(t *Type, v any) (any, error) {
	var name string
	switch x := v.(type) {
	case string:
		name = x
	case fmt.Stringer:
		name = x.String()
	default:
		return nil, fmt.Errorf("Enum %q cannot represent value: %v", t.Name, v)
	}
	if t.EnumValue(name) == nil {
		return nil, fmt.Errorf("Enum %q cannot represent value: %q", t.Name, name)
	}
	return name, nil
}
