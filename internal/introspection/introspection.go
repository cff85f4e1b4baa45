// Package introspection adds the __schema and __type meta fields and the
// __-prefixed types they return. Every introspection field is an ordinary
// bound resolver, so introspection queries run through the same executor
// as any other query.
package introspection

import (
	"maps"

	schema "github.com/hanpama/gqlexec/internal/schema"
)

// Install returns a copy of s extended with the introspection types and
// the query-root meta fields. s itself is not modified.
func Install(s *schema.Schema) *schema.Schema {
	ext := *s
	ext.Types = maps.Clone(s.Types)
	for _, t := range types() {
		bindAll(t)
		ext.Types[t.Name] = t
	}
	ext.MetaFields = map[string]*schema.Field{
		"__schema": schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.NamedType("__Schema"))).
			SetResolver(schema.ResolverFunc(resolveSchema)),
		"__type": schema.NewField("__type", "Request the type information of a single type.",
			schema.NamedType("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.NamedType("String")))).
			SetResolver(schema.ResolverFunc(resolveType)),
	}
	return &ext
}

// Installed reports whether s answers introspection queries.
func Installed(s *schema.Schema) bool {
	_, ok := s.MetaFields["__schema"]
	return ok
}

func types() []*schema.Type {
	return []*schema.Type{
		schemaType(),
		typeType(),
		fieldType(),
		inputValueType(),
		enumValueType(),
		directiveType(),
		typeKindEnum(),
		directiveLocationEnum(),
	}
}

func bindAll(t *schema.Type) {
	table := resolvers[t.Name]
	for _, f := range t.Fields {
		if r, ok := table[f.Name]; ok {
			f.SetResolver(r)
		}
	}
}

func includeDeprecatedArg() *schema.InputValue {
	return schema.NewInputValue("includeDeprecated", "", schema.NamedType("Boolean")).SetDefault(false)
}

func schemaType() *schema.Type {
	return &schema.Type{
		Name:        "__Schema",
		Kind:        schema.TypeKindObject,
		Description: "A GraphQL Schema defines the capabilities of a GraphQL server.",
		Fields: []*schema.Field{
			{
				Name: "description",
				Type: schema.NamedType("String"),
			},
			{
				Name:        "types",
				Description: "A list of all types supported by this server.",
				Type:        schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("__Type")))),
			},
			{
				Name:        "queryType",
				Description: "The type that query operations will be rooted at.",
				Type:        schema.NonNullType(schema.NamedType("__Type")),
			},
			{
				Name:        "mutationType",
				Description: "If this server supports mutation, the type that mutation operations will be rooted at.",
				Type:        schema.NamedType("__Type"),
			},
			{
				Name:        "subscriptionType",
				Description: "If this server support subscription, the type that subscription operations will be rooted at.",
				Type:        schema.NamedType("__Type"),
			},
			{
				Name:        "directives",
				Description: "A list of all directives supported by this server.",
				Type:        schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("__Directive")))),
			},
		},
	}
}

func typeType() *schema.Type {
	return &schema.Type{
		Name:        "__Type",
		Kind:        schema.TypeKindObject,
		Description: "The fundamental unit of any GraphQL Schema is the type.",
		Fields: []*schema.Field{
			{Name: "kind", Type: schema.NonNullType(schema.NamedType("__TypeKind"))},
			{Name: "name", Type: schema.NamedType("String")},
			{Name: "description", Type: schema.NamedType("String")},
			{Name: "specifiedByURL", Type: schema.NamedType("String")},
			{
				Name:      "fields",
				Arguments: []*schema.InputValue{includeDeprecatedArg()},
				Type:      schema.ListType(schema.NonNullType(schema.NamedType("__Field"))),
			},
			{Name: "interfaces", Type: schema.ListType(schema.NonNullType(schema.NamedType("__Type")))},
			{Name: "possibleTypes", Type: schema.ListType(schema.NonNullType(schema.NamedType("__Type")))},
			{
				Name:      "enumValues",
				Arguments: []*schema.InputValue{includeDeprecatedArg()},
				Type:      schema.ListType(schema.NonNullType(schema.NamedType("__EnumValue"))),
			},
			{
				Name:      "inputFields",
				Arguments: []*schema.InputValue{includeDeprecatedArg()},
				Type:      schema.ListType(schema.NonNullType(schema.NamedType("__InputValue"))),
			},
			{Name: "ofType", Type: schema.NamedType("__Type")},
			{Name: "isOneOf", Type: schema.NamedType("Boolean")},
		},
	}
}

func fieldType() *schema.Type {
	return &schema.Type{
		Name: "__Field",
		Kind: schema.TypeKindObject,
		Fields: []*schema.Field{
			{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
			{Name: "description", Type: schema.NamedType("String")},
			{
				Name:      "args",
				Arguments: []*schema.InputValue{includeDeprecatedArg()},
				Type:      schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("__InputValue")))),
			},
			{Name: "type", Type: schema.NonNullType(schema.NamedType("__Type"))},
			{Name: "isDeprecated", Type: schema.NonNullType(schema.NamedType("Boolean"))},
			{Name: "deprecationReason", Type: schema.NamedType("String")},
		},
	}
}

func inputValueType() *schema.Type {
	return &schema.Type{
		Name: "__InputValue",
		Kind: schema.TypeKindObject,
		Fields: []*schema.Field{
			{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
			{Name: "description", Type: schema.NamedType("String")},
			{Name: "type", Type: schema.NonNullType(schema.NamedType("__Type"))},
			{Name: "defaultValue", Type: schema.NamedType("String")},
			{Name: "isDeprecated", Type: schema.NonNullType(schema.NamedType("Boolean"))},
			{Name: "deprecationReason", Type: schema.NamedType("String")},
		},
	}
}

func enumValueType() *schema.Type {
	return &schema.Type{
		Name: "__EnumValue",
		Kind: schema.TypeKindObject,
		Fields: []*schema.Field{
			{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
			{Name: "description", Type: schema.NamedType("String")},
			{Name: "isDeprecated", Type: schema.NonNullType(schema.NamedType("Boolean"))},
			{Name: "deprecationReason", Type: schema.NamedType("String")},
		},
	}
}

func directiveType() *schema.Type {
	return &schema.Type{
		Name: "__Directive",
		Kind: schema.TypeKindObject,
		Fields: []*schema.Field{
			{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
			{Name: "description", Type: schema.NamedType("String")},
			{Name: "isRepeatable", Type: schema.NonNullType(schema.NamedType("Boolean"))},
			{Name: "locations", Type: schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("__DirectiveLocation"))))},
			{
				Name:      "args",
				Arguments: []*schema.InputValue{includeDeprecatedArg()},
				Type:      schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("__InputValue")))),
			},
		},
	}
}

func enumType(name string, values ...string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, "")
	for _, v := range values {
		t.AddEnumValue(schema.NewEnumValue(v, ""))
	}
	return t
}

func typeKindEnum() *schema.Type {
	return enumType("__TypeKind",
		"SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL")
}

func directiveLocationEnum() *schema.Type {
	return enumType("__DirectiveLocation",
		"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION", "FRAGMENT_SPREAD",
		"INLINE_FRAGMENT", "VARIABLE_DEFINITION", "SCHEMA", "SCALAR", "OBJECT", "FIELD_DEFINITION",
		"ARGUMENT_DEFINITION", "INTERFACE", "UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT",
		"INPUT_FIELD_DEFINITION")
}
