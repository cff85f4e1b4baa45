package introspection

import (
	"context"
	"sort"

	schema "github.com/hanpama/gqlexec/internal/schema"
)

type fieldResolvers map[string]schema.Resolver

// source adapts a typed getter on the parent value to a Resolver.
func source[T any](fn func(p schema.ResolveParams, v T) any) schema.Resolver {
	return schema.ResolverFunc(func(_ context.Context, p schema.ResolveParams) (any, error) {
		v, ok := p.Source.(T)
		if !ok {
			return nil, nil
		}
		return fn(p, v), nil
	})
}

var resolvers = map[string]fieldResolvers{
	"__Schema": {
		"description": source(func(_ schema.ResolveParams, s *schema.Schema) any { return optional(s.Description) }),
		"types":       source(func(_ schema.ResolveParams, s *schema.Schema) any { return schemaTypes(s) }),
		"queryType":   source(func(_ schema.ResolveParams, s *schema.Schema) any { return typeOrNil(s.RootType("query")) }),
		"mutationType": source(func(_ schema.ResolveParams, s *schema.Schema) any {
			return typeOrNil(s.RootType("mutation"))
		}),
		"subscriptionType": source(func(_ schema.ResolveParams, s *schema.Schema) any {
			return typeOrNil(s.RootType("subscription"))
		}),
		"directives": source(func(_ schema.ResolveParams, s *schema.Schema) any { return schemaDirectives(s) }),
	},
	"__Type": {
		"kind":           schema.ResolverFunc(typeKind),
		"name":           source(func(_ schema.ResolveParams, t *schema.Type) any { return t.Name }),
		"description":    source(func(_ schema.ResolveParams, t *schema.Type) any { return optional(t.Description) }),
		"specifiedByURL": source(specifiedByURL),
		"fields":         source(typeFields),
		"interfaces":     source(typeInterfaces),
		"possibleTypes":  source(typePossibleTypes),
		"enumValues":     source(typeEnumValues),
		"inputFields":    source(typeInputFields),
		"ofType": source(func(p schema.ResolveParams, ref *schema.TypeRef) any {
			return typeOf(p.Info.Schema, ref.OfType)
		}),
		"isOneOf": source(func(_ schema.ResolveParams, t *schema.Type) any {
			if t.Kind != schema.TypeKindInputObject {
				return nil
			}
			return t.OneOf
		}),
	},
	"__Field": {
		"name":        source(func(_ schema.ResolveParams, f *schema.Field) any { return f.Name }),
		"description": source(func(_ schema.ResolveParams, f *schema.Field) any { return optional(f.Description) }),
		"args": source(func(p schema.ResolveParams, f *schema.Field) any {
			return filterInputs(f.Arguments, includeDeprecated(p))
		}),
		"type":         source(func(p schema.ResolveParams, f *schema.Field) any { return typeOf(p.Info.Schema, f.Type) }),
		"isDeprecated": source(func(_ schema.ResolveParams, f *schema.Field) any { return f.IsDeprecated }),
		"deprecationReason": source(func(_ schema.ResolveParams, f *schema.Field) any {
			return reason(f.IsDeprecated, f.DeprecationReason)
		}),
	},
	"__InputValue": {
		"name":         source(func(_ schema.ResolveParams, v *schema.InputValue) any { return v.Name }),
		"description":  source(func(_ schema.ResolveParams, v *schema.InputValue) any { return optional(v.Description) }),
		"type":         source(func(p schema.ResolveParams, v *schema.InputValue) any { return typeOf(p.Info.Schema, v.Type) }),
		"defaultValue": source(defaultValue),
		"isDeprecated": source(func(_ schema.ResolveParams, v *schema.InputValue) any { return v.IsDeprecated }),
		"deprecationReason": source(func(_ schema.ResolveParams, v *schema.InputValue) any {
			return reason(v.IsDeprecated, v.DeprecationReason)
		}),
	},
	"__EnumValue": {
		"name":         source(func(_ schema.ResolveParams, v *schema.EnumValue) any { return v.Name }),
		"description":  source(func(_ schema.ResolveParams, v *schema.EnumValue) any { return optional(v.Description) }),
		"isDeprecated": source(func(_ schema.ResolveParams, v *schema.EnumValue) any { return v.IsDeprecated }),
		"deprecationReason": source(func(_ schema.ResolveParams, v *schema.EnumValue) any {
			return reason(v.IsDeprecated, v.DeprecationReason)
		}),
	},
	"__Directive": {
		"name":         source(func(_ schema.ResolveParams, d *schema.Directive) any { return d.Name }),
		"description":  source(func(_ schema.ResolveParams, d *schema.Directive) any { return optional(d.Description) }),
		"isRepeatable": source(func(_ schema.ResolveParams, d *schema.Directive) any { return d.IsRepeatable }),
		"locations":    source(func(_ schema.ResolveParams, d *schema.Directive) any { return d.Locations }),
		"args": source(func(p schema.ResolveParams, d *schema.Directive) any {
			return filterInputs(d.Arguments, includeDeprecated(p))
		}),
	},
}

func resolveSchema(_ context.Context, p schema.ResolveParams) (any, error) {
	return p.Info.Schema, nil
}

func resolveType(_ context.Context, p schema.ResolveParams) (any, error) {
	name, _ := p.Args["name"].(string)
	return typeOrNil(p.Info.Schema.Types[name]), nil
}

// typeOf maps a reference to the value a __Type position resolves to:
// the named type itself, or the wrapper reference for lists and non-null.
func typeOf(s *schema.Schema, ref *schema.TypeRef) any {
	if ref == nil {
		return nil
	}
	if ref.Kind == schema.TypeRefKindNamed {
		return typeOrNil(s.Types[ref.Named])
	}
	return ref
}

func typeOrNil(t *schema.Type) any {
	if t == nil {
		return nil
	}
	return t
}

func typeKind(_ context.Context, p schema.ResolveParams) (any, error) {
	switch v := p.Source.(type) {
	case *schema.Type:
		return string(v.Kind), nil
	case *schema.TypeRef:
		return string(v.Kind), nil
	}
	return nil, nil
}

func schemaTypes(s *schema.Schema) []*schema.Type {
	out := make([]*schema.Type, 0, len(s.Types))
	for _, t := range s.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func schemaDirectives(s *schema.Schema) []*schema.Directive {
	out := make([]*schema.Directive, 0, len(s.Directives))
	for _, d := range s.Directives {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func specifiedByURL(_ schema.ResolveParams, t *schema.Type) any {
	if t.SpecifiedByURL == nil {
		return nil
	}
	return *t.SpecifiedByURL
}

func typeFields(p schema.ResolveParams, t *schema.Type) any {
	if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
		return nil
	}
	all := includeDeprecated(p)
	out := []*schema.Field{}
	for _, f := range t.Fields {
		if all || !f.IsDeprecated {
			out = append(out, f)
		}
	}
	return out
}

func typeInterfaces(p schema.ResolveParams, t *schema.Type) any {
	if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
		return nil
	}
	out := []*schema.Type{}
	for _, name := range t.Interfaces {
		if def := p.Info.Schema.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	return out
}

func typePossibleTypes(p schema.ResolveParams, t *schema.Type) any {
	if !t.IsAbstract() {
		return nil
	}
	out := append([]*schema.Type{}, p.Info.Schema.PossibleTypes(t)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func typeEnumValues(p schema.ResolveParams, t *schema.Type) any {
	if t.Kind != schema.TypeKindEnum {
		return nil
	}
	all := includeDeprecated(p)
	out := []*schema.EnumValue{}
	for _, v := range t.EnumValues {
		if all || !v.IsDeprecated {
			out = append(out, v)
		}
	}
	return out
}

func typeInputFields(p schema.ResolveParams, t *schema.Type) any {
	if t.Kind != schema.TypeKindInputObject {
		return nil
	}
	return filterInputs(t.InputFields, includeDeprecated(p))
}

func filterInputs(in []*schema.InputValue, all bool) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, v := range in {
		if all || !v.IsDeprecated {
			out = append(out, v)
		}
	}
	return out
}

// defaultValue renders the default as a GraphQL literal. Enum defaults
// are stored as their names and print unquoted.
func defaultValue(p schema.ResolveParams, v *schema.InputValue) any {
	if !v.HasDefault {
		return nil
	}
	if name, ok := v.DefaultValue.(string); ok {
		if t := p.Info.Schema.Types[v.Type.GetNamedType()]; t != nil && t.Kind == schema.TypeKindEnum {
			return name
		}
	}
	return schema.RenderValue(v.DefaultValue)
}

func includeDeprecated(p schema.ResolveParams) bool {
	b, _ := p.Args["includeDeprecated"].(bool)
	return b
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func reason(deprecated bool, r string) any {
	if !deprecated {
		return nil
	}
	return r
}
