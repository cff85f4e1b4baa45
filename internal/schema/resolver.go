package schema

import (
	"context"
	"reflect"
	"strings"
)

// ResolveParams is what a resolver receives besides its context.
type ResolveParams struct {
	Source any            // parent value
	Args   map[string]any // coerced argument values, defaults applied
	Info   ResolveInfo
}

// ResolveInfo describes the position of the field being resolved.
type ResolveInfo struct {
	FieldName  string
	ParentType *Type
	ReturnType *TypeRef
	Path       []any // response names and list indices
	Schema     *Schema
}

// Resolver produces the value for one field of one object.
type Resolver interface {
	Resolve(ctx context.Context, p ResolveParams) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, p ResolveParams) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, p ResolveParams) (any, error) {
	return f(ctx, p)
}

// TypeResolver returns the concrete object type name for a value returned
// at an interface or union position.
type TypeResolver func(ctx context.Context, value any) (string, error)

// Typed may be implemented by resolver results to name their object type
// when no TypeResolver is bound.
type Typed interface {
	GraphQLTypeName() string
}

// DefaultResolver reads a field from the parent value: a map key, or an
// exported struct field matched by `graphql` tag, `json` tag or
// case-insensitive name.
var DefaultResolver Resolver = ResolverFunc(func(_ context.Context, p ResolveParams) (any, error) {
	return project(p.Source, p.Info.FieldName), nil
})

func project(source any, name string) any {
	switch src := source.(type) {
	case nil:
		return nil
	case map[string]any:
		return src[name]
	}
	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	case reflect.Struct:
		rt := rv.Type()
		fallback := -1
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			if tagName(sf.Tag.Get("graphql")) == name || tagName(sf.Tag.Get("json")) == name {
				return rv.Field(i).Interface()
			}
			if fallback < 0 && strings.EqualFold(sf.Name, name) {
				fallback = i
			}
		}
		if fallback >= 0 {
			return rv.Field(fallback).Interface()
		}
	}
	return nil
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}
