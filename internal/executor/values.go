package executor

import (
	"fmt"
	"reflect"
	"sort"

	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// coerceVariableValues coerces variable values according to their types.
// Every variable is checked; all failures are returned together.
func coerceVariableValues(
	s *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, []*GraphQLError) {
	coerced := make(map[string]any)
	var errs []*GraphQLError
	fail := func(varDef *language.VariableDefinition, format string, args ...any) {
		e := &GraphQLError{Message: fmt.Sprintf(format, args...)}
		if varDef.Position != nil {
			e.Locations = []Location{{Line: varDef.Position.Line, Column: varDef.Position.Column}}
		}
		errs = append(errs, e)
	}

	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := schema.BuildTypeRef(varDef.Type)
		if named := s.Types[t.GetNamedType()]; named == nil || !named.IsInput() {
			fail(varDef, "Variable \"$%s\" expected value of type %q which cannot be used as an input type.", name, t.String())
			continue
		}
		val, ok := variableValues[name]
		if !ok {
			if varDef.DefaultValue != nil {
				cv, err := coerceInputValue(s, language.ValueToGo(varDef.DefaultValue, nil), t)
				if err != nil {
					fail(varDef, "Variable \"$%s\" has invalid default value: %v", name, err)
					continue
				}
				coerced[name] = cv
			} else if t.IsNonNull() {
				fail(varDef, "Variable \"$%s\" of required type %q was not provided.", name, t.String())
			}
			continue
		}
		if isNullish(val) && t.IsNonNull() {
			fail(varDef, "Variable \"$%s\" of non-null type %q must not be null.", name, t.String())
			continue
		}
		cv, err := coerceInputValue(s, val, t)
		if err != nil {
			fail(varDef, "Variable \"$%s\" got invalid value %s; %v", name, describe(val), err)
			continue
		}
		coerced[name] = cv
	}
	return coerced, errs
}

// coerceArgumentValues coerces the arguments of one field or directive.
func coerceArgumentValues(
	s *schema.Schema,
	argDefs []*schema.InputValue,
	arguments language.ArgumentList,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any, len(argDefs))
	for _, argDef := range argDefs {
		name := argDef.Name
		node := arguments.ForName(name)
		hasValue := node != nil && node.Value != nil
		var val any
		if hasValue && node.Value.Kind == language.Variable {
			val, hasValue = variableValues[node.Value.Raw]
		} else if hasValue {
			val = language.ValueToGo(node.Value, variableValues)
		}
		if !hasValue {
			if argDef.HasDefault {
				coerced[name] = argDef.DefaultValue
			} else if schema.IsNonNull(argDef.Type) {
				return nil, fmt.Errorf("Argument %q of required type %q was not provided.", name, argDef.Type.String())
			}
			continue
		}
		if isNullish(val) && schema.IsNonNull(argDef.Type) {
			return nil, fmt.Errorf("Argument %q of non-null type %q must not be null.", name, argDef.Type.String())
		}
		cv, err := coerceInputValue(s, val, argDef.Type)
		if err != nil {
			return nil, fmt.Errorf("Argument %q has invalid value %s: %v", name, describe(val), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceInputValue coerces a value to the specified GraphQL input type
func coerceInputValue(s *schema.Schema, value any, targetType *schema.TypeRef) (any, error) {
	// Handle Non-Null wrapper
	if schema.IsNonNull(targetType) {
		if isNullish(value) {
			return nil, fmt.Errorf("expected non-nullable type %q not to be null", targetType.String())
		}
		return coerceInputValue(s, value, schema.Unwrap(targetType))
	}

	// Handle null for nullable types
	if isNullish(value) {
		return nil, nil
	}

	// Handle List wrapper
	if targetType.Kind == schema.TypeRefKindList {
		return coerceListValue(s, value, targetType)
	}

	named := s.Types[targetType.Named]
	if named == nil {
		return nil, fmt.Errorf("unknown type %q", targetType.Named)
	}
	switch named.Kind {
	case schema.TypeKindScalar:
		if named.ParseValue == nil {
			return value, nil
		}
		return named.ParseValue(value)
	case schema.TypeKindEnum:
		str, ok := value.(string)
		if !ok || named.EnumValue(str) == nil {
			return nil, fmt.Errorf("value %s does not exist in %q enum", describe(value), named.Name)
		}
		return str, nil
	case schema.TypeKindInputObject:
		return coerceInputObject(s, value, named)
	}
	return nil, fmt.Errorf("type %q is not an input type", named.Name)
}

// coerceListValue coerces a value to a list; a single value becomes a list
// of one.
func coerceListValue(s *schema.Schema, value any, listType *schema.TypeRef) (any, error) {
	innerType := schema.Unwrap(listType)
	items, ok := toSlice(value)
	if !ok {
		item, err := coerceInputValue(s, value, innerType)
		if err != nil {
			return nil, err
		}
		return []any{item}, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		cv, err := coerceInputValue(s, item, innerType)
		if err != nil {
			return nil, fmt.Errorf("at index %d: %w", i, err)
		}
		out[i] = cv
	}
	return out, nil
}

func coerceInputObject(s *schema.Schema, value any, t *schema.Type) (any, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected type %q to be an object", t.Name)
	}
	unknown := make([]string, 0)
	for name := range fields {
		if t.InputField(name) == nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("field %q is not defined by type %q", unknown[0], t.Name)
	}
	out := make(map[string]any, len(t.InputFields))
	for _, def := range t.InputFields {
		raw, present := fields[def.Name]
		if !present {
			if def.HasDefault {
				out[def.Name] = def.DefaultValue
			} else if schema.IsNonNull(def.Type) {
				return nil, fmt.Errorf("field %q of required type %q was not provided", t.Name+"."+def.Name, def.Type.String())
			}
			continue
		}
		cv, err := coerceInputValue(s, raw, def.Type)
		if err != nil {
			return nil, fmt.Errorf("in field %q: %w", def.Name, err)
		}
		out[def.Name] = cv
	}
	if t.OneOf {
		set := 0
		for _, v := range out {
			if v != nil {
				set++
			}
		}
		if set != 1 || len(out) != 1 {
			return nil, fmt.Errorf("OneOf input object %q must specify exactly one non-null key", t.Name)
		}
	}
	return out, nil
}

func toSlice(value any) ([]any, bool) {
	if direct, ok := value.([]any); ok {
		return direct, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
