package executor

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	schema "github.com/hanpama/gqlexec/internal/schema"
)

// completeValue shapes a resolved value according to fieldType. A nullable
// position absorbs errNullBubble from below and becomes null; a non-null
// position that ends up null records an error (once per path) and returns
// errNullBubble to its parent.
func (s *executionState) completeValue(fieldType *schema.TypeRef, sel *selection, result any, path Path, order []int) (any, error) {
	if schema.IsNonNull(fieldType) {
		completed, err := s.completeNullable(schema.Unwrap(fieldType), sel, result, path, order)
		if err != nil {
			return nil, err
		}
		if isNullish(completed) {
			if !s.errors.has(path) {
				s.addError(nonNullError(sel.parentType.Name, sel.field.Name), sel, path, order)
			}
			return nil, errNullBubble
		}
		return completed, nil
	}
	completed, err := s.completeNullable(fieldType, sel, result, path, order)
	if err != nil {
		return nil, nil
	}
	return completed, nil
}

func (s *executionState) completeNullable(fieldType *schema.TypeRef, sel *selection, result any, path Path, order []int) (any, error) {
	if isNullish(result) {
		return nil, nil
	}
	if fieldType.Kind == schema.TypeRefKindList {
		return s.completeListValue(fieldType, sel, result, path, order)
	}

	namedType := fieldType.Named
	typeObj := s.schema.Types[namedType]
	if typeObj == nil {
		s.addError(fmt.Errorf("Unknown type: %s", namedType), sel, path, order)
		return nil, nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar:
		if typeObj.Serialize == nil {
			return result, nil
		}
		serialized, err := typeObj.Serialize(result)
		if err != nil {
			s.addError(err, sel, path, order)
			return nil, nil
		}
		return serialized, nil
	case schema.TypeKindEnum:
		serialized, err := schema.SerializeEnum(typeObj, result)
		if err != nil {
			s.addError(err, sel, path, order)
			return nil, nil
		}
		return serialized, nil
	case schema.TypeKindObject:
		return s.completeObjectValue(typeObj, sel, result, path, order)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return s.completeAbstractValue(typeObj, sel, result, path, order)
	}
	s.addError(fmt.Errorf("Cannot complete value of unexpected type: %s", typeObj.Kind), sel, path, order)
	return nil, nil
}

// completeListValue completes each element independently and keeps index
// order. Elements of composite type complete concurrently.
func (s *executionState) completeListValue(listType *schema.TypeRef, sel *selection, result any, path Path, order []int) (any, error) {
	items, ok := toSlice(result)
	if !ok {
		s.addError(fmt.Errorf("Expected Iterable, but did not find one for field \"%s.%s\".", sel.parentType.Name, sel.field.Name), sel, path, order)
		return nil, nil
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	var failed atomic.Bool
	completeItem := func(i int) {
		v, err := s.completeValue(inner, sel, items[i], appendPath(path, i), appendOrder(order, i))
		if err != nil {
			failed.Store(true)
			s.tombstones.mark(path)
			return
		}
		completed[i] = v
	}

	if len(items) > 1 && s.isComposite(inner) {
		var g errgroup.Group
		for i := range items {
			g.Go(func() error { completeItem(i); return nil })
		}
		_ = g.Wait()
	} else {
		for i := range items {
			completeItem(i)
		}
	}
	if failed.Load() {
		// A non-null element was null; the list itself becomes null.
		return nil, errNullBubble
	}
	return completed, nil
}

func (s *executionState) isComposite(t *schema.TypeRef) bool {
	named := s.schema.Types[t.GetNamedType()]
	return named != nil && named.IsComposite()
}

func (s *executionState) completeObjectValue(objectType *schema.Type, sel *selection, result any, path Path, order []int) (any, error) {
	obj, err := s.executeSelectionSet(sel.childSet(objectType), result, path, order, false)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *executionState) completeAbstractValue(abstractType *schema.Type, sel *selection, result any, path Path, order []int) (any, error) {
	typeName, err := s.resolveType(abstractType, result)
	if err != nil {
		s.addError(err, sel, path, order)
		return nil, nil
	}
	objectType := s.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		s.addError(fmt.Errorf("Abstract type %q must resolve to an Object type at runtime for field \"%s.%s\". Got: %q.",
			abstractType.Name, sel.parentType.Name, sel.field.Name, typeName), sel, path, order)
		return nil, nil
	}
	if !s.schema.IsPossibleType(abstractType, objectType) {
		s.addError(fmt.Errorf("Runtime Object type %q is not a possible type for %q.", objectType.Name, abstractType.Name), sel, path, order)
		return nil, nil
	}
	return s.completeObjectValue(objectType, sel, result, path, order)
}

// resolveType asks the abstract type's TypeResolver, then the value itself.
func (s *executionState) resolveType(abstractType *schema.Type, value any) (string, error) {
	if abstractType.ResolveType != nil {
		return abstractType.ResolveType(s.ctx, value)
	}
	switch v := value.(type) {
	case schema.Typed:
		return v.GraphQLTypeName(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	if possible := s.schema.PossibleTypes(abstractType); len(possible) == 1 {
		return possible[0].Name, nil
	}
	return "", fmt.Errorf("Abstract type %q must resolve to an Object type at runtime. Either bind a type resolver or return values naming their type.", abstractType.Name)
}
