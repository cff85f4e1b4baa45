package executor

import (
	"errors"
	"fmt"
	"sync"

	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// ExecutionContext is the per-request state produced by Plan and consumed
// by Execute. It is owned by a single execution.
type ExecutionContext struct {
	Schema    *schema.Schema
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	RootType  *schema.Type
	Variables map[string]any // coerced, defaults applied
	RootValue any

	// Tracer observes resolver invocations; nil disables tracing.
	Tracer FieldTracer

	root *selectionSet
}

// OperationType returns "query", "mutation" or "subscription".
func (ec *ExecutionContext) OperationType() string {
	return string(ec.Operation.Operation)
}

// selectionSet is the bound form of a selection set on one concrete object
// type: fragments inlined, directives applied, same-name fields merged.
type selectionSet struct {
	objectType *schema.Type
	fields     []*selection
}

// selection is one response key of a selectionSet.
type selection struct {
	responseName string
	field        *schema.Field // nil if the type has no such field
	parentType   *schema.Type
	nodes        []*language.Field
	args         map[string]any
	argErr       error

	planner  *planner
	children *selectionSet // for object return types

	mu     sync.Mutex
	byType map[string]*selectionSet // for abstract return types
}

// childSet returns the bound sub-selection for a concrete object type.
// Sets for abstract positions are built the first time a value of that
// type is seen.
func (sel *selection) childSet(objectType *schema.Type) *selectionSet {
	if sel.children != nil && sel.children.objectType == objectType {
		return sel.children
	}
	sel.mu.Lock()
	defer sel.mu.Unlock()
	if set, ok := sel.byType[objectType.Name]; ok {
		return set
	}
	set := sel.planner.buildSelectionSet(objectType, sel.subSelections())
	if sel.byType == nil {
		sel.byType = make(map[string]*selectionSet)
	}
	sel.byType[objectType.Name] = set
	return set
}

// subSelections returns the selection sets of all merged field nodes.
func (sel *selection) subSelections() []language.SelectionSet {
	sets := make([]language.SelectionSet, 0, len(sel.nodes))
	for _, n := range sel.nodes {
		if len(n.SelectionSet) > 0 {
			sets = append(sets, n.SelectionSet)
		}
	}
	return sets
}

type planner struct {
	schema    *schema.Schema
	document  *language.QueryDocument
	variables map[string]any
}

// Plan selects the operation, coerces variables and binds the root
// selection set. Failures are returned as *RequestError.
func Plan(
	s *schema.Schema,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
) (*ExecutionContext, error) {
	operation, err := getOperation(document, operationName)
	if err != nil {
		return nil, NewRequestError(CodeOperationResolution, &GraphQLError{Message: err.Error()})
	}

	rootType := s.RootType(string(operation.Operation))
	if rootType == nil {
		return nil, NewRequestError(CodeOperationResolution, &GraphQLError{
			Message: fmt.Sprintf("Schema is not configured to execute %s operation.", operation.Operation),
		})
	}

	coerced, errs := coerceVariableValues(s, operation, variableValues)
	if len(errs) > 0 {
		return nil, NewRequestError(CodeVariableCoercion, errs...)
	}

	p := &planner{schema: s, document: document, variables: coerced}
	return &ExecutionContext{
		Schema:    s,
		Document:  document,
		Operation: operation,
		RootType:  rootType,
		Variables: coerced,
		root:      p.buildSelectionSet(rootType, []language.SelectionSet{operation.SelectionSet}),
	}, nil
}

func (p *planner) buildSelectionSet(objectType *schema.Type, sets []language.SelectionSet) *selectionSet {
	grouped := p.collectFields(objectType, sets)
	out := &selectionSet{objectType: objectType}
	for _, cf := range grouped.orderedFields() {
		node := cf.Fields[0]
		sel := &selection{
			responseName: cf.ResponseName,
			parentType:   objectType,
			nodes:        cf.Fields,
			planner:      p,
		}
		sel.field = p.schema.LookupField(objectType, node.Name)
		if sel.field != nil {
			sel.args, sel.argErr = coerceArgumentValues(p.schema, sel.field.Arguments, node.Arguments, p.variables)
			if named := p.schema.Types[sel.field.Type.GetNamedType()]; named != nil && named.Kind == schema.TypeKindObject {
				sel.children = p.buildSelectionSet(named, sel.subSelections())
			}
		}
		out.fields = append(out.fields, sel)
	}
	return out
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) (*language.OperationDefinition, error) {
	if operationName == "" {
		switch len(document.Operations) {
		case 0:
			return nil, errors.New("Must provide an operation.")
		case 1:
			return document.Operations[0], nil
		default:
			return nil, errors.New("Must provide operation name if query contains multiple operations.")
		}
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op, nil
		}
	}
	return nil, fmt.Errorf("Unknown operation named %q.", operationName)
}
