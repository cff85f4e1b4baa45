package executor

import (
	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{
		fields: make([]collectedField, 0),
		index:  make(map[string]int),
	}
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields groups the fields of one or more selection sets by
// response name for a concrete object type. Fragments are inlined when
// their type condition applies to objectType.
func (p *planner) collectFields(objectType *schema.Type, selectionSets []language.SelectionSet) *collectedFieldMap {
	groupedFields := newCollectedFieldMap()
	visitedFragments := make(map[string]bool)
	for _, set := range selectionSets {
		p.collectFieldsImpl(objectType, set, groupedFields, visitedFragments)
	}
	return groupedFields
}

func (p *planner) collectFieldsImpl(objectType *schema.Type, selectionSet language.SelectionSet, groupedFields *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !p.shouldIncludeNode(sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			groupedFields.add(responseName, sel)

		case *language.InlineFragment:
			if !p.shouldIncludeNode(sel.Directives) {
				continue
			}
			if !p.schema.DoesFragmentApply(sel.TypeCondition, objectType) {
				continue
			}
			p.collectFieldsImpl(objectType, sel.SelectionSet, groupedFields, visitedFragments)

		case *language.FragmentSpread:
			if !p.shouldIncludeNode(sel.Directives) {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			fragmentDef := p.document.Fragments.ForName(sel.Name)
			if fragmentDef == nil {
				continue
			}
			if !p.schema.DoesFragmentApply(fragmentDef.TypeCondition, objectType) {
				continue
			}
			p.collectFieldsImpl(objectType, fragmentDef.SelectionSet, groupedFields, visitedFragments)
		}
	}
}

// shouldIncludeNode checks if a node should be included based on directives
func (p *planner) shouldIncludeNode(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := p.directiveArgument(skip, "if").(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := p.directiveArgument(include, "if").(bool); ok && !v {
			return false
		}
	}
	return true
}

func (p *planner) directiveArgument(directive *language.Directive, argName string) any {
	arg := directive.Arguments.ForName(argName)
	if arg == nil {
		return nil
	}
	return language.ValueToGo(arg.Value, p.variables)
}
