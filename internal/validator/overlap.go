package validator

import (
	"fmt"
	"strings"

	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// overlappingFieldsCanBeMerged reports fields sharing a response name that
// cannot be merged into one result entry. Two such fields must select the
// same field with the same arguments, return types of the same shape, and
// have sub-selections that merge in turn. Fields whose parents are
// distinct object types never apply to the same object, so for them only
// the return shapes have to agree.
func overlappingFieldsCanBeMerged(c *Context) {
	m := &fieldMerger{
		c:        c,
		reported: make(map[fieldPair]bool),
		active:   make(map[fieldPair]bool),
	}
	for _, visit := range c.sets {
		m.within(m.collect(visit.Parent, visit.Set))
	}
}

// mergeField is one field selection with the type it was selected on.
// parent and def are nil when the type or the field is unknown.
type mergeField struct {
	parent *schema.Type
	node   *language.Field
	def    *schema.Field
}

// fieldMap groups the fields of a selection set, fragments included, by
// response name in first-seen order.
type fieldMap struct {
	names  []string
	fields map[string][]mergeField
}

type fieldPair [2]*language.Field

type fieldMerger struct {
	c        *Context
	reported map[fieldPair]bool
	// active holds the pairs being compared further up the stack; fragment
	// cycles would otherwise recurse forever.
	active map[fieldPair]bool
}

func (m *fieldMerger) collect(parent *schema.Type, set language.SelectionSet) *fieldMap {
	fm := &fieldMap{fields: make(map[string][]mergeField)}
	m.collectInto(fm, parent, set, make(map[string]bool))
	return fm
}

func (m *fieldMerger) collectInto(fm *fieldMap, parent *schema.Type, set language.SelectionSet, seen map[string]bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			key := s.Alias
			if key == "" {
				key = s.Name
			}
			if _, ok := fm.fields[key]; !ok {
				fm.names = append(fm.names, key)
			}
			fm.fields[key] = append(fm.fields[key], mergeField{
				parent: parent,
				node:   s,
				def:    m.c.Schema.LookupField(parent, s.Name),
			})
		case *language.InlineFragment:
			t := parent
			if s.TypeCondition != "" {
				t = m.c.compositeType(s.TypeCondition)
			}
			m.collectInto(fm, t, s.SelectionSet, seen)
		case *language.FragmentSpread:
			f := m.c.fragments[s.Name]
			if f == nil || seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			m.collectInto(fm, m.c.compositeType(f.TypeCondition), f.SelectionSet, seen)
		}
	}
}

// within compares every pair of fields sharing a response name in fm.
func (m *fieldMerger) within(fm *fieldMap) {
	for _, key := range fm.names {
		fields := fm.fields[key]
		for i := range fields {
			for j := i + 1; j < len(fields); j++ {
				m.check(key, fields[i], fields[j])
			}
		}
	}
}

func (m *fieldMerger) check(key string, a, b mergeField) {
	pair := fieldPair{a.node, b.node}
	if m.reported[pair] || m.reported[fieldPair{b.node, a.node}] {
		return
	}
	if reason := m.conflict(a, b, false); reason != "" {
		m.reported[pair] = true
		m.c.Report(b.node.Position, `Fields "%s" conflict because %s. Use different aliases on the fields to fetch both if this was intentional.`, key, reason)
	}
}

// conflict returns why a and b cannot share a response name, or "" when
// they can. exclusive is set once an enclosing pair was found to run on
// distinct object types.
func (m *fieldMerger) conflict(a, b mergeField, exclusive bool) string {
	if a.node == b.node {
		return ""
	}
	pair := fieldPair{a.node, b.node}
	if m.active[pair] {
		return ""
	}
	m.active[pair] = true
	defer delete(m.active, pair)

	exclusive = exclusive || (a.parent != b.parent && isObject(a.parent) && isObject(b.parent))
	if !exclusive {
		if a.node.Name != b.node.Name {
			return fmt.Sprintf(`"%s" and "%s" are different fields`, a.node.Name, b.node.Name)
		}
		if !sameArguments(a.node.Arguments, b.node.Arguments) {
			return "they have differing arguments"
		}
	}
	if a.def != nil && b.def != nil && m.typesConflict(a.def.Type, b.def.Type) {
		return fmt.Sprintf(`they return conflicting types "%s" and "%s"`, a.def.Type, b.def.Type)
	}
	if len(a.node.SelectionSet) == 0 || len(b.node.SelectionSet) == 0 {
		return ""
	}
	return m.between(
		m.collect(m.returnType(a), a.node.SelectionSet),
		m.collect(m.returnType(b), b.node.SelectionSet),
		exclusive,
	)
}

// between compares the fields of two sub-selections that will be merged
// under one response name.
func (m *fieldMerger) between(fa, fb *fieldMap, exclusive bool) string {
	var reasons []string
names:
	for _, key := range fa.names {
		others, ok := fb.fields[key]
		if !ok {
			continue
		}
		for _, x := range fa.fields[key] {
			for _, y := range others {
				if reason := m.conflict(x, y, exclusive); reason != "" {
					reasons = append(reasons, fmt.Sprintf(`subfields "%s" conflict because %s`, key, reason))
					continue names
				}
			}
		}
	}
	return strings.Join(reasons, " and ")
}

func (m *fieldMerger) returnType(f mergeField) *schema.Type {
	if f.def == nil {
		return nil
	}
	return m.c.compositeType(f.def.Type.GetNamedType())
}

// typesConflict reports whether two return types differ in list or
// non-null wrapping, or are different leaf types.
func (m *fieldMerger) typesConflict(a, b *schema.TypeRef) bool {
	switch {
	case a.Kind == schema.TypeRefKindList:
		return b.Kind != schema.TypeRefKindList || m.typesConflict(a.OfType, b.OfType)
	case b.Kind == schema.TypeRefKindList:
		return true
	case a.Kind == schema.TypeRefKindNonNull:
		return b.Kind != schema.TypeRefKindNonNull || m.typesConflict(a.OfType, b.OfType)
	case b.Kind == schema.TypeRefKindNonNull:
		return true
	}
	ta, tb := m.c.Schema.Types[a.Named], m.c.Schema.Types[b.Named]
	if (ta != nil && ta.IsLeaf()) || (tb != nil && tb.IsLeaf()) {
		return a.Named != b.Named
	}
	return false
}

func isObject(t *schema.Type) bool {
	return t != nil && t.Kind == schema.TypeKindObject
}

func sameArguments(a, b language.ArgumentList) bool {
	if len(a) != len(b) {
		return false
	}
	for _, arg := range a {
		other := b.ForName(arg.Name)
		if other == nil || other.Value.String() != arg.Value.String() {
			return false
		}
	}
	return true
}
