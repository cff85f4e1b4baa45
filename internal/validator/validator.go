// Package validator checks query documents against a schema. Rules run
// independently and every violation is collected; nothing short-circuits.
package validator

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// Rule is one named check. Check reports violations through the Context.
type Rule struct {
	Name  string
	Check func(c *Context)
}

// Validator applies an ordered rule list.
type Validator struct {
	rules []Rule
}

// New returns a Validator running rules in the given order.
func New(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// Default returns a Validator running DefaultRules.
func Default() *Validator {
	return New(DefaultRules()...)
}

// Rules returns the configured rules.
func (v *Validator) Rules() []Rule {
	return append([]Rule(nil), v.rules...)
}

// Validate returns every violation found in doc, or nil when it is valid.
func (v *Validator) Validate(s *schema.Schema, doc *language.QueryDocument) gqlerror.List {
	c := newContext(s, doc)
	for _, r := range v.rules {
		c.rule = r.Name
		r.Check(c)
	}
	return c.errs
}

// FieldVisit is one field selection with the type it was selected on.
// Parent is nil when the enclosing type is unknown; Def is nil when the
// field does not exist on Parent.
type FieldVisit struct {
	Parent *schema.Type
	Field  *language.Field
	Def    *schema.Field
}

// InlineFragmentVisit is one inline fragment with its enclosing type.
type InlineFragmentVisit struct {
	Parent   *schema.Type
	Fragment *language.InlineFragment
}

// SpreadVisit is one named fragment spread with its enclosing type.
type SpreadVisit struct {
	Parent *schema.Type
	Spread *language.FragmentSpread
}

// SelectionSetVisit is one selection set with the type it selects from.
type SelectionSetVisit struct {
	Parent *schema.Type
	Set    language.SelectionSet
}

// DirectiveListVisit is the directive list attached at one location, such
// as "FIELD" or "QUERY".
type DirectiveListVisit struct {
	Location   string
	Directives language.DirectiveList
	Pos        *language.Position
}

// ArgumentSite is an argument list given to a field or a directive.
// Exactly one of Field and Directive is set when the target is known.
type ArgumentSite struct {
	Parent    *schema.Type
	Field     *schema.Field
	Directive *schema.Directive
	Args      language.ArgumentList
	Pos       *language.Position
	FieldName string
}

// Defs returns the argument definitions of the target.
func (a ArgumentSite) Defs() []*schema.InputValue {
	switch {
	case a.Field != nil:
		return a.Field.Arguments
	case a.Directive != nil:
		return a.Directive.Arguments
	}
	return nil
}

// Known reports whether the field or directive was resolved.
func (a ArgumentSite) Known() bool { return a.Field != nil || a.Directive != nil }

// VariableUsage is a variable referenced from an argument value. Expected
// is the input type at that position, nil when unknown.
type VariableUsage struct {
	Name       string
	Pos        *language.Position
	Expected   *schema.TypeRef
	HasDefault bool
}

// scope collects what one operation or fragment definition references
// directly.
type scope struct {
	spreads []*language.FragmentSpread
	usages  []VariableUsage
}

// Context is the state shared by the rules of one validation. The walk of
// the document happens once, before the first rule runs.
type Context struct {
	Schema   *schema.Schema
	Document *language.QueryDocument

	rule string
	errs gqlerror.List

	fragments  map[string]*language.FragmentDefinition
	fields     []FieldVisit
	inlines    []InlineFragmentVisit
	spreads    []SpreadVisit
	sets       []SelectionSetVisit
	directives []DirectiveListVisit
	argSites   []ArgumentSite

	opScopes   map[*language.OperationDefinition]*scope
	fragScopes map[string]*scope
	current    *scope
}

func newContext(s *schema.Schema, doc *language.QueryDocument) *Context {
	c := &Context{
		Schema:     s,
		Document:   doc,
		fragments:  make(map[string]*language.FragmentDefinition),
		opScopes:   make(map[*language.OperationDefinition]*scope),
		fragScopes: make(map[string]*scope),
	}
	for _, f := range doc.Fragments {
		if _, dup := c.fragments[f.Name]; !dup {
			c.fragments[f.Name] = f
		}
	}
	c.walk()
	return c
}

// Report records a violation at pos attributed to the running rule.
func (c *Context) Report(pos *language.Position, format string, args ...any) {
	err := gqlerror.ErrorPosf(pos, format, args...)
	err.Rule = c.rule
	c.errs = append(c.errs, err)
}

func (c *Context) Fragment(name string) *language.FragmentDefinition { return c.fragments[name] }
func (c *Context) Fields() []FieldVisit                              { return c.fields }
func (c *Context) InlineFragments() []InlineFragmentVisit            { return c.inlines }
func (c *Context) Spreads() []SpreadVisit                            { return c.spreads }
func (c *Context) SelectionSets() []SelectionSetVisit                { return c.sets }
func (c *Context) DirectiveLists() []DirectiveListVisit              { return c.directives }
func (c *Context) ArgumentSites() []ArgumentSite                     { return c.argSites }

// VariableUsages returns the variables referenced by op, including through
// the fragments it spreads transitively.
func (c *Context) VariableUsages(op *language.OperationDefinition) []VariableUsage {
	sc := c.opScopes[op]
	if sc == nil {
		return nil
	}
	out := append([]VariableUsage(nil), sc.usages...)
	for _, name := range c.reachableFragments(sc) {
		out = append(out, c.fragScopes[name].usages...)
	}
	return out
}

// reachableFragments lists the defined fragments spread from sc, directly
// or through other fragments, in discovery order.
func (c *Context) reachableFragments(sc *scope) []string {
	var out []string
	seen := make(map[string]bool)
	queue := append([]*language.FragmentSpread(nil), sc.spreads...)
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		fs := c.fragScopes[s.Name]
		if fs == nil {
			continue
		}
		out = append(out, s.Name)
		queue = append(queue, fs.spreads...)
	}
	return out
}

func (c *Context) walk() {
	for _, op := range c.Document.Operations {
		c.current = &scope{}
		c.opScopes[op] = c.current
		c.visitDirectives(strings.ToUpper(string(op.Operation)), op.Directives, op.Position)
		for _, vd := range op.VariableDefinitions {
			c.visitDirectives("VARIABLE_DEFINITION", vd.Directives, vd.Position)
		}
		c.walkSet(c.Schema.RootType(string(op.Operation)), op.SelectionSet)
	}
	for _, frag := range c.Document.Fragments {
		if _, dup := c.fragScopes[frag.Name]; dup {
			continue
		}
		c.current = &scope{}
		c.fragScopes[frag.Name] = c.current
		c.visitDirectives("FRAGMENT_DEFINITION", frag.Directives, frag.Position)
		c.walkSet(c.compositeType(frag.TypeCondition), frag.SelectionSet)
	}
	c.current = nil
}

func (c *Context) compositeType(name string) *schema.Type {
	t := c.Schema.Types[name]
	if t == nil || !t.IsComposite() {
		return nil
	}
	return t
}

func (c *Context) walkSet(parent *schema.Type, set language.SelectionSet) {
	if len(set) == 0 {
		return
	}
	c.sets = append(c.sets, SelectionSetVisit{Parent: parent, Set: set})
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			var def *schema.Field
			if parent != nil {
				def = c.Schema.LookupField(parent, s.Name)
			}
			c.fields = append(c.fields, FieldVisit{Parent: parent, Field: s, Def: def})
			c.visitArguments(ArgumentSite{Parent: parent, Field: def, Args: s.Arguments, Pos: s.Position, FieldName: s.Name})
			c.visitDirectives("FIELD", s.Directives, s.Position)
			var child *schema.Type
			if def != nil {
				child = c.compositeType(def.Type.GetNamedType())
			}
			c.walkSet(child, s.SelectionSet)
		case *language.InlineFragment:
			c.inlines = append(c.inlines, InlineFragmentVisit{Parent: parent, Fragment: s})
			c.visitDirectives("INLINE_FRAGMENT", s.Directives, s.Position)
			t := parent
			if s.TypeCondition != "" {
				t = c.compositeType(s.TypeCondition)
			}
			c.walkSet(t, s.SelectionSet)
		case *language.FragmentSpread:
			c.spreads = append(c.spreads, SpreadVisit{Parent: parent, Spread: s})
			c.current.spreads = append(c.current.spreads, s)
			c.visitDirectives("FRAGMENT_SPREAD", s.Directives, s.Position)
		}
	}
}

func (c *Context) visitDirectives(location string, list language.DirectiveList, pos *language.Position) {
	if len(list) == 0 {
		return
	}
	c.directives = append(c.directives, DirectiveListVisit{Location: location, Directives: list, Pos: pos})
	for _, d := range list {
		c.visitArguments(ArgumentSite{Directive: c.Schema.Directives[d.Name], Args: d.Arguments, Pos: d.Position, FieldName: d.Name})
	}
}

func (c *Context) visitArguments(site ArgumentSite) {
	c.argSites = append(c.argSites, site)
	for _, arg := range site.Args {
		var expected *schema.TypeRef
		hasDefault := false
		if def := findInput(site.Defs(), arg.Name); def != nil {
			expected, hasDefault = def.Type, def.HasDefault
		}
		c.collectUsages(arg.Value, expected, hasDefault)
	}
}

func (c *Context) collectUsages(v *language.Value, expected *schema.TypeRef, hasDefault bool) {
	if v == nil {
		return
	}
	switch v.Kind {
	case language.Variable:
		c.current.usages = append(c.current.usages, VariableUsage{Name: v.Raw, Pos: v.Position, Expected: expected, HasDefault: hasDefault})
	case language.ListValue:
		var inner *schema.TypeRef
		if t := nullable(expected); t != nil && t.Kind == schema.TypeRefKindList {
			inner = t.OfType
		}
		for _, child := range v.Children {
			c.collectUsages(child.Value, inner, false)
		}
	case language.ObjectValue:
		var obj *schema.Type
		if t := nullable(expected); t != nil && t.Kind == schema.TypeRefKindNamed {
			obj = c.Schema.Types[t.Named]
		}
		for _, child := range v.Children {
			var ft *schema.TypeRef
			fieldDefault := false
			if obj != nil {
				if def := obj.InputField(child.Name); def != nil {
					ft, fieldDefault = def.Type, def.HasDefault
				}
			}
			c.collectUsages(child.Value, ft, fieldDefault)
		}
	}
}

func nullable(t *schema.TypeRef) *schema.TypeRef {
	if t != nil && t.Kind == schema.TypeRefKindNonNull {
		return t.OfType
	}
	return t
}

func findInput(defs []*schema.InputValue, name string) *schema.InputValue {
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
