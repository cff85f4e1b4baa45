package validator

import (
	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// DefaultRules returns the executable-document rules in the order they
// run.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "LoneAnonymousOperation", Check: loneAnonymousOperation},
		{Name: "UniqueOperationNames", Check: uniqueOperationNames},
		{Name: "UniqueFragmentNames", Check: uniqueFragmentNames},
		{Name: "KnownTypeNames", Check: knownTypeNames},
		{Name: "FragmentsOnCompositeTypes", Check: fragmentsOnCompositeTypes},
		{Name: "VariablesAreInputTypes", Check: variablesAreInputTypes},
		{Name: "UniqueVariableNames", Check: uniqueVariableNames},
		{Name: "FieldsOnCorrectType", Check: fieldsOnCorrectType},
		{Name: "ScalarLeafs", Check: scalarLeafs},
		{Name: "KnownArgumentNames", Check: knownArgumentNames},
		{Name: "UniqueArgumentNames", Check: uniqueArgumentNames},
		{Name: "ProvidedRequiredArguments", Check: providedRequiredArguments},
		{Name: "ValuesOfCorrectType", Check: valuesOfCorrectType},
		{Name: "KnownDirectives", Check: knownDirectives},
		{Name: "UniqueDirectivesPerLocation", Check: uniqueDirectivesPerLocation},
		{Name: "KnownFragmentNames", Check: knownFragmentNames},
		{Name: "NoUnusedFragments", Check: noUnusedFragments},
		{Name: "NoFragmentCycles", Check: noFragmentCycles},
		{Name: "NoUndefinedVariables", Check: noUndefinedVariables},
		{Name: "NoUnusedVariables", Check: noUnusedVariables},
		{Name: "VariablesInAllowedPosition", Check: variablesInAllowedPosition},
		{Name: "OverlappingFieldsCanBeMerged", Check: overlappingFieldsCanBeMerged},
		{Name: "SingleFieldSubscriptions", Check: singleFieldSubscriptions},
	}
}

func loneAnonymousOperation(c *Context) {
	ops := c.Document.Operations
	if len(ops) < 2 {
		return
	}
	for _, op := range ops {
		if op.Name == "" {
			c.Report(op.Position, "This anonymous operation must be the only defined operation.")
		}
	}
}

func uniqueOperationNames(c *Context) {
	seen := make(map[string]bool)
	for _, op := range c.Document.Operations {
		if op.Name == "" {
			continue
		}
		if seen[op.Name] {
			c.Report(op.Position, `There can be only one operation named "%s".`, op.Name)
		}
		seen[op.Name] = true
	}
}

func uniqueFragmentNames(c *Context) {
	seen := make(map[string]bool)
	for _, f := range c.Document.Fragments {
		if seen[f.Name] {
			c.Report(f.Position, `There can be only one fragment named "%s".`, f.Name)
		}
		seen[f.Name] = true
	}
}

func knownTypeNames(c *Context) {
	check := func(name string, pos *language.Position) {
		if name != "" && c.Schema.Types[name] == nil {
			c.Report(pos, `Unknown type "%s".`, name)
		}
	}
	for _, op := range c.Document.Operations {
		for _, vd := range op.VariableDefinitions {
			check(vd.Type.Name(), vd.Type.Position)
		}
	}
	for _, f := range c.Document.Fragments {
		check(f.TypeCondition, f.Position)
	}
	for _, v := range c.inlines {
		check(v.Fragment.TypeCondition, v.Fragment.Position)
	}
}

func fragmentsOnCompositeTypes(c *Context) {
	for _, v := range c.inlines {
		t := c.Schema.Types[v.Fragment.TypeCondition]
		if t != nil && !t.IsComposite() {
			c.Report(v.Fragment.Position, `Fragment cannot condition on non composite type "%s".`, t.Name)
		}
	}
	for _, f := range c.Document.Fragments {
		t := c.Schema.Types[f.TypeCondition]
		if t != nil && !t.IsComposite() {
			c.Report(f.Position, `Fragment "%s" cannot condition on non composite type "%s".`, f.Name, t.Name)
		}
	}
}

func variablesAreInputTypes(c *Context) {
	for _, op := range c.Document.Operations {
		for _, vd := range op.VariableDefinitions {
			t := c.Schema.Types[vd.Type.Name()]
			if t != nil && !t.IsInput() {
				c.Report(vd.Position, `Variable "$%s" cannot be non-input type "%s".`, vd.Variable, vd.Type.String())
			}
		}
	}
}

func uniqueVariableNames(c *Context) {
	for _, op := range c.Document.Operations {
		seen := make(map[string]bool)
		for _, vd := range op.VariableDefinitions {
			if seen[vd.Variable] {
				c.Report(vd.Position, `There can be only one variable named "$%s".`, vd.Variable)
			}
			seen[vd.Variable] = true
		}
	}
}

func fieldsOnCorrectType(c *Context) {
	for _, v := range c.fields {
		if v.Parent != nil && v.Def == nil {
			c.Report(v.Field.Position, `Cannot query field "%s" on type "%s".`, v.Field.Name, v.Parent.Name)
		}
	}
}

func scalarLeafs(c *Context) {
	for _, v := range c.fields {
		if v.Def == nil {
			continue
		}
		t := c.Schema.Types[v.Def.Type.GetNamedType()]
		if t == nil {
			continue
		}
		switch {
		case t.IsLeaf() && len(v.Field.SelectionSet) > 0:
			c.Report(v.Field.Position, `Field "%s" must not have a selection since type "%s" has no subfields.`,
				v.Field.Name, v.Def.Type.String())
		case !t.IsLeaf() && len(v.Field.SelectionSet) == 0:
			c.Report(v.Field.Position, `Field "%s" of type "%s" must have a selection of subfields. Did you mean "%s { ... }"?`,
				v.Field.Name, v.Def.Type.String(), v.Field.Name)
		}
	}
}

func knownArgumentNames(c *Context) {
	for _, site := range c.argSites {
		if !site.Known() {
			continue
		}
		for _, arg := range site.Args {
			if findInput(site.Defs(), arg.Name) != nil {
				continue
			}
			if site.Directive != nil {
				c.Report(arg.Position, `Unknown argument "%s" on directive "@%s".`, arg.Name, site.Directive.Name)
			} else {
				c.Report(arg.Position, `Unknown argument "%s" on field "%s.%s".`, arg.Name, site.Parent.Name, site.Field.Name)
			}
		}
	}
}

func uniqueArgumentNames(c *Context) {
	for _, site := range c.argSites {
		seen := make(map[string]bool)
		for _, arg := range site.Args {
			if seen[arg.Name] {
				c.Report(arg.Position, `There can be only one argument named "%s".`, arg.Name)
			}
			seen[arg.Name] = true
		}
	}
}

func providedRequiredArguments(c *Context) {
	for _, site := range c.argSites {
		for _, def := range site.Defs() {
			if !def.Type.IsNonNull() || def.HasDefault || site.Args.ForName(def.Name) != nil {
				continue
			}
			if site.Directive != nil {
				c.Report(site.Pos, `Directive "@%s" argument "%s" of type "%s" is required, but it was not provided.`,
					site.Directive.Name, def.Name, def.Type.String())
			} else {
				c.Report(site.Pos, `Field "%s" argument "%s" of type "%s" is required, but it was not provided.`,
					site.Field.Name, def.Name, def.Type.String())
			}
		}
	}
}

func valuesOfCorrectType(c *Context) {
	for _, site := range c.argSites {
		for _, arg := range site.Args {
			if def := findInput(site.Defs(), arg.Name); def != nil {
				checkValue(c, arg.Value, def.Type)
			}
		}
	}
	for _, op := range c.Document.Operations {
		for _, vd := range op.VariableDefinitions {
			if vd.DefaultValue != nil {
				checkValue(c, vd.DefaultValue, schema.BuildTypeRef(vd.Type))
			}
		}
	}
}

// checkValue validates a literal against an input type. Variables are
// checked by VariablesInAllowedPosition instead.
func checkValue(c *Context, v *language.Value, t *schema.TypeRef) {
	if v == nil || t == nil || v.Kind == language.Variable {
		return
	}
	if t.IsNonNull() {
		if v.Kind == language.NullValue {
			c.Report(v.Position, `Expected value of type "%s", found null.`, t.String())
			return
		}
		checkValue(c, v, t.OfType)
		return
	}
	if v.Kind == language.NullValue {
		return
	}
	if t.Kind == schema.TypeRefKindList {
		if v.Kind == language.ListValue {
			for _, child := range v.Children {
				checkValue(c, child.Value, t.OfType)
			}
			return
		}
		checkValue(c, v, t.OfType)
		return
	}

	named := c.Schema.Types[t.Named]
	if named == nil {
		return
	}
	switch named.Kind {
	case schema.TypeKindInputObject:
		if v.Kind != language.ObjectValue {
			c.Report(v.Position, `Expected value of type "%s", found %s.`, named.Name, v.String())
			return
		}
		for _, child := range v.Children {
			def := named.InputField(child.Name)
			if def == nil {
				c.Report(child.Position, `Field "%s" is not defined by type "%s".`, child.Name, named.Name)
				continue
			}
			checkValue(c, child.Value, def.Type)
		}
		for _, def := range named.InputFields {
			if def.Type.IsNonNull() && !def.HasDefault && v.Children.ForName(def.Name) == nil {
				c.Report(v.Position, `Field "%s.%s" of required type "%s" was not provided.`, named.Name, def.Name, def.Type.String())
			}
		}
		if named.OneOf && len(v.Children) != 1 {
			c.Report(v.Position, `OneOf Input Object "%s" must specify exactly one key.`, named.Name)
		}
	case schema.TypeKindEnum:
		switch {
		case v.Kind != language.EnumValue:
			c.Report(v.Position, `Enum "%s" cannot represent non-enum value: %s.`, named.Name, v.String())
		case named.EnumValue(v.Raw) == nil:
			c.Report(v.Position, `Value "%s" does not exist in "%s" enum.`, v.Raw, named.Name)
		}
	case schema.TypeKindScalar:
		if v.Kind == language.ListValue || v.Kind == language.ObjectValue ||
			(v.Kind == language.EnumValue && schema.IsBuiltinScalar(named.Name)) {
			c.Report(v.Position, `Expected value of type "%s", found %s.`, named.Name, v.String())
			return
		}
		if named.ParseValue == nil {
			return
		}
		if _, err := named.ParseValue(language.ValueToGo(v, nil)); err != nil {
			c.Report(v.Position, `Expected value of type "%s", found %s; %s`, named.Name, v.String(), err.Error())
		}
	}
}

func knownDirectives(c *Context) {
	for _, visit := range c.directives {
		for _, d := range visit.Directives {
			def := c.Schema.Directives[d.Name]
			if def == nil {
				c.Report(d.Position, `Unknown directive "@%s".`, d.Name)
				continue
			}
			allowed := false
			for _, loc := range def.Locations {
				if loc == visit.Location {
					allowed = true
					break
				}
			}
			if !allowed {
				c.Report(d.Position, `Directive "@%s" may not be used on %s.`, d.Name, visit.Location)
			}
		}
	}
}

func uniqueDirectivesPerLocation(c *Context) {
	for _, visit := range c.directives {
		seen := make(map[string]bool)
		for _, d := range visit.Directives {
			def := c.Schema.Directives[d.Name]
			if def != nil && def.IsRepeatable {
				continue
			}
			if seen[d.Name] {
				c.Report(d.Position, `The directive "@%s" can only be used once at this location.`, d.Name)
			}
			seen[d.Name] = true
		}
	}
}

func knownFragmentNames(c *Context) {
	for _, v := range c.spreads {
		if c.fragments[v.Spread.Name] == nil {
			c.Report(v.Spread.Position, `Unknown fragment "%s".`, v.Spread.Name)
		}
	}
}

func noUnusedFragments(c *Context) {
	used := make(map[string]bool)
	for _, op := range c.Document.Operations {
		for _, name := range c.reachableFragments(c.opScopes[op]) {
			used[name] = true
		}
	}
	for _, f := range c.Document.Fragments {
		if !used[f.Name] {
			c.Report(f.Position, `Fragment "%s" is never used.`, f.Name)
		}
	}
}

func noFragmentCycles(c *Context) {
	visited := make(map[string]bool)
	pathIndex := make(map[string]int)
	var path []*language.FragmentSpread

	var detect func(name string)
	detect = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		sc := c.fragScopes[name]
		if sc == nil || len(sc.spreads) == 0 {
			return
		}
		pathIndex[name] = len(path)
		for _, s := range sc.spreads {
			idx, onPath := pathIndex[s.Name]
			path = append(path, s)
			if !onPath {
				detect(s.Name)
			} else {
				cycle := path[idx:]
				via := make([]string, 0, len(cycle)-1)
				for _, p := range cycle[:len(cycle)-1] {
					via = append(via, p.Name)
				}
				if len(via) == 0 {
					c.Report(s.Position, `Cannot spread fragment "%s" within itself.`, s.Name)
				} else {
					c.Report(s.Position, `Cannot spread fragment "%s" within itself via %s.`, s.Name, quoteAll(via))
				}
			}
			path = path[:len(path)-1]
		}
		delete(pathIndex, name)
	}
	for _, f := range c.Document.Fragments {
		detect(f.Name)
	}
}

func noUndefinedVariables(c *Context) {
	for _, op := range c.Document.Operations {
		for _, u := range c.VariableUsages(op) {
			if op.VariableDefinitions.ForName(u.Name) != nil {
				continue
			}
			if op.Name != "" {
				c.Report(u.Pos, `Variable "$%s" is not defined by operation "%s".`, u.Name, op.Name)
			} else {
				c.Report(u.Pos, `Variable "$%s" is not defined.`, u.Name)
			}
		}
	}
}

func noUnusedVariables(c *Context) {
	for _, op := range c.Document.Operations {
		used := make(map[string]bool)
		for _, u := range c.VariableUsages(op) {
			used[u.Name] = true
		}
		for _, vd := range op.VariableDefinitions {
			if used[vd.Variable] {
				continue
			}
			if op.Name != "" {
				c.Report(vd.Position, `Variable "$%s" is never used in operation "%s".`, vd.Variable, op.Name)
			} else {
				c.Report(vd.Position, `Variable "$%s" is never used.`, vd.Variable)
			}
		}
	}
}

func variablesInAllowedPosition(c *Context) {
	for _, op := range c.Document.Operations {
		for _, u := range c.VariableUsages(op) {
			vd := op.VariableDefinitions.ForName(u.Name)
			if vd == nil || u.Expected == nil || c.Schema.Types[vd.Type.Name()] == nil {
				continue
			}
			varType := schema.BuildTypeRef(vd.Type)
			expected := u.Expected
			if expected.IsNonNull() && !varType.IsNonNull() {
				hasNonNullDefault := vd.DefaultValue != nil && vd.DefaultValue.Kind != language.NullValue
				if !hasNonNullDefault && !u.HasDefault {
					c.Report(u.Pos, `Variable "$%s" of type "%s" used in position expecting type "%s".`,
						u.Name, varType.String(), expected.String())
					continue
				}
				expected = expected.OfType
			}
			if !isSubType(varType, expected) {
				c.Report(u.Pos, `Variable "$%s" of type "%s" used in position expecting type "%s".`,
					u.Name, varType.String(), u.Expected.String())
			}
		}
	}
}

func isSubType(varType, expected *schema.TypeRef) bool {
	switch {
	case expected.IsNonNull():
		return varType.IsNonNull() && isSubType(varType.OfType, expected.OfType)
	case varType.IsNonNull():
		return isSubType(varType.OfType, expected)
	case expected.Kind == schema.TypeRefKindList:
		return varType.Kind == schema.TypeRefKindList && isSubType(varType.OfType, expected.OfType)
	case varType.Kind == schema.TypeRefKindList:
		return false
	}
	return varType.Named == expected.Named
}

// flattenFields calls fn for every field of set, following fragments that
// select on parent itself.
func (c *Context) flattenFields(parent *schema.Type, set language.SelectionSet, seen map[string]bool, fn func(*language.Field)) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			fn(s)
		case *language.InlineFragment:
			if s.TypeCondition == "" || s.TypeCondition == parent.Name {
				c.flattenFields(parent, s.SelectionSet, seen, fn)
			}
		case *language.FragmentSpread:
			f := c.fragments[s.Name]
			if f == nil || seen[s.Name] || f.TypeCondition != parent.Name {
				continue
			}
			seen[s.Name] = true
			c.flattenFields(parent, f.SelectionSet, seen, fn)
		}
	}
}

func singleFieldSubscriptions(c *Context) {
	for _, op := range c.Document.Operations {
		if op.Operation != language.Subscription {
			continue
		}
		root := c.Schema.RootType(string(op.Operation))
		if root == nil {
			continue
		}
		names := make(map[string]bool)
		c.flattenFields(root, op.SelectionSet, make(map[string]bool), func(f *language.Field) {
			key := f.Alias
			if key == "" {
				key = f.Name
			}
			names[key] = true
		})
		if len(names) <= 1 {
			continue
		}
		if op.Name != "" {
			c.Report(op.Position, `Subscription "%s" must select only one top level field.`, op.Name)
		} else {
			c.Report(op.Position, "Anonymous Subscription must select only one top level field.")
		}
	}
}

