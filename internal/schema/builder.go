package schema

import (
	"errors"
	"fmt"

	"github.com/hanpama/gqlexec/internal/language"
)

// BuildFromSDL parses an SDL string and returns the corresponding Schema.
// Type extensions are merged into their base definitions. Root operation
// types default to Query, Mutation and Subscription when no schema
// definition names them.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := language.ParseSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromDocument(doc)
}

// BuildFromDocument builds a schema from a parsed SDL document.
func BuildFromDocument(doc *language.SchemaDocument) (*Schema, error) {
	s := NewSchema("")

	for _, def := range doc.Schema {
		if def.Description != "" {
			s.Description = def.Description
		}
		for _, op := range def.OperationTypes {
			setRootType(s, string(op.Operation), op.Type)
		}
	}
	for _, def := range doc.SchemaExtension {
		for _, op := range def.OperationTypes {
			setRootType(s, string(op.Operation), op.Type)
		}
	}

	var errs []error
	for _, def := range doc.Definitions {
		if _, exists := s.Types[def.Name]; exists {
			if IsBuiltinScalar(def.Name) {
				continue
			}
			errs = append(errs, fmt.Errorf("type %q defined more than once", def.Name))
			continue
		}
		t := NewType(def.Name, buildKind(def.Kind), def.Description)
		mergeDefinition(t, def)
		s.AddType(t)
	}
	for _, ext := range doc.Extensions {
		t := s.Types[ext.Name]
		if t == nil {
			errs = append(errs, fmt.Errorf("cannot extend unknown type %q", ext.Name))
			continue
		}
		if IsBuiltinScalar(ext.Name) {
			errs = append(errs, fmt.Errorf("cannot extend built-in scalar %q", ext.Name))
			continue
		}
		mergeDefinition(t, ext)
	}
	for _, dir := range doc.Directives {
		s.AddDirective(buildDirective(dir))
	}

	if s.QueryType == "" && s.Types["Query"] != nil {
		s.QueryType = "Query"
	}
	if s.MutationType == "" && s.Types["Mutation"] != nil {
		s.MutationType = "Mutation"
	}
	if s.SubscriptionType == "" && s.Types["Subscription"] != nil {
		s.SubscriptionType = "Subscription"
	}

	// Interfaces learn their implementations in definition order.
	for _, def := range doc.Definitions {
		t := s.Types[def.Name]
		if t == nil || t.Kind != TypeKindObject {
			continue
		}
		for _, name := range t.Interfaces {
			if iface := s.Types[name]; iface != nil && iface.Kind == TypeKindInterface {
				iface.AddPossibleType(t.Name)
			}
		}
	}

	if err := s.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func setRootType(s *Schema, operation, typeName string) {
	switch operation {
	case "query":
		s.QueryType = typeName
	case "mutation":
		s.MutationType = typeName
	case "subscription":
		s.SubscriptionType = typeName
	}
}

func buildKind(kind language.DefinitionKind) TypeKind {
	switch kind {
	case language.Object:
		return TypeKindObject
	case language.Interface:
		return TypeKindInterface
	case language.Union:
		return TypeKindUnion
	case language.Enum:
		return TypeKindEnum
	case language.InputObject:
		return TypeKindInputObject
	}
	return TypeKindScalar
}

func mergeDefinition(t *Type, def *language.Definition) {
	if def.Description != "" && t.Description == "" {
		t.Description = def.Description
	}
	t.Interfaces = append(t.Interfaces, def.Interfaces...)
	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		for _, fd := range def.Fields {
			t.AddField(buildField(fd))
		}
	case TypeKindInputObject:
		for _, fd := range def.Fields {
			t.AddInputField(buildInputField(fd))
		}
		if def.Directives.ForName("oneOf") != nil {
			t.SetOneOf(true)
		}
	case TypeKindUnion:
		t.PossibleTypes = append(t.PossibleTypes, def.Types...)
	case TypeKindEnum:
		for _, ev := range def.EnumValues {
			v := NewEnumValue(ev.Name, ev.Description)
			if reason, ok := deprecation(ev.Directives); ok {
				v.Deprecate(reason)
			}
			t.AddEnumValue(v)
		}
	case TypeKindScalar:
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	}
}

func buildField(def *language.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, buildTypeRef(def.Type))
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		f.AddArgument(buildArgument(arg))
	}
	return f
}

func buildArgument(def *language.ArgumentDefinition) *InputValue {
	in := NewInputValue(def.Name, def.Description, buildTypeRef(def.Type))
	if def.DefaultValue != nil {
		in.SetDefault(language.ValueToGo(def.DefaultValue, nil))
	}
	if reason, ok := deprecation(def.Directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildInputField(def *language.FieldDefinition) *InputValue {
	in := NewInputValue(def.Name, def.Description, buildTypeRef(def.Type))
	if def.DefaultValue != nil {
		in.SetDefault(language.ValueToGo(def.DefaultValue, nil))
	}
	if reason, ok := deprecation(def.Directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildDirective(def *language.DirectiveDefinition) *Directive {
	d := NewDirective(def.Name, def.Description).SetRepeatable(def.IsRepeatable)
	for _, loc := range def.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range def.Arguments {
		d.AddArgument(buildArgument(arg))
	}
	return d
}

func deprecation(directives language.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "No longer supported", true
}

// BuildTypeRef converts an AST type reference.
func BuildTypeRef(t *language.Type) *TypeRef { return buildTypeRef(t) }

func buildTypeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		return NonNullType(buildTypeRef(&inner))
	}
	if t.Elem != nil {
		return ListType(buildTypeRef(t.Elem))
	}
	return NamedType(t.NamedType)
}

// Validate checks that every referenced type exists and sits in a
// position its kind allows.
func (s *Schema) Validate() error {
	var errs []error
	query := s.GetQueryType()
	if query == nil {
		errs = append(errs, errors.New("schema has no query root type"))
	} else if query.Kind != TypeKindObject {
		errs = append(errs, fmt.Errorf("query root %q must be an object type", query.Name))
	}
	for _, root := range []string{s.MutationType, s.SubscriptionType} {
		if root == "" {
			continue
		}
		if t := s.Types[root]; t == nil || t.Kind != TypeKindObject {
			errs = append(errs, fmt.Errorf("root type %q must be an object type", root))
		}
	}
	for _, t := range s.Types {
		for _, f := range t.Fields {
			if ft := s.Types[f.Type.GetNamedType()]; ft == nil {
				errs = append(errs, fmt.Errorf("%s.%s: unknown type %q", t.Name, f.Name, f.Type.GetNamedType()))
			} else if ft.Kind == TypeKindInputObject {
				errs = append(errs, fmt.Errorf("%s.%s: input type %q cannot be used as output", t.Name, f.Name, ft.Name))
			}
			for _, arg := range f.Arguments {
				errs = append(errs, s.checkInput(t.Name+"."+f.Name+"("+arg.Name+":)", arg.Type)...)
			}
		}
		for _, in := range t.InputFields {
			errs = append(errs, s.checkInput(t.Name+"."+in.Name, in.Type)...)
		}
		for _, name := range t.Interfaces {
			if iface := s.Types[name]; iface == nil || iface.Kind != TypeKindInterface {
				errs = append(errs, fmt.Errorf("%s implements unknown interface %q", t.Name, name))
			}
		}
		if t.Kind == TypeKindUnion {
			for _, name := range t.PossibleTypes {
				if member := s.Types[name]; member == nil || member.Kind != TypeKindObject {
					errs = append(errs, fmt.Errorf("union %s member %q must be an object type", t.Name, name))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Schema) checkInput(where string, ref *TypeRef) []error {
	t := s.Types[ref.GetNamedType()]
	if t == nil {
		return []error{fmt.Errorf("%s: unknown type %q", where, ref.GetNamedType())}
	}
	if !t.IsInput() {
		return []error{fmt.Errorf("%s: output type %q cannot be used as input", where, t.Name)}
	}
	return nil
}
