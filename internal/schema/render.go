package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL from the Schema. Types and directives are sorted by
// name; built-in scalars, built-in directives and introspection types are
// left out.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	r := &sdlWriter{schema: s}
	r.schemaDefinition(s)

	typeNames := make([]string, 0, len(s.Types))
	for name := range s.Types {
		if strings.HasPrefix(name, "__") || IsBuiltinScalar(name) {
			continue
		}
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)
	for _, name := range typeNames {
		r.typeDefinition(s.Types[name])
	}

	directiveNames := make([]string, 0, len(s.Directives))
	for name, d := range s.Directives {
		if !isBuiltinDirective(d) {
			directiveNames = append(directiveNames, name)
		}
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		r.directiveDefinition(s.Directives[name])
	}

	return strings.TrimRight(r.String(), "\n") + "\n"
}

// sdlWriter accumulates definitions, each followed by a blank line.
type sdlWriter struct {
	strings.Builder
	schema *Schema
}

func (r *sdlWriter) schemaDefinition(s *Schema) {
	if s.QueryType == "Query" &&
		(s.MutationType == "" || s.MutationType == "Mutation") &&
		(s.SubscriptionType == "" || s.SubscriptionType == "Subscription") {
		return
	}
	r.WriteString("schema {\n")
	r.WriteString("  query: " + s.QueryType + "\n")
	if s.MutationType != "" {
		r.WriteString("  mutation: " + s.MutationType + "\n")
	}
	if s.SubscriptionType != "" {
		r.WriteString("  subscription: " + s.SubscriptionType + "\n")
	}
	r.WriteString("}\n\n")
}

func (r *sdlWriter) typeDefinition(t *Type) {
	r.description(t.Description, "")
	switch t.Kind {
	case TypeKindScalar:
		r.WriteString("scalar " + t.Name)
		if t.SpecifiedByURL != nil {
			r.WriteString(" @specifiedBy(url: " + strconv.Quote(*t.SpecifiedByURL) + ")")
		}
		r.WriteString("\n\n")
	case TypeKindEnum:
		r.WriteString("enum " + t.Name + " {\n")
		for _, v := range t.EnumValues {
			r.description(v.Description, "  ")
			r.WriteString("  " + v.Name)
			r.deprecated(v.IsDeprecated, v.DeprecationReason)
			r.WriteString("\n")
		}
		r.WriteString("}\n\n")
	case TypeKindInputObject:
		r.WriteString("input " + t.Name)
		if t.OneOf {
			r.WriteString(" @oneOf")
		}
		r.WriteString(" {\n")
		for _, f := range t.InputFields {
			r.description(f.Description, "  ")
			r.WriteString("  ")
			r.inputValue(f)
			r.deprecated(f.IsDeprecated, f.DeprecationReason)
			r.WriteString("\n")
		}
		r.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		r.WriteString(keyword + t.Name)
		if len(t.Interfaces) > 0 {
			r.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		r.WriteString(" {\n")
		for _, f := range t.Fields {
			r.field(f)
		}
		r.WriteString("}\n\n")
	case TypeKindUnion:
		r.WriteString("union " + t.Name + " = " + strings.Join(t.PossibleTypes, " | ") + "\n\n")
	}
}

func (r *sdlWriter) field(f *Field) {
	r.description(f.Description, "  ")
	r.WriteString("  " + f.Name)
	r.arguments(f.Arguments)
	r.WriteString(": " + f.Type.String())
	r.deprecated(f.IsDeprecated, f.DeprecationReason)
	r.WriteString("\n")
}

func (r *sdlWriter) directiveDefinition(d *Directive) {
	r.description(d.Description, "")
	r.WriteString("directive @" + d.Name)
	r.arguments(d.Arguments)
	if d.IsRepeatable {
		r.WriteString(" repeatable")
	}
	r.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

func (r *sdlWriter) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	r.WriteString("(")
	for i, a := range args {
		if i > 0 {
			r.WriteString(", ")
		}
		r.inputValue(a)
	}
	r.WriteString(")")
}

func (r *sdlWriter) inputValue(v *InputValue) {
	r.WriteString(v.Name + ": " + v.Type.String())
	if !v.HasDefault {
		return
	}
	if name, ok := v.DefaultValue.(string); ok && r.isEnum(v.Type) {
		r.WriteString(" = " + name)
		return
	}
	r.WriteString(" = " + renderValue(v.DefaultValue))
}

func (r *sdlWriter) isEnum(ref *TypeRef) bool {
	t := r.schema.Types[ref.GetNamedType()]
	return t != nil && t.Kind == TypeKindEnum
}

func (r *sdlWriter) deprecated(is bool, reason string) {
	if !is {
		return
	}
	r.WriteString(" @deprecated")
	if reason != "" {
		r.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

// description writes a block string. Only the """ sequence needs escaping.
func (r *sdlWriter) description(desc, indent string) {
	if desc == "" {
		return
	}
	r.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		r.WriteString(indent + line + "\n")
	}
	r.WriteString(indent + `"""` + "\n")
}

// RenderValue renders v as a GraphQL input literal.
func RenderValue(v any) string { return renderValue(v) }

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + renderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		// enum values
		return fmt.Sprint(v)
	}
}
