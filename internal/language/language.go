// Package language wraps the gqlparser lexer and parser and converts AST
// values into plain Go values.
package language

import (
	"errors"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. Syntax errors are returned as
// *Error carrying the location of the offending token.
func ParseQuery(source string) (*QueryDocument, *Error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "request", Input: source})
	if err != nil {
		return nil, asError(err)
	}
	return doc, nil
}

// ParseSchema parses an SDL document.
func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, asError(err)
	}
	return doc, nil
}

func asError(err error) *Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return &gqlerror.Error{Message: err.Error()}
}

// ValueToGo converts an AST value into its untyped Go representation.
// Variables are looked up in vars; a missing variable yields nil.
func ValueToGo(value *Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case Variable:
		if vars == nil {
			return nil
		}
		return vars[value.Raw]
	case IntValue:
		if i, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
			return int(i)
		}
		// Out of int64 range; keep the precision we can.
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case StringValue, BlockValue, EnumValue:
		return value.Raw
	case BooleanValue:
		return value.Raw == "true"
	case NullValue:
		return nil
	case ListValue:
		out := make([]any, 0, len(value.Children))
		for _, child := range value.Children {
			out = append(out, ValueToGo(child.Value, vars))
		}
		return out
	case ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, child := range value.Children {
			out[child.Name] = ValueToGo(child.Value, vars)
		}
		return out
	}
	return nil
}

// HasVariable reports whether the value references a variable anywhere
// within it.
func HasVariable(value *Value) bool {
	if value == nil {
		return false
	}
	if value.Kind == Variable {
		return true
	}
	for _, child := range value.Children {
		if HasVariable(child.Value) {
			return true
		}
	}
	return false
}
