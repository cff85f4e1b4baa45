package executor

import (
	"bytes"
	"encoding/json"
)

// Path is a response path: field response names and list indices.
type Path []PathElement

type PathElement = any

// Location is a line/column position in the request document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	cause error
	order []int
	seq   uint64
}

func (e *GraphQLError) Error() string {
	return e.Message
}

func (e *GraphQLError) Unwrap() error {
	return e.cause
}

// ObjectField is one entry of an Object.
type ObjectField struct {
	Name  string
	Value any
}

// Object is a result object whose keys keep the order of the selection set
// that produced them.
type Object []ObjectField

// Get returns the value stored under name.
func (o Object) Get(name string) (any, bool) {
	for _, f := range o {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the fields in order.
func (o Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExecutionResult represents the result of executing a GraphQL query.
// HasData is false when execution never started or was cancelled; in that
// case the response carries no data key at all. HasData with a nil Data
// means null bubbled up to the root.
type ExecutionResult struct {
	Data    Object
	HasData bool
	Errors  []*GraphQLError
}
