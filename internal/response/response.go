// Package response turns execution results into the GraphQL wire shape
// {"data": ..., "errors": [...], "extensions": {...}}.
package response

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	executor "github.com/hanpama/gqlexec/internal/executor"
)

// Response is one serialized GraphQL response. Data is written only when
// HasData is set; a set HasData with nil Data is "data": null.
type Response struct {
	Data       executor.Object
	HasData    bool
	Errors     []*executor.GraphQLError
	Extensions *Extensions
}

// FromResult wraps an execution result. ext may be nil.
func FromResult(res *executor.ExecutionResult, ext *Extensions) *Response {
	out := &Response{Extensions: ext}
	if res != nil {
		out.Data = res.Data
		out.HasData = res.HasData
		out.Errors = res.Errors
	}
	return out
}

// FromErrors builds a response without data, as produced by request-level
// failures.
func FromErrors(errs ...*executor.GraphQLError) *Response {
	return &Response{Errors: errs}
}

// MarshalJSON writes data, errors and extensions in that order, omitting
// the keys that have nothing to carry.
func (r *Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	sep := false
	write := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if sep {
			buf.WriteByte(',')
		}
		sep = true
		buf.WriteString(`"` + key + `":`)
		buf.Write(b)
		return nil
	}

	if r.HasData {
		if err := write("data", r.Data); err != nil {
			return nil, err
		}
	}
	if len(r.Errors) > 0 {
		if err := write("errors", r.Errors); err != nil {
			return nil, err
		}
	}
	if r.Extensions.Len() > 0 {
		if err := write("extensions", r.Extensions); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Extensions collects the "extensions" entries of one response. Observers
// may write to it concurrently; keys keep insertion order.
type Extensions struct {
	mu     sync.Mutex
	keys   []string
	values map[string]any
}

// Set stores v under key, replacing any earlier value.
func (e *Extensions) Set(key string, v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.values == nil {
		e.values = make(map[string]any)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = v
}

func (e *Extensions) Get(key string) (any, bool) {
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[key]
	return v, ok
}

func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.keys)
}

func (e *Extensions) MarshalJSON() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj := make(executor.Object, len(e.keys))
	for i, k := range e.keys {
		obj[i] = executor.ObjectField{Name: k, Value: e.values[k]}
	}
	if obj == nil {
		obj = executor.Object{}
	}
	return obj.MarshalJSON()
}

type extensionsKey struct{}

// WithExtensions attaches a fresh Extensions to ctx.
func WithExtensions(ctx context.Context) (context.Context, *Extensions) {
	ext := &Extensions{}
	return context.WithValue(ctx, extensionsKey{}, ext), ext
}

// ExtensionsFromContext returns the Extensions attached to ctx, or nil.
func ExtensionsFromContext(ctx context.Context) *Extensions {
	ext, _ := ctx.Value(extensionsKey{}).(*Extensions)
	return ext
}
