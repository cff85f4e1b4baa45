package reqid

import (
	"context"

	"github.com/google/uuid"
)

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// An ID already present in parent is kept. It also returns the ID.
func NewContext(parent context.Context) (context.Context, string) {
	if id, ok := FromContext(parent); ok {
		return parent, id
	}
	id := uuid.NewString()
	return context.WithValue(parent, key{}, id), id
}

// WithID stores a caller-supplied request ID, e.g. one taken from an
// inbound header.
func WithID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, key{}, id)
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(key{})
	id, ok := v.(string)
	return id, ok && id != ""
}
