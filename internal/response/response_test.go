package response

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlexec/internal/executor"
)

func TestResponse_MarshalJSON_Golden(t *testing.T) {
	tracingExt := &Extensions{}
	tracingExt.Set("tracing", map[string]any{"version": 1})
	tracingExt.Set("custom", "x")

	tests := []struct {
		name string
		resp *Response
	}{
		{
			name: "hello_world",
			resp: FromResult(&executor.ExecutionResult{
				HasData: true,
				Data:    executor.Object{{Name: "a", Value: "hello world a"}},
			}, nil),
		},
		{
			name: "field_error",
			resp: FromResult(&executor.ExecutionResult{
				HasData: true,
				Data: executor.Object{
					{Name: "a", Value: nil},
					{Name: "items", Value: []any{executor.Object{{Name: "b", Value: nil}}}},
				},
				Errors: []*executor.GraphQLError{
					{Message: "boom", Locations: []executor.Location{{Line: 1, Column: 3}}, Path: executor.Path{"a"}},
					{Message: "bad item", Path: executor.Path{"items", 0, "b"}},
				},
			}, nil),
		},
		{
			name: "null_root",
			resp: FromResult(&executor.ExecutionResult{
				HasData: true,
				Errors:  []*executor.GraphQLError{{Message: "boom", Path: executor.Path{"a"}}},
			}, &Extensions{}),
		},
		{
			name: "no_data",
			resp: FromErrors(executor.NewCancellationError(context.Canceled)),
		},
		{
			name: "extensions",
			resp: FromResult(&executor.ExecutionResult{
				HasData: true,
				Data:    executor.Object{{Name: "z", Value: 1}, {Name: "a", Value: 2}},
			}, tracingExt),
		},
	}
	g := goldie.New(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			g.Assert(t, tt.name, got)
		})
	}
}

func TestResponse_MarshalError(t *testing.T) {
	resp := FromResult(&executor.ExecutionResult{
		HasData: true,
		Data:    executor.Object{{Name: "ch", Value: make(chan int)}},
	}, nil)
	_, err := json.Marshal(resp)
	var unsupported *json.UnsupportedTypeError
	require.True(t, errors.As(err, &unsupported))
}

func TestExtensions_Context(t *testing.T) {
	require.Nil(t, ExtensionsFromContext(context.Background()))

	ctx, ext := WithExtensions(context.Background())
	require.Same(t, ext, ExtensionsFromContext(ctx))

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "a"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ExtensionsFromContext(ctx).Set(key, key)
		}()
	}
	wg.Wait()

	require.Equal(t, 3, ext.Len())
	v, ok := ext.Get("b")
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestExtensions_ReplaceKeepsPosition(t *testing.T) {
	ext := &Extensions{}
	ext.Set("first", 1)
	ext.Set("second", 2)
	ext.Set("first", 3)

	got, err := json.Marshal(ext)
	require.NoError(t, err)
	require.JSONEq(t, `{"first":3,"second":2}`, string(got))
	require.Equal(t, `{"first":3,"second":2}`, string(got))
}
