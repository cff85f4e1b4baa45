package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	schema "github.com/hanpama/gqlexec/internal/schema"
)

type codedError struct{ code string }

func (e codedError) Error() string              { return "coded failure" }
func (e codedError) Extensions() map[string]any { return map[string]any{"code": e.code} }

// Pattern: Result comparison
func TestErrors_LocatedPaths_Result(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		sch := mustBuildSchema(t, `type Query { a: String }`, map[string]schema.Resolver{
			"Query.a": NewMockErrorResolver(errors.New("boom")),
		})

		gotRes := execute(t, sch, "{ a }", nil)
		wantRes := &ExecutionResult{
			HasData: true,
			Data:    obj("a", nil),
			Errors: []*GraphQLError{{
				Message:   "boom",
				Locations: []Location{{Line: 1, Column: 3}},
				Path:      Path{"a"},
			}},
		}
		if diff := cmp.Diff(wantRes, gotRes, cmpopts.IgnoreUnexported(GraphQLError{})); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Nested", func(t *testing.T) {
		sch := mustBuildSchema(t, `
			type Query { obj: Obj }
			type Obj { a: String }
		`, map[string]schema.Resolver{
			"Query.obj": NewMockValueResolver(map[string]any{}),
			"Obj.a":     NewMockErrorResolver(errors.New("boom")),
		})

		gotRes := execute(t, sch, "{\n  obj {\n    a\n  }\n}", nil)
		wantRes := &ExecutionResult{
			HasData: true,
			Data:    obj("obj", obj("a", nil)),
			Errors: []*GraphQLError{{
				Message:   "boom",
				Locations: []Location{{Line: 3, Column: 5}},
				Path:      Path{"obj", "a"},
			}},
		}
		if diff := cmp.Diff(wantRes, gotRes, cmpopts.IgnoreUnexported(GraphQLError{})); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List index in path", func(t *testing.T) {
		sch := mustBuildSchema(t, `
			type Query { items: [Item] }
			type Item { a: String }
		`, map[string]schema.Resolver{
			"Query.items": NewMockValueResolver([]any{map[string]any{"id": 0}, map[string]any{"id": 1}}),
			"Item.a": schema.ResolverFunc(func(ctx context.Context, p schema.ResolveParams) (any, error) {
				if p.Source.(map[string]any)["id"] == 1 {
					return nil, errors.New("second failed")
				}
				return "ok", nil
			}),
		})

		gotRes := execute(t, sch, "{ items { a } }", nil)
		wantRes := &ExecutionResult{
			HasData: true,
			Data:    obj("items", []any{obj("a", "ok"), obj("a", nil)}),
			Errors:  []*GraphQLError{{Message: "second failed", Path: Path{"items", 1, "a"}}},
		}
		requireResult(t, wantRes, gotRes)
	})

	t.Run("Unknown field", func(t *testing.T) {
		sch := mustBuildSchema(t, `type Query { a: String }`, nil)

		gotRes := execute(t, sch, "{ nope }", nil)
		wantRes := &ExecutionResult{
			HasData: true,
			Data:    obj("nope", nil),
			Errors:  []*GraphQLError{{Message: `Cannot query field "nope" on type "Query".`, Path: Path{"nope"}}},
		}
		requireResult(t, wantRes, gotRes)
	})

	t.Run("Extensions from resolver error", func(t *testing.T) {
		sch := mustBuildSchema(t, `type Query { a: String }`, map[string]schema.Resolver{
			"Query.a": NewMockErrorResolver(codedError{code: "NOT_FOUND"}),
		})

		gotRes := execute(t, sch, "{ a }", nil)
		wantRes := &ExecutionResult{
			HasData: true,
			Data:    obj("a", nil),
			Errors: []*GraphQLError{{
				Message:    "coded failure",
				Path:       Path{"a"},
				Extensions: map[string]any{"code": "NOT_FOUND"},
			}},
		}
		requireResult(t, wantRes, gotRes)
	})

	t.Run("Invalid argument", func(t *testing.T) {
		rec := &callRecorder{}
		sch := mustBuildSchema(t, `type Query { echo(n: Int!): Int }`, map[string]schema.Resolver{
			"Query.echo": rec.wrap(NewMockValueResolver(1)),
		})

		gotRes := execute(t, sch, `{ echo(n: "x") }`, nil)
		wantRes := &ExecutionResult{
			HasData: true,
			Data:    obj("echo", nil),
			Errors: []*GraphQLError{{
				Message: `Argument "n" has invalid value "x": Int cannot represent non-integer value: x`,
				Path:    Path{"echo"},
			}},
		}
		requireResult(t, wantRes, gotRes)
		require.Empty(t, rec.Calls())
	})
}

// Pattern: Result comparison
func TestErrors_OrderFollowsSelection_Result(t *testing.T) {
	sch := mustBuildSchema(t, `type Query { a: String b: String c: String }`, map[string]schema.Resolver{
		"~Query.a": schema.ResolverFunc(func(ctx context.Context, p schema.ResolveParams) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, errors.New("a failed")
		}),
		"~Query.b": NewMockErrorResolver(errors.New("b failed")),
		"Query.c":  NewMockErrorResolver(errors.New("c failed")),
	})

	gotRes := execute(t, sch, "{ a b c }", nil)
	wantRes := &ExecutionResult{
		HasData: true,
		Data:    obj("a", nil, "b", nil, "c", nil),
		Errors: []*GraphQLError{
			{Message: "a failed", Path: Path{"a"}},
			{Message: "b failed", Path: Path{"b"}},
			{Message: "c failed", Path: Path{"c"}},
		},
	}
	requireResult(t, wantRes, gotRes)
}

func TestErrors_ResolverPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sch := mustBuildSchema(t, `type Query { a: String b: String }`, map[string]schema.Resolver{
		"Query.a": schema.ResolverFunc(func(ctx context.Context, p schema.ResolveParams) (any, error) {
			panic("kaboom")
		}),
		"Query.b": NewMockValueResolver("B"),
	})

	exec := NewExecutor(WithLogger(zap.New(core)))
	gotRes := exec.ExecuteRequest(context.Background(), sch, mustParseQuery(t, "{ a b }"), "", nil, nil)
	wantRes := &ExecutionResult{
		HasData: true,
		Data:    obj("a", nil, "b", "B"),
		Errors:  []*GraphQLError{{Message: "internal error resolving Query.a", Path: Path{"a"}}},
	}
	requireResult(t, wantRes, gotRes)

	entries := logs.FilterMessage("resolver panicked").All()
	require.Len(t, entries, 1)
	require.Equal(t, "Query.a", entries[0].ContextMap()["field"])
	require.Equal(t, "a", entries[0].ContextMap()["path"])
}
