package executor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/gqlexec/internal/schema"
)

func blockingResolver(started chan<- struct{}) schema.Resolver {
	return schema.ResolverFunc(func(ctx context.Context, p schema.ResolveParams) (any, error) {
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func cancelledResult(msg string) *ExecutionResult {
	return &ExecutionResult{Errors: []*GraphQLError{{Message: msg, Extensions: map[string]any{"code": "CANCELLED"}}}}
}

// Pattern: Result comparison
func TestCancellation_Result(t *testing.T) {
	t.Run("Already cancelled", func(t *testing.T) {
		rec := &callRecorder{}
		sch := mustBuildSchema(t, `type Query { a: String }`, map[string]schema.Resolver{
			"Query.a": rec.wrap(NewMockValueResolver("A")),
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		gotRes := NewExecutor().ExecuteRequest(ctx, sch, mustParseQuery(t, "{ a }"), "", nil, nil)
		requireResult(t, cancelledResult("Execution was cancelled."), gotRes)
		require.Empty(t, rec.Calls())
	})

	t.Run("Cancelled while resolving", func(t *testing.T) {
		started := make(chan struct{})
		sch := mustBuildSchema(t, `type Query { a: String b: String }`, map[string]schema.Resolver{
			"~Query.a": blockingResolver(started),
			"Query.b":  NewMockValueResolver("B"),
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-started
			cancel()
		}()

		gotRes := NewExecutor().ExecuteRequest(ctx, sch, mustParseQuery(t, "{ a b }"), "", nil, nil)
		requireResult(t, cancelledResult("Execution was cancelled."), gotRes)
	})

	t.Run("Deadline exceeded", func(t *testing.T) {
		sch := mustBuildSchema(t, `type Query { a: String }`, map[string]schema.Resolver{
			"Query.a": blockingResolver(nil),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		gotRes := NewExecutor().ExecuteRequest(ctx, sch, mustParseQuery(t, "{ a }"), "", nil, nil)
		requireResult(t, cancelledResult("Execution timed out."), gotRes)
	})
}

func TestMaxConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	limited := schema.ResolverFunc(func(ctx context.Context, p schema.ResolveParams) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return p.Info.FieldName, nil
	})
	sch := mustBuildSchema(t, `type Query { a: String b: String c: String d: String }`, map[string]schema.Resolver{
		"~Query.a": limited,
		"~Query.b": limited,
		"~Query.c": limited,
		"~Query.d": limited,
	})

	exec := NewExecutor(WithMaxConcurrency(2))
	gotRes := exec.ExecuteRequest(context.Background(), sch, mustParseQuery(t, "{ a b c d }"), "", nil, nil)
	wantRes := &ExecutionResult{HasData: true, Data: obj("a", "a", "b", "b", "c", "c", "d", "d")}
	requireResult(t, wantRes, gotRes)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

type recordingTracer struct {
	mu       sync.Mutex
	started  []string
	finished map[string]error
}

func (r *recordingTracer) TraceField(ctx context.Context, info FieldInfo) func(error) {
	key := pathToString(info.Path) + " " + info.ParentType + "." + info.FieldName + ": " + info.ReturnType
	r.mu.Lock()
	r.started = append(r.started, key)
	r.mu.Unlock()
	return func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.finished == nil {
			r.finished = make(map[string]error)
		}
		r.finished[key] = err
	}
}

func TestFieldTracer(t *testing.T) {
	sch := mustBuildSchema(t, `
		type Query { obj: Obj! }
		type Obj { a: String b: [Int] }
	`, map[string]schema.Resolver{
		"~Query.obj": NewMockValueResolver(map[string]any{"a": "A", "b": []any{1, 2}}),
	})
	tracer := &recordingTracer{}

	ec, err := Plan(sch, mustParseQuery(t, "{ __typename obj { a b } }"), "", nil)
	require.NoError(t, err)
	ec.Tracer = tracer
	gotRes := NewExecutor().Execute(context.Background(), ec)
	wantRes := &ExecutionResult{HasData: true, Data: obj(
		"__typename", "Query",
		"obj", obj("a", "A", "b", []any{1, 2}),
	)}
	requireResult(t, wantRes, gotRes)

	// __typename is answered by the executor but still traced.
	got := append([]string(nil), tracer.started...)
	sort.Strings(got)
	want := []string{
		"__typename Query.__typename: String!",
		"obj Query.obj: Obj!",
		"obj.a Obj.a: String",
		"obj.b Obj.b: [Int]",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("traced fields mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, tracer.finished, 4)
	for key, err := range tracer.finished {
		require.NoError(t, err, key)
	}
}
