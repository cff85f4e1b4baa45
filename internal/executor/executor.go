package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// FieldInfo describes one resolver invocation to a FieldTracer.
type FieldInfo struct {
	Path       Path
	ParentType string
	FieldName  string
	ReturnType string
}

// FieldTracer observes resolver invocations. TraceField is called right
// before the resolver runs; the returned function is called with its error
// once it returns. Implementations must be safe for concurrent use.
type FieldTracer interface {
	TraceField(ctx context.Context, info FieldInfo) func(err error)
}

// Executor runs planned operations. One Executor is shared by all requests
// against a schema.
type Executor struct {
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrency bounds the number of resolvers running at once across
// all executions. Zero or less means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger used for resolver panics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// errNullBubble signals that a non-null position completed to null. The
// error itself has already been recorded; the nearest nullable ancestor
// absorbs the signal.
var errNullBubble = errors.New("null propagated from non-nullable position")

// executionState holds the state during query execution
type executionState struct {
	ctx        context.Context
	ec         *ExecutionContext
	schema     *schema.Schema
	sem        *semaphore.Weighted
	logger     *zap.Logger
	errors     *errorList
	tombstones tombstones
}

// ExecuteRequest plans and executes in one step.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	s *schema.Schema,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	ec, err := Plan(s, document, operationName, variableValues)
	if err != nil {
		return ResultFromError(err)
	}
	ec.RootValue = initialValue
	return e.Execute(ctx, ec)
}

// Execute walks the bound selection tree. Sibling fields whose resolvers
// are marked async run concurrently; the result keeps selection order. If
// ctx is done when execution finishes, all data is discarded and a single
// cancellation error is returned.
func (e *Executor) Execute(ctx context.Context, ec *ExecutionContext) *ExecutionResult {
	if err := ctx.Err(); err != nil {
		return &ExecutionResult{Errors: []*GraphQLError{NewCancellationError(err)}}
	}
	state := &executionState{
		ctx:    ctx,
		ec:     ec,
		schema: ec.Schema,
		sem:    e.sem,
		logger: e.logger,
		errors: newErrorList(),
	}

	serial := ec.Operation.Operation == language.Mutation
	data, err := state.executeSelectionSet(ec.root, ec.RootValue, Path{}, nil, serial)

	if cerr := ctx.Err(); cerr != nil {
		return &ExecutionResult{Errors: []*GraphQLError{NewCancellationError(cerr)}}
	}
	res := &ExecutionResult{HasData: true, Errors: state.errors.sorted()}
	if err == nil {
		res.Data = data
	}
	return res
}

// executeSelectionSet resolves every field of set against source. When a
// non-null field fails, the whole object becomes null and errNullBubble is
// returned.
func (s *executionState) executeSelectionSet(set *selectionSet, source any, path Path, order []int, serial bool) (Object, error) {
	out := make(Object, len(set.fields))
	var (
		g       errgroup.Group
		spawned bool
		failed  atomic.Bool
	)
	for i, sel := range set.fields {
		out[i].Name = sel.responseName
		fieldPath := appendPath(path, sel.responseName)
		fieldOrder := appendOrder(order, i)
		run := func() {
			v, err := s.executeField(set.objectType, source, sel, fieldPath, fieldOrder)
			if err != nil {
				failed.Store(true)
				s.tombstones.mark(path)
				return
			}
			out[i].Value = v
		}
		if !serial && sel.field != nil && sel.field.Async {
			spawned = true
			g.Go(func() error { run(); return nil })
			continue
		}
		run()
	}
	if spawned {
		_ = g.Wait()
	}
	if failed.Load() {
		return nil, errNullBubble
	}
	return out, nil
}

func (s *executionState) executeField(parentType *schema.Type, source any, sel *selection, path Path, order []int) (any, error) {
	if s.tombstones.covers(path) {
		return nil, nil
	}
	if sel.field == nil {
		s.addError(fmt.Errorf("Cannot query field %q on type %q.", sel.nodes[0].Name, parentType.Name), sel, path, order)
		return nil, nil
	}
	if schema.IsTypenameField(sel.field) {
		if finish := s.traceField(parentType, sel.field, path); finish != nil {
			finish(nil)
		}
		return parentType.Name, nil
	}
	if s.ctx.Err() != nil {
		return nil, nil
	}

	var value any
	if sel.argErr != nil {
		s.addError(sel.argErr, sel, path, order)
	} else {
		var err error
		value, err = s.resolve(parentType, source, sel, path)
		if err != nil {
			s.addError(err, sel, path, order)
			value = nil
		}
	}
	return s.completeValue(sel.field.Type, sel, value, path, order)
}

// resolve invokes the field resolver. This is the only place execution may
// block on user code.
func (s *executionState) resolve(parentType *schema.Type, source any, sel *selection, path Path) (value any, err error) {
	field := sel.field
	resolver := field.Resolver
	if resolver == nil {
		resolver = schema.DefaultResolver
	} else if s.sem != nil {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
	}

	finish := s.traceField(parentType, field, path)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("resolver panicked",
				zap.String("field", parentType.Name+"."+field.Name),
				zap.String("path", pathToString(path)),
				zap.Any("panic", r),
			)
			value, err = nil, fmt.Errorf("internal error resolving %s.%s", parentType.Name, field.Name)
		}
		if finish != nil {
			finish(err)
		}
	}()

	return resolver.Resolve(s.ctx, schema.ResolveParams{
		Source: source,
		Args:   sel.args,
		Info: schema.ResolveInfo{
			FieldName:  field.Name,
			ParentType: parentType,
			ReturnType: field.Type,
			Path:       []any(path),
			Schema:     s.schema,
		},
	})
}

// traceField starts a tracer span for one field. It returns nil when no
// tracer is set.
func (s *executionState) traceField(parentType *schema.Type, field *schema.Field, path Path) func(error) {
	if s.ec.Tracer == nil {
		return nil
	}
	return s.ec.Tracer.TraceField(s.ctx, FieldInfo{
		Path:       path,
		ParentType: parentType.Name,
		FieldName:  field.Name,
		ReturnType: field.Type.String(),
	})
}

func (s *executionState) addError(err error, sel *selection, path Path, order []int) {
	s.errors.add(newFieldError(err, sel.nodes, path, order))
}

func pathToString(path Path) string {
	var b strings.Builder
	for i, elem := range path {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

func appendOrder(order []int, i int) []int {
	out := make([]int, len(order)+1)
	copy(out, order)
	out[len(order)] = i
	return out
}

// tombstones holds the paths of objects already nulled by bubbling. Work
// below them has no place in the result and is skipped.
type tombstones struct {
	mu  sync.RWMutex
	set map[string]struct{}
	n   atomic.Int32
}

func (t *tombstones) mark(p Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set == nil {
		t.set = make(map[string]struct{})
	}
	key := pathToString(p)
	if _, ok := t.set[key]; !ok {
		t.set[key] = struct{}{}
		t.n.Add(1)
	}
}

// covers reports whether a strict prefix of p was tombstoned.
func (t *tombstones) covers(p Path) bool {
	if t.n.Load() == 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := 0; i < len(p); i++ {
		if _, ok := t.set[pathToString(p[:i])]; ok {
			return true
		}
	}
	return false
}
