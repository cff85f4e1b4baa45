// Package engine runs GraphQL requests end to end: document cache, parse,
// validation, planning, execution and serialization, with diagnostic
// events published on an engine-owned bus.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	doccache "github.com/hanpama/gqlexec/internal/doccache"
	eventbus "github.com/hanpama/gqlexec/internal/eventbus"
	events "github.com/hanpama/gqlexec/internal/events"
	executor "github.com/hanpama/gqlexec/internal/executor"
	introspection "github.com/hanpama/gqlexec/internal/introspection"
	language "github.com/hanpama/gqlexec/internal/language"
	reqid "github.com/hanpama/gqlexec/internal/reqid"
	response "github.com/hanpama/gqlexec/internal/response"
	schema "github.com/hanpama/gqlexec/internal/schema"
	tracing "github.com/hanpama/gqlexec/internal/tracing"
	validator "github.com/hanpama/gqlexec/internal/validator"
)

// Observer subscribes to the engine bus. Register is called once by New;
// the returned function is called by Close.
type Observer interface {
	Register(b *eventbus.Bus) (unregister func())
}

// Engine is safe for concurrent use. Create one per schema lineage and
// Close it when done.
type Engine struct {
	cfg       Config
	logger    *zap.Logger
	clock     tracing.Clock
	validator *validator.Validator
	root      any
	observers []Observer

	bus     *eventbus.Bus
	exec    *executor.Executor
	cache   *doccache.Cache
	current atomic.Pointer[schemaVersion]
	reload  sync.Mutex

	unregister []func()
	closeOnce  sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

func WithConfig(cfg Config) Option                { return func(e *Engine) { e.cfg = cfg } }
func WithClock(c tracing.Clock) Option            { return func(e *Engine) { e.clock = c } }
func WithValidator(v *validator.Validator) Option { return func(e *Engine) { e.validator = v } }
func WithRootValue(v any) Option                  { return func(e *Engine) { e.root = v } }

// WithLogger sets the logger for observer and resolver panics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers o on the engine bus for the engine's lifetime.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// New builds an engine serving s.
func New(s *schema.Schema, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		clock:     tracing.SystemClock,
		validator: validator.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.Diagnostics == "" {
		e.cfg.Diagnostics = DiagnosticsOnDemand
	}
	prepared, err := e.prepare(s)
	if err != nil {
		return nil, err
	}

	e.bus = eventbus.New(eventbus.WithLogger(e.logger))
	e.exec = executor.NewExecutor(
		executor.WithMaxConcurrency(e.cfg.MaxConcurrency),
		executor.WithLogger(e.logger),
	)
	e.cache = doccache.New(e.cfg.Cache, e.compile)
	e.current.Store(&schemaVersion{schema: prepared, generation: e.cache.Generation()})
	for _, o := range e.observers {
		e.unregister = append(e.unregister, o.Register(e.bus))
	}
	return e, nil
}

// schemaVersion pairs a schema with the cache generation its documents
// are stored under. Requests load both in one read.
type schemaVersion struct {
	schema     *schema.Schema
	generation uint64
}

func (e *Engine) prepare(s *schema.Schema) (*schema.Schema, error) {
	if s == nil {
		return nil, errors.New("engine: nil schema")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.Introspection {
		s = introspection.Install(s)
	}
	return s, nil
}

// ReloadSchema swaps the schema for subsequent requests and drops every
// cached document. Requests already running finish against the schema
// they started with, and nothing they compile is cached.
func (e *Engine) ReloadSchema(s *schema.Schema) error {
	prepared, err := e.prepare(s)
	if err != nil {
		return err
	}
	e.reload.Lock()
	e.cache.Purge()
	e.current.Store(&schemaVersion{schema: prepared, generation: e.cache.Generation()})
	e.reload.Unlock()
	e.logger.Info("schema reloaded")
	return nil
}

// Close unregisters every observer and shuts the bus down.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		for _, u := range e.unregister {
			u()
		}
		e.bus.Close()
	})
}

// Schema returns the schema requests currently run against, including
// introspection types when enabled.
func (e *Engine) Schema() *schema.Schema { return e.current.Load().schema }

// Bus returns the engine bus so transports can publish their own events.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// CacheStats returns a snapshot of the document cache counters.
func (e *Engine) CacheStats() doccache.Stats { return e.cache.Stats() }

// requestState is what the document compile needs to know about the
// request that triggered it.
type requestState struct {
	id     string
	schema *schema.Schema
	gen    uint64
	diag   bool
}

type stateKey struct{}

func stateFrom(ctx context.Context) requestState {
	st, _ := ctx.Value(stateKey{}).(requestState)
	return st
}

// Execute runs one request. It never returns nil; failures are reported
// in the response errors.
func (e *Engine) Execute(ctx context.Context, req Request) *response.Response {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	ctx, id := reqid.NewContext(ctx)
	ctx, ext := response.WithExtensions(ctx)
	v := e.current.Load()
	st := requestState{id: id, schema: v.schema, gen: v.generation, diag: e.diagnostics(req)}
	ctx = context.WithValue(ctx, stateKey{}, st)

	start := e.stamp(st)
	if st.diag {
		eventbus.Publish(ctx, e.bus, events.ExecutionStart{
			Meta:          events.Meta{RequestID: id, At: start},
			Query:         req.Query,
			OperationName: req.OperationName,
		})
	}

	res, opType := e.run(ctx, st, req)

	if st.diag {
		end := e.stamp(st)
		errs := make([]error, len(res.Errors))
		for i, err := range res.Errors {
			errs[i] = err
		}
		eventbus.Publish(ctx, e.bus, events.ExecutionEnd{
			Meta:          events.Meta{RequestID: id, At: end},
			OperationName: req.OperationName,
			OperationType: opType,
			Errors:        errs,
			Cancelled:     isCancelled(res),
			Duration:      end.Sub(start),
		})
	}
	if len(res.Errors) > 0 {
		e.logger.Debug("request finished with errors",
			zap.String("request_id", id),
			zap.String("operation", req.OperationName),
			zap.Int("errors", len(res.Errors)),
		)
	}
	return response.FromResult(res, ext)
}

func (e *Engine) run(ctx context.Context, st requestState, req Request) (*executor.ExecutionResult, string) {
	entry, _ := e.cache.GetOrParseAt(ctx, st.gen, req.Query)
	if reqErr := entryError(entry); reqErr != nil {
		return executor.ResultFromError(reqErr), ""
	}
	ec, err := executor.Plan(st.schema, entry.Document, req.OperationName, req.Variables)
	if err != nil {
		return executor.ResultFromError(err), ""
	}
	ec.RootValue = e.root
	if st.diag {
		ec.Tracer = &busTracer{bus: e.bus, clock: e.clock, id: st.id}
	}
	return e.exec.Execute(ctx, ec), ec.OperationType()
}

// Check parses and validates query through the document cache without
// executing it. It returns nil when the document is valid.
func (e *Engine) Check(ctx context.Context, query string) []*executor.GraphQLError {
	v := e.current.Load()
	ctx = context.WithValue(ctx, stateKey{}, requestState{schema: v.schema, gen: v.generation})
	entry, _ := e.cache.GetOrParseAt(ctx, v.generation, query)
	if reqErr := entryError(entry); reqErr != nil {
		return reqErr.Errors
	}
	return nil
}

func entryError(entry *doccache.Entry) *executor.RequestError {
	switch {
	case entry.ParseError != nil:
		return executor.NewRequestError(executor.CodeParse, executor.FromGQLErrors(gqlerror.List{entry.ParseError})...)
	case len(entry.Violations) > 0:
		return executor.NewRequestError(executor.CodeValidation, executor.FromGQLErrors(entry.Violations)...)
	}
	return nil
}

// compile is the document cache miss path. Parse and validate events are
// published only here, so cache hits report none.
func (e *Engine) compile(ctx context.Context, text string) *doccache.Entry {
	st := stateFrom(ctx)
	entry := &doccache.Entry{}

	if st.diag {
		eventbus.Publish(ctx, e.bus, events.ParseStart{Meta: e.meta(st)})
	}
	doc, perr := language.ParseQuery(text)
	if st.diag {
		var err error
		if perr != nil {
			err = perr
		}
		eventbus.Publish(ctx, e.bus, events.ParseEnd{Meta: e.meta(st), Err: err})
	}
	if perr != nil {
		entry.ParseError = perr
		return entry
	}
	entry.Document = doc

	if st.diag {
		eventbus.Publish(ctx, e.bus, events.ValidateStart{Meta: e.meta(st)})
	}
	entry.Violations = e.validator.Validate(st.schema, doc)
	if st.diag {
		eventbus.Publish(ctx, e.bus, events.ValidateEnd{Meta: e.meta(st), Violations: len(entry.Violations)})
	}
	return entry
}

func (e *Engine) diagnostics(req Request) bool {
	if !e.bus.HasSubscribers() {
		return false
	}
	return e.cfg.Diagnostics == DiagnosticsAlways || req.Flags.EnableTracing
}

func (e *Engine) stamp(st requestState) events.Timestamp {
	if !st.diag {
		return events.Timestamp{}
	}
	return tracing.Stamp(e.clock)
}

func (e *Engine) meta(st requestState) events.Meta {
	return events.Meta{RequestID: st.id, At: e.stamp(st)}
}

func isCancelled(res *executor.ExecutionResult) bool {
	if res.HasData || len(res.Errors) != 1 {
		return false
	}
	code, _ := res.Errors[0].Extensions["code"].(string)
	return code == string(executor.CodeCancelled)
}

// busTracer publishes ResolverStart and ResolverEnd for one request.
type busTracer struct {
	bus   *eventbus.Bus
	clock tracing.Clock
	id    string
}

func (t *busTracer) TraceField(ctx context.Context, info executor.FieldInfo) func(error) {
	field := events.Field{
		Path:       append([]any(nil), info.Path...),
		ParentType: info.ParentType,
		FieldName:  info.FieldName,
		ReturnType: info.ReturnType,
	}
	started := tracing.Stamp(t.clock)
	eventbus.Publish(ctx, t.bus, events.ResolverStart{
		Meta:  events.Meta{RequestID: t.id, At: started},
		Field: field,
	})
	return func(err error) {
		end := tracing.Stamp(t.clock)
		eventbus.Publish(ctx, t.bus, events.ResolverEnd{
			Meta:     events.Meta{RequestID: t.id, At: end},
			Field:    field,
			Started:  started,
			Duration: end.Sub(started),
			Err:      err,
		})
	}
}
