// Package tracing assembles the Apollo tracing extension from diagnostic
// events and provides the clocks that stamp them.
package tracing

import (
	"context"
	"slices"
	"sync"
	"time"

	eventbus "github.com/hanpama/gqlexec/internal/eventbus"
	events "github.com/hanpama/gqlexec/internal/events"
	response "github.com/hanpama/gqlexec/internal/response"
)

// ExtensionKey is the response extensions entry written by the Recorder.
const ExtensionKey = "tracing"

const timeFormat = "2006-01-02T15:04:05.000Z"

// Trace is the Apollo tracing payload, version 1.
type Trace struct {
	Version    int       `json:"version"`
	StartTime  string    `json:"startTime"`
	EndTime    string    `json:"endTime"`
	Duration   int64     `json:"duration"`
	Parsing    Span      `json:"parsing"`
	Validation Span      `json:"validation"`
	Execution  Execution `json:"execution"`
}

// Span is a phase measured from the start of the request, in nanoseconds.
type Span struct {
	StartOffset int64 `json:"startOffset"`
	Duration    int64 `json:"duration"`
}

type Execution struct {
	Resolvers []Resolver `json:"resolvers"`
}

// Resolver is the timing of one resolver invocation.
type Resolver struct {
	Path        []any  `json:"path"`
	ParentType  string `json:"parentType"`
	FieldName   string `json:"fieldName"`
	ReturnType  string `json:"returnType"`
	StartOffset int64  `json:"startOffset"`
	Duration    int64  `json:"duration"`
}

type pending struct {
	start         events.Timestamp
	parseStart    events.Timestamp
	validateStart events.Timestamp
	parsing       Span
	validation    Span
	resolvers     []Resolver
}

// Recorder collects events per request id and writes a Trace into the
// request's response extensions when the execution ends.
type Recorder struct {
	mu       sync.Mutex
	inflight map[string]*pending
}

func NewRecorder() *Recorder {
	return &Recorder{inflight: make(map[string]*pending)}
}

// Register subscribes the recorder to b. The returned function removes
// every subscription.
func (r *Recorder) Register(b *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe(b, r.onExecutionStart),
		eventbus.Subscribe(b, r.onParseStart),
		eventbus.Subscribe(b, r.onParseEnd),
		eventbus.Subscribe(b, r.onValidateStart),
		eventbus.Subscribe(b, r.onValidateEnd),
		eventbus.Subscribe(b, r.onResolverEnd),
		eventbus.Subscribe(b, r.onExecutionEnd),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Recorder) with(id string, fn func(p *pending)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.inflight[id]; p != nil {
		fn(p)
	}
}

func (r *Recorder) onExecutionStart(_ context.Context, e events.ExecutionStart) {
	r.mu.Lock()
	r.inflight[e.RequestID] = &pending{start: e.At}
	r.mu.Unlock()
}

func (r *Recorder) onParseStart(_ context.Context, e events.ParseStart) {
	r.with(e.RequestID, func(p *pending) { p.parseStart = e.At })
}

func (r *Recorder) onParseEnd(_ context.Context, e events.ParseEnd) {
	r.with(e.RequestID, func(p *pending) {
		p.parsing = Span{
			StartOffset: int64(p.parseStart.Sub(p.start)),
			Duration:    int64(e.At.Sub(p.parseStart)),
		}
	})
}

func (r *Recorder) onValidateStart(_ context.Context, e events.ValidateStart) {
	r.with(e.RequestID, func(p *pending) { p.validateStart = e.At })
}

func (r *Recorder) onValidateEnd(_ context.Context, e events.ValidateEnd) {
	r.with(e.RequestID, func(p *pending) {
		p.validation = Span{
			StartOffset: int64(p.validateStart.Sub(p.start)),
			Duration:    int64(e.At.Sub(p.validateStart)),
		}
	})
}

func (r *Recorder) onResolverEnd(_ context.Context, e events.ResolverEnd) {
	r.with(e.RequestID, func(p *pending) {
		p.resolvers = append(p.resolvers, Resolver{
			Path:        slices.Clone(e.Path),
			ParentType:  e.ParentType,
			FieldName:   e.FieldName,
			ReturnType:  e.ReturnType,
			StartOffset: int64(e.Started.Sub(p.start)),
			Duration:    int64(e.Duration),
		})
	})
}

func (r *Recorder) onExecutionEnd(ctx context.Context, e events.ExecutionEnd) {
	r.mu.Lock()
	p := r.inflight[e.RequestID]
	delete(r.inflight, e.RequestID)
	r.mu.Unlock()
	if p == nil {
		return
	}

	resolvers := p.resolvers
	if resolvers == nil {
		resolvers = []Resolver{}
	}
	slices.SortStableFunc(resolvers, func(a, b Resolver) int {
		switch {
		case a.StartOffset < b.StartOffset:
			return -1
		case a.StartOffset > b.StartOffset:
			return 1
		}
		return 0
	})
	trace := &Trace{
		Version:    1,
		StartTime:  formatTime(p.start.Wall),
		EndTime:    formatTime(e.At.Wall),
		Duration:   int64(e.At.Sub(p.start)),
		Parsing:    p.parsing,
		Validation: p.validation,
		Execution:  Execution{Resolvers: resolvers},
	}
	if ext := response.ExtensionsFromContext(ctx); ext != nil {
		ext.Set(ExtensionKey, trace)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
