// Package otel exports engine diagnostics as OpenTelemetry spans.
package otel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/gqlexec/internal/eventbus"
	events "github.com/hanpama/gqlexec/internal/events"
	reqid "github.com/hanpama/gqlexec/internal/reqid"
)

const instrumentationName = "github.com/hanpama/gqlexec"

// Config selects the OTLP collector.
type Config struct {
	// Endpoint is the collector's host:port. Empty disables export.
	Endpoint string `yaml:"otlp_endpoint"`
	// ServiceName is reported as service.name.
	ServiceName string `yaml:"service_name"`
}

// Setup installs a global tracer provider exporting over OTLP/gRPC and
// returns it with its shutdown function. With an empty endpoint it returns
// a nil provider and a no-op shutdown.
func Setup(ctx context.Context, cfg Config) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return nil, func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, nil, fmt.Errorf("otlp exporter: %w", err)
	}
	service := cfg.ServiceName
	if service == "" {
		service = "gqlexec"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// Observer turns bus events into spans:
//
//	http.request
//	└── graphql.execute
//	    ├── graphql.parse
//	    ├── graphql.validate
//	    └── graphql.resolve (one per resolver call)
type Observer struct {
	tracer trace.Tracer

	httpSpans sync.Map // request id -> trace.Span
	execSpans sync.Map // request id -> trace.Span
	stepSpans sync.Map // request id + stage -> trace.Span
}

// NewObserver creates spans with tp. A nil tp uses the global provider.
func NewObserver(tp trace.TracerProvider) *Observer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Observer{tracer: tp.Tracer(instrumentationName)}
}

// Register subscribes o to b.
func (o *Observer) Register(b *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe[events.HTTPStart](b, o.onHTTPStart),
		eventbus.Subscribe[events.HTTPFinish](b, o.onHTTPFinish),
		eventbus.Subscribe[events.ExecutionStart](b, o.onExecutionStart),
		eventbus.Subscribe[events.ExecutionEnd](b, o.onExecutionEnd),
		eventbus.Subscribe[events.ParseStart](b, o.onParseStart),
		eventbus.Subscribe[events.ParseEnd](b, o.onParseEnd),
		eventbus.Subscribe[events.ValidateStart](b, o.onValidateStart),
		eventbus.Subscribe[events.ValidateEnd](b, o.onValidateEnd),
		eventbus.Subscribe[events.ResolverStart](b, o.onResolverStart),
		eventbus.Subscribe[events.ResolverEnd](b, o.onResolverEnd),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (o *Observer) onHTTPStart(ctx context.Context, e events.HTTPStart) {
	rid, ok := reqid.FromContext(ctx)
	if !ok {
		return
	}
	_, span := o.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		semconv.HTTPMethodKey.String(e.Request.Method),
		attribute.String("http.target", e.Request.URL.Path),
	)
	o.httpSpans.Store(rid, span)
}

func (o *Observer) onHTTPFinish(ctx context.Context, e events.HTTPFinish) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := o.httpSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
	if e.Status >= 500 {
		span.SetStatus(codes.Error, "")
	}
	span.End()
}

func (o *Observer) onExecutionStart(ctx context.Context, e events.ExecutionStart) {
	parent := ctx
	if v, ok := o.httpSpans.Load(e.RequestID); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := o.tracer.Start(parent, "graphql.execute", trace.WithTimestamp(e.At.Wall))
	span.SetAttributes(
		attribute.String("graphql.request_id", e.RequestID),
		attribute.String("graphql.operation.name", e.OperationName),
		attribute.String("graphql.document", e.Query),
	)
	o.execSpans.Store(e.RequestID, span)
}

func (o *Observer) onExecutionEnd(_ context.Context, e events.ExecutionEnd) {
	v, ok := o.execSpans.LoadAndDelete(e.RequestID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.String("graphql.operation.type", e.OperationType),
		attribute.Int("graphql.error_count", len(e.Errors)),
		attribute.Bool("graphql.cancelled", e.Cancelled),
	)
	if e.Cancelled {
		span.SetStatus(codes.Error, "cancelled")
	}
	span.End(trace.WithTimestamp(e.At.Wall))
}

func (o *Observer) startStep(ctx context.Context, m events.Meta, key, name string, attrs ...attribute.KeyValue) {
	parent := ctx
	if v, ok := o.execSpans.Load(m.RequestID); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := o.tracer.Start(parent, name, trace.WithTimestamp(m.At.Wall), trace.WithAttributes(attrs...))
	o.stepSpans.Store(m.RequestID+"/"+key, span)
}

func (o *Observer) endStep(m events.Meta, key string, err error, attrs ...attribute.KeyValue) {
	v, ok := o.stepSpans.LoadAndDelete(m.RequestID + "/" + key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(m.At.Wall))
}

func (o *Observer) onParseStart(ctx context.Context, e events.ParseStart) {
	o.startStep(ctx, e.Meta, "parse", "graphql.parse")
}

func (o *Observer) onParseEnd(_ context.Context, e events.ParseEnd) {
	o.endStep(e.Meta, "parse", e.Err)
}

func (o *Observer) onValidateStart(ctx context.Context, e events.ValidateStart) {
	o.startStep(ctx, e.Meta, "validate", "graphql.validate")
}

func (o *Observer) onValidateEnd(_ context.Context, e events.ValidateEnd) {
	var err error
	if e.Violations > 0 {
		err = fmt.Errorf("%d validation errors", e.Violations)
	}
	o.endStep(e.Meta, "validate", err, attribute.Int("graphql.validation.violations", e.Violations))
}

func (o *Observer) onResolverStart(ctx context.Context, e events.ResolverStart) {
	o.startStep(ctx, e.Meta, pathKey(e.Path), "graphql.resolve",
		attribute.String("graphql.field.path", pathKey(e.Path)),
		attribute.String("graphql.field.parent_type", e.ParentType),
		attribute.String("graphql.field.name", e.FieldName),
		attribute.String("graphql.field.return_type", e.ReturnType),
	)
}

func (o *Observer) onResolverEnd(_ context.Context, e events.ResolverEnd) {
	o.endStep(e.Meta, pathKey(e.Path), e.Err)
}

func pathKey(path []any) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
