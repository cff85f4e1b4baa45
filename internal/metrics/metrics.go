// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	doccache "github.com/hanpama/gqlexec/internal/doccache"
	eventbus "github.com/hanpama/gqlexec/internal/eventbus"
	events "github.com/hanpama/gqlexec/internal/events"
)

const namespace = "gqlexec"

// Outcome label values for gqlexec_requests_total.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Collector observes an engine bus and records request, resolver and HTTP
// metrics into its registry.
type Collector struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	parseErrors      prometheus.Counter
	validationErrors prometheus.Counter
	resolverDuration *prometheus.HistogramVec
	resolverErrors   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     prometheus.Histogram
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "GraphQL requests by operation type and outcome.",
		}, []string{"operation_type", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end GraphQL request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation_type"}),
		parseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Documents rejected by the parser.",
		}),
		validationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Documents rejected by validation.",
		}),
		resolverDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolver_duration_seconds",
			Help:      "Resolver latency by field coordinate.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"parent_type", "field"}),
		resolverErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_errors_total",
			Help:      "Resolver failures by field coordinate.",
		}, []string{"parent_type", "field"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by status code.",
		}, []string{"code"}),
		httpDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register subscribes c to b.
func (c *Collector) Register(b *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe[events.ExecutionEnd](b, c.onExecutionEnd),
		eventbus.Subscribe[events.ParseEnd](b, c.onParseEnd),
		eventbus.Subscribe[events.ValidateEnd](b, c.onValidateEnd),
		eventbus.Subscribe[events.ResolverEnd](b, c.onResolverEnd),
		eventbus.Subscribe[events.HTTPFinish](b, c.onHTTPFinish),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (c *Collector) onExecutionEnd(_ context.Context, e events.ExecutionEnd) {
	outcome := OutcomeOK
	switch {
	case e.Cancelled:
		outcome = OutcomeCancelled
	case len(e.Errors) > 0:
		outcome = OutcomeError
	}
	opType := e.OperationType
	if opType == "" {
		opType = "unknown"
	}
	c.requests.WithLabelValues(opType, outcome).Inc()
	c.requestDuration.WithLabelValues(opType).Observe(e.Duration.Seconds())
}

func (c *Collector) onParseEnd(_ context.Context, e events.ParseEnd) {
	if e.Err != nil {
		c.parseErrors.Inc()
	}
}

func (c *Collector) onValidateEnd(_ context.Context, e events.ValidateEnd) {
	if e.Violations > 0 {
		c.validationErrors.Inc()
	}
}

func (c *Collector) onResolverEnd(_ context.Context, e events.ResolverEnd) {
	c.resolverDuration.WithLabelValues(e.ParentType, e.FieldName).Observe(e.Duration.Seconds())
	if e.Err != nil {
		c.resolverErrors.WithLabelValues(e.ParentType, e.FieldName).Inc()
	}
}

func (c *Collector) onHTTPFinish(_ context.Context, e events.HTTPFinish) {
	c.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
	c.httpDuration.Observe(e.Duration.Seconds())
}

// RegisterCacheStats exports document cache counters read from stats at
// scrape time.
func RegisterCacheStats(reg prometheus.Registerer, stats func() doccache.Stats) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "document_cache",
		Name:      "entries",
		Help:      "Compiled documents currently cached.",
	}, func() float64 { return float64(stats().Entries) })
	counters := []struct {
		name, help string
		read       func(doccache.Stats) uint64
	}{
		{"hits_total", "Lookups served from the cache.", func(s doccache.Stats) uint64 { return s.Hits }},
		{"misses_total", "Lookups that compiled the document.", func(s doccache.Stats) uint64 { return s.Misses }},
		{"shared_total", "Lookups that waited for a concurrent compile.", func(s doccache.Stats) uint64 { return s.Shared }},
		{"evictions_total", "Entries evicted by size or idle time.", func(s doccache.Stats) uint64 { return s.Evictions }},
		{"collisions_total", "Hash collisions compiled without caching.", func(s doccache.Stats) uint64 { return s.Collisions }},
	}
	for _, c := range counters {
		read := c.read
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document_cache",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(read(stats())) })
	}
}

// Handler serves g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
