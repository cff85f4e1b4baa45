// Package server serves an engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	engine "github.com/hanpama/gqlexec/internal/engine"
	eventbus "github.com/hanpama/gqlexec/internal/eventbus"
	events "github.com/hanpama/gqlexec/internal/events"
	executor "github.com/hanpama/gqlexec/internal/executor"
	reqid "github.com/hanpama/gqlexec/internal/reqid"
	response "github.com/hanpama/gqlexec/internal/response"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// TracingHeader set to "1" turns on diagnostics for one request.
	TracingHeader = "GraphQL-Tracing"
	// requestIDMetadata is the outgoing gRPC metadata key for the request id.
	requestIDMetadata = "graphql-request-id"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs them through the engine, and writes
// {data, errors, extensions} responses.
type Handler struct {
	engine *engine.Engine
	opt    Options
	logger *zap.Logger
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool `yaml:"pretty"`

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions `yaml:"cors,omitempty"`

	// MetadataHeaders lists HTTP headers forwarded to resolvers as outgoing
	// gRPC metadata. Header names are case-insensitive. Default is none.
	MetadataHeaders []string `yaml:"metadata_headers,omitempty"`

	// DisableTracingHeader ignores the GraphQL-Tracing request header.
	DisableTracingHeader bool `yaml:"disable_tracing_header"`
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// WithOptions replaces every setting with opts, typically loaded from a
// config file.
func WithOptions(opts Options) Option { return func(o *Options) { *o = opts } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// New creates a GraphQL HTTP handler for e. A nil logger discards logs.
func New(e *engine.Engine, logger *zap.Logger, opts ...Option) *Handler {
	var op Options
	for _, f := range opts {
		f(&op)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: e, opt: op, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	if id := r.Header.Get(RequestIDHeader); id != "" {
		ctx = reqid.WithID(ctx, id)
	}
	ctx, rid := reqid.NewContext(ctx)
	w.Header().Set(RequestIDHeader, rid)

	bus := h.engine.Bus()
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, bus, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, bus, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		h.reject(w, rid, status, "method not allowed")
		return
	}

	// Map configured headers into metadata
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[requestIDMetadata] = []string{rid}
	ctx = metadata.NewOutgoingContext(ctx, md)

	req, batch, msg := parseRequest(r, h.opt.MaxBodyBytes)
	if msg != "" {
		status = http.StatusBadRequest
		if msg == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		h.reject(w, rid, status, msg)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	flags := engine.Flags{
		EnableTracing: !h.opt.DisableTracingHeader && r.Header.Get(TracingHeader) == "1",
	}

	if batch != nil {
		out := make([]*response.Response, len(batch))
		for i := range batch {
			batch[i].Flags = flags
			out[i] = h.engine.Execute(ctx, batch[i])
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	req.Flags = flags
	writeJSON(w, status, h.engine.Execute(ctx, req), h.opt.Pretty)
}

func (h *Handler) reject(w http.ResponseWriter, rid string, status int, msg string) {
	h.logger.Info("rejected graphql request",
		zap.String("request_id", rid),
		zap.Int("status", status),
		zap.String("reason", msg))
	writeJSON(w, status, response.FromErrors(&executor.GraphQLError{
		Message:    msg,
		Extensions: map[string]any{"code": "BAD_REQUEST"},
	}), h.opt.Pretty)
}

// ------------------ Request parsing ------------------

func parseRequest(r *http.Request, maxBody int64) (engine.Request, []engine.Request, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return engine.Request{}, nil, "missing 'query'"
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return engine.Request{}, nil, "invalid 'variables' JSON"
			}
		}
		op := r.URL.Query().Get("operationName")
		return engine.Request{Query: q, Variables: vars, OperationName: op}, nil, ""
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return engine.Request{}, nil, "unsupported Content-Type"
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return engine.Request{}, nil, "failed to read body"
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return engine.Request{}, nil, errBodyTooLargeMessage
	}

	// Try array (batch)
	if len(body) > 0 && body[0] == '[' {
		var arr []engine.Request
		if err := json.Unmarshal(body, &arr); err != nil {
			return engine.Request{}, nil, "invalid JSON"
		}
		if len(arr) == 0 {
			return engine.Request{}, nil, "empty batch"
		}
		return engine.Request{}, arr, ""
	}
	// Single
	var req engine.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return engine.Request{}, nil, "invalid JSON"
	}
	if req.Query == "" {
		return engine.Request{}, nil, "missing 'query'"
	}
	return req, nil, ""
}

// ------------------ Response formatting ------------------

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
