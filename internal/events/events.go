// Package events defines the diagnostic events published on the engine bus.
// Events are immutable values; observers must not retain pointers into them
// beyond the handler call unless they copy.
package events

import "time"

// Kind names an event type.
type Kind string

const (
	KindExecutionStart Kind = "ExecutionStart"
	KindExecutionEnd   Kind = "ExecutionEnd"
	KindParseStart     Kind = "ParseStart"
	KindParseEnd       Kind = "ParseEnd"
	KindValidateStart  Kind = "ValidateStart"
	KindValidateEnd    Kind = "ValidateEnd"
	KindResolverStart  Kind = "ResolverStart"
	KindResolverEnd    Kind = "ResolverEnd"
	KindHTTPStart      Kind = "HTTPStart"
	KindHTTPFinish     Kind = "HTTPFinish"
)

// Timestamp pairs a wall clock reading with a monotonic nanosecond counter.
// Durations are computed from Mono only.
type Timestamp struct {
	Wall time.Time
	Mono int64
}

// Sub returns the monotonic distance from o to t.
func (t Timestamp) Sub(o Timestamp) time.Duration { return time.Duration(t.Mono - o.Mono) }

// Meta is carried by every pipeline event.
type Meta struct {
	RequestID string
	At        Timestamp
}

// ExecutionStart is emitted once per request before the document is looked up.
type ExecutionStart struct {
	Meta
	Query         string
	OperationName string
}

// ExecutionEnd is emitted once per request after the result is assembled.
type ExecutionEnd struct {
	Meta
	OperationName string
	OperationType string // empty when the request failed before planning
	Errors        []error
	Cancelled     bool
	Duration      time.Duration
}

// ParseStart is emitted before a document is parsed. Cache hits emit no
// parse events.
type ParseStart struct {
	Meta
}

// ParseEnd is emitted after parsing, with the syntax error if any.
type ParseEnd struct {
	Meta
	Err error
}

// ValidateStart is emitted before validation rules run.
type ValidateStart struct {
	Meta
}

// ValidateEnd is emitted after validation with the number of violations.
type ValidateEnd struct {
	Meta
	Violations int
}

// Field identifies one resolver invocation.
type Field struct {
	Path       []any
	ParentType string
	FieldName  string
	ReturnType string
}

// ResolverStart is emitted before a resolver is invoked.
type ResolverStart struct {
	Meta
	Field
}

// ResolverEnd is emitted after a resolver returns, whether or not it failed.
type ResolverEnd struct {
	Meta
	Field
	Started  Timestamp
	Duration time.Duration
	Err      error
}

func (ExecutionStart) Kind() Kind { return KindExecutionStart }
func (ExecutionEnd) Kind() Kind   { return KindExecutionEnd }
func (ParseStart) Kind() Kind     { return KindParseStart }
func (ParseEnd) Kind() Kind       { return KindParseEnd }
func (ValidateStart) Kind() Kind  { return KindValidateStart }
func (ValidateEnd) Kind() Kind    { return KindValidateEnd }
func (ResolverStart) Kind() Kind  { return KindResolverStart }
func (ResolverEnd) Kind() Kind    { return KindResolverEnd }
