package engine

import (
	"fmt"
	"time"

	doccache "github.com/hanpama/gqlexec/internal/doccache"
)

// DiagnosticsPolicy decides which requests publish diagnostic events.
type DiagnosticsPolicy string

const (
	// DiagnosticsAlways publishes events for every request.
	DiagnosticsAlways DiagnosticsPolicy = "always"
	// DiagnosticsOnDemand publishes events only for requests that set
	// Flags.EnableTracing.
	DiagnosticsOnDemand DiagnosticsPolicy = "on_demand"
)

// Config holds the engine settings. The zero value is usable; see
// DefaultConfig for the values New starts from.
type Config struct {
	// Cache bounds the parsed document cache.
	Cache doccache.Config `yaml:"cache"`

	// Timeout aborts requests running longer than this. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration `yaml:"timeout"`

	// MaxConcurrency bounds resolvers running at once across all requests.
	// Zero means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Diagnostics selects the requests that publish events. Empty means
	// DiagnosticsOnDemand.
	Diagnostics DiagnosticsPolicy `yaml:"diagnostics"`

	// Introspection installs the __schema and __type meta fields.
	Introspection bool `yaml:"introspection"`
}

// DefaultConfig returns the configuration New uses when WithConfig is not
// given.
func DefaultConfig() Config {
	return Config{
		Cache:         doccache.Config{MaxEntries: doccache.DefaultMaxEntries},
		Diagnostics:   DiagnosticsOnDemand,
		Introspection: true,
	}
}

// Validate reports settings that cannot be honored.
func (c Config) Validate() error {
	switch c.Diagnostics {
	case "", DiagnosticsAlways, DiagnosticsOnDemand:
	default:
		return fmt.Errorf("unknown diagnostics policy %q", c.Diagnostics)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative, got %d", c.MaxConcurrency)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}
	return nil
}

// Flags are per-request switches.
type Flags struct {
	// EnableTracing turns on diagnostics for this request under
	// DiagnosticsOnDemand.
	EnableTracing bool
}

// Request is one GraphQL request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Flags         Flags          `json:"-"`
}
