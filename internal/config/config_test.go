package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	doccache "github.com/hanpama/gqlexec/internal/doccache"
	engine "github.com/hanpama/gqlexec/internal/engine"
	logging "github.com/hanpama/gqlexec/internal/logging"
	otel "github.com/hanpama/gqlexec/internal/otel"
	server "github.com/hanpama/gqlexec/internal/server"
)

const fullConfig = `
engine:
  cache:
    max_entries: 64
    idle_ttl: 5m
  timeout: 3s
  max_concurrency: 16
  diagnostics: always
  introspection: false
server:
  addr: 127.0.0.1:9000
  path: /api/graphql
  pretty: true
  max_body_bytes: 1048576
  cors:
    allowed_origins: ["https://app.example"]
  metadata_headers: [Authorization]
  disable_tracing_header: true
telemetry:
  otlp_endpoint: collector:4317
  service_name: pets
  metrics_path: /internal/metrics
log:
  level: debug
  format: console
`

func TestParse(t *testing.T) {
	got, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	want := File{
		Engine: engine.Config{
			Cache:          doccache.Config{MaxEntries: 64, IdleTTL: 5 * time.Minute},
			Timeout:        3 * time.Second,
			MaxConcurrency: 16,
			Diagnostics:    engine.DiagnosticsAlways,
			Introspection:  false,
		},
		Server: Server{
			Addr: "127.0.0.1:9000",
			Path: "/api/graphql",
			Options: server.Options{
				Pretty:               true,
				MaxBodyBytes:         1 << 20,
				CORS:                 server.CORSOptions{AllowedOrigins: []string{"https://app.example"}},
				MetadataHeaders:      []string{"Authorization"},
				DisableTracingHeader: true,
			},
		},
		Telemetry: Telemetry{
			Config:      otel.Config{Endpoint: "collector:4317", ServiceName: "pets"},
			MetricsPath: "/internal/metrics",
		},
		Log: logging.Config{Level: "debug", Format: "console"},
	}
	// Pattern: Result comparison
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	got, err := Parse([]byte("server:\n  pretty: true\n"))
	require.NoError(t, err)

	want := Default()
	want.Server.Pretty = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	empty, err := Parse(nil)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), empty); diff != "" {
		t.Errorf("empty config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "engine:\n  cache_size: 3\n", "field cache_size not found"},
		{"bad duration", "engine:\n  timeout: soon\n", "decode"},
		{"bad policy", "engine:\n  diagnostics: sometimes\n", `engine: unknown diagnostics policy "sometimes"`},
		{"negative concurrency", "engine:\n  max_concurrency: -1\n", "engine: max_concurrency must not be negative"},
		{"empty addr", "server:\n  addr: \"\"\n", "server: addr is required"},
		{"relative path", "server:\n  path: graphql\n", "server: path must start with /"},
		{"metrics collision", "server:\n  path: /x\ntelemetry:\n  metrics_path: /x\n", "collides"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gqlexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", f.Server.Addr)

	f, err = Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), f)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read the config file")
}

func TestMarshalDefaultIsLoadable(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	f, err := Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), f); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
