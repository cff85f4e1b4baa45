// Package config loads the gqlexec YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	engine "github.com/hanpama/gqlexec/internal/engine"
	logging "github.com/hanpama/gqlexec/internal/logging"
	otel "github.com/hanpama/gqlexec/internal/otel"
	server "github.com/hanpama/gqlexec/internal/server"
)

// File is the root of the configuration file.
type File struct {
	Engine    engine.Config  `yaml:"engine"`
	Server    Server         `yaml:"server"`
	Telemetry Telemetry      `yaml:"telemetry"`
	Log       logging.Config `yaml:"log"`
}

// Server configures the HTTP listener.
type Server struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
	// Path serves GraphQL requests.
	Path string `yaml:"path"`

	server.Options `yaml:",inline"`
}

// Telemetry configures the exporters.
type Telemetry struct {
	otel.Config `yaml:",inline"`

	// MetricsPath serves Prometheus metrics. Empty disables metrics.
	MetricsPath string `yaml:"metrics_path"`
}

// Default returns the values Load starts from.
func Default() File {
	return File{
		Engine: engine.DefaultConfig(),
		Server: Server{Addr: ":8080", Path: "/graphql"},
		Telemetry: Telemetry{
			Config:      otel.Config{ServiceName: "gqlexec"},
			MetricsPath: "/metrics",
		},
		Log: logging.Config{Level: "info", Format: "json"},
	}
}

// Load reads path over Default. An empty path returns Default. Unknown keys
// are rejected.
func Load(path string) (File, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate reports settings that cannot be honored.
func (f File) Validate() error {
	if err := f.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if f.Server.Addr == "" {
		return errors.New("server: addr is required")
	}
	if !strings.HasPrefix(f.Server.Path, "/") {
		return fmt.Errorf("server: path must start with /, got %q", f.Server.Path)
	}
	if f.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server: max_body_bytes must not be negative, got %d", f.Server.MaxBodyBytes)
	}
	if p := f.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("telemetry: metrics_path must start with /, got %q", p)
	}
	if p := f.Telemetry.MetricsPath; p != "" && p == f.Server.Path {
		return fmt.Errorf("telemetry: metrics_path collides with server path %q", p)
	}
	return nil
}

// Marshal renders f as YAML.
func (f File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
