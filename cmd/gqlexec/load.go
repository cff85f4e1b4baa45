package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	config "github.com/hanpama/gqlexec/internal/config"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

// typenameKey names the JSON member that selects the concrete type of a
// value at an interface or union position.
const typenameKey = "__typename"

func (o *globalOptions) loadConfig(cmd *cobra.Command) (config.File, error) {
	f, err := config.Load(o.configPath)
	if err != nil {
		return config.File{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		f.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		f.Log.Format = o.logFormat
	}
	return f, nil
}

// loadSchema builds the schema from the SDL files and binds a type resolver
// reading __typename on every abstract type.
func (o *globalOptions) loadSchema() (*schema.Schema, error) {
	if len(o.schemaPaths) == 0 {
		return nil, errors.New("--schema is required")
	}
	var sdl strings.Builder
	for _, p := range o.schemaPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		sdl.Write(data)
		sdl.WriteByte('\n')
	}
	s, err := schema.BuildFromSDL(sdl.String())
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	for name, t := range s.Types {
		if !t.IsAbstract() || strings.HasPrefix(name, "__") {
			continue
		}
		if err := s.BindTypeResolver(name, typenameResolver); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func typenameResolver(_ context.Context, value any) (string, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", fmt.Errorf("cannot determine the type of %T", value)
	}
	name, _ := m[typenameKey].(string)
	if name == "" {
		return "", fmt.Errorf("value has no %q member", typenameKey)
	}
	return name, nil
}

// loadRoot decodes the root value file. No file means an empty object.
func (o *globalOptions) loadRoot() (any, error) {
	if o.rootPath == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(o.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read root value: %w", err)
	}
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode root value %s: %w", o.rootPath, err)
	}
	return root, nil
}
