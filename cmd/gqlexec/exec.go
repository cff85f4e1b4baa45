package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	engine "github.com/hanpama/gqlexec/internal/engine"
	logging "github.com/hanpama/gqlexec/internal/logging"
	tracing "github.com/hanpama/gqlexec/internal/tracing"
)

type execOptions struct {
	query     string
	queryFile string
	variables string
	operation string
	trace     bool
}

func newExecCmd(o *globalOptions) *cobra.Command {
	eo := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute one request and print the JSON response",
		Long: "Execute one request against the schema and root value and print the response.\n" +
			"The document is taken from --query, --query-file or standard input.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExec(cmd, o, eo)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&eo.query, "query", "q", "", "GraphQL document")
	f.StringVarP(&eo.queryFile, "query-file", "f", "", "File holding the GraphQL document")
	f.StringVar(&eo.variables, "variables", "", "Variables as a JSON object")
	f.StringVarP(&eo.operation, "operation", "o", "", "Operation name")
	f.BoolVar(&eo.trace, "trace", false, "Add the tracing extension to the response")
	return cmd
}

func runExec(cmd *cobra.Command, o *globalOptions, eo *execOptions) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	s, err := o.loadSchema()
	if err != nil {
		return err
	}
	root, err := o.loadRoot()
	if err != nil {
		return err
	}
	query, err := readDocument(cmd, eo.query, eo.queryFile)
	if err != nil {
		return err
	}
	var vars map[string]any
	if eo.variables != "" {
		if err := json.Unmarshal([]byte(eo.variables), &vars); err != nil {
			return fmt.Errorf("decode variables: %w", err)
		}
	}

	e, err := engine.New(s,
		engine.WithConfig(cfg.Engine),
		engine.WithLogger(logger),
		engine.WithRootValue(root),
		engine.WithObserver(tracing.NewRecorder()),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	res := e.Execute(cmd.Context(), engine.Request{
		Query:         query,
		OperationName: eo.operation,
		Variables:     vars,
		Flags:         engine.Flags{EnableTracing: eo.trace},
	})
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// readDocument returns inline text, else the file's content, else stdin.
func readDocument(cmd *cobra.Command, inline, path string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}
