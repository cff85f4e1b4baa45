package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engine "github.com/hanpama/gqlexec/internal/engine"
	executor "github.com/hanpama/gqlexec/internal/executor"
)

// errInvalid is returned once every violation has been printed.
type errInvalid int

func (e errInvalid) Error() string { return fmt.Sprintf("%d invalid document(s)", int(e)) }

func newValidateCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [document...]",
		Short: "Check documents against the schema",
		Long: "Parse and validate each document and print one line per violation.\n" +
			"With no arguments the document is read from standard input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, o, args)
		},
	}
}

func runValidate(cmd *cobra.Command, o *globalOptions, paths []string) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := o.loadSchema()
	if err != nil {
		return err
	}
	e, err := engine.New(s, engine.WithConfig(cfg.Engine))
	if err != nil {
		return err
	}
	defer e.Close()

	type document struct{ name, text string }
	var docs []document
	if len(paths) == 0 {
		text, err := readDocument(cmd, "", "")
		if err != nil {
			return err
		}
		docs = append(docs, document{"<stdin>", text})
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		docs = append(docs, document{p, string(data)})
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, d := range docs {
		errs := e.Check(cmd.Context(), d.text)
		if len(errs) > 0 {
			invalid++
		}
		for _, ge := range errs {
			fmt.Fprintln(out, formatViolation(d.name, ge))
		}
	}
	if invalid > 0 {
		return errInvalid(invalid)
	}
	return nil
}

func formatViolation(name string, e *executor.GraphQLError) string {
	if len(e.Locations) == 0 {
		return fmt.Sprintf("%s: %s", name, e.Message)
	}
	loc := e.Locations[0]
	return fmt.Sprintf("%s:%d:%d: %s", name, loc.Line, loc.Column, e.Message)
}
