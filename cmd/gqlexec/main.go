// Command gqlexec executes GraphQL documents against an SDL schema backed
// by a JSON root value.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	schemaPaths []string
	rootPath    string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	o := &globalOptions{}
	root := &cobra.Command{
		Use:           "gqlexec",
		Short:         "GraphQL execution engine and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	pf.StringSliceVarP(&o.schemaPaths, "schema", "s", nil, "GraphQL SDL file. Repeatable; files are concatenated")
	pf.StringVar(&o.rootPath, "root", "", "JSON file used as the root value")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&o.logFormat, "log-format", "", "Log format: json or console")

	root.AddCommand(
		newServeCmd(o),
		newExecCmd(o),
		newValidateCmd(o),
		newPrintSchemaCmd(o),
	)
	return root
}
