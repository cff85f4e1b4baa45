package main

import (
	"fmt"

	"github.com/spf13/cobra"

	schema "github.com/hanpama/gqlexec/internal/schema"
)

func newPrintSchemaCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "print-schema",
		Short: "Print the merged schema as SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.loadSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), schema.Render(s))
			return err
		},
	}
}
