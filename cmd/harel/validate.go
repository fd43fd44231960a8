package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comalice/harel/internal/production"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <chart>",
		Short: "Check a chart document",
		Long: `Decode and build a chart, reporting every structural problem: unknown
state labels, missing initial substates, unknown commands and conditions.

With --format json the chart structure is printed on success.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, _, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(new(production.DefaultVisualizer).Describe(c))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: chart %q is valid (%d states, %d transitions)\n",
				args[0], c.Name(), c.Len(), len(c.Transitions()))
			return nil
		},
	}
}
