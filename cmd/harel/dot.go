package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/production"
)

func newDotCommand(opts *rootOptions) *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "dot <chart> [events...]",
		Short: "Render a chart as Graphviz DOT",
		Long: `Print the chart as DOT. With --active the chart is started, the given
events are applied and the resulting configuration is highlighted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, doc, _, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			var h harel.StateMachine
			if active {
				e := harel.NewEngine(harel.WithHost(doc.NewDataModel()))
				ctx := context.Background()
				if h, err = e.Start(ctx, c); err != nil {
					return err
				}
				for _, name := range args[1:] {
					next, err := e.Update(ctx, c, h, harel.On(harel.NewEvent(name, nil)))
					if err != nil && !harel.IsIgnorable(err) {
						return err
					}
					h = next
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), new(production.DefaultVisualizer).ExportDOT(c, h))
			return err
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "highlight the configuration after the given events")
	return cmd
}
