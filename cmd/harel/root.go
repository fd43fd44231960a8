package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/comalice/harel"
	"github.com/comalice/harel/reader"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "harel",
		Short: "Load, inspect and run Harel statecharts",
		Long: `harel reads charts from YAML, JSON or SCXML documents, checks them,
renders them as Graphviz DOT and runs them against event sequences or
over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newDotCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// load reads and compiles a chart file with a registry logging to the
// command's stderr.
func (o *rootOptions) load(cmd *cobra.Command, path string) (*harel.Chart, *reader.Document, *reader.Registry, error) {
	reg := reader.NewRegistry(o.logger(cmd.ErrOrStderr()))
	c, doc, err := reader.Load(path, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, doc, reg, nil
}
