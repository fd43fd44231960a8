package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/comalice/harel"
)

// stepResult is one line of run output.
type stepResult struct {
	Input   string   `json:"input"`
	Active  []string `json:"active"`
	Ignored bool     `json:"ignored,omitempty"`
	Halted  bool     `json:"halted,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "run <chart> [inputs...]",
		Short: "Run a chart against a sequence of inputs",
		Long: `Start the chart and apply each input in order. Inputs come from the
arguments, or one per line from stdin when none are given.

An input is an event name followed by optional key=value properties
("login user=ada"), or "+<duration>" to advance the clock and fire delayed
transitions ("+1.5s"). Blank lines and lines starting with # are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, doc, reg, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			reg.SetTracing(opts.Verbose)
			out := cmd.OutOrStdout()

			engineOpts := []harel.Option{
				harel.WithHost(doc.NewDataModel()),
				harel.WithLogger(opts.logger(cmd.ErrOrStderr())),
			}
			if trace {
				engineOpts = append(engineOpts, harel.WithLifecycleHooks(traceHooks(out)))
			}
			r := &runner{chart: c, engine: harel.NewEngine(engineOpts...), out: out, asJSON: opts.Format == "json"}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := r.start(ctx); err != nil {
				return err
			}
			if len(args) > 1 {
				for _, in := range args[1:] {
					if err := r.apply(ctx, in); err != nil {
						return err
					}
				}
				return nil
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				if err := r.apply(ctx, sc.Text()); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "print state exits, transitions and entries")
	return cmd
}

func traceHooks(w io.Writer) harel.LifecycleHooks {
	return harel.LifecycleHooks{
		OnStateExit: func(_ context.Context, ev *harel.StateEvent) {
			fmt.Fprintf(w, "  exit  %s\n", ev.Label)
		},
		OnTransition: func(_ context.Context, ev *harel.TransitionEvent) {
			fmt.Fprintf(w, "  fire  #%d %s\n", ev.Index, ev.Event)
		},
		OnStateEnter: func(_ context.Context, ev *harel.StateEvent) {
			fmt.Fprintf(w, "  enter %s\n", ev.Label)
		},
	}
}

type runner struct {
	chart  *harel.Chart
	engine *harel.Engine
	h      harel.StateMachine
	out    io.Writer
	asJSON bool
}

func (r *runner) start(ctx context.Context) error {
	h, err := r.engine.Start(ctx, r.chart)
	if err != nil {
		return err
	}
	r.h = h
	return r.report(stepResult{Input: "(start)"})
}

// apply runs one input line. Action failures and microstep limits are
// reported and the run continues from the unchanged configuration.
func (r *runner) apply(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	if r.h.Halted(r.chart) {
		return fmt.Errorf("input %q: chart %q has halted", line, r.chart.Name())
	}

	h := r.h
	var trigger harel.Trigger
	if d, ok := strings.CutPrefix(line, "+"); ok {
		dur, err := time.ParseDuration(d)
		if err != nil || dur < 0 {
			return fmt.Errorf("input %q: invalid duration", line)
		}
		h = h.Advance(dur)
		trigger = harel.Tick()
	} else {
		trigger = harel.On(parseEvent(line))
	}

	res := stepResult{Input: line}
	next, err := r.engine.Update(ctx, r.chart, h, trigger)
	switch {
	case err == nil:
		r.h = next
	case harel.IsIgnorable(err):
		// the clock advance stands even when nothing fired
		r.h = h
		res.Ignored = true
	default:
		res.Error = err.Error()
	}
	return r.report(res)
}

func (r *runner) report(res stepResult) error {
	res.Active = r.h.Labels(r.chart)
	res.Halted = r.h.Halted(r.chart)
	if r.asJSON {
		return json.NewEncoder(r.out).Encode(res)
	}
	status := strings.Join(res.Active, " ")
	switch {
	case res.Error != "":
		status = "error: " + res.Error
	case res.Ignored:
		status += " (ignored)"
	case res.Halted:
		status += " (halted)"
	}
	_, err := fmt.Fprintf(r.out, "%s -> %s\n", res.Input, status)
	return err
}

func parseEvent(line string) harel.Event {
	fields := strings.Fields(line)
	var props map[string]string
	for _, f := range fields[1:] {
		k, v, _ := strings.Cut(f, "=")
		if props == nil {
			props = make(map[string]string)
		}
		props[k] = v
	}
	return harel.NewEvent(fields[0], props)
}
