package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/comalice/harel/internal/core"
	"github.com/comalice/harel/internal/production"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		addr      string
		storeSpec string
		tick      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve <chart>",
		Short: "Run machines of a chart behind an HTTP API",
		Long: `Serve a JSON API creating and driving machines of one chart:

  POST   /machines               create and start a machine
  GET    /machines/{id}          active configuration
  POST   /machines/{id}/events   {"name": "...", "properties": {...}}
  DELETE /machines/{id}          stop a machine
  GET    /machines/{id}/revisions snapshot history (sqlite store)
  GET    /machines/{id}/dot      DOT with the configuration highlighted
  GET    /chart, /chart.dot      chart structure
  GET    /metrics                Prometheus metrics

Machines are persisted after every macrostep to the store named by --store:
"memory", "json:<dir>", "yaml:<dir>", "sqlite:<file>" or "redis:<addr>".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, doc, _, err := opts.load(cmd, args[0])
			if err != nil {
				return err
			}
			store, closer, err := openStore(storeSpec)
			if err != nil {
				return err
			}
			defer closer.Close()

			logger := opts.logger(cmd.ErrOrStderr())
			if !opts.Verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			}
			s := newServer(c, doc, store, tick, logger)
			defer s.shutdown()

			srv := &http.Server{
				Addr:              addr,
				Handler:           s.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("serving", slog.String("chart", c.Name()), slog.String("addr", addr), slog.String("store", storeSpec))
				serverErrors <- srv.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(shutdown)

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case sig := <-shutdown:
				logger.Info("shutting down", slog.Any("signal", sig))
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("graceful shutdown: %w", err)
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&storeSpec, "store", "memory", "snapshot store")
	cmd.Flags().DurationVar(&tick, "tick", 100*time.Millisecond, "clock tick for delayed transitions (0 disables)")
	return cmd
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore parses a --store value.
func openStore(spec string) (core.Store, io.Closer, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	if kind != "memory" && arg == "" {
		return nil, nil, fmt.Errorf("store %q: missing location", spec)
	}
	switch kind {
	case "memory":
		return production.NewMemoryStore(), nopCloser{}, nil
	case "json":
		s, err := production.NewJSONStore(arg)
		return s, nopCloser{}, err
	case "yaml":
		s, err := production.NewYAMLStore(arg)
		return s, nopCloser{}, err
	case "sqlite":
		s, err := production.OpenSQLite(arg)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "redis":
		s := production.NewRedisStore(arg, os.Getenv("HAREL_REDIS_PASSWORD"), 0)
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("store %q: unknown kind %q", spec, kind)
	}
}
