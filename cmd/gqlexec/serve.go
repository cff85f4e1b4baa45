package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/hanpama/gqlexec/internal/config"
	engine "github.com/hanpama/gqlexec/internal/engine"
	logging "github.com/hanpama/gqlexec/internal/logging"
	metrics "github.com/hanpama/gqlexec/internal/metrics"
	otel "github.com/hanpama/gqlexec/internal/otel"
	server "github.com/hanpama/gqlexec/internal/server"
	tracing "github.com/hanpama/gqlexec/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr   string
	pretty bool
}

func newServeCmd(o *globalOptions) *cobra.Command {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the schema over HTTP",
		Long: "Serve GraphQL over HTTP with the JSON root value.\n" +
			"SIGHUP reloads the schema files.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = so.addr
			}
			if cmd.Flags().Changed("pretty") {
				cfg.Server.Pretty = so.pretty
			}
			return runServe(cmd.Context(), o, cfg)
		},
	}
	cmd.Flags().StringVar(&so.addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&so.pretty, "pretty", false, "Pretty-print JSON responses")
	return cmd
}

// app is a configured engine with its HTTP handler.
type app struct {
	engine   *engine.Engine
	handler  http.Handler
	shutdown func(context.Context) error
}

// newApp wires the engine, its observers and the HTTP routes described by
// cfg.
func newApp(ctx context.Context, o *globalOptions, cfg config.File, logger *zap.Logger) (*app, error) {
	s, err := o.loadSchema()
	if err != nil {
		return nil, err
	}
	root, err := o.loadRoot()
	if err != nil {
		return nil, err
	}

	tp, shutdown, err := otel.Setup(ctx, cfg.Telemetry.Config)
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}
	opts := []engine.Option{
		engine.WithConfig(cfg.Engine),
		engine.WithLogger(logger),
		engine.WithRootValue(root),
		engine.WithObserver(tracing.NewRecorder()),
	}
	if tp != nil {
		opts = append(opts, engine.WithObserver(otel.NewObserver(tp)))
	}
	var reg *prometheus.Registry
	if cfg.Telemetry.MetricsPath != "" {
		reg = prometheus.NewRegistry()
		opts = append(opts, engine.WithObserver(metrics.New(reg)))
	}
	if (tp != nil || reg != nil) && cfg.Engine.Diagnostics != engine.DiagnosticsAlways {
		logger.Info("diagnostics are on demand; spans and metrics cover traced requests only")
	}

	e, err := engine.New(s, opts...)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, server.New(e, logger, server.WithOptions(cfg.Server.Options)))
	if reg != nil {
		metrics.RegisterCacheStats(reg, e.CacheStats)
		mux.Handle(cfg.Telemetry.MetricsPath, metrics.Handler(reg))
	}
	return &app{engine: e, handler: mux, shutdown: shutdown}, nil
}

func (a *app) Close(ctx context.Context) error {
	a.engine.Close()
	return a.shutdown(ctx)
}

func runServe(ctx context.Context, o *globalOptions, cfg config.File) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, o, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("graphql server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("path", cfg.Server.Path))

	for {
		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			reloadSchema(o, a.engine, logger)
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

func reloadSchema(o *globalOptions, e *engine.Engine, logger *zap.Logger) {
	s, err := o.loadSchema()
	if err == nil {
		err = e.ReloadSchema(s)
	}
	if err != nil {
		logger.Error("schema reload failed", zap.Error(err))
	}
}
