package main

import (
	"context"
	stdErrors "errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/reglet-dev/reglet-lambda/infrastructure/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve invocations over local HTTP",
	Long: `Starts an HTTP server that runs the handler for every POST /invoke (or the
Lambda Invoke API path), with /healthz and Prometheus /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "address to listen on (default :9000)")
	serveCmd.Flags().Bool("metrics", true, "expose /metrics")
	_ = v.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("server.metrics", serveCmd.Flags().Lookup("metrics"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	opts := server.Options{Logger: logger}
	if cfg.Server.Metrics {
		opts.Metrics = a.metrics.Handler()
	}
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.NewHandler(a.executor, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving invocations", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
