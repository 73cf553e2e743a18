package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/host"
	"github.com/reglet-dev/reglet-lambda/infrastructure/lambdaapi"
	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Serve invocations from the Lambda Runtime API",
	Long: `Polls AWS_LAMBDA_RUNTIME_API for invocations and runs each in a fresh
instance of the handler module. Startup failures are reported to the
runtime's init error endpoint.`,
	RunE: runBootstrap,
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if cfg.RuntimeAPI == "" {
		return &errors.ConfigError{Field: "runtime_api", Err: fmt.Errorf("AWS_LAMBDA_RUNTIME_API is not set")}
	}

	client := lambdaapi.New(cfg.RuntimeAPI, lambdaapi.WithLogger(logger))
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("init failed", "error", err)
		loop := host.NewRuntimeLoop(client, nil, logger)
		if rerr := loop.ReportInitError(ctx, err); rerr != nil {
			logger.Error("reporting init failure", "error", rerr)
		}
		return err
	}
	defer a.Close(context.Background())

	logger.Info("runtime started", "runtime_api", cfg.RuntimeAPI)
	return host.NewRuntimeLoop(client, a.executor, logger).Run(ctx)
}
