package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/reglet-dev/reglet-lambda/config"
	"github.com/reglet-dev/reglet-lambda/domain/policy"
	"github.com/reglet-dev/reglet-lambda/host"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	"github.com/reglet-dev/reglet-lambda/infrastructure/metrics"
	"github.com/reglet-dev/reglet-lambda/internal/logging"
)

// app is the wired runtime shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	executor *host.Executor
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
}

// newApp builds the policy, the outbound stack and the executor for the
// configured handler.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	m := metrics.New()

	pol, invalid := policy.New(cfg.AllowedHosts, policy.WithDenialHandler(&policy.RecordingDenialHandler{
		Next:     policy.NewSlogDenialHandler(logger),
		Recorder: m,
	}))
	for _, entry := range invalid {
		logger.Warn("ignoring malformed allow-list entry", "entry", entry)
	}
	if len(pol.Entries()) == 0 {
		logger.Warn("allow-list is empty, every outbound request will be denied")
	}
	if pol.AllowsAll() {
		logger.Warn("allow-list permits every destination")
	}

	transportOpts := []hostfuncs.TransportOption{
		hostfuncs.WithTransportTimeout(cfg.HTTP.RequestTimeout),
		hostfuncs.WithMaxBodySize(cfg.HTTP.MaxBodySize),
		hostfuncs.WithMaxRedirects(cfg.HTTP.MaxRedirects),
		hostfuncs.WithTransportLogger(logger),
		hostfuncs.WithRedirectPolicy(pol),
	}
	bundles := []hostfuncs.RegistryOption{}
	if cfg.HTTP.BlockPrivateNetworks {
		filter := hostfuncs.NewAddressFilter(hostfuncs.WithAllowedCIDRs(cfg.HTTP.AllowedCIDRs...))
		transportOpts = append(transportOpts, hostfuncs.WithAddressFilter(filter))
		bundles = append(bundles, hostfuncs.WithBundle(hostfuncs.NetfilterBundle(filter)))
	}

	bridge := hostfuncs.NewBridge(pol, hostfuncs.NewHTTPTransport(transportOpts...),
		hostfuncs.WithBridgeTimeout(cfg.HTTP.RequestTimeout),
		hostfuncs.WithBridgeRecorder(m),
		hostfuncs.WithBridgeLogger(logger),
	)

	registry, err := hostfuncs.NewRegistry(append([]hostfuncs.RegistryOption{
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(logger),
			m.Middleware(),
		),
		hostfuncs.WithBundle(hostfuncs.BridgeBundle(bridge)),
	}, bundles...)...)
	if err != nil {
		return nil, fmt.Errorf("build host function registry: %w", err)
	}

	handler, err := host.ParseHandler(cfg.TaskRoot, cfg.Handler)
	if err != nil {
		return nil, err
	}
	wasm, err := handler.Load()
	if err != nil {
		return nil, err
	}

	opts := []host.Option{
		host.WithLogger(logger),
		host.WithRecorder(m),
		host.WithHostFunctions(registry),
		host.WithEntryPoint(handler.Export),
		host.WithExecutionTimeout(cfg.Execution.Timeout),
		host.WithMaxOutputSize(cfg.Execution.MaxOutputSize),
		host.WithMaxOpenResponses(cfg.HTTP.MaxConcurrentRequests),
		host.WithMaxConcurrentInvocations(cfg.Execution.MaxConcurrentInvocations),
		host.WithEnv(passEnv(cfg.Execution.PassEnv)),
		host.WithBacktrace(cfg.Logging.BacktraceEnabled()),
	}
	for _, mnt := range cfg.Execution.Mounts {
		opts = append(opts, host.WithMount(mnt.Host, mnt.Guest))
	}

	executor, err := host.NewExecutor(ctx, wasm, bridge, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("handler loaded", "path", handler.Path, "export", handler.Export,
		"allowed_hosts", pol.Entries(), "timeout", cfg.Execution.Timeout)

	return &app{cfg: cfg, logger: logger, metrics: m, executor: executor}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.executor.Close(ctx); err != nil {
		a.logger.Warn("closing runtime", "error", err)
	}
}

// passEnv copies the named host variables that are set.
func passEnv(names []string) map[string]string {
	env := make(map[string]string, len(names))
	for _, name := range names {
		if val, ok := os.LookupEnv(name); ok {
			env[name] = val
		}
	}
	return env
}
