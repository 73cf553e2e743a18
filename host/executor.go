package host

import (
	"bytes"
	"context"
	"crypto/rand"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	wz "github.com/reglet-dev/reglet-lambda/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/sync/semaphore"
)

// Environment variables describing the current invocation to the guest.
const (
	EnvRequestID   = "LAMBDA_REQUEST_ID"
	EnvDeadlineMs  = "LAMBDA_DEADLINE_MS"
	EnvFunctionARN = "LAMBDA_FUNCTION_ARN"
	EnvTraceID     = "LAMBDA_TRACE_ID"
	EnvAmznTraceID = "_X_AMZN_TRACE_ID"
)

// Executor runs one compiled module. It is safe for concurrent use; every
// Invoke gets its own instance.
type Executor struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	sem      *semaphore.Weighted
	config   executorConfig
}

// NewExecutor compiles wasm and prepares the host modules it may import.
func NewExecutor(ctx context.Context, wasm []byte, bridge *hostfuncs.Bridge, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.registry == nil {
		reg, err := hostfuncs.NewRegistry(
			hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(), hostfuncs.LoggingMiddleware(cfg.logger)),
			hostfuncs.WithBundle(hostfuncs.BridgeBundle(bridge)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		cfg.registry = reg
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	e := &Executor{runtime: rt, sem: semaphore.NewWeighted(cfg.maxConcurrent), config: cfg}

	if err := e.registerHostModules(ctx, bridge); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, &errors.ConfigError{Field: "handler", Err: fmt.Errorf("compile module: %w", err)}
	}
	if _, ok := compiled.ExportedFunctions()[cfg.entryPoint]; !ok {
		_ = rt.Close(ctx)
		return nil, &errors.ConfigError{Field: "handler", Err: fmt.Errorf("module does not export %q", cfg.entryPoint)}
	}
	e.compiled = compiled
	return e, nil
}

func (e *Executor) registerHostModules(ctx context.Context, bridge *hostfuncs.Bridge) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return fmt.Errorf("instantiate wasi: %w", err)
	}
	adapterOpts := []wz.AdapterOption{wz.WithLogger(e.config.logger)}
	if e.config.maxRequestBytes > 0 {
		adapterOpts = append(adapterOpts, wz.WithMaxRequestSize(e.config.maxRequestBytes))
	}
	if err := wz.RegisterExperimentalHTTP(ctx, e.runtime, bridge, adapterOpts...); err != nil {
		return err
	}
	if err := wz.RegisterWithRuntime(ctx, e.runtime, e.config.registry, adapterOpts...); err != nil {
		return err
	}
	return wz.RegisterAssemblyScriptEnv(ctx, e.runtime, adapterOpts...)
}

// Close releases the runtime and the compiled module.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Invoke runs inv in a fresh instance and reports how it ended. The error is
// non-nil only when no instance could be started because ctx ended first.
func (e *Executor) Invoke(ctx context.Context, inv *entities.Invocation) (*entities.InvocationResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a free instance slot: %w", err)
	}
	defer e.sem.Release(1)

	logger := e.config.logger.With("request_id", inv.RequestID)
	lc := &lifecycle{requestID: inv.RequestID, state: entities.StateIdle, observer: e.config.observer, logger: logger}
	start := time.Now()
	lc.to(entities.StateLoading)

	budget := e.config.timeout
	runCtx, cancel := context.WithTimeout(ctx, budget)
	if !inv.Deadline.IsZero() && time.Until(inv.Deadline) < budget {
		cancel()
		budget = time.Until(inv.Deadline)
		runCtx, cancel = context.WithDeadline(ctx, inv.Deadline)
	}
	defer cancel()

	session := hostfuncs.NewSession(e.config.maxOpenHandles, e.config.recorder)
	capture := &wz.AbortCapture{}
	callCtx := hostfuncs.WithSession(runCtx, session)
	callCtx = wz.WithAbortCapture(callCtx, capture)
	callCtx = wz.WithRequestID(callCtx, inv.RequestID)

	stdout := hostfuncs.NewBoundedBuffer(e.config.maxOutput)
	stderr := hostfuncs.NewBoundedBuffer(e.config.maxOutput)

	runErr := runCtx.Err()
	if runErr == nil {
		mod, err := e.runtime.InstantiateModule(callCtx, e.compiled, e.moduleConfig(inv, stdout, stderr))
		if err != nil {
			runErr = err
		} else {
			lc.to(entities.StateRunning)
			runErr = e.run(callCtx, mod)
			_ = mod.Close(context.Background())
		}
	}
	if n := session.CloseAll(); n > 0 {
		logger.DebugContext(ctx, "closed response handles left open by guest", "count", n)
	}

	outcome, detail := classify(runState{err: runErr, ctx: runCtx, session: session, abort: capture, budget: budget})
	lc.to(entities.StateForOutcome(outcome))

	result := &entities.InvocationResult{
		RequestID:       inv.RequestID,
		Outcome:         outcome,
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
		Requests:        session.Requests(),
	}
	e.config.recorder.InvocationFinished(outcome, result.Duration)
	e.logResult(ctx, logger, result, detail)
	return result, nil
}

// run calls _initialize when the module is a reactor, then the entry point.
func (e *Executor) run(ctx context.Context, mod api.Module) error {
	if init := mod.ExportedFunction("_initialize"); init != nil && e.config.entryPoint != "_initialize" {
		if _, err := init.Call(ctx); err != nil {
			return err
		}
	}
	_, err := mod.ExportedFunction(e.config.entryPoint).Call(ctx)
	return err
}

func (e *Executor) moduleConfig(inv *entities.Invocation, stdout, stderr *hostfuncs.BoundedBuffer) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName("invocation-" + uuid.NewString()).
		WithArgs("handler").
		WithStartFunctions().
		WithStdin(bytes.NewReader(inv.Payload)).
		WithStdout(stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	for _, kv := range e.environment(inv) {
		cfg = cfg.WithEnv(kv[0], kv[1])
	}

	if len(e.config.mounts) > 0 {
		fsCfg := wazero.NewFSConfig()
		for _, m := range e.config.mounts {
			fsCfg = fsCfg.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
		}
		cfg = cfg.WithFSConfig(fsCfg)
	}
	return cfg
}

// environment returns the configured variables followed by the invocation
// metadata, sorted by name within each group.
func (e *Executor) environment(inv *entities.Invocation) [][2]string {
	names := make([]string, 0, len(e.config.env))
	for k := range e.config.env {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([][2]string, 0, len(names)+5)
	for _, k := range names {
		out = append(out, [2]string{k, e.config.env[k]})
	}
	out = append(out, [2]string{EnvRequestID, inv.RequestID})
	if !inv.Deadline.IsZero() {
		out = append(out, [2]string{EnvDeadlineMs, strconv.FormatInt(inv.Deadline.UnixMilli(), 10)})
	}
	if inv.FunctionARN != "" {
		out = append(out, [2]string{EnvFunctionARN, inv.FunctionARN})
	}
	if inv.TraceID != "" {
		out = append(out, [2]string{EnvTraceID, inv.TraceID}, [2]string{EnvAmznTraceID, inv.TraceID})
	}
	return out
}

func (e *Executor) logResult(ctx context.Context, logger *slog.Logger, result *entities.InvocationResult, detail error) {
	if len(result.Stderr) > 0 {
		logger.InfoContext(ctx, "guest stderr", "stderr", string(result.Stderr), "truncated", result.StderrTruncated)
	}

	args := []any{
		"outcome", result.Outcome,
		"duration", result.Duration,
		"requests", result.Requests,
	}
	if detail == nil {
		logger.InfoContext(ctx, "invocation finished", args...)
		return
	}
	d := errors.ToErrorDetail(detail)
	logger.WarnContext(ctx, "invocation failed", append(args, "error", detail, "error_type", d.Type, "error_code", d.Code)...)

	var trap *errors.TrapError
	if e.config.backtrace && stdErrors.As(detail, &trap) && trap.Backtrace != "" {
		logger.WarnContext(ctx, "guest backtrace", "backtrace", trap.Backtrace)
	}
}

// lifecycle enforces the instance state machine and reports transitions.
type lifecycle struct {
	observer  StateObserver
	logger    *slog.Logger
	requestID string
	state     entities.State
}

func (l *lifecycle) to(next entities.State) {
	if !l.state.CanTransition(next) {
		l.logger.Error("illegal instance state transition", "from", l.state, "to", next)
		return
	}
	prev := l.state
	l.state = next
	if l.observer != nil {
		l.observer(l.requestID, prev, next)
	}
}

var _ ports.Invoker = (*Executor)(nil)
