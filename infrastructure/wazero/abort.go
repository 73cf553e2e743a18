package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// AssemblyScriptModule is the import module of the AssemblyScript runtime hooks.
const AssemblyScriptModule = "env"

// AbortExitCode is the exit code an instance terminated by env.abort reports.
const AbortExitCode uint32 = 134

// RegisterAssemblyScriptEnv exports env.abort, env.trace and env.seed.
func RegisterAssemblyScriptEnv(ctx context.Context, runtime wazero.Runtime, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.Logger

	i32, f64 := api.ValueTypeI32, api.ValueTypeF64
	builder := runtime.NewHostModuleBuilder(AssemblyScriptModule)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			abort(ctx, mod, logger, stack)
		}), []api.ValueType{i32, i32, i32, i32}, nil).
		WithParameterNames("message", "file", "line", "column").
		Export("abort")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			trace(ctx, mod, logger, stack)
		}), []api.ValueType{i32, i32, f64, f64, f64, f64, f64}, nil).
		WithParameterNames("message", "n", "a0", "a1", "a2", "a3", "a4").
		Export("trace")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeF64(float64(time.Now().UnixNano()))
		}), nil, []api.ValueType{f64}).
		Export("seed")

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate %s host module: %w", AssemblyScriptModule, err)
	}
	return nil
}

// abort records the guest's failure and terminates the instance. It never returns.
func abort(ctx context.Context, mod api.Module, logger *slog.Logger, stack []uint64) {
	a := Abort{
		Line:   api.DecodeU32(stack[2]),
		Column: api.DecodeU32(stack[3]),
	}
	if mem := mod.Memory(); mem != nil {
		if ptr := api.DecodeU32(stack[0]); ptr != 0 {
			a.Message, _ = readAssemblyScriptString(mem, ptr)
		}
		if ptr := api.DecodeU32(stack[1]); ptr != 0 {
			a.File, _ = readAssemblyScriptString(mem, ptr)
		}
	}
	if c := abortCaptureFrom(ctx); c != nil {
		c.record(a)
	}

	logger.DebugContext(ctx, "guest aborted",
		"request_id", GetRequestID(ctx, mod), "message", a.Message,
		"file", a.File, "line", a.Line, "column", a.Column)

	_ = mod.CloseWithExitCode(ctx, AbortExitCode)
	panic(sys.NewExitError(AbortExitCode))
}

func trace(ctx context.Context, mod api.Module, logger *slog.Logger, stack []uint64) {
	var msg string
	if mem := mod.Memory(); mem != nil {
		msg, _ = readAssemblyScriptString(mem, api.DecodeU32(stack[0]))
	}
	n := int(api.DecodeI32(stack[1]))
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	vals := make([]string, 0, n)
	for i := 0; i < n; i++ {
		vals = append(vals, strconv.FormatFloat(api.DecodeF64(stack[2+i]), 'g', -1, 64))
	}
	logger.DebugContext(ctx, "guest trace",
		"request_id", GetRequestID(ctx, mod), "message", msg, "values", strings.Join(vals, ", "))
}

// String renders the abort the way AssemblyScript prints it.
func (a Abort) String() string {
	var b strings.Builder
	if a.Message != "" {
		b.WriteString(a.Message)
	} else {
		b.WriteString("abort")
	}
	if a.File != "" {
		fmt.Fprintf(&b, " in %s(%d:%d)", a.File, a.Line, a.Column)
	}
	return b.String()
}
