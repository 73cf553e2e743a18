package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// DefaultModuleName is the import module of the JSON host functions.
const DefaultModuleName = "reglet_lambda"

// AdapterConfig holds configuration for the JSON adapter.
type AdapterConfig struct {
	Logger *slog.Logger

	// ModuleName is the host module name (default: "reglet_lambda").
	ModuleName string

	// CustomHandlers are exported next to the registry's handlers for
	// functions that do not follow the packed request/response shape.
	CustomHandlers []CustomHandler

	// MaxRequestSize limits a request read from guest memory.
	MaxRequestSize uint32
}

// CustomHandler is a host function with its own signature.
type CustomHandler struct {
	Handler     api.GoModuleFunc
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		if name != "" {
			c.ModuleName = name
		}
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		if size > 0 {
			c.MaxRequestSize = size
		}
	}
}

// WithCustomHandler adds a custom handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

// WithLogger sets the logger for adapter errors and guest log_message calls.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Logger:         slog.Default(),
		ModuleName:     DefaultModuleName,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
	}
}

// RegisterWithRuntime exports every registry handler, plus log_message, from
// a host module named cfg.ModuleName.
//
// Each handler reads its request with the packed i64 ptr+len format,
// invokes the ByteHandler, allocates the response through the guest's
// "allocate" export and returns the packed ptr+len of the response.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range registry.Names() {
		funcName := name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = handleRegistryCall(ctx, mod, stack[0], registry, funcName, cfg)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			WithParameterNames("request").
			Export(funcName)
	}

	builder.NewFunctionBuilder().
		WithGoModuleFunction(logMessage(cfg.Logger), []api.ValueType{api.ValueTypeI64}, nil).
		WithParameterNames("message").
		Export("log_message")

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate %s host module: %w", cfg.ModuleName, err)
	}
	return nil
}

func handleRegistryCall(ctx context.Context, mod api.Module, packed uint64, registry *hostfuncs.HandlerRegistry, name string, cfg AdapterConfig) uint64 {
	ptr, length := unpackPtrLen(packed)
	logger := cfg.Logger.With("function", name, "request_id", GetRequestID(ctx, mod))

	if length > cfg.MaxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		logger.ErrorContext(ctx, "wazero: "+msg)
		return writeResponse(ctx, mod, logger, hostfuncs.NewValidationError(msg).ToJSON())
	}

	mem := mod.Memory()
	if mem == nil {
		logger.ErrorContext(ctx, "wazero: guest exports no memory")
		return 0
	}
	request, ok := readBytes(mem, ptr, length)
	if !ok {
		msg := "failed to read request from guest memory"
		logger.ErrorContext(ctx, "wazero: "+msg)
		return writeResponse(ctx, mod, logger, hostfuncs.NewInternalError(msg).ToJSON())
	}

	response, err := registry.Invoke(ctx, name, request)
	if err != nil {
		logger.ErrorContext(ctx, "wazero: handler invocation failed", "error", err)
		return writeResponse(ctx, mod, logger, hostfuncs.NewInternalError(err.Error()).ToJSON())
	}
	return writeResponse(ctx, mod, logger, response)
}

// writeResponse allocates memory in the guest and writes data there.
// Returns packed ptr+len, or 0 on failure.
func writeResponse(ctx context.Context, mod api.Module, logger *slog.Logger, data []byte) uint64 {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		logger.ErrorContext(ctx, "wazero: guest module missing 'allocate' export")
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		logger.ErrorContext(ctx, "wazero: failed to call guest allocate", "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		logger.ErrorContext(ctx, "wazero: failed to write response to guest memory")
		return 0
	}
	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: bounded by MaxRequestSize handlers
}

// guestLog is the log_message payload.
type guestLog struct {
	Attrs   map[string]any `json:"attrs,omitempty"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
}

func logMessage(logger *slog.Logger) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		ptr, length := unpackPtrLen(stack[0])
		mem := mod.Memory()
		if mem == nil || length > hostfuncs.DefaultMaxRequestSize {
			return
		}
		payload, ok := readBytes(mem, ptr, length)
		if !ok {
			return
		}

		l := logger.With("source", "guest", "request_id", GetRequestID(ctx, mod))
		var msg guestLog
		if err := json.Unmarshal(payload, &msg); err != nil {
			l.InfoContext(ctx, string(payload))
			return
		}
		args := make([]any, 0, len(msg.Attrs)*2)
		for k, v := range msg.Attrs {
			args = append(args, k, v)
		}
		l.Log(ctx, guestLevel(msg.Level), msg.Message, args...)
	}
}

func guestLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
