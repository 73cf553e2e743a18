package wazero

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ExperimentalHTTPModule is the import module of the raw HTTP ABI.
const ExperimentalHTTPModule = "wasi_experimental_http"

// HTTPErrorCode is the i32 status every raw HTTP function returns.
type HTTPErrorCode uint32

const (
	CodeOK HTTPErrorCode = iota
	CodeInvalidHandle
	CodeMemoryNotFound
	CodeMemoryAccessError
	CodeBufferTooSmall
	CodeHeaderNotFound
	CodeUTF8Error
	CodeDestinationNotAllowed
	CodeInvalidMethod
	CodeInvalidEncoding
	CodeInvalidURL
	CodeRequestError
	CodeRuntimeError
	CodeTooManySessions
)

var httpCodeNames = [...]string{
	"ok", "invalid_handle", "memory_not_found", "memory_access_error",
	"buffer_too_small", "header_not_found", "utf8_error",
	"destination_not_allowed", "invalid_method", "invalid_encoding",
	"invalid_url", "request_error", "runtime_error", "too_many_sessions",
}

func (c HTTPErrorCode) String() string {
	if int(c) < len(httpCodeNames) {
		return httpCodeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint32(c))
}

// httpCodeFor maps a bridge error onto its ABI code.
func httpCodeFor(err error) HTTPErrorCode {
	var validation *errors.ValidationError
	switch {
	case err == nil:
		return CodeOK
	case stdErrors.Is(err, errors.ErrPolicyDenied):
		return CodeDestinationNotAllowed
	case stdErrors.As(err, &validation):
		if validation.Field == "Method" {
			return CodeInvalidMethod
		}
		return CodeInvalidURL
	case stdErrors.Is(err, errors.ErrTooManySessions):
		return CodeTooManySessions
	case stdErrors.Is(err, errors.ErrInvalidHandle):
		return CodeInvalidHandle
	case stdErrors.Is(err, errors.ErrTransport):
		return CodeRequestError
	default:
		return CodeRuntimeError
	}
}

type experimentalHTTP struct {
	bridge *hostfuncs.Bridge
	logger *slog.Logger
}

// RegisterExperimentalHTTP exports the wasi_experimental_http functions,
// all backed by bridge.
func RegisterExperimentalHTTP(ctx context.Context, runtime wazero.Runtime, bridge *hostfuncs.Bridge, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &experimentalHTTP{bridge: bridge, logger: cfg.Logger}

	i32 := api.ValueTypeI32
	builder := runtime.NewHostModuleBuilder(ExperimentalHTTPModule)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.req),
			[]api.ValueType{i32, i32, i32, i32, i32, i32, i32, i32, i32, i32}, []api.ValueType{i32}).
		WithParameterNames("url_ptr", "url_len", "method_ptr", "method_len",
			"headers_ptr", "headers_len", "body_ptr", "body_len", "status_ptr", "handle_ptr").
		Export("req")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.headerGet),
			[]api.ValueType{i32, i32, i32, i32, i32, i32}, []api.ValueType{i32}).
		WithParameterNames("handle", "name_ptr", "name_len", "value_ptr", "value_len", "written_ptr").
		Export("header_get")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.headersGetAll),
			[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		WithParameterNames("handle", "buf_ptr", "buf_len", "written_ptr").
		Export("headers_get_all")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.bodyRead),
			[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		WithParameterNames("handle", "buf_ptr", "buf_len", "read_ptr").
		Export("body_read")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.close), []api.ValueType{i32}, []api.ValueType{i32}).
		WithParameterNames("handle").
		Export("close")

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate %s host module: %w", ExperimentalHTTPModule, err)
	}
	return nil
}

func u32(v uint64) uint32 {
	return api.DecodeU32(v)
}

func (h *experimentalHTTP) fail(ctx context.Context, mod api.Module, fn string, code HTTPErrorCode, err error) uint64 {
	args := []any{"function", fn, "code", code.String(), "request_id", GetRequestID(ctx, mod)}
	if err != nil {
		args = append(args, "error", err)
	}
	h.logger.DebugContext(ctx, "wasi_experimental_http call failed", args...)
	return uint64(code)
}

func (h *experimentalHTTP) req(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = h.doReq(ctx, mod, stack)
}

func (h *experimentalHTTP) doReq(ctx context.Context, mod api.Module, stack []uint64) uint64 {
	const fn = "req"
	mem := mod.Memory()
	if mem == nil {
		return h.fail(ctx, mod, fn, CodeMemoryNotFound, nil)
	}
	session, ok := hostfuncs.SessionFromContext(ctx)
	if !ok {
		return h.fail(ctx, mod, fn, CodeRuntimeError, stdErrors.New("no session bound to this call"))
	}

	url, inBounds, valid := readUTF8(mem, u32(stack[0]), u32(stack[1]))
	if !inBounds {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	if !valid {
		return h.fail(ctx, mod, fn, CodeUTF8Error, nil)
	}
	method, inBounds, valid := readUTF8(mem, u32(stack[2]), u32(stack[3]))
	if !inBounds {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	if !valid {
		return h.fail(ctx, mod, fn, CodeUTF8Error, nil)
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method != "" && !entities.IsSupportedMethod(method) {
		return h.fail(ctx, mod, fn, CodeInvalidMethod, nil)
	}
	rawHeaders, inBounds, valid := readUTF8(mem, u32(stack[4]), u32(stack[5]))
	if !inBounds {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	if !valid {
		return h.fail(ctx, mod, fn, CodeUTF8Error, nil)
	}
	headers, err := entities.ParseHeaders(rawHeaders)
	if err != nil {
		return h.fail(ctx, mod, fn, CodeInvalidEncoding, err)
	}
	body, ok := readBytes(mem, u32(stack[6]), u32(stack[7]))
	if !ok {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}

	resp, err := h.bridge.Send(ctx, session, entities.OutboundRequest{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return h.fail(ctx, mod, fn, httpCodeFor(err), err)
	}

	if !mem.WriteUint16Le(u32(stack[8]), resp.Status) || !mem.WriteUint32Le(u32(stack[9]), resp.Handle) {
		_ = session.Close(resp.Handle)
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	return uint64(CodeOK)
}

func (h *experimentalHTTP) headerGet(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = h.doHeaderGet(ctx, mod, stack)
}

func (h *experimentalHTTP) doHeaderGet(ctx context.Context, mod api.Module, stack []uint64) uint64 {
	const fn = "header_get"
	mem := mod.Memory()
	if mem == nil {
		return h.fail(ctx, mod, fn, CodeMemoryNotFound, nil)
	}
	session, ok := hostfuncs.SessionFromContext(ctx)
	if !ok {
		return h.fail(ctx, mod, fn, CodeRuntimeError, nil)
	}

	name, inBounds, valid := readUTF8(mem, u32(stack[1]), u32(stack[2]))
	if !inBounds {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	if !valid {
		return h.fail(ctx, mod, fn, CodeUTF8Error, nil)
	}

	value, found, err := h.bridge.HeaderGet(session, u32(stack[0]), name)
	if err != nil {
		return h.fail(ctx, mod, fn, httpCodeFor(err), err)
	}
	if !found {
		return uint64(CodeHeaderNotFound)
	}
	return h.writeOut(ctx, mod, fn, mem, []byte(value), u32(stack[3]), u32(stack[4]), u32(stack[5]))
}

func (h *experimentalHTTP) headersGetAll(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = h.doHeadersGetAll(ctx, mod, stack)
}

func (h *experimentalHTTP) doHeadersGetAll(ctx context.Context, mod api.Module, stack []uint64) uint64 {
	const fn = "headers_get_all"
	mem := mod.Memory()
	if mem == nil {
		return h.fail(ctx, mod, fn, CodeMemoryNotFound, nil)
	}
	session, ok := hostfuncs.SessionFromContext(ctx)
	if !ok {
		return h.fail(ctx, mod, fn, CodeRuntimeError, nil)
	}

	headers, err := h.bridge.HeaderGetAll(session, u32(stack[0]))
	if err != nil {
		return h.fail(ctx, mod, fn, httpCodeFor(err), err)
	}
	return h.writeOut(ctx, mod, fn, mem, []byte(headers.String()), u32(stack[1]), u32(stack[2]), u32(stack[3]))
}

// writeOut copies data into a guest buffer and stores its length at
// writtenPtr. A buffer that is too small receives nothing, but the required
// length is still stored.
func (h *experimentalHTTP) writeOut(ctx context.Context, mod api.Module, fn string, mem api.Memory, data []byte, bufPtr, bufLen, writtenPtr uint32) uint64 {
	n := uint32(len(data)) //nolint:gosec // G115: header data is far below 4GiB
	if n > bufLen {
		_ = mem.WriteUint32Le(writtenPtr, n)
		return h.fail(ctx, mod, fn, CodeBufferTooSmall, nil)
	}
	if !mem.Write(bufPtr, data) || !mem.WriteUint32Le(writtenPtr, n) {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	return uint64(CodeOK)
}

func (h *experimentalHTTP) bodyRead(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = h.doBodyRead(ctx, mod, stack)
}

func (h *experimentalHTTP) doBodyRead(ctx context.Context, mod api.Module, stack []uint64) uint64 {
	const fn = "body_read"
	mem := mod.Memory()
	if mem == nil {
		return h.fail(ctx, mod, fn, CodeMemoryNotFound, nil)
	}
	session, ok := hostfuncs.SessionFromContext(ctx)
	if !ok {
		return h.fail(ctx, mod, fn, CodeRuntimeError, nil)
	}

	bufPtr, bufLen, readPtr := u32(stack[1]), u32(stack[2]), u32(stack[3])
	if _, ok := mem.Read(bufPtr, bufLen); !ok {
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	handle := u32(stack[0])
	chunk, err := session.PeekBody(handle, int(bufLen))
	if err != nil {
		return h.fail(ctx, mod, fn, httpCodeFor(err), err)
	}
	// The read offset moves only once the guest actually holds the bytes.
	if !mem.Write(bufPtr, chunk) || !mem.WriteUint32Le(readPtr, uint32(len(chunk))) { //nolint:gosec // G115: chunk is at most bufLen
		return h.fail(ctx, mod, fn, CodeMemoryAccessError, nil)
	}
	if err := session.AdvanceBody(handle, len(chunk)); err != nil {
		return h.fail(ctx, mod, fn, httpCodeFor(err), err)
	}
	return uint64(CodeOK)
}

func (h *experimentalHTTP) close(ctx context.Context, mod api.Module, stack []uint64) {
	const fn = "close"
	session, ok := hostfuncs.SessionFromContext(ctx)
	if !ok {
		stack[0] = h.fail(ctx, mod, fn, CodeRuntimeError, nil)
		return
	}
	if err := h.bridge.Close(session, u32(stack[0])); err != nil {
		stack[0] = h.fail(ctx, mod, fn, httpCodeFor(err), err)
		return
	}
	stack[0] = uint64(CodeOK)
}
