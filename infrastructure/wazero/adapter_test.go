package wazero

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/reglet-dev/reglet-lambda/domain/policy"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	"github.com/reglet-dev/reglet-lambda/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

func newRuntime(t *testing.T) wazero.Runtime {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	return rt
}

// runStart instantiates bin and calls its _start with ctx.
func runStart(t *testing.T, ctx context.Context, rt wazero.Runtime, bin []byte) (api.Module, error) {
	t.Helper()
	compiled, err := rt.CompileModule(context.Background(), bin)
	require.NoError(t, err)
	mod, err := rt.InstantiateModule(context.Background(), compiled,
		wazero.NewModuleConfig().WithStartFunctions())
	require.NoError(t, err)
	_, err = mod.ExportedFunction("_start").Call(ctx)
	return mod, err
}

func newBridge(t *testing.T, allow ...string) *hostfuncs.Bridge {
	t.Helper()
	p, _ := policy.New(allow, policy.WithDenialHandler(&policy.NopDenialHandler{}))
	return hostfuncs.NewBridge(p, hostfuncs.NewHTTPTransport())
}

func TestPackPtrLen(t *testing.T) {
	packed := packPtrLen(0x1234, 0x10)
	ptr, length := unpackPtrLen(packed)
	assert.Equal(t, uint32(0x1234), ptr)
	assert.Equal(t, uint32(0x10), length)
}

func TestRegisterWithRuntime_HTTPSend(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("X-Test", "yes")
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		allow     []string
		wantError string
		wantHits  int32
	}{
		{name: "allowed", allow: []string{srv.URL}, wantHits: 1},
		{name: "denied", allow: nil, wantError: "POLICY_DENIED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			rt := newRuntime(t)
			registry, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.BridgeBundle(newBridge(t, tt.allow...))))
			require.NoError(t, err)
			require.NoError(t, RegisterWithRuntime(context.Background(), rt, registry))

			req := []byte(`{"method":"GET","url":"` + srv.URL + `/ping"}`)
			session := hostfuncs.NewSession(0, nil)
			ctx := hostfuncs.WithSession(context.Background(), session)

			mod, err := runStart(t, ctx, rt, testutil.JSONCallGuest(DefaultModuleName, hostfuncs.FuncHTTPSend, req))
			require.NoError(t, err)

			packed, ok := mod.Memory().ReadUint64Le(testutil.JSONResultOffset)
			require.True(t, ok)
			ptr, length := unpackPtrLen(packed)
			require.NotZero(t, length)
			raw, ok := mod.Memory().Read(ptr, length)
			require.True(t, ok)

			var resp hostfuncs.SendResponse
			require.NoError(t, json.Unmarshal(raw, &resp))
			if tt.wantError != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantError, resp.Error.Error)
				assert.Equal(t, 0, session.Open())
			} else {
				require.Nil(t, resp.Error)
				assert.Equal(t, uint16(200), resp.Status)
				assert.Equal(t, "pong", string(resp.Body))
				assert.Equal(t, 1, session.Open())
			}
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestRegisterWithRuntime_RequestTooLarge(t *testing.T) {
	rt := newRuntime(t)
	registry, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.BridgeBundle(newBridge(t))))
	require.NoError(t, err)
	require.NoError(t, RegisterWithRuntime(context.Background(), rt, registry, WithMaxRequestSize(4)))

	ctx := hostfuncs.WithSession(context.Background(), hostfuncs.NewSession(0, nil))
	mod, err := runStart(t, ctx, rt, testutil.JSONCallGuest(DefaultModuleName, hostfuncs.FuncHTTPSend, []byte(`{"url":"x"}`)))
	require.NoError(t, err)

	packed, _ := mod.Memory().ReadUint64Le(testutil.JSONResultOffset)
	ptr, length := unpackPtrLen(packed)
	raw, ok := mod.Memory().Read(ptr, length)
	require.True(t, ok)
	assert.Contains(t, string(raw), "VALIDATION_ERROR")
}

func TestLogMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rt := newRuntime(t)
	registry, err := hostfuncs.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, RegisterWithRuntime(context.Background(), rt, registry, WithLogger(logger)))

	payload := []byte(`{"level":"warn","message":"hello from guest","attrs":{"k":"v"}}`)
	bin := testutil.Module{
		Imports: []testutil.Import{{Module: DefaultModuleName, Name: "log_message",
			Type: testutil.FuncType{Params: []testutil.ValType{testutil.I64}}}},
		Funcs: []testutil.Func{{Export: "_start", Body: testutil.Code(
			testutil.I64Const(int64(512)<<32 | int64(len(payload))), testutil.Call(0),
		)}},
		MemoryPages: 1,
		Data:        []testutil.Data{{Offset: 512, Bytes: payload}},
	}.Encode()

	_, err = runStart(t, WithRequestID(context.Background(), "req-1"), rt, bin)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello from guest"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestGuestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, guestLevel("TRACE"))
	assert.Equal(t, slog.LevelWarn, guestLevel("warning"))
	assert.Equal(t, slog.LevelError, guestLevel("error"))
	assert.Equal(t, slog.LevelInfo, guestLevel("whatever"))
}

func TestAssemblyScriptAbort(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		file     string
		wantText string
	}{
		{"with message", "expected 200, got 404", "assembly/index.ts", "expected 200, got 404 in assembly/index.ts(12:5)"},
		{"unicode message", "état ✓", "", "état ✓"},
		{"null message", "", "", "abort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRuntime(t)
			require.NoError(t, RegisterAssemblyScriptEnv(context.Background(), rt))

			capture := &AbortCapture{}
			ctx := WithAbortCapture(context.Background(), capture)
			_, err := runStart(t, ctx, rt, testutil.AbortGuest(tt.message, tt.file, 12, 5))

			var exitErr *sys.ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, AbortExitCode, exitErr.ExitCode())

			got, ok := capture.Get()
			require.True(t, ok)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.file, got.File)
			assert.Equal(t, tt.wantText, got.String())
		})
	}
}

func TestGetRequestID(t *testing.T) {
	assert.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc"), nil))
	assert.Equal(t, "", GetRequestID(context.Background(), nil))
}
