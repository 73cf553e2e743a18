package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandler(t *testing.T) {
	tests := []struct {
		spec       string
		taskRoot   string
		wantPath   string
		wantExport string
	}{
		{spec: "handler", taskRoot: "/var/task", wantPath: "/var/task/handler.wasm", wantExport: "_start"},
		{spec: "handler.run", taskRoot: "/var/task", wantPath: "/var/task/handler.wasm", wantExport: "run"},
		{spec: "handler.wasm", taskRoot: "/opt/fn", wantPath: "/opt/fn/handler.wasm", wantExport: "_start"},
		{spec: "handler.wat", taskRoot: "/opt/fn", wantPath: "/opt/fn/handler.wat", wantExport: "_start"},
		{spec: "lib/handler.main", taskRoot: "/var/task", wantPath: "/var/task/lib/handler.wasm", wantExport: "main"},
		{spec: "/abs/handler", taskRoot: "/var/task", wantPath: "/abs/handler.wasm", wantExport: "_start"},
		{spec: "handler", taskRoot: "", wantPath: "/var/task/handler.wasm", wantExport: "_start"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			h, err := ParseHandler(tt.taskRoot, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, h.Path)
			assert.Equal(t, tt.wantExport, h.Export)
		})
	}
}

func TestParseHandler_Invalid(t *testing.T) {
	for _, spec := range []string{"", "  ", ".run"} {
		_, err := ParseHandler("/var/task", spec)
		assert.ErrorIs(t, err, errors.ErrConfig, "spec %q", spec)
	}
}

func TestHandler_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handler.wasm"), []byte("\x00asm"), 0o600))

	h, err := ParseHandler(dir, "handler")
	require.NoError(t, err)
	wasm, err := h.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm"), wasm)

	_, err = Handler{Path: filepath.Join(dir, "missing.wasm")}.Load()
	assert.ErrorIs(t, err, errors.ErrConfig)

	_, err = Handler{Path: filepath.Join(dir, "handler.wat")}.Load()
	assert.ErrorIs(t, err, errors.ErrConfig)
}
