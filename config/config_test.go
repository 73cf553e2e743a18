package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("_HANDLER", "handler")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "handler", cfg.Handler)
	assert.Equal(t, DefaultTaskRoot, cfg.TaskRoot)
	assert.Empty(t, cfg.AllowedHosts)
	assert.Equal(t, DefaultTimeout, cfg.Execution.Timeout)
	assert.Equal(t, DefaultMaxConcurrentInvocations, cfg.Execution.MaxConcurrentInvocations)
	assert.Equal(t, DefaultRequestTimeout, cfg.HTTP.RequestTimeout)
	assert.Equal(t, int64(DefaultMaxBodySize), cfg.HTTP.MaxBodySize)
	assert.Equal(t, DefaultMaxConcurrentRequests, cfg.HTTP.MaxConcurrentRequests)
	assert.True(t, cfg.HTTP.BlockPrivateNetworks)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
}

func TestLoad_FabricEnvironment(t *testing.T) {
	t.Setenv("_HANDLER", "handler.run")
	t.Setenv("LAMBDA_TASK_ROOT", "/opt/fn")
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	t.Setenv("ALLOWED_HOSTS", "https://postman-echo.com, *.example.com")
	t.Setenv("RUST_LOG", "debug")
	t.Setenv("RUST_BACKTRACE", "full")
	t.Setenv("REGLET_EXECUTION_TIMEOUT", "3s")
	t.Setenv("REGLET_HTTP_MAX_REDIRECTS", "0")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "handler.run", cfg.Handler)
	assert.Equal(t, "/opt/fn", cfg.TaskRoot)
	assert.Equal(t, "127.0.0.1:9001", cfg.RuntimeAPI)
	assert.Equal(t, []string{"https://postman-echo.com", "*.example.com"}, cfg.AllowedHosts)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.BacktraceEnabled())
	assert.Equal(t, 3*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, 0, cfg.HTTP.MaxRedirects)
}

func TestLoad_PrefixedNameWins(t *testing.T) {
	t.Setenv("_HANDLER", "from-fabric")
	t.Setenv("REGLET_HANDLER", "from-reglet")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "from-reglet", cfg.Handler)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reglet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
handler: echo
allowed_hosts:
  - https://postman-echo.com
execution:
  timeout: 2s
  mounts:
    - host: /tmp
      guest: /data
http:
  block_private_networks: false
logging:
  format: json
`), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "echo", cfg.Handler)
	assert.Equal(t, []string{"https://postman-echo.com"}, cfg.AllowedHosts)
	assert.Equal(t, 2*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, []MountConfig{{Host: "/tmp", Guest: "/data"}}, cfg.Execution.Mounts)
	assert.False(t, cfg.HTTP.BlockPrivateNetworks)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reglet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("handler: from-file\n"), 0o600))
	t.Setenv("_HANDLER", "from-env")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Handler)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{name: "missing handler", field: "Handler"},
		{name: "zero timeout", env: map[string]string{"_HANDLER": "h", "REGLET_EXECUTION_TIMEOUT": "0s"}, field: "Execution.Timeout"},
		{name: "bad format", env: map[string]string{"_HANDLER": "h", "REGLET_LOGGING_FORMAT": "xml"}, field: "Logging.Format"},
		{name: "no invocation slots", env: map[string]string{"_HANDLER": "h", "REGLET_EXECUTION_MAX_CONCURRENT_INVOCATIONS": "0"}, field: "Execution.MaxConcurrentInvocations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(NewViper(), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfig)

			var cerr *errors.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestConfig_YAML(t *testing.T) {
	t.Setenv("_HANDLER", "handler")
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "timeout: 10s")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *cfg, back)
}

func TestSchema(t *testing.T) {
	out, err := Schema()
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `"allowed_hosts"`)
	assert.Contains(t, s, `"request_timeout"`)
	assert.Contains(t, s, `"handler"`)
}
