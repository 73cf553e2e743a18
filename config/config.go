// Package config loads the host configuration from the environment the
// fabric provides, an optional YAML file and command line flags.
package config

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every tunable that has no fabric-defined name,
// e.g. REGLET_HTTP_REQUEST_TIMEOUT.
const EnvPrefix = "REGLET"

// Config is the complete host configuration.
type Config struct {
	// Handler is <module>[.<export>], relative to TaskRoot.
	Handler string `mapstructure:"handler" yaml:"handler" json:"handler" validate:"required" jsonschema:"required,description=Module and optional export: handler or handler.run"`

	TaskRoot string `mapstructure:"task_root" yaml:"task_root" json:"task_root" validate:"required" jsonschema:"default=/var/task"`

	// RuntimeAPI is host:port of the Lambda Runtime API.
	RuntimeAPI string `mapstructure:"runtime_api" yaml:"runtime_api,omitempty" json:"runtime_api,omitempty" validate:"omitempty,hostname_port|url"`

	// AllowedHosts is the outbound allow-list. Empty denies everything.
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts" json:"allowed_hosts"`

	Execution ExecutionConfig `mapstructure:"execution" yaml:"execution" json:"execution"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http" json:"http"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
}

// ExecutionConfig bounds one guest instance.
type ExecutionConfig struct {
	Timeout                  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout" validate:"gt=0" jsonschema:"type=string,default=10s"`
	MaxOutputSize            int           `mapstructure:"max_output_size" yaml:"max_output_size" json:"max_output_size" validate:"gt=0"`
	MaxConcurrentInvocations int           `mapstructure:"max_concurrent_invocations" yaml:"max_concurrent_invocations" json:"max_concurrent_invocations" validate:"gte=1"`

	// PassEnv names host variables copied into the guest environment.
	PassEnv []string `mapstructure:"pass_env" yaml:"pass_env" json:"pass_env"`

	Mounts []MountConfig `mapstructure:"mounts" yaml:"mounts,omitempty" json:"mounts,omitempty" validate:"dive"`
}

// MountConfig exposes a host directory read-only to the guest.
type MountConfig struct {
	Host  string `mapstructure:"host" yaml:"host" json:"host" validate:"required"`
	Guest string `mapstructure:"guest" yaml:"guest" json:"guest" validate:"required,startswith=/"`
}

// HTTPConfig tunes the outbound Bridge.
type HTTPConfig struct {
	RequestTimeout        time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout" validate:"gt=0" jsonschema:"type=string,default=30s"`
	MaxBodySize           int64         `mapstructure:"max_body_size" yaml:"max_body_size" json:"max_body_size" validate:"gt=0"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests" json:"max_concurrent_requests" validate:"gte=1"`
	MaxRedirects          int           `mapstructure:"max_redirects" yaml:"max_redirects" json:"max_redirects" validate:"gte=0"`

	// BlockPrivateNetworks rejects private, loopback and link-local
	// destinations after DNS resolution.
	BlockPrivateNetworks bool     `mapstructure:"block_private_networks" yaml:"block_private_networks" json:"block_private_networks"`
	AllowedCIDRs         []string `mapstructure:"allowed_cidrs" yaml:"allowed_cidrs,omitempty" json:"allowed_cidrs,omitempty" validate:"dive,cidr"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level accepts slog names and RUST_LOG directives.
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=text json" jsonschema:"enum=text,enum=json"`

	// Backtrace mirrors RUST_BACKTRACE: "1" or "full" logs guest stack traces.
	Backtrace string `mapstructure:"backtrace" yaml:"backtrace,omitempty" json:"backtrace,omitempty"`
}

// BacktraceEnabled reports whether trap stack traces should be logged.
func (l LoggingConfig) BacktraceEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(l.Backtrace)) {
	case "1", "full", "true":
		return true
	default:
		return false
	}
}

// ServerConfig configures the local invoke server.
type ServerConfig struct {
	Listen  string `mapstructure:"listen" yaml:"listen" json:"listen" validate:"required"`
	Metrics bool   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// Defaults.
const (
	DefaultTimeout                  = 10 * time.Second
	DefaultRequestTimeout           = 30 * time.Second
	DefaultMaxBodySize              = 10 * 1024 * 1024
	DefaultMaxOutputSize            = 1024 * 1024
	DefaultMaxConcurrentRequests    = 16
	DefaultMaxConcurrentInvocations = 1
	DefaultMaxRedirects             = 10
	DefaultListen                   = ":9000"
	DefaultTaskRoot                 = "/var/task"
)

// fabricEnv maps keys to the variable names the Lambda environment and
// Rust-era guests already use. The REGLET_ form is always accepted too.
var fabricEnv = map[string][]string{
	"handler":           {"_HANDLER"},
	"task_root":         {"LAMBDA_TASK_ROOT"},
	"runtime_api":       {"AWS_LAMBDA_RUNTIME_API"},
	"allowed_hosts":     {"ALLOWED_HOSTS"},
	"logging.level":     {"LOG_LEVEL", "RUST_LOG"},
	"logging.backtrace": {"RUST_BACKTRACE"},
}

// NewViper returns a viper instance with defaults and environment bindings.
// Flags may be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("task_root", DefaultTaskRoot)
	v.SetDefault("allowed_hosts", []string{})
	v.SetDefault("execution.timeout", DefaultTimeout)
	v.SetDefault("execution.max_output_size", DefaultMaxOutputSize)
	v.SetDefault("execution.max_concurrent_invocations", DefaultMaxConcurrentInvocations)
	v.SetDefault("execution.pass_env", []string{"RUST_LOG", "RUST_BACKTRACE", "LOG_LEVEL", "ALLOWED_HOSTS"})
	v.SetDefault("http.request_timeout", DefaultRequestTimeout)
	v.SetDefault("http.max_body_size", DefaultMaxBodySize)
	v.SetDefault("http.max_concurrent_requests", DefaultMaxConcurrentRequests)
	v.SetDefault("http.max_redirects", DefaultMaxRedirects)
	v.SetDefault("http.block_private_networks", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.metrics", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range fabricEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
	return v
}

// Load reads the optional file at path, merges the environment and any
// bound flags, and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &errors.ConfigError{Field: "config", Err: fmt.Errorf("read %s: %w", path, err)}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, &errors.ConfigError{Field: "config", Err: err}
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	hosts := make([]string, 0, len(c.AllowedHosts))
	for _, h := range c.AllowedHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.AllowedHosts = hosts
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports the first invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stdErrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &errors.ConfigError{
			Field: strings.TrimPrefix(fe.Namespace(), "Config."),
			Err:   fmt.Errorf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &errors.ConfigError{Field: "config", Err: err}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
