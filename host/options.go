package host

import (
	"log/slog"
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
)

// Defaults for an Executor.
const (
	DefaultExecutionTimeout  = 10 * time.Second
	DefaultEntryPoint        = "_start"
	DefaultMaxConcurrentRuns = 1
)

// StateObserver is told about every lifecycle transition of an instance.
type StateObserver func(requestID string, from, to entities.State)

// Mount exposes a host directory read-only inside the guest.
type Mount struct {
	HostPath  string
	GuestPath string
}

type executorConfig struct {
	logger          *slog.Logger
	recorder        ports.Recorder
	registry        *hostfuncs.HandlerRegistry
	observer        StateObserver
	env             map[string]string
	entryPoint      string
	mounts          []Mount
	timeout         time.Duration
	maxOutput       int
	maxOpenHandles  int
	maxConcurrent   int64
	backtrace       bool
	maxRequestBytes uint32
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:        slog.Default(),
		recorder:      ports.NopRecorder{},
		entryPoint:    DefaultEntryPoint,
		timeout:       DefaultExecutionTimeout,
		maxOutput:     hostfuncs.DefaultMaxOutputSize,
		maxConcurrent: DefaultMaxConcurrentRuns,
	}
}

// Option configures an Executor.
type Option func(*executorConfig)

// WithHostFunctions replaces the JSON host function registry. By default the
// registry holds the Bridge bundle behind panic recovery and logging.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(c *executorConfig) {
		c.registry = registry
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r ports.Recorder) Option {
	return func(c *executorConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithExecutionTimeout sets the wall-clock budget of one invocation.
func WithExecutionTimeout(d time.Duration) Option {
	return func(c *executorConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEntryPoint sets the export called to run the guest.
func WithEntryPoint(name string) Option {
	return func(c *executorConfig) {
		if name != "" {
			c.entryPoint = name
		}
	}
}

// WithEnv adds environment variables visible to every instance.
func WithEnv(env map[string]string) Option {
	return func(c *executorConfig) {
		if c.env == nil {
			c.env = make(map[string]string, len(env))
		}
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// WithMount exposes hostPath read-only at guestPath.
func WithMount(hostPath, guestPath string) Option {
	return func(c *executorConfig) {
		c.mounts = append(c.mounts, Mount{HostPath: hostPath, GuestPath: guestPath})
	}
}

// WithMaxOutputSize caps captured stdout and stderr, each.
func WithMaxOutputSize(n int) Option {
	return func(c *executorConfig) {
		if n > 0 {
			c.maxOutput = n
		}
	}
}

// WithMaxOpenResponses caps the response handles one instance may hold.
func WithMaxOpenResponses(n int) Option {
	return func(c *executorConfig) {
		c.maxOpenHandles = n
	}
}

// WithMaxConcurrentInvocations bounds how many instances run at once.
func WithMaxConcurrentInvocations(n int) Option {
	return func(c *executorConfig) {
		if n > 0 {
			c.maxConcurrent = int64(n)
		}
	}
}

// WithMaxRequestSize caps a JSON host function request read from guest memory.
func WithMaxRequestSize(n uint32) Option {
	return func(c *executorConfig) {
		c.maxRequestBytes = n
	}
}

// WithStateObserver registers a lifecycle observer.
func WithStateObserver(o StateObserver) Option {
	return func(c *executorConfig) {
		c.observer = o
	}
}

// WithBacktrace logs the guest stack trace of every trap.
func WithBacktrace(enabled bool) Option {
	return func(c *executorConfig) {
		c.backtrace = enabled
	}
}
