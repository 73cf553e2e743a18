package wazero

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

type contextKey struct {
	name string
}

var (
	requestIDKey    = &contextKey{name: "request_id"}
	abortCaptureKey = &contextKey{name: "abort_capture"}
)

// WithRequestID adds the invocation's request ID to the context so guest
// log lines can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// GetRequestID returns the request ID, falling back to the module instance name.
func GetRequestID(ctx context.Context, mod api.Module) string {
	if id, ok := RequestIDFromContext(ctx); ok && id != "" {
		return id
	}
	if mod == nil {
		return ""
	}
	return mod.Name()
}

// Abort describes a guest-initiated abort through env.abort.
type Abort struct {
	Message string
	File    string
	Line    uint32
	Column  uint32
}

// AbortCapture holds the first env.abort raised by one instance.
type AbortCapture struct {
	mu    sync.Mutex
	abort *Abort
}

func (c *AbortCapture) record(a Abort) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abort == nil {
		c.abort = &a
	}
}

// Get returns the recorded abort, if any.
func (c *AbortCapture) Get() (Abort, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abort == nil {
		return Abort{}, false
	}
	return *c.abort, true
}

// WithAbortCapture attaches c to the context passed to guest calls.
func WithAbortCapture(ctx context.Context, c *AbortCapture) context.Context {
	return context.WithValue(ctx, abortCaptureKey, c)
}

func abortCaptureFrom(ctx context.Context) *AbortCapture {
	c, _ := ctx.Value(abortCaptureKey).(*AbortCapture)
	return c
}
