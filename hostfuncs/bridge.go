package hostfuncs

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// DefaultRequestTimeout bounds one outbound exchange.
const DefaultRequestTimeout = 30 * time.Second

// BridgeOption configures a Bridge.
type BridgeOption func(*bridgeConfig)

type bridgeConfig struct {
	recorder ports.Recorder
	logger   *slog.Logger
	timeout  time.Duration
}

func defaultBridgeConfig() bridgeConfig {
	return bridgeConfig{
		recorder: ports.NopRecorder{},
		logger:   slog.Default(),
		timeout:  DefaultRequestTimeout,
	}
}

// WithBridgeTimeout sets the per-exchange timeout. The invocation deadline
// still applies when it is sooner.
func WithBridgeTimeout(d time.Duration) BridgeOption {
	return func(c *bridgeConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBridgeRecorder sets the telemetry recorder.
func WithBridgeRecorder(r ports.Recorder) BridgeOption {
	return func(c *bridgeConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(c *bridgeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Bridge turns guest request descriptions into policy-checked network
// exchanges. It is stateless apart from configuration; per-instance state
// lives in the Session passed to each call.
type Bridge struct {
	policy    ports.Policy
	transport ports.HTTPTransport
	validate  *validator.Validate
	config    bridgeConfig
}

// NewBridge creates a Bridge.
func NewBridge(policy ports.Policy, transport ports.HTTPTransport, opts ...BridgeOption) *Bridge {
	cfg := defaultBridgeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bridge{
		policy:    policy,
		transport: transport,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		config:    cfg,
	}
}

// Send performs one exchange and registers the response in s.
//
// The policy is consulted before anything touches the network; a refused
// destination returns *errors.PolicyDeniedError and the transport is never
// called. The open-response limit is also enforced before dispatch.
// Network failures come back as *errors.TransportError.
func (b *Bridge) Send(ctx context.Context, s *Session, req entities.OutboundRequest) (*entities.InboundResponse, error) {
	s.countRequest()

	req.Normalize()
	if err := b.validateRequest(req); err != nil {
		return nil, err
	}

	if b.policy == nil || !b.policy.IsAllowed(req.URL) {
		s.recordDenial(req.URL)
		return nil, &errors.PolicyDeniedError{URL: req.URL}
	}

	slot, err := s.Reserve()
	if err != nil {
		return nil, err
	}
	defer slot.Release()

	ctx, cancel := context.WithTimeout(ctx, b.config.timeout)
	defer cancel()

	start := time.Now()
	resp, err := b.transport.Do(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		b.config.recorder.OutboundRequest(req.Method, 0, elapsed)
		var denied *errors.PolicyDeniedError
		if stdErrors.As(err, &denied) {
			s.recordDenial(denied.URL)
			b.config.logger.DebugContext(ctx, "redirect refused by policy",
				"method", req.Method, "url", req.URL, "location", denied.URL)
			return nil, denied
		}
		var te *errors.TransportError
		if !stdErrors.As(err, &te) {
			err = &errors.TransportError{Code: errors.CodeRequestFailed, Method: req.Method, URL: req.URL, Err: err}
		}
		b.config.logger.DebugContext(ctx, "outbound request failed",
			"method", req.Method, "url", req.URL, "duration", elapsed, "error", err)
		return nil, err
	}
	if resp == nil {
		b.config.recorder.OutboundRequest(req.Method, 0, elapsed)
		return nil, &errors.TransportError{
			Code: errors.CodeRequestFailed, Method: req.Method, URL: req.URL,
			Err: stdErrors.New("transport returned no response"),
		}
	}
	if resp.Latency == 0 {
		resp.Latency = elapsed
	}
	b.config.recorder.OutboundRequest(req.Method, int(resp.Status), elapsed)

	slot.Commit(resp)
	b.config.logger.DebugContext(ctx, "outbound request completed",
		"method", req.Method, "url", req.URL, "status", resp.Status,
		"handle", resp.Handle, "duration", elapsed)
	return resp, nil
}

func (b *Bridge) validateRequest(req entities.OutboundRequest) error {
	if err := b.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &errors.ValidationError{Field: fe.Field(), Err: fe}
		}
		return &errors.ValidationError{Err: err}
	}
	if _, err := req.ParseTarget(); err != nil {
		return &errors.ValidationError{Field: "URL", Err: err}
	}
	return nil
}

// HeaderGet returns the first value of name on the response behind handle.
// found is false when the header is absent.
func (b *Bridge) HeaderGet(s *Session, handle uint32, name string) (value string, found bool, err error) {
	resp, err := s.Get(handle)
	if err != nil {
		return "", false, err
	}
	value, found = resp.HeaderGet(name)
	return value, found, nil
}

// HeaderGetAll returns every header pair in received order.
func (b *Bridge) HeaderGetAll(s *Session, handle uint32) (entities.Headers, error) {
	resp, err := s.Get(handle)
	if err != nil {
		return nil, err
	}
	return resp.HeaderGetAll(), nil
}

// Close releases handle. It is idempotent.
func (b *Bridge) Close(s *Session, handle uint32) error {
	return s.Close(handle)
}
