package hostfuncs

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// DefaultMaxBodySize bounds a buffered response body (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// DefaultMaxRedirects is the redirect limit.
const DefaultMaxRedirects = 10

// TransportOption configures the default HTTP transport.
type TransportOption func(*transportConfig)

type transportConfig struct {
	policy       ports.Policy
	filter       *AddressFilter
	logger       *slog.Logger
	timeout      time.Duration
	maxBodySize  int64
	maxRedirects int
}

func defaultTransportConfig() transportConfig {
	return transportConfig{
		logger:       slog.Default(),
		timeout:      DefaultRequestTimeout,
		maxBodySize:  DefaultMaxBodySize,
		maxRedirects: DefaultMaxRedirects,
	}
}

// WithTransportTimeout sets the client-level timeout.
func WithTransportTimeout(d time.Duration) TransportOption {
	return func(c *transportConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBodySize bounds buffered response bodies. Longer bodies are cut
// and flagged as truncated.
func WithMaxBodySize(n int64) TransportOption {
	return func(c *transportConfig) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithMaxRedirects sets how many redirects are followed. Zero disables
// following; the 3xx response is returned to the guest as is.
func WithMaxRedirects(n int) TransportOption {
	return func(c *transportConfig) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithAddressFilter pins every connection to an address the filter accepted.
// A nil filter disables the check.
func WithAddressFilter(f *AddressFilter) TransportOption {
	return func(c *transportConfig) { c.filter = f }
}

// WithRedirectPolicy checks every redirect target against p. A refused hop
// ends the exchange with *errors.PolicyDeniedError and the target is never
// contacted. Without it redirects are followed wherever they lead.
func WithRedirectPolicy(p ports.Policy) TransportOption {
	return func(c *transportConfig) { c.policy = p }
}

// WithTransportLogger sets the logger resty reports through.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(c *transportConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// RestyTransport is the default ports.HTTPTransport.
type RestyTransport struct {
	client *resty.Client
	config transportConfig
}

var _ ports.HTTPTransport = (*RestyTransport)(nil)

// NewHTTPTransport creates a transport. Retries are disabled: every Do is
// exactly one exchange.
func NewHTTPTransport(opts ...TransportOption) *RestyTransport {
	cfg := defaultTransportConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.filter != nil {
		// A proxy would receive the connection instead of the checked address.
		base.Proxy = nil
		base.DialContext = cfg.filter.DialContext(dialer)
	}

	client := resty.New().
		SetTransport(base).
		SetTimeout(cfg.timeout).
		SetRetryCount(0).
		SetDoNotParseResponse(true).
		SetAllowGetMethodPayload(true).
		SetLogger(restyLogger{cfg.logger})

	if cfg.maxRedirects == 0 {
		client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	} else {
		client.SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(cfg.maxRedirects),
			allowListRedirectPolicy(cfg.policy),
		)
	}

	return &RestyTransport{client: client, config: cfg}
}

func allowListRedirectPolicy(p ports.Policy) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
		if p == nil {
			return nil
		}
		target := req.URL.String()
		if !p.IsAllowed(target) {
			return &errors.PolicyDeniedError{URL: target, Reason: "redirect target"}
		}
		return nil
	})
}

// Do performs one exchange.
func (t *RestyTransport) Do(ctx context.Context, req entities.OutboundRequest) (*entities.InboundResponse, error) {
	r := t.client.R().SetContext(ctx)
	for _, h := range req.Headers {
		r.Header.Add(h.Name, h.Value)
	}
	if len(req.Body) > 0 {
		r.SetBody(bytes.NewReader(req.Body))
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL)
	latency := time.Since(start)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			_ = resp.RawBody().Close()
		}
		var denied *errors.PolicyDeniedError
		if stdErrors.As(err, &denied) {
			return nil, denied
		}
		return nil, &errors.TransportError{
			Code:   classifyTransportError(ctx, err),
			Method: req.Method,
			URL:    req.URL,
			Err:    err,
		}
	}

	raw := resp.RawBody()
	defer func() { _ = raw.Close() }()

	body, err := io.ReadAll(io.LimitReader(raw, t.config.maxBodySize+1))
	if err != nil {
		code := errors.CodeReadBodyFailed
		if ctx.Err() != nil {
			code = errors.CodeTimeout
		}
		return nil, &errors.TransportError{Code: code, Method: req.Method, URL: req.URL, Err: err}
	}

	truncated := false
	if int64(len(body)) > t.config.maxBodySize {
		body = body[:t.config.maxBodySize]
		truncated = true
	}

	status := resp.StatusCode()
	if status < 0 || status > 0xFFFF {
		return nil, &errors.TransportError{
			Code: errors.CodeRequestFailed, Method: req.Method, URL: req.URL,
			Err: fmt.Errorf("invalid status code %d", status),
		}
	}

	return &entities.InboundResponse{
		Status:        uint16(status), //nolint:gosec // G115: range checked above
		Headers:       entities.HeadersFromHTTP(resp.Header()),
		Body:          body,
		BodyTruncated: truncated,
		Latency:       latency,
	}, nil
}

// classifyTransportError maps a client error onto a transport error code.
func classifyTransportError(ctx context.Context, err error) string {
	var (
		blocked *blockedError
		dnsErr  *net.DNSError
		netErr  net.Error
	)
	switch {
	case stdErrors.As(err, &blocked):
		return errors.CodeSSRFBlocked
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.CodeTimeout
	case stdErrors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return errors.CodeTimeout
		}
		return errors.CodeHostNotFound
	case stdErrors.Is(err, syscall.ECONNREFUSED):
		return errors.CodeConnectionRefused
	case stdErrors.As(err, &netErr) && netErr.Timeout():
		return errors.CodeTimeout
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "redirect"):
		return errors.CodeTooManyRedirects
	case strings.Contains(msg, "no such host"):
		return errors.CodeHostNotFound
	case strings.Contains(msg, "connection refused"):
		return errors.CodeConnectionRefused
	case strings.Contains(msg, "timeout"):
		return errors.CodeTimeout
	}
	return errors.CodeRequestFailed
}

// restyLogger adapts slog to resty's logger interface.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}
