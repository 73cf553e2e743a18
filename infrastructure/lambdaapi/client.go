// Package lambdaapi is a client for the Lambda Runtime API, the HTTP
// protocol a custom runtime uses to receive events and report results.
package lambdaapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// Version is the Runtime API version path segment.
const Version = "2018-06-01"

// Runtime API headers.
const (
	HeaderRequestID     = "Lambda-Runtime-Aws-Request-Id"
	HeaderDeadlineMs    = "Lambda-Runtime-Deadline-Ms"
	HeaderFunctionARN   = "Lambda-Runtime-Invoked-Function-Arn"
	HeaderTraceID       = "Lambda-Runtime-Trace-Id"
	HeaderClientContext = "Lambda-Runtime-Client-Context"
	HeaderErrorType     = "Lambda-Runtime-Function-Error-Type"
)

// APIError is a non-success answer from the Runtime API.
type APIError struct {
	Op     string
	Body   string
	Status int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("runtime api %s: status %d", e.Op, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client implements ports.RuntimeAPI.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the API listening at addr (host:port, the value
// of AWS_LAMBDA_RUNTIME_API). A scheme prefix in addr is kept.
func New(addr string, opts ...Option) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		http:   resty.New().SetBaseURL(strings.TrimRight(base, "/") + "/" + Version),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Next is a long poll; the context is the only deadline.
	c.http.SetTimeout(0).SetRetryCount(0)
	return c
}

// Next blocks until an invocation is available.
func (c *Client) Next(ctx context.Context) (*entities.Invocation, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/runtime/invocation/next")
	if err != nil {
		return nil, fmt.Errorf("runtime api next: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Op: "next", Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	h := resp.Header()
	inv := &entities.Invocation{
		RequestID:     h.Get(HeaderRequestID),
		FunctionARN:   h.Get(HeaderFunctionARN),
		TraceID:       h.Get(HeaderTraceID),
		ClientContext: h.Get(HeaderClientContext),
		Payload:       resp.Body(),
	}
	if inv.RequestID == "" {
		return nil, &APIError{Op: "next", Status: resp.StatusCode(), Body: "missing " + HeaderRequestID}
	}
	if raw := h.Get(HeaderDeadlineMs); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.logger.WarnContext(ctx, "ignoring malformed deadline", "request_id", inv.RequestID, "value", raw)
		} else {
			inv.Deadline = time.UnixMilli(ms)
		}
	}
	return inv, nil
}

// RespondSuccess posts the invocation response.
func (c *Client) RespondSuccess(ctx context.Context, requestID string, body []byte) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", requestID).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(body).
		Post("/runtime/invocation/{id}/response")
	return check("response", resp, err)
}

// RespondError posts an invocation error.
func (c *Client) RespondError(ctx context.Context, requestID string, report entities.FunctionError) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", requestID).
		SetHeader(HeaderErrorType, report.ErrorType).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post("/runtime/invocation/{id}/error")
	return check("error", resp, err)
}

// InitError reports a failed initialization. The runtime should exit afterwards.
func (c *Client) InitError(ctx context.Context, report entities.FunctionError) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderErrorType, report.ErrorType).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post("/runtime/init/error")
	return check("init error", resp, err)
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("runtime api %s: %w", op, err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return &APIError{Op: op, Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

var _ ports.RuntimeAPI = (*Client)(nil)
