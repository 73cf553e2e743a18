// Package server exposes an Invoker over HTTP for local development, in the
// shape of the Lambda Invoke API.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// Headers understood and returned by the invoke endpoint.
const (
	HeaderRequestID     = "X-Request-Id"
	HeaderTimeoutMs     = "X-Reglet-Timeout-Ms"
	HeaderOutcome       = "X-Reglet-Outcome"
	HeaderFunctionError = "X-Amz-Function-Error"
)

// DefaultMaxPayloadSize matches the synchronous Lambda payload limit.
const DefaultMaxPayloadSize = 6 * 1024 * 1024

// Options configures the handler.
type Options struct {
	Logger  *slog.Logger
	Metrics http.Handler

	// MaxPayloadSize caps the request body; zero means DefaultMaxPayloadSize.
	MaxPayloadSize int64
}

type server struct {
	invoker ports.Invoker
	logger  *slog.Logger
	limit   int64
}

// NewHandler routes:
//
//	POST /invoke                                      run one invocation
//	POST /2015-03-31/functions/{name}/invocations     same, Invoke API path
//	GET  /healthz                                     liveness
//	GET  /metrics                                     when opts.Metrics is set
func NewHandler(invoker ports.Invoker, opts Options) http.Handler {
	s := &server{invoker: invoker, logger: opts.Logger, limit: opts.MaxPayloadSize}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.limit <= 0 {
		s.limit = DefaultMaxPayloadSize
	}

	r := chi.NewRouter()
	r.Post("/invoke", s.invoke)
	r.Post("/2015-03-31/functions/{name}/invocations", s.invoke)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

func (s *server) invoke(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, s.limit+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if int64(len(payload)) > s.limit {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	inv := &entities.Invocation{
		RequestID:   r.Header.Get(HeaderRequestID),
		FunctionARN: chi.URLParam(r, "name"),
		Payload:     payload,
	}
	if inv.RequestID == "" {
		inv.RequestID = uuid.NewString()
	}
	if raw := r.Header.Get(HeaderTimeoutMs); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			http.Error(w, "invalid "+HeaderTimeoutMs, http.StatusBadRequest)
			return
		}
		inv.Deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}

	result, err := s.invoker.Invoke(r.Context(), inv)
	if err != nil {
		s.logger.WarnContext(r.Context(), "invoke: no instance available", "request_id", inv.RequestID, "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set(HeaderRequestID, inv.RequestID)
	w.Header().Set(HeaderOutcome, string(result.Outcome.Kind))
	if result.Outcome.IsSuccess() {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(result.Stdout)
		return
	}

	report := entities.FunctionErrorFor(result.Outcome)
	w.Header().Set(HeaderFunctionError, report.ErrorType)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.ErrorContext(r.Context(), "invoke response encode failed", "error", err)
	}
}
