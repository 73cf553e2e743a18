package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvoker echoes the payload and fails when it says so.
type fakeInvoker struct {
	last *entities.Invocation
	err  error
}

func (f *fakeInvoker) Invoke(_ context.Context, inv *entities.Invocation) (*entities.InvocationResult, error) {
	f.last = inv
	if f.err != nil {
		return nil, f.err
	}
	outcome := entities.Success()
	if string(inv.Payload) == "deny" {
		outcome = entities.PolicyDenied("https://evil.example.com/post")
	}
	return &entities.InvocationResult{RequestID: inv.RequestID, Outcome: outcome, Stdout: inv.Payload}, nil
}

func TestInvoke_Success(t *testing.T) {
	inv := &fakeInvoker{}
	h := NewHandler(inv, Options{})

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"a":1}`))
	req.Header.Set(HeaderRequestID, "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"a":1}`, rec.Body.String())
	assert.Equal(t, "success", rec.Header().Get(HeaderOutcome))
	assert.Equal(t, "req-7", rec.Header().Get(HeaderRequestID))
	assert.Empty(t, rec.Header().Get(HeaderFunctionError))
}

func TestInvoke_FunctionError(t *testing.T) {
	h := NewHandler(&fakeInvoker{}, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/2015-03-31/functions/echo/invocations", strings.NewReader("deny")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Runtime.PolicyDenied", rec.Header().Get(HeaderFunctionError))
	assert.Equal(t, "policy_denied", rec.Header().Get(HeaderOutcome))

	var report entities.FunctionError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Runtime.PolicyDenied", report.ErrorType)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID), "request id generated")
}

func TestInvoke_Timeout(t *testing.T) {
	inv := &fakeInvoker{}
	h := NewHandler(inv, Options{})

	req := httptest.NewRequest(http.MethodPost, "/invoke", nil)
	req.Header.Set(HeaderTimeoutMs, "1500")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, inv.last.Deadline.IsZero())

	req = httptest.NewRequest(http.MethodPost, "/invoke", nil)
	req.Header.Set(HeaderTimeoutMs, "soon")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoke_PayloadTooLarge(t *testing.T) {
	h := NewHandler(&fakeInvoker{}, Options{MaxPayloadSize: 4})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader("12345")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestInvoke_Unavailable(t *testing.T) {
	h := NewHandler(&fakeInvoker{err: errors.New("context canceled")}, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("reglet_lambda_up 1"))
	})
	h := NewHandler(&fakeInvoker{}, Options{Metrics: metrics})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "reglet_lambda_up 1", rec.Body.String())

	rec = httptest.NewRecorder()
	NewHandler(&fakeInvoker{}, Options{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
