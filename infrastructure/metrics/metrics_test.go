package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorder(t *testing.T) {
	m := New()

	m.InvocationFinished(entities.Success(), 10*time.Millisecond)
	m.InvocationFinished(entities.Trap("unreachable"), time.Millisecond)
	m.InvocationFinished(entities.Success(), time.Millisecond)
	m.OutboundRequest("POST", 200, time.Millisecond)
	m.OutboundRequest("POST", 503, time.Millisecond)
	m.OutboundRequest("GET", 0, time.Millisecond)
	m.PolicyDenied()
	m.HandlesOpen(2)
	m.HandlesOpen(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invocations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("trap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outbound.WithLabelValues("POST", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outbound.WithLabelValues("POST", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outbound.WithLabelValues("GET", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.denials))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openHandles))
}

func TestMetrics_Middleware(t *testing.T) {
	m := New()
	fail := errors.New("boom")

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(m.Middleware()),
		hostfuncs.WithByteHandler("ok_func", func(context.Context, []byte) ([]byte, error) {
			return []byte("{}"), nil
		}),
		hostfuncs.WithByteHandler("bad_func", func(context.Context, []byte) ([]byte, error) {
			return nil, fail
		}),
	)
	require.NoError(t, err)

	_, err = registry.Invoke(context.Background(), "ok_func", nil)
	require.NoError(t, err)
	_, err = registry.Invoke(context.Background(), "bad_func", nil)
	require.ErrorIs(t, err, fail)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hostFuncCalls.WithLabelValues("ok_func", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hostFuncCalls.WithLabelValues("bad_func", "error")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PolicyDenied()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reglet_lambda_policy_denials_total 1")
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{0: "error", 99: "error", 200: "2xx", 302: "3xx", 404: "4xx", 599: "5xx", 600: "error"}
	for status, want := range tests {
		assert.Equal(t, want, statusClass(status), "status %d", status)
	}
}
