// Package metrics exports execution telemetry to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
)

const namespace = "reglet_lambda"

// Metrics implements ports.Recorder on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	invocations      *prometheus.CounterVec
	invocationTime   *prometheus.HistogramVec
	outbound         *prometheus.CounterVec
	outboundTime     prometheus.Histogram
	denials          prometheus.Counter
	openHandles      prometheus.Gauge
	hostFuncCalls    *prometheus.CounterVec
	hostFuncDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Invocations by outcome.",
			},
			[]string{"outcome"},
		),
		invocationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall-clock time from instantiation to teardown.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		outbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_requests_total",
				Help:      "Outbound HTTP exchanges by method and status class.",
			},
			[]string{"method", "status"},
		),
		outboundTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "outbound_request_duration_seconds",
				Help:      "Duration of outbound HTTP exchanges.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_denials_total",
			Help:      "Destinations refused by the capability policy.",
		}),
		openHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_response_handles",
			Help:      "Response handles currently held by guests.",
		}),
		hostFuncCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_function_calls_total",
				Help:      "JSON host function calls by function and result.",
			},
			[]string{"function", "result"},
		),
		hostFuncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "host_function_duration_seconds",
				Help:      "Duration of JSON host function calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"function"},
		),
	}
	m.registry.MustRegister(
		m.invocations, m.invocationTime, m.outbound, m.outboundTime,
		m.denials, m.openHandles, m.hostFuncCalls, m.hostFuncDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) InvocationFinished(outcome entities.Outcome, duration time.Duration) {
	kind := string(outcome.Kind)
	m.invocations.WithLabelValues(kind).Inc()
	m.invocationTime.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) OutboundRequest(method string, status int, duration time.Duration) {
	m.outbound.WithLabelValues(method, statusClass(status)).Inc()
	m.outboundTime.Observe(duration.Seconds())
}

func (m *Metrics) PolicyDenied() {
	m.denials.Inc()
}

func (m *Metrics) HandlesOpen(delta int) {
	m.openHandles.Add(float64(delta))
}

// Middleware counts and times host function calls.
func (m *Metrics) Middleware() hostfuncs.Middleware {
	return func(next hostfuncs.ByteHandler) hostfuncs.ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			name := "unknown"
			if hc, ok := ctx.(hostfuncs.HostContext); ok {
				name = hc.FunctionName()
			}
			start := time.Now()
			resp, err := next(ctx, payload)
			m.hostFuncDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

			result := "ok"
			if err != nil {
				result = "error"
			}
			m.hostFuncCalls.WithLabelValues(name, result).Inc()
			return resp, err
		}
	}
}

// statusClass buckets a status as "2xx", "4xx" and so on. Zero means the
// exchange failed before a response.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

var _ ports.Recorder = (*Metrics)(nil)
