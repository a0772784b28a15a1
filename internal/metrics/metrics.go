// Package metrics holds the Prometheus collectors of the certificate service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "decertify"

// Issuance outcomes
const (
	OutcomeIssued   = "issued"
	OutcomeFailed   = "failed"
	OutcomePartial  = "partial"
	OutcomeRejected = "rejected"
)

// Metrics encapsulates Prometheus instrumentation
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	issuance        *prometheus.CounterVec
	issuanceStep    *prometheus.HistogramVec
}

// New registers the collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_transitions_total",
		Help:      "Certificate request status transitions by target status",
	}, []string{"to"})

	issuance := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issuance_total",
		Help:      "Issuance orchestrations by outcome",
	}, []string{"outcome"})

	issuanceStep := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "issuance_step_seconds",
		Help:      "Duration of each issuance step",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"step"})

	registry.MustRegister(
		requestTotal, requestDuration, transitions, issuance, issuanceStep,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		transitions:     transitions,
		issuance:        issuance,
		issuanceStep:    issuanceStep,
	}
}

// Handler exposes the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records one served request. path is the route template.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTransition counts a status change
func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// RecordIssuance counts a finished orchestration
func (m *Metrics) RecordIssuance(outcome string) {
	if m == nil {
		return
	}
	m.issuance.WithLabelValues(outcome).Inc()
}

// ObserveStep records how long an issuance step took
func (m *Metrics) ObserveStep(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.issuanceStep.WithLabelValues(step).Observe(duration.Seconds())
}
