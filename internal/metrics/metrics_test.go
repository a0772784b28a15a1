package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest("GET", "/requests", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/requests", 200, 20*time.Millisecond)
	m.RecordTransition("accepted")
	m.RecordIssuance(OutcomeIssued)
	m.RecordIssuance(OutcomePartial)
	m.ObserveStep("transform", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/requests", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issuance.WithLabelValues(OutcomeIssued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issuance.WithLabelValues(OutcomePartial)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.issuanceStep))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordIssuance(OutcomeFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `decertify_issuance_total{outcome="failed"} 1`))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordTransition("issued")
		m.RecordIssuance(OutcomeIssued)
		m.ObserveStep("load", time.Millisecond)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
