package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/clicks", http.MethodPost, "201", 0.01)
	m.RecordClick("recorded")
	m.RecordClick("duplicate")
	m.RecordClick("duplicate")
	m.RecordSettlement("referral_bonus", "applied")
	m.SetPotTotal(125.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.clicks.WithLabelValues("duplicate")))
	assert.Equal(t, 125.5, testutil.ToFloat64(m.potTotal))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `referral_clicks_total{result="recorded"} 1`)
	assert.Contains(t, w.Body.String(), "settlements_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("/", http.MethodGet, "200", 0)
	m.RecordSettlement("payment", "applied")
	m.RecordClick("recorded")
	m.RecordPaymentStatus("succeeded", "webhook")
	m.RecordPollAttempt("processing")
	m.RecordWebhookEvent("payment_intent.succeeded", "processed")
	m.SetPotTotal(1)
	m.RecordJob("payment_status", "completed")
	m.SetQueueDepth("payment_status", 1, 2, 3)
}

func TestQueueDepth(t *testing.T) {
	m := New()
	m.SetQueueDepth("payment_status", 4, 2, 1)
	m.SetQueueDepth("payment_status", 0, 3, 1)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("payment_status", "waiting")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("payment_status", "delayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("payment_status", "failed")))
}
