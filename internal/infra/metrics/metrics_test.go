package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRecord(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.EntitlementCheck("ai_chat", "granted")
	m.EntitlementCheck("ai_chat", "granted")
	m.EntitlementCheck("ai_chat", "upgrade")
	m.FeaturePurchase("medical_billing", "completed")
	m.RateLimit("purchases_checkout", false)
	m.JobRun("expire_purchases", time.Millisecond, errors.New("boom"))
	m.SocketOpened()
	m.SocketOpened()
	m.SocketClosed()

	assert.InDelta(t, 2, testutil.ToFloat64(m.entitlementChecks.WithLabelValues("ai_chat", "granted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.entitlementChecks.WithLabelValues("ai_chat", "upgrade")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.featurePurchases.WithLabelValues("medical_billing", "completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.rateLimit.WithLabelValues("purchases_checkout", "denied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.jobRuns.WithLabelValues("expire_purchases", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.wsConnections), 0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EntitlementCheck("x", "granted")
		m.WebhookEvent("checkout.session.completed", "ok")
		m.NotificationCreated("system")
		m.JobRun("j", time.Second, nil)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.WebhookEvent("charge.refunded", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kaiden_stripe_webhook_events_total{result="ok",type="charge.refunded"} 1`)
}
