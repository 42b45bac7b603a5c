package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.MessagesSent.WithLabelValues("ok").Inc()
	m.MessagesSent.WithLabelValues("rejected").Inc()
	m.MessagesSent.WithLabelValues("ok").Inc()
	m.CallsPlaced.WithLabelValues("outreach", "ok").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsPlaced.WithLabelValues("outreach", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CallsPlaced.WithLabelValues("provider_follow_up", "ok")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Webhooks.WithLabelValues("call_completed", "duplicate").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `outreach_webhooks_total{kind="call_completed",result="duplicate"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
