package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordMessage("text", "replied")
	m.RecordMessage("text", "replied")
	m.RecordMessage("voice", "dropped")
	m.RecordCompletion("ok", 250*time.Millisecond)
	m.RecordBroadcastRecipient("blocked")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.routerMessages.WithLabelValues("text", "replied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routerMessages.WithLabelValues("voice", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastRecipients.WithLabelValues("blocked")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMessage("text", "replied")
		m.RecordCompletion("ok", time.Second)
		m.RecordBroadcastRecipient("sent")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordCompletion("safety_blocked", time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "ananya_llm_requests_total")
	assert.Contains(t, body, "ananya_llm_latency_seconds")
	assert.Contains(t, body, `outcome="safety_blocked"`)
}
