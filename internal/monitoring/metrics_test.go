package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgrelay/backend/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRelayCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.MessageStored(domain.DirectionOutbound)
	m.MessageStored(domain.DirectionOutbound)
	m.MessageStored(domain.DirectionInbound)
	m.NotificationSent(nil)
	m.NotificationSent(errors.New("smtp down"))
	m.CorrelationFailed()

	body := scrape(t, m)
	assert.Contains(t, body, `msgrelay_messages_stored_total{direction="outbound"} 2`)
	assert.Contains(t, body, `msgrelay_messages_stored_total{direction="inbound"} 1`)
	assert.Contains(t, body, `msgrelay_notifications_total{result="sent"} 1`)
	assert.Contains(t, body, `msgrelay_notifications_total{result="failed"} 1`)
	assert.Contains(t, body, `msgrelay_errors_total{component="mail",type="notification"} 1`)
	assert.Contains(t, body, "msgrelay_correlation_failures_total 1")
	assert.Contains(t, body, "msgrelay_uptime_seconds")
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordHTTPRequest("POST", "/messages", "200", 10*time.Millisecond, 120, 80)
	m.RecordPanic()

	body := scrape(t, m)
	assert.Contains(t, body, `msgrelay_http_requests_total{endpoint="/messages",method="POST",status_code="200"} 1`)
	assert.Contains(t, body, `msgrelay_http_request_duration_seconds_count{endpoint="/messages",method="POST"} 1`)
	assert.Contains(t, body, "msgrelay_panics_total 1")
}

func TestDefaultRegistryIncludesRuntimeCollectors(t *testing.T) {
	// 每个实例使用自己的注册表，重复创建不会冲突
	var m *Metrics
	assert.NotPanics(t, func() {
		NewMetrics(nil)
		m = NewMetrics(nil)
	})
	assert.Contains(t, scrape(t, m), "go_goroutines")
}
