package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.SessionOpened()
		m.SessionClosed()
		m.Packet("BAR")
		m.PacketRejected("malformed")
		m.HandshakeFailed()
		m.RowCompleted()
		m.Predicted(time.Now())
		m.PredictionFailed()
		m.Exported(10)
		m.ExportFailed()
		m.PublishFailed()
		m.BreakerState(1)
	})
}

func TestMetrics_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Packet("BAR")
	m.Packet("BAR")
	m.Packet("HELLO")
	m.RowCompleted()
	m.Exported(42)
	m.BreakerState(1)
	m.BreakerState(2)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("BAR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("HELLO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsTotal))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.ExportRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisCircuitBreakerTrips))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RedisCircuitBreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestHealthStatus_Report(t *testing.T) {
	h := NewHealthStatus()

	rep, code := h.Report()
	assert.Equal(t, "unhealthy", rep.Status)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.SetLinkListening(true)
	h.SetLastPacketTime(time.Now())
	rep, code = h.Report()
	assert.Equal(t, "healthy", rep.Status)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, rep.LastPacketTime)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = false
	h.mu.Unlock()
	rep, code = h.Report()
	assert.Equal(t, "degraded", rep.Status)
	assert.Equal(t, http.StatusOK, code)
}
