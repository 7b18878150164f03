package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the indicator link.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Link
	Connections    prometheus.Counter
	ActiveSessions prometheus.Gauge
	PacketsTotal   *prometheus.CounterVec // labels: command
	PacketErrors   *prometheus.CounterVec // labels: reason
	HandshakeFails prometheus.Counter

	// Session
	RowsCompleted     prometheus.Counter
	PredictionsTotal  prometheus.Counter
	PredictionDur     prometheus.Histogram
	PredictionFailure prometheus.Counter

	// Export
	ExportsTotal   prometheus.Counter
	ExportRows     prometheus.Counter
	ExportFailures prometheus.Counter

	// Redis publisher
	PublishFailures          prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// New creates all metrics and registers them on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_connections_total",
			Help: "Total link connections accepted",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indlink_active_sessions",
			Help: "Indicator sessions currently open",
		}),
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indlink_packets_total",
			Help: "Packets received (by command)",
		}, []string{"command"}),
		PacketErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indlink_packet_errors_total",
			Help: "Packets rejected (by reason)",
		}, []string{"reason"}),
		HandshakeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_handshake_failures_total",
			Help: "Connections closed before a session was established",
		}),

		RowsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_rows_completed_total",
			Help: "Rows whose every requested slot has been recorded",
		}),
		PredictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_predictions_total",
			Help: "Predictions sent back to the platform",
		}),
		PredictionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indlink_prediction_duration_seconds",
			Help:    "Bar-to-reply latency in prediction mode",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		PredictionFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_prediction_failures_total",
			Help: "Bars for which no prediction could be produced",
		}),

		ExportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_exports_total",
			Help: "Collected dataset files written",
		}),
		ExportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_export_rows_total",
			Help: "Rows written to collected dataset files",
		}),
		ExportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_export_failures_total",
			Help: "Collected dataset exports that failed",
		}),

		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_publish_failures_total",
			Help: "Predictions not published to Redis",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indlink_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indlink_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.Connections,
		m.ActiveSessions,
		m.PacketsTotal,
		m.PacketErrors,
		m.HandshakeFails,
		m.RowsCompleted,
		m.PredictionsTotal,
		m.PredictionDur,
		m.PredictionFailure,
		m.ExportsTotal,
		m.ExportRows,
		m.ExportFailures,
		m.PublishFailures,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) Packet(command string) {
	if m == nil {
		return
	}
	m.PacketsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) PacketRejected(reason string) {
	if m == nil {
		return
	}
	m.PacketErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandshakeFailed() {
	if m == nil {
		return
	}
	m.HandshakeFails.Inc()
}

func (m *Metrics) RowCompleted() {
	if m == nil {
		return
	}
	m.RowsCompleted.Inc()
}

// Predicted records a prediction and the time it took since the bar arrived.
func (m *Metrics) Predicted(since time.Time) {
	if m == nil {
		return
	}
	m.PredictionsTotal.Inc()
	m.PredictionDur.Observe(time.Since(since).Seconds())
}

func (m *Metrics) PredictionFailed() {
	if m == nil {
		return
	}
	m.PredictionFailure.Inc()
}

func (m *Metrics) Exported(rows int) {
	if m == nil {
		return
	}
	m.ExportsTotal.Inc()
	m.ExportRows.Add(float64(rows))
}

func (m *Metrics) ExportFailed() {
	if m == nil {
		return
	}
	m.ExportFailures.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// BreakerState records a circuit-breaker transition into state (0/1/2).
func (m *Metrics) BreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LinkListening  bool      `json:"link_listening"`
	LastPacketTime time.Time `json:"last_packet_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	JournalEnabled bool      `json:"journal_enabled"`
	JournalOK      bool      `json:"journal_ok"`
	ModelLoaded    bool      `json:"model_loaded"`

	// Liveness probe results
	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLinkListening(v bool) {
	h.mu.Lock()
	h.LinkListening = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPacketTime(t time.Time) {
	h.mu.Lock()
	h.LastPacketTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetModelLoaded(v bool) {
	h.mu.Lock()
	h.ModelLoaded = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the export journal database and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalEnabled = true
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, journalDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if journalDB != nil {
					h.CheckJournal(probeCtx, journalDB)
				}
				cancel()
			}
		}
	}()
}

// HealthReport is the JSON body served on /healthz.
type HealthReport struct {
	Status           string  `json:"status"`
	Uptime           string  `json:"uptime"`
	LinkListening    bool    `json:"link_listening"`
	LastPacketTime   string  `json:"last_packet_time"`
	PacketAge        string  `json:"packet_age"`
	ModelLoaded      bool    `json:"model_loaded"`
	RedisConnected   bool    `json:"redis_connected"`
	RedisLatencyMs   float64 `json:"redis_latency_ms"`
	JournalOK        bool    `json:"journal_ok"`
	JournalLatencyMs float64 `json:"journal_latency_ms"`
	LastCheckAt      string  `json:"last_check_at"`
}

// Report summarizes health and the HTTP status code to serve it with.
// Optional dependencies only degrade health when they are enabled.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.RedisEnabled && !h.RedisConnected) || (h.JournalEnabled && !h.JournalOK) {
		overallStatus = "degraded"
	}
	if !h.LinkListening {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	packetAge := ""
	lastPacket := ""
	if !h.LastPacketTime.IsZero() {
		packetAge = time.Since(h.LastPacketTime).Round(time.Millisecond).String()
		lastPacket = h.LastPacketTime.Format(time.RFC3339)
	}
	lastCheck := ""
	if !h.LastCheckAt.IsZero() {
		lastCheck = h.LastCheckAt.Format(time.RFC3339)
	}

	return HealthReport{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		LinkListening:    h.LinkListening,
		LastPacketTime:   lastPacket,
		PacketAge:        packetAge,
		ModelLoaded:      h.ModelLoaded,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastCheckAt:      lastCheck,
	}, httpCode
}
