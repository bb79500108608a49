// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ConnectionAttempts  prometheus.Counter
	SocketCloses        prometheus.Counter
	QuotaDenied         prometheus.Counter
	Transitions         *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec

	// Histograms (seconds)
	AnnounceDuration prometheus.Observer

	// Gauges
	QuotaUsedGauge         prometheus.Gauge
	LiveAccountsGauge      prometheus.Gauge
	ConnectedAccountsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_connection_attempts_total", Help: "Telemetry socket connection attempts admitted by the quota"})
		SocketCloses = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_socket_closes_total", Help: "Telemetry socket closes, any cause"})
		QuotaDenied = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_quota_denied_total", Help: "Connection attempts refused by the daily quota"})
		Transitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_transitions_total", Help: "Live/offline transitions by kind"}, []string{"kind"})
		NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_notifications_sent_total", Help: "Announcements delivered by operation"}, []string{"op"})
		NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_notifications_failed_total", Help: "Announcements that failed to deliver by operation"}, []string{"op"})
		AnnounceDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_announce_duration_seconds", Help: "Announcement round-trip seconds", Buckets: prometheus.DefBuckets})
		QuotaUsedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_quota_requests", Help: "Connection attempts recorded today"})
		LiveAccountsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_live_accounts", Help: "Accounts currently believed live"})
		ConnectedAccountsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_connected_accounts", Help: "Accounts with an open telemetry socket"})
	})
}

// Inc increments c if non-nil.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncVec increments the labelled child of v if non-nil.
func IncVec(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// AddGauge adds delta to g if non-nil.
func AddGauge(g prometheus.Gauge, delta float64) {
	if g != nil {
		g.Add(delta)
	}
}

// SetQuotaUsed records today's request count.
func SetQuotaUsed(n int) {
	if QuotaUsedGauge != nil {
		QuotaUsedGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
