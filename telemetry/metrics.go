// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	FramesReceived     prometheus.Counter
	FramesDropped      prometheus.Counter
	NotificationsSeen  prometheus.Counter
	RepliesSent        prometheus.Counter
	RepliesSuppressed  prometheus.Counter
	AutopostsSent      prometheus.Counter
	SendFailures       prometheus.Counter
	TokenRefreshes     prometheus.Counter
	TokenRefreshErrors prometheus.Counter

	// Gauges
	SessionConnectedGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FramesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_frames_received_total", Help: "EventSub frames received on the websocket"})
		FramesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_frames_dropped_total", Help: "Malformed or unrecognized frames dropped"})
		NotificationsSeen = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_notifications_total", Help: "Chat notifications dispatched to the handler"})
		RepliesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_replies_sent_total", Help: "Reactive replies sent"})
		RepliesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_replies_suppressed_total", Help: "Replies suppressed as duplicates of the previous response"})
		AutopostsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_autoposts_total", Help: "Idle autoposts sent"})
		SendFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_send_failures_total", Help: "Outbound chat sends that failed or were dropped"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_token_refreshes_total", Help: "Successful OAuth token refreshes"})
		TokenRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "streambot_token_refresh_errors_total", Help: "Failed OAuth token refresh attempts"})
		SessionConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streambot_session_connected", Help: "EventSub session subscribed=1, otherwise 0"})
	})
}

// Count increments c if metrics are initialized.
func Count(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetSessionConnected flips the session gauge.
func SetSessionConnected(connected bool) {
	if SessionConnectedGauge != nil {
		if connected {
			SessionConnectedGauge.Set(1)
		} else {
			SessionConnectedGauge.Set(0)
		}
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
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
