// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and correlation-id aware logging helpers.
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
	MessagesIngested   *prometheus.CounterVec // by platform
	MessagesShed       prometheus.Counter
	CompletionsOK      prometheus.Counter
	CompletionsFailed  prometheus.Counter
	Redeems            prometheus.Counter
	SpeechFailures     prometheus.Counter
	TokensGranted      prometheus.Counter
	ConsumerIterations prometheus.Counter

	// Histograms (seconds)
	CompletionDuration prometheus.Observer

	// Gauges
	QueueDepthGauge prometheus.Gauge
	RedeemedGauge   prometheus.Gauge // 1=redeemed,0=idle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{Name: "sally_messages_ingested_total", Help: "Chat messages accepted into the queue"}, []string{"platform"})
		MessagesShed = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_messages_shed_total", Help: "Queued messages discarded while idle"})
		CompletionsOK = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_completions_total", Help: "Successful LLM completions"})
		CompletionsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_completion_failures_total", Help: "Failed LLM completions"})
		Redeems = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_redeems_total", Help: "Successful token redeems"})
		SpeechFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_speech_failures_total", Help: "Speech packets that could not be delivered"})
		TokensGranted = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_tokens_granted_total", Help: "Tokens credited to chatters"})
		ConsumerIterations = promauto.NewCounter(prometheus.CounterOpts{Name: "sally_consumer_iterations_total", Help: "Consumer loop iterations"})
		CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "sally_completion_duration_seconds", Help: "LLM completion latency seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "sally_queue_depth", Help: "Current number of queued chat messages"})
		RedeemedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "sally_redeemed", Help: "Bot redeemed=1 idle=0"})
	})
}

// SetRedeemed sets gauge to 1 if redeemed else 0.
func SetRedeemed(redeemed bool) {
	if RedeemedGauge != nil {
		if redeemed {
			RedeemedGauge.Set(1)
		} else {
			RedeemedGauge.Set(0)
		}
	}
}

// SetQueueDepth records current queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// IncIngested counts a message accepted from platform.
func IncIngested(platform string) {
	if MessagesIngested != nil {
		MessagesIngested.WithLabelValues(platform).Inc()
	}
}

// Inc increments c when metrics are initialised.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add adds n to c when metrics are initialised.
func Add(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
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

// WithCorrelation returns a new context embedding the correlation id.
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
