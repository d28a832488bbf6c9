package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "docchat"

	// labelHandler partitions HTTP metrics by route pattern rather than the
	// raw URL path, which carries session ids.
	labelHandler = "handler"
)

// EmbedderStatus reports the embedding provider's state for the degraded gauge.
type EmbedderStatus interface {
	Degraded() bool
	ModelName() string
}

// Metrics holds every Prometheus collector owned by the server. It also
// implements chat.Observer so turn lifecycles are counted wherever they are
// driven from.
type Metrics struct {
	reg prometheus.Registerer

	// chatRequestsTotal counts finished turns by outcome: "done", "partial",
	// "error" or "abandoned".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall time of each turn.
	chatDurationSeconds *prometheus.HistogramVec

	// chatActiveStreams is the number of turns currently streaming.
	chatActiveStreams prometheus.Gauge

	// uploadsTotal counts document uploads by outcome.
	uploadsTotal *prometheus.CounterVec

	// uploadChunks records the chunk count of successful uploads.
	uploadChunks prometheus.Histogram

	// uploadDurationSeconds records the extract-to-index time of uploads.
	uploadDurationSeconds prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all collectors against reg. Tests pass a fresh
// prometheus.NewRegistry to stay hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat turns finished, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of chat turns from send to finalisation.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		chatActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Number of chat turns currently streaming.",
		}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total number of document uploads, partitioned by outcome.",
		}, []string{"outcome"}),

		uploadChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks",
			Help:      "Number of chunks produced per successful upload.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		uploadDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time to extract, chunk, embed and index an upload.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 180},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// TurnStarted marks a turn as streaming.
func (m *Metrics) TurnStarted() { m.chatActiveStreams.Inc() }

// TurnFinished records a finalised turn.
func (m *Metrics) TurnFinished(outcome string, elapsed time.Duration) {
	m.chatActiveStreams.Dec()
	m.chatRequestsTotal.WithLabelValues(outcome).Inc()
	m.chatDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveUpload records one upload attempt. chunks is ignored on failure.
func (m *Metrics) ObserveUpload(outcome string, chunks int, elapsed time.Duration) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		return
	}
	m.uploadChunks.Observe(float64(chunks))
	m.uploadDurationSeconds.Observe(elapsed.Seconds())
}

// WatchEmbedder exports docchat_embedder_degraded, which is 1 while the
// fallback embedding model is in use.
func (m *Metrics) WatchEmbedder(status EmbedderStatus) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "embedder",
		Name:      "degraded",
		Help:      "1 when the fallback embedding model is active, 0 otherwise.",
	}, func() float64 {
		if status.Degraded() {
			return 1
		}
		return 0
	})
}

// instrument records request count and latency per route pattern. It must
// wrap the mux so r.Pattern is populated after routing.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}

		start := time.Now()
		next.ServeHTTP(rw, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
