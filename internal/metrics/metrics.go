package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roleplay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roleplay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// External calls: llm, stt, tts, embedding.
	ExternalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roleplay",
			Subsystem: "external",
			Name:      "calls_total",
			Help:      "Total calls to external AI services",
		},
		[]string{"api_type", "provider", "status"},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roleplay",
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "External AI call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"api_type", "provider"},
	)

	ExternalTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roleplay",
			Subsystem: "external",
			Name:      "tokens_total",
			Help:      "Tokens reported by external AI services",
		},
		[]string{"api_type", "provider"},
	)

	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roleplay",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by outcome",
		},
		[]string{"status"},
	)

	RAGHitsTotal = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "roleplay",
			Subsystem: "rag",
			Name:      "hits",
			Help:      "Snippets returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		},
	)

	APILogDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roleplay",
			Subsystem: "apilog",
			Name:      "drops_total",
			Help:      "API log records that could not be written or published",
		},
	)
)

func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

func RecordExternalCall(apiType, provider, status string, durationSec float64, tokens int) {
	ExternalCallsTotal.WithLabelValues(apiType, provider, status).Inc()
	ExternalCallDuration.WithLabelValues(apiType, provider).Observe(durationSec)
	if tokens > 0 {
		ExternalTokensTotal.WithLabelValues(apiType, provider).Add(float64(tokens))
	}
}

func RecordChatTurn(status string) {
	ChatTurnsTotal.WithLabelValues(status).Inc()
}

func RecordRAGHits(n int) {
	RAGHitsTotal.Observe(float64(n))
}

func RecordAPILogDrop() {
	APILogDropsTotal.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
