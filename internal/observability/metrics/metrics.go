// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicelink"

// Metrics holds all Prometheus metrics for the voice controller.
type Metrics struct {
	// Session metrics
	ConnectAttempts  prometheus.Counter
	ConnectFailures  *prometheus.CounterVec
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsEnded    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	StateTransitions *prometheus.CounterVec
	Errors           *prometheus.CounterVec

	// Credential metrics
	TokenRequests *prometheus.CounterVec
	TokenLatency  prometheus.Histogram

	// Transport metrics
	TransportEvents *prometheus.CounterVec
	AudioBytesSent  prometheus.Counter
	AudioChunksSent prometheus.Counter
	AudioDropped    prometheus.Counter

	// Transcript metrics
	TranscriptEntries *prometheus.CounterVec

	// Sink metrics
	SinkPublishTotal   *prometheus.CounterVec
	SinkPublishErrors  *prometheus.CounterVec
	SinkPublishLatency *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of connect attempts",
		}),
		ConnectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Total number of failed connect attempts by stage",
		}, []string{"stage"}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions that reached connected",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected voice sessions",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of ended voice sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of connected voice sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of controller state transitions",
		}, []string{"state"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of surfaced controller errors",
		}, []string{"code"}),

		TokenRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Total number of credential requests by result",
		}, []string{"result"}),
		TokenLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_request_latency_seconds",
			Help:      "Credential request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		TransportEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_events_total",
			Help:      "Total number of transport events received by kind",
		}, []string{"kind"}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes forwarded to the transport",
		}),
		AudioChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Total audio chunks forwarded to the transport",
		}),
		AudioDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped while muted",
		}),

		TranscriptEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_entries_total",
			Help:      "Total number of finalized transcript entries",
		}, []string{"speaker", "result"}),

		SinkPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publish_total",
			Help:      "Total number of transcript sink publishes",
		}, []string{"topic"}),
		SinkPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publish_errors_total",
			Help:      "Total number of transcript sink publish errors",
		}, []string{"topic"}),
		SinkPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_publish_latency_seconds",
			Help:      "Transcript sink publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

func (m *Metrics) RecordConnectAttempt() {
	m.ConnectAttempts.Inc()
}

// RecordConnectFailure counts a failed attempt. stage is "capture",
// "credential" or "transport".
func (m *Metrics) RecordConnectFailure(stage string) {
	m.ConnectFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a connected session ending. outcome is
// "disconnected" or "failed".
func (m *Metrics) RecordSessionEnd(outcome string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordStateTransition(state string) {
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordError(code string) {
	m.Errors.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveTokenRequest(err error, latencySeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TokenRequests.WithLabelValues(result).Inc()
	m.TokenLatency.Observe(latencySeconds)
}

func (m *Metrics) RecordTransportEvent(kind string) {
	m.TransportEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
	m.AudioChunksSent.Inc()
}

func (m *Metrics) RecordAudioDropped() {
	m.AudioDropped.Inc()
}

// RecordTranscriptEntry counts a transcript change. result is "interim",
// "final" or "interrupted".
func (m *Metrics) RecordTranscriptEntry(speaker, result string) {
	m.TranscriptEntries.WithLabelValues(speaker, result).Inc()
}

func (m *Metrics) RecordSinkPublish(topic string, err error, latencySeconds float64) {
	m.SinkPublishTotal.WithLabelValues(topic).Inc()
	m.SinkPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.SinkPublishErrors.WithLabelValues(topic).Inc()
	}
}
