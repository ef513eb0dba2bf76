package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the voice gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Wake word metrics
	WakeDetectionsTotal *prometheus.CounterVec

	// Listening session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionEndsTotal *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	AutoSendsTotal   prometheus.Counter

	// Speech output metrics
	SpeakRequestsTotal *prometheus.CounterVec

	// Live connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
}

// New creates a Metrics instance with all metrics registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicekit"
	}

	registry := prometheus.NewRegistry()

	wakeDetectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_detections_total",
			Help:      "Total wake phrase detections",
		},
		[]string{"outcome"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active listening sessions",
		},
	)

	sessionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total listening sessions started",
		},
	)

	sessionEndsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ends_total",
			Help:      "Total listening sessions ended",
		},
		[]string{"reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Listening session duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	autoSendsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_sends_total",
			Help:      "Total transcripts committed by auto-send",
		},
	)

	speakRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speak_requests_total",
			Help:      "Total speech synthesis requests",
		},
		[]string{"status"},
	)

	connectionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections_active",
			Help:      "Number of active live websocket connections",
		},
	)

	connectionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_connections_total",
			Help:      "Total live websocket connections accepted",
		},
	)

	registry.MustRegister(
		wakeDetectionsTotal,
		sessionsActive,
		sessionsTotal,
		sessionEndsTotal,
		sessionDuration,
		autoSendsTotal,
		speakRequestsTotal,
		connectionsActive,
		connectionsTotal,
	)

	return &Metrics{
		registry:            registry,
		WakeDetectionsTotal: wakeDetectionsTotal,
		SessionsActive:      sessionsActive,
		SessionsTotal:       sessionsTotal,
		SessionEndsTotal:    sessionEndsTotal,
		SessionDuration:     sessionDuration,
		AutoSendsTotal:      autoSendsTotal,
		SpeakRequestsTotal:  speakRequestsTotal,
		ConnectionsActive:   connectionsActive,
		ConnectionsTotal:    connectionsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWakeDetection records a wake detection and whether it started a session
// or was dropped because one was already active.
func (m *Metrics) RecordWakeDetection(handled bool) {
	outcome := "handled"
	if !handled {
		outcome = "dropped"
	}
	m.WakeDetectionsTotal.WithLabelValues(outcome).Inc()
}

// RecordSessionStart records a listening session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// RecordSessionEnd records a listening session ending.
func (m *Metrics) RecordSessionEnd(reason string, duration time.Duration) {
	if reason == "" {
		reason = "other"
	}
	m.SessionsActive.Dec()
	m.SessionEndsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordAutoSend records a transcript committed by the auto-send timer.
func (m *Metrics) RecordAutoSend() {
	m.AutoSendsTotal.Inc()
}

// RecordSpeak records a speech synthesis request outcome.
func (m *Metrics) RecordSpeak(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.SpeakRequestsTotal.WithLabelValues(status).Inc()
}

// RecordConnectionOpen records a live connection being accepted.
func (m *Metrics) RecordConnectionOpen() {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

// RecordConnectionClose records a live connection closing.
func (m *Metrics) RecordConnectionClose() {
	m.ConnectionsActive.Dec()
}
