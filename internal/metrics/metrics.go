// Package metrics provides Prometheus metrics for the attendance service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame and registration outcomes.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers the metrics on registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithHistogramBuckets sets the latency buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// Manager owns the metrics and their registry. A nil *Manager records nothing.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	framesProcessed   *prometheus.CounterVec
	frameDuration     prometheus.Histogram
	facesDetected     *prometheus.CounterVec
	registrations     *prometheus.CounterVec
	attendancePresent prometheus.Gauge
	knownFaces        prometheus.Gauge

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "face_attendance",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewGoCollector())
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.framesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "frames_processed_total",
		Help:      "Total number of submitted frames by result",
	}, []string{"result"})

	m.frameDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "frame_processing_seconds",
		Help:      "Time spent decoding, recognizing and matching one frame",
		Buckets:   m.buckets,
	})

	m.facesDetected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "faces_detected_total",
		Help:      "Total number of detected faces by match status",
	}, []string{"status"})

	m.registrations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts by result",
	}, []string{"result"})

	m.attendancePresent = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "attendance_present",
		Help:      "Number of students currently marked present",
	})

	m.knownFaces = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "known_faces",
		Help:      "Number of known face embeddings",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"route", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFrame records one processed frame.
func (m *Manager) RecordFrame(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(result).Inc()
	m.frameDuration.Observe(duration.Seconds())
}

// RecordFace records one detected face with status known or unknown.
func (m *Manager) RecordFace(status string) {
	if m == nil {
		return
	}
	m.facesDetected.WithLabelValues(status).Inc()
}

// RecordRegistration records a registration attempt.
func (m *Manager) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// SetAttendance updates the present gauge.
func (m *Manager) SetAttendance(count int) {
	if m == nil {
		return
	}
	m.attendancePresent.Set(float64(count))
}

// SetKnownFaces updates the known faces gauge.
func (m *Manager) SetKnownFaces(count int) {
	if m == nil {
		return
	}
	m.knownFaces.Set(float64(count))
}

// RecordHTTPRequest records a finished HTTP request.
func (m *Manager) RecordHTTPRequest(route, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
