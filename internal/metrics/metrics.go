// Package metrics holds the Prometheus collectors of the datamart server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "datamart"

// Metrics groups the server collectors. A nil *Metrics records nothing.
type Metrics struct {
	profiles         *prometheus.CounterVec
	profileDuration  prometheus.Histogram
	uploads          *prometheus.CounterVec
	connectedWorkers *prometheus.GaugeVec
	discoveries      prometheus.Counter
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		profiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_total",
			Help:      "Profiling requests by result.",
		}, []string{"result"}),
		profileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_duration_seconds",
			Help:      "Time spent profiling a dataset.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload jobs by final status.",
		}, []string{"status"}),
		connectedWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_workers",
			Help:      "Workers currently registered, by kind.",
		}, []string{"kind"}),
		discoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Datasets recorded as discovered.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.profiles, m.profileDuration, m.uploads, m.connectedWorkers, m.discoveries)
	}
	return m
}

// ObserveProfile records one profiling call.
func (m *Metrics) ObserveProfile(took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.profiles.WithLabelValues(result).Inc()
	m.profileDuration.Observe(took.Seconds())
}

// UploadFinished records the final status of an upload job.
func (m *Metrics) UploadFinished(status string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(status).Inc()
}

// WorkerConnected adjusts the connected worker gauge by delta.
func (m *Metrics) WorkerConnected(kind string, delta int) {
	if m == nil {
		return
	}
	m.connectedWorkers.WithLabelValues(kind).Add(float64(delta))
}

// Discovered counts a recorded discovery.
func (m *Metrics) Discovered() {
	if m == nil {
		return
	}
	m.discoveries.Inc()
}
