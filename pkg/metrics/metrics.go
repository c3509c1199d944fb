// Package metrics counts the outcome of a retrieval run and can dump the counters to a
// Prometheus textfile for node_exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "karidf"

// Metrics receives run counters.
type Metrics interface {
	IncSubjects(kind string)
	IncResources(kind, status string)
	AddBytes(kind string, n int64)
	ObserveRunDuration(kind string, seconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncSubjects(string)                 {}
func (Noop) IncResources(string, string)        {}
func (Noop) AddBytes(string, int64)             {}
func (Noop) ObserveRunDuration(string, float64) {}

// Prom implements Metrics backed by Prometheus collectors on a private registry.
type Prom struct {
	registry    *prometheus.Registry
	subjects    *prometheus.CounterVec
	resources   *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	runDuration *prometheus.GaugeVec
}

// NewProm creates the collectors and registers them on a fresh registry.
func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		subjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "subjects_total",
			Help:      "Subject IDs processed by kind",
		}, []string{"kind"}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resources_total",
			Help:      "Resources attempted by kind and manifest status",
		}, []string{"kind", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes of archive artifacts downloaded by kind",
		}, []string{"kind"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run by kind",
		}, []string{"kind"}),
	}
	p.registry.MustRegister(p.subjects, p.resources, p.bytes, p.runDuration)
	return p
}

func (p *Prom) IncSubjects(kind string) {
	p.subjects.WithLabelValues(kind).Inc()
}

func (p *Prom) IncResources(kind, status string) {
	p.resources.WithLabelValues(kind, status).Inc()
}

func (p *Prom) AddBytes(kind string, n int64) {
	if n > 0 {
		p.bytes.WithLabelValues(kind).Add(float64(n))
	}
}

func (p *Prom) ObserveRunDuration(kind string, seconds float64) {
	p.runDuration.WithLabelValues(kind).Set(seconds)
}

// Gatherer exposes the private registry.
func (p *Prom) Gatherer() prometheus.Gatherer {
	return p.registry
}

// WriteTextfile writes the current values in the text exposition format. The file is
// replaced atomically.
func (p *Prom) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}
