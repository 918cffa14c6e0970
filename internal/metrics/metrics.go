// Package metrics exports the work counters of design-rule checks as
// Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/hdrc/internal/drc"
)

const namespace = "hdrc"

// Collector records check metrics on its own registry.
//
// Thread-safety: Collector is safe for concurrent use; layer tasks report
// into it in parallel.
type Collector struct {
	registry *prometheus.Registry

	searches     *prometheus.CounterVec
	probes       *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec
	cellsChecked *prometheus.CounterVec
	cellsSkipped *prometheus.CounterVec
	aborted      *prometheus.CounterVec
	violations   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

// New registers the check metrics on registry. A nil registry gets a fresh
// one.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	f := promauto.With(registry)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Collector{
		registry:     registry,
		searches:     counter("searches_total", "Hierarchical searches started.", "group"),
		probes:       counter("probes_total", "Coverage probes run.", "group"),
		cacheHits:    counter("interaction_cache_hits_total", "Instance pairs skipped by the interaction cache.", "group"),
		cellsChecked: counter("cells_checked_total", "Cells checked.", "group"),
		cellsSkipped: counter("cells_skipped_total", "Cells skipped because their good date was current.", "group"),
		aborted:      counter("tasks_aborted_total", "Layer tasks stopped by cancellation.", "group"),
		violations:   counter("violations_total", "Violations reported.", "group", "kind", "severity"),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of one layer task.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"group"}),
	}
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveTask implements drc.Observer.
func (c *Collector) ObserveTask(group string, elapsed time.Duration, s drc.Stats, aborted bool) {
	c.searches.WithLabelValues(group).Add(float64(s.Searches))
	c.probes.WithLabelValues(group).Add(float64(s.Probes))
	c.cacheHits.WithLabelValues(group).Add(float64(s.CacheHits))
	c.cellsChecked.WithLabelValues(group).Add(float64(s.CellsChecked))
	c.cellsSkipped.WithLabelValues(group).Add(float64(s.CellsSkipped))
	if aborted {
		c.aborted.WithLabelValues(group).Inc()
	}
	c.taskDuration.WithLabelValues(group).Observe(elapsed.Seconds())
}

// Sink returns a drc.Sink that counts each violation before passing it on
// to next. next may be nil.
func (c *Collector) Sink(next drc.Sink) drc.Sink {
	return &countingSink{c: c, next: next}
}

type countingSink struct {
	c    *Collector
	next drc.Sink
}

func (s *countingSink) Report(v drc.Violation) {
	s.c.violations.WithLabelValues(v.Group, v.Kind.String(), v.Severity.String()).Inc()
	if s.next != nil {
		s.next.Report(v)
	}
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

var _ drc.Observer = (*Collector)(nil)
