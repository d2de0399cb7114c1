package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports finalized ResultSets as Prometheus metrics on its own
// registry, so several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	samples  *prometheus.CounterVec
	duration *prometheus.GaugeVec
	runs     prometheus.Counter
}

// NewCollector creates a Collector with an empty registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mixnet",
				Subsystem: "sim",
				Name:      "series_value",
				Help:      "Aggregate of one series: mean for observations, total for counts.",
			},
			[]string{"run", "metric", "entity"},
		),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mixnet",
				Subsystem: "sim",
				Name:      "samples_total",
				Help:      "Number of samples recorded per metric across all observed runs.",
			},
			[]string{"metric"},
		),
		duration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mixnet",
				Subsystem: "sim",
				Name:      "run_duration_seconds",
				Help:      "Virtual time covered by a run.",
			},
			[]string{"run"},
		),
		runs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mixnet",
				Subsystem: "sim",
				Name:      "runs_total",
				Help:      "Number of finalized runs observed.",
			},
		),
	}
	c.registry.MustRegister(c.values, c.samples, c.duration, c.runs)
	return c
}

// Observe publishes every series of rs.
func (c *Collector) Observe(rs *ResultSet) {
	for i := range rs.Series {
		s := &rs.Series[i]
		c.values.WithLabelValues(rs.RunID, string(s.Metric), s.Entity.String()).Set(s.Aggregate())
		c.samples.WithLabelValues(string(s.Metric)).Add(float64(len(s.Samples)))
	}
	c.duration.WithLabelValues(rs.RunID).Set(float64(rs.Duration()) / 1e6)
	c.runs.Inc()
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
