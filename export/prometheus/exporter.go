// Package prometheus bridges the engine's internal counters into a
// prometheus.Collector so they appear on a standard /metrics endpoint.
//
// The engine's own counters stay lock-free atomics on the hot path; this
// collector reads a snapshot only when scraped.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	tokengate "github.com/tokengate/tokengate"
)

// Collector exposes engine counters as Prometheus counter metrics.
type Collector struct {
	engine *tokengate.Engine
	descs  map[tokengate.MetricID]*prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for the engine. Register it with a
// prometheus.Registerer.
func NewCollector(engine *tokengate.Engine) *Collector {
	descs := make(map[tokengate.MetricID]*prometheus.Desc)
	for _, id := range tokengate.MetricIDs() {
		name := tokengate.MetricName(id)
		if name == "" {
			continue
		}
		descs[id] = prometheus.NewDesc(name, "Engine counter "+name, nil, nil)
	}

	return &Collector{
		engine: engine,
		descs:  descs,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.engine.MetricsSnapshot()
	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snapshot.Counters[id]))
	}
}
