// Package metrics collects prometheus metrics of a run.
// The metrics are written to a file in the text exposition format, to be
// picked up by the node-exporter textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "forkpr"

const (
	itemsMetricName         = "worklist_items_total"
	bulkMutationsMetricName = "bulk_mutations_total"
	bulkPagesMetricName     = "bulk_pages_total"
	lastRunMetricName       = "last_run_timestamp_seconds"
)

const (
	outcomeLabel = "outcome"
	actionLabel  = "action"
)

// Collector holds the metrics of a run.
// All methods can be called on a nil Collector, they do nothing then.
type Collector struct {
	registry      *prometheus.Registry
	items         *prometheus.CounterVec
	bulkMutations *prometheus.CounterVec
	bulkPages     *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

func New() *Collector {
	c := Collector{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      itemsMetricName,
				Help:      "count of processed worklist items by outcome",
			},
			[]string{outcomeLabel},
		),
		bulkMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      bulkMutationsMetricName,
				Help:      "count of sent bulk mutations",
			},
			[]string{actionLabel},
		),
		bulkPages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      bulkPagesMetricName,
				Help:      "count of processed repository pages of bulk actions",
			},
			[]string{actionLabel},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      lastRunMetricName,
				Help:      "unix time when the last run finished",
			},
		),
	}

	c.registry.MustRegister(c.items, c.bulkMutations, c.bulkPages, c.lastRun)

	return &c
}

// ItemProcessed increases the counter of worklist items with the outcome.
func (c *Collector) ItemProcessed(outcome string) {
	if c == nil {
		return
	}

	c.items.WithLabelValues(outcome).Inc()
}

// BulkPageProcessed records a processed repository page with the number of
// mutations that were sent for it.
func (c *Collector) BulkPageProcessed(action string, mutations int) {
	if c == nil {
		return
	}

	c.bulkPages.WithLabelValues(action).Inc()
	c.bulkMutations.WithLabelValues(action).Add(float64(mutations))
}

// WriteToTextfile sets the last run timestamp to now and writes all metrics to
// path. The file is replaced atomically.
func (c *Collector) WriteToTextfile(path string) error {
	if c == nil {
		return nil
	}

	c.lastRun.SetToCurrentTime()

	return prometheus.WriteToTextfile(path, c.registry)
}
