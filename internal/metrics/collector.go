// internal/metrics/collector.go
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
	"github.com/tamzrod/renogy-bt/internal/status"
)

const namespace = "renogy"

// Collector exports telemetry and cycle outcomes as Prometheus metrics.
// It is both a session.Observer (cycle outcomes) and a sink.Sink (field values).
type Collector struct {
	registry *prometheus.Registry

	fields   *prometheus.GaugeVec
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	health   *prometheus.GaugeVec
	lastOK   *prometheus.GaugeVec
}

var (
	_ session.Observer = (*Collector)(nil)
	_ sink.Sink        = (*Collector)(nil)
)

// NewCollector registers every metric on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fields: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_value",
			Help:      "Last decoded numeric telemetry value.",
		}, []string{"device", "family", "field"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_cycles_total",
			Help:      "Read cycles by result.",
		}, []string{"device", "family", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_cycle_duration_seconds",
			Help:      "Duration of completed read cycles.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
		}, []string{"device"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_health",
			Help:      "Health code: 0 unknown, 1 ok, 2 error.",
		}, []string{"device"}),
		lastOK: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed read cycle.",
		}, []string{"device"}),
	}

	c.registry.MustRegister(c.fields, c.cycles, c.duration, c.health, c.lastOK)
	return c
}

// Registry is what the /metrics handler gathers from.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Register exposes a device as unknown before its first cycle.
func (c *Collector) Register(name string) {
	c.health.WithLabelValues(name).Set(float64(status.HealthUnknown))
}

func (c *Collector) CycleFinished(o session.Outcome) {
	family := string(o.Family)

	if o.Err != nil {
		c.cycles.WithLabelValues(o.Device, family, "failed").Inc()
		c.health.WithLabelValues(o.Device).Set(float64(status.HealthError))
		return
	}

	c.cycles.WithLabelValues(o.Device, family, "completed").Inc()
	c.health.WithLabelValues(o.Device).Set(float64(status.HealthOK))
	c.duration.WithLabelValues(o.Device).Observe(o.Duration.Seconds())
	c.lastOK.WithLabelValues(o.Device).Set(float64(o.At.Add(o.Duration).Unix()))
}

func (c *Collector) Name() string { return "metrics" }

func (c *Collector) Deliver(_ context.Context, rec session.Record) error {
	family := string(rec.Family)
	for _, k := range sink.Keys(rec) {
		if v, ok := sink.Numeric(rec.Fields[k]); ok {
			c.fields.WithLabelValues(rec.Alias, family, k).Set(v)
		}
	}
	return nil
}

func (c *Collector) Close() error { return nil }
