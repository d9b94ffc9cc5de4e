// Package promaccum exposes striped accumulators as Prometheus metrics.
package promaccum

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/llxisdsh/accum"
)

var errCounterDecrease = errors.New("counter cannot decrease in value")

// Counter is a prometheus.Counter backed by an accum.Float64Adder, for
// counters incremented from many goroutines on hot paths. Unlike
// client_golang's counter, Write is a non-atomic fold of the adder's
// cells, so a scrape may or may not include increments that race with it.
type Counter struct {
	desc *prometheus.Desc
	v    accum.Float64Adder
}

var _ prometheus.Counter = (*Counter)(nil)

// NewCounter creates a Counter from opts. Variable labels are not
// supported; use ConstLabels.
func NewCounter(opts prometheus.CounterOpts) *Counter {
	return &Counter{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name),
			opts.Help,
			nil,
			opts.ConstLabels,
		),
	}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.v.Add(1)
}

// Add adds v to the counter. It panics if v < 0.
func (c *Counter) Add(v float64) {
	if v < 0 {
		panic(errCounterDecrease)
	}
	c.v.Add(v)
}

// Value returns the current count.
func (c *Counter) Value() float64 {
	return c.v.Sum()
}

// Desc returns the descriptor built from the CounterOpts.
func (c *Counter) Desc() *prometheus.Desc {
	return c.desc
}

// Write encodes the current count into out.
func (c *Counter) Write(out *dto.Metric) error {
	m, err := prometheus.NewConstMetric(c.desc, prometheus.CounterValue, c.v.Sum())
	if err != nil {
		return err
	}
	return m.Write(out)
}

// Describe implements prometheus.Collector.
func (c *Counter) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Counter) Collect(ch chan<- prometheus.Metric) {
	ch <- c
}
