package promaccum

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Valuer is anything that can report its current value as a float64.
// Every accumulator in package accum satisfies it.
type Valuer interface {
	Float64() float64
}

type export struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	v         Valuer
}

// Collector exports existing accumulators as constant metrics, reading
// each of them once per scrape.
//
// It is an unchecked collector: Describe sends nothing, so accumulators
// can be added after the Collector has been registered.
type Collector struct {
	mtx     sync.RWMutex
	exports map[string]*export
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector with nothing exported.
func NewCollector() *Collector {
	return &Collector{
		exports: make(map[string]*export),
	}
}

// CounterFrom exports v as a counter named name. v must never decrease,
// e.g. an Int64Adder that only receives positive deltas.
func (c *Collector) CounterFrom(name, help string, v Valuer) error {
	return c.add(name, help, prometheus.CounterValue, v)
}

// GaugeFrom exports v as a gauge named name.
func (c *Collector) GaugeFrom(name, help string, v Valuer) error {
	return c.add(name, help, prometheus.GaugeValue, v)
}

func (c *Collector) add(name, help string, valueType prometheus.ValueType, v Valuer) error {
	if v == nil {
		return errors.Errorf("nil value for metric %q", name)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.exports[name]; ok {
		return errors.Errorf("metric %q already exported", name)
	}
	c.exports[name] = &export{
		desc:      prometheus.NewDesc(name, help, nil, nil),
		valueType: valueType,
		v:         v,
	}
	return nil
}

// Remove stops exporting name. It reports whether name was exported.
func (c *Collector) Remove(name string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.exports[name]; !ok {
		return false
	}
	delete(c.exports, name)
	return true
}

// Names returns the exported metric names in sorted order.
func (c *Collector) Names() []string {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	names := make([]string, 0, len(c.exports))
	for name := range c.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe sends no descriptors, which makes the Collector unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {
}

// Collect sends one constant metric per exported accumulator.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	for _, e := range c.exports {
		m, err := prometheus.NewConstMetric(e.desc, e.valueType, e.v.Float64())
		if err != nil {
			ch <- prometheus.NewInvalidMetric(e.desc, err)
			continue
		}
		ch <- m
	}
}
