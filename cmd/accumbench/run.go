package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/accum"
)

// opsBatch is how many operations a worker applies between context
// checks and operation counter updates.
const opsBatch = 1024

type result struct {
	Scenario Scenario
	Value    string
	Stats    *accum.Stats
	Elapsed  time.Duration
}

type runner struct {
	metrics  *metrics
	progress time.Duration
}

func (r *runner) run(ctx context.Context, s Scenario) (*result, error) {
	tgt, err := newTarget(s)
	if err != nil {
		return nil, err
	}

	gauge := scenarioMetricName(s.Name)
	if err := r.metrics.collector.GaugeFrom(gauge, "Live value of the accumulator driven by scenario "+s.Name+".", tgt); err != nil {
		return nil, errors.Wrap(err, "exporting scenario value")
	}
	defer r.metrics.collector.Remove(gauge)

	log.Info().
		Str("scenario", s.Name).
		Str("kind", string(s.Kind)).
		Int("workers", s.Workers).
		Int("ops", s.Ops).
		Int("max_cells", s.MaxCells).
		Msg("starting scenario")

	start := time.Now()
	done := make(chan struct{})
	var monitor sync.WaitGroup
	if r.progress > 0 {
		monitor.Add(1)
		go func() {
			defer monitor.Done()
			r.monitor(done, s, tgt, start)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.Workers; w++ {
		g.Go(func() error {
			return r.work(gctx, tgt, w, s.Ops)
		})
	}
	err = g.Wait()
	close(done)
	monitor.Wait()
	if err != nil {
		return nil, errors.Wrap(err, "workers stopped")
	}
	elapsed := time.Since(start)

	st := tgt.stats()
	value, err := tgt.verify()
	if err != nil {
		return nil, err
	}
	r.metrics.scenarios.Inc()

	log.Info().
		Str("scenario", s.Name).
		Str("value", value).
		Dur("elapsed", elapsed).
		Int("table_len", st.TableLen).
		Int("cells", st.Cells).
		Msg("scenario passed")

	return &result{Scenario: s, Value: value, Stats: st, Elapsed: elapsed}, nil
}

func (r *runner) work(ctx context.Context, tgt target, w, ops int) error {
	for i := 0; i < ops; i++ {
		tgt.update(w, i)
		if (i+1)%opsBatch == 0 {
			r.metrics.ops.Add(opsBatch)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	r.metrics.ops.Add(float64(ops % opsBatch))
	return nil
}

func (r *runner) monitor(done <-chan struct{}, s Scenario, tgt target, start time.Time) {
	ticker := time.NewTicker(r.progress)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			st := tgt.stats()
			log.Info().
				Str("scenario", s.Name).
				Float64("value", tgt.Float64()).
				Dur("elapsed", time.Since(start)).
				Int("table_len", st.TableLen).
				Int("cells", st.Cells).
				Msg("progress")
		}
	}
}

// scenarioMetricName turns a scenario name into a metric name.
func scenarioMetricName(name string) string {
	var sb strings.Builder
	sb.WriteString("accumbench_scenario_")
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	sb.WriteString("_value")
	return sb.String()
}
