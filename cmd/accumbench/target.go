package main

import (
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/llxisdsh/accum"
)

// Kind selects the accumulator a scenario drives.
type Kind string

const (
	KindIntAdder   Kind = "int-adder"
	KindFloatAdder Kind = "float-adder"
	KindMax        Kind = "max"
	KindMin        Kind = "min"
)

var kinds = []Kind{KindIntAdder, KindFloatAdder, KindMax, KindMin}

func (k Kind) valid() bool {
	for _, v := range kinds {
		if k == v {
			return true
		}
	}
	return false
}

// target wraps one accumulator under load. Every operation it applies is
// chosen so that the final value is known exactly in advance.
type target interface {
	// update applies the i-th operation of worker w.
	update(w, i int)
	// verify checks the settled value against the expected one, then
	// drains the accumulator and checks that it is back at its identity.
	// It returns the observed value.
	verify() (string, error)
	stats() *accum.Stats
	Float64() float64
}

func newTarget(s Scenario) (target, error) {
	var opts []func(*accum.Config)
	if s.MaxCells > 0 {
		opts = append(opts, accum.WithMaxCells(s.MaxCells))
	}
	total := int64(s.Workers) * int64(s.Ops)

	switch s.Kind {
	case KindIntAdder:
		return &intAdderTarget{a: accum.NewInt64Adder(opts...), want: total}, nil
	case KindFloatAdder:
		return &floatAdderTarget{a: accum.NewFloat64Adder(opts...), want: float64(total) * 0.5}, nil
	case KindMax:
		// Worker w feeds i*workers+w: disjoint sets covering [0, total).
		return &extremumTarget{
			a:       accum.NewInt64Accumulator(func(x, y int64) int64 { return max(x, y) }, math.MinInt64, opts...),
			workers: s.Workers,
			sign:    1,
			want:    total - 1,
		}, nil
	case KindMin:
		return &extremumTarget{
			a:       accum.NewInt64Accumulator(func(x, y int64) int64 { return min(x, y) }, math.MaxInt64, opts...),
			workers: s.Workers,
			sign:    -1,
			want:    -(total - 1),
		}, nil
	}
	return nil, errors.Errorf("unknown kind %q", s.Kind)
}

type intAdderTarget struct {
	a    *accum.Int64Adder
	want int64
}

func (t *intAdderTarget) update(_, _ int) {
	t.a.Increment()
}

func (t *intAdderTarget) verify() (string, error) {
	got := t.a.Sum()
	if got != t.want {
		return "", errors.Errorf("sum is %d, expected %d", got, t.want)
	}
	if drained := t.a.SumThenReset(); drained != got {
		return "", errors.Errorf("SumThenReset returned %d after Sum returned %d", drained, got)
	}
	if after := t.a.Sum(); after != 0 {
		return "", errors.Errorf("sum is %d after SumThenReset", after)
	}
	return strconv.FormatInt(got, 10), nil
}

func (t *intAdderTarget) stats() *accum.Stats { return t.a.Stats() }
func (t *intAdderTarget) Float64() float64    { return t.a.Float64() }

type floatAdderTarget struct {
	a    *accum.Float64Adder
	want float64
}

func (t *floatAdderTarget) update(_, _ int) {
	t.a.Add(0.5)
}

func (t *floatAdderTarget) verify() (string, error) {
	got := t.a.Sum()
	if got != t.want {
		return "", errors.Errorf("sum is %v, expected %v", got, t.want)
	}
	if drained := t.a.SumThenReset(); drained != got {
		return "", errors.Errorf("SumThenReset returned %v after Sum returned %v", drained, got)
	}
	if after := t.a.Sum(); after != 0 || math.Signbit(after) {
		return "", errors.Errorf("sum is %v after SumThenReset", after)
	}
	return strconv.FormatFloat(got, 'f', -1, 64), nil
}

func (t *floatAdderTarget) stats() *accum.Stats { return t.a.Stats() }
func (t *floatAdderTarget) Float64() float64    { return t.a.Float64() }

type extremumTarget struct {
	a       *accum.Int64Accumulator
	workers int
	sign    int64
	want    int64
}

func (t *extremumTarget) update(w, i int) {
	t.a.Accumulate(t.sign * (int64(i)*int64(t.workers) + int64(w)))
}

func (t *extremumTarget) verify() (string, error) {
	got := t.a.Get()
	if got != t.want {
		return "", errors.Errorf("value is %d, expected %d", got, t.want)
	}
	if drained := t.a.GetThenReset(); drained != got {
		return "", errors.Errorf("GetThenReset returned %d after Get returned %d", drained, got)
	}
	if after := t.a.Get(); after != t.a.Identity() {
		return "", errors.Errorf("value is %d after GetThenReset, expected identity %d", after, t.a.Identity())
	}
	return strconv.FormatInt(got, 10), nil
}

func (t *extremumTarget) stats() *accum.Stats { return t.a.Stats() }
func (t *extremumTarget) Float64() float64    { return t.a.Float64() }
