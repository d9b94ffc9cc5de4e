package accum

import (
	"math"
	"strconv"
)

// Int64Adder is a sum of int64 values that many goroutines can update
// concurrently with far less contention than a single atomic.Int64.
//
// Under contention, updates are spread over a set of cells that grows
// with the number of goroutines observed colliding, up to the number of
// CPUs. Prefer it over atomic.Int64 for write-heavy statistics such as
// request counters; prefer atomic.Int64 when the value is read as often
// as it is written or must be read atomically.
//
// Sum, Reset and SumThenReset are not atomic with respect to concurrent
// Add calls:
//   - Sum may or may not include updates that race with it.
//   - Reset and SumThenReset should only be called when no Add is in
//     flight, e.g. between measurement epochs.
//
// The zero Int64Adder is ready to use.
// An Int64Adder must not be copied after first use.
type Int64Adder struct {
	_ noCopy
	s striped
}

// NewInt64Adder creates an Int64Adder. Direct initialization is also supported.
//
// Parameters:
//   - WithMaxCells option to cap the number of cells
func NewInt64Adder(options ...func(*Config)) *Int64Adder {
	a := &Int64Adder{}
	a.s.init(0, options...)
	return a
}

// Add adds delta to the sum.
func (a *Int64Adder) Add(delta int64) {
	a.s.apply(uint64(delta), nil)
}

// Increment is equivalent to Add(1).
func (a *Int64Adder) Increment() {
	a.s.apply(1, nil)
}

// Decrement is equivalent to Add(-1).
func (a *Int64Adder) Decrement() {
	a.s.apply(math.MaxUint64, nil)
}

// Sum returns the current sum. Overflow wraps around like int64 addition.
func (a *Int64Adder) Sum() int64 {
	return int64(a.s.fold(nil))
}

// Reset sets the sum back to zero.
func (a *Int64Adder) Reset() {
	a.s.reset(0)
}

// SumThenReset is equivalent to Sum followed by Reset.
func (a *Int64Adder) SumThenReset() int64 {
	return int64(a.s.foldThenReset(0, nil))
}

// Int64 is equivalent to Sum.
func (a *Int64Adder) Int64() int64 {
	return a.Sum()
}

// Float64 returns Sum converted to float64.
func (a *Int64Adder) Float64() float64 {
	return float64(a.Sum())
}

// Stats returns statistics for the adder's cell table.
func (a *Int64Adder) Stats() *Stats {
	return a.s.stats()
}

// String implement the formatting output interface fmt.Stringer
func (a *Int64Adder) String() string {
	return strconv.FormatInt(a.Sum(), 10)
}

// MarshalJSON JSON serialization
func (a *Int64Adder) MarshalJSON() ([]byte, error) {
	return marshalJSON(a.Sum())
}

// UnmarshalJSON JSON deserialization. Like Reset, it must not race with Add.
func (a *Int64Adder) UnmarshalJSON(data []byte) error {
	var v int64
	if err := unmarshalJSON(data, &v); err != nil {
		return err
	}
	a.s.reset(0)
	a.s.base.Store(uint64(v))
	return nil
}

// Float64Adder is a sum of float64 values that many goroutines can
// update concurrently. See Int64Adder for the contention and
// consistency properties.
//
// Values are kept as their IEEE 754 bit patterns and every update is a
// CAS on those bits. Since floating point addition is not associative,
// the result of Sum depends on how updates were distributed over cells:
// Sum adds the cells up in table order, so a sequence of Add calls from
// a single goroutine yields exactly the left-to-right sum.
//
// The zero Float64Adder is ready to use.
// A Float64Adder must not be copied after first use.
type Float64Adder struct {
	_ noCopy
	s striped
}

// NewFloat64Adder creates a Float64Adder. Direct initialization is also supported.
func NewFloat64Adder(options ...func(*Config)) *Float64Adder {
	a := &Float64Adder{}
	a.s.init(0, options...)
	return a
}

func addFloat64Bits(cur, x uint64) uint64 {
	return math.Float64bits(math.Float64frombits(cur) + math.Float64frombits(x))
}

// Add adds x to the sum.
func (a *Float64Adder) Add(x float64) {
	a.s.apply(math.Float64bits(x), addFloat64Bits)
}

// Sum returns the current sum.
func (a *Float64Adder) Sum() float64 {
	return math.Float64frombits(a.s.fold(addFloat64Bits))
}

// Reset sets the sum back to positive zero.
func (a *Float64Adder) Reset() {
	a.s.reset(0)
}

// SumThenReset is equivalent to Sum followed by Reset.
func (a *Float64Adder) SumThenReset() float64 {
	return math.Float64frombits(a.s.foldThenReset(0, addFloat64Bits))
}

// Float64 is equivalent to Sum.
func (a *Float64Adder) Float64() float64 {
	return a.Sum()
}

// Int64 returns Sum truncated to int64.
func (a *Float64Adder) Int64() int64 {
	return int64(a.Sum())
}

// Stats returns statistics for the adder's cell table.
func (a *Float64Adder) Stats() *Stats {
	return a.s.stats()
}

// String implement the formatting output interface fmt.Stringer
func (a *Float64Adder) String() string {
	return strconv.FormatFloat(a.Sum(), 'g', -1, 64)
}

// MarshalJSON JSON serialization
func (a *Float64Adder) MarshalJSON() ([]byte, error) {
	return marshalJSON(a.Sum())
}

// UnmarshalJSON JSON deserialization. Like Reset, it must not race with Add.
func (a *Float64Adder) UnmarshalJSON(data []byte) error {
	var v float64
	if err := unmarshalJSON(data, &v); err != nil {
		return err
	}
	a.s.reset(0)
	a.s.base.Store(math.Float64bits(v))
	return nil
}
