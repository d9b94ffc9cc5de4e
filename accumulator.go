package accum

import (
	"math"
	"strconv"
)

// Int64Accumulator maintains a running reduction of int64 values under
// a caller-supplied function, e.g. a maximum, a minimum or a bitwise OR,
// and can be updated by many goroutines concurrently with low contention.
//
// The function must be associative, insensitive to the order in which
// values arrive, and free of side effects: it is applied to different
// partial results in different goroutines, and it may be called more
// than once for a single update when a CAS has to be retried. identity
// must leave every value unchanged under the function (0 for a sum,
// math.MinInt64 for a maximum, math.MaxInt64 for a minimum); the first
// value stored into a fresh cell is taken as is.
//
// Get, Reset and GetThenReset are not atomic with respect to concurrent
// Accumulate calls; see Int64Adder.
//
// An Int64Accumulator must be created with NewInt64Accumulator and must
// not be copied after first use.
type Int64Accumulator struct {
	_        noCopy
	s        striped
	bits     bitsFunc
	identity int64
}

// NewInt64Accumulator creates an Int64Accumulator for fn with the given
// identity value. It panics if fn is nil.
//
// Parameters:
//   - fn: associative, side-effect free reduction function
//   - identity: the initial value, and the value Reset restores
//   - WithMaxCells option to cap the number of cells
func NewInt64Accumulator(
	fn func(x, y int64) int64,
	identity int64,
	options ...func(*Config),
) *Int64Accumulator {
	if fn == nil {
		panic("accum: nil reduction function")
	}
	a := &Int64Accumulator{
		identity: identity,
		bits: func(cur, x uint64) uint64 {
			return uint64(fn(int64(cur), int64(x)))
		},
	}
	a.s.init(uint64(identity), options...)
	return a
}

// Accumulate folds x into the current value.
func (a *Int64Accumulator) Accumulate(x int64) {
	a.s.apply(uint64(x), a.bits)
}

// Get returns the current value.
func (a *Int64Accumulator) Get() int64 {
	return int64(a.s.fold(a.bits))
}

// Reset sets the value back to the identity.
func (a *Int64Accumulator) Reset() {
	a.s.reset(uint64(a.identity))
}

// GetThenReset is equivalent to Get followed by Reset.
func (a *Int64Accumulator) GetThenReset() int64 {
	return int64(a.s.foldThenReset(uint64(a.identity), a.bits))
}

// Identity returns the identity value the accumulator was created with.
func (a *Int64Accumulator) Identity() int64 {
	return a.identity
}

// Int64 is equivalent to Get.
func (a *Int64Accumulator) Int64() int64 {
	return a.Get()
}

// Float64 returns Get converted to float64.
func (a *Int64Accumulator) Float64() float64 {
	return float64(a.Get())
}

// Stats returns statistics for the accumulator's cell table.
func (a *Int64Accumulator) Stats() *Stats {
	return a.s.stats()
}

// String implement the formatting output interface fmt.Stringer
func (a *Int64Accumulator) String() string {
	return strconv.FormatInt(a.Get(), 10)
}

// MarshalJSON JSON serialization
func (a *Int64Accumulator) MarshalJSON() ([]byte, error) {
	return marshalJSON(a.Get())
}

// UnmarshalJSON JSON deserialization. The decoded value replaces the
// current one; like Reset, it must not race with Accumulate.
func (a *Int64Accumulator) UnmarshalJSON(data []byte) error {
	var v int64
	if err := unmarshalJSON(data, &v); err != nil {
		return err
	}
	a.s.reset(uint64(a.identity))
	a.s.base.Store(uint64(v))
	return nil
}

// Float64Accumulator is the float64 counterpart of Int64Accumulator.
//
// Values are kept as their IEEE 754 bit patterns: every attempt decodes
// the current word, applies the function and CASes the encoded result,
// so CAS equality is bit equality (NaN payloads and signed zeros are
// compared exactly).
//
// A Float64Accumulator must be created with NewFloat64Accumulator and
// must not be copied after first use.
type Float64Accumulator struct {
	_        noCopy
	s        striped
	bits     bitsFunc
	identity float64
}

// NewFloat64Accumulator creates a Float64Accumulator for fn with the
// given identity value. It panics if fn is nil.
func NewFloat64Accumulator(
	fn func(x, y float64) float64,
	identity float64,
	options ...func(*Config),
) *Float64Accumulator {
	if fn == nil {
		panic("accum: nil reduction function")
	}
	a := &Float64Accumulator{
		identity: identity,
		bits: func(cur, x uint64) uint64 {
			return math.Float64bits(fn(math.Float64frombits(cur), math.Float64frombits(x)))
		},
	}
	a.s.init(math.Float64bits(identity), options...)
	return a
}

// Accumulate folds x into the current value.
func (a *Float64Accumulator) Accumulate(x float64) {
	a.s.apply(math.Float64bits(x), a.bits)
}

// Get returns the current value.
func (a *Float64Accumulator) Get() float64 {
	return math.Float64frombits(a.s.fold(a.bits))
}

// Reset sets the value back to the identity.
func (a *Float64Accumulator) Reset() {
	a.s.reset(math.Float64bits(a.identity))
}

// GetThenReset is equivalent to Get followed by Reset.
func (a *Float64Accumulator) GetThenReset() float64 {
	return math.Float64frombits(a.s.foldThenReset(math.Float64bits(a.identity), a.bits))
}

// Identity returns the identity value the accumulator was created with.
func (a *Float64Accumulator) Identity() float64 {
	return a.identity
}

// Float64 is equivalent to Get.
func (a *Float64Accumulator) Float64() float64 {
	return a.Get()
}

// Int64 returns Get truncated to int64.
func (a *Float64Accumulator) Int64() int64 {
	return int64(a.Get())
}

// Stats returns statistics for the accumulator's cell table.
func (a *Float64Accumulator) Stats() *Stats {
	return a.s.stats()
}

// String implement the formatting output interface fmt.Stringer
func (a *Float64Accumulator) String() string {
	return strconv.FormatFloat(a.Get(), 'g', -1, 64)
}

// MarshalJSON JSON serialization
func (a *Float64Accumulator) MarshalJSON() ([]byte, error) {
	return marshalJSON(a.Get())
}

// UnmarshalJSON JSON deserialization. The decoded value replaces the
// current one; like Reset, it must not race with Accumulate.
func (a *Float64Accumulator) UnmarshalJSON(data []byte) error {
	var v float64
	if err := unmarshalJSON(data, &v); err != nil {
		return err
	}
	a.s.reset(math.Float64bits(a.identity))
	a.s.base.Store(math.Float64bits(v))
	return nil
}
