package accum

import (
	"math/bits"
	"runtime"
)

// maxCellsLimit keeps the configured cap representable in the int32
// field of striped.
const maxCellsLimit = 1 << 30

// ncpu is the default bound on the cell table: it never grows past the
// first power of two that is >= the number of hardware threads, since
// more cells than threads cannot reduce contention any further.
var ncpu = runtime.NumCPU()

// Config defines configurable accumulator options.
type Config struct {
	maxCells int
}

// WithMaxCells caps the number of cells an accumulator may allocate
// under contention. The value is rounded up to a power of two and
// never goes below 2, the size of the first table. If maxCells is zero
// or negative, the value is ignored and the number of CPUs is used.
func WithMaxCells(maxCells int) func(*Config) {
	return func(c *Config) {
		c.maxCells = maxCells
	}
}

// calcMaxCells computes the table length cap for a requested cell count.
// return value must be a power of 2
func calcMaxCells(n int) int {
	return max(2, nextPowOf2(min(n, maxCellsLimit)))
}

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal to n.
// Compatible with both 32-bit and 64-bit systems.
func nextPowOf2(n int) int {
	if n <= 0 {
		return 1
	}

	if bits.UintSize == 32 {
		v := uint32(n)
		v--
		v |= v >> 1
		v |= v >> 2
		v |= v >> 4
		v |= v >> 8
		v |= v >> 16
		v++
		return int(v)
	}

	v := uint64(n)
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return int(v)
}
