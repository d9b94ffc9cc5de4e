//go:build !accum_opt_disable_padding

package accum

import "unsafe"

// With enablePadding, every cell occupies a whole cache line so that
// goroutines hammering neighbouring cells do not invalidate each other's
// lines. Build with `accum_opt_disable_padding` to trade that for 8-byte
// cells on memory-constrained targets.
const enablePadding = true

// cell is one independently CAS-able word of a striped value.
type cell struct {
	v atomicUint64
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(atomicUint64{})%CacheLineSize) % CacheLineSize]byte
}
