package accum

import (
	"sync/atomic"
	"unsafe"
)

// atomicUint64 wraps atomic.Uint64 to leverage its built-in
// alignment capabilities. The primary purpose is to ensure
// 8-byte alignment on 32-bit architectures, where base and
// cell words are CAS'd as 64-bit values.
type atomicUint64 struct {
	atomic.Uint64
}

//go:nosplit
func (a *atomicUint64) Raw() *uint64 {
	return (*uint64)(unsafe.Pointer(a))
}

// LoadRelaxed reads the word without ordering guarantees on TSO targets.
// Only folds use it; they are best-effort by contract.
//
//go:nosplit
func (a *atomicUint64) LoadRelaxed() uint64 {
	return loadWord(a.Raw())
}

// StoreRelaxed is the reset-side counterpart of LoadRelaxed.
//
//go:nosplit
func (a *atomicUint64) StoreRelaxed(v uint64) {
	storeWord(a.Raw(), v)
}

// noCopy may be embedded into structs which must not be copied
// after the first use. See https://golang.org/issues/8005#issuecomment-190753527
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
