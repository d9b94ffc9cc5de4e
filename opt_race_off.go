//go:build !race

package accum

import (
	"math/bits"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// Detect TSO architectures; on TSO, plain reads/writes are safe for
// pointers and native word-sized integers
const isTSO = runtime.GOARCH == "amd64" ||
	runtime.GOARCH == "386" ||
	runtime.GOARCH == "s390x"

// TSO: plain pointer load; non-TSO: use atomic.LoadPointer
//
//go:nosplit
func loadPtr(addr *unsafe.Pointer) unsafe.Pointer {
	//goland:noinspection ALL
	if isTSO {
		return *addr
	} else {
		return atomic.LoadPointer(addr)
	}
}

// Cell slots are published under the busy bit but read without it,
// so the store side stays atomic everywhere.
//
//go:nosplit
func storePtr(addr *unsafe.Pointer, val unsafe.Pointer) {
	atomic.StorePointer(addr, val)
}

// Best-effort word read for folds; plain on 64-bit TSO
//
//go:nosplit
func loadWord(addr *uint64) uint64 {
	//goland:noinspection ALL
	if isTSO && bits.UintSize >= 64 {
		return *addr
	} else {
		return atomic.LoadUint64(addr)
	}
}

// Word write for resets at quiescence; plain on 64-bit TSO
//
//go:nosplit
func storeWord(addr *uint64, val uint64) {
	//goland:noinspection ALL
	if isTSO && bits.UintSize >= 64 {
		*addr = val
	} else {
		atomic.StoreUint64(addr, val)
	}
}
