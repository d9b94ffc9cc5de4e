package accum

import (
	"sync"
	"sync/atomic"
)

// probeIncrement is the 32-bit Golden Ratio constant,
// 0x9E3779B9 = floor(2^32 / φ). Successive probes drawn from it
// land far apart in any power-of-two table.
const probeIncrement = 0x9E3779B9

var (
	probeSeq atomic.Uint32
	// pool for probe tokens
	probePool sync.Pool
)

// A probe token carries the cell-selection hash of whichever goroutine
// currently holds it. sync.Pool keeps tokens in per-P caches, so a token
// tends to stay with the OS thread that last used it; exact thread
// identity is not important, the hash is only a best-effort way of
// spreading concurrent updates over different cells.
type probe struct {
	h uint32
	//lint:ignore U1000 prevents false sharing
	pad [CacheLineSize - 4]byte
}

func getProbe() *probe {
	p, ok := probePool.Get().(*probe)
	if !ok {
		p = new(probe)
	}
	return p
}

func putProbe(p *probe) {
	probePool.Put(p)
}

// newProbe returns the next non-zero hash of the golden-ratio sequence.
// Zero is reserved for "not yet initialized".
func newProbe() uint32 {
	for {
		if h := probeSeq.Add(probeIncrement); h != 0 {
			return h
		}
	}
}

// advanceProbe is Marsaglia's xorshift step; it never maps a non-zero
// hash to zero.
func advanceProbe(h uint32) uint32 {
	h ^= h << 13
	h ^= h >> 17
	h ^= h << 5
	return h
}
