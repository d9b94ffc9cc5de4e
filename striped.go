package accum

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unsafe"
)

// bitsFunc folds x into cur. Both operands are raw 64-bit words: two's
// complement integers, or math.Float64bits patterns for the floating
// point front-ends. A nil bitsFunc is plain wrapping addition.
type bitsFunc func(cur, x uint64) uint64

func (fn bitsFunc) apply(cur, x uint64) uint64 {
	if fn == nil {
		return cur + x
	}
	return fn(cur, x)
}

// cellTable is the array of cell slots; len(cells) is a power of two >= 2.
// Slots start nil and, once filled, keep the same cell forever.
type cellTable struct {
	cells []unsafe.Pointer // *cell
}

//go:nosplit
func (t *cellTable) slot(h uint32) *unsafe.Pointer {
	return &t.cells[uintptr(h)&uintptr(len(t.cells)-1)]
}

// striped is the engine behind every front-end in this package.
//
// Updates go to base until a CAS on base fails. From then on a table of
// cells is kept, each goroutine picks a cell through its probe hash and
// the table doubles whenever goroutines keep colliding, until it reaches
// the cell cap. Readers fold base and all cells without locking.
//
// The busy bit guards table creation, table growth and the insertion of
// a new cell into an empty slot. It is only ever tried, never waited on:
// a goroutine that cannot take it carries on with base or another cell.
type striped struct {
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		base     atomicUint64
		table    atomic.Pointer[cellTable]
		busy     atomic.Uint32
		growths  atomic.Uint32
		maxCells int32
	}{})%CacheLineSize) % CacheLineSize]byte

	base     atomicUint64
	table    atomic.Pointer[cellTable]
	busy     atomic.Uint32
	growths  atomic.Uint32
	maxCells int32 // WithMaxCells, 0 means ncpu
}

// init applies options and seeds base with the identity word.
// It must run before the value is shared.
func (s *striped) init(identity uint64, options ...func(*Config)) {
	c := &Config{}
	for _, o := range options {
		o(c)
	}
	if c.maxCells > 0 {
		s.maxCells = int32(calcMaxCells(c.maxCells))
	}
	s.base.Store(identity)
}

// cellLimit is the table length at which growth stops.
func (s *striped) cellLimit() int {
	if s.maxCells > 0 {
		return int(s.maxCells)
	}
	return ncpu
}

func (s *striped) tryLock() bool {
	return s.busy.Load() == 0 && s.busy.CompareAndSwap(0, 1)
}

func (s *striped) unlock() {
	s.busy.Store(0)
}

// apply folds x into s. This is the fast path: a single CAS on
// base while no contention has been seen, otherwise a single CAS on the
// caller's cell. Everything else is left to accumulate.
func (s *striped) apply(x uint64, fn bitsFunc) {
	t := s.table.Load()
	if t == nil {
		b := s.base.Load()
		r := fn.apply(b, x)
		if r == b || s.base.CompareAndSwap(b, r) {
			return
		}
	}
	p := getProbe()
	uncontended := true
	if t != nil {
		if c := (*cell)(loadPtr(t.slot(p.h))); c != nil {
			v := c.v.Load()
			r := fn.apply(v, x)
			if r == v || c.v.CompareAndSwap(v, r) {
				putProbe(p)
				return
			}
			uncontended = false
		}
	}
	p.h = s.accumulate(x, fn, uncontended, p.h)
	putProbe(p)
}

// accumulate handles every update the fast path could not complete:
// table creation, cell insertion, contention between goroutines and
// table growth. It returns the caller's probe hash, rehashed as needed,
// so the next update from the same token starts from the cell that
// last worked.
//
// wasUncontended is false if the caller already failed a CAS on the
// cell selected by h.
func (s *striped) accumulate(x uint64, fn bitsFunc, wasUncontended bool, h uint32) uint32 {
	if h == 0 {
		h = newProbe()
		wasUncontended = true
	}
	// collide is set after the first failed CAS on an occupied cell;
	// a second one in a row grows the table.
	collide := false
	for {
		t := s.table.Load()
		if t != nil {
			c := (*cell)(loadPtr(t.slot(h)))
			if c == nil {
				if s.busy.Load() == 0 {
					nc := &cell{}
					nc.v.Store(x)
					locked, installed := s.installCell(nc, h)
					if installed {
						return h
					}
					if locked {
						// Slot is now non-empty
						continue
					}
				}
				collide = false
			} else if !wasUncontended {
				// CAS already known to fail on this cell
				wasUncontended = true
				continue
			} else if v := c.v.Load(); c.v.CompareAndSwap(v, fn.apply(v, x)) {
				return h
			} else if len(t.cells) >= s.cellLimit() || s.table.Load() != t {
				// At max size or stale
				collide = false
			} else if !collide {
				collide = true
			} else if s.growTable(t) {
				collide = false
				// Retry with expanded table
				continue
			}
			h = advanceProbe(h)
		} else if locked, created := s.initTable(x, h); created {
			return h
		} else if !locked {
			// Fall back on using base
			if b := s.base.Load(); s.base.CompareAndSwap(b, fn.apply(b, x)) {
				return h
			}
		}
	}
}

// initTable creates the first two-slot table holding x in the slot
// selected by the low bit of h, unless another goroutine created a
// table first.
func (s *striped) initTable(x uint64, h uint32) (locked, created bool) {
	if !s.tryLock() {
		return false, false
	}
	defer s.unlock()
	if s.table.Load() != nil {
		return true, false
	}
	c := &cell{}
	c.v.Store(x)
	t := &cellTable{cells: make([]unsafe.Pointer, 2)}
	t.cells[h&1] = unsafe.Pointer(c)
	s.table.Store(t)
	return true, true
}

// installCell puts c into the slot selected by h of the current table,
// provided the slot is still empty once the busy bit is held.
func (s *striped) installCell(c *cell, h uint32) (locked, installed bool) {
	if !s.tryLock() {
		return false, false
	}
	defer s.unlock()
	t := s.table.Load()
	if t == nil {
		return true, false
	}
	slot := t.slot(h)
	if loadPtr(slot) != nil {
		return true, false
	}
	storePtr(slot, unsafe.Pointer(c))
	return true, true
}

// growTable doubles t unless another goroutine already replaced it.
// It reports whether the busy bit could be taken.
func (s *striped) growTable(t *cellTable) bool {
	if !s.tryLock() {
		return false
	}
	defer s.unlock()
	if s.table.Load() == t {
		nt := &cellTable{cells: make([]unsafe.Pointer, len(t.cells)<<1)}
		for i := range t.cells {
			nt.cells[i] = loadPtr(&t.cells[i])
		}
		s.table.Store(nt)
		s.growths.Add(1)
	}
	return true
}

// fold reduces base and every allocated cell, in table order, with fn.
//
// Not atomic: updates that happen while the cells are being read may or
// may not be reflected in the result.
func (s *striped) fold(fn bitsFunc) uint64 {
	r := s.base.LoadRelaxed()
	if t := s.table.Load(); t != nil {
		for i := range t.cells {
			if c := (*cell)(loadPtr(&t.cells[i])); c != nil {
				r = fn.apply(r, c.v.LoadRelaxed())
			}
		}
	}
	return r
}

// reset stores identity into base and every allocated cell. The table
// keeps its size and its cells. Only meaningful when no update is in
// flight.
func (s *striped) reset(identity uint64) {
	s.base.StoreRelaxed(identity)
	if t := s.table.Load(); t != nil {
		for i := range t.cells {
			if c := (*cell)(loadPtr(&t.cells[i])); c != nil {
				c.v.StoreRelaxed(identity)
			}
		}
	}
}

// foldThenReset is fold followed by reset, word by word. Each word is
// swapped out, so an update racing with it lands either in the
// returned value or in what remains afterwards, never in both.
func (s *striped) foldThenReset(identity uint64, fn bitsFunc) uint64 {
	r := s.base.Swap(identity)
	if t := s.table.Load(); t != nil {
		for i := range t.cells {
			if c := (*cell)(loadPtr(&t.cells[i])); c != nil {
				r = fn.apply(r, c.v.Swap(identity))
			}
		}
	}
	return r
}

func (s *striped) stats() *Stats {
	st := &Stats{
		MaxTableLen:  calcMaxCells(s.cellLimit()),
		TotalGrowths: s.growths.Load(),
	}
	if t := s.table.Load(); t != nil {
		st.TableLen = len(t.cells)
		for i := range t.cells {
			if loadPtr(&t.cells[i]) != nil {
				st.Cells++
			}
		}
	}
	return st
}

// Stats is accumulator statistics.
//
// Notes:
//   - accumulator statistics are intended to be used for diagnostic
//     purposes, not for production code. This means that breaking changes
//     may be introduced into this struct even between minor releases.
type Stats struct {
	// TableLen is the length of the cell table. Zero means no
	// contention has been observed yet and every update went to base.
	TableLen int
	// Cells is the number of allocated cells. Cells are never freed,
	// Reset only zeroes them.
	Cells int
	// MaxTableLen is the length the table stops growing at.
	MaxTableLen int
	// TotalGrowths is the number of times the cell table doubled.
	TotalGrowths uint32
}

// ToString returns string representation of accumulator stats.
func (s *Stats) ToString() string {
	var sb strings.Builder
	sb.WriteString("Stats{\n")
	sb.WriteString(fmt.Sprintf("TableLen:     %d\n", s.TableLen))
	sb.WriteString(fmt.Sprintf("Cells:        %d\n", s.Cells))
	sb.WriteString(fmt.Sprintf("MaxTableLen:  %d\n", s.MaxTableLen))
	sb.WriteString(fmt.Sprintf("TotalGrowths: %d\n", s.TotalGrowths))
	sb.WriteString("}\n")
	return sb.String()
}
