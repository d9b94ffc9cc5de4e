package accum

import (
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"unsafe"
)

func TestStriped_StructSize(t *testing.T) {
	t.Logf("CacheLineSize : %d", CacheLineSize)
	t.Logf("ncpu : %d", ncpu)

	size := unsafe.Sizeof(cell{})
	t.Log("cell size:", size)
	if enablePadding && size != CacheLineSize {
		t.Fatalf("cell doesn't meet CacheLineSize: %d", size)
	}

	size = unsafe.Sizeof(striped{})
	t.Log("striped size:", size)
	if size != CacheLineSize {
		t.Fatalf("striped doesn't meet CacheLineSize: %d", size)
	}

	size = unsafe.Sizeof(probe{})
	t.Log("probe size:", size)
	if size != CacheLineSize {
		t.Fatalf("probe doesn't meet CacheLineSize: %d", size)
	}

	structType := reflect.TypeOf(striped{})
	t.Logf("Struct striped: %s", structType.Name())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		t.Logf("Field: %-10s Type: %-28s Offset: %d Size: %d bytes\n",
			field.Name, field.Type, field.Offset, field.Type.Size())
	}

	if off := unsafe.Offsetof(striped{}.base); off%8 != 0 {
		t.Fatalf("base is not 8-byte aligned: offset %d", off)
	}
}

func TestStriped_FirstContentionCreatesTable(t *testing.T) {
	var s striped

	if h := s.accumulate(5, nil, true, 1); h != 1 {
		t.Fatalf("probe was rehashed on table creation: %d", h)
	}
	table := s.table.Load()
	if table == nil || len(table.cells) != 2 {
		t.Fatalf("expected a 2-slot table, got %+v", table)
	}
	if table.cells[0] != nil {
		t.Fatal("slot 0 should still be empty")
	}
	if c := (*cell)(table.cells[1]); c == nil || c.v.Load() != 5 {
		t.Fatal("slot 1 should hold a cell seeded with the value")
	}
	if got := s.base.Load(); got != 0 {
		t.Fatalf("base should be untouched, got %d", got)
	}
	if got := s.fold(nil); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if s.busy.Load() != 0 {
		t.Fatal("busy bit left set")
	}
}

func TestStriped_EmptySlotGetsCell(t *testing.T) {
	var s striped
	s.accumulate(5, nil, true, 1)

	if h := s.accumulate(3, nil, true, 2); h != 2 {
		t.Fatalf("probe was rehashed on cell insertion: %d", h)
	}
	st := s.stats()
	if st.TableLen != 2 || st.Cells != 2 {
		t.Fatalf("unexpected stats: %s", st.ToString())
	}
	if got := s.fold(nil); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
	if s.busy.Load() != 0 {
		t.Fatal("busy bit left set")
	}
}

func TestStriped_KnownContendedRetriesSameCell(t *testing.T) {
	var s striped
	s.accumulate(5, nil, true, 1)

	// wasUncontended=false only flips the flag; the retry lands on the
	// same cell and succeeds.
	if h := s.accumulate(4, nil, false, 1); h != 1 {
		t.Fatalf("probe was rehashed: %d", h)
	}
	if c := (*cell)(s.table.Load().cells[1]); c.v.Load() != 9 {
		t.Fatalf("expected cell value 9, got %d", c.v.Load())
	}
	if st := s.stats(); st.Cells != 1 {
		t.Fatalf("no cell should have been added: %s", st.ToString())
	}
}

func TestStriped_BusyWithoutTableFallsBackToBase(t *testing.T) {
	var s striped
	s.busy.Store(1)

	s.accumulate(7, nil, true, 3)
	if s.table.Load() != nil {
		t.Fatal("table must not be created while busy is held")
	}
	if got := s.base.Load(); got != 7 {
		t.Fatalf("expected base 7, got %d", got)
	}
	if s.busy.Load() != 1 {
		t.Fatal("busy bit owned by someone else was released")
	}
}

func TestStriped_BusyWithTableRehashesToOccupiedCell(t *testing.T) {
	var s striped
	s.accumulate(1, nil, true, 1)
	s.busy.Store(1)

	// Slot 0 is empty but the busy bit is taken, so the probe is
	// rehashed until it selects the occupied odd slot.
	h := s.accumulate(2, nil, true, 2)
	if h&1 != 1 {
		t.Fatalf("expected an odd probe, got %d", h)
	}
	if st := s.stats(); st.Cells != 1 {
		t.Fatalf("no cell may be installed while busy is held: %s", st.ToString())
	}
	if got := s.fold(nil); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	s.busy.Store(0)
}

func TestStriped_ZeroProbeIsInitialized(t *testing.T) {
	var s striped
	h := s.accumulate(1, nil, false, 0)
	if h == 0 {
		t.Fatal("probe was not initialized")
	}
	if c := (*cell)(s.table.Load().cells[h&1]); c == nil || c.v.Load() != 1 {
		t.Fatal("cell not placed at the initialized probe's slot")
	}
}

func TestStriped_GrowTable(t *testing.T) {
	var s striped
	s.accumulate(1, nil, true, 1)
	s.accumulate(2, nil, true, 2)
	old := s.table.Load()

	if !s.growTable(old) {
		t.Fatal("busy bit should have been free")
	}
	nt := s.table.Load()
	if len(nt.cells) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(nt.cells))
	}
	for i := range old.cells {
		if nt.cells[i] != old.cells[i] {
			t.Fatalf("slot %d was not carried over by reference", i)
		}
	}
	if got := s.fold(nil); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	// A stale table is left alone.
	if !s.growTable(old) {
		t.Fatal("busy bit should have been free")
	}
	if s.table.Load() != nt {
		t.Fatal("stale grow replaced the current table")
	}
	if st := s.stats(); st.TotalGrowths != 1 {
		t.Fatalf("expected 1 growth, got %d", st.TotalGrowths)
	}

	s.busy.Store(1)
	if s.growTable(nt) {
		t.Fatal("grow must not proceed while busy is held")
	}
	s.busy.Store(0)
}

// failingAdd returns an adder whose first *fails calls bump every cell of
// s before returning, so the CAS that follows them is lost. bumped counts
// the total added by those bumps.
func failingAdd(s *striped, fails *int, bumped *uint64) bitsFunc {
	return func(cur, x uint64) uint64 {
		if *fails > 0 {
			*fails--
			for _, p := range s.table.Load().cells {
				if c := (*cell)(p); c != nil {
					c.v.Add(1)
					*bumped++
				}
			}
		}
		return cur + x
	}
}

// fillTable puts a zero cell into every empty slot of the current table.
func fillTable(s *striped) {
	t := s.table.Load()
	for i := range t.cells {
		if t.cells[i] == nil {
			t.cells[i] = unsafe.Pointer(&cell{})
		}
	}
}

func TestStriped_GrowsOnSecondCollision(t *testing.T) {
	var s striped
	s.init(0, WithMaxCells(8))
	s.accumulate(0, nil, true, 1)
	fillTable(&s)

	var bumped uint64
	fails := 1
	fn := failingAdd(&s, &fails, &bumped)

	// One lost CAS only marks the collision; the rehashed retry succeeds.
	h := s.accumulate(1, fn, true, 1)
	if h == 1 {
		t.Fatal("probe was not rehashed after a lost CAS")
	}
	if st := s.stats(); st.TotalGrowths != 0 || st.TableLen != 2 {
		t.Fatalf("grew on the first collision: %s", st.ToString())
	}

	// Two lost CASes in a row double the table.
	fails = 2
	s.accumulate(1, fn, true, h)
	if st := s.stats(); st.TotalGrowths != 1 || st.TableLen != 4 {
		t.Fatalf("expected one growth to 4 slots: %s", st.ToString())
	}

	if got := s.fold(nil); got != 2+bumped {
		t.Fatalf("expected %d, got %d", 2+bumped, got)
	}
	if s.busy.Load() != 0 {
		t.Fatal("busy bit left set")
	}
}

func TestStriped_GrowthStopsAtCap(t *testing.T) {
	defer func(n int) { ncpu = n }(ncpu)

	for _, tc := range []struct {
		name    string
		ncpu    int
		options []func(*Config)
		want    int
		growths uint32
	}{
		{"ncpu_8", 8, nil, 8, 2},
		{"ncpu_6", 6, nil, 8, 2},
		{"ncpu_1", 1, nil, 2, 0},
		{"max_cells_3", 64, []func(*Config){WithMaxCells(3)}, 4, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ncpu = tc.ncpu
			var s striped
			s.init(0, tc.options...)
			if got := s.stats().MaxTableLen; got != tc.want {
				t.Fatalf("expected MaxTableLen %d, got %d", tc.want, got)
			}
			s.accumulate(0, nil, true, 1)

			var bumped uint64
			fails := 0
			fn := failingAdd(&s, &fails, &bumped)

			// With every slot occupied, each pair of lost CASes grows the
			// table once, until the cap is reached.
			calls := 0
			for i := 0; i < 16; i++ {
				fillTable(&s)
				fails = 2
				s.accumulate(1, fn, true, uint32(i+1))
				calls++
			}
			st := s.stats()
			if st.TableLen != tc.want || st.TotalGrowths != tc.growths {
				t.Fatalf("expected %d slots after %d growths: %s", tc.want, tc.growths, st.ToString())
			}

			// At the cap, any number of lost CASes only rehashes.
			fillTable(&s)
			fails = 32
			s.accumulate(1, fn, true, 7)
			calls++
			if after := s.stats(); after.TableLen != tc.want || after.TotalGrowths != tc.growths {
				t.Fatalf("grew past the cap: %s", after.ToString())
			}

			if got := s.fold(nil); got != uint64(calls)+bumped {
				t.Fatalf("expected %d, got %d", uint64(calls)+bumped, got)
			}
		})
	}
}

func TestStriped_ResetKeepsCells(t *testing.T) {
	var s striped
	s.accumulate(5, nil, true, 1)
	s.accumulate(6, nil, true, 2)
	s.base.Store(7)

	s.reset(0)
	if got := s.fold(nil); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
	if st := s.stats(); st.TableLen != 2 || st.Cells != 2 {
		t.Fatalf("reset must not free cells: %s", st.ToString())
	}

	s.base.Store(4)
	s.accumulate(1, nil, true, 1)
	if got := s.foldThenReset(0, nil); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := s.fold(nil); got != 0 {
		t.Fatalf("expected 0 after foldThenReset, got %d", got)
	}
}

func TestStriped_FoldOrder(t *testing.T) {
	var s striped
	s.base.Store(1)
	s.accumulate(2, nil, true, 1)
	s.accumulate(3, nil, true, 2)

	var seen []uint64
	s.fold(func(cur, x uint64) uint64 {
		seen = append(seen, x)
		return cur + x
	})
	// base is the starting value, cells follow in slot order.
	if len(seen) != 2 || seen[0] != 3 || seen[1] != 2 {
		t.Fatalf("unexpected fold order: %v", seen)
	}
}

func TestStriped_NoTableWithoutContention(t *testing.T) {
	var a Int64Adder
	for i := 0; i < 100_000; i++ {
		a.Increment()
	}
	if st := a.Stats(); st.TableLen != 0 || st.Cells != 0 {
		t.Fatalf("single goroutine allocated a table: %s", st.ToString())
	}
	if got := a.Sum(); got != 100_000 {
		t.Fatalf("expected 100000, got %d", got)
	}

	allocs := testing.AllocsPerRun(1000, func() {
		a.Add(3)
	})
	if allocs != 0 {
		t.Fatalf("uncontended Add allocated: %v", allocs)
	}
}

func TestStriped_TableGrowthBound(t *testing.T) {
	goroutines := runtime.GOMAXPROCS(0) * 16
	ops := 20_000
	if testing.Short() {
		ops = 2_000
	}

	for _, tc := range []struct {
		name    string
		options []func(*Config)
		want    int
	}{
		{"default", nil, calcMaxCells(runtime.NumCPU())},
		{"max_cells_3", []func(*Config){WithMaxCells(3)}, 4},
		{"max_cells_1", []func(*Config){WithMaxCells(1)}, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := NewInt64Adder(tc.options...)
			var wg sync.WaitGroup
			wg.Add(goroutines)
			for g := 0; g < goroutines; g++ {
				go func() {
					defer wg.Done()
					for i := 0; i < ops; i++ {
						a.Increment()
						if i%512 == 0 {
							runtime.Gosched()
						}
					}
				}()
			}
			wg.Wait()

			st := a.Stats()
			t.Log(st.ToString())
			if st.MaxTableLen != tc.want {
				t.Fatalf("expected MaxTableLen %d, got %d", tc.want, st.MaxTableLen)
			}
			if st.TableLen > st.MaxTableLen {
				t.Fatalf("table grew past its cap: %d > %d", st.TableLen, st.MaxTableLen)
			}
			if st.TableLen != 0 && (st.TableLen < 2 || st.TableLen&(st.TableLen-1) != 0) {
				t.Fatalf("table length is not a power of two >= 2: %d", st.TableLen)
			}
			if st.Cells > st.TableLen {
				t.Fatalf("more cells than slots: %d > %d", st.Cells, st.TableLen)
			}
			if got, want := a.Sum(), int64(goroutines*ops); got != want {
				t.Fatalf("lost updates: got %d, want %d", got, want)
			}
		})
	}
}

func TestStriped_BusyBitReleased(t *testing.T) {
	a := NewInt64Adder()
	var wg sync.WaitGroup
	for g := 0; g < runtime.GOMAXPROCS(0)*4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10_000; i++ {
				a.Add(2)
			}
		}()
	}
	wg.Wait()
	if a.s.busy.Load() != 0 {
		t.Fatal("busy bit left set after all writers finished")
	}
}

func TestProbe(t *testing.T) {
	seen := make(map[uint32]struct{})
	for i := 0; i < 1024; i++ {
		h := newProbe()
		if h == 0 {
			t.Fatal("newProbe returned zero")
		}
		seen[h] = struct{}{}
	}
	if len(seen) != 1024 {
		t.Fatalf("expected 1024 distinct probes, got %d", len(seen))
	}

	h := uint32(1)
	for i := 0; i < 1_000_000; i++ {
		h = advanceProbe(h)
		if h == 0 {
			t.Fatalf("advanceProbe reached zero after %d steps", i)
		}
	}

	p := getProbe()
	p.h = 42
	putProbe(p)
}

func TestCalcMaxCells(t *testing.T) {
	for _, tc := range []struct{ n, want int }{
		{1, 2}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {64, 64}, {65, 128},
		{maxCellsLimit + 1, maxCellsLimit},
	} {
		if got := calcMaxCells(tc.n); got != tc.want {
			t.Errorf("calcMaxCells(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
	for _, tc := range []struct{ n, want int }{
		{-1, 1}, {0, 1}, {1, 1}, {7, 8}, {1023, 1024}, {1025, 2048},
	} {
		if got := nextPowOf2(tc.n); got != tc.want {
			t.Errorf("nextPowOf2(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}

	var s striped
	s.init(0, WithMaxCells(0))
	if s.maxCells != 0 {
		t.Fatalf("non-positive WithMaxCells must be ignored, got %d", s.maxCells)
	}
	if s.cellLimit() != ncpu {
		t.Fatalf("expected default limit %d, got %d", ncpu, s.cellLimit())
	}
}

func TestStats_ToString(t *testing.T) {
	st := (&Stats{TableLen: 4, Cells: 3, MaxTableLen: 8, TotalGrowths: 1}).ToString()
	for _, want := range []string{"TableLen:     4", "Cells:        3", "MaxTableLen:  8", "TotalGrowths: 1"} {
		if !strings.Contains(st, want) {
			t.Errorf("missing %q in %s", want, st)
		}
	}
}
