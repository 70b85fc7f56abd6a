package slotpool_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/slotpool/pkg/slotpool"
)

// newTable builds a small heap-backed table or fails the test.
func newTable(t *testing.T, capacity, stride int) *slotpool.Table {
	t.Helper()

	table, err := slotpool.New(slotpool.Options{
		Name:     "test",
		Capacity: capacity,
		Stride:   stride,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(func() { _ = table.Close() })

	return table
}

func Test_New_Returns_ErrInvalidInput_When_Options_Are_Out_Of_Range(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts slotpool.Options
	}{
		{"MissingName", slotpool.Options{Capacity: 4, Stride: 8}},
		{"ZeroCapacity", slotpool.Options{Name: "t", Capacity: 0, Stride: 8}},
		{"NegativeCapacity", slotpool.Options{Name: "t", Capacity: -1, Stride: 8}},
		{"CapacityClaimsReservedSlotIndex", slotpool.Options{Name: "t", Capacity: 0xFFFF + 1, Stride: 8}},
		{"StrideBelowStamp", slotpool.Options{Name: "t", Capacity: 4, Stride: 1}},
		{"OddStrideUnaligned", slotpool.Options{Name: "t", Capacity: 4, Stride: 7}},
		{"StrideAboveMax", slotpool.Options{Name: "t", Capacity: 4, Stride: 1<<20 + 1}},
		{"AlignAbovePage", slotpool.Options{Name: "t", Capacity: 4, Stride: 8, AlignBits: 13}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			table, err := slotpool.New(tc.opts)
			if !errors.Is(err, slotpool.ErrInvalidInput) {
				t.Fatalf("New(%+v): got (%v, %v), want ErrInvalidInput", tc.opts, table, err)
			}
		})
	}
}

func Test_New_Starts_With_Every_Slot_Free(t *testing.T) {
	t.Parallel()

	table := newTable(t, 16, 8)

	if table.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", table.Len())
	}

	for slot := range 16 {
		if table.IsOccupied(slot) {
			t.Fatalf("IsOccupied(%d) = true on a fresh table", slot)
		}
	}
}

func Test_New_Reports_Configured_Geometry(t *testing.T) {
	t.Parallel()

	table, err := slotpool.New(slotpool.Options{
		Name:      "players",
		Capacity:  12,
		Stride:    10,
		AlignBits: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer table.Close()

	if table.Name() != "players" || table.Capacity() != 12 || table.Stride() != 10 {
		t.Fatalf("geometry: got (%q, %d, %d), want (players, 12, 10)",
			table.Name(), table.Capacity(), table.Stride())
	}
}

func Test_CheckedGet_Returns_Absent_When_Handle_Cannot_Resolve(t *testing.T) {
	t.Parallel()

	table := newTable(t, 4, 8)
	alloc := slotpool.NewAllocator(table)

	live, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	cases := []struct {
		name   string
		handle slotpool.Handle
	}{
		{"NilHandle", slotpool.Nil},
		{"ZeroGeneration", slotpool.NewHandle(0, live.Slot())},
		{"SlotOutOfRange", slotpool.NewHandle(live.Generation(), 4)},
		{"SlotFarOutOfRange", slotpool.NewHandle(live.Generation(), 0xFFFE)},
		{"GenerationOffByOne", slotpool.NewHandle(live.Generation()+1, live.Slot())},
		{"FreeSlot", slotpool.NewHandle(1, 3)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec, ok := table.CheckedGet(tc.handle); ok {
				t.Fatalf("CheckedGet(%v): got (%v, true), want absent", tc.handle, rec)
			}
		})
	}

	// The live handle itself still resolves.
	if _, ok := table.CheckedGet(live); !ok {
		t.Fatalf("CheckedGet(%v) absent for a live handle", live)
	}
}

func Test_CheckedGet_Returns_Stride_Long_Record_For_Live_Handle(t *testing.T) {
	t.Parallel()

	table := newTable(t, 4, 8)
	alloc := slotpool.NewAllocator(table)

	h, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	rec, ok := table.CheckedGet(h)
	if !ok {
		t.Fatalf("CheckedGet(%v) absent", h)
	}

	if len(rec) != 8 {
		t.Fatalf("record length: got %d, want stride 8", len(rec))
	}

	// Bytes past the stamp are caller data and survive until the slot is
	// freed.
	rec[7] = 0xEE

	again, _ := table.CheckedGet(h)
	if again[7] != 0xEE {
		t.Fatalf("record mutation did not persist: got %#x", again[7])
	}
}

func Test_UncheckedGet_Returns_Same_Record_As_CheckedGet_For_Live_Handle(t *testing.T) {
	t.Parallel()

	table := newTable(t, 4, 8)
	alloc := slotpool.NewAllocator(table)

	h, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	checked, _ := table.CheckedGet(h)
	unchecked := table.UncheckedGet(h)

	if &checked[0] != &unchecked[0] {
		t.Fatalf("CheckedGet and UncheckedGet disagree on the record address")
	}
}

func Test_UncheckedGet_Resolves_Stale_Handle_To_Recycled_Slot(t *testing.T) {
	t.Parallel()

	// The documented hazard: no validation means a stale handle lands on
	// whatever occupies the slot now.
	table := newTable(t, 4, 8)
	alloc := slotpool.NewAllocator(table)

	stale, _ := alloc.Allocate()
	if err := alloc.Free(stale); err != nil {
		t.Fatalf("Free: %v", err)
	}

	fresh, _ := alloc.Allocate()
	if fresh.Slot() != stale.Slot() {
		t.Fatalf("expected slot reuse, got slots %d then %d", stale.Slot(), fresh.Slot())
	}

	if &table.UncheckedGet(stale)[0] != &table.UncheckedGet(fresh)[0] {
		t.Fatalf("stale and fresh handles for the same slot resolve to different addresses")
	}

	if _, ok := table.CheckedGet(stale); ok {
		t.Fatalf("CheckedGet resolved the stale handle")
	}
}

func Test_IsOccupied_Reports_False_For_Out_Of_Range_Indices(t *testing.T) {
	t.Parallel()

	table := newTable(t, 4, 8)

	if table.IsOccupied(-1) || table.IsOccupied(4) || table.IsOccupied(1<<20) {
		t.Fatalf("IsOccupied out of range reported true")
	}
}

func Test_Table_Rejects_Everything_After_Close(t *testing.T) {
	t.Parallel()

	table := newTable(t, 4, 8)
	alloc := slotpool.NewAllocator(table)

	h, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := table.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := table.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := table.CheckedGet(h); ok {
		t.Fatalf("CheckedGet resolved after Close")
	}

	if table.IsOccupied(int(h.Slot())) {
		t.Fatalf("IsOccupied reported true after Close")
	}

	if _, err := alloc.Allocate(); !errors.Is(err, slotpool.ErrClosed) {
		t.Fatalf("Allocate after Close: got %v, want ErrClosed", err)
	}

	if err := alloc.Free(h); !errors.Is(err, slotpool.ErrClosed) {
		t.Fatalf("Free after Close: got %v, want ErrClosed", err)
	}
}

func Test_Table_Behaves_Identically_With_Mmap_Backing(t *testing.T) {
	t.Parallel()

	table, err := slotpool.New(slotpool.Options{
		Name:     "mapped",
		Capacity: 8,
		Stride:   16,
		Backing:  slotpool.BackingMmap,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer table.Close()

	alloc := slotpool.NewAllocator(table)

	h, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	rec, ok := table.CheckedGet(h)
	if !ok || len(rec) != 16 {
		t.Fatalf("CheckedGet: got (len %d, %v), want live 16-byte record", len(rec), ok)
	}

	rec[15] = 0x7F
	if again, _ := table.CheckedGet(h); again[15] != 0x7F {
		t.Fatalf("mmap-backed record mutation did not persist")
	}

	if err := table.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func Test_ArenaSize_Rounds_Stride_Up_To_Alignment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stride    int
		capacity  int
		alignBits uint8
		want      int
	}{
		{8, 4, 0, 32},
		{10, 4, 0, 40},
		{10, 4, 3, 64},   // 10 -> 16
		{8, 4, 3, 32},    // already aligned
		{1, 1, 12, 4096}, // page alignment
	}

	for _, tc := range cases {
		got := slotpool.ArenaSize(tc.stride, tc.capacity, tc.alignBits)
		if got != tc.want {
			t.Fatalf("ArenaSize(%d, %d, %d): got %d, want %d",
				tc.stride, tc.capacity, tc.alignBits, got, tc.want)
		}
	}
}

// The lifecycle walkthrough: allocate a few slots, iterate, free, observe
// the captured handle go stale, and watch the slot get recycled under a
// new generation.
func Test_Lifecycle_Scenario_With_Capacity_Four_Stride_Eight(t *testing.T) {
	t.Parallel()

	table := newTable(t, 4, 8)
	alloc := slotpool.NewAllocator(table)

	a, _ := alloc.Allocate() // slot 0
	b, _ := alloc.Allocate() // slot 1
	c, _ := alloc.Allocate() // slot 2

	if a.Slot() != 0 || b.Slot() != 1 || c.Slot() != 2 {
		t.Fatalf("slots: got %d, %d, %d, want 0, 1, 2", a.Slot(), b.Slot(), c.Slot())
	}

	if err := alloc.Free(b); err != nil {
		t.Fatalf("Free(b): %v", err)
	}

	// Iteration yields exactly slots 0 and 2, in order.
	it := slotpool.NewIterator(table)

	var visited []int
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		visited = append(visited, it.Index())
	}

	if len(visited) != 2 || visited[0] != 0 || visited[1] != 2 {
		t.Fatalf("iteration visited %v, want [0 2]", visited)
	}

	// Free slot 0; the captured handle no longer resolves.
	if err := alloc.Free(a); err != nil {
		t.Fatalf("Free(a): %v", err)
	}

	if _, ok := table.CheckedGet(a); ok {
		t.Fatalf("CheckedGet(a) resolved after free")
	}

	// The freed low slot is reused under a fresh generation; the new
	// handle resolves, the old one stays dead.
	reused, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if reused.Slot() != 0 {
		t.Fatalf("reused slot: got %d, want 0", reused.Slot())
	}

	if reused.Generation() == a.Generation() {
		t.Fatalf("recycled slot kept generation %d", a.Generation())
	}

	if _, ok := table.CheckedGet(reused); !ok {
		t.Fatalf("CheckedGet(reused) absent")
	}

	if _, ok := table.CheckedGet(a); ok {
		t.Fatalf("CheckedGet(a) resolved against the new occupant")
	}
}
