package testutil

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/calvinalkan/slotpool/pkg/slotpool"
)

// Harness drives a real table and the reference model in lockstep.
type Harness struct {
	TB    testing.TB
	Table *slotpool.Table
	Alloc *slotpool.Allocator
	Model *Model
}

// NewHarness builds a table from opts along with its allocator and model.
func NewHarness(tb testing.TB, opts slotpool.Options) *Harness {
	tb.Helper()

	table, err := slotpool.New(opts)
	if err != nil {
		tb.Fatalf("New(%+v): %v", opts, err)
	}

	tb.Cleanup(func() { _ = table.Close() })

	return &Harness{
		TB:    tb,
		Table: table,
		Alloc: slotpool.NewAllocator(table),
		Model: NewModel(opts.Capacity),
	}
}

// Allocate performs one allocation on both sides.
//
// When the model says the table is full, the real allocator must return
// ErrFull; otherwise the issued handle must pass every model check and
// must immediately resolve.
func (h *Harness) Allocate(alt bool) (slotpool.Handle, bool) {
	h.TB.Helper()

	var (
		handle slotpool.Handle
		err    error
	)

	if alt {
		handle, err = h.Alloc.AllocateAlt()
	} else {
		handle, err = h.Alloc.Allocate()
	}

	if h.Model.Len() == h.Model.Capacity {
		if !errors.Is(err, slotpool.ErrFull) {
			h.TB.Fatalf("Allocate on full table: got (%v, %v), want ErrFull", handle, err)
		}

		return slotpool.Nil, false
	}

	if err != nil {
		h.TB.Fatalf("Allocate: %v (model has %d/%d occupied)", err, h.Model.Len(), h.Model.Capacity)
	}

	if modelErr := h.Model.Allocate(handle); modelErr != nil {
		h.TB.Fatalf("Allocate returned %v: %v", handle, modelErr)
	}

	if _, ok := h.Table.CheckedGet(handle); !ok {
		h.TB.Fatalf("CheckedGet(%v) absent immediately after Allocate", handle)
	}

	return handle, true
}

// Free performs one free on both sides.
//
// A handle the model considers live must free cleanly; any other handle
// must fail with ErrStaleHandle and leave both sides unchanged.
func (h *Harness) Free(handle slotpool.Handle) {
	h.TB.Helper()

	err := h.Alloc.Free(handle)

	if h.Model.Resolves(handle) {
		if err != nil {
			h.TB.Fatalf("Free(%v) of live handle: %v", handle, err)
		}

		if modelErr := h.Model.Free(handle); modelErr != nil {
			h.TB.Fatalf("Free(%v): %v", handle, modelErr)
		}

		return
	}

	if !errors.Is(err, slotpool.ErrStaleHandle) {
		h.TB.Fatalf("Free(%v) of stale handle: got %v, want ErrStaleHandle", handle, err)
	}
}

// CompareState exhaustively compares observable table state against the
// model.
//
// Checks (intentionally redundant for thoroughness):
//   - Len matches
//   - IsOccupied matches for every slot
//   - a full iterator pass visits exactly the model's occupied slots, in
//     increasing order, with handles that resolve
//   - every live handle resolves via CheckedGet
//   - every retired handle and the nil handle fail CheckedGet
func (h *Harness) CompareState() {
	h.TB.Helper()

	if got, want := h.Table.Len(), h.Model.Len(); got != want {
		h.TB.Fatalf("Len: got %d, want %d", got, want)
	}

	for slot := range h.Model.Capacity {
		if got, want := h.Table.IsOccupied(slot), h.Model.Gens[slot] != 0; got != want {
			h.TB.Fatalf("IsOccupied(%d): got %v, want %v", slot, got, want)
		}
	}

	var visited []int

	it := slotpool.NewIterator(h.Table)
	for {
		_, ok := it.Next()
		if !ok {
			break
		}

		visited = append(visited, it.Index())

		if it.Handle().Generation() != h.Model.Gens[it.Index()] {
			h.TB.Fatalf("iterator handle %v disagrees with model generation %d at slot %d",
				it.Handle(), h.Model.Gens[it.Index()], it.Index())
		}
	}

	if diff := cmp.Diff(h.Model.Occupied(), visited, cmpopts.EquateEmpty()); diff != "" {
		h.TB.Fatalf("iterator visit order mismatch (-model +real):\n%s", diff)
	}

	for handle := range h.Model.Live {
		if _, ok := h.Table.CheckedGet(handle); !ok {
			h.TB.Fatalf("CheckedGet(%v) absent for live handle", handle)
		}
	}

	for _, handle := range h.Model.Retired {
		if _, ok := h.Table.CheckedGet(handle); ok {
			h.TB.Fatalf("CheckedGet(%v) resolved a retired handle", handle)
		}
	}

	if _, ok := h.Table.CheckedGet(slotpool.Nil); ok {
		h.TB.Fatalf("CheckedGet(Nil) resolved")
	}
}
