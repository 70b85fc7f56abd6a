// Package testutil provides an in-memory reference model and a harness
// for model-vs-real slot table tests.
package testutil

import (
	"fmt"
	"slices"

	"github.com/calvinalkan/slotpool/pkg/slotpool"
)

// Model is a reference for a table's observable state: the generation of
// every slot plus the full history of issued and retired handles.
//
// The model does not predict which slot an allocation picks (that is
// allocator policy); it validates the handle the real allocator returned
// and records the resulting state.
type Model struct {
	Capacity int

	// Gens holds each slot's current generation; 0 = free.
	Gens []uint16

	// Live maps every currently valid handle to its slot.
	Live map[slotpool.Handle]int

	// Retired holds handles that were freed and must never resolve again.
	Retired []slotpool.Handle

	// seen holds every generation ever stamped on each slot, to check
	// that recycling never reissues a prior live generation.
	seen []map[uint16]bool
}

// NewModel creates a model of an empty table.
func NewModel(capacity int) *Model {
	seen := make([]map[uint16]bool, capacity)
	for i := range seen {
		seen[i] = make(map[uint16]bool)
	}

	return &Model{
		Capacity: capacity,
		Gens:     make([]uint16, capacity),
		Live:     make(map[slotpool.Handle]int),
		seen:     seen,
	}
}

// Len returns the number of occupied slots.
func (m *Model) Len() int { return len(m.Live) }

// Occupied returns the occupied slot indices in increasing order.
func (m *Model) Occupied() []int {
	out := make([]int, 0, len(m.Live))
	for _, slot := range m.Live {
		out = append(out, slot)
	}

	slices.Sort(out)

	return out
}

// Resolves reports whether the model considers the handle valid.
func (m *Model) Resolves(h slotpool.Handle) bool {
	_, ok := m.Live[h]
	return ok
}

// Allocate validates a handle the real allocator just issued and applies
// it to the model.
func (m *Model) Allocate(h slotpool.Handle) error {
	slot := int(h.Slot())
	gen := h.Generation()

	switch {
	case h.IsNil():
		return fmt.Errorf("allocator issued the nil handle")
	case slot >= m.Capacity:
		return fmt.Errorf("allocator issued out-of-range slot %d (capacity %d)", slot, m.Capacity)
	case gen == 0:
		return fmt.Errorf("allocator stamped generation 0 on slot %d", slot)
	case m.Gens[slot] != 0:
		return fmt.Errorf("allocator reused occupied slot %d (generation %d)", slot, m.Gens[slot])
	case m.seen[slot][gen]:
		return fmt.Errorf("allocator reissued generation %d on slot %d", gen, slot)
	}

	m.Gens[slot] = gen
	m.Live[h] = slot
	m.seen[slot][gen] = true

	return nil
}

// Free applies a successful free to the model.
func (m *Model) Free(h slotpool.Handle) error {
	slot, ok := m.Live[h]
	if !ok {
		return fmt.Errorf("free of handle %v the model does not consider live", h)
	}

	m.Gens[slot] = 0
	delete(m.Live, h)
	m.Retired = append(m.Retired, h)

	return nil
}
