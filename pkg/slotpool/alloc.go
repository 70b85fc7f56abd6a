package slotpool

import (
	"fmt"
	"math/bits"
)

// Allocator is the allocation authority for one [Table].
//
// It owns the free-slot search and the generation counters; the table
// itself is read-only to everyone else. An Allocator must be driven by a
// single goroutine at a time, and its mutations must be externally
// serialized against any concurrent [Table.CheckedGet] or iteration.
type Allocator struct {
	table *Table
}

// NewAllocator binds an allocation authority to a table.
//
// Creating more than one allocator for the same table is legal but
// pointless; they share all bookkeeping through the table.
func NewAllocator(t *Table) *Allocator {
	if t == nil {
		panic("slotpool: nil table")
	}

	return &Allocator{table: t}
}

// Allocate claims a free slot and returns a handle to it.
//
// The slot is stamped with the table's next primary generation (never 0),
// its occupancy bit is set, and the generation counter advances, skipping
// 0 on wraparound. A handle captured before a previous occupant of the
// same slot was freed never validates against the new stamp.
//
// Possible errors: [ErrFull], [ErrClosed].
func (a *Allocator) Allocate() (Handle, error) {
	return a.allocate(false)
}

// AllocateAlt claims a free slot stamped from the alternate generation
// counter.
//
// The alternate counter exists for callers that want a second allocation
// mode (for example, long-lived records that should not churn with the
// primary counter). It counts in the upper half of the generation space,
// disjoint from the primary counter, so the two modes can never reissue
// each other's generations. Which allocations use it is caller policy;
// the table validates both kinds of handle identically.
//
// Possible errors: [ErrFull], [ErrClosed].
func (a *Allocator) AllocateAlt() (Handle, error) {
	return a.allocate(true)
}

func (a *Allocator) allocate(alt bool) (Handle, error) {
	t := a.table
	if !t.valid {
		return Nil, ErrClosed
	}

	slot, ok := a.findFree()
	if !ok {
		return Nil, fmt.Errorf("no free slot in %q (capacity %d): %w", t.name, t.capacity, ErrFull)
	}

	var gen uint16
	if alt {
		gen = t.altNextSalt
		t.altNextSalt = nextAltSalt(t.altNextSalt)
	} else {
		gen = t.nextSalt
		t.nextSalt = nextPrimarySalt(t.nextSalt)
	}

	t.stamp(slot, gen)
	t.nextIndex = slot + 1

	return NewHandle(gen, uint16(slot)), nil
}

// Free releases the slot a handle refers to.
//
// The handle is validated exactly like [Table.CheckedGet]: a nil, stale,
// or out-of-range handle returns [ErrStaleHandle] and leaves the slot's
// current occupant untouched (a double free after the slot was recycled
// must not evict the new occupant). On success the record is zeroed, the
// generation stamp drops to 0, the occupancy bit clears, and the freed
// index becomes the next-free search hint when it is lower than the
// current one.
//
// Possible errors: [ErrStaleHandle], [ErrClosed].
func (a *Allocator) Free(h Handle) error {
	t := a.table
	if !t.valid {
		return ErrClosed
	}

	if _, ok := t.CheckedGet(h); !ok {
		return fmt.Errorf("handle %v does not resolve: %w", h, ErrStaleHandle)
	}

	slot := int(h.Slot())
	t.clear(slot)

	if slot < t.nextIndex {
		t.nextIndex = slot
	}

	return nil
}

// findFree locates the lowest-cost free slot: forward from the search
// hint, wrapping once.
func (a *Allocator) findFree() (int, bool) {
	t := a.table

	if t.usedCount == t.capacity {
		return 0, false
	}

	start := t.nextIndex
	if start >= t.capacity {
		start = 0
	}

	if slot, ok := t.scanFree(start, t.capacity); ok {
		return slot, true
	}

	return t.scanFree(0, start)
}

// altSaltBase splits the generation space between the two counters: the
// primary counter cycles through [1, altSaltBase), the alternate counter
// through [altSaltBase, 0xFFFF]. Without the split, one counter could
// restamp a slot with a generation the other issued earlier and a stale
// handle would resolve against the new occupant.
const altSaltBase = 0x8000

// nextPrimarySalt advances the primary counter within its half, skipping
// 0 on wraparound so a live stamp can never equal the "free" marker.
func nextPrimarySalt(s uint16) uint16 {
	s++
	if s >= altSaltBase {
		s = 1
	}

	return s
}

// nextAltSalt advances the alternate counter within its half.
func nextAltSalt(s uint16) uint16 {
	s++
	if s == 0 {
		s = altSaltBase
	}

	return s
}

// scanFree returns the first free slot in [from, to).
//
// Slots at or beyond the first-unallocated watermark are free by
// invariant, so the bitmap is only consulted below it.
func (t *Table) scanFree(from, to int) (int, bool) {
	if from >= to {
		return 0, false
	}

	if from >= t.firstUnallocated {
		return from, true
	}

	limit := min(to, t.firstUnallocated)

	// Word-wise scan for a zero bit in [from, limit).
	for word := from >> 6; word <= (limit-1)>>6; word++ {
		free := ^t.bitmap[word]

		if word == from>>6 {
			free &^= (uint64(1) << (from & 63)) - 1 // ignore bits below from
		}

		if free != 0 {
			slot := word<<6 + bits.TrailingZeros64(free)
			if slot < limit {
				return slot, true
			}
		}
	}

	if t.firstUnallocated < to {
		return t.firstUnallocated, true
	}

	return 0, false
}
