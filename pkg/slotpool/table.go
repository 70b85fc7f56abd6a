package slotpool

import (
	"fmt"
	"unsafe"
)

// tableSignature is the format-sanity tag stamped into every constructed
// table ('d@t@'). Methods treat any table without it (zero value, reused
// after a bad cast) as invalid.
const tableSignature uint32 = 0x64407440

// Options configures a new [Table].
type Options struct {
	// Name tags the table for diagnostics. Required.
	Name string

	// Capacity is the fixed number of slots.
	//
	// Must be >= 1 and <= 65535. Fixed at construction; the table never
	// grows. When exhausted, [Allocator.Allocate] returns [ErrFull].
	Capacity int

	// Stride is the record size in bytes.
	//
	// Must be >= 2: every record begins with a 2-byte generation stamp,
	// which also requires an even stride when AlignBits is 0. When
	// binding a record type with [NewPool], Stride must equal the type's
	// size exactly.
	Stride int

	// AlignBits aligns record addresses to 1<<AlignBits bytes.
	//
	// 0 means no alignment; the stride is used as-is. When nonzero, the
	// effective stride is rounded up to the alignment.
	AlignBits uint8

	// Backing selects arena allocation. Default is [BackingHeap].
	Backing Backing
}

// Table is a fixed-capacity slot table.
//
// The table owns one contiguous arena of fixed-stride records plus an
// occupancy bitmap with one bit per slot. A slot's bit is set if and only
// if the record's stored generation is nonzero. The table itself exposes
// no allocate/free operations; mutation goes through an [Allocator].
//
// A Table must be obtained via [New]; the zero value is not usable.
type Table struct {
	_ [0]func() // prevent external construction

	name      string
	capacity  int
	stride    int // configured record size
	effStride int // stride rounded up to the alignment
	alignBits uint8

	signature uint32
	valid     bool

	mem    *arena
	bitmap []uint64 // occupancy, 1 bit per slot, 1 = occupied

	// Allocation bookkeeping, owned by the Allocator.
	nextIndex        int    // slot to start the free-slot search at
	firstUnallocated int    // slots at or beyond this index are free
	usedCount        int    // number of occupied slots
	nextSalt         uint16 // next primary generation to stamp
	altNextSalt      uint16 // next alternate-mode generation to stamp
}

// New constructs a table with the given configuration.
//
// Capacity, stride, and alignment are fixed for the table's lifetime.
// The returned table starts with every slot free.
//
// Possible errors:
//   - [ErrInvalidInput]: missing name, capacity/stride/alignment out of range
//   - mmap failures when [Options.Backing] is [BackingMmap]
func New(opts Options) (*Table, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}

	if opts.Capacity < 1 {
		return nil, fmt.Errorf("capacity %d must be >= 1: %w", opts.Capacity, ErrInvalidInput)
	}

	if opts.Capacity > maxCapacity {
		return nil, fmt.Errorf("capacity %d exceeds max %d: %w", opts.Capacity, maxCapacity, ErrInvalidInput)
	}

	if opts.Stride < minStrideBytes {
		return nil, fmt.Errorf("stride %d must be >= %d: %w", opts.Stride, minStrideBytes, ErrInvalidInput)
	}

	if opts.Stride > maxStrideBytes {
		return nil, fmt.Errorf("stride %d exceeds max %d: %w", opts.Stride, maxStrideBytes, ErrInvalidInput)
	}

	// The generation stamp is read as a native uint16, so every record
	// must start on an even address. Any nonzero alignment already
	// guarantees that.
	if opts.AlignBits == 0 && opts.Stride%2 != 0 {
		return nil, fmt.Errorf("stride %d must be even: %w", opts.Stride, ErrInvalidInput)
	}

	if opts.AlignBits > maxAlignBits {
		return nil, fmt.Errorf("align bits %d exceeds max %d: %w", opts.AlignBits, maxAlignBits, ErrInvalidInput)
	}

	effStride := effectiveStride(opts.Stride, opts.AlignBits)

	mem, err := newArena(opts.Capacity*effStride, opts.Backing)
	if err != nil {
		return nil, err
	}

	return &Table{
		name:      opts.Name,
		capacity:  opts.Capacity,
		stride:    opts.Stride,
		effStride: effStride,
		alignBits: opts.AlignBits,
		signature: tableSignature,
		valid:     true,
		mem:       mem,
		bitmap:    make([]uint64, (opts.Capacity+63)/64),
		// Generation 0 means "free". The two counters count in disjoint
		// halves of the generation space so one mode can never restamp a
		// slot with a generation the other mode issued earlier.
		nextSalt:    1,
		altNextSalt: altSaltBase,
	}, nil
}

// Close invalidates the table and releases its arena.
//
// After Close, lookups report every handle as absent and allocator
// operations return [ErrClosed]. Close is idempotent.
func (t *Table) Close() error {
	if !t.valid {
		return nil
	}

	t.valid = false

	return t.mem.release()
}

// Name returns the table's diagnostic tag.
func (t *Table) Name() string { return t.name }

// Capacity returns the fixed number of slots.
func (t *Table) Capacity() int { return t.capacity }

// Stride returns the configured record size in bytes.
func (t *Table) Stride() int { return t.stride }

// Len returns the number of occupied slots.
func (t *Table) Len() int { return t.usedCount }

// CheckedGet resolves a handle to its record.
//
// It returns absent when the handle is nil, its slot is out of range, or
// the generation stored in the slot differs from the handle's generation
// (the slot was freed, or freed and restamped, since the handle was
// issued). A nil, stale, and forged handle are deliberately
// indistinguishable: from the caller's perspective all three mean "this
// reference no longer resolves".
//
// This is the safety boundary of the table; the returned bytes are only
// valid until the next operation that mutates the table.
func (t *Table) CheckedGet(h Handle) ([]byte, bool) {
	if t == nil || !t.valid || t.signature != tableSignature {
		return nil, false
	}

	if h.IsNil() {
		return nil, false
	}

	gen := h.Generation()
	slot := int(h.Slot())

	// Generation 0 marks a free slot, so a handle carrying 0 could only
	// "match" unoccupied storage. Reject it outright.
	if gen == 0 || slot >= t.capacity {
		return nil, false
	}

	if t.generationAt(slot) != gen {
		return nil, false
	}

	return t.record(slot), true
}

// UncheckedGet computes a handle's record address with no validation.
//
// This exists purely as a performance escape hatch for callers that have
// already established validity, via [Table.CheckedGet] or by holding a
// freshly allocated handle. The returned bytes may belong to a free slot
// or a different occupant if the handle is stale; never call this on
// untrusted input. Use [Table.CheckedGet] if you need validity checking.
func (t *Table) UncheckedGet(h Handle) []byte {
	return t.record(int(h.Slot()))
}

// IsOccupied reports whether the slot at the given index is occupied.
//
// Out-of-range indices report false.
func (t *Table) IsOccupied(slot int) bool {
	if t == nil || !t.valid || slot < 0 || slot >= t.capacity {
		return false
	}

	return t.bitmap[slot>>6]&(1<<(slot&63)) != 0
}

// record returns the slot's backing bytes (stride long, not the padded
// effective stride).
func (t *Table) record(slot int) []byte {
	off := slot * t.effStride

	return t.mem.data[off : off+t.stride : off+t.stride]
}

// generationAt reads the generation stamp in the record's first two
// bytes. Native byte order: the typed view reads the same bytes through
// the [Datum] struct field.
func (t *Table) generationAt(slot int) uint16 {
	return *(*uint16)(unsafe.Pointer(&t.mem.data[slot*t.effStride]))
}

// stamp marks a slot occupied with the given nonzero generation.
//
// Called only by the Allocator, which owns the free-slot search.
func (t *Table) stamp(slot int, gen uint16) {
	*(*uint16)(unsafe.Pointer(&t.mem.data[slot*t.effStride])) = gen
	t.bitmap[slot>>6] |= 1 << (slot & 63)
	t.usedCount++

	if slot >= t.firstUnallocated {
		t.firstUnallocated = slot + 1
	}
}

// clear zeroes a slot's record and marks it free.
//
// Called only by the Allocator.
func (t *Table) clear(slot int) {
	rec := t.record(slot)
	for i := range rec {
		rec[i] = 0
	}

	t.bitmap[slot>>6] &^= 1 << (slot & 63)
	t.usedCount--
}
