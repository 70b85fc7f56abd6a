package slotpool

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Backing selects how a table's arena is allocated.
type Backing int

const (
	// BackingHeap allocates the arena on the Go heap.
	//
	// The block is 8-byte aligned. This is the default.
	BackingHeap Backing = iota

	// BackingMmap allocates the arena as an anonymous private mapping.
	//
	// The block is page aligned and lives outside the Go heap; it is
	// released by [Table.Close]. Use this when records need page
	// alignment or when the arena should not count against GC scanning.
	BackingMmap
)

// ArenaSize returns the total arena size in bytes for a table holding
// capacity records of the given stride, with record addresses aligned to
// 1<<alignBits bytes (alignBits 0 = no alignment).
//
// The per-record stride is rounded up to the alignment, so the result is
// capacity * effectiveStride(stride, alignBits).
func ArenaSize(stride, capacity int, alignBits uint8) int {
	return capacity * effectiveStride(stride, alignBits)
}

// effectiveStride rounds stride up to a multiple of 1<<alignBits.
func effectiveStride(stride int, alignBits uint8) int {
	if alignBits == 0 {
		return stride
	}

	align := 1 << alignBits

	return (stride + align - 1) &^ (align - 1)
}

// arena is one contiguous zeroed block of record storage.
type arena struct {
	data   []byte
	mapped bool // true if data came from mmap and must be munmap'd
}

// newArena allocates a zeroed arena of the given size.
func newArena(size int, backing Backing) (*arena, error) {
	switch backing {
	case BackingHeap:
		// Back the bytes with a []uint64 so the base address is 8-byte
		// aligned regardless of size; make([]byte, n) only guarantees
		// byte alignment.
		words := make([]uint64, (size+7)/8)

		return &arena{
			data: unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
		}, nil

	case BackingMmap:
		data, err := unix.Mmap(-1, 0, size,
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("mmap arena (%d bytes): %w", size, err)
		}

		return &arena{data: data, mapped: true}, nil

	default:
		return nil, fmt.Errorf("unknown backing %d: %w", backing, ErrInvalidInput)
	}
}

// release returns the arena's memory to the system.
//
// After release the arena must not be accessed.
func (a *arena) release() error {
	if !a.mapped {
		a.data = nil
		return nil
	}

	data := a.data
	a.data = nil

	return unix.Munmap(data)
}
