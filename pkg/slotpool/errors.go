package slotpool

import "errors"

// Sentinel errors returned by slotpool operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, slotpool.ErrFull) {
//	    // evict or grow elsewhere; the table never grows
//	}
var (
	// ErrInvalidInput indicates invalid construction options.
	//
	// Common causes: zero capacity, capacity above 65535, stride smaller
	// than the generation stamp, stride or alignment over the hardcoded
	// limits.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("slotpool: invalid input")

	// ErrIncompatible indicates a record type does not fit the table it
	// is being bound to.
	//
	// This occurs when the type's size disagrees with the table stride,
	// when the type does not start with a [Datum] header, when the
	// effective stride is not a multiple of the type's alignment, or when
	// the type contains Go pointers.
	//
	// This is a programming error; fix the record type or the table
	// configuration.
	ErrIncompatible = errors.New("slotpool: incompatible")

	// ErrFull indicates every slot in the table is occupied.
	//
	// Recovery: free slots, or recreate the table with a larger
	// [Options.Capacity]. Allocation never reuses an occupied slot.
	ErrFull = errors.New("slotpool: full")

	// ErrStaleHandle indicates [Allocator.Free] was given a handle that
	// no longer resolves (nil, out of range, or generation mismatch).
	//
	// The slot's current occupant, if any, is left untouched.
	ErrStaleHandle = errors.New("slotpool: stale handle")

	// ErrClosed indicates the [Table] has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("slotpool: closed")
)
