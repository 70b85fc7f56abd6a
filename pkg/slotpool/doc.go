// Package slotpool provides a fixed-capacity slot table addressed by
// generation-stamped handles.
//
// A [Table] owns a contiguous arena of fixed-size records. External code
// never holds pointers into the arena for longer than one operation;
// instead it holds a [Handle], a 32-bit value packing a 16-bit generation
// and a 16-bit slot index. When a slot is freed and later reused, its
// generation changes, so a handle captured before the recycle detectably
// fails to resolve instead of silently aliasing the new occupant.
//
// # Basic Usage
//
//	table, err := slotpool.New(slotpool.Options{
//	    Name:     "players",
//	    Capacity: 16,
//	    Stride:   int(unsafe.Sizeof(Player{})),
//	})
//	pool, err := slotpool.NewPool[Player](table)
//	alloc := slotpool.NewAllocator(table)
//
//	h, err := alloc.Allocate()
//	p, ok := pool.Get(h) // ok until h's slot is freed
//
//	alloc.Free(h)
//	_, ok = pool.Get(h) // ok == false: h is stale
//
// # Concurrency
//
// slotpool defines no internal locking. A single allocation authority
// must drive Allocate/Free, and any concurrent lookups or iteration must
// be externally serialized against it. All operations are synchronous and
// bounded by the table capacity.
//
// # Error Handling
//
// Lookup failure is not an error: [Table.CheckedGet] and [Pool.Get]
// report a stale, forged, or nil handle as a plain absent result, because
// handle staleness is a routine outcome. Errors are reserved for
// configuration mistakes ([ErrInvalidInput], [ErrIncompatible]),
// exhaustion ([ErrFull]), misuse after close ([ErrClosed]), and freeing
// through a handle that no longer resolves ([ErrStaleHandle]).
package slotpool
