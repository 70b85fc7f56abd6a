package slotpool

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Datum is the generation header every pool record type must embed as
// its first field:
//
//	type Player struct {
//	    slotpool.Datum
//	    Score int32
//	    ...
//	}
//
// The table stamps the generation directly into these two bytes; record
// code can read it but never writes it. In particular, do not assign a
// whole struct value over a live record (that zeroes the stamp and the
// slot would read as free); set the domain fields individually.
type Datum struct {
	salt uint16
}

// Generation returns the record's current generation stamp.
func (d *Datum) Generation() uint16 { return d.salt }

// IsNull reports whether the record's slot is currently free.
func (d *Datum) IsNull() bool { return d.salt == 0 }

// Seq is the iterator type returned by [Pool.All].
//
// It matches the shape of iter.Seq2[Handle, *T] so callers can range over
// it directly. The slotpool package avoids depending on iter.
type Seq[T any] func(yield func(Handle, *T) bool)

// Pool statically binds a [Table] to one record type.
//
// Its sole job is type narrowing: every operation delegates to the
// untyped table with the result cast to *T, adding no validation and no
// runtime cost.
type Pool[T any] struct {
	table *Table
}

// NewPool binds a record type to a table.
//
// The binding is checked structurally at construction time, because the
// table cannot detect a layout mismatch later:
//   - T must be a struct whose first field is a [Datum] (the generation
//     stamp must sit in the record's first two bytes)
//   - T's size must equal the table's configured stride exactly
//   - the table's effective stride must be a multiple of T's alignment
//   - T must not contain Go pointers (records are plain value data, and
//     the arena may live outside the Go heap)
//
// All violations return [ErrIncompatible]; a mismatched pool is never
// produced.
func NewPool[T any](t *Table) (*Pool[T], error) {
	if t == nil || !t.valid {
		return nil, fmt.Errorf("table is nil or closed: %w", ErrIncompatible)
	}

	rt := reflect.TypeFor[T]()

	if rt.Kind() != reflect.Struct || rt.NumField() == 0 ||
		rt.Field(0).Type != reflect.TypeFor[Datum]() {
		return nil, fmt.Errorf("%s must be a struct with slotpool.Datum as its first field: %w",
			rt, ErrIncompatible)
	}

	if int(rt.Size()) != t.stride {
		return nil, fmt.Errorf("%s is %d bytes but table %q has stride %d: %w",
			rt, rt.Size(), t.name, t.stride, ErrIncompatible)
	}

	if t.effStride%rt.Align() != 0 {
		return nil, fmt.Errorf("table %q stride %d is not a multiple of %s alignment %d: %w",
			t.name, t.effStride, rt, rt.Align(), ErrIncompatible)
	}

	if hasPointers(rt) {
		return nil, fmt.Errorf("%s contains Go pointers: %w", rt, ErrIncompatible)
	}

	return &Pool[T]{table: t}, nil
}

// Table returns the underlying untyped table.
func (p *Pool[T]) Table() *Table { return p.table }

// Get resolves a handle to its typed record.
//
// Validation is exactly [Table.CheckedGet]; the returned pointer is only
// valid until the next operation that mutates the table.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	rec, ok := p.table.CheckedGet(h)
	if !ok {
		return nil, false
	}

	return (*T)(unsafe.Pointer(&rec[0])), true
}

// At returns a handle's typed record with no validation.
//
// Same escape-hatch contract as [Table.UncheckedGet]: callers must have
// already established validity. Use [Pool.Get] if you need checking.
func (p *Pool[T]) At(h Handle) *T {
	return (*T)(unsafe.Pointer(&p.table.UncheckedGet(h)[0]))
}

// All returns a sequence over every live record, in increasing slot
// order.
//
//	for h, rec := range pool.All() { ... }
func (p *Pool[T]) All() Seq[T] {
	return func(yield func(Handle, *T) bool) {
		it := NewIterator(p.table)

		for {
			rec, ok := it.Next()
			if !ok {
				return
			}

			if !yield(it.Handle(), (*T)(unsafe.Pointer(&rec[0]))) {
				return
			}
		}
	}
}

// Begin returns an iterator positioned on the first live record, or at
// the terminal state if the table is empty.
func (p *Pool[T]) Begin() *Iterator {
	it := NewIterator(p.table)
	it.Next()

	return it
}

// End returns an iterator in the terminal state, for structural
// comparison against an advancing iterator via [Iterator.Equal].
func (p *Pool[T]) End() *Iterator {
	return &Iterator{table: p.table, index: p.table.capacity, current: Nil}
}

// Next narrows [Iterator.Next] to the pool's record type.
func (p *Pool[T]) Next(it *Iterator) (*T, bool) {
	rec, ok := it.Next()
	if !ok {
		return nil, false
	}

	return (*T)(unsafe.Pointer(&rec[0])), true
}

// hasPointers reports whether values of the type contain Go pointers.
func hasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return hasPointers(rt.Elem())
	case reflect.Struct:
		for i := range rt.NumField() {
			if hasPointers(rt.Field(i).Type) {
				return true
			}
		}

		return false
	default:
		// Pointers, maps, slices, strings, chans, funcs, interfaces.
		return true
	}
}
