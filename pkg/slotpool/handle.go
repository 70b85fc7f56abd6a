package slotpool

import "fmt"

// Handle is an opaque 32-bit reference to a slot in a [Table].
//
// The encoding is a fixed contract shared with whatever allocation
// authority stamps the slots: the high 16 bits hold the generation, the
// low 16 bits hold the slot index.
//
//	bits 31..16  generation (0 never denotes a live record)
//	bits 15..0   slot index
//
// Handles are immutable value data. Equality is bitwise; a handle becomes
// semantically stale the instant its slot is freed or restamped, and
// [Table.CheckedGet] is the only safe way to detect that.
type Handle uint32

// Nil is the canonical null handle. It never denotes a live slot.
const Nil Handle = 0xFFFFFFFF

// NewHandle packs a generation and a slot index into a handle.
//
// No validation is performed: composing an out-of-range slot is legal at
// the type level and simply fails [Table.CheckedGet] later.
func NewHandle(generation, slot uint16) Handle {
	return Handle(uint32(generation)<<16 | uint32(slot))
}

// Generation returns the handle's generation field.
func (h Handle) Generation() uint16 {
	return uint16(h >> 16)
}

// Slot returns the handle's slot index field.
func (h Handle) Slot() uint16 {
	return uint16(h & 0xFFFF)
}

// IsNil reports whether the handle is [Nil].
func (h Handle) IsNil() bool {
	return h == Nil
}

// String renders the handle as "generation:slot", or "nil".
func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}

	return fmt.Sprintf("%d:%d", h.Generation(), h.Slot())
}
