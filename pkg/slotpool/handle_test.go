package slotpool_test

import (
	"testing"

	"github.com/calvinalkan/slotpool/pkg/slotpool"
)

func Test_NewHandle_Packs_Generation_High_And_Slot_Low(t *testing.T) {
	t.Parallel()

	h := slotpool.NewHandle(0xABCD, 0x1234)

	if uint32(h) != 0xABCD1234 {
		t.Fatalf("packed value: got %#x, want 0xABCD1234", uint32(h))
	}

	if got := h.Generation(); got != 0xABCD {
		t.Fatalf("Generation: got %#x, want 0xABCD", got)
	}

	if got := h.Slot(); got != 0x1234 {
		t.Fatalf("Slot: got %#x, want 0x1234", got)
	}
}

func Test_NewHandle_Roundtrips_For_Boundary_Field_Values(t *testing.T) {
	t.Parallel()

	values := []uint16{0, 1, 0x7FFF, 0x8000, 0xFFFE, 0xFFFF}

	for _, gen := range values {
		for _, slot := range values {
			h := slotpool.NewHandle(gen, slot)

			if h.Generation() != gen || h.Slot() != slot {
				t.Fatalf("roundtrip (%d, %d): got (%d, %d)", gen, slot, h.Generation(), h.Slot())
			}
		}
	}
}

func Test_Nil_Is_All_Ones_And_Only_All_Ones(t *testing.T) {
	t.Parallel()

	if uint32(slotpool.Nil) != 0xFFFFFFFF {
		t.Fatalf("Nil: got %#x, want 0xFFFFFFFF", uint32(slotpool.Nil))
	}

	if !slotpool.NewHandle(0xFFFF, 0xFFFF).IsNil() {
		t.Fatalf("NewHandle(0xFFFF, 0xFFFF).IsNil() = false")
	}

	// One bit off in either field is a non-nil handle.
	if slotpool.NewHandle(0xFFFE, 0xFFFF).IsNil() {
		t.Fatalf("NewHandle(0xFFFE, 0xFFFF).IsNil() = true")
	}

	if slotpool.NewHandle(0xFFFF, 0xFFFE).IsNil() {
		t.Fatalf("NewHandle(0xFFFF, 0xFFFE).IsNil() = true")
	}
}

func Test_Handle_Equality_Is_Bitwise(t *testing.T) {
	t.Parallel()

	a := slotpool.NewHandle(3, 7)
	b := slotpool.NewHandle(3, 7)
	c := slotpool.NewHandle(4, 7)

	if a != b {
		t.Fatalf("identical handles compare unequal")
	}

	if a == c {
		t.Fatalf("handles with different generations compare equal")
	}
}

func Test_Handle_String_Renders_Fields_And_Nil(t *testing.T) {
	t.Parallel()

	if got := slotpool.NewHandle(5, 12).String(); got != "5:12" {
		t.Fatalf("String: got %q, want %q", got, "5:12")
	}

	if got := slotpool.Nil.String(); got != "nil" {
		t.Fatalf("Nil.String: got %q, want %q", got, "nil")
	}
}
