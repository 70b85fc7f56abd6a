package slotpool

// Hardcoded implementation limits.
//
// These limits are intentionally generous; they exist primarily to:
//   - keep arithmetic safely away from overflow boundaries
//   - bound resource usage for configurations the project does not test
//   - keep every live handle representable in the 16-bit slot field
//
// All limit violations are treated as programming/configuration errors and
// return ErrInvalidInput.
const (
	// Minimum allowed record stride (bytes). Every record begins with a
	// 2-byte generation stamp.
	minStrideBytes = 2

	// Maximum allowed record stride (bytes).
	maxStrideBytes = 1 << 20 // 1 MiB

	// Maximum allowed slot capacity.
	//
	// The slot field of a handle is 16 bits, and index 0xFFFF is reserved:
	// if it were issued, a live handle with generation 0xFFFF would be
	// bit-identical to the nil handle.
	maxCapacity = 0xFFFF

	// Maximum allowed record alignment, expressed as a power-of-two bit
	// count. 12 = page alignment, the most either arena backing provides.
	maxAlignBits = 12
)
