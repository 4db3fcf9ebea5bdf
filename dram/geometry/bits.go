package geometry

import "math/bits"

// gather packs the address bits selected by mask into the low bits of the
// result, keeping their order.
func gather(addr, mask uint64) uint64 {
	value := uint64(0)
	pos := uint(0)

	for m := mask; m != 0; m &= m - 1 {
		bit := uint(bits.TrailingZeros64(m))
		value |= (addr >> bit & 1) << pos
		pos++
	}

	return value
}

// scatter is the inverse of gather. It spreads the low bits of value over
// the bits selected by mask.
func scatter(value, mask uint64) uint64 {
	addr := uint64(0)
	pos := uint(0)

	for m := mask; m != 0; m &= m - 1 {
		bit := uint(bits.TrailingZeros64(m))
		addr |= (value >> pos & 1) << bit
		pos++
	}

	return addr
}

func parity(x uint64) uint64 {
	return uint64(bits.OnesCount64(x) & 1)
}

// fieldMax returns the largest value a field selected by mask can hold.
func fieldMax(mask uint64) uint64 {
	n := bits.OnesCount64(mask)
	if n == 64 {
		return ^uint64(0)
	}

	return 1<<uint(n) - 1
}
