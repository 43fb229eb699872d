package fixed

import "math"

// One8p24 is 1.0 in Q8.24.
const One8p24 int32 = 1 << 24

// Q31Multiply multiplies two Q1.31 values. The Q2.62 product is shifted left
// once and its upper 32 bits are returned.
func Q31Multiply(a, b int32) int32 {
	t := int64(a) * int64(b)
	return int32((t << 1) >> 32)
}

// Mul8p24x8p24 multiplies two Q8.24 values and returns a Q8.24 result,
// saturating to the int32 range when the Q16.48 product does not fit.
func Mul8p24x8p24(a, b int32) int32 {
	t := int64(a) * int64(b)
	hi := t >> 48
	if hi < -128 {
		return math.MinInt32
	}
	if hi > 127 {
		return math.MaxInt32
	}
	return int32((t << 8) >> 32)
}

// Mul1p31x8p24 applies a Q8.24 gain to a Q1.31 sample and returns a Q1.15
// sample, saturating to 0x7FFF or 0x8000 instead of wrapping.
func Mul1p31x8p24(sig, gain int32) int16 {
	t := int64(sig) * int64(gain)
	// Top 9 bits of the Q9.55 product must be all zeros or all ones.
	m := (t >> 48) >> 7
	if m < -1 {
		return math.MinInt16
	}
	if m > 0 {
		return math.MaxInt16
	}
	return int16((t << 8) >> 48)
}

// Scale1p31x8p24 applies a Q8.24 gain to a Q1.31 value and returns Q1.31,
// saturating to the int32 range.
func Scale1p31x8p24(sig, gain int32) int32 {
	return Saturate32((int64(sig) * int64(gain)) >> 24)
}

// Narrow shifts a 32-bit sample right by shift bits and saturates it to 16
// bits.
func Narrow(v int32, shift uint) int16 {
	r := v >> shift
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}

// Saturate32 clamps v to the int32 range.
func Saturate32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Add32 adds two int32 values with saturation.
func Add32(a, b int32) int32 {
	return Saturate32(int64(a) + int64(b))
}
