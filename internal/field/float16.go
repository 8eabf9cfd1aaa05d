package field

import "math"

// EncodeHalf converts float32 channel data into IEEE 754-2008 binary16 bits
// stored in dst. dst must be at least len(src).
func EncodeHalf(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = halfBits(v)
	}
}

// DecodeHalf expands binary16 channel data into float32 values.
// dst must be at least len(src).
func DecodeHalf(dst []float32, src []uint16) {
	for i, v := range src {
		dst[i] = halfValue(v)
	}
}

// QuantizeHalf rounds v to the nearest value representable in binary16.
func QuantizeHalf(v float32) float32 {
	return halfValue(halfBits(v))
}

// QuantizeHalfSlice rounds every element of data in place.
func QuantizeHalfSlice(data []float32) {
	for i, v := range data {
		data[i] = halfValue(halfBits(v))
	}
}

func halfBits(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int((bits >> 23) & 0xff)
	mant := bits & 0x7fffff

	switch exp {
	case 0xff:
		if mant == 0 {
			return sign | 0x7c00
		}
		// Keep NaN a NaN after truncating the payload.
		mant >>= 13
		if mant == 0 {
			mant = 1
		}
		return sign | 0x7c00 | uint16(mant)
	case 0:
		if mant == 0 {
			return sign
		}
	}

	e := exp - 127 + 15
	if e >= 0x1f {
		return sign | 0x7c00
	}
	if e <= 0 {
		if e < -10 {
			return sign
		}
		m := (mant | 0x800000) >> uint(1-e)
		m += 0x1000
		return sign | uint16(m>>13)
	}

	mant += 0x1000
	if mant&0x800000 != 0 {
		mant = 0
		e++
		if e >= 0x1f {
			return sign | 0x7c00
		}
	}
	return sign | uint16(e<<10) | uint16(mant>>13)
}

func halfValue(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int((h >> 10) & 0x1f)
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: shift until the implicit bit appears.
		exp = -14
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | uint32(exp+127)<<23 | mant<<13)
	case 0x1f:
		bits := sign | 0x7f800000 | mant<<13
		if mant != 0 {
			bits |= 1
		}
		return math.Float32frombits(bits)
	}
	return math.Float32frombits(sign | uint32(exp-15+127)<<23 | mant<<13)
}
