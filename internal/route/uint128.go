package route

import (
	"errors"
	"math/bits"
)

// ErrUint128Range is returned when a decimal value does not fit in 128 bits.
var ErrUint128Range = errors.New("value out of u128 range")

// Uint128 is an unsigned 128-bit integer split into high and low words.
type Uint128 struct {
	Hi uint64 // Hi holds bits 64..127
	Lo uint64 // Lo holds bits 0..63
}

// U128 widens a uint64.
func U128(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// ParseUint128 parses a base-10 string.
func ParseUint128(s string) (Uint128, error) {
	if s == "" {
		return Uint128{}, ErrUint128Range
	}

	var v Uint128

	for _, r := range s {
		if r < '0' || r > '9' {
			return Uint128{}, ErrUint128Range
		}

		hi, lo, carry := v.mulWord(10)
		if carry != 0 {
			return Uint128{}, ErrUint128Range
		}

		var c uint64
		lo, c = bits.Add64(lo, uint64(r-'0'), 0)
		hi, c = bits.Add64(hi, 0, c)

		if c != 0 {
			return Uint128{}, ErrUint128Range
		}

		v = Uint128{Hi: hi, Lo: lo}
	}

	return v, nil
}

// MustUint128 parses s and panics on error. Intended for constants.
func MustUint128(s string) Uint128 {
	v, err := ParseUint128(s)
	if err != nil {
		panic(err)
	}

	return v
}

// Cmp returns -1, 0 or +1.
func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi, u.Hi == v.Hi && u.Lo < v.Lo:
		return -1
	case u == v:
		return 0
	default:
		return 1
	}
}

// Add64 returns u + v, wrapping on overflow.
func (u Uint128) Add64(v uint64) Uint128 {
	lo, c := bits.Add64(u.Lo, v, 0)
	return Uint128{Hi: u.Hi + c, Lo: lo}
}

// Sub64 returns u - v, wrapping on underflow.
func (u Uint128) Sub64(v uint64) Uint128 {
	lo, b := bits.Sub64(u.Lo, v, 0)
	return Uint128{Hi: u.Hi - b, Lo: lo}
}

// mulWord returns the 192-bit product u*m as (hi, lo, top).
func (u Uint128) mulWord(m uint64) (hi, lo, top uint64) {
	p1, p0 := bits.Mul64(u.Lo, m)
	q1, q0 := bits.Mul64(u.Hi, m)

	mid, c := bits.Add64(p1, q0, 0)

	return mid, p0, q1 + c
}

// MulDiv returns u*m/d and whether the division left a remainder. ok is false
// when d is zero or the quotient exceeds 128 bits.
func (u Uint128) MulDiv(m, d uint64) (q Uint128, exact, ok bool) {
	if d == 0 {
		return Uint128{}, false, false
	}

	mid, low, top := u.mulWord(m)

	q2, r := bits.Div64(0, top, d)
	q1, r := bits.Div64(r, mid, d)
	q0, r := bits.Div64(r, low, d)

	if q2 != 0 {
		return Uint128{}, false, false
	}

	return Uint128{Hi: q1, Lo: q0}, r == 0, true
}

// String formats u in base 10.
func (u Uint128) String() string {
	if u.Hi == 0 && u.Lo == 0 {
		return "0"
	}

	var buf [40]byte
	i := len(buf)

	for u.Hi != 0 || u.Lo != 0 {
		var r uint64
		u.Hi, r = bits.Div64(0, u.Hi, 10)
		u.Lo, r = bits.Div64(r, u.Lo, 10)

		i--
		buf[i] = byte('0' + r)
	}

	return string(buf[i:])
}
