// Package bcs implements the Binary Canonical Serialization used by the ledger:
// little-endian fixed-width integers, ULEB128 length prefixes and enum tags.
package bcs

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrUnexpectedEOF is returned when the input ends inside a value.
	ErrUnexpectedEOF = errors.New("bcs: unexpected end of input")

	// ErrLengthOverflow is returned for ULEB128 values that do not fit a length.
	ErrLengthOverflow = errors.New("bcs: length overflow")
)

// maxLength is the largest sequence length the ledger accepts.
const maxLength = 1<<31 - 1

// Encoder appends BCS values to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// U8 appends one byte.
func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

// Bool appends 0x01 for true and 0x00 for false.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.U8(1)
	}

	return e.U8(0)
}

// U16 appends a little-endian uint16.
func (e *Encoder) U16(v uint16) *Encoder {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return e
}

// U32 appends a little-endian uint32.
func (e *Encoder) U32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

// U64 appends a little-endian uint64.
func (e *Encoder) U64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

// U128 appends a little-endian 128-bit integer given as high and low words.
func (e *Encoder) U128(hi, lo uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, lo)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, hi)
	return e
}

// ULEB128 appends an unsigned LEB128 value.
func (e *Encoder) ULEB128(v uint64) *Encoder {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}

	e.buf = append(e.buf, byte(v))

	return e
}

// Len appends a sequence length (ULEB128).
func (e *Encoder) Len(n int) *Encoder {
	return e.ULEB128(uint64(n))
}

// Vec appends a length-prefixed byte vector.
func (e *Encoder) Vec(b []byte) *Encoder {
	e.Len(len(b))
	e.buf = append(e.buf, b...)

	return e
}

// Fixed appends raw bytes without a length prefix (fixed-size arrays).
func (e *Encoder) Fixed(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// String appends a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) *Encoder {
	e.Len(len(s))
	e.buf = append(e.buf, s...)

	return e
}

// None appends the tag of an absent Option.
func (e *Encoder) None() *Encoder {
	return e.U8(0)
}

// Some appends the tag of a present Option; the caller encodes the value next.
func (e *Encoder) Some() *Encoder {
	return e.U8(1)
}

// VecBytes encodes b as a BCS vector<u8> and returns the encoding.
func VecBytes(b []byte) []byte {
	return NewEncoder(len(b) + 5).Vec(b).Bytes()
}

// U64Bytes encodes v as a BCS u64 and returns the encoding.
func U64Bytes(v uint64) []byte {
	return NewEncoder(8).U64(v).Bytes()
}
