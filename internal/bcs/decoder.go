package bcs

import "encoding/binary"

// Decoder reads BCS values. The first error is sticky: once set, every later
// read returns a zero value and Err reports the original failure.
type Decoder struct {
	data []byte
	pos  int
	err  error
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}

	if n < 0 || d.Remaining() < n {
		d.err = ErrUnexpectedEOF
		return nil
	}

	b := d.data[d.pos : d.pos+n]
	d.pos += n

	return b
}

// U8 reads one byte.
func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

// Bool reads a boolean byte.
func (d *Decoder) Bool() bool {
	return d.U8() != 0
}

// U16 reads a little-endian uint16.
func (d *Decoder) U16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32.
func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64.
func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(b)
}

// ULEB128 reads an unsigned LEB128 value of at most 5 bytes.
func (d *Decoder) ULEB128() uint64 {
	var v uint64

	for i := 0; i < 5; i++ {
		b := d.take(1)
		if b == nil {
			return 0
		}

		v |= uint64(b[0]&0x7f) << (7 * i)
		if b[0]&0x80 == 0 {
			return v
		}
	}

	if d.err == nil {
		d.err = ErrLengthOverflow
	}

	return 0
}

// Len reads a sequence length.
func (d *Decoder) Len() int {
	v := d.ULEB128()
	if v > maxLength {
		if d.err == nil {
			d.err = ErrLengthOverflow
		}

		return 0
	}

	return int(v)
}

// Vec reads a length-prefixed byte vector. The result is a copy.
func (d *Decoder) Vec() []byte {
	n := d.Len()
	b := d.take(n)
	if b == nil {
		return nil
	}

	out := make([]byte, n)
	copy(out, b)

	return out
}

// Fixed reads exactly n raw bytes into a new slice.
func (d *Decoder) Fixed(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}

	out := make([]byte, n)
	copy(out, b)

	return out
}

// Str reads a length-prefixed string.
func (d *Decoder) Str() string {
	return string(d.Vec())
}
