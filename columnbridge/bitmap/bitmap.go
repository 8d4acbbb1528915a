// Package bitmap implements the bit-packed validity vector of the Arrow
// columnar format: one bit per element, LSB-first, 1 meaning valid.
package bitmap

import (
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
)

// Bitmap is a bounds-checked validity bitmap with an incrementally
// maintained null count.
type Bitmap struct {
	bits   []byte
	length int
	nulls  int
}

// New returns a bitmap of length elements, all valid.
func New(length int) *Bitmap {
	b := &Bitmap{
		bits:   make([]byte, bitutil.BytesForBits(int64(length))),
		length: length,
	}
	for i := range b.bits {
		b.bits[i] = 0xFF
	}
	return b
}

// FromValid builds a bitmap with one bit per entry of valid.
func FromValid(valid []bool) *Bitmap {
	b := &Bitmap{
		bits:   make([]byte, bitutil.BytesForBits(int64(len(valid)))),
		length: len(valid),
	}
	for i, v := range valid {
		if v {
			bitutil.SetBit(b.bits, i)
		} else {
			b.nulls++
		}
	}
	return b
}

// FromBytes copies the first length bits of bits, starting at bit offset.
// Padding bits beyond length are never read.
func FromBytes(bits []byte, offset, length int) (*Bitmap, error) {
	if offset < 0 || length < 0 || int64(offset+length) > int64(len(bits))*8 {
		return nil, fmt.Errorf("%w: %d bits at offset %d over %d bytes",
			layout.ErrIndexOutOfRange, length, offset, len(bits))
	}
	b := &Bitmap{
		bits:   make([]byte, bitutil.BytesForBits(int64(length))),
		length: length,
	}
	bitutil.CopyBitmap(bits, offset, length, b.bits, 0)
	b.nulls = length - bitutil.CountSetBits(b.bits, 0, length)
	return b, nil
}

// Len returns the number of elements covered.
func (b *Bitmap) Len() int { return b.length }

// NullCount returns the number of cleared bits.
func (b *Bitmap) NullCount() int { return b.nulls }

// Bytes returns the packed bits, ceil(Len()/8) bytes long.
func (b *Bitmap) Bytes() []byte { return b.bits }

// IsValid reports whether element i is non-null.
func (b *Bitmap) IsValid(i int) (bool, error) {
	if i < 0 || i >= b.length {
		return false, fmt.Errorf("%w: bitmap index %d, length %d", layout.ErrIndexOutOfRange, i, b.length)
	}
	return bitutil.BitIsSet(b.bits, i), nil
}

// Set marks element i valid or null.
func (b *Bitmap) Set(i int, valid bool) error {
	if i < 0 || i >= b.length {
		return fmt.Errorf("%w: bitmap index %d, length %d", layout.ErrIndexOutOfRange, i, b.length)
	}
	was := bitutil.BitIsSet(b.bits, i)
	if was == valid {
		return nil
	}
	bitutil.SetBitTo(b.bits, i, valid)
	if valid {
		b.nulls--
	} else {
		b.nulls++
	}
	return nil
}

// Valid expands the bitmap into one bool per element.
func (b *Bitmap) Valid() []bool {
	out := make([]bool, b.length)
	for i := range out {
		out[i] = bitutil.BitIsSet(b.bits, i)
	}
	return out
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	c := *b
	c.bits = append([]byte(nil), b.bits...)
	return &c
}
