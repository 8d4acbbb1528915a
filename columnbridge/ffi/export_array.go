package ffi

// #include "abi.h"
import "C"

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
)

// ExportArray fills out with the array node of col. The column tree is
// validated first; on error out is left untouched and nothing leaks.
// The caller owns out and must eventually invoke its release callback.
func (e *Exporter) ExportArray(col *data.Column, out *CArrowArray) error {
	if col == nil {
		return fmt.Errorf("%w: nil column", layout.ErrInvalidLayout)
	}
	if err := col.Validate(); err != nil {
		return err
	}
	return e.exportArray(col, out)
}

func (e *Exporter) exportArray(col *data.Column, out *CArrowArray) (err error) {
	h := e.newHandle(KindArray)
	defer func() {
		if err != nil {
			h.Release()
		}
	}()

	specs, err := layout.Layout(col.Type(), col.Nullable())
	if err != nil {
		return err
	}
	nbuf := len(specs)
	bufs := unsafe.Slice((*unsafe.Pointer)(h.own(allocPtrArray(nbuf))), nbuf)

	if col.NullN() > 0 {
		bufs[0] = writeValidity(h, col)
	}

	var node CArrowArray
	dt := col.Type()
	switch dt.ID {
	case layout.STRING, layout.LARGE_STRING:
		bufs[1], bufs[2], err = writeStrings(h, col.Values().([]string), dt.ID == layout.LARGE_STRING)
	case layout.DICTIONARY:
		bufs[1] = writeCodes(h, col.Codes(), dt.Index)
		dict := allocArray()
		h.own(unsafe.Pointer(dict))
		if err = e.exportArray(col.Dictionary(), dict); err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		h.adopt(func() { ReleaseCArrowArray(dict) })
		node.dictionary = dict
	case layout.STRUCT:
		children := col.Children()
		if len(children) > 0 {
			ptrs := unsafe.Slice((**CArrowArray)(h.own(allocPtrArray(len(children)))), len(children))
			for i, child := range children {
				c := allocArray()
				h.own(unsafe.Pointer(c))
				if err = e.exportArray(child, c); err != nil {
					return fmt.Errorf("field %q: %w", dt.Fields[i].Name, err)
				}
				h.adopt(func() { ReleaseCArrowArray(c) })
				ptrs[i] = c
			}
			node.children = unsafe.SliceData(ptrs)
		}
		node.n_children = C.int64_t(len(children))
	default:
		bufs[1], err = writeValues(h, col)
	}
	if err != nil {
		return err
	}

	node.length = C.int64_t(col.Len())
	node.null_count = C.int64_t(col.NullN())
	node.offset = 0
	node.n_buffers = C.int64_t(nbuf)
	node.buffers = (*unsafe.Pointer)(unsafe.SliceData(bufs))

	id := h.register()
	*out = node
	bindArray(out, id)
	return nil
}

func writeValidity(h *ExportHandle, col *data.Column) unsafe.Pointer {
	b, p := h.buffer(int(bitutil.BytesForBits(int64(col.Len()))))
	copy(b, col.Validity().Bytes())
	return p
}

// fixedTraits is the subset of arrow's per-type traits used to lay out
// fixed-width values buffers.
type fixedTraits[T any] interface {
	BytesRequired(n int) int
	CastFromBytes(b []byte) []T
}

func writeFixed[T any](h *ExportHandle, values []T, traits fixedTraits[T]) unsafe.Pointer {
	b, p := h.buffer(traits.BytesRequired(len(values)))
	if len(values) > 0 {
		copy(traits.CastFromBytes(b), values)
	}
	return p
}

func writeValues(h *ExportHandle, col *data.Column) (unsafe.Pointer, error) {
	switch v := col.Values().(type) {
	case []bool:
		b, p := h.buffer(int(bitutil.BytesForBits(int64(len(v)))))
		for i, ok := range v {
			if ok {
				bitutil.SetBit(b, i)
			}
		}
		return p, nil
	case []int8:
		return writeFixed(h, v, arrow.Int8Traits), nil
	case []int16:
		return writeFixed(h, v, arrow.Int16Traits), nil
	case []int32:
		return writeFixed(h, v, arrow.Int32Traits), nil
	case []int64:
		return writeFixed(h, v, arrow.Int64Traits), nil
	case []uint8:
		return writeFixed(h, v, arrow.Uint8Traits), nil
	case []uint16:
		return writeFixed(h, v, arrow.Uint16Traits), nil
	case []uint32:
		return writeFixed(h, v, arrow.Uint32Traits), nil
	case []uint64:
		return writeFixed(h, v, arrow.Uint64Traits), nil
	case []float32:
		return writeFixed(h, v, arrow.Float32Traits), nil
	case []float64:
		return writeFixed(h, v, arrow.Float64Traits), nil
	}
	return nil, fmt.Errorf("%w: no values storage for %s", layout.ErrInvalidLayout, col.Type())
}

// writeStrings lays out the offsets and data buffers of a string column.
// Null slots are empty, so their offsets repeat the previous one.
func writeStrings(h *ExportHandle, values []string, large bool) (offsets, chars unsafe.Pointer, err error) {
	total := 0
	for _, s := range values {
		total += len(s)
	}
	if !large && total > math.MaxInt32 {
		return nil, nil, fmt.Errorf("%w: %d bytes of string data exceed 32-bit offsets",
			layout.ErrIndexOutOfRange, total)
	}

	buf, chars := h.buffer(total)
	pos := 0
	if large {
		ob, op := h.buffer(arrow.Int64Traits.BytesRequired(len(values) + 1))
		offs := arrow.Int64Traits.CastFromBytes(ob)
		for i, s := range values {
			pos += copy(buf[pos:], s)
			offs[i+1] = int64(pos)
		}
		return op, chars, nil
	}
	ob, op := h.buffer(arrow.Int32Traits.BytesRequired(len(values) + 1))
	offs := arrow.Int32Traits.CastFromBytes(ob)
	for i, s := range values {
		pos += copy(buf[pos:], s)
		offs[i+1] = int32(pos)
	}
	return op, chars, nil
}

type code interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func narrow[T code](codes []uint64) []T {
	out := make([]T, len(codes))
	for i, c := range codes {
		out[i] = T(c)
	}
	return out
}

// writeCodes lays out dictionary codes at the width of the index type.
// Codes were range-checked against the index type by Validate.
func writeCodes(h *ExportHandle, codes []uint64, index layout.TypeID) unsafe.Pointer {
	switch index {
	case layout.INT8:
		return writeFixed(h, narrow[int8](codes), arrow.Int8Traits)
	case layout.UINT8:
		return writeFixed(h, narrow[uint8](codes), arrow.Uint8Traits)
	case layout.INT16:
		return writeFixed(h, narrow[int16](codes), arrow.Int16Traits)
	case layout.UINT16:
		return writeFixed(h, narrow[uint16](codes), arrow.Uint16Traits)
	case layout.INT32:
		return writeFixed(h, narrow[int32](codes), arrow.Int32Traits)
	case layout.UINT32:
		return writeFixed(h, narrow[uint32](codes), arrow.Uint32Traits)
	case layout.INT64:
		return writeFixed(h, narrow[int64](codes), arrow.Int64Traits)
	}
	return writeFixed(h, codes, arrow.Uint64Traits)
}
