package ffi

// #include "abi.h"
import "C"

import (
	"bytes"
	"fmt"
	"strings"
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow/endian"
)

// ExportField fills out with the schema node describing f. On error out
// is left untouched.
func (e *Exporter) ExportField(f layout.Field, out *CArrowSchema) error {
	if err := f.Type.Validate(); err != nil {
		return err
	}
	if err := checkCStrings(f); err != nil {
		return err
	}
	return e.exportSchema(f, out)
}

// checkCStrings rejects names and time zones holding a NUL byte, which a C
// string would cut short.
func checkCStrings(f layout.Field) error {
	if strings.IndexByte(f.Name, 0) >= 0 {
		return fmt.Errorf("%w: field name %q contains NUL", layout.ErrInvalidLayout, f.Name)
	}
	dt := f.Type
	switch dt.ID {
	case layout.TIMESTAMP:
		if strings.IndexByte(dt.TimeZone, 0) >= 0 {
			return fmt.Errorf("%w: time zone %q contains NUL", layout.ErrInvalidLayout, dt.TimeZone)
		}
	case layout.DICTIONARY:
		return checkCStrings(layout.Field{Type: *dt.Value})
	case layout.STRUCT:
		for _, child := range dt.Fields {
			if err := checkCStrings(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportSchema fills out with the schema of a record batch made of fields:
// a non-nullable struct with an empty name.
func (e *Exporter) ExportSchema(fields []layout.Field, out *CArrowSchema) error {
	return e.ExportField(layout.Field{Type: layout.Struct(fields...)}, out)
}

func (e *Exporter) exportSchema(f layout.Field, out *CArrowSchema) (err error) {
	h := e.newHandle(KindSchema)
	defer func() {
		if err != nil {
			h.Release()
		}
	}()

	format, err := layout.FormatCode(f.Type)
	if err != nil {
		return err
	}

	var node CArrowSchema
	node.format = (*C.char)(h.cstring(format))
	node.name = (*C.char)(h.cstring(f.Name))
	if f.Metadata.Len() > 0 {
		node.metadata = (*C.char)(h.cbytes(encodeMetadata(f.Metadata)))
	}
	if f.Nullable {
		node.flags |= C.int64_t(layout.FlagNullable)
	}

	switch f.Type.ID {
	case layout.DICTIONARY:
		if f.Type.Ordered {
			node.flags |= C.int64_t(layout.FlagDictionaryOrdered)
		}
		dict := allocSchema()
		h.own(unsafe.Pointer(dict))
		value := layout.Field{Type: *f.Type.Value, Nullable: true}
		if err = e.exportSchema(value, dict); err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		h.adopt(func() { ReleaseCArrowSchema(dict) })
		node.dictionary = dict
	case layout.STRUCT:
		fields := f.Type.Fields
		if len(fields) > 0 {
			ptrs := unsafe.Slice((**CArrowSchema)(h.own(allocPtrArray(len(fields)))), len(fields))
			for i, child := range fields {
				c := allocSchema()
				h.own(unsafe.Pointer(c))
				if err = e.exportSchema(child, c); err != nil {
					return fmt.Errorf("field %q: %w", child.Name, err)
				}
				h.adopt(func() { ReleaseCArrowSchema(c) })
				ptrs[i] = c
			}
			node.children = unsafe.SliceData(ptrs)
		}
		node.n_children = C.int64_t(len(fields))
	}

	id := h.register()
	*out = node
	bindSchema(out, id)
	return nil
}

// encodeMetadata serializes md in the C Data Interface layout: an int32
// pair count, then per pair the key and value each prefixed by its int32
// byte length, all in native byte order.
func encodeMetadata(md layout.Metadata) []byte {
	var buf bytes.Buffer
	put := func(n int) {
		var b [4]byte
		endian.Native.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
	put(md.Len())
	for i, k := range md.Keys() {
		v := md.Values()[i]
		put(len(k))
		buf.WriteString(k)
		put(len(v))
		buf.WriteString(v)
	}
	return buf.Bytes()
}

// decodeMetadata parses the layout written by encodeMetadata. A nil
// pointer decodes to empty metadata.
func decodeMetadata(p unsafe.Pointer) (layout.Metadata, error) {
	if p == nil {
		return layout.Metadata{}, nil
	}
	read := func(off int) int {
		return int(int32(endian.Native.Uint32(unsafe.Slice((*byte)(unsafe.Add(p, off)), 4))))
	}
	n := read(0)
	if n < 0 {
		return layout.Metadata{}, fmt.Errorf("%w: negative metadata pair count %d", layout.ErrFormatMismatch, n)
	}
	keys := make([]string, n)
	values := make([]string, n)
	off := 4
	str := func() (string, error) {
		l := read(off)
		off += 4
		if l < 0 {
			return "", fmt.Errorf("%w: negative metadata length %d", layout.ErrFormatMismatch, l)
		}
		s := string(unsafe.Slice((*byte)(unsafe.Add(p, off)), l))
		off += l
		return s, nil
	}
	for i := 0; i < n; i++ {
		var err error
		if keys[i], err = str(); err != nil {
			return layout.Metadata{}, err
		}
		if values[i], err = str(); err != nil {
			return layout.Metadata{}, err
		}
	}
	return layout.NewMetadata(keys, values), nil
}
