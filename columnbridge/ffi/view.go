package ffi

// #include "abi.h"
import "C"

import (
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// ArrayView reads the fields of an ArrowArray without taking ownership.
// It stays valid only until the array is released.
type ArrayView struct {
	arr *CArrowArray
}

// ViewArray wraps arr for reading.
func ViewArray(arr *CArrowArray) ArrayView { return ArrayView{arr: arr} }

func (v ArrayView) Len() int         { return int(v.arr.length) }
func (v ArrayView) NullCount() int   { return int(v.arr.null_count) }
func (v ArrayView) Offset() int      { return int(v.arr.offset) }
func (v ArrayView) NumBuffers() int  { return int(v.arr.n_buffers) }
func (v ArrayView) NumChildren() int { return int(v.arr.n_children) }
func (v ArrayView) Released() bool   { return isArrayReleased(v.arr) }

// BufferPtr returns the raw pointer of buffer i.
func (v ArrayView) BufferPtr(i int) unsafe.Pointer {
	if i < 0 || i >= v.NumBuffers() || v.arr.buffers == nil {
		return nil
	}
	return unsafe.Slice(v.arr.buffers, v.NumBuffers())[i]
}

// Buffer returns the first size bytes of buffer i, or nil when the buffer
// pointer is NULL.
func (v ArrayView) Buffer(i, size int) []byte {
	p := v.BufferPtr(i)
	if p == nil {
		return nil
	}
	if size == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(p), size)
}

// Child returns a view of child i.
func (v ArrayView) Child(i int) ArrayView {
	return ArrayView{arr: unsafe.Slice(v.arr.children, v.NumChildren())[i]}
}

// Dictionary returns a view of the dictionary node and whether one exists.
func (v ArrayView) Dictionary() (ArrayView, bool) {
	if v.arr.dictionary == nil {
		return ArrayView{}, false
	}
	return ArrayView{arr: v.arr.dictionary}, true
}

// SchemaView reads the fields of an ArrowSchema without taking ownership.
type SchemaView struct {
	schema *CArrowSchema
}

// ViewSchema wraps schema for reading.
func ViewSchema(schema *CArrowSchema) SchemaView { return SchemaView{schema: schema} }

func (v SchemaView) Format() string   { return C.GoString(v.schema.format) }
func (v SchemaView) Flags() int64     { return int64(v.schema.flags) }
func (v SchemaView) NumChildren() int { return int(v.schema.n_children) }
func (v SchemaView) Released() bool   { return isSchemaReleased(v.schema) }

// Name returns the field name; a NULL name reads as "".
func (v SchemaView) Name() string {
	if v.schema.name == nil {
		return ""
	}
	return C.GoString(v.schema.name)
}

func (v SchemaView) Nullable() bool { return v.Flags()&layout.FlagNullable != 0 }

// Metadata decodes the metadata blob.
func (v SchemaView) Metadata() (layout.Metadata, error) {
	return decodeMetadata(unsafe.Pointer(v.schema.metadata))
}

func (v SchemaView) Child(i int) SchemaView {
	return SchemaView{schema: unsafe.Slice(v.schema.children, v.NumChildren())[i]}
}

func (v SchemaView) Dictionary() (SchemaView, bool) {
	if v.schema.dictionary == nil {
		return SchemaView{}, false
	}
	return SchemaView{schema: v.schema.dictionary}, true
}

// cgoString copies a NUL-terminated C string.
func cgoString(p unsafe.Pointer) string { return C.GoString((*C.char)(p)) }
