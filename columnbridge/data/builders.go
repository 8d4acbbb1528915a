package data

import (
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/bitmap"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// Primitive lists the Go storage types of non-nested columns.
type Primitive interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float32 | float64 | string
}

type options struct {
	valid    []bool
	nullable *bool
}

// Option configures a column under construction.
type Option func(*options)

// WithValidity attaches a validity mask; false marks a null slot.
// A column with a mask is nullable unless WithNullable(false) says otherwise.
func WithValidity(valid []bool) Option {
	return func(o *options) { o.valid = valid }
}

// WithNullable declares the column's nullability explicitly.
func WithNullable(nullable bool) Option {
	return func(o *options) { o.nullable = &nullable }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) apply(c *Column) error {
	c.nullable = o.valid != nil
	if o.nullable != nil {
		c.nullable = *o.nullable
	}
	if o.valid == nil {
		return nil
	}
	if len(o.valid) != c.length {
		return fmt.Errorf("%w: validity mask has %d entries for %d values",
			layout.ErrIndexOutOfRange, len(o.valid), c.length)
	}
	vb := bitmap.FromValid(o.valid)
	if vb.NullCount() > 0 {
		c.validity = vb
	}
	return nil
}

// storageFor reports whether values is the storage slice type of dt.
func storageFor(dt layout.DataType, values any) bool {
	switch values.(type) {
	case []bool:
		return dt.ID == layout.BOOL
	case []int8:
		return dt.ID == layout.INT8
	case []int16:
		return dt.ID == layout.INT16
	case []int32:
		return dt.ID == layout.INT32 || dt.ID == layout.DATE32
	case []int64:
		return dt.ID == layout.INT64 || dt.ID == layout.DATE64 || dt.ID == layout.TIMESTAMP
	case []uint8:
		return dt.ID == layout.UINT8
	case []uint16:
		return dt.ID == layout.UINT16
	case []uint32:
		return dt.ID == layout.UINT32
	case []uint64:
		return dt.ID == layout.UINT64
	case []float32:
		return dt.ID == layout.FLOAT32
	case []float64:
		return dt.ID == layout.FLOAT64
	case []string:
		return dt.ID == layout.STRING || dt.ID == layout.LARGE_STRING
	}
	return false
}

// New builds a non-nested column of type dt over values.
// The slice is copied.
func New[T Primitive](dt layout.DataType, values []T, opts ...Option) (*Column, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	if !storageFor(dt, values) {
		return nil, fmt.Errorf("%w: %T cannot hold %s", layout.ErrInvalidLayout, values, dt)
	}
	c := &Column{
		dtype:  dt,
		length: len(values),
		values: append(make([]T, 0, len(values)), values...),
	}
	if err := buildOptions(opts).apply(c); err != nil {
		return nil, err
	}
	c.zeroNulls()
	return c, nil
}

// FromOptional builds a nullable column where nil entries are nulls.
func FromOptional[T Primitive](dt layout.DataType, values []*T) (*Column, error) {
	vals := make([]T, len(values))
	valid := make([]bool, len(values))
	for i, v := range values {
		if v != nil {
			vals[i] = *v
			valid[i] = true
		}
	}
	return New(dt, vals, WithValidity(valid), WithNullable(true))
}

// zeroNulls clears the storage behind null slots so that exported values
// buffers never leak caller data through nulls.
func (c *Column) zeroNulls() {
	if c.validity == nil {
		return
	}
	switch v := c.values.(type) {
	case []bool:
		zeroAt(c, v)
	case []int8:
		zeroAt(c, v)
	case []int16:
		zeroAt(c, v)
	case []int32:
		zeroAt(c, v)
	case []int64:
		zeroAt(c, v)
	case []uint8:
		zeroAt(c, v)
	case []uint16:
		zeroAt(c, v)
	case []uint32:
		zeroAt(c, v)
	case []uint64:
		zeroAt(c, v)
	case []float32:
		zeroAt(c, v)
	case []float64:
		zeroAt(c, v)
	case []string:
		zeroAt(c, v)
	}
}

func zeroAt[T Primitive](c *Column, v []T) {
	var zero T
	for i := range v {
		if c.IsNull(i) {
			v[i] = zero
		}
	}
}

// NewDictionary builds a dictionary column whose codes index into dict.
// Code validity is checked by Validate, not here.
func NewDictionary(index layout.TypeID, codes []uint64, dict *Column, opts ...Option) (*Column, error) {
	if dict == nil {
		return nil, fmt.Errorf("%w: dictionary column without dictionary", layout.ErrInvalidLayout)
	}
	dt := layout.Dictionary(index, dict.dtype)
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	c := &Column{
		dtype:  dt,
		length: len(codes),
		codes:  append([]uint64(nil), codes...),
		dict:   dict,
	}
	if err := buildOptions(opts).apply(c); err != nil {
		return nil, err
	}
	if c.validity != nil {
		for i := range c.codes {
			if c.IsNull(i) {
				c.codes[i] = 0
			}
		}
	}
	return c, nil
}

// NewOrderedDictionary is NewDictionary with the ordered flag set.
func NewOrderedDictionary(index layout.TypeID, codes []uint64, dict *Column, opts ...Option) (*Column, error) {
	c, err := NewDictionary(index, codes, dict, opts...)
	if err != nil {
		return nil, err
	}
	c.dtype.Ordered = true
	return c, nil
}

// NewStruct builds a struct column whose children line up with fields.
func NewStruct(fields []layout.Field, children []*Column, opts ...Option) (*Column, error) {
	if len(fields) != len(children) {
		return nil, fmt.Errorf("%w: %d fields for %d children", layout.ErrFormatMismatch, len(fields), len(children))
	}
	length := 0
	if len(children) > 0 {
		length = children[0].Len()
	}
	for i, child := range children {
		if child.Len() != length {
			return nil, fmt.Errorf("%w: child %q has %d rows, want %d",
				layout.ErrIndexOutOfRange, fields[i].Name, child.Len(), length)
		}
		if !fields[i].Type.Equal(child.dtype) {
			return nil, fmt.Errorf("%w: field %q is %s, column is %s",
				layout.ErrFormatMismatch, fields[i].Name, fields[i].Type, child.dtype)
		}
		if fields[i].Nullable != child.nullable {
			return nil, fmt.Errorf("%w: field %q nullable=%t, column nullable=%t",
				layout.ErrFormatMismatch, fields[i].Name, fields[i].Nullable, child.nullable)
		}
	}
	c := &Column{
		dtype:    layout.Struct(fields...),
		length:   length,
		children: children,
	}
	if err := buildOptions(opts).apply(c); err != nil {
		return nil, err
	}
	return c, nil
}
