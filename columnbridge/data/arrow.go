package data

import (
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var toArrowPrimitive = map[layout.TypeID]arrow.DataType{
	layout.BOOL:         arrow.FixedWidthTypes.Boolean,
	layout.INT8:         arrow.PrimitiveTypes.Int8,
	layout.INT16:        arrow.PrimitiveTypes.Int16,
	layout.INT32:        arrow.PrimitiveTypes.Int32,
	layout.INT64:        arrow.PrimitiveTypes.Int64,
	layout.UINT8:        arrow.PrimitiveTypes.Uint8,
	layout.UINT16:       arrow.PrimitiveTypes.Uint16,
	layout.UINT32:       arrow.PrimitiveTypes.Uint32,
	layout.UINT64:       arrow.PrimitiveTypes.Uint64,
	layout.FLOAT32:      arrow.PrimitiveTypes.Float32,
	layout.FLOAT64:      arrow.PrimitiveTypes.Float64,
	layout.DATE32:       arrow.FixedWidthTypes.Date32,
	layout.DATE64:       arrow.FixedWidthTypes.Date64,
	layout.STRING:       arrow.BinaryTypes.String,
	layout.LARGE_STRING: arrow.BinaryTypes.LargeString,
}

var fromArrowPrimitive = map[arrow.Type]layout.TypeID{
	arrow.BOOL:         layout.BOOL,
	arrow.INT8:         layout.INT8,
	arrow.INT16:        layout.INT16,
	arrow.INT32:        layout.INT32,
	arrow.INT64:        layout.INT64,
	arrow.UINT8:        layout.UINT8,
	arrow.UINT16:       layout.UINT16,
	arrow.UINT32:       layout.UINT32,
	arrow.UINT64:       layout.UINT64,
	arrow.FLOAT32:      layout.FLOAT32,
	arrow.FLOAT64:      layout.FLOAT64,
	arrow.DATE32:       layout.DATE32,
	arrow.DATE64:       layout.DATE64,
	arrow.STRING:       layout.STRING,
	arrow.LARGE_STRING: layout.LARGE_STRING,
}

// TypeToArrow maps a logical type to its arrow-go counterpart.
func TypeToArrow(dt layout.DataType) (arrow.DataType, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	switch dt.ID {
	case layout.TIMESTAMP:
		return &arrow.TimestampType{Unit: arrow.TimeUnit(dt.Unit), TimeZone: dt.TimeZone}, nil
	case layout.DICTIONARY:
		index, _ := TypeToArrow(layout.DataType{ID: dt.Index})
		value, err := TypeToArrow(*dt.Value)
		if err != nil {
			return nil, err
		}
		return &arrow.DictionaryType{IndexType: index, ValueType: value, Ordered: dt.Ordered}, nil
	case layout.STRUCT:
		fields := make([]arrow.Field, len(dt.Fields))
		for i, f := range dt.Fields {
			af, err := FieldToArrow(f)
			if err != nil {
				return nil, err
			}
			fields[i] = af
		}
		return arrow.StructOf(fields...), nil
	}
	return toArrowPrimitive[dt.ID], nil
}

// TypeFromArrow maps an arrow-go type into the supported set.
func TypeFromArrow(dt arrow.DataType) (layout.DataType, error) {
	if id, ok := fromArrowPrimitive[dt.ID()]; ok {
		return layout.DataType{ID: id}, nil
	}
	switch t := dt.(type) {
	case *arrow.TimestampType:
		return layout.Timestamp(layout.TimeUnit(t.Unit), t.TimeZone), nil
	case *arrow.DictionaryType:
		index, err := TypeFromArrow(t.IndexType)
		if err != nil {
			return layout.DataType{}, err
		}
		value, err := TypeFromArrow(t.ValueType)
		if err != nil {
			return layout.DataType{}, err
		}
		out := layout.Dictionary(index.ID, value)
		out.Ordered = t.Ordered
		return out, out.Validate()
	case *arrow.StructType:
		fields := make([]layout.Field, t.NumFields())
		for i, f := range t.Fields() {
			lf, err := FieldFromArrow(f)
			if err != nil {
				return layout.DataType{}, err
			}
			fields[i] = lf
		}
		return layout.Struct(fields...), nil
	}
	return layout.DataType{}, fmt.Errorf("%w: arrow type %s", layout.ErrInvalidLayout, dt)
}

// FieldToArrow converts a field, metadata included.
func FieldToArrow(f layout.Field) (arrow.Field, error) {
	dt, err := TypeToArrow(f.Type)
	if err != nil {
		return arrow.Field{}, err
	}
	af := arrow.Field{Name: f.Name, Type: dt, Nullable: f.Nullable}
	if f.Metadata.Len() > 0 {
		af.Metadata = arrow.NewMetadata(f.Metadata.Keys(), f.Metadata.Values())
	}
	return af, nil
}

// FieldFromArrow converts an arrow-go field, metadata included.
func FieldFromArrow(f arrow.Field) (layout.Field, error) {
	dt, err := TypeFromArrow(f.Type)
	if err != nil {
		return layout.Field{}, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return layout.Field{
		Name:     f.Name,
		Type:     dt,
		Nullable: f.Nullable,
		Metadata: layout.NewMetadata(f.Metadata.Keys(), f.Metadata.Values()),
	}, nil
}

type valueArray[T any] interface {
	arrow.Array
	Value(int) T
}

func collect[T Primitive](a valueArray[T]) ([]T, []bool) {
	values := make([]T, a.Len())
	valid := make([]bool, a.Len())
	for i := range values {
		if a.IsValid(i) {
			values[i] = a.Value(i)
			valid[i] = true
		}
	}
	return values, valid
}

func collectAs[T, S ~int32 | ~int64](a valueArray[S]) ([]T, []bool) {
	values := make([]T, a.Len())
	valid := make([]bool, a.Len())
	for i := range values {
		if a.IsValid(i) {
			values[i] = T(a.Value(i))
			valid[i] = true
		}
	}
	return values, valid
}

func newFrom[T Primitive](dt layout.DataType, nullable bool, values []T, valid []bool) (*Column, error) {
	return New(dt, values, WithValidity(valid), WithNullable(nullable))
}

// FromArrow copies an arrow-go array into a Column. nullable is the
// declared nullability of the field the array belongs to.
func FromArrow(arr arrow.Array, nullable bool) (*Column, error) {
	dt, err := TypeFromArrow(arr.DataType())
	if err != nil {
		return nil, err
	}

	switch a := arr.(type) {
	case *array.Boolean:
		v, ok := collect[bool](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Int8:
		v, ok := collect[int8](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Int16:
		v, ok := collect[int16](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Int32:
		v, ok := collect[int32](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Int64:
		v, ok := collect[int64](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Uint8:
		v, ok := collect[uint8](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Uint16:
		v, ok := collect[uint16](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Uint32:
		v, ok := collect[uint32](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Uint64:
		v, ok := collect[uint64](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Float32:
		v, ok := collect[float32](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Float64:
		v, ok := collect[float64](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Date32:
		v, ok := collectAs[int32, arrow.Date32](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Date64:
		v, ok := collectAs[int64, arrow.Date64](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Timestamp:
		v, ok := collectAs[int64, arrow.Timestamp](a)
		return newFrom(dt, nullable, v, ok)
	case *array.String:
		v, ok := collect[string](a)
		return newFrom(dt, nullable, v, ok)
	case *array.LargeString:
		v, ok := collect[string](a)
		return newFrom(dt, nullable, v, ok)
	case *array.Dictionary:
		dict, err := FromArrow(a.Dictionary(), true)
		if err != nil {
			return nil, fmt.Errorf("dictionary: %w", err)
		}
		codes := make([]uint64, a.Len())
		valid := make([]bool, a.Len())
		for i := range codes {
			if a.IsValid(i) {
				codes[i] = uint64(a.GetValueIndex(i))
				valid[i] = true
			}
		}
		if dt.Ordered {
			return NewOrderedDictionary(dt.Index, codes, dict, WithValidity(valid), WithNullable(nullable))
		}
		return NewDictionary(dt.Index, codes, dict, WithValidity(valid), WithNullable(nullable))
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		children := make([]*Column, a.NumField())
		for i := range children {
			child, err := FromArrow(a.Field(i), st.Field(i).Nullable)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", st.Field(i).Name, err)
			}
			children[i] = child
		}
		valid := make([]bool, a.Len())
		for i := range valid {
			valid[i] = a.IsValid(i)
		}
		c, err := NewStruct(dt.Fields, children, WithValidity(valid), WithNullable(nullable))
		if err != nil {
			return nil, err
		}
		c.length = a.Len()
		return c, nil
	}
	return nil, fmt.Errorf("%w: arrow array %T", layout.ErrInvalidLayout, arr)
}

// RecordFromArrow copies an arrow-go record into a RecordBatch.
func RecordFromArrow(rec arrow.Record) (*RecordBatch, error) {
	schema := rec.Schema()
	fields := make([]layout.Field, schema.NumFields())
	columns := make([]*Column, schema.NumFields())
	for i, f := range schema.Fields() {
		lf, err := FieldFromArrow(f)
		if err != nil {
			return nil, err
		}
		col, err := FromArrow(rec.Column(i), f.Nullable)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		fields[i], columns[i] = lf, col
	}
	rb, err := NewRecordBatch(fields, columns)
	if err != nil {
		return nil, err
	}
	md := schema.Metadata()
	return rb.WithMetadata(layout.NewMetadata(md.Keys(), md.Values())), nil
}

func validMask(c *Column) []bool {
	if c.validity == nil {
		return nil
	}
	return c.validity.Valid()
}

func convertSlice[S, T ~int32 | ~int64](in []T) []S {
	out := make([]S, len(in))
	for i, v := range in {
		out[i] = S(v)
	}
	return out
}

// ToArrow builds an arrow-go array holding the column's values.
// The caller releases the result.
func ToArrow(c *Column, mem memory.Allocator) (arrow.Array, error) {
	dt, err := TypeToArrow(c.dtype)
	if err != nil {
		return nil, err
	}

	switch c.dtype.ID {
	case layout.DICTIONARY:
		return dictionaryToArrow(c, dt.(*arrow.DictionaryType), mem)
	case layout.STRUCT:
		st := dt.(*arrow.StructType)
		cols := make([]arrow.Array, len(c.children))
		defer func() {
			for _, col := range cols {
				if col != nil {
					col.Release()
				}
			}
		}()
		for i, child := range c.children {
			if cols[i], err = ToArrow(child, mem); err != nil {
				return nil, err
			}
		}
		out, err := array.NewStructArrayWithFields(cols, st.Fields())
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	bldr := array.NewBuilder(mem, dt)
	defer bldr.Release()
	valid := validMask(c)

	switch b := bldr.(type) {
	case *array.BooleanBuilder:
		b.AppendValues(c.values.([]bool), valid)
	case *array.Int8Builder:
		b.AppendValues(c.values.([]int8), valid)
	case *array.Int16Builder:
		b.AppendValues(c.values.([]int16), valid)
	case *array.Int32Builder:
		b.AppendValues(c.values.([]int32), valid)
	case *array.Int64Builder:
		b.AppendValues(c.values.([]int64), valid)
	case *array.Uint8Builder:
		b.AppendValues(c.values.([]uint8), valid)
	case *array.Uint16Builder:
		b.AppendValues(c.values.([]uint16), valid)
	case *array.Uint32Builder:
		b.AppendValues(c.values.([]uint32), valid)
	case *array.Uint64Builder:
		b.AppendValues(c.values.([]uint64), valid)
	case *array.Float32Builder:
		b.AppendValues(c.values.([]float32), valid)
	case *array.Float64Builder:
		b.AppendValues(c.values.([]float64), valid)
	case *array.Date32Builder:
		b.AppendValues(convertSlice[arrow.Date32](c.values.([]int32)), valid)
	case *array.Date64Builder:
		b.AppendValues(convertSlice[arrow.Date64](c.values.([]int64)), valid)
	case *array.TimestampBuilder:
		b.AppendValues(convertSlice[arrow.Timestamp](c.values.([]int64)), valid)
	case *array.StringBuilder:
		b.AppendValues(c.values.([]string), valid)
	case *array.LargeStringBuilder:
		b.AppendValues(c.values.([]string), valid)
	default:
		return nil, fmt.Errorf("%w: no arrow builder for %s", layout.ErrInvalidLayout, c.dtype)
	}
	return bldr.NewArray(), nil
}

func dictionaryToArrow(c *Column, dt *arrow.DictionaryType, mem memory.Allocator) (arrow.Array, error) {
	dict, err := ToArrow(c.dict, mem)
	if err != nil {
		return nil, err
	}
	defer dict.Release()

	bldr := array.NewBuilder(mem, dt.IndexType)
	defer bldr.Release()
	for i, code := range c.codes {
		if c.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		switch b := bldr.(type) {
		case *array.Int8Builder:
			b.Append(int8(code))
		case *array.Int16Builder:
			b.Append(int16(code))
		case *array.Int32Builder:
			b.Append(int32(code))
		case *array.Int64Builder:
			b.Append(int64(code))
		case *array.Uint8Builder:
			b.Append(uint8(code))
		case *array.Uint16Builder:
			b.Append(uint16(code))
		case *array.Uint32Builder:
			b.Append(uint32(code))
		case *array.Uint64Builder:
			b.Append(code)
		}
	}
	indices := bldr.NewArray()
	defer indices.Release()

	return array.NewDictionaryArray(dt, indices, dict), nil
}

// RecordToArrow builds an arrow-go record from a batch.
// The caller releases the result.
func RecordToArrow(rb *RecordBatch, mem memory.Allocator) (arrow.Record, error) {
	fields := make([]arrow.Field, rb.NumCols())
	cols := make([]arrow.Array, rb.NumCols())
	defer func() {
		for _, col := range cols {
			if col != nil {
				col.Release()
			}
		}
	}()
	for i, f := range rb.fields {
		af, err := FieldToArrow(f)
		if err != nil {
			return nil, err
		}
		fields[i] = af
		if cols[i], err = ToArrow(rb.columns[i], mem); err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
	}
	var md *arrow.Metadata
	if rb.metadata.Len() > 0 {
		m := arrow.NewMetadata(rb.metadata.Keys(), rb.metadata.Values())
		md = &m
	}
	return array.NewRecord(arrow.NewSchema(fields, md), cols, int64(rb.rows)), nil
}
