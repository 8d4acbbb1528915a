package ffi

import (
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/bitmap"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
)

// ImportField reads the field described by schema. The schema is not
// released.
func ImportField(schema *CArrowSchema) (layout.Field, error) {
	if schema == nil || isSchemaReleased(schema) {
		return layout.Field{}, fmt.Errorf("%w: schema is released", layout.ErrFormatMismatch)
	}
	return importField(ViewSchema(schema))
}

func importField(sv SchemaView) (layout.Field, error) {
	dt, err := layout.ParseFormat(sv.Format())
	if err != nil {
		return layout.Field{}, err
	}
	md, err := sv.Metadata()
	if err != nil {
		return layout.Field{}, err
	}
	f := layout.Field{Name: sv.Name(), Nullable: sv.Nullable(), Metadata: md}

	if dv, ok := sv.Dictionary(); ok {
		if !dt.ID.IsInteger() {
			return layout.Field{}, fmt.Errorf("%w: dictionary index format %q is not an integer",
				layout.ErrFormatMismatch, sv.Format())
		}
		value, err := importField(dv)
		if err != nil {
			return layout.Field{}, fmt.Errorf("dictionary: %w", err)
		}
		dt = layout.Dictionary(dt.ID, value.Type)
		dt.Ordered = sv.Flags()&layout.FlagDictionaryOrdered != 0
	}

	if dt.ID == layout.STRUCT {
		fields := make([]layout.Field, sv.NumChildren())
		for i := range fields {
			if fields[i], err = importField(sv.Child(i)); err != nil {
				return layout.Field{}, fmt.Errorf("child %d: %w", i, err)
			}
		}
		dt = layout.Struct(fields...)
	} else if sv.NumChildren() != 0 {
		return layout.Field{}, fmt.Errorf("%w: %s node has %d children",
			layout.ErrFormatMismatch, dt, sv.NumChildren())
	}

	if err := dt.Validate(); err != nil {
		return layout.Field{}, err
	}
	f.Type = dt
	return f, nil
}

// ImportColumn copies the array arr, described by schema, into a logical
// column. Neither input is released. The result is validated.
func ImportColumn(arr *CArrowArray, schema *CArrowSchema) (layout.Field, *data.Column, error) {
	f, err := ImportField(schema)
	if err != nil {
		return layout.Field{}, nil, err
	}
	if arr == nil || isArrayReleased(arr) {
		return layout.Field{}, nil, fmt.Errorf("%w: array is released", layout.ErrFormatMismatch)
	}
	av := ViewArray(arr)
	col, err := importArray(av, f.Type, f.Nullable, 0, av.Len())
	if err != nil {
		return layout.Field{}, nil, err
	}
	if err := col.Validate(); err != nil {
		return layout.Field{}, nil, err
	}
	return f, col, nil
}

// importArray reads n logical slots of av starting skip slots past its own
// offset.
func importArray(av ArrayView, dt layout.DataType, nullable bool, skip, n int) (*data.Column, error) {
	specs, err := layout.Layout(dt, nullable)
	if err != nil {
		return nil, err
	}
	if av.NumBuffers() != len(specs) {
		return nil, fmt.Errorf("%w: %s array has %d buffers, want %d",
			layout.ErrFormatMismatch, dt, av.NumBuffers(), len(specs))
	}
	if av.Offset() < 0 || skip < 0 || n < 0 || skip+n > av.Len() {
		return nil, fmt.Errorf("%w: slots [%d,%d) of array of length %d",
			layout.ErrIndexOutOfRange, skip, skip+n, av.Len())
	}
	off := av.Offset() + skip
	// bits and elements up to and including the last slot read
	end := off + n

	var opts []data.Option
	if nullable {
		opts = append(opts, data.WithNullable(true))
	}
	if av.NullCount() != 0 {
		bits := av.Buffer(0, int(bitutil.BytesForBits(int64(end))))
		if bits == nil {
			if av.NullCount() > 0 {
				return nil, fmt.Errorf("%w: null_count %d without validity bitmap",
					layout.ErrFormatMismatch, av.NullCount())
			}
		} else {
			vb, err := bitmap.FromBytes(bits, off, n)
			if err != nil {
				return nil, err
			}
			opts = append(opts, data.WithValidity(vb.Valid()), data.WithNullable(nullable))
		}
	}

	switch dt.ID {
	case layout.BOOL:
		bits := av.Buffer(1, int(bitutil.BytesForBits(int64(end))))
		if bits == nil && n > 0 {
			return nil, missingBuffer(dt, 1)
		}
		vals := make([]bool, n)
		for i := range vals {
			vals[i] = bitutil.BitIsSet(bits, off+i)
		}
		return data.New(dt, vals, opts...)
	case layout.INT8:
		return importFixed[int8](av, dt, arrow.Int8Traits, off, n, opts)
	case layout.UINT8:
		return importFixed[uint8](av, dt, arrow.Uint8Traits, off, n, opts)
	case layout.INT16:
		return importFixed[int16](av, dt, arrow.Int16Traits, off, n, opts)
	case layout.UINT16:
		return importFixed[uint16](av, dt, arrow.Uint16Traits, off, n, opts)
	case layout.INT32, layout.DATE32:
		return importFixed[int32](av, dt, arrow.Int32Traits, off, n, opts)
	case layout.UINT32:
		return importFixed[uint32](av, dt, arrow.Uint32Traits, off, n, opts)
	case layout.INT64, layout.DATE64, layout.TIMESTAMP:
		return importFixed[int64](av, dt, arrow.Int64Traits, off, n, opts)
	case layout.UINT64:
		return importFixed[uint64](av, dt, arrow.Uint64Traits, off, n, opts)
	case layout.FLOAT32:
		return importFixed[float32](av, dt, arrow.Float32Traits, off, n, opts)
	case layout.FLOAT64:
		return importFixed[float64](av, dt, arrow.Float64Traits, off, n, opts)
	case layout.STRING:
		vals, err := readStrings[int32](av, dt, arrow.Int32Traits, off, n)
		if err != nil {
			return nil, err
		}
		return data.New(dt, vals, opts...)
	case layout.LARGE_STRING:
		vals, err := readStrings[int64](av, dt, arrow.Int64Traits, off, n)
		if err != nil {
			return nil, err
		}
		return data.New(dt, vals, opts...)
	case layout.DICTIONARY:
		return importDictionary(av, dt, off, n, opts)
	case layout.STRUCT:
		if av.NumChildren() != len(dt.Fields) {
			return nil, fmt.Errorf("%w: struct array has %d children, schema has %d",
				layout.ErrFormatMismatch, av.NumChildren(), len(dt.Fields))
		}
		children := make([]*data.Column, len(dt.Fields))
		for i, f := range dt.Fields {
			if children[i], err = importArray(av.Child(i), f.Type, f.Nullable, off, n); err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		if len(children) == 0 && n > 0 {
			return nil, fmt.Errorf("%w: struct without children cannot carry %d rows",
				layout.ErrFormatMismatch, n)
		}
		return data.NewStruct(dt.Fields, children, opts...)
	}
	return nil, fmt.Errorf("%w: cannot import %s", layout.ErrInvalidLayout, dt)
}

func missingBuffer(dt layout.DataType, i int) error {
	return fmt.Errorf("%w: %s array buffer %d is NULL", layout.ErrFormatMismatch, dt, i)
}

func readFixed[T any](av ArrayView, dt layout.DataType, traits fixedTraits[T], buf, off, n int) ([]T, error) {
	b := av.Buffer(buf, traits.BytesRequired(off+n))
	if b == nil {
		if n == 0 {
			return nil, nil
		}
		return nil, missingBuffer(dt, buf)
	}
	return traits.CastFromBytes(b)[off : off+n], nil
}

func importFixed[T data.Primitive](av ArrayView, dt layout.DataType, traits fixedTraits[T], off, n int, opts []data.Option) (*data.Column, error) {
	vals, err := readFixed(av, dt, traits, 1, off, n)
	if err != nil {
		return nil, err
	}
	if vals == nil {
		vals = []T{}
	}
	return data.New(dt, vals, opts...)
}

type offsetInt interface{ ~int32 | ~int64 }

func readStrings[O offsetInt](av ArrayView, dt layout.DataType, traits fixedTraits[O], off, n int) ([]string, error) {
	offs, err := readFixed(av, dt, traits, 1, off, n+1)
	if err != nil {
		return nil, err
	}
	vals := make([]string, n)
	if n == 0 {
		return vals, nil
	}
	for i := 0; i < n; i++ {
		if offs[i] < 0 || offs[i] > offs[i+1] {
			return nil, fmt.Errorf("%w: offsets %d..%d at slot %d are not monotonic",
				layout.ErrIndexOutOfRange, offs[i], offs[i+1], i)
		}
	}
	chars := av.Buffer(2, int(offs[n]))
	if chars == nil && offs[n] > 0 {
		return nil, missingBuffer(dt, 2)
	}
	for i := range vals {
		vals[i] = string(chars[offs[i]:offs[i+1]])
	}
	return vals, nil
}

func importDictionary(av ArrayView, dt layout.DataType, off, n int, opts []data.Option) (*data.Column, error) {
	dv, ok := av.Dictionary()
	if !ok {
		return nil, fmt.Errorf("%w: dictionary-encoded array without dictionary", layout.ErrFormatMismatch)
	}
	dict, err := importArray(dv, *dt.Value, true, 0, dv.Len())
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}

	var codes []uint64
	switch dt.Index {
	case layout.INT8:
		codes, err = widen[int8](av, dt, arrow.Int8Traits, off, n)
	case layout.UINT8:
		codes, err = widen[uint8](av, dt, arrow.Uint8Traits, off, n)
	case layout.INT16:
		codes, err = widen[int16](av, dt, arrow.Int16Traits, off, n)
	case layout.UINT16:
		codes, err = widen[uint16](av, dt, arrow.Uint16Traits, off, n)
	case layout.INT32:
		codes, err = widen[int32](av, dt, arrow.Int32Traits, off, n)
	case layout.UINT32:
		codes, err = widen[uint32](av, dt, arrow.Uint32Traits, off, n)
	case layout.INT64:
		codes, err = widen[int64](av, dt, arrow.Int64Traits, off, n)
	default:
		codes, err = widen[uint64](av, dt, arrow.Uint64Traits, off, n)
	}
	if err != nil {
		return nil, err
	}

	if dt.Ordered {
		return data.NewOrderedDictionary(dt.Index, codes, dict, opts...)
	}
	return data.NewDictionary(dt.Index, codes, dict, opts...)
}

// widen reads dictionary codes and converts them to uint64. Negative codes
// map past every dictionary length and fail validation.
func widen[T code](av ArrayView, dt layout.DataType, traits fixedTraits[T], off, n int) ([]uint64, error) {
	raw, err := readFixed(av, dt, traits, 1, off, n)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i, c := range raw {
		if c < 0 {
			out[i] = ^uint64(0)
			continue
		}
		out[i] = uint64(c)
	}
	return out, nil
}
