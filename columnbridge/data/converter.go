package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// MaxJSONInputSize is the maximum accepted size of a JSON column document (64MB).
const MaxJSONInputSize = 64 * 1024 * 1024

// ErrJSONInputTooLarge is returned when a document exceeds MaxJSONInputSize.
var ErrJSONInputTooLarge = errors.New("json input size exceeds maximum allowed")

// TypeJSON is the JSON form of a logical type, e.g.
//
//	{"id":"dictionary","index":"uint32","value":{"id":"utf8"}}
type TypeJSON struct {
	ID       string    `json:"id"`
	Unit     string    `json:"unit,omitempty"`
	TimeZone string    `json:"timezone,omitempty"`
	Index    string    `json:"index,omitempty"`
	Value    *TypeJSON `json:"value,omitempty"`
	Ordered  bool      `json:"ordered,omitempty"`
}

// ColumnJSON is one column of a document. Dictionary columns carry codes and
// dictionary; every other column carries values. null marks a null slot.
type ColumnJSON struct {
	Name       string            `json:"name"`
	Type       TypeJSON          `json:"type"`
	Nullable   bool              `json:"nullable,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Values     []any             `json:"values,omitempty"`
	Codes      []*uint64         `json:"codes,omitempty"`
	Dictionary []any             `json:"dictionary,omitempty"`
}

// Document is a record batch in JSON form.
type Document struct {
	Columns []ColumnJSON `json:"columns"`
}

// ParseType converts a TypeJSON into a DataType.
func (t TypeJSON) ParseType() (layout.DataType, error) {
	id, err := layout.ParseTypeID(t.ID)
	if err != nil {
		return layout.DataType{}, err
	}
	switch id {
	case layout.TIMESTAMP:
		unit, err := layout.ParseTimeUnit(t.Unit)
		if err != nil {
			return layout.DataType{}, err
		}
		return layout.Timestamp(unit, t.TimeZone), nil
	case layout.DICTIONARY:
		index, err := layout.ParseTypeID(t.Index)
		if err != nil {
			return layout.DataType{}, err
		}
		if t.Value == nil {
			return layout.DataType{}, fmt.Errorf("%w: dictionary without value type", layout.ErrInvalidLayout)
		}
		value, err := t.Value.ParseType()
		if err != nil {
			return layout.DataType{}, err
		}
		dt := layout.Dictionary(index, value)
		dt.Ordered = t.Ordered
		return dt, dt.Validate()
	case layout.STRUCT:
		return layout.DataType{}, fmt.Errorf("%w: struct columns are not supported in documents", layout.ErrInvalidLayout)
	}
	return layout.DataType{ID: id}, nil
}

// TypeToJSON is the inverse of ParseType.
func TypeToJSON(dt layout.DataType) TypeJSON {
	t := TypeJSON{ID: dt.ID.String()}
	switch dt.ID {
	case layout.TIMESTAMP:
		t.Unit = dt.Unit.String()
		t.TimeZone = dt.TimeZone
	case layout.DICTIONARY:
		t.Index = dt.Index.String()
		t.Ordered = dt.Ordered
		if dt.Value != nil {
			v := TypeToJSON(*dt.Value)
			t.Value = &v
		}
	}
	return t
}

// DecodeDocument parses a JSON document, keeping numbers exact.
func DecodeDocument(jsonData []byte) (*Document, error) {
	if len(jsonData) > MaxJSONInputSize {
		return nil, ErrJSONInputTooLarge
	}
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}
	return &doc, nil
}

// JSONToRecordBatch converts a JSON document into a RecordBatch.
func JSONToRecordBatch(jsonData []byte) (*RecordBatch, error) {
	doc, err := DecodeDocument(jsonData)
	if err != nil {
		return nil, err
	}
	return doc.RecordBatch()
}

// RecordBatch builds the batch described by the document.
func (d *Document) RecordBatch() (*RecordBatch, error) {
	if len(d.Columns) == 0 {
		return nil, errors.New("empty columns slice")
	}
	fields := make([]layout.Field, len(d.Columns))
	columns := make([]*Column, len(d.Columns))
	for i, cj := range d.Columns {
		f, col, err := cj.Column()
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", cj.Name, err)
		}
		fields[i], columns[i] = f, col
	}
	return NewRecordBatch(fields, columns)
}

// Column builds the field and column described by cj.
func (cj ColumnJSON) Column() (layout.Field, *Column, error) {
	dt, err := cj.Type.ParseType()
	if err != nil {
		return layout.Field{}, nil, err
	}

	var col *Column
	if dt.ID == layout.DICTIONARY {
		dict, err := columnFromValues(*dt.Value, true, cj.Dictionary)
		if err != nil {
			return layout.Field{}, nil, fmt.Errorf("dictionary: %w", err)
		}
		codes := make([]uint64, len(cj.Codes))
		valid := make([]bool, len(cj.Codes))
		for i, c := range cj.Codes {
			if c != nil {
				codes[i], valid[i] = *c, true
			}
		}
		opts := []Option{WithValidity(valid), WithNullable(cj.Nullable)}
		if dt.Ordered {
			col, err = NewOrderedDictionary(dt.Index, codes, dict, opts...)
		} else {
			col, err = NewDictionary(dt.Index, codes, dict, opts...)
		}
		if err != nil {
			return layout.Field{}, nil, err
		}
	} else {
		col, err = columnFromValues(dt, cj.Nullable, cj.Values)
		if err != nil {
			return layout.Field{}, nil, err
		}
	}

	f := col.Field(cj.Name)
	if len(cj.Metadata) > 0 {
		keys := make([]string, 0, len(cj.Metadata))
		for k := range cj.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		f.Metadata = layout.MetadataFrom(keys, cj.Metadata)
	}
	return f, col, nil
}

func columnFromValues(dt layout.DataType, nullable bool, raw []any) (*Column, error) {
	valid := make([]bool, len(raw))
	for i, v := range raw {
		valid[i] = v != nil
	}
	opts := []Option{WithValidity(valid), WithNullable(nullable)}

	switch dt.ID {
	case layout.BOOL:
		vals := make([]bool, len(raw))
		for i, v := range raw {
			if v == nil {
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("slot %d: %v is not a bool", i, v)
			}
			vals[i] = b
		}
		return New(dt, vals, opts...)
	case layout.STRING, layout.LARGE_STRING:
		vals := make([]string, len(raw))
		for i, v := range raw {
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("slot %d: %v is not a string", i, v)
			}
			vals[i] = s
		}
		return New(dt, vals, opts...)
	case layout.FLOAT32:
		vals, err := floats[float32](raw, 32)
		if err != nil {
			return nil, err
		}
		return New(dt, vals, opts...)
	case layout.FLOAT64:
		vals, err := floats[float64](raw, 64)
		if err != nil {
			return nil, err
		}
		return New(dt, vals, opts...)
	case layout.INT8:
		return intColumn[int8](dt, raw, math.MinInt8, math.MaxInt8, opts)
	case layout.INT16:
		return intColumn[int16](dt, raw, math.MinInt16, math.MaxInt16, opts)
	case layout.INT32, layout.DATE32:
		return intColumn[int32](dt, raw, math.MinInt32, math.MaxInt32, opts)
	case layout.INT64, layout.DATE64, layout.TIMESTAMP:
		return intColumn[int64](dt, raw, math.MinInt64, math.MaxInt64, opts)
	case layout.UINT8:
		return uintColumn[uint8](dt, raw, 8, opts)
	case layout.UINT16:
		return uintColumn[uint16](dt, raw, 16, opts)
	case layout.UINT32:
		return uintColumn[uint32](dt, raw, 32, opts)
	case layout.UINT64:
		return uintColumn[uint64](dt, raw, 64, opts)
	}
	return nil, fmt.Errorf("%w: %s values in a document", layout.ErrInvalidLayout, dt)
}

func number(i int, v any) (json.Number, error) {
	n, ok := v.(json.Number)
	if !ok {
		return "", fmt.Errorf("slot %d: %v is not a number", i, v)
	}
	return n, nil
}

func floats[T float32 | float64](raw []any, bits int) ([]T, error) {
	vals := make([]T, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		n, err := number(i, v)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(n.String(), bits)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		vals[i] = T(f)
	}
	return vals, nil
}

func intColumn[T int8 | int16 | int32 | int64](dt layout.DataType, raw []any, lo, hi int64, opts []Option) (*Column, error) {
	vals := make([]T, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		n, err := number(i, v)
		if err != nil {
			return nil, err
		}
		x, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || x < lo || x > hi {
			return nil, fmt.Errorf("slot %d: %s does not fit %s", i, n, dt)
		}
		vals[i] = T(x)
	}
	return New(dt, vals, opts...)
}

func uintColumn[T uint8 | uint16 | uint32 | uint64](dt layout.DataType, raw []any, bits int, opts []Option) (*Column, error) {
	vals := make([]T, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		n, err := number(i, v)
		if err != nil {
			return nil, err
		}
		x, err := strconv.ParseUint(n.String(), 10, bits)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %s does not fit %s", i, n, dt)
		}
		vals[i] = T(x)
	}
	return New(dt, vals, opts...)
}

// RecordBatchToJSON renders a batch as a JSON document.
func RecordBatchToJSON(rb *RecordBatch) ([]byte, error) {
	doc := Document{Columns: make([]ColumnJSON, rb.NumCols())}
	for i, f := range rb.Fields() {
		col := rb.Column(i)
		if col.Type().ID == layout.STRUCT {
			return nil, fmt.Errorf("%w: struct column %q in a document", layout.ErrInvalidLayout, f.Name)
		}
		cj := ColumnJSON{Name: f.Name, Type: TypeToJSON(f.Type), Nullable: f.Nullable}
		if f.Metadata.Len() > 0 {
			cj.Metadata = make(map[string]string, f.Metadata.Len())
			for j, k := range f.Metadata.Keys() {
				cj.Metadata[k] = f.Metadata.Values()[j]
			}
		}
		if col.Type().ID == layout.DICTIONARY {
			cj.Codes = make([]*uint64, col.Len())
			for j, code := range col.Codes() {
				if !col.IsNull(j) {
					c := code
					cj.Codes[j] = &c
				}
			}
			cj.Dictionary = slotValues(col.Dictionary())
		} else {
			cj.Values = slotValues(col)
		}
		doc.Columns[i] = cj
	}
	return json.Marshal(doc)
}

func slotValues(c *Column) []any {
	out := make([]any, c.Len())
	for i := range out {
		out[i], _ = c.Value(i)
	}
	return out
}
