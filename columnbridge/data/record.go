package data

import (
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// RecordBatch is a set of equal-length columns described by fields.
type RecordBatch struct {
	fields  []layout.Field
	columns []*Column
	rows    int
	// schema-level metadata, carried on the top-level struct schema
	metadata layout.Metadata
}

// NewRecordBatch pairs fields with columns. Types, nullability and row
// counts must agree.
func NewRecordBatch(fields []layout.Field, columns []*Column) (*RecordBatch, error) {
	if len(fields) != len(columns) {
		return nil, fmt.Errorf("%w: %d fields for %d columns", layout.ErrFormatMismatch, len(fields), len(columns))
	}
	rows := 0
	if len(columns) > 0 {
		rows = columns[0].Len()
	}
	for i, col := range columns {
		if col.Len() != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d",
				layout.ErrIndexOutOfRange, fields[i].Name, col.Len(), rows)
		}
		if !fields[i].Type.Equal(col.Type()) || fields[i].Nullable != col.Nullable() {
			return nil, fmt.Errorf("%w: field %s does not describe column of %s",
				layout.ErrFormatMismatch, fields[i], col.Type())
		}
	}
	return &RecordBatch{fields: fields, columns: columns, rows: rows}, nil
}

func (rb *RecordBatch) Fields() []layout.Field { return rb.fields }
func (rb *RecordBatch) Columns() []*Column     { return rb.columns }
func (rb *RecordBatch) NumRows() int           { return rb.rows }
func (rb *RecordBatch) NumCols() int           { return len(rb.columns) }

// Metadata returns the schema-level metadata of the batch.
func (rb *RecordBatch) Metadata() layout.Metadata { return rb.metadata }

// WithMetadata returns a copy of rb carrying md. Columns are shared.
func (rb *RecordBatch) WithMetadata(md layout.Metadata) *RecordBatch {
	out := *rb
	out.metadata = md
	return &out
}

// Column returns column i.
func (rb *RecordBatch) Column(i int) *Column { return rb.columns[i] }

// AsStruct returns the batch as a non-nullable struct column, the shape in
// which record batches cross the C Data Interface.
func (rb *RecordBatch) AsStruct() (*Column, error) {
	c, err := NewStruct(rb.fields, rb.columns)
	if err != nil {
		return nil, err
	}
	c.length = rb.rows
	return c, nil
}
