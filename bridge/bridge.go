package bridge

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/ffi"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/arrio"
	"github.com/apache/arrow-go/v18/arrow/cdata"
)

func toArrowGoArray(arr *ffi.CArrowArray) *cdata.CArrowArray {
	return (*cdata.CArrowArray)(unsafe.Pointer(arr))
}

func toArrowGoSchema(schema *ffi.CArrowSchema) *cdata.CArrowSchema {
	return (*cdata.CArrowSchema)(unsafe.Pointer(schema))
}

func toArrowGoStream(stream *ffi.CArrowArrayStream) *cdata.CArrowArrayStream {
	return (*cdata.CArrowArrayStream)(unsafe.Pointer(stream))
}

// ExportArrowArray exports an arrow-go array, described by field, through
// ColumnBridge's exporter. The array's data is copied; arr may be released
// as soon as this returns.
func ExportArrowArray(e *ffi.Exporter, field arrow.Field, arr arrow.Array, outArr *ffi.CArrowArray, outSchema *ffi.CArrowSchema) error {
	f, err := data.FieldFromArrow(field)
	if err != nil {
		return err
	}
	col, err := data.FromArrow(arr, field.Nullable)
	if err != nil {
		return err
	}
	if err := e.ExportField(f, outSchema); err != nil {
		return err
	}
	if err := e.ExportArray(col, outArr); err != nil {
		ffi.ReleaseCArrowSchema(outSchema)
		return err
	}
	return nil
}

// ImportWithArrowGo hands an exported pair to arrow-go's importer. The
// schema is released and the array is moved into the result, whose Release
// eventually runs the exporter's release callback.
func ImportWithArrowGo(arr *ffi.CArrowArray, schema *ffi.CArrowSchema) (arrow.Field, arrow.Array, error) {
	field, out, err := cdata.ImportCArray(toArrowGoArray(arr), toArrowGoSchema(schema))
	if err != nil {
		ffi.ReleaseCArrowArray(arr)
		return arrow.Field{}, nil, err
	}
	return field, out, nil
}

// ImportSchemaWithArrowGo imports an exported schema with arrow-go and
// releases it.
func ImportSchemaWithArrowGo(schema *ffi.CArrowSchema) (arrow.Field, error) {
	return cdata.ImportCArrowField(toArrowGoSchema(schema))
}

// ImportRecordBatchWithArrowGo imports an exported record batch with arrow-go.
func ImportRecordBatchWithArrowGo(arr *ffi.CArrowArray, schema *ffi.CArrowSchema) (arrow.Record, error) {
	rec, err := cdata.ImportCRecordBatch(toArrowGoArray(arr), toArrowGoSchema(schema))
	if err != nil {
		ffi.ReleaseCArrowArray(arr)
		return nil, err
	}
	return rec, nil
}

// ImportStreamWithArrowGo moves an exported stream into an arrow-go reader.
// Each record is owned by the reader and released on the following Read;
// Read returns io.EOF once the stream ends.
func ImportStreamWithArrowGo(stream *ffi.CArrowArrayStream) (arrio.Reader, error) {
	return cdata.ImportCRecordReader(toArrowGoStream(stream), nil)
}

// VerifyResult reports how a column survived both readers.
type VerifyResult struct {
	Name     string `json:"name"`
	Format   string `json:"format"`
	Reader   bool   `json:"reader"`
	ArrowGo  bool   `json:"arrow_go"`
	Mismatch string `json:"mismatch,omitempty"`
}

// OK reports whether both readers recovered the column exactly.
func (r VerifyResult) OK() bool { return r.Reader && r.ArrowGo }

// Verify exports col under name, reads the export back with the ffi
// reader and with arrow-go, and compares both against col. All exported
// memory is released before it returns.
func Verify(e *ffi.Exporter, name string, col *data.Column) (VerifyResult, error) {
	res := VerifyResult{Name: name}
	format, err := layout.FormatCode(col.Type())
	if err != nil {
		return res, err
	}
	res.Format = format

	var arr ffi.CArrowArray
	var schema ffi.CArrowSchema
	if err := e.Export(col, name, &arr, &schema); err != nil {
		return res, err
	}
	// no-ops once arrow-go has taken both
	defer ffi.ReleaseCArrowArray(&arr)
	defer ffi.ReleaseCArrowSchema(&schema)

	var mismatches []error

	f, back, err := ffi.ImportColumn(&arr, &schema)
	switch {
	case err != nil:
		mismatches = append(mismatches, fmt.Errorf("reader: %w", err))
	case !f.Equal(col.Field(name)):
		mismatches = append(mismatches, fmt.Errorf("reader: field %s, want %s", f, col.Field(name)))
	case !back.Equal(col):
		mismatches = append(mismatches, fmt.Errorf("reader: values %s, want %s", back, col))
	default:
		res.Reader = true
	}

	field, goArr, err := ImportWithArrowGo(&arr, &schema)
	if err != nil {
		mismatches = append(mismatches, fmt.Errorf("arrow-go: %w", err))
	} else {
		defer goArr.Release()
		if err := compareArrowGo(name, col, field, goArr); err != nil {
			mismatches = append(mismatches, fmt.Errorf("arrow-go: %w", err))
		} else {
			res.ArrowGo = true
		}
	}

	if err := errors.Join(mismatches...); err != nil {
		res.Mismatch = err.Error()
	}
	return res, nil
}

func compareArrowGo(name string, col *data.Column, field arrow.Field, arr arrow.Array) error {
	want, err := data.FieldToArrow(col.Field(name))
	if err != nil {
		return err
	}
	if !field.Equal(want) {
		return fmt.Errorf("%w: field %s, want %s", layout.ErrFormatMismatch, field, want)
	}
	if v, ok := arr.(interface{ ValidateFull() error }); ok {
		if err := v.ValidateFull(); err != nil {
			return fmt.Errorf("%w: %v", layout.ErrFormatMismatch, err)
		}
	}
	got, err := data.FromArrow(arr, field.Nullable)
	if err != nil {
		return err
	}
	if !got.Equal(col) {
		return fmt.Errorf("%w: values %s, want %s", layout.ErrFormatMismatch, got, col)
	}
	return nil
}
