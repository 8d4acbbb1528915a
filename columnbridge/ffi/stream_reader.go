package ffi

// #include "abi.h"
// #include "helpers.h"
import "C"

import (
	"fmt"
	"syscall"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// ImportStream drains stream, an ArrowArrayStream from any producer, and
// copies every chunk into a logical column. The stream and each array it
// yields are released before ImportStream returns, on success or error.
// A failing callback surfaces as a syscall.Errno carrying the producer's
// last error message.
func ImportStream(stream *CArrowArrayStream) (layout.Field, []*data.Column, error) {
	if stream == nil || isStreamReleased(stream) {
		return layout.Field{}, nil, fmt.Errorf("%w: stream is released", layout.ErrFormatMismatch)
	}
	defer ReleaseCArrowArrayStream(stream)

	var schema CArrowSchema
	if rc := C.ArrowArrayStreamGetSchema(stream, &schema); rc != 0 {
		return layout.Field{}, nil, streamError(stream, "get_schema", rc)
	}
	defer ReleaseCArrowSchema(&schema)

	f, err := ImportField(&schema)
	if err != nil {
		return layout.Field{}, nil, err
	}

	var chunks []*data.Column
	for {
		var arr CArrowArray
		if rc := C.ArrowArrayStreamGetNext(stream, &arr); rc != 0 {
			return layout.Field{}, nil, streamError(stream, "get_next", rc)
		}
		if isArrayReleased(&arr) {
			return f, chunks, nil
		}
		_, col, err := ImportColumn(&arr, &schema)
		ReleaseCArrowArray(&arr)
		if err != nil {
			return layout.Field{}, nil, fmt.Errorf("chunk %d: %w", len(chunks), err)
		}
		chunks = append(chunks, col)
	}
}

func streamError(stream *CArrowArrayStream, op string, rc C.int) error {
	errno := syscall.Errno(rc)
	if msg := C.ArrowArrayStreamGetLastError(stream); msg != nil {
		return fmt.Errorf("stream %s: %w: %s", op, errno, C.GoString(msg))
	}
	return fmt.Errorf("stream %s: %w", op, errno)
}

// ImportRecordBatchStream drains a stream of struct arrays into record
// batches. The fields and schema-level metadata are returned even when the
// stream yields no batch.
func ImportRecordBatchStream(stream *CArrowArrayStream) ([]layout.Field, layout.Metadata, []*data.RecordBatch, error) {
	f, chunks, err := ImportStream(stream)
	if err != nil {
		return nil, layout.Metadata{}, nil, err
	}
	if f.Type.ID != layout.STRUCT {
		return nil, layout.Metadata{}, nil, fmt.Errorf("%w: record batch stream of %s", layout.ErrFormatMismatch, f.Type)
	}
	batches := make([]*data.RecordBatch, len(chunks))
	for i, c := range chunks {
		if batches[i], err = recordBatchFrom(f, c); err != nil {
			return nil, layout.Metadata{}, nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return f.Type.Fields, f.Metadata, batches, nil
}

// ImportRecordBatch copies a struct array, described by schema, into a
// record batch carrying the schema's metadata. Neither input is released.
func ImportRecordBatch(arr *CArrowArray, schema *CArrowSchema) (*data.RecordBatch, error) {
	f, col, err := ImportColumn(arr, schema)
	if err != nil {
		return nil, err
	}
	if f.Type.ID != layout.STRUCT {
		return nil, fmt.Errorf("%w: record batch of %s", layout.ErrFormatMismatch, f.Type)
	}
	return recordBatchFrom(f, col)
}

func recordBatchFrom(f layout.Field, col *data.Column) (*data.RecordBatch, error) {
	rb, err := data.NewRecordBatch(f.Type.Fields, col.Children())
	if err != nil {
		return nil, err
	}
	if col.Len() != rb.NumRows() {
		return nil, fmt.Errorf("%w: struct of %d rows without children", layout.ErrFormatMismatch, col.Len())
	}
	return rb.WithMetadata(f.Metadata), nil
}
