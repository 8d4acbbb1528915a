package ffi

/*
#cgo CFLAGS: -I${SRCDIR}

#include <stdint.h>
#include <stdlib.h>
#include "abi.h"
#include "helpers.h"

// Callbacks implemented in Go (exports.go)
extern void cbridgeReleaseArray(struct ArrowArray* array);
extern void cbridgeReleaseSchema(struct ArrowSchema* schema);
extern void cbridgeReleaseStream(struct ArrowArrayStream* stream);
extern int cbridgeStreamGetSchema(struct ArrowArrayStream* stream, struct ArrowSchema* out);
extern int cbridgeStreamGetNext(struct ArrowArrayStream* stream, struct ArrowArray* out);
extern char* cbridgeStreamGetLastError(struct ArrowArrayStream* stream);

static void cbReleaseArray(struct ArrowArray* array) { cbridgeReleaseArray(array); }
static void cbReleaseSchema(struct ArrowSchema* schema) { cbridgeReleaseSchema(schema); }
static void cbReleaseStream(struct ArrowArrayStream* stream) { cbridgeReleaseStream(stream); }

static int cbStreamGetSchema(struct ArrowArrayStream* stream, struct ArrowSchema* out) {
	return cbridgeStreamGetSchema(stream, out);
}
static int cbStreamGetNext(struct ArrowArrayStream* stream, struct ArrowArray* out) {
	return cbridgeStreamGetNext(stream, out);
}
static const char* cbStreamGetLastError(struct ArrowArrayStream* stream) {
	return cbridgeStreamGetLastError(stream);
}

static void cbBindArray(struct ArrowArray* array, uintptr_t id) {
	array->private_data = cbIDToPrivate(id);
	array->release = cbReleaseArray;
}
static void cbBindSchema(struct ArrowSchema* schema, uintptr_t id) {
	schema->private_data = cbIDToPrivate(id);
	schema->release = cbReleaseSchema;
}
static void cbBindStream(struct ArrowArrayStream* stream, uintptr_t id) {
	stream->get_schema = cbStreamGetSchema;
	stream->get_next = cbStreamGetNext;
	stream->get_last_error = cbStreamGetLastError;
	stream->private_data = cbIDToPrivate(id);
	stream->release = cbReleaseStream;
}

// Target of every empty non-validity buffer; consumers may not accept NULL there.
static const uint8_t cbZeroRegion[64] __attribute__((aligned(64))) = {0};
static const void* cbZeroPtr(void) { return cbZeroRegion; }
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow/memory/mallocator"
	"go.uber.org/zap"
)

type (
	// CArrowSchema is the C Data Interface ArrowSchema struct.
	CArrowSchema = C.struct_ArrowSchema
	// CArrowArray is the C Data Interface ArrowArray struct.
	CArrowArray = C.struct_ArrowArray
	// CArrowArrayStream is the C Stream Interface ArrowArrayStream struct.
	CArrowArrayStream = C.struct_ArrowArrayStream
)

// Kind names the sort of node an ExportHandle backs.
type Kind string

const (
	KindArray  Kind = "array"
	KindSchema Kind = "schema"
	KindStream Kind = "stream"
)

// Observer receives export lifecycle events. Implementations must be safe
// for concurrent use; release callbacks may run on any thread.
type Observer interface {
	Exported(kind Kind, nbytes int)
	Released(kind Kind, nbytes int)
	DoubleRelease(kind Kind)
}

type nopObserver struct{}

func (nopObserver) Exported(Kind, int) {}
func (nopObserver) Released(Kind, int) {}
func (nopObserver) DoubleRelease(Kind) {}

// Exporter builds C Data Interface structures from logical columns.
// An Exporter holds no per-export state and may be shared between goroutines.
type Exporter struct {
	alloc    *mallocator.Mallocator
	observer Observer
	logger   *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithAllocator sets the C allocator buffers are taken from.
func WithAllocator(alloc *mallocator.Mallocator) Option {
	return func(e *Exporter) { e.alloc = alloc }
}

// WithObserver sets the receiver of export and release events.
func WithObserver(o Observer) Option {
	return func(e *Exporter) { e.observer = o }
}

// WithLogger sets the logger used for release anomalies.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// NewExporter creates a new Exporter.
func NewExporter(opts ...Option) *Exporter {
	e := &Exporter{
		alloc:    mallocator.NewMallocator(),
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExporter = NewExporter()

// ExportColumn exports col and its schema under name with the default Exporter.
func ExportColumn(col *data.Column, name string, outArr *CArrowArray, outSchema *CArrowSchema) error {
	return defaultExporter.Export(col, name, outArr, outSchema)
}

// ExportField exports a schema node with the default Exporter.
func ExportField(f layout.Field, out *CArrowSchema) error {
	return defaultExporter.ExportField(f, out)
}

// ExportArray exports an array node with the default Exporter.
func ExportArray(col *data.Column, out *CArrowArray) error {
	return defaultExporter.ExportArray(col, out)
}

// Export exports col as an array/schema pair. On error neither output is
// touched.
func (e *Exporter) Export(col *data.Column, name string, outArr *CArrowArray, outSchema *CArrowSchema) error {
	if col == nil {
		return fmt.Errorf("%w: nil column", layout.ErrInvalidLayout)
	}
	return e.exportPair(col, col.Field(name), outArr, outSchema)
}

func (e *Exporter) exportPair(col *data.Column, f layout.Field, outArr *CArrowArray, outSchema *CArrowSchema) error {
	if err := e.ExportField(f, outSchema); err != nil {
		return err
	}
	if err := e.ExportArray(col, outArr); err != nil {
		ReleaseCArrowSchema(outSchema)
		*outSchema = CArrowSchema{}
		return err
	}
	return nil
}

// ExportRecordBatch exports rb as a non-nullable struct array with one
// child per column, the C Data Interface form of a record batch. The
// batch metadata goes on the top-level struct schema.
func (e *Exporter) ExportRecordBatch(rb *data.RecordBatch, outArr *CArrowArray, outSchema *CArrowSchema) error {
	if rb == nil {
		return fmt.Errorf("%w: nil record batch", layout.ErrInvalidLayout)
	}
	st, err := rb.AsStruct()
	if err != nil {
		return err
	}
	f := st.Field("")
	f.Metadata = rb.Metadata()
	return e.exportPair(st, f, outArr, outSchema)
}

// ReleaseCArrowArray invokes the release callback of arr unless it is
// already released.
func ReleaseCArrowArray(arr *CArrowArray) { C.ArrowArrayRelease(arr) }

// ReleaseCArrowSchema invokes the release callback of schema unless it is
// already released.
func ReleaseCArrowSchema(schema *CArrowSchema) { C.ArrowSchemaRelease(schema) }

// ReleaseCArrowArrayStream invokes the release callback of stream unless it
// is already released.
func ReleaseCArrowArrayStream(stream *CArrowArrayStream) { C.ArrowArrayStreamRelease(stream) }

func zeroRegion() unsafe.Pointer { return unsafe.Pointer(C.cbZeroPtr()) }

func bindArray(arr *CArrowArray, id uintptr)  { C.cbBindArray(arr, C.uintptr_t(id)) }
func bindSchema(s *CArrowSchema, id uintptr)  { C.cbBindSchema(s, C.uintptr_t(id)) }
func bindStream(s *CArrowArrayStream, id uintptr) { C.cbBindStream(s, C.uintptr_t(id)) }

func privateID(p unsafe.Pointer) uintptr { return uintptr(C.cbPrivateToID(p)) }

func isArrayReleased(arr *CArrowArray) bool    { return C.ArrowArrayIsReleased(arr) == 1 }
func isSchemaReleased(s *CArrowSchema) bool     { return C.ArrowSchemaIsReleased(s) == 1 }
func isStreamReleased(s *CArrowArrayStream) bool { return C.ArrowArrayStreamIsReleased(s) == 1 }

func markArrayReleased(arr *CArrowArray)          { C.ArrowArrayMarkReleased(arr) }
func markSchemaReleased(s *CArrowSchema)          { C.ArrowSchemaMarkReleased(s) }
func markStreamReleased(s *CArrowArrayStream)     { C.ArrowArrayStreamMarkReleased(s) }

// allocArray returns a zeroed ArrowArray on the C heap.
func allocArray() *CArrowArray {
	return (*CArrowArray)(C.calloc(1, C.sizeof_struct_ArrowArray))
}

// allocSchema returns a zeroed ArrowSchema on the C heap.
func allocSchema() *CArrowSchema {
	return (*CArrowSchema)(C.calloc(1, C.sizeof_struct_ArrowSchema))
}

func allocPtrArray(n int) unsafe.Pointer {
	return C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(unsafe.Pointer(nil))))
}

func cfree(p unsafe.Pointer) { C.free(p) }

func cstring(s string) unsafe.Pointer { return unsafe.Pointer(C.CString(s)) }

func cbytes(b []byte) unsafe.Pointer { return C.CBytes(b) }
