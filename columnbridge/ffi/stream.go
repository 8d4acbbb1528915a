package ffi

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"go.uber.org/zap"
)

// streamState backs one exported ArrowArrayStream. The C interface gives
// no concurrency guarantee, but callbacks are serialized anyway.
type streamState struct {
	id       uintptr
	exporter *Exporter
	field    layout.Field
	chunks   []*data.Column

	mu      sync.Mutex
	pos     int
	lastErr unsafe.Pointer
}

var streams sync.Map // handle id -> *streamState

func lookupStream(id uintptr) (*streamState, bool) {
	v, ok := streams.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*streamState), true
}

// ExportStream fills out with a stream yielding chunks in order, each an
// array of field's type. Every chunk is validated up front; a chunk whose
// type or nullability differs from field is ErrFormatMismatch.
func (e *Exporter) ExportStream(field layout.Field, chunks []*data.Column, out *CArrowArrayStream) error {
	if err := field.Type.Validate(); err != nil {
		return err
	}
	if err := checkCStrings(field); err != nil {
		return err
	}
	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("%w: chunk %d is nil", layout.ErrInvalidLayout, i)
		}
		if !c.Type().Equal(field.Type) || c.Nullable() != field.Nullable {
			return fmt.Errorf("%w: chunk %d is %s (nullable=%t), stream is %s (nullable=%t)",
				layout.ErrFormatMismatch, i, c.Type(), c.Nullable(), field.Type, field.Nullable)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	st := &streamState{
		exporter: e,
		field:    field,
		chunks:   append([]*data.Column(nil), chunks...),
	}
	h := e.newHandle(KindStream)
	h.adopt(st.close)
	st.id = h.register()
	streams.Store(st.id, st)
	bindStream(out, st.id)
	return nil
}

// ExportRecordBatchStream fills out with a stream of record batches sharing
// fields. Each batch travels as a non-nullable struct array.
func (e *Exporter) ExportRecordBatchStream(fields []layout.Field, batches []*data.RecordBatch, out *CArrowArrayStream) error {
	return e.ExportRecordBatchStreamWithMetadata(fields, layout.Metadata{}, batches, out)
}

// ExportRecordBatchStreamWithMetadata is ExportRecordBatchStream with md
// attached to the stream's top-level struct schema.
func (e *Exporter) ExportRecordBatchStreamWithMetadata(fields []layout.Field, md layout.Metadata, batches []*data.RecordBatch, out *CArrowArrayStream) error {
	chunks := make([]*data.Column, len(batches))
	for i, rb := range batches {
		if rb == nil {
			return fmt.Errorf("%w: batch %d is nil", layout.ErrInvalidLayout, i)
		}
		if err := data.ValidateFields(rb.Fields(), fields); err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		st, err := rb.AsStruct()
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		chunks[i] = st
	}
	return e.ExportStream(layout.Field{Type: layout.Struct(fields...), Metadata: md}, chunks, out)
}

func (s *streamState) getSchema(out *CArrowSchema) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result(s.exporter.ExportField(s.field, out))
}

// getNext exports the next chunk, or marks out released at end of stream.
func (s *streamState) getNext(out *CArrowArray) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.chunks) {
		*out = CArrowArray{}
		return 0
	}
	if err := s.exporter.ExportArray(s.chunks[s.pos], out); err != nil {
		return s.result(err)
	}
	s.pos++
	return 0
}

func (s *streamState) result(err error) int {
	if err == nil {
		return 0
	}
	s.setError(err.Error())
	s.exporter.logger.Warn("stream callback failed", zap.Error(err))
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(syscall.EINVAL)
}

func (s *streamState) setError(msg string) {
	if s.lastErr != nil {
		cfree(s.lastErr)
	}
	s.lastErr = cstring(msg)
}

func (s *streamState) lastError() unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// close runs as part of the stream handle's release.
func (s *streamState) close() {
	streams.Delete(s.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr != nil {
		cfree(s.lastErr)
		s.lastErr = nil
	}
	s.chunks = nil
}
