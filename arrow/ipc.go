package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrNoRecords is returned when an IPC payload carries a schema but no batches.
var ErrNoRecords = errors.New("no records in IPC data")

// IPCCodec encodes and decodes record batches in the Arrow IPC stream format.
type IPCCodec struct {
	allocator memory.Allocator
}

// NewIPCCodec creates a new IPCCodec. A nil allocator means memory.DefaultAllocator.
func NewIPCCodec(mem memory.Allocator) *IPCCodec {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &IPCCodec{allocator: mem}
}

// Encode writes records, which must share a schema, as one IPC stream.
func (c *IPCCodec) Encode(records ...arrow.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("encode: %w", ErrNoRecords)
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(c.allocator))
	defer writer.Close()

	for i, record := range records {
		if !record.Schema().Equal(records[0].Schema()) {
			return nil, fmt.Errorf("record %d: schema differs from record 0", i)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode reads every record of an IPC stream. The caller releases them.
func (c *IPCCodec) Decode(data []byte) (*arrow.Schema, []arrow.Record, error) {
	return c.DecodeFrom(bytes.NewReader(data))
}

// DecodeFrom reads every record of an IPC stream from r.
func (c *IPCCodec) DecodeFrom(r io.Reader) (*arrow.Schema, []arrow.Record, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if err := reader.Err(); err != nil {
		ReleaseAll(records)
		return nil, nil, err
	}
	if len(records) == 0 {
		return reader.Schema(), nil, ErrNoRecords
	}

	return reader.Schema(), records, nil
}

// DecodeFile reads every record of an IPC file (random-access format).
func (c *IPCCodec) DecodeFile(r ipc.ReadAtSeeker) (*arrow.Schema, []arrow.Record, error) {
	reader, err := ipc.NewFileReader(r, ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open IPC file: %w", err)
	}
	defer reader.Close()

	records := make([]arrow.Record, 0, reader.NumRecords())
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		if err != nil {
			ReleaseAll(records)
			return nil, nil, fmt.Errorf("failed to read record %d: %w", i, err)
		}
		record.Retain()
		records = append(records, record)
	}
	if len(records) == 0 {
		return reader.Schema(), nil, ErrNoRecords
	}
	return reader.Schema(), records, nil
}

// EncodeFile writes records in the IPC file format to w.
func (c *IPCCodec) EncodeFile(w io.Writer, records ...arrow.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("encode: %w", ErrNoRecords)
	}
	writer, err := ipc.NewFileWriter(w, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(c.allocator))
	if err != nil {
		return fmt.Errorf("failed to create file writer: %w", err)
	}
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return writer.Close()
}

// ReleaseAll releases every record.
func ReleaseAll(records []arrow.Record) {
	for _, r := range records {
		r.Release()
	}
}
