package arrow

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func buildRecord(t *testing.T, mem memory.Allocator, ids []int64, names []string) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	b.Field(1).(*array.StringBuilder).AppendValues(names, nil)
	return b.NewRecord()
}

func TestIPCCodecRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	codec := NewIPCCodec(mem)
	first := buildRecord(t, mem, []int64{1, 2}, []string{"a", "b"})
	defer first.Release()
	second := buildRecord(t, mem, []int64{3}, []string{"c"})
	defer second.Release()

	payload, err := codec.Encode(first, second)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	schema, records, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer ReleaseAll(records)

	if !schema.Equal(first.Schema()) {
		t.Errorf("schema mismatch: %s", schema)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !array.RecordEqual(records[0], first) || !array.RecordEqual(records[1], second) {
		t.Error("decoded records differ from the encoded ones")
	}
}

func TestIPCCodecEmpty(t *testing.T) {
	codec := NewIPCCodec(nil)
	if _, err := codec.Encode(); !errors.Is(err, ErrNoRecords) {
		t.Errorf("expected ErrNoRecords, got %v", err)
	}
	if _, _, err := codec.Decode([]byte("not arrow")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestIPCCodecSchemaMismatch(t *testing.T) {
	mem := memory.NewGoAllocator()
	codec := NewIPCCodec(mem)

	rec := buildRecord(t, mem, []int64{1}, []string{"a"})
	defer rec.Release()
	other := array.NewRecord(arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil),
		[]arrow.Array{rec.Column(0)}, 1)
	defer other.Release()

	if _, err := codec.Encode(rec, other); err == nil {
		t.Error("expected error for mixed schemas")
	}
}

func TestIPCCodecFile(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	codec := NewIPCCodec(mem)

	rec := buildRecord(t, mem, []int64{7, 8, 9}, []string{"x", "y", "z"})
	defer rec.Release()

	path := filepath.Join(t.TempDir(), "batch.arrow")
	var buf bytes.Buffer
	if err := codec.EncodeFile(&buf, rec); err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	_, records, err := codec.DecodeFile(f)
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	defer ReleaseAll(records)
	if len(records) != 1 || !array.RecordEqual(records[0], rec) {
		t.Error("file round trip changed the record")
	}
}
