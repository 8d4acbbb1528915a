package ffi

import (
	"sync"
	"testing"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory/mallocator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	exported map[Kind]int
	released map[Kind]int
	doubles  map[Kind]int
	bytes    int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		exported: map[Kind]int{},
		released: map[Kind]int{},
		doubles:  map[Kind]int{},
	}
}

func (o *recordingObserver) Exported(kind Kind, nbytes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exported[kind]++
	o.bytes += nbytes
}

func (o *recordingObserver) Released(kind Kind, nbytes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released[kind]++
	o.bytes -= nbytes
}

func (o *recordingObserver) DoubleRelease(kind Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doubles[kind]++
}

// checkedExporter returns an exporter whose allocations are asserted to be
// fully released when the test ends.
func checkedExporter(t *testing.T, opts ...Option) *Exporter {
	t.Helper()
	mem := mallocator.NewMallocator()
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return NewExporter(append([]Option{WithAllocator(mem)}, opts...)...)
}

func must(t *testing.T) func(*data.Column, error) *data.Column {
	return func(c *data.Column, err error) *data.Column {
		t.Helper()
		require.NoError(t, err)
		return c
	}
}

func ptr[T any](v T) *T { return &v }

func TestExportInt32NonNullable(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.New(layout.Int32, []int32{11, 22, 33}))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	av := ViewArray(&arr)
	assert.Equal(t, 3, av.Len())
	assert.Equal(t, 0, av.NullCount())
	assert.Equal(t, 0, av.Offset())
	require.Equal(t, 2, av.NumBuffers())
	assert.Nil(t, av.BufferPtr(0))
	assert.Equal(t, []int32{11, 22, 33}, arrow.Int32Traits.CastFromBytes(av.Buffer(1, 12)))
	assert.Equal(t, 0, av.NumChildren())
	assert.False(t, av.Released())
}

func TestExportBoolPacksBits(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.New(layout.Bool, []bool{true, false, true}))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	av := ViewArray(&arr)
	assert.Equal(t, 3, av.Len())
	assert.Nil(t, av.BufferPtr(0))
	assert.Equal(t, []byte{0x05}, av.Buffer(1, 1))
}

func TestExportStrings(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.New(layout.String, []string{"foo", "bar"}))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	av := ViewArray(&arr)
	require.Equal(t, 3, av.NumBuffers())
	assert.Nil(t, av.BufferPtr(0))
	assert.Equal(t, []int32{0, 3, 6}, arrow.Int32Traits.CastFromBytes(av.Buffer(1, 12)))
	assert.Equal(t, "foobar", string(av.Buffer(2, 6)))
}

func TestExportLargeStrings(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.FromOptional(layout.LargeString, []*string{ptr("ab"), nil, ptr("c")}))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	av := ViewArray(&arr)
	assert.Equal(t, 1, av.NullCount())
	assert.Equal(t, []int64{0, 2, 2, 3}, arrow.Int64Traits.CastFromBytes(av.Buffer(1, 32)))
	assert.Equal(t, "abc", string(av.Buffer(2, 3)))
}

func TestExportNullableInt32(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.FromOptional(layout.Int32, []*int32{ptr[int32](42), nil, ptr[int32](88)}))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	av := ViewArray(&arr)
	assert.Equal(t, 3, av.Len())
	assert.Equal(t, 1, av.NullCount())
	validity := av.Buffer(0, 1)
	require.NotNil(t, validity)
	assert.Equal(t, byte(0x05), validity[0]&0x07)
	values := arrow.Int32Traits.CastFromBytes(av.Buffer(1, 12))
	assert.Equal(t, int32(42), values[0])
	assert.Equal(t, int32(88), values[2])
}

func TestExportNullableWithoutNullsOmitsValidity(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.New(layout.Float64, []float64{1, 2}, data.WithNullable(true)))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	assert.Nil(t, ViewArray(&arr).BufferPtr(0))
	assert.Equal(t, 0, ViewArray(&arr).NullCount())
}

func TestExportDictionary(t *testing.T) {
	e := checkedExporter(t)
	dict := must(t)(data.New(layout.String, []string{"A", "B"}))
	col := must(t)(data.NewDictionary(layout.INT8, []uint64{0, 1, 0}, dict))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)

	av := ViewArray(&arr)
	require.Equal(t, 2, av.NumBuffers())
	assert.Equal(t, []byte{0, 1, 0}, av.Buffer(1, 3))

	dv, ok := av.Dictionary()
	require.True(t, ok)
	assert.Equal(t, 2, dv.Len())
	assert.Equal(t, []int32{0, 1, 2}, arrow.Int32Traits.CastFromBytes(dv.Buffer(1, 12)))
	assert.Equal(t, "AB", string(dv.Buffer(2, 2)))
}

func TestExportDictionaryCodeWidths(t *testing.T) {
	dict := must(t)(data.New(layout.Int64, []int64{7, 8, 9}))
	widths := map[layout.TypeID]int{
		layout.INT8: 1, layout.UINT8: 1, layout.INT16: 2, layout.UINT16: 2,
		layout.INT32: 4, layout.UINT32: 4, layout.INT64: 8, layout.UINT64: 8,
	}
	for index, width := range widths {
		t.Run(index.String(), func(t *testing.T) {
			e := checkedExporter(t)
			col := must(t)(data.NewDictionary(index, []uint64{2, 0}, dict))

			var arr CArrowArray
			require.NoError(t, e.ExportArray(col, &arr))
			defer ReleaseCArrowArray(&arr)

			codes := ViewArray(&arr).Buffer(1, 2*width)
			assert.Equal(t, byte(2), codes[0])
			assert.Equal(t, byte(0), codes[width])
		})
	}
}

func TestExportSchemaNameAndFormat(t *testing.T) {
	e := checkedExporter(t)

	var schema CArrowSchema
	require.NoError(t, e.ExportField(layout.Field{Name: "ts", Type: layout.Date64}, &schema))
	defer ReleaseCArrowSchema(&schema)

	sv := ViewSchema(&schema)
	assert.Equal(t, "tdm", sv.Format())
	assert.Equal(t, "ts", sv.Name())
	assert.Equal(t, int64(0), sv.Flags())

	f, err := ImportField(&schema)
	require.NoError(t, err)
	assert.Equal(t, "ts", f.Name)
	assert.True(t, f.Type.Equal(layout.Date64))
}

func TestExportSchemaEmptyNameIsNotNull(t *testing.T) {
	e := checkedExporter(t)

	var schema CArrowSchema
	require.NoError(t, e.ExportField(layout.Field{Type: layout.Int8, Nullable: true}, &schema))
	defer ReleaseCArrowSchema(&schema)

	assert.NotNil(t, schema.name)
	assert.Equal(t, "", ViewSchema(&schema).Name())
	assert.True(t, ViewSchema(&schema).Nullable())
}

func TestExportSchemaTimestamp(t *testing.T) {
	e := checkedExporter(t)
	f := layout.Field{Name: "at", Type: layout.Timestamp(layout.Nanosecond, "Europe/Paris")}

	var schema CArrowSchema
	require.NoError(t, e.ExportField(f, &schema))
	defer ReleaseCArrowSchema(&schema)

	assert.Equal(t, "tsn:Europe/Paris", ViewSchema(&schema).Format())
}

func TestExportSchemaDictionary(t *testing.T) {
	e := checkedExporter(t)
	f := layout.Field{Name: "d", Type: layout.OrderedDictionary(layout.INT16, layout.String), Nullable: true}

	var schema CArrowSchema
	require.NoError(t, e.ExportField(f, &schema))
	defer ReleaseCArrowSchema(&schema)

	sv := ViewSchema(&schema)
	assert.Equal(t, "s", sv.Format())
	assert.Equal(t, layout.FlagNullable|layout.FlagDictionaryOrdered, sv.Flags())

	dv, ok := sv.Dictionary()
	require.True(t, ok)
	assert.Equal(t, "u", dv.Format())
	assert.Equal(t, "", dv.Name())
	assert.True(t, dv.Nullable())

	back, err := ImportField(&schema)
	require.NoError(t, err)
	assert.True(t, back.Equal(f), "%s != %s", back, f)
}

func TestExportSchemaMetadata(t *testing.T) {
	e := checkedExporter(t)
	md := layout.NewMetadata([]string{"unit", "", "unit"}, []string{"ms", "empty key", "dup"})
	f := layout.Field{Name: "m", Type: layout.Int64, Metadata: md}

	var schema CArrowSchema
	require.NoError(t, e.ExportField(f, &schema))
	defer ReleaseCArrowSchema(&schema)

	got, err := ViewSchema(&schema).Metadata()
	require.NoError(t, err)
	assert.True(t, got.Equal(md))

	var plain CArrowSchema
	require.NoError(t, e.ExportField(layout.Field{Name: "p", Type: layout.Int64}, &plain))
	defer ReleaseCArrowSchema(&plain)
	assert.Nil(t, plain.metadata)
}

func TestExportRecordBatch(t *testing.T) {
	e := checkedExporter(t)
	fields := []layout.Field{
		{Name: "id", Type: layout.Int32},
		{Name: "tag", Type: layout.String, Nullable: true},
	}
	ids := must(t)(data.New(layout.Int32, []int32{1, 2}))
	tags := must(t)(data.FromOptional(layout.String, []*string{ptr("x"), nil}))
	rb, err := data.NewRecordBatch(fields, []*data.Column{ids, tags})
	require.NoError(t, err)

	var arr CArrowArray
	var schema CArrowSchema
	require.NoError(t, e.ExportRecordBatch(rb, &arr, &schema))
	defer ReleaseCArrowSchema(&schema)
	defer ReleaseCArrowArray(&arr)

	sv := ViewSchema(&schema)
	assert.Equal(t, "+s", sv.Format())
	assert.Equal(t, "", sv.Name())
	assert.False(t, sv.Nullable())
	require.Equal(t, 2, sv.NumChildren())
	assert.Equal(t, "id", sv.Child(0).Name())
	assert.True(t, sv.Child(1).Nullable())

	av := ViewArray(&arr)
	assert.Equal(t, 2, av.Len())
	require.Equal(t, 1, av.NumBuffers())
	assert.Nil(t, av.BufferPtr(0))
	require.Equal(t, 2, av.NumChildren())
	assert.Equal(t, 1, av.Child(1).NullCount())

	var fromFields CArrowSchema
	require.NoError(t, e.ExportSchema(fields, &fromFields))
	defer ReleaseCArrowSchema(&fromFields)
	assert.Equal(t, "+s", ViewSchema(&fromFields).Format())
	assert.Equal(t, 2, ViewSchema(&fromFields).NumChildren())
}

func TestExportEmptyColumnsUseZeroRegion(t *testing.T) {
	e := checkedExporter(t)
	cols := []*data.Column{
		must(t)(data.New(layout.Int64, []int64{})),
		must(t)(data.New(layout.String, []string{})),
		must(t)(data.New(layout.Bool, []bool{})),
	}
	for _, col := range cols {
		var arr CArrowArray
		require.NoError(t, e.ExportArray(col, &arr))
		av := ViewArray(&arr)
		assert.Equal(t, 0, av.Len())
		assert.Nil(t, av.BufferPtr(0))
		for i := 1; i < av.NumBuffers(); i++ {
			assert.NotNil(t, av.BufferPtr(i), "%s buffer %d", col.Type(), i)
		}
		ReleaseCArrowArray(&arr)
	}
}

func TestExportErrorsLeaveOutputUntouched(t *testing.T) {
	e := checkedExporter(t)
	dict := must(t)(data.New(layout.String, []string{"A", "B"}))

	tests := []struct {
		name string
		col  *data.Column
		want error
	}{
		{
			name: "null in non-nullable",
			col:  must(t)(data.New(layout.Int32, []int32{1, 2}, data.WithValidity([]bool{true, false}), data.WithNullable(false))),
			want: layout.ErrNullInNonNullable,
		},
		{
			name: "code past dictionary",
			col:  must(t)(data.NewDictionary(layout.UINT8, []uint64{0, 2}, dict)),
			want: layout.ErrDictionaryCodeOutOfRange,
		},
		{
			name: "code past index type",
			col:  must(t)(data.NewDictionary(layout.INT8, []uint64{0, 200}, dict)),
			want: layout.ErrDictionaryCodeOutOfRange,
		},
		{
			name: "nil column",
			col:  nil,
			want: layout.ErrInvalidLayout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var arr CArrowArray
			err := e.ExportArray(tt.col, &arr)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, ViewArray(&arr).Released())
			assert.Nil(t, arr.buffers)
		})
	}
}

func TestExportColumnPair(t *testing.T) {
	col := must(t)(data.New(layout.Uint16, []uint16{1, 2, 3}))

	var arr CArrowArray
	var schema CArrowSchema
	require.NoError(t, ExportColumn(col, "u", &arr, &schema))
	defer ReleaseCArrowSchema(&schema)
	defer ReleaseCArrowArray(&arr)

	assert.Equal(t, "S", ViewSchema(&schema).Format())
	assert.Equal(t, "u", ViewSchema(&schema).Name())
	assert.Equal(t, 3, ViewArray(&arr).Len())
}

func TestExportPairFailureReleasesSchema(t *testing.T) {
	obs := newRecordingObserver()
	e := checkedExporter(t, WithObserver(obs))
	col := must(t)(data.New(layout.Int8, []int8{1}, data.WithValidity([]bool{false}), data.WithNullable(false)))

	var arr CArrowArray
	var schema CArrowSchema
	err := e.Export(col, "x", &arr, &schema)
	assert.ErrorIs(t, err, layout.ErrNullInNonNullable)
	assert.True(t, ViewSchema(&schema).Released())
	assert.True(t, ViewArray(&arr).Released())
	assert.Equal(t, obs.exported[KindSchema], obs.released[KindSchema])
}

func TestExportRejectsNulInNames(t *testing.T) {
	e := checkedExporter(t)
	ints := must(t)(data.New(layout.Int32, []int32{1}))

	tests := []struct {
		name  string
		field layout.Field
	}{
		{name: "field name", field: layout.Field{Name: "a\x00b", Type: layout.Int32}},
		{name: "time zone", field: layout.Field{Name: "ts", Type: layout.Timestamp(layout.Second, "UTC\x00x")}},
		{name: "struct child", field: layout.Field{Type: layout.Struct(layout.Field{Name: "in\x00ner", Type: layout.Int32})}},
		{name: "dictionary value", field: layout.Field{Name: "d", Type: layout.Dictionary(layout.INT8, layout.Timestamp(layout.Millisecond, "\x00"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var schema CArrowSchema
			err := e.ExportField(tt.field, &schema)
			assert.ErrorIs(t, err, layout.ErrInvalidLayout)
			assert.True(t, ViewSchema(&schema).Released())
		})
	}

	var arr CArrowArray
	var schema CArrowSchema
	err := e.Export(ints, "a\x00b", &arr, &schema)
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)
	assert.True(t, ViewArray(&arr).Released())

	var stream CArrowArrayStream
	err = e.ExportStream(layout.Field{Name: "x\x00", Type: layout.Int32}, []*data.Column{ints}, &stream)
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)
	assert.True(t, isStreamReleased(&stream))
}

func TestExportNameRoundTripsBytes(t *testing.T) {
	e := checkedExporter(t)
	name := "naïve é漢\t"
	col := must(t)(data.New(layout.Int8, []int8{1}))

	var arr CArrowArray
	var schema CArrowSchema
	require.NoError(t, e.Export(col, name, &arr, &schema))
	defer ReleaseCArrowSchema(&schema)
	defer ReleaseCArrowArray(&arr)

	f, _, err := ImportColumn(&arr, &schema)
	require.NoError(t, err)
	assert.Equal(t, name, f.Name)
}

func TestExportNilInputs(t *testing.T) {
	e := checkedExporter(t)

	var arr CArrowArray
	var schema CArrowSchema
	assert.ErrorIs(t, e.Export(nil, "x", &arr, &schema), layout.ErrInvalidLayout)
	assert.ErrorIs(t, ExportColumn(nil, "x", &arr, &schema), layout.ErrInvalidLayout)
	assert.ErrorIs(t, e.ExportRecordBatch(nil, &arr, &schema), layout.ErrInvalidLayout)
	assert.True(t, ViewSchema(&schema).Released())
	assert.True(t, ViewArray(&arr).Released())

	var stream CArrowArrayStream
	fields := []layout.Field{{Name: "v", Type: layout.Int32}}
	err := e.ExportRecordBatchStream(fields, []*data.RecordBatch{nil}, &stream)
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)
}

func TestExportRecordBatchMetadata(t *testing.T) {
	e := checkedExporter(t)
	fields := []layout.Field{{Name: "id", Type: layout.Int64}}
	rb, err := data.NewRecordBatch(fields, []*data.Column{must(t)(data.New(layout.Int64, []int64{7, 8}))})
	require.NoError(t, err)
	md := layout.NewMetadata([]string{"table", "owner"}, []string{"events", "ops"})
	rb = rb.WithMetadata(md)

	var arr CArrowArray
	var schema CArrowSchema
	require.NoError(t, e.ExportRecordBatch(rb, &arr, &schema))
	defer ReleaseCArrowSchema(&schema)
	defer ReleaseCArrowArray(&arr)

	top, err := ViewSchema(&schema).Metadata()
	require.NoError(t, err)
	assert.True(t, top.Equal(md))
	child, err := ViewSchema(&schema).Child(0).Metadata()
	require.NoError(t, err)
	assert.Equal(t, 0, child.Len())

	back, err := ImportRecordBatch(&arr, &schema)
	require.NoError(t, err)
	assert.True(t, back.Metadata().Equal(md))
	assert.Equal(t, 2, back.NumRows())
	assert.True(t, back.Column(0).Equal(rb.Column(0)))

	var col CArrowArray
	var colSchema CArrowSchema
	require.NoError(t, e.Export(rb.Column(0), "id", &col, &colSchema))
	defer ReleaseCArrowSchema(&colSchema)
	defer ReleaseCArrowArray(&col)
	_, err = ImportRecordBatch(&col, &colSchema)
	assert.ErrorIs(t, err, layout.ErrFormatMismatch)
}
