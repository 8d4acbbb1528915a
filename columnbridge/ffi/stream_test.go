package ffi

import (
	"syscall"
	"testing"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportStream(t *testing.T) {
	obs := newRecordingObserver()
	e := checkedExporter(t, WithObserver(obs))
	field := layout.Field{Name: "v", Type: layout.Int64, Nullable: true}
	chunks := []*data.Column{
		must(t)(data.FromOptional(layout.Int64, []*int64{ptr[int64](1), nil})),
		must(t)(data.New(layout.Int64, []int64{3}, data.WithNullable(true))),
	}

	var stream CArrowArrayStream
	require.NoError(t, e.ExportStream(field, chunks, &stream))

	var schema CArrowSchema
	require.Equal(t, 0, int(cbridgeStreamGetSchema(&stream, &schema)))
	got, err := ImportField(&schema)
	require.NoError(t, err)
	assert.True(t, got.Equal(field))
	ReleaseCArrowSchema(&schema)

	for i, want := range chunks {
		var arr CArrowArray
		require.Equal(t, 0, int(cbridgeStreamGetNext(&stream, &arr)), "chunk %d", i)
		require.False(t, ViewArray(&arr).Released())
		_, back, err := ImportColumn(&arr, mustSchema(t, e, field))
		require.NoError(t, err)
		assert.True(t, want.Equal(back))
		ReleaseCArrowArray(&arr)
	}

	var end CArrowArray
	require.Equal(t, 0, int(cbridgeStreamGetNext(&stream, &end)))
	assert.True(t, ViewArray(&end).Released())
	assert.Nil(t, cbridgeStreamGetLastError(&stream))

	ReleaseCArrowArrayStream(&stream)
	assert.True(t, isStreamReleased(&stream))
	assert.Equal(t, 1, obs.exported[KindStream])
	assert.Equal(t, 1, obs.released[KindStream])
}

// mustSchema exports field and schedules its release.
func mustSchema(t *testing.T, e *Exporter, field layout.Field) *CArrowSchema {
	t.Helper()
	schema := new(CArrowSchema)
	require.NoError(t, e.ExportField(field, schema))
	t.Cleanup(func() { ReleaseCArrowSchema(schema) })
	return schema
}

func TestExportStreamRejectsMismatchedChunk(t *testing.T) {
	e := checkedExporter(t)
	field := layout.Field{Name: "v", Type: layout.Int64}
	chunks := []*data.Column{
		must(t)(data.New(layout.Int64, []int64{1})),
		must(t)(data.New(layout.Int32, []int32{1})),
	}

	var stream CArrowArrayStream
	err := e.ExportStream(field, chunks, &stream)
	assert.ErrorIs(t, err, layout.ErrFormatMismatch)
	assert.True(t, isStreamReleased(&stream))

	nullable := []*data.Column{must(t)(data.New(layout.Int64, []int64{1}, data.WithNullable(true)))}
	err = e.ExportStream(field, nullable, &stream)
	assert.ErrorIs(t, err, layout.ErrFormatMismatch)
}

func TestExportRecordBatchStream(t *testing.T) {
	e := checkedExporter(t)
	fields := []layout.Field{{Name: "n", Type: layout.Uint32}}
	var batches []*data.RecordBatch
	for i := 0; i < 3; i++ {
		col := must(t)(data.New(layout.Uint32, []uint32{uint32(i), uint32(i * 10)}))
		rb, err := data.NewRecordBatch(fields, []*data.Column{col})
		require.NoError(t, err)
		batches = append(batches, rb)
	}

	var stream CArrowArrayStream
	require.NoError(t, e.ExportRecordBatchStream(fields, batches, &stream))
	defer ReleaseCArrowArrayStream(&stream)

	var schema CArrowSchema
	require.Equal(t, 0, int(cbridgeStreamGetSchema(&stream, &schema)))
	defer ReleaseCArrowSchema(&schema)
	assert.Equal(t, "+s", ViewSchema(&schema).Format())

	n := 0
	for {
		var arr CArrowArray
		require.Equal(t, 0, int(cbridgeStreamGetNext(&stream, &arr)))
		if ViewArray(&arr).Released() {
			break
		}
		assert.Equal(t, 2, ViewArray(&arr).Len())
		ReleaseCArrowArray(&arr)
		n++
	}
	assert.Equal(t, 3, n)

	other := []layout.Field{{Name: "m", Type: layout.Uint32}}
	var bad CArrowArrayStream
	err := e.ExportRecordBatchStream(other, batches, &bad)
	assert.ErrorIs(t, err, layout.ErrFormatMismatch)
}

func TestStreamCallbacksAfterRelease(t *testing.T) {
	e := checkedExporter(t)
	field := layout.Field{Name: "v", Type: layout.Bool}

	var stream CArrowArrayStream
	require.NoError(t, e.ExportStream(field, nil, &stream))
	id := privateID(stream.private_data)
	ReleaseCArrowArrayStream(&stream)

	// a stale copy still carrying the old id
	stale := stream
	_, ok := lookupStream(id)
	assert.False(t, ok)

	var schema CArrowSchema
	assert.Equal(t, int(syscall.EINVAL), int(cbridgeStreamGetSchema(&stale, &schema)))
	var arr CArrowArray
	assert.Equal(t, int(syscall.EINVAL), int(cbridgeStreamGetNext(&stale, &arr)))
	assert.Nil(t, cbridgeStreamGetLastError(&stale))
}

func TestStreamLastError(t *testing.T) {
	e := checkedExporter(t)
	st := &streamState{exporter: e}
	assert.Equal(t, int(syscall.EINVAL), st.result(layout.ErrInvalidLayout))
	msg := st.lastError()
	require.NotNil(t, msg)
	assert.Equal(t, layout.ErrInvalidLayout.Error(), cgoString(msg))
	st.close()
	assert.Nil(t, st.lastError())
}
