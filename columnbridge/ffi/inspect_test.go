//go:build test

package ffi

import (
	"testing"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The checks below read the exported structures from plain C.

func TestCInspectPrimitive(t *testing.T) {
	e := checkedExporter(t)

	var arr CArrowArray
	require.NoError(t, e.ExportArray(must(t)(data.New(layout.Int32, []int32{11, 22, 33})), &arr))
	defer ReleaseCArrowArray(&arr)
	assert.True(t, inspectInt32(&arr, []int32{11, 22, 33}))
	assert.True(t, inspectValidity(&arr, []bool{true, true, true}))

	var flags CArrowArray
	require.NoError(t, e.ExportArray(must(t)(data.New(layout.Bool, []bool{true, false, true})), &flags))
	defer ReleaseCArrowArray(&flags)
	assert.True(t, inspectBoolByte(&flags, 0x05))
}

func TestCInspectNullable(t *testing.T) {
	e := checkedExporter(t)
	col := must(t)(data.FromOptional(layout.Int32, []*int32{ptr[int32](42), nil, ptr[int32](88)}))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(col, &arr))
	defer ReleaseCArrowArray(&arr)
	assert.True(t, inspectValidity(&arr, []bool{true, false, true}))
	assert.True(t, inspectInt32(&arr, []int32{42, 0, 88}))
}

func TestCInspectStringsAndDictionary(t *testing.T) {
	e := checkedExporter(t)

	var strs CArrowArray
	require.NoError(t, e.ExportArray(must(t)(data.New(layout.String, []string{"foo", "bar"})), &strs))
	defer ReleaseCArrowArray(&strs)
	assert.True(t, inspectUtf8(&strs, []int32{0, 3, 6}, "foobar"))

	dict := must(t)(data.New(layout.String, []string{"A", "B"}))
	var codes CArrowArray
	require.NoError(t, e.ExportArray(must(t)(data.NewDictionary(layout.UINT8, []uint64{0, 1, 0}, dict)), &codes))
	defer ReleaseCArrowArray(&codes)
	assert.True(t, inspectDictUtf8(&codes, []byte{0, 1, 0}, []int32{0, 1, 2}, "AB"))
}

func TestCInspectSchema(t *testing.T) {
	e := checkedExporter(t)

	var schema CArrowSchema
	require.NoError(t, e.ExportField(layout.Field{Name: "ts", Type: layout.Date64}, &schema))
	defer ReleaseCArrowSchema(&schema)
	assert.True(t, inspectSchema(&schema, "ts", "tdm", 0))

	var nullable CArrowSchema
	require.NoError(t, e.ExportField(layout.Field{Name: "n", Type: layout.Timestamp(layout.Second, "UTC"), Nullable: true}, &nullable))
	defer ReleaseCArrowSchema(&nullable)
	assert.True(t, inspectSchema(&nullable, "n", "tss:UTC", layout.FlagNullable))
}

func TestCReleaseTwice(t *testing.T) {
	obs := newRecordingObserver()
	e := checkedExporter(t, WithObserver(obs))

	var arr CArrowArray
	require.NoError(t, e.ExportArray(must(t)(data.New(layout.Uint64, []uint64{9})), &arr))

	before := AbsorbedReleases()
	assert.True(t, releaseTwiceFromC(&arr))
	assert.Equal(t, before+1, AbsorbedReleases())
	assert.Equal(t, 1, obs.released[KindArray])
}
