package data

import (
	"math"
	"testing"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestNewNonNullable(t *testing.T) {
	col, err := New(layout.Int32, []int32{11, 22, 33})
	require.NoError(t, err)
	assert.Equal(t, 3, col.Len())
	assert.False(t, col.Nullable())
	assert.Nil(t, col.Validity())
	assert.Equal(t, 0, col.NullN())
	assert.Equal(t, []int32{11, 22, 33}, col.Values())
	require.NoError(t, col.Validate())
}

func TestNewCopiesInput(t *testing.T) {
	src := []string{"foo", "bar"}
	col, err := New(layout.String, src)
	require.NoError(t, err)
	src[0] = "changed"
	v, _ := col.Value(0)
	assert.Equal(t, "foo", v)
}

func TestNewRejectsStorageMismatch(t *testing.T) {
	_, err := New(layout.Int32, []int64{1})
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)

	_, err = New(layout.Timestamp(layout.Second, ""), []int32{1})
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)

	_, err = New(layout.DataType{}, []int32{1})
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)

	_, err = New(layout.Int32, []int32{1, 2}, WithValidity([]bool{true}))
	assert.ErrorIs(t, err, layout.ErrIndexOutOfRange)
}

func TestFromOptional(t *testing.T) {
	col, err := FromOptional(layout.Int32, []*int32{ptr[int32](42), nil, ptr[int32](88)})
	require.NoError(t, err)
	assert.True(t, col.Nullable())
	assert.Equal(t, 1, col.NullN())
	assert.True(t, col.IsNull(1))
	assert.Equal(t, []int32{42, 0, 88}, col.Values(), "null slots are zeroed")

	v, ok := col.Value(2)
	assert.True(t, ok)
	assert.Equal(t, int32(88), v)
	_, ok = col.Value(1)
	assert.False(t, ok)
}

func TestNullableWithoutNullsHasNoBitmap(t *testing.T) {
	col, err := New(layout.Float64, []float64{1, 2}, WithValidity([]bool{true, true}))
	require.NoError(t, err)
	assert.True(t, col.Nullable())
	assert.Nil(t, col.Validity())

	col, err = New(layout.Float64, []float64{1, 2}, WithNullable(true))
	require.NoError(t, err)
	assert.True(t, col.Nullable())
}

func TestValidateNullInNonNullable(t *testing.T) {
	col, err := New(layout.Int32, []int32{1, 2}, WithValidity([]bool{true, false}), WithNullable(false))
	require.NoError(t, err)
	assert.ErrorIs(t, col.Validate(), layout.ErrNullInNonNullable)
}

func TestDictionary(t *testing.T) {
	dict, err := New(layout.String, []string{"A", "B"})
	require.NoError(t, err)
	col, err := NewDictionary(layout.UINT32, []uint64{0, 1, 0}, dict)
	require.NoError(t, err)
	require.NoError(t, col.Validate())

	assert.Equal(t, layout.Dictionary(layout.UINT32, layout.String), col.Type())
	assert.Equal(t, []uint64{0, 1, 0}, col.Codes())

	var decoded []any
	for i := 0; i < col.Len(); i++ {
		v, _ := col.Value(i)
		decoded = append(decoded, v)
	}
	assert.Equal(t, []any{"A", "B", "A"}, decoded)

	plain, err := New(layout.String, []string{"A", "B", "A"})
	require.NoError(t, err)
	assert.False(t, col.Equal(plain), "types differ")
}

func TestDictionaryCodeOutOfRange(t *testing.T) {
	dict, err := New(layout.String, []string{"A", "B"})
	require.NoError(t, err)

	col, err := NewDictionary(layout.UINT32, []uint64{0, 2}, dict)
	require.NoError(t, err)
	assert.ErrorIs(t, col.Validate(), layout.ErrDictionaryCodeOutOfRange)

	// a null slot's code is never checked
	col, err = NewDictionary(layout.UINT32, []uint64{0, 9}, dict, WithValidity([]bool{true, false}))
	require.NoError(t, err)
	assert.NoError(t, col.Validate())

	// codes must fit the index type
	big := make([]string, 300)
	wide, err := New(layout.String, big)
	require.NoError(t, err)
	col, err = NewDictionary(layout.UINT8, []uint64{256}, wide)
	require.NoError(t, err)
	assert.ErrorIs(t, col.Validate(), layout.ErrDictionaryCodeOutOfRange)
}

func TestDictionaryRejectsBadIndex(t *testing.T) {
	dict, err := New(layout.String, []string{"A"})
	require.NoError(t, err)
	_, err = NewDictionary(layout.FLOAT64, []uint64{0}, dict)
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)
	_, err = NewDictionary(layout.UINT8, []uint64{0}, nil)
	assert.ErrorIs(t, err, layout.ErrInvalidLayout)
}

func TestStructAndRecordBatch(t *testing.T) {
	ids, err := New(layout.Int64, []int64{1, 2})
	require.NoError(t, err)
	names, err := FromOptional(layout.String, []*string{ptr("a"), nil})
	require.NoError(t, err)

	fields := []layout.Field{ids.Field("id"), names.Field("name")}
	rb, err := NewRecordBatch(fields, []*Column{ids, names})
	require.NoError(t, err)
	assert.Equal(t, 2, rb.NumRows())

	st, err := rb.AsStruct()
	require.NoError(t, err)
	require.NoError(t, st.Validate())
	assert.Equal(t, layout.STRUCT, st.Type().ID)
	row, ok := st.Value(1)
	require.True(t, ok)
	assert.Equal(t, []any{int64(2), nil}, row)

	_, err = NewRecordBatch(fields[:1], []*Column{ids, names})
	assert.ErrorIs(t, err, layout.ErrFormatMismatch)

	short, err := New(layout.Int64, []int64{1})
	require.NoError(t, err)
	_, err = NewRecordBatch([]layout.Field{short.Field("a"), ids.Field("b")}, []*Column{short, ids})
	assert.ErrorIs(t, err, layout.ErrIndexOutOfRange)

	wrong := fields[1]
	wrong.Nullable = false
	_, err = NewStruct([]layout.Field{fields[0], wrong}, []*Column{ids, names})
	assert.ErrorIs(t, err, layout.ErrFormatMismatch)
}

func TestEqualComparesNaNByBits(t *testing.T) {
	nan64, err := New(layout.Float64, []float64{1, math.NaN()})
	require.NoError(t, err)
	again, err := New(layout.Float64, []float64{1, math.NaN()})
	require.NoError(t, err)
	assert.True(t, nan64.Equal(again))

	nan32, err := New(layout.Float32, []float32{float32(math.NaN())})
	require.NoError(t, err)
	assert.True(t, nan32.Equal(nan32))

	zero, err := New(layout.Float64, []float64{1, 0})
	require.NoError(t, err)
	assert.False(t, nan64.Equal(zero))

	st, err := NewStruct([]layout.Field{nan64.Field("f")}, []*Column{nan64})
	require.NoError(t, err)
	st2, err := NewStruct([]layout.Field{again.Field("f")}, []*Column{again})
	require.NoError(t, err)
	assert.True(t, st.Equal(st2))
}

func TestRecordBatchMetadata(t *testing.T) {
	ids, err := New(layout.Int64, []int64{1})
	require.NoError(t, err)
	rb, err := NewRecordBatch([]layout.Field{ids.Field("id")}, []*Column{ids})
	require.NoError(t, err)
	assert.Equal(t, 0, rb.Metadata().Len())

	md := layout.NewMetadata([]string{"table"}, []string{"events"})
	tagged := rb.WithMetadata(md)
	assert.True(t, tagged.Metadata().Equal(md))
	assert.Equal(t, 0, rb.Metadata().Len())
	assert.Same(t, rb.Column(0), tagged.Column(0))
}

func TestColumnString(t *testing.T) {
	col, err := FromOptional(layout.Int32, []*int32{ptr[int32](42), nil})
	require.NoError(t, err)
	assert.Equal(t, "int32[42 (null)]", col.String())
}
