package data

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/bitmap"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// Column is a logical column awaiting export. Columns are immutable once built.
type Column struct {
	dtype    layout.DataType
	nullable bool
	length   int

	values   any            // typed slice; nil for dictionary and struct columns
	validity *bitmap.Bitmap // nil when every slot is valid

	codes    []uint64 // DICTIONARY
	dict     *Column  // DICTIONARY
	children []*Column
}

func (c *Column) Type() layout.DataType { return c.dtype }
func (c *Column) Nullable() bool        { return c.nullable }
func (c *Column) Len() int              { return c.length }

// Validity returns the validity bitmap, or nil when no slot is null.
func (c *Column) Validity() *bitmap.Bitmap { return c.validity }

// NullN returns the number of null slots.
func (c *Column) NullN() int {
	if c.validity == nil {
		return 0
	}
	return c.validity.NullCount()
}

// IsNull reports whether slot i is null. i must be in range.
func (c *Column) IsNull(i int) bool {
	if c.validity == nil {
		return false
	}
	ok, err := c.validity.IsValid(i)
	return err == nil && !ok
}

// Values returns the typed storage slice ([]int32, []string, ...).
// Slots that are null hold the zero value.
func (c *Column) Values() any { return c.values }

// Codes returns the dictionary codes of a dictionary column.
func (c *Column) Codes() []uint64 { return c.codes }

// Dictionary returns the values column of a dictionary column.
func (c *Column) Dictionary() *Column { return c.dict }

// Children returns the child columns of a struct column.
func (c *Column) Children() []*Column { return c.children }

// Field describes the column under the given name.
func (c *Column) Field(name string) layout.Field {
	return layout.Field{Name: name, Type: c.dtype, Nullable: c.nullable}
}

// Value returns the logical value of slot i and whether it is valid.
// Dictionary slots are decoded through the dictionary; struct slots return
// a []any of child values.
func (c *Column) Value(i int) (any, bool) {
	if i < 0 || i >= c.length || c.IsNull(i) {
		return nil, false
	}
	switch c.dtype.ID {
	case layout.DICTIONARY:
		code := c.codes[i]
		if code >= uint64(c.dict.Len()) {
			return nil, false
		}
		return c.dict.Value(int(code))
	case layout.STRUCT:
		row := make([]any, len(c.children))
		for j, child := range c.children {
			row[j], _ = child.Value(i)
		}
		return row, true
	}
	return reflect.ValueOf(c.values).Index(i).Interface(), true
}

// Equal reports whether two columns hold the same logical type, nullability
// and value sequence, null for null. Dictionary columns compare decoded values.
func (c *Column) Equal(other *Column) bool {
	if c == nil || other == nil {
		return c == other
	}
	if !c.dtype.Equal(other.dtype) || c.nullable != other.nullable || c.length != other.length {
		return false
	}
	for i := 0; i < c.length; i++ {
		a, okA := c.Value(i)
		b, okB := other.Value(i)
		if okA != okB {
			return false
		}
		if okA && !valueEqual(a, b) {
			return false
		}
	}
	return true
}

// valueEqual compares floats by bit pattern, so NaN slots equal themselves.
func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case float32:
		y, ok := b.(float32)
		return ok && math.Float32bits(x) == math.Float32bits(y)
	case float64:
		y, ok := b.(float64)
		return ok && math.Float64bits(x) == math.Float64bits(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func (c *Column) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[", c.dtype)
	for i := 0; i < c.length; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if v, ok := c.Value(i); ok {
			fmt.Fprintf(&sb, "%v", v)
		} else {
			sb.WriteString("(null)")
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
