package layout

import (
	"fmt"
	"strings"
)

// TypeID identifies a logical type in the supported set.
type TypeID uint8

const (
	INVALID TypeID = iota
	BOOL
	INT8
	INT16
	INT32
	INT64
	UINT8
	UINT16
	UINT32
	UINT64
	FLOAT32
	FLOAT64
	DATE32
	DATE64
	TIMESTAMP
	STRING
	LARGE_STRING
	DICTIONARY
	STRUCT
)

var typeNames = [...]string{
	INVALID:      "invalid",
	BOOL:         "bool",
	INT8:         "int8",
	INT16:        "int16",
	INT32:        "int32",
	INT64:        "int64",
	UINT8:        "uint8",
	UINT16:       "uint16",
	UINT32:       "uint32",
	UINT64:       "uint64",
	FLOAT32:      "float32",
	FLOAT64:      "float64",
	DATE32:       "date32",
	DATE64:       "date64",
	TIMESTAMP:    "timestamp",
	STRING:       "utf8",
	LARGE_STRING: "large_utf8",
	DICTIONARY:   "dictionary",
	STRUCT:       "struct",
}

func (t TypeID) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("TypeID(%d)", uint8(t))
}

// ParseTypeID returns the TypeID named s ("int32", "utf8", ...).
func ParseTypeID(s string) (TypeID, error) {
	for id, name := range typeNames {
		if id != int(INVALID) && name == s {
			return TypeID(id), nil
		}
	}
	return INVALID, fmt.Errorf("%w: unknown type name %q", ErrInvalidLayout, s)
}

// IsInteger reports whether t is one of the eight integer types.
func (t TypeID) IsInteger() bool {
	switch t {
	case INT8, INT16, INT32, INT64, UINT8, UINT16, UINT32, UINT64:
		return true
	}
	return false
}

// TimeUnit is the resolution of a timestamp.
type TimeUnit uint8

const (
	Second TimeUnit = iota
	Millisecond
	Microsecond
	Nanosecond
)

func (u TimeUnit) String() string {
	switch u {
	case Second:
		return "s"
	case Millisecond:
		return "ms"
	case Microsecond:
		return "us"
	case Nanosecond:
		return "ns"
	}
	return fmt.Sprintf("TimeUnit(%d)", uint8(u))
}

// ParseTimeUnit parses "s", "ms", "us" or "ns".
func ParseTimeUnit(s string) (TimeUnit, error) {
	for u := Second; u <= Nanosecond; u++ {
		if u.String() == s {
			return u, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidLayout, s)
}

// DataType is a closed tagged variant over the supported logical types.
// Only the fields relevant to ID are meaningful.
type DataType struct {
	ID TypeID

	// TIMESTAMP
	Unit     TimeUnit
	TimeZone string

	// DICTIONARY
	Index   TypeID
	Value   *DataType
	Ordered bool

	// STRUCT
	Fields []Field
}

// Predefined types without parameters.
var (
	Bool        = DataType{ID: BOOL}
	Int8        = DataType{ID: INT8}
	Int16       = DataType{ID: INT16}
	Int32       = DataType{ID: INT32}
	Int64       = DataType{ID: INT64}
	Uint8       = DataType{ID: UINT8}
	Uint16      = DataType{ID: UINT16}
	Uint32      = DataType{ID: UINT32}
	Uint64      = DataType{ID: UINT64}
	Float32     = DataType{ID: FLOAT32}
	Float64     = DataType{ID: FLOAT64}
	Date32      = DataType{ID: DATE32}
	Date64      = DataType{ID: DATE64}
	String      = DataType{ID: STRING}
	LargeString = DataType{ID: LARGE_STRING}
)

// Timestamp returns a timestamp type with the given unit and time zone.
func Timestamp(unit TimeUnit, tz string) DataType {
	return DataType{ID: TIMESTAMP, Unit: unit, TimeZone: tz}
}

// Dictionary returns a dictionary type with integer codes of type index.
func Dictionary(index TypeID, value DataType) DataType {
	v := value
	return DataType{ID: DICTIONARY, Index: index, Value: &v}
}

// OrderedDictionary is Dictionary with the ordered flag set.
func OrderedDictionary(index TypeID, value DataType) DataType {
	dt := Dictionary(index, value)
	dt.Ordered = true
	return dt
}

// Struct returns a struct type with the given child fields.
func Struct(fields ...Field) DataType {
	return DataType{ID: STRUCT, Fields: fields}
}

// Validate checks that dt belongs to the supported set.
func (dt DataType) Validate() error {
	switch dt.ID {
	case BOOL, INT8, INT16, INT32, INT64, UINT8, UINT16, UINT32, UINT64,
		FLOAT32, FLOAT64, DATE32, DATE64, STRING, LARGE_STRING:
		return nil
	case TIMESTAMP:
		if dt.Unit > Nanosecond {
			return fmt.Errorf("%w: %s", ErrInvalidLayout, dt.Unit)
		}
		return nil
	case DICTIONARY:
		if !dt.Index.IsInteger() {
			return fmt.Errorf("%w: dictionary index must be an integer type, got %s", ErrInvalidLayout, dt.Index)
		}
		if dt.Value == nil {
			return fmt.Errorf("%w: dictionary without value type", ErrInvalidLayout)
		}
		if dt.Value.ID == DICTIONARY || dt.Value.ID == STRUCT {
			return fmt.Errorf("%w: dictionary of %s", ErrInvalidLayout, dt.Value.ID)
		}
		return dt.Value.Validate()
	case STRUCT:
		for _, f := range dt.Fields {
			if err := f.Type.Validate(); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidLayout, dt.ID)
}

// BitWidth returns the width of one value slot for fixed-width types
// (dictionary codes included) and 0 otherwise.
func (dt DataType) BitWidth() int {
	switch dt.ID {
	case BOOL:
		return 1
	case INT8, UINT8:
		return 8
	case INT16, UINT16:
		return 16
	case INT32, UINT32, FLOAT32, DATE32:
		return 32
	case INT64, UINT64, FLOAT64, DATE64, TIMESTAMP:
		return 64
	case DICTIONARY:
		return DataType{ID: dt.Index}.BitWidth()
	}
	return 0
}

// Equal reports whether two types describe the same logical type.
func (dt DataType) Equal(other DataType) bool {
	if dt.ID != other.ID {
		return false
	}
	switch dt.ID {
	case TIMESTAMP:
		return dt.Unit == other.Unit && dt.TimeZone == other.TimeZone
	case DICTIONARY:
		if dt.Index != other.Index || dt.Ordered != other.Ordered {
			return false
		}
		if dt.Value == nil || other.Value == nil {
			return dt.Value == other.Value
		}
		return dt.Value.Equal(*other.Value)
	case STRUCT:
		if len(dt.Fields) != len(other.Fields) {
			return false
		}
		for i := range dt.Fields {
			if !dt.Fields[i].Equal(other.Fields[i]) {
				return false
			}
		}
	}
	return true
}

func (dt DataType) String() string {
	switch dt.ID {
	case TIMESTAMP:
		if dt.TimeZone == "" {
			return fmt.Sprintf("timestamp[%s]", dt.Unit)
		}
		return fmt.Sprintf("timestamp[%s, tz=%s]", dt.Unit, dt.TimeZone)
	case DICTIONARY:
		value := "<nil>"
		if dt.Value != nil {
			value = dt.Value.String()
		}
		return fmt.Sprintf("dictionary<values=%s, indices=%s, ordered=%t>", value, dt.Index, dt.Ordered)
	case STRUCT:
		var sb strings.Builder
		sb.WriteString("struct<")
		for i, f := range dt.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %s", f.Name, f.Type)
		}
		sb.WriteString(">")
		return sb.String()
	}
	return dt.ID.String()
}
