package layout

import (
	"fmt"
	"strings"
)

// Schema flags of the C Data Interface.
const (
	FlagDictionaryOrdered int64 = 1
	FlagNullable          int64 = 2
	FlagMapKeysSorted     int64 = 4
)

var primitiveFormats = map[TypeID]string{
	BOOL:         "b",
	INT8:         "c",
	UINT8:        "C",
	INT16:        "s",
	UINT16:       "S",
	INT32:        "i",
	UINT32:       "I",
	INT64:        "l",
	UINT64:       "L",
	FLOAT32:      "f",
	FLOAT64:      "g",
	DATE32:       "tdD",
	DATE64:       "tdm",
	STRING:       "u",
	LARGE_STRING: "U",
	STRUCT:       "+s",
}

var formatPrimitives = func() map[string]TypeID {
	m := make(map[string]TypeID, len(primitiveFormats))
	for id, f := range primitiveFormats {
		m[f] = id
	}
	return m
}()

var unitFormats = [...]byte{Second: 's', Millisecond: 'm', Microsecond: 'u', Nanosecond: 'n'}

// FormatCode returns the C Data Interface format string of dt.
// A dictionary is described by its index type; the value type travels in
// the schema's dictionary node.
func FormatCode(dt DataType) (string, error) {
	if err := dt.Validate(); err != nil {
		return "", err
	}
	switch dt.ID {
	case TIMESTAMP:
		return "ts" + string(unitFormats[dt.Unit]) + ":" + dt.TimeZone, nil
	case DICTIONARY:
		return primitiveFormats[dt.Index], nil
	}
	return primitiveFormats[dt.ID], nil
}

// ParseFormat maps a format string back to a type. Dictionary-ness cannot be
// recovered from the format alone, and struct children come from the schema's
// children, so "+s" yields a struct with no fields.
func ParseFormat(format string) (DataType, error) {
	if id, ok := formatPrimitives[format]; ok {
		return DataType{ID: id}, nil
	}
	if strings.HasPrefix(format, "ts") && len(format) >= 4 && format[3] == ':' {
		for unit, c := range unitFormats {
			if format[2] == c {
				return Timestamp(TimeUnit(unit), format[4:]), nil
			}
		}
	}
	return DataType{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidLayout, format)
}

// FormatEntry pairs a type name with its format string.
type FormatEntry struct {
	Type   string `json:"type"`
	Format string `json:"format"`
}

// FormatTable lists the format string of every supported type, in TypeID
// order, with one timestamp row per unit.
func FormatTable() []FormatEntry {
	var table []FormatEntry
	for id := BOOL; id <= STRUCT; id++ {
		switch id {
		case TIMESTAMP:
			for u := Second; u <= Nanosecond; u++ {
				f, _ := FormatCode(Timestamp(u, "<tz>"))
				table = append(table, FormatEntry{Type: "timestamp[" + u.String() + "]", Format: f})
			}
		case DICTIONARY:
			table = append(table, FormatEntry{Type: "dictionary", Format: "<index format>"})
		default:
			table = append(table, FormatEntry{Type: id.String(), Format: primitiveFormats[id]})
		}
	}
	return table
}
