package data

import (
	"fmt"
	"math"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// maxCode is the largest code representable by a dictionary index type.
func maxCode(index layout.TypeID) uint64 {
	switch index {
	case layout.INT8:
		return math.MaxInt8
	case layout.UINT8:
		return math.MaxUint8
	case layout.INT16:
		return math.MaxInt16
	case layout.UINT16:
		return math.MaxUint16
	case layout.INT32:
		return math.MaxInt32
	case layout.UINT32:
		return math.MaxUint32
	case layout.INT64:
		return math.MaxInt64
	}
	return math.MaxUint64
}

// Validate checks the whole column tree against the export contract:
// the type is supported, non-nullable columns hold no nulls, and every
// valid dictionary code addresses an entry of the dictionary.
func (c *Column) Validate() error {
	if err := c.dtype.Validate(); err != nil {
		return err
	}
	if !c.nullable && c.NullN() > 0 {
		return fmt.Errorf("%w: %d nulls in %s column", layout.ErrNullInNonNullable, c.NullN(), c.dtype)
	}

	switch c.dtype.ID {
	case layout.DICTIONARY:
		if c.dict == nil {
			return fmt.Errorf("%w: dictionary column without dictionary", layout.ErrInvalidLayout)
		}
		if err := c.dict.Validate(); err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		limit := uint64(c.dict.Len())
		if m := maxCode(c.dtype.Index); limit > m {
			limit = m + 1
		}
		for i, code := range c.codes {
			if c.IsNull(i) {
				continue
			}
			if code >= limit {
				return fmt.Errorf("%w: code %d at slot %d, dictionary length %d, index %s",
					layout.ErrDictionaryCodeOutOfRange, code, i, c.dict.Len(), c.dtype.Index)
			}
		}
	case layout.STRUCT:
		for i, child := range c.children {
			if child.Len() != c.length {
				return fmt.Errorf("%w: child %d has %d rows, want %d", layout.ErrIndexOutOfRange, i, child.Len(), c.length)
			}
			if err := child.Validate(); err != nil {
				return fmt.Errorf("field %q: %w", c.dtype.Fields[i].Name, err)
			}
		}
	}
	return nil
}
