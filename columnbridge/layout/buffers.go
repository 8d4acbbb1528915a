package layout

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/bitutil"
)

// BufferRole is the interpretation of one exported buffer.
type BufferRole uint8

const (
	RoleValidity BufferRole = iota
	RoleValues
	RoleOffsets
	RoleData
)

func (r BufferRole) String() string {
	switch r {
	case RoleValidity:
		return "validity"
	case RoleValues:
		return "values"
	case RoleOffsets:
		return "offsets"
	case RoleData:
		return "data"
	}
	return fmt.Sprintf("BufferRole(%d)", uint8(r))
}

// BufferSpec describes one buffer slot of a layout.
type BufferSpec struct {
	Role BufferRole
	// BitWidth is the width of one element: 1 for bitmaps and booleans,
	// 8 for raw UTF-8 bytes.
	BitWidth int
	// Absent marks a slot that is always exported as a null pointer
	// (the validity slot of a non-nullable column).
	Absent bool
}

// Size returns the number of bytes the buffer needs to hold length elements.
// It is -1 for the data buffer of strings, whose size is given by the last offset.
func (s BufferSpec) Size(length int) int {
	switch {
	case s.Absent:
		return 0
	case s.Role == RoleData:
		return -1
	case s.Role == RoleOffsets:
		return (length + 1) * s.BitWidth / 8
	case s.BitWidth == 1:
		return int(bitutil.BytesForBits(int64(length)))
	}
	return length * s.BitWidth / 8
}

func validitySpec(nullable bool) BufferSpec {
	return BufferSpec{Role: RoleValidity, BitWidth: 1, Absent: !nullable}
}

// Layout returns the ordered buffers required by a column of type dt.
// Slot 0 is always the validity bitmap, present or not.
func Layout(dt DataType, nullable bool) ([]BufferSpec, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	switch dt.ID {
	case STRING:
		return []BufferSpec{
			validitySpec(nullable),
			{Role: RoleOffsets, BitWidth: 32},
			{Role: RoleData, BitWidth: 8},
		}, nil
	case LARGE_STRING:
		return []BufferSpec{
			validitySpec(nullable),
			{Role: RoleOffsets, BitWidth: 64},
			{Role: RoleData, BitWidth: 8},
		}, nil
	case STRUCT:
		return []BufferSpec{validitySpec(nullable)}, nil
	}
	// fixed width, dictionary codes included
	return []BufferSpec{
		validitySpec(nullable),
		{Role: RoleValues, BitWidth: dt.BitWidth()},
	}, nil
}
