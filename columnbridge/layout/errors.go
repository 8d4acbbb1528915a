package layout

import "errors"

// Export and import errors. Call sites wrap them with context; match with errors.Is.
var (
	// ErrInvalidLayout is returned for a type/nullability combination outside the supported set.
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrNullInNonNullable is returned when a null marker appears in a column declared non-nullable.
	ErrNullInNonNullable = errors.New("null in non-nullable column")
	// ErrIndexOutOfRange is returned for bitmap or offset access beyond the declared length.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrDictionaryCodeOutOfRange is returned when a dictionary code is not below the dictionary length.
	ErrDictionaryCodeOutOfRange = errors.New("dictionary code out of range")
	// ErrDoubleRelease is reported by an ExportHandle released more than once.
	// Release callbacks absorb it; it never crosses the C boundary.
	ErrDoubleRelease = errors.New("double release")
	// ErrFormatMismatch is returned when schema and array trees diverge structurally.
	ErrFormatMismatch = errors.New("format mismatch")
)
