package data

import (
	"errors"
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// ValidateFields checks that actual matches expected field by field:
// names, types, nullability and metadata.
func ValidateFields(actual, expected []layout.Field) error {
	if len(actual) != len(expected) {
		return fmt.Errorf("%w: field count mismatch: got %d, expected %d",
			layout.ErrFormatMismatch, len(actual), len(expected))
	}

	for i := range actual {
		a, e := actual[i], expected[i]
		if a.Name != e.Name {
			return fmt.Errorf("%w: field %d name mismatch: got %q, expected %q",
				layout.ErrFormatMismatch, i, a.Name, e.Name)
		}
		if !a.Type.Equal(e.Type) {
			return fmt.Errorf("%w: field %s type mismatch: got %s, expected %s",
				layout.ErrFormatMismatch, a.Name, a.Type, e.Type)
		}
		if a.Nullable != e.Nullable {
			return fmt.Errorf("%w: field %s nullability mismatch: got %t, expected %t",
				layout.ErrFormatMismatch, a.Name, a.Nullable, e.Nullable)
		}
		if !a.Metadata.Equal(e.Metadata) {
			return fmt.Errorf("%w: field %s metadata mismatch", layout.ErrFormatMismatch, a.Name)
		}
	}

	return nil
}

// ValidateSchema checks a batch against the expected fields.
func ValidateSchema(rb *RecordBatch, expected []layout.Field) error {
	if rb == nil {
		return errors.New("record batch is nil")
	}
	return ValidateFields(rb.Fields(), expected)
}
