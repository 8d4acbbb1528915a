package layout

import "fmt"

// Field is a named, typed slot of a schema.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
	Metadata Metadata
}

// Equal compares name, type, nullability and metadata.
func (f Field) Equal(other Field) bool {
	return f.Name == other.Name &&
		f.Nullable == other.Nullable &&
		f.Type.Equal(other.Type) &&
		f.Metadata.Equal(other.Metadata)
}

func (f Field) String() string {
	if f.Nullable {
		return fmt.Sprintf("%s: %s (nullable)", f.Name, f.Type)
	}
	return fmt.Sprintf("%s: %s", f.Name, f.Type)
}

// Metadata is an ordered list of key/value pairs attached to a field.
// Duplicate keys are kept; the C Data Interface encoding preserves order.
type Metadata struct {
	keys   []string
	values []string
}

// NewMetadata pairs keys with values. It panics if the lengths differ.
func NewMetadata(keys, values []string) Metadata {
	if len(keys) != len(values) {
		panic("layout: metadata keys and values length mismatch")
	}
	md := Metadata{
		keys:   make([]string, len(keys)),
		values: make([]string, len(values)),
	}
	copy(md.keys, keys)
	copy(md.values, values)
	return md
}

// MetadataFrom builds metadata from a map, ordered by insertion into keys.
func MetadataFrom(keys []string, m map[string]string) Metadata {
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return NewMetadata(keys, values)
}

func (md Metadata) Len() int         { return len(md.keys) }
func (md Metadata) Keys() []string   { return md.keys }
func (md Metadata) Values() []string { return md.values }

// Get returns the value of the first pair with key k.
func (md Metadata) Get(k string) (string, bool) {
	for i, key := range md.keys {
		if key == k {
			return md.values[i], true
		}
	}
	return "", false
}

func (md Metadata) Equal(other Metadata) bool {
	if md.Len() != other.Len() {
		return false
	}
	for i := range md.keys {
		if md.keys[i] != other.keys[i] || md.values[i] != other.values[i] {
			return false
		}
	}
	return true
}
