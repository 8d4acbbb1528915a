package ffi

import (
	"encoding/hex"
	"fmt"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
)

// previewBytes caps the hex preview of each buffer.
const previewBytes = 32

// BufferReport describes one exported buffer.
type BufferReport struct {
	Role    string `json:"role"`
	Present bool   `json:"present"`
	Size    int    `json:"size"`
	Preview string `json:"preview,omitempty"`
}

// NodeReport is a structural dump of an exported array/schema pair.
type NodeReport struct {
	Name       string            `json:"name"`
	Format     string            `json:"format"`
	Flags      int64             `json:"flags"`
	Nullable   bool              `json:"nullable"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Length     int               `json:"length"`
	NullCount  int               `json:"null_count"`
	Offset     int               `json:"offset"`
	Buffers    []BufferReport    `json:"buffers"`
	Children   []NodeReport      `json:"children,omitempty"`
	Dictionary *NodeReport       `json:"dictionary,omitempty"`
}

// Describe walks arr and schema together and reports every node. Buffer
// sizes are derived from the declared layout. Neither input is released.
func Describe(arr *CArrowArray, schema *CArrowSchema) (NodeReport, error) {
	f, err := ImportField(schema)
	if err != nil {
		return NodeReport{}, err
	}
	if arr == nil || isArrayReleased(arr) {
		return NodeReport{}, fmt.Errorf("%w: array is released", layout.ErrFormatMismatch)
	}
	return describe(ViewArray(arr), ViewSchema(schema), f)
}

func describe(av ArrayView, sv SchemaView, f layout.Field) (NodeReport, error) {
	r := NodeReport{
		Name:      sv.Name(),
		Format:    sv.Format(),
		Flags:     sv.Flags(),
		Nullable:  sv.Nullable(),
		Length:    av.Len(),
		NullCount: av.NullCount(),
		Offset:    av.Offset(),
	}
	if f.Metadata.Len() > 0 {
		r.Metadata = make(map[string]string, f.Metadata.Len())
		for i, k := range f.Metadata.Keys() {
			r.Metadata[k] = f.Metadata.Values()[i]
		}
	}

	specs, err := layout.Layout(f.Type, f.Nullable)
	if err != nil {
		return NodeReport{}, err
	}
	if av.NumBuffers() != len(specs) {
		return NodeReport{}, fmt.Errorf("%w: %s array has %d buffers, want %d",
			layout.ErrFormatMismatch, f.Type, av.NumBuffers(), len(specs))
	}
	end := av.Offset() + av.Len()
	for i, spec := range specs {
		br := BufferReport{Role: spec.Role.String(), Present: av.BufferPtr(i) != nil}
		if br.Present {
			switch spec.Role {
			case layout.RoleValidity:
				spec.Absent = false
				br.Size = spec.Size(end)
			case layout.RoleData:
				br.Size = dataSize(av, f.Type, end)
			default:
				br.Size = spec.Size(end)
			}
			b := av.Buffer(i, min(br.Size, previewBytes))
			br.Preview = hex.EncodeToString(b)
		}
		r.Buffers = append(r.Buffers, br)
	}

	switch f.Type.ID {
	case layout.STRUCT:
		for i, child := range f.Type.Fields {
			cr, err := describe(av.Child(i), sv.Child(i), child)
			if err != nil {
				return NodeReport{}, fmt.Errorf("field %q: %w", child.Name, err)
			}
			r.Children = append(r.Children, cr)
		}
	case layout.DICTIONARY:
		dav, okA := av.Dictionary()
		dsv, okS := sv.Dictionary()
		if !okA || !okS {
			return NodeReport{}, fmt.Errorf("%w: dictionary node missing", layout.ErrFormatMismatch)
		}
		dr, err := describe(dav, dsv, layout.Field{Type: *f.Type.Value, Nullable: dsv.Nullable()})
		if err != nil {
			return NodeReport{}, fmt.Errorf("dictionary: %w", err)
		}
		r.Dictionary = &dr
	}
	return r, nil
}

// dataSize reads the last offset of a string array.
func dataSize(av ArrayView, dt layout.DataType, end int) int {
	if dt.ID == layout.LARGE_STRING {
		offs, err := readFixed[int64](av, dt, arrow.Int64Traits, 1, end, 1)
		if err != nil || len(offs) == 0 {
			return 0
		}
		return int(offs[0])
	}
	offs, err := readFixed[int32](av, dt, arrow.Int32Traits, 1, end, 1)
	if err != nil || len(offs) == 0 {
		return 0
	}
	return int(offs[0])
}
