// Package layout defines the closed set of logical types ColumnBridge can
// export and the rules that map each of them to Arrow C Data Interface
// buffers and format codes.
//
// This package implements:
//   - DataType / Field / Metadata: the logical type system
//   - FormatCode / ParseFormat: the stable format-code table
//   - Layout: the ordered buffer roles for a (type, nullability) pair
//   - the error taxonomy shared by the exporter and the reader
package layout
