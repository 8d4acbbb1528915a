// Package ffi exports logical columns through the Arrow C Data Interface
// and reads such exports back.
//
// This package implements:
//   - Exporter: ArrayExporter and SchemaExporter over C-allocated structures
//   - ExportHandle: the single-owner storage behind every exported node,
//     released exactly once through the interface's release callbacks
//   - ExportStream: the Arrow C Stream Interface over a sequence of chunks
//   - ViewArray / ViewSchema / Describe: plain pointer-read inspection
//   - ImportField / ImportColumn: a copying conformant reader
//
// Buffers are allocated on the C heap (arrow-go mallocator), so exported
// structures never hold Go pointers and can outlive any Go reference to
// the column they were built from. The package requires cgo.
package ffi
