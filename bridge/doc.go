// Package bridge connects ColumnBridge exports with arrow-go.
//
// This package contains:
//   - ExportArrowArray: arrow-go arrays exported through the ffi exporter
//   - ImportWithArrowGo and friends: exports consumed by arrow-go's cdata importer
//   - Verify: a two-reader round trip of one column
//
// arrow-go's importer shares nothing with the ffi reader, which makes it
// an independent check that exported structures follow the C Data Interface.
package bridge
