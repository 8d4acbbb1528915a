// Package arrow provides Arrow IPC encoding for ColumnBridge.
// This package implements:
// - IPCCodec: record batches to and from the IPC stream format
// - IPC file format reading and writing for the CLI
package arrow
