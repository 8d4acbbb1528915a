// Package data provides the in-memory logical columns that ColumnBridge exports.
// This package implements:
// - Column: typed values plus validity, dictionary codes or struct children
// - RecordBatch: equal-length columns under a list of fields
// - JSON column documents for the CLI and tests
// - conversion to and from arrow-go arrays and records
package data
