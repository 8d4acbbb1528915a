package data

import (
	"testing"
)

// FuzzJSONToRecordBatch feeds random documents through the JSON decoder.
// Run with: go test -fuzz=FuzzJSONToRecordBatch -fuzztime=30s ./columnbridge/data/
func FuzzJSONToRecordBatch(f *testing.F) {
	f.Add([]byte(`{"columns":[{"name":"x","type":{"id":"int32"},"values":[11,22,33]}]}`))
	f.Add([]byte(`{"columns":[{"name":"s","type":{"id":"utf8"},"nullable":true,"values":["foo",null]}]}`))
	f.Add([]byte(`{"columns":[{"name":"d","type":{"id":"dictionary","index":"uint32","value":{"id":"utf8"}},"codes":[0,1,0],"dictionary":["A","B"]}]}`))
	f.Add([]byte(`{"columns":[{"name":"d","type":{"id":"dictionary","index":"uint8","value":{"id":"int64"}},"codes":[7],"dictionary":[1]}]}`))
	f.Add([]byte(`{"columns":[]}`))

	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`"string"`))
	f.Add([]byte(`[1,2,3]`))

	f.Fuzz(func(t *testing.T, data []byte) {
		rb, err := JSONToRecordBatch(data)
		if err != nil {
			return
		}
		for _, col := range rb.Columns() {
			// Validation must report, never panic, on whatever decoded.
			_ = col.Validate()
		}
		if _, err := RecordBatchToJSON(rb); err != nil {
			t.Logf("RecordBatchToJSON failed: %v", err)
		}
	})
}
