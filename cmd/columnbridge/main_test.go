package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/VanDung-dev/ColumnBridge/bridge"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/ffi"
	"github.com/docopt/docopt.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const document = `{"columns":[
	{"name":"n","type":{"id":"int32"},"values":[11,22,33]},
	{"name":"s","type":{"id":"utf8"},"nullable":true,"values":["foo",null,"bar"]},
	{"name":"d","type":{"id":"dictionary","index":"int8","value":{"id":"utf8"}},"codes":[0,1,0],"dictionary":["A","B"]}
]}`

func runArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts, err := docopt.ParseArgs(usage, args, Version)
	require.NoError(t, err)
	var out bytes.Buffer
	err = run(opts, &out, zap.NewNop())
	return out.String(), err
}

func writeDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))
	return path
}

func TestFormats(t *testing.T) {
	out, err := runArgs(t, "formats")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "TYPE"))
	assert.Contains(t, out, "tdm")
	assert.Contains(t, out, "+s")
}

func TestInspect(t *testing.T) {
	out, err := runArgs(t, "inspect", writeDocument(t))
	require.NoError(t, err)

	var reports []ffi.NodeReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)

	assert.Equal(t, "i", reports[0].Format)
	assert.False(t, reports[0].Buffers[0].Present)
	assert.Equal(t, "u", reports[1].Format)
	assert.Equal(t, 1, reports[1].NullCount)
	require.NotNil(t, reports[2].Dictionary)
	assert.Equal(t, "c", reports[2].Format)
	assert.Equal(t, "u", reports[2].Dictionary.Format)
}

func TestVerify(t *testing.T) {
	out, err := runArgs(t, "verify", writeDocument(t))
	require.NoError(t, err)

	var results []bridge.VerifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.OK(), "%s: %s", r.Name, r.Mismatch)
	}
}

func TestMissingFile(t *testing.T) {
	_, err := runArgs(t, "inspect", filepath.Join(t.TempDir(), "nope.arrow"))
	assert.Error(t, err)
}
