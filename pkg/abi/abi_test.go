package abi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const transferABI = `[
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}]},
  {"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "abi.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadValid(t *testing.T) {
	d, err := Load(write(t, transferABI))
	require.NoError(t, err)
	list, ok := d.Value.([]any)
	require.True(t, ok)
	require.Len(t, list, 2)

	c, err := d.Contract()
	require.NoError(t, err)
	require.Contains(t, c.Events, "Transfer")
}

func TestLoadMissing(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing.json")
	require.False(t, Exists(p))
	_, err := Load(p)
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "ABI file not found: "+p)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(write(t, `[{"type":"event",`))
	require.ErrorIs(t, err, ErrMalformed)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestContractUnwrapsArtifact(t *testing.T) {
	d, err := Parse([]byte(`{"contractName":"Token","abi":` + transferABI + `}`))
	require.NoError(t, err)
	c, err := d.Contract()
	require.NoError(t, err)
	require.Contains(t, c.Methods, "totalSupply")

	d, err = Parse([]byte(`{"contractName":"Token"}`))
	require.NoError(t, err)
	_, err = d.Contract()
	require.Error(t, err)
}

func TestMarshalJSONRoundTripsRaw(t *testing.T) {
	d, err := Parse([]byte(` [1, {"a": true}] `))
	require.NoError(t, err)
	out, err := d.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `[1, {"a": true}]`, string(out))
}
