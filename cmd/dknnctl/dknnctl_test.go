package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestBlobsThenEval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.json.zst")
	run(t, "blobs", "--out", path, "--classes", "3", "--features", "4", "--per-class", "15", "--spread", "0.3", "--seed", "5")

	out := run(t, "eval", "--data", path, "--k", "3")
	assert.Contains(t, out, "k=3 sqeuclidean leave-one-out accuracy: 1.0000")
}

func TestParseRows(t *testing.T) {
	rows, err := parseRows([]string{"1,2.5,-3", " 4 , 5"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2.5, -3}, {4, 5}}, rows)

	_, err = parseRows([]string{"1,x"})
	assert.Error(t, err)
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, "1.0000,0.2500", formatRow([]float64{1, 0.25}))
}
