package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/ccsds122"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRoot(context.Background(), "test-sha")
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), "%v", args)
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	plane := ccsds122.NewComponent(16, 16, bpe.DefaultParams(2))
	for i := range plane.Plane {
		plane.Plane[i] = int32((i*37)%201 - 100)
	}
	in := filepath.Join(dir, "in.coef")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, ccsds122.WritePlane(f, plane))
	require.NoError(t, f.Close())

	coded := filepath.Join(dir, "out.bpe")
	run(t, "encode", "--in", in, "--out", coded, "--order", "RLCP",
		"--policy", "pass", "--layers", "3", "--size-type", "halving", "--target", "400",
		"--segment", "4", "--gaggle-dc", "2", "--gaggle-ac", "2", "--log-level", "debug")

	listing := run(t, "index", "--in", coded)
	var fi ccsds122.FileIndex
	require.NoError(t, json.Unmarshal([]byte(listing), &fi))
	assert.Equal(t, 3, fi.Header.Layers)
	assert.NotEmpty(t, fi.Packets.Entries)

	part := filepath.Join(dir, "part.bpe")
	run(t, "extract", "--in", coded, "--out", part, "--window", "0,0,8,8", "--layers", "2")

	decoded := filepath.Join(dir, "dec.coef")
	run(t, "decode", "--in", coded, "--out", decoded)
	df, err := os.Open(decoded)
	require.NoError(t, err)
	defer df.Close()
	got, err := ccsds122.ReadPlane(df)
	require.NoError(t, err)
	assert.Equal(t, plane.Plane, got.Plane)

	run(t, "decode", "--in", part, "--out", filepath.Join(dir, "part.coef"), "--completion", "1")
	assert.Equal(t, "test-sha\n", run(t, "version"))
}
