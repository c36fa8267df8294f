package tfa

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTree returns empty source and destination directories.
func newTree(t *testing.T) (src, dest string) {
	t.Helper()
	root := t.TempDir()
	src = filepath.Join(root, "src")
	dest = filepath.Join(root, "dest")
	require.NoError(t, os.MkdirAll(src, 0o750))
	return src, dest
}

func newEngine(t *testing.T, src, dest string, opts ...Option) *Engine {
	t.Helper()
	e, err := New(src, dest, opts...)
	require.NoError(t, err)
	return e
}

// countDecompress wraps the engine's decompressor with a call counter.
func countDecompress(e *Engine) *atomic.Int64 {
	var calls atomic.Int64
	inner := e.decompress
	e.decompress = func(raw []byte) ([]byte, error) {
		calls.Add(1)
		return inner(raw)
	}
	return &calls
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func readFile(t *testing.T, root, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return data
}

func entryPaths(entries []*FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func failureOps(failures []Failure) []string {
	out := make([]string, len(failures))
	for i, f := range failures {
		out[i] = f.Op + " " + f.Path
	}
	return out
}
