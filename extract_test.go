package tfa

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tfa/internal/index"
	"github.com/meigma/tfa/internal/testutil"
	"github.com/meigma/tfa/manifest"
)

func TestExtractAllHelloScenario(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "", []testutil.File{
		{Name: "a.txt", Content: []byte("HELLO")},
		{Name: "b.txt", Content: []byte("xyz")},
	})

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), scan, ModeAll, nil)
	require.NoError(t, err)
	require.True(t, res.OK(), "%v", res.Err())

	assert.Equal(t, 2, res.Written)
	assert.Equal(t, uint64(8), res.Bytes)
	assert.Equal(t, []byte("HELLO"), readFile(t, dest, "a.txt"))
	assert.Equal(t, []byte("xyz"), readFile(t, dest, "b.txt"))

	// A second scan finds nothing to do.
	scan, err = e.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scan.Changed)
}

func TestExtractUpdatesManifest(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "d", []testutil.File{
		{Name: "a", Archive: 0, Content: []byte("aaa")},
		{Name: "b", Archive: 2, Content: []byte("bbb")},
	})
	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), scan, ModeAll, nil)
	require.NoError(t, err)

	m, err := manifest.Load(filepath.Join(src, manifest.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, []string{"d/archive0.tfa", "d/archive2.tfa", "d/index.tfi"}, m.Keys())

	for _, key := range m.Keys() {
		got, _ := m.Get(key)
		assert.Equal(t, digest(readFile(t, src, key)), got, key)
	}
}

func TestExtractManifestPathOption(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "", []testutil.File{{Name: "a", Content: []byte("a")}})
	custom := filepath.Join(t.TempDir(), "state", "hashes.json")

	e := newEngine(t, src, dest, WithManifestPath(custom))
	assert.Equal(t, custom, e.ManifestPath())
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), scan, ModeAll, nil)
	require.NoError(t, err)

	_, err = os.Stat(custom)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(src, manifest.DefaultName))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractChangesWithoutSnapshotsWritesNothing(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "d", []testutil.File{
		{Name: "a", Content: []byte("new")},
		{Name: "b", Content: []byte("added")},
	})
	writeFile(t, dest, "d/a", []byte("old"))

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), scan, ModeChanges, scan.SelectChanged())
	require.NoError(t, err)
	require.True(t, res.OK())

	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 2, res.Unwritten)
	assert.Empty(t, res.SnapshotDir)
	assert.Equal(t, []byte("old"), readFile(t, dest, "d/a"))
	_, err = os.Stat(filepath.Join(dest, "d", "b"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// The manifest is still updated.
	m, err := manifest.Load(filepath.Join(src, manifest.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}

func TestExtractChangesWithSnapshots(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	snapshots := filepath.Join(t.TempDir(), "changes")
	testutil.WriteDir(t, src, "d", []testutil.File{
		{Name: "a", Content: []byte("new!")},
		{Name: "b", Content: []byte("added")},
		{Name: "c", Content: []byte("same")},
	})
	writeFile(t, dest, "d/a", []byte("old"))
	writeFile(t, dest, "d/c", []byte("same"))

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)

	stamp := time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC)
	res, err := e.Extract(context.Background(), scan, ModeChanges, scan.SelectChanged(),
		ExtractWithSnapshots(snapshots),
		ExtractWithClock(func() time.Time { return stamp }),
	)
	require.NoError(t, err)
	require.True(t, res.OK(), "%v", res.Err())

	snap := filepath.Join(snapshots, "2024-03-05 06-07-08")
	assert.Equal(t, snap, res.SnapshotDir)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 0, res.Unwritten)

	assert.Equal(t, []byte("old"), readFile(t, snap, "old/d/a"))
	_, err = os.Stat(filepath.Join(snap, "old", "d", "b"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(snap, "old", "d", "c"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, []byte("new!"), readFile(t, snap, "new/d/a"))
	assert.Equal(t, []byte("added"), readFile(t, snap, "new/d/b"))

	// The pre-run manifest did not exist, so the old side records it empty.
	assert.JSONEq(t, "{}", string(readFile(t, snap, "old/hashes.json")))

	assert.Equal(t, []byte("new!"), readFile(t, dest, "d/a"))
	assert.Equal(t, []byte("added"), readFile(t, dest, "d/b"))
}

func TestExtractSnapshotLayout(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	snapshots := t.TempDir()
	testutil.WriteDir(t, src, "", []testutil.File{{Name: "a", Content: []byte("a")}})

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), scan, ModeChanges, scan.SelectChanged(),
		ExtractWithSnapshots(snapshots),
		ExtractWithSnapshotLayout("20060102"),
		ExtractWithClock(func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(snapshots, "20250102"), res.SnapshotDir)
	assert.Equal(t, []byte("a"), readFile(t, res.SnapshotDir, "new/a"))
}

func TestExtractSelected(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "keep", []testutil.File{
		{Name: "same", Content: []byte("same")},
		{Name: "new", Content: []byte("new")},
	})
	testutil.WriteDir(t, src, "skip", []testutil.File{{Name: "x", Content: []byte("x")}})
	writeFile(t, dest, "keep/same", []byte("same"))

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)

	sel, err := scan.SelectDirs("keep")
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), scan, ModeSelected, sel)
	require.NoError(t, err)

	// Unchanged files in the selection are rewritten too.
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, []byte("new"), readFile(t, dest, "keep/new"))
	_, err = os.Stat(filepath.Join(dest, "skip", "x"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	m, err := manifest.Load(filepath.Join(src, manifest.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, []string{"keep/archive0.tfa", "keep/index.tfi"}, m.Keys())
}

func TestExtractChangesRespectsSelection(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "a", []testutil.File{{Name: "1", Content: []byte("1")}})
	testutil.WriteDir(t, src, "b", []testutil.File{{Name: "2", Content: []byte("2")}})

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	sel, err := scan.SelectDirs("b")
	require.NoError(t, err)

	res, err := e.Extract(context.Background(), scan, ModeChanges, sel, ExtractWithSnapshots(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, []byte("2"), readFile(t, dest, "b/2"))
	_, err = os.Stat(filepath.Join(dest, "a", "1"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractReportsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "good", []testutil.File{{Name: "a", Content: []byte("a")}})
	testutil.WriteIndex(t, filepath.Join(src, "bad"), []index.Record{{Name: "b", Archive: 0, Offset: 0, Size: 1}})
	testutil.WriteRaw(t, filepath.Join(src, "bad"), testutil.ArchiveName(0), []byte{0xff, 0xff})
	// A directory where a file should go makes the write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "good", "a"), 0o750))

	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), scan, ModeAll, nil)
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"decompress bad/b", "write good/a"}, failureOps(res.Failures))
	assert.ErrorIs(t, res.Err(), ErrDecompression)
	assert.Equal(t, 0, res.Written)

	// Neither directory processed cleanly.
	m, err := manifest.Load(filepath.Join(src, manifest.DefaultName))
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestExtractCancellation(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "", []testutil.File{
		{Name: "a", Content: []byte("a")},
		{Name: "b", Content: []byte("b")},
	})
	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := e.Extract(ctx, scan, ModeAll, nil, ExtractWithProgress(func(ev ProgressEvent) {
		if ev.FilesDone == 1 {
			cancel()
		}
	}))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Written)
	_, err = os.Stat(filepath.Join(src, manifest.DefaultName))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractProgress(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	testutil.WriteDir(t, src, "", []testutil.File{
		{Name: "a", Content: []byte("a")},
		{Name: "b", Content: []byte("b")},
	})
	e := newEngine(t, src, dest)
	scan, err := e.Scan(context.Background())
	require.NoError(t, err)

	var events []ProgressEvent
	_, err = e.Extract(context.Background(), scan, ModeAll, nil, ExtractWithProgress(func(ev ProgressEvent) {
		events = append(events, ev)
	}))
	require.NoError(t, err)
	assert.Equal(t, []ProgressEvent{
		{Stage: StageExtracting, Path: "a", FilesDone: 1, FilesTotal: 2},
		{Stage: StageExtracting, Path: "b", FilesDone: 2, FilesTotal: 2},
	}, events)
}

func TestExtractRejectsForeignScan(t *testing.T) {
	t.Parallel()

	src, dest := newTree(t)
	other, _ := newTree(t)
	e := newEngine(t, src, dest)
	scan, err := newEngine(t, other, dest).Scan(context.Background())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), scan, ModeAll, nil)
	require.Error(t, err)
	_, err = e.Extract(context.Background(), nil, ModeAll, nil)
	require.Error(t, err)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, m := range []Mode{ModeChanges, ModeSelected, ModeAll} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, got)
	_, err = ParseMode("removed")
	require.Error(t, err)
}
