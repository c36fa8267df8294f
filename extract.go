package tfa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/meigma/tfa/internal/batch"
	"github.com/meigma/tfa/internal/rootlock"
	"github.com/meigma/tfa/manifest"
)

// Mode selects which entries Extract writes.
type Mode uint8

const (
	// ModeChanges writes added and changed entries of selected indexes.
	ModeChanges Mode = iota

	// ModeSelected writes every entry of selected indexes.
	ModeSelected

	// ModeAll writes every entry of every scanned index.
	ModeAll
)

// String returns the mode name accepted by ParseMode.
func (m Mode) String() string {
	switch m {
	case ModeChanges:
		return "changes"
	case ModeSelected:
		return "selected"
	case ModeAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseMode parses "changes", "selected" or "all".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "changes":
		return ModeChanges, nil
	case "selected":
		return ModeSelected, nil
	case "all":
		return ModeAll, nil
	default:
		return 0, fmt.Errorf("tfa: unknown extraction mode %q", s)
	}
}

// ExtractResult summarizes an extraction.
type ExtractResult struct {
	Mode Mode

	// Written is the number of files written to the destination.
	Written int

	// Unwritten is the number of changes counted but not written because
	// ModeChanges ran without snapshots.
	Unwritten int

	// Bytes is the total size of written files.
	Bytes uint64

	// SnapshotDir is the snapshot directory of this run, if any.
	SnapshotDir string

	// Failures holds per-file and per-unit problems.
	Failures []Failure

	// ManifestErr is set when the updated manifest could not be saved.
	ManifestErr error
}

// Err joins every failure of the run, or returns nil.
func (r *ExtractResult) Err() error {
	return errors.Join(joinFailures(r.Failures), r.ManifestErr)
}

// OK reports whether the run had no failures.
func (r *ExtractResult) OK() bool {
	return len(r.Failures) == 0 && r.ManifestErr == nil
}

// extraction tracks one Extract call.
type extraction struct {
	e        *Engine
	cfg      extractConfig
	mode     Mode
	res      *ExtractResult
	oldSink  *batch.FileSink
	newSink  *batch.FileSink
	badIndex map[string]bool
	badArch  map[string]bool
}

// Extract writes entries of scan into the destination according to mode.
//
// sel scopes ModeChanges and ModeSelected and is ignored by ModeAll. Per-file
// failures are recorded in the result and do not stop the run. After the
// files are processed, the raw hashes of every index and archive processed
// without failure are recorded in the manifest, which is rewritten once.
//
// A cancelled ctx stops the run between files; the partial result is
// returned with ctx's error and the manifest is left untouched.
func (e *Engine) Extract(ctx context.Context, scan *Scan, mode Mode, sel *Selection, opts ...ExtractOption) (*ExtractResult, error) {
	if scan == nil {
		return nil, errors.New("tfa: nil scan")
	}
	if scan.Source != e.source {
		return nil, fmt.Errorf("tfa: scan of %s cannot be extracted by engine for %s", scan.Source, e.source)
	}
	if mode > ModeAll {
		return nil, fmt.Errorf("tfa: unknown extraction mode %d", mode)
	}

	cfg := extractConfig{
		snapshotLayout: DefaultSnapshotLayout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	release, ok := rootlock.TryAcquire(e.source)
	if !ok {
		return nil, ErrBusy
	}
	defer release()

	x := &extraction{
		e:        e,
		cfg:      cfg,
		mode:     mode,
		res:      &ExtractResult{Mode: mode},
		badIndex: make(map[string]bool),
		badArch:  make(map[string]bool),
	}

	// The manifest is reloaded so the snapshot copy and the rewrite start
	// from what is on disk now.
	hashes, _ := e.loadManifest() //nolint:errcheck // logged; an empty manifest is used

	if mode == ModeChanges && cfg.snapshotRoot != "" {
		if err := x.openSnapshot(hashes); err != nil {
			return x.res, err
		}
	}

	work := x.collect(scan, sel)
	e.log().Debug("extracting", "mode", mode, "files", len(work), "snapshots", x.res.SnapshotDir)

	for i, entry := range work {
		if err := ctx.Err(); err != nil {
			return x.res, err
		}
		x.extractOne(entry)
		cfg.progress.report(ProgressEvent{
			Stage:      StageExtracting,
			Path:       entry.Path,
			FilesDone:  i + 1,
			FilesTotal: len(work),
		})
	}

	x.updateManifest(scan, sel, hashes)
	if err := hashes.Save(e.manifestPath); err != nil {
		x.res.ManifestErr = err
		e.log().Warn("manifest not saved", "path", e.manifestPath, "error", err)
	}
	e.log().Debug("extraction complete",
		"written", x.res.Written,
		"unwritten", x.res.Unwritten,
		"failures", len(x.res.Failures),
	)
	return x.res, nil
}

func (x *extraction) advanced() bool {
	return x.newSink != nil
}

// openSnapshot creates the snapshot directories and stores the pre-run
// manifest in the old side.
func (x *extraction) openSnapshot(hashes *manifest.Manifest) error {
	dir := filepath.Join(x.cfg.snapshotRoot, x.cfg.now().Format(x.cfg.snapshotLayout))
	oldDir := filepath.Join(dir, "old")
	x.res.SnapshotDir = dir
	x.oldSink = batch.NewFileSink(oldDir)
	x.newSink = batch.NewFileSink(filepath.Join(dir, "new"))

	if err := hashes.Clone().Save(filepath.Join(oldDir, manifest.DefaultName)); err != nil {
		return fmt.Errorf("tfa: snapshot %s: %w", dir, err)
	}
	return nil
}

// collect returns the entries mode asks for, in scan order.
func (x *extraction) collect(scan *Scan, sel *Selection) []*FileEntry {
	if x.mode == ModeChanges {
		var work []*FileEntry
		for _, entry := range scan.Changed {
			if sel.Contains(entry.index) {
				work = append(work, entry)
			}
		}
		return work
	}

	var work []*FileEntry
	for _, sum := range scan.Indexes {
		if x.mode == ModeSelected && !sel.Contains(sum.Index) {
			continue
		}
		entries, err := sum.Index.Entries()
		if err != nil {
			x.fail(Failure{Path: sum.Index.Path, Op: "parse", Err: err}, sum.Index, nil)
			continue
		}
		for _, entry := range entries {
			if entry.err != nil {
				x.fail(Failure{Path: entry.Path, Op: "resolve", Err: entry.err}, sum.Index, nil)
				continue
			}
			work = append(work, entry)
		}
	}
	return work
}

func (x *extraction) extractOne(entry *FileEntry) {
	content, err := entry.Content()
	if err != nil {
		op := "read"
		switch {
		case isDecompressionFailure(err):
			op = "decompress"
		case errors.Is(err, ErrOutOfBounds):
			op = "bounds"
		}
		x.fail(Failure{Path: entry.Path, Op: op, Err: err}, entry.index, entry.archive)
		return
	}

	if x.mode == ModeChanges && !x.advanced() {
		x.res.Unwritten++
		return
	}

	if x.advanced() {
		if err := x.snapshot(entry, content); err != nil {
			x.fail(Failure{Path: entry.Path, Op: "snapshot", Err: err}, entry.index, entry.archive)
			return
		}
	}

	if err := x.e.sink.Put(entry.Path, content); err != nil {
		x.fail(Failure{Path: entry.Path, Op: "write", Err: err}, entry.index, entry.archive)
		return
	}
	x.res.Written++
	x.res.Bytes += uint64(len(content))
}

// snapshot copies the current extracted file, if any, to the old side and
// the new content to the new side.
func (x *extraction) snapshot(entry *FileEntry, content []byte) error {
	f, err := x.e.sink.Open(entry.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	default:
		previous, err := io.ReadAll(f)
		_ = f.Close() //nolint:errcheck // read-only handle
		if err != nil {
			return err
		}
		if err := x.oldSink.Put(entry.Path, previous); err != nil {
			return err
		}
	}
	return x.newSink.Put(entry.Path, content)
}

func (x *extraction) fail(f Failure, idx *Index, a *Archive) {
	x.res.Failures = append(x.res.Failures, f)
	if idx != nil {
		x.badIndex[idx.Path] = true
	}
	if a != nil {
		x.badArch[a.Path] = true
	}
	x.e.log().Warn("extraction failure", "op", f.Op, "path", f.Path, "error", f.Err)
}

// updateManifest records raw hashes for the indexes and archives that were
// processed without failure in both the scan and this run.
func (x *extraction) updateManifest(scan *Scan, sel *Selection, hashes *manifest.Manifest) {
	for _, sum := range scan.Indexes {
		idx := sum.Index
		if x.mode != ModeAll && !sel.Contains(idx) {
			continue
		}
		// A skipped index already matches its recorded hash.
		if x.mode == ModeChanges && sum.Skipped {
			continue
		}
		if _, err := idx.Entries(); err != nil {
			continue
		}

		if sum.OK() && !x.badIndex[idx.Path] {
			if h, err := idx.RawHash(); err == nil {
				hashes.Set(idx.Path, h)
			}
		}

		archives, _ := idx.Archives() //nolint:errcheck // invalid archive names are already reported
		for _, a := range archives {
			if sum.failedArchives[a.ID] || x.badArch[a.Path] {
				continue
			}
			if h, err := a.RawHash(); err == nil {
				hashes.Set(a.Path, h)
			}
		}
	}
}
