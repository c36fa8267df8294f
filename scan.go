package tfa

import (
	"cmp"
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/tfa/internal/rootlock"
	"github.com/meigma/tfa/manifest"
)

// ScanOption configures a Scan call.
type ScanOption func(*scanConfig)

type scanConfig struct {
	progress ProgressFunc
}

// ScanWithProgress sets a callback for enumeration and diffing progress.
func ScanWithProgress(fn ProgressFunc) ScanOption {
	return func(c *scanConfig) {
		c.progress = fn
	}
}

// IndexSummary is the scan result for one index.
type IndexSummary struct {
	Index *Index

	// Skipped is true when performance mode matched the index's raw hash.
	Skipped bool

	// SkippedArchives counts archives skipped by performance mode.
	SkippedArchives int

	// Entries is the number of entries the index lists.
	Entries int

	// Changed is the number of added or changed entries.
	Changed int

	// ChangedSize is the total size of added or changed entries.
	ChangedSize uint64

	// Failures holds problems scoped to this index and its archives.
	Failures []Failure

	failedArchives map[uint32]bool
}

// OK reports whether every archive and entry of the index was processed.
func (s *IndexSummary) OK() bool {
	return len(s.Failures) == 0
}

func (s *IndexSummary) fail(f Failure, archive *Archive) {
	s.Failures = append(s.Failures, f)
	if archive != nil {
		if s.failedArchives == nil {
			s.failedArchives = make(map[uint32]bool)
		}
		s.failedArchives[archive.ID] = true
	}
}

// Scan is the result of comparing an archive tree with its extracted copy.
type Scan struct {
	// Source is the scanned root.
	Source string

	// Destination is the tree entries were compared against.
	Destination string

	// Indexes holds one summary per index file, sorted by directory.
	Indexes []*IndexSummary

	// Changed lists added and changed entries sorted by index path, then
	// entry path.
	Changed []*FileEntry

	// Failures collects every scoped failure of the scan, in scan order.
	Failures []Failure

	// ManifestWarning is set when the manifest was missing or unreadable
	// and an empty one was used instead.
	ManifestWarning error

	summaries map[string]*IndexSummary
}

// Err joins the scan's failures, or returns nil.
func (s *Scan) Err() error {
	return joinFailures(s.Failures)
}

// Summary returns the summary for idx.
func (s *Scan) Summary(idx *Index) (*IndexSummary, bool) {
	if idx == nil {
		return nil, false
	}
	sum, ok := s.summaries[idx.Path]
	return sum, ok
}

// Prioritized returns the index summaries ordered by changed count,
// highest first, then by directory.
func (s *Scan) Prioritized() []*IndexSummary {
	out := slices.Clone(s.Indexes)
	slices.SortStableFunc(out, func(a, b *IndexSummary) int {
		if c := cmp.Compare(b.Changed, a.Changed); c != 0 {
			return c
		}
		return strings.Compare(a.Index.Dir, b.Index.Dir)
	})
	return out
}

// ChangedSize returns the total size of all changed entries.
func (s *Scan) ChangedSize() uint64 {
	var total uint64
	for _, e := range s.Changed {
		total += uint64(e.Size)
	}
	return total
}

// IndexSize returns the total size of every entry listed by idx.
func (s *Scan) IndexSize(idx *Index) uint64 {
	return idx.Size()
}

// Scan enumerates index files below the source root, in directory order, and
// classifies every entry against the destination tree.
//
// Problems with single indexes, archives or entries are recorded in the
// result and never stop the scan. Scan returns an error only if the root is
// busy or unreadable, or ctx is cancelled.
func (e *Engine) Scan(ctx context.Context, opts ...ScanOption) (*Scan, error) {
	var cfg scanConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	release, ok := rootlock.TryAcquire(e.source)
	if !ok {
		return nil, ErrBusy
	}
	defer release()

	log := e.log()
	hashes, warn := e.loadManifest()

	scan := &Scan{
		Source:          e.source,
		Destination:     e.dest,
		ManifestWarning: warn,
		summaries:       make(map[string]*IndexSummary),
	}

	indexes, walkFailures, err := e.enumerate(ctx, cfg.progress)
	if err != nil {
		return nil, err
	}
	scan.Failures = append(scan.Failures, walkFailures...)
	log.Debug("enumerated indexes", "root", e.source, "count", len(indexes))

	for i, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum := &IndexSummary{Index: idx}
		scan.Indexes = append(scan.Indexes, sum)
		scan.summaries[idx.Path] = sum

		changed, err := e.scanIndex(ctx, sum, hashes, cfg.progress, i, len(indexes))
		if err != nil {
			return nil, err
		}
		scan.Changed = append(scan.Changed, changed...)
		scan.Failures = append(scan.Failures, sum.Failures...)
		for _, f := range sum.Failures {
			log.Warn("scan failure", "op", f.Op, "path", f.Path, "error", f.Err)
		}
		cfg.progress.report(ProgressEvent{
			Stage:      StageDiffing,
			Path:       idx.Path,
			FilesDone:  i + 1,
			FilesTotal: len(indexes),
		})
	}

	// Indexes are visited in Dir order, which can differ from Path order
	// when directory names sort around "/".
	slices.SortStableFunc(scan.Changed, func(a, b *FileEntry) int {
		if c := strings.Compare(a.index.Path, b.index.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	log.Debug("scan complete", "indexes", len(scan.Indexes), "changed", len(scan.Changed), "failures", len(scan.Failures))
	return scan, nil
}

// enumerate walks the source root for index files and returns them sorted
// by directory. The destination tree is not descended into.
func (e *Engine) enumerate(ctx context.Context, progress ProgressFunc) ([]*Index, []Failure, error) {
	skip := ""
	if inside(e.source, e.dest) {
		skip = canonicalDir(e.dest)
	}

	var (
		indexes  []*Index
		failures []Failure
	)
	err := filepath.WalkDir(e.source, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == e.source {
				return err
			}
			failures = append(failures, Failure{Path: e.relative(path), Op: "walk", Err: err})
			return nil
		}
		if d.IsDir() {
			if skip != "" && path != e.source && canonicalDir(path) == skip {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != IndexFileName || !d.Type().IsRegular() {
			return nil
		}
		idx, err := newIndex(e.source, path, e.decompress)
		if err != nil {
			failures = append(failures, Failure{Path: path, Op: "walk", Err: err})
			return nil
		}
		indexes = append(indexes, idx)
		progress.report(ProgressEvent{Stage: StageEnumerating, Path: idx.Path, FilesDone: len(indexes)})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slices.SortFunc(indexes, func(a, b *Index) int {
		return strings.Compare(a.Dir, b.Dir)
	})
	return indexes, failures, nil
}

// scanIndex classifies the entries of one index and returns its changes in
// index order.
func (e *Engine) scanIndex(
	ctx context.Context,
	sum *IndexSummary,
	hashes *manifest.Manifest,
	progress ProgressFunc,
	done, total int,
) ([]*FileEntry, error) {
	idx := sum.Index
	log := e.log()

	if e.performance {
		h, err := idx.RawHash()
		if err != nil {
			sum.fail(Failure{Path: idx.Path, Op: "read", Err: err}, nil)
			return nil, nil
		}
		if hashes.Matches(idx.Path, h) {
			log.Debug("index unchanged since last extraction", "path", idx.Path)
			sum.Skipped = true
			return nil, nil
		}
	}

	archives, _ := idx.Archives() //nolint:errcheck // failures are taken from discoveryFailures
	for _, f := range idx.discoveryFailures() {
		sum.fail(f, nil)
	}

	entries, err := idx.Entries()
	if err != nil {
		sum.fail(Failure{Path: idx.Path, Op: "parse", Err: err}, nil)
		return nil, nil
	}
	sum.Entries = len(entries)
	for _, entry := range entries {
		if entry.err != nil {
			sum.fail(Failure{Path: entry.Path, Op: "resolve", Err: entry.err}, nil)
		}
	}

	var changed []*FileEntry
	for _, a := range archives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.performance {
			h, err := a.RawHash()
			if err != nil {
				sum.fail(Failure{Path: a.Path, Op: "read", Err: err}, a)
				continue
			}
			if hashes.Matches(a.Path, h) {
				log.Debug("archive unchanged since last extraction", "path", a.Path)
				sum.SkippedArchives++
				continue
			}
		}

		archiveEntries, err := a.Entries()
		if err != nil {
			continue
		}
		if len(archiveEntries) == 0 {
			continue
		}
		if _, err := a.Content(); err != nil {
			op := "read"
			if isDecompressionFailure(err) {
				op = "decompress"
			}
			sum.fail(Failure{Path: a.Path, Op: op, Err: err}, a)
			continue
		}

		statuses, errs, err := e.classify(ctx, archiveEntries)
		if err != nil {
			return nil, err
		}
		for i, entry := range archiveEntries {
			if errs[i] != nil {
				sum.fail(Failure{Path: entry.Path, Op: "compare", Err: errs[i]}, a)
				continue
			}
			if statuses[i].IsChange() {
				changed = append(changed, entry)
				sum.Changed++
				sum.ChangedSize += uint64(entry.Size)
			}
		}
		progress.report(ProgressEvent{
			Stage:      StageDiffing,
			Path:       a.Path,
			FilesDone:  done,
			FilesTotal: total,
		})
	}
	return changed, nil
}

// classify compares entries with the destination tree on a bounded worker
// group. Results are returned in entry order.
func (e *Engine) classify(ctx context.Context, entries []*FileEntry) ([]Status, []error, error) {
	statuses := make([]Status, len(entries))
	errs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			statuses[i], errs[i] = entry.compare(e.sink)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return statuses, errs, nil
}

func (e *Engine) relative(path string) string {
	rel, err := filepath.Rel(e.source, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// inside reports whether path lies within root.
func inside(root, path string) bool {
	rel, err := filepath.Rel(canonicalDir(root), canonicalDir(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func canonicalDir(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Clean(path)
}
