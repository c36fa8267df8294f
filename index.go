package tfa

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/meigma/tfa/internal/index"
	"github.com/meigma/tfa/internal/pathutil"
)

const (
	// IndexFileName is the name of the index file in each archive directory.
	IndexFileName = "index.tfi"

	// ArchiveExt is the extension of payload files.
	ArchiveExt = ".tfa"
)

// Payload names match case-insensitively, like the extension.
var archiveStem = regexp.MustCompile(`(?i)^archive(\d+)$`)

// Index is the index file of one directory in a scanned tree.
//
// Indexes compare equal by Path: two values from different scans of the same
// tree are interchangeable.
type Index struct {
	// Path is the scan-root-relative, slash separated path of the index file.
	Path string

	// Dir is the scan-root-relative, slash separated directory holding the
	// index, or "" for the root itself.
	Dir string

	osPath     string
	decompress func([]byte) ([]byte, error)

	mu           sync.Mutex
	raw          []byte
	rawErr       error
	rawLoaded    bool
	rawHash      string
	entries      []*FileEntry
	entriesErr   error
	parsed       bool
	archives     []*Archive
	discoverErrs []Failure
	discovered   bool
}

func newIndex(root, osPath string, decompress func([]byte) ([]byte, error)) (*Index, error) {
	rel, err := filepath.Rel(root, osPath)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	return &Index{
		Path:       rel,
		Dir:        pathutil.Dir(rel),
		osPath:     osPath,
		decompress: decompress,
	}, nil
}

// Equal reports whether idx and other refer to the same index file.
func (idx *Index) Equal(other *Index) bool {
	if idx == nil || other == nil {
		return idx == other
	}
	return idx.Path == other.Path
}

// OSPath returns the index file's path on the local filesystem.
func (idx *Index) OSPath() string {
	return idx.osPath
}

// Raw returns the bytes of the index file.
func (idx *Index) Raw() ([]byte, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.rawLocked()
}

func (idx *Index) rawLocked() ([]byte, error) {
	if !idx.rawLoaded {
		idx.raw, idx.rawErr = os.ReadFile(idx.osPath)
		idx.rawLoaded = true
	}
	return idx.raw, idx.rawErr
}

// RawHash returns the lowercase hex MD5 of the index file.
func (idx *Index) RawHash() (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	raw, err := idx.rawLocked()
	if err != nil {
		return "", err
	}
	if idx.rawHash == "" {
		idx.rawHash = digest(raw)
	}
	return idx.rawHash, nil
}

// ContentHash returns the hash of the index file. Index files are stored
// uncompressed, so this equals RawHash.
func (idx *Index) ContentHash() (string, error) {
	return idx.RawHash()
}

// Entries returns the parsed entries in index order.
//
// The index is parsed once. A malformed index returns a *FormatError for the
// whole file. Entries that name a missing archive or an unusable path are
// returned with a non-nil Err.
func (idx *Index) Entries() ([]*FileEntry, error) {
	archives, _ := idx.Archives() //nolint:errcheck // discovery problems are reported by Archives

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.parsed {
		return idx.entries, idx.entriesErr
	}
	idx.parsed = true

	raw, err := idx.rawLocked()
	if err != nil {
		idx.entriesErr = err
		return nil, err
	}
	records, err := index.Parse(raw)
	if err != nil {
		idx.entriesErr = &FormatError{Path: idx.Path, Err: err}
		return nil, idx.entriesErr
	}

	byID := make(map[uint32]*Archive, len(archives))
	for _, a := range archives {
		byID[a.ID] = a
	}

	entries := make([]*FileEntry, len(records))
	for i, r := range records {
		e := &FileEntry{
			Name:         r.Name,
			Path:         pathutil.Join(idx.Dir, r.Name),
			ArchiveIndex: r.Archive,
			Offset:       r.Offset,
			Size:         r.Size,
			DeclaredHash: r.Hash,
			index:        idx,
		}
		switch a, ok := byID[r.Archive]; {
		case !fs.ValidPath(e.Path):
			e.err = &FormatError{Path: e.Path, Err: fmt.Errorf("%w: %q", ErrInvalidPath, r.Name)}
		case !ok:
			e.err = &FormatError{Path: e.Path, Err: fmt.Errorf("%w: archive %d in %s", ErrUnresolvedArchive, r.Archive, pathutil.Label(idx.Dir))}
		default:
			e.archive = a
		}
		entries[i] = e
	}
	idx.entries = entries
	return entries, nil
}

// Archives returns the payload files next to the index, sorted by ID.
//
// Files with the payload extension whose names carry no usable id are left
// out and reported in the returned error; the other archives are still
// returned.
func (idx *Index) Archives() ([]*Archive, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.discovered {
		idx.archives, idx.discoverErrs = idx.discover()
		idx.discovered = true
	}
	return idx.archives, joinFailures(idx.discoverErrs)
}

func (idx *Index) discoveryFailures() []Failure {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return slices.Clone(idx.discoverErrs)
}

func (idx *Index) discover() ([]*Archive, []Failure) {
	osDir := filepath.Dir(idx.osPath)
	dirents, err := os.ReadDir(osDir)
	if err != nil {
		return nil, []Failure{{Path: pathutil.Label(idx.Dir), Op: "discover", Err: err}}
	}

	var (
		archives []*Archive
		failures []Failure
		seen     = make(map[uint32]string)
	)
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.EqualFold(filepath.Ext(name), ArchiveExt) {
			continue
		}
		rel := pathutil.Join(idx.Dir, name)
		id, err := parseArchiveID(name)
		if err != nil {
			failures = append(failures, Failure{Path: rel, Op: "discover", Err: &FormatError{Path: rel, Err: err}})
			continue
		}
		if prev, dup := seen[id]; dup {
			failures = append(failures, Failure{
				Path: rel,
				Op:   "discover",
				Err:  &FormatError{Path: rel, Err: fmt.Errorf("%w: %d also used by %s", ErrDuplicateArchive, id, prev)},
			})
			continue
		}
		seen[id] = rel
		archives = append(archives, &Archive{
			ID:         id,
			Path:       rel,
			index:      idx,
			osPath:     filepath.Join(osDir, name),
			decompress: idx.decompress,
		})
	}
	slices.SortFunc(archives, func(a, b *Archive) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return archives, failures
}

// Archive returns the archive with the given id.
func (idx *Index) Archive(id uint32) (*Archive, bool) {
	archives, _ := idx.Archives() //nolint:errcheck // lookups only consider valid archives
	i, ok := slices.BinarySearchFunc(archives, id, func(a *Archive, id uint32) int {
		return cmp.Compare(a.ID, id)
	})
	if !ok {
		return nil, false
	}
	return archives[i], true
}

// Size returns the sum of entry sizes, or 0 if the index cannot be parsed.
func (idx *Index) Size() uint64 {
	entries, err := idx.Entries()
	if err != nil {
		return 0
	}
	var total uint64
	for _, e := range entries {
		total += uint64(e.Size)
	}
	return total
}

// parseArchiveID extracts N from "archiveN.tfa".
func parseArchiveID(name string) (uint32, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	m := archiveStem.FindStringSubmatch(stem)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrArchiveName, name)
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrArchiveName, name, err)
	}
	return uint32(id), nil
}
