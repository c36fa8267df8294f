package manifest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/meigma/tfa/internal/pathutil"
)

// DefaultName is the manifest file name inside a scan root.
const DefaultName = "hashes.json"

// ErrRead is matched by every error returned from Load.
var ErrRead = errors.New("manifest: unreadable")

// ReadError reports why a manifest could not be loaded.
// Load still returns a usable empty manifest alongside it.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("manifest: read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRead.
func (e *ReadError) Is(target error) bool {
	return target == ErrRead
}

// Manifest is an in-memory path to digest map.
// It is safe for concurrent use.
type Manifest struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{hashes: make(map[string]string)}
}

// Load reads the manifest at path.
//
// A missing or malformed file is not fatal: Load returns an empty manifest
// and a *ReadError describing the problem.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return New(), &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return New(), &ReadError{Path: path, Err: err}
	}
	return m, nil
}

// Decode reads a manifest from a JSON object of string values.
func Decode(r io.Reader) (*Manifest, error) {
	var hashes map[string]string
	dec := json.NewDecoder(r)
	if err := dec.Decode(&hashes); err != nil {
		return nil, err
	}
	if hashes == nil {
		return nil, errors.New("manifest is not a JSON object")
	}
	m := New()
	for k, v := range hashes {
		m.Set(k, v)
	}
	return m, nil
}

// Get returns the digest recorded for key.
func (m *Manifest) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.hashes[normalizeKey(key)]
	return v, ok
}

// Matches reports whether key is recorded with exactly digest.
func (m *Manifest) Matches(key, digest string) bool {
	v, ok := m.Get(key)
	return ok && v == strings.ToLower(digest)
}

// Set records digest for key.
func (m *Manifest) Set(key, digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[normalizeKey(key)] = strings.ToLower(digest)
}

// Len returns the number of recorded keys.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hashes)
}

// Keys returns the recorded keys in sorted order.
func (m *Manifest) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.hashes))
}

// Clone returns an independent copy.
func (m *Manifest) Clone() *Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Manifest{hashes: maps.Clone(m.hashes)}
}

// WriteTo writes the manifest as indented JSON with sorted keys.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.hashes, "", "    ")
	m.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	n, err := w.Write(data)
	return int64(n), err
}

// Save replaces the file at path with the full manifest.
//
// The content is written to a temporary file in the same directory and
// renamed into place, so readers never observe a partial manifest.
func (m *Manifest) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("manifest: create directory: %w", err)
	}

	suffix, err := randomSuffix()
	if err != nil {
		return err
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+"-"+suffix)
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // manifest is not secret
	if err != nil {
		return fmt.Errorf("manifest: create temp file: %w", err)
	}
	if _, err := m.WriteTo(tmp); err != nil {
		_ = tmp.Close()        //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("manifest: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("manifest: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("manifest: rename: %w", err)
	}
	return nil
}

// Key converts path to a manifest key relative to root.
func Key(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("manifest: %s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}

// normalizeKey makes keys written on Windows match keys written elsewhere.
func normalizeKey(key string) string {
	return pathutil.Normalize(key)
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
