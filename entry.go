package tfa

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/meigma/tfa/internal/batch"
	"github.com/meigma/tfa/internal/sizing"
)

// Status classifies an entry against a previously extracted tree.
type Status uint8

const (
	// StatusUnknown means the entry has not been compared in this scan.
	StatusUnknown Status = iota

	// StatusUnchanged means the extracted copy has identical content.
	StatusUnchanged

	// StatusAdded means no extracted copy exists.
	StatusAdded

	// StatusChanged means the extracted copy differs.
	StatusChanged
)

// String returns the human-readable status.
func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusAdded:
		return "added"
	case StatusChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// IsChange reports whether the status calls for extraction.
func (s Status) IsChange() bool {
	return s == StatusAdded || s == StatusChanged
}

// FileEntry is one file described by an index record.
type FileEntry struct {
	// Name is the file name as stored in the index.
	Name string

	// Path is the scan-root-relative, slash separated path of the file.
	Path string

	// ArchiveIndex selects the payload file in the same directory.
	ArchiveIndex uint32

	// Offset is the byte offset into the decompressed archive content.
	Offset uint32

	// Size is the content length in bytes.
	Size uint32

	// DeclaredHash is the integrity value stored in the index. It is
	// retained but not verified.
	DeclaredHash uint32

	index   *Index
	archive *Archive
	err     error // construction error: invalid path or unresolved archive

	mu          sync.Mutex
	loaded      bool
	content     []byte
	contentHash string
	contentErr  error
	status      Status
}

// Index returns the index that lists the entry.
func (f *FileEntry) Index() *Index {
	return f.index
}

// Archive returns the archive holding the entry's content, or nil when the
// archive index does not resolve.
func (f *FileEntry) Archive() *Archive {
	return f.archive
}

// Err returns the format error that makes the entry unusable, if any.
func (f *FileEntry) Err() error {
	return f.err
}

// Status returns the classification from the current scan.
func (f *FileEntry) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Content returns the entry's bytes, decompressing its archive on first use.
//
// The returned slice is owned by the entry and must not be modified.
func (f *FileEntry) Content() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return nil, err
	}
	return f.content, nil
}

// ContentHash returns the lowercase hex MD5 of the entry's content.
func (f *FileEntry) ContentHash() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return "", err
	}
	return f.contentHash, nil
}

func (f *FileEntry) loadLocked() error {
	if f.loaded {
		return f.contentErr
	}
	f.loaded = true
	if f.err != nil {
		f.contentErr = f.err
		return f.contentErr
	}

	data, err := f.archive.Content()
	if err != nil {
		f.contentErr = err
		return err
	}
	start, end := uint64(f.Offset), uint64(f.Offset)+uint64(f.Size)
	if !sizing.WithinBounds(start, uint64(f.Size), len(data)) {
		f.contentErr = &FormatError{
			Path: f.Path,
			Err:  fmt.Errorf("%w: [%d, %d) of %d bytes in %s", ErrOutOfBounds, start, end, len(data), f.archive.Path),
		}
		return f.contentErr
	}
	f.content = bytes.Clone(data[start:end])
	if f.content == nil {
		f.content = []byte{}
	}
	f.contentHash = digest(f.content)
	return nil
}

// compare classifies the entry against its extracted copy in dest and
// records the result.
func (f *FileEntry) compare(dest *batch.FileSink) (Status, error) {
	want, err := f.ContentHash()
	if err != nil {
		return StatusUnknown, err
	}

	status := StatusChanged
	existing, err := dest.Open(f.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		status = StatusAdded
	case err != nil:
		return StatusUnknown, err
	default:
		got, err := digestReader(existing)
		_ = existing.Close() //nolint:errcheck // read-only handle
		if err != nil {
			return StatusUnknown, err
		}
		if got == want {
			status = StatusUnchanged
		}
	}

	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	return status, nil
}
