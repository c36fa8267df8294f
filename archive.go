package tfa

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Archive is one numbered payload file next to an index.
//
// Raw bytes, decompressed content and their hashes are computed on first use
// and kept for the lifetime of the scan that created the Archive.
type Archive struct {
	// ID is the number parsed from the file name.
	ID uint32

	// Path is the scan-root-relative, slash separated path of the file.
	Path string

	index      *Index
	osPath     string
	decompress func([]byte) ([]byte, error)

	mu         sync.Mutex
	raw        []byte
	rawErr     error
	rawLoaded  bool
	rawHash    string
	content    []byte
	contentErr error
	contentSet bool
	hash       string

	loadGroup singleflight.Group
}

// Index returns the index the archive belongs to.
func (a *Archive) Index() *Index {
	return a.index
}

// Equal reports whether a and other refer to the same payload file.
// Two Archive values from different scans of one tree are interchangeable.
func (a *Archive) Equal(other *Archive) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Path == other.Path
}

// Raw returns the compressed bytes of the payload file.
func (a *Archive) Raw() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rawLocked()
}

func (a *Archive) rawLocked() ([]byte, error) {
	if !a.rawLoaded {
		a.raw, a.rawErr = os.ReadFile(a.osPath)
		a.rawLoaded = true
	}
	return a.raw, a.rawErr
}

// RawHash returns the lowercase hex MD5 of the compressed bytes.
// It never decompresses the payload.
func (a *Archive) RawHash() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw, err := a.rawLocked()
	if err != nil {
		return "", err
	}
	if a.rawHash == "" {
		a.rawHash = digest(raw)
	}
	return a.rawHash, nil
}

// Content returns the decompressed payload.
//
// The payload is decompressed at most once; concurrent first callers share
// one decompression. A corrupt stream yields a *FormatError wrapping
// ErrDecompression. The returned slice must not be modified.
func (a *Archive) Content() ([]byte, error) {
	if content, err, ok := a.cachedContent(); ok {
		return content, err
	}

	result, err, _ := a.loadGroup.Do("content", func() (any, error) {
		// Another caller may have finished between the check and Do.
		if content, err, ok := a.cachedContent(); ok {
			return content, err
		}

		raw, err := a.Raw()
		var content []byte
		if err == nil {
			content, err = a.decompress(raw)
			if err != nil {
				err = &FormatError{Path: a.Path, Err: err}
			}
		}

		a.mu.Lock()
		a.content, a.contentErr, a.contentSet = content, err, true
		if err == nil {
			a.hash = digest(content)
		}
		a.mu.Unlock()
		return content, err
	})
	if err != nil {
		return nil, err
	}

	content, _ := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	return content, nil
}

func (a *Archive) cachedContent() ([]byte, error, bool) { //nolint:revive // mirrors singleflight.Do
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.content, a.contentErr, a.contentSet
}

// ContentHash returns the lowercase hex MD5 of the decompressed payload.
func (a *Archive) ContentHash() (string, error) {
	if _, err := a.Content(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hash, nil
}

// Entries returns the index entries stored in this archive, in index order.
func (a *Archive) Entries() ([]*FileEntry, error) {
	all, err := a.index.Entries()
	if err != nil {
		return nil, err
	}
	var out []*FileEntry
	for _, e := range all {
		if e.archive == a {
			out = append(out, e)
		}
	}
	return out, nil
}

// isDecompressionFailure reports whether err came from a corrupt payload.
func isDecompressionFailure(err error) bool {
	return errors.Is(err, ErrDecompression) || errors.Is(err, ErrSizeOverflow)
}
