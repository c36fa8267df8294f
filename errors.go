package tfa

import (
	"errors"
	"fmt"

	"github.com/meigma/tfa/internal/file"
	"github.com/meigma/tfa/internal/varint"
	"github.com/meigma/tfa/manifest"
)

// Sentinel errors re-exported from internal packages.
var (
	// ErrDecompression is returned when a payload stream is corrupt.
	ErrDecompression = file.ErrDecompression

	// ErrSizeOverflow is returned when decompressed content exceeds the limit.
	ErrSizeOverflow = file.ErrSizeOverflow

	// ErrVarintOverflow is returned when a varint has too many continuation bytes.
	ErrVarintOverflow = varint.ErrOverflow

	// ErrTruncated is returned when an index ends in the middle of a record.
	ErrTruncated = varint.ErrTruncated

	// ErrManifestRead matches warnings about a missing or malformed manifest.
	ErrManifestRead = manifest.ErrRead
)

// Sentinel errors specific to the tfa package.
var (
	// ErrFormat is matched by every *FormatError.
	ErrFormat = errors.New("tfa: malformed archive data")

	// ErrUnresolvedArchive is returned when an entry names a missing archive.
	ErrUnresolvedArchive = errors.New("tfa: archive not found")

	// ErrOutOfBounds is returned when offset+size exceeds the archive content.
	ErrOutOfBounds = errors.New("tfa: entry exceeds archive content")

	// ErrArchiveName is returned for payload files without a numeric id.
	ErrArchiveName = errors.New("tfa: archive name has no numeric id")

	// ErrInvalidPath is returned when an entry name escapes the scan root.
	ErrInvalidPath = errors.New("tfa: invalid entry path")

	// ErrDuplicateArchive is returned when two payload files share an id.
	ErrDuplicateArchive = errors.New("tfa: duplicate archive id")

	// ErrBusy is returned when another scan or extraction holds the root.
	ErrBusy = errors.New("tfa: root is busy")
)

// FormatError reports malformed data in an index, archive or entry.
type FormatError struct {
	// Path is the root-relative path of the offending unit.
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("tfa: %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// Failure records an error scoped to one index, archive or file.
// Failures never abort a scan or extraction.
type Failure struct {
	// Path is the root-relative path of the affected unit.
	Path string

	// Op names the step that failed (parse, discover, decompress, compare, write, ...).
	Op string

	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// joinFailures combines failures into one error, or nil.
func joinFailures(failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
