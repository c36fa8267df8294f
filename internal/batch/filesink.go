package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	defaultDirPerm  = 0o750
	defaultFilePerm = 0o644
)

// FileSink writes extracted files below a destination directory.
//
// Files are written to a temporary file in the same directory and renamed to
// the final path, so partially written files are never visible at the final
// path. Existing files are replaced.
type FileSink struct {
	destDir string
}

// NewFileSink creates a FileSink that writes to destDir.
//
// destDir must be an absolute path or relative to the current directory.
// It and any parent directories of written files are created as needed.
func NewFileSink(destDir string) *FileSink {
	return &FileSink{destDir: destDir}
}

// Path returns the absolute-or-relative OS path for a slash separated name.
func (s *FileSink) Path(name string) string {
	return filepath.Join(s.destDir, filepath.FromSlash(name))
}

// Open opens name for reading. A missing file or missing destination
// directory yields an error matching fs.ErrNotExist.
func (s *FileSink) Open(name string) (*os.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return nil, err
	}
	defer root.Close()
	return root.Open(filepath.FromSlash(name))
}

// Put writes content to name, replacing any existing file.
func (s *FileSink) Put(name string, content []byte) error {
	if !fs.ValidPath(name) {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrInvalid}
	}
	destPath := s.Path(name)
	destRel := filepath.FromSlash(name)

	if err := os.MkdirAll(s.destDir, defaultDirPerm); err != nil {
		return fmt.Errorf("create destination %s: %w", s.destDir, err)
	}
	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	defer root.Close()

	if dir := filepath.Dir(destRel); dir != "." {
		if err := root.MkdirAll(dir, defaultDirPerm); err != nil {
			return fmt.Errorf("create directory %s: %w", filepath.Dir(destPath), err)
		}
	}

	if info, err := root.Lstat(destRel); err == nil && info.IsDir() {
		return &fs.PathError{Op: "write", Path: destPath, Err: errors.New("is a directory")}
	}

	// Create temp file in same directory (for atomic rename)
	tempFile, tempRel, err := createTempFile(root, filepath.Dir(destRel), ".tfa-", defaultFilePerm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()     //nolint:errcheck // best-effort cleanup
		_ = root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if err := tempFile.Close(); err != nil {
		_ = root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := root.Rename(tempRel, destRel); err != nil {
		_ = root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", destPath, err)
	}
	return nil
}

func createTempFile(root *os.Root, dir, prefix string, perm os.FileMode) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
