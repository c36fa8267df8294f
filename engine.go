package tfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/meigma/tfa/internal/batch"
	"github.com/meigma/tfa/internal/file"
	"github.com/meigma/tfa/manifest"
)

// Engine scans an archive tree and extracts it into a destination tree.
//
// An Engine holds no per-scan state: every Scan builds fresh Index and
// Archive values. Only one Scan or Extract may run against a source root at
// a time; a second caller gets ErrBusy.
type Engine struct {
	source         string
	dest           string
	manifestPath   string
	performance    bool
	workers        int
	codec          Codec
	maxContentSize uint64
	logger         *slog.Logger

	// decompress is swapped in tests to observe decompression calls.
	decompress func([]byte) ([]byte, error)
	sink       *batch.FileSink
}

// New creates an Engine reading archives below source and comparing with,
// and extracting to, dest.
//
// source must be an existing directory. dest need not exist yet.
func New(source, dest string, opts ...Option) (*Engine, error) {
	if source == "" {
		return nil, errors.New("tfa: source directory is required")
	}
	if dest == "" {
		return nil, errors.New("tfa: destination directory is required")
	}
	source = filepath.Clean(source)
	dest = filepath.Clean(dest)

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("tfa: source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tfa: source %s is not a directory", source)
	}

	e := &Engine{
		source:         source,
		dest:           dest,
		manifestPath:   filepath.Join(source, manifest.DefaultName),
		codec:          CodecRawDeflate,
		maxContentSize: DefaultMaxContentSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	pool := file.NewDecompressPool(e.codec, e.maxContentSize)
	e.decompress = pool.Decompress
	e.sink = batch.NewFileSink(dest)
	return e, nil
}

// Source returns the scanned root directory.
func (e *Engine) Source() string {
	return e.source
}

// Destination returns the extracted tree's root directory.
func (e *Engine) Destination() string {
	return e.dest
}

// ManifestPath returns the location of the hash manifest.
func (e *Engine) ManifestPath() string {
	return e.manifestPath
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// loadManifest reads the manifest, logging and returning any read problem.
// The returned manifest is never nil.
func (e *Engine) loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		level := slog.LevelDebug
		if e.performance {
			level = slog.LevelWarn
		}
		e.log().Log(context.Background(), level, "using empty hash manifest", "path", e.manifestPath, "error", err)
	}
	return m, err
}
