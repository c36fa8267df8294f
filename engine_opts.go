package tfa

import (
	"log/slog"

	"github.com/meigma/tfa/internal/file"
)

// Codec identifies how archive payloads are framed.
type Codec = file.Codec

const (
	// CodecRawDeflate is a headerless DEFLATE stream (the default).
	CodecRawDeflate = file.CodecRawDeflate

	// CodecZlib is a DEFLATE stream with a zlib header and checksum.
	CodecZlib = file.CodecZlib
)

// DefaultMaxContentSize bounds the decompressed size of one archive.
const DefaultMaxContentSize = file.DefaultMaxContentSize

// Option configures an Engine.
type Option func(*Engine)

// WithPerformanceMode skips indexes and archives whose raw bytes hash to the
// value recorded in the manifest by the last extraction.
//
// Skipped units contribute no changes. The result is only correct if nothing
// but this engine extracted from or modified the tree since the manifest was
// written; a stale manifest silently hides changes.
func WithPerformanceMode(enabled bool) Option {
	return func(e *Engine) {
		e.performance = enabled
	}
}

// WithManifestPath sets where the hash manifest is read and written.
// The default is hashes.json in the source root.
func WithManifestPath(path string) Option {
	return func(e *Engine) {
		e.manifestPath = path
	}
}

// WithWorkers sets how many entries of one archive are compared in parallel.
// Values <= 0 use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithCodec selects the payload framing. The default is CodecRawDeflate.
func WithCodec(c Codec) Option {
	return func(e *Engine) {
		e.codec = c
	}
}

// WithMaxContentSize limits the decompressed size of one archive.
// Set limit to 0 to disable the limit.
func WithMaxContentSize(limit uint64) Option {
	return func(e *Engine) {
		e.maxContentSize = limit
	}
}

// WithLogger sets a logger for the engine.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}
