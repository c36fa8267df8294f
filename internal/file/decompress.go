package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/meigma/tfa/internal/sizing"
)

// DefaultMaxContentSize bounds decompressed archive content.
// Entry offsets and sizes are 32-bit, so no valid archive needs more.
const DefaultMaxContentSize = 1 << 33

var (
	// ErrDecompression is returned when a payload stream is corrupt.
	ErrDecompression = errors.New("tfa: decompression failed")

	// ErrSizeOverflow is returned when decompressed content exceeds the limit.
	ErrSizeOverflow = errors.New("tfa: size overflow")
)

// Codec identifies how archive payloads are framed.
type Codec uint8

const (
	// CodecRawDeflate is a headerless DEFLATE stream.
	CodecRawDeflate Codec = iota

	// CodecZlib is a DEFLATE stream with a zlib header and Adler-32 trailer.
	CodecZlib
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecRawDeflate:
		return "deflate"
	case CodecZlib:
		return "zlib"
	default:
		return "unknown"
	}
}

// resetReader is satisfied by both flate and zlib readers.
type resetReader interface {
	io.ReadCloser
	Reset(r io.Reader, dict []byte) error
}

// DecompressPool manages reusable decoders for one codec.
type DecompressPool struct {
	codec   Codec
	maxSize uint64
	pool    sync.Pool
}

// NewDecompressPool creates a pool for the given codec.
// If maxSize is 0, decompressed content is not limited.
func NewDecompressPool(codec Codec, maxSize uint64) *DecompressPool {
	return &DecompressPool{codec: codec, maxSize: maxSize}
}

// Get returns a decoder configured to read from r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *DecompressPool) Get(r io.Reader) (io.Reader, func(), error) {
	if value := p.pool.Get(); value != nil {
		if dec, ok := value.(resetReader); ok {
			if err := dec.Reset(r, nil); err == nil {
				return dec, func() { p.pool.Put(dec) }, nil
			}
			_ = dec.Close() //nolint:errcheck // discarding a decoder that failed to reset
		}
	}

	dec, err := p.newDecoder(r)
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { p.pool.Put(dec) }, nil
}

func (p *DecompressPool) newDecoder(r io.Reader) (resetReader, error) {
	switch p.codec {
	case CodecRawDeflate:
		dec, ok := flate.NewReader(r).(resetReader)
		if !ok {
			return nil, errors.New("flate reader does not support reset")
		}
		return dec, nil
	case CodecZlib:
		rc, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		dec, ok := rc.(resetReader)
		if !ok {
			return nil, errors.New("zlib reader does not support reset")
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("unknown codec %d", p.codec)
	}
}

// Decompress decodes a complete payload held in memory.
//
// Corrupt streams wrap ErrDecompression. Content larger than the pool limit
// returns ErrSizeOverflow.
func (p *DecompressPool) Decompress(raw []byte) ([]byte, error) {
	dec, release, err := p.Get(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer release()

	var content []byte
	if p.maxSize == 0 {
		content, err = io.ReadAll(dec)
	} else {
		content, err = sizing.ReadAllWithLimit(dec, p.maxSize, ErrSizeOverflow)
	}
	if errors.Is(err, ErrSizeOverflow) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return content, nil
}
