// Package sizing provides overflow-safe size arithmetic for archive content.
package sizing

import (
	"io"
	"math"
)

// WithinBounds reports whether [offset, offset+size) fits inside a buffer of
// length n.
func WithinBounds(offset, size uint64, n int) bool {
	end, ok := AddUint64(offset, size)
	if !ok || n < 0 {
		return false
	}
	return end <= uint64(n)
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
