// Package varint decodes and encodes the 7-bit variable-length integers used
// by archive index files.
//
// Each byte carries seven payload bits, least significant group first. The
// high bit marks that another byte follows. Decoded values are masked to 32
// bits.
package varint

import "errors"

// MaxLen is the number of bytes needed to encode any uint32.
const MaxLen = 5

var (
	// ErrOverflow is returned when continuation bits run past 64 bits of payload.
	ErrOverflow = errors.New("varint: too many bytes")

	// ErrTruncated is returned when the buffer ends before a terminating byte.
	ErrTruncated = errors.New("varint: truncated")
)

// Decode reads one value starting at buf[pos].
// It returns the value and the position just past the last byte consumed.
func Decode(buf []byte, pos int) (uint32, int, error) {
	var result uint64
	var shift uint
	for {
		if pos >= len(buf) {
			return 0, pos, ErrTruncated
		}
		b := buf[pos]
		pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return uint32(result), pos, nil //nolint:gosec // masked to 32 bits by design of the format
		}
		shift += 7
		if shift >= 64 {
			return 0, pos, ErrOverflow
		}
	}
}

// Append encodes v and appends it to dst.
func Append(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
