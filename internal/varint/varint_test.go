package varint

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value uint32
		size  int
	}{
		{"zero", 0, 1},
		{"max one byte", 127, 1},
		{"min two bytes", 128, 2},
		{"max two bytes", 16383, 2},
		{"max int32", math.MaxInt32, 5},
		{"max uint32", math.MaxUint32, MaxLen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := Append(nil, tt.value)
			assert.Len(t, buf, tt.size)

			got, next, err := Decode(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			assert.Equal(t, len(buf), next)
		})
	}
}

func TestDecodeAtOffset(t *testing.T) {
	t.Parallel()

	buf := Append([]byte{0xff, 0xff}, 300)
	buf = Append(buf, 5)

	v, next, err := Decode(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), v)

	v, next, err = Decode(buf, next)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)
	assert.Equal(t, len(buf), next)
}

func TestDecodeMasksTo32Bits(t *testing.T) {
	t.Parallel()

	// 2^35 + 1: bits above 32 are dropped.
	buf := []byte{0x81, 0x80, 0x80, 0x80, 0x80, 0x01}
	v, _, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestDecodeOverflow(t *testing.T) {
	t.Parallel()

	buf := bytes.Repeat([]byte{0x80}, 10)
	buf = append(buf, 0x01)
	_, _, err := Decode(buf, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeNineContinuationBytesIsValid(t *testing.T) {
	t.Parallel()

	// Nine continuation bytes reach shift 63; the tenth byte terminates.
	buf := append(bytes.Repeat([]byte{0x80}, 9), 0x00)
	v, next, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
	assert.Equal(t, 10, next)
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	_, _, err := Decode([]byte{0x80, 0x80}, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = Decode(nil, 0)
	assert.ErrorIs(t, err, ErrTruncated)
}
