package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tfa/internal/varint"
)

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Name: "a.txt", Archive: 0, Offset: 0, Size: 5, Hash: 0xdeadbeef},
		{Name: "b.txt", Archive: 0, Offset: 5, Size: 3, Hash: 1},
		{Name: "sub/c.bin", Archive: 2, Offset: 70000, Size: 1 << 20, Hash: 0},
		{Name: "ünïcødé.dat", Archive: 1, Offset: 128, Size: 16383, Hash: 42},
	}

	got, err := Parse(Encode(records))
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	got, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseEmptyName(t *testing.T) {
	t.Parallel()

	got, err := Parse(Encode([]Record{{Name: "", Size: 1}}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Name)
}

func TestParseTruncated(t *testing.T) {
	t.Parallel()

	full := Encode([]Record{
		{Name: "first.txt", Archive: 0, Offset: 0, Size: 10, Hash: 7},
		{Name: "second.txt", Archive: 0, Offset: 10, Size: 300, Hash: 9},
	})
	firstLen := len(Encode([]Record{{Name: "first.txt", Archive: 0, Offset: 0, Size: 10, Hash: 7}}))

	// Every cut inside the second record must fail and point at record 1.
	for cut := firstLen + 1; cut < len(full); cut++ {
		_, err := Parse(full[:cut])
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "cut at %d", cut)
		assert.Equal(t, 1, perr.Record, "cut at %d", cut)
		assert.ErrorIs(t, err, varint.ErrTruncated, "cut at %d", cut)
	}
}

func TestParseNameLongerThanBuffer(t *testing.T) {
	t.Parallel()

	data := varint.Append(nil, 50)
	data = append(data, "short"...)

	_, err := Parse(data)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "name", perr.Field)
	assert.Equal(t, 0, perr.Record)
}

func TestParseInvalidUTF8(t *testing.T) {
	t.Parallel()

	data := varint.Append(nil, 2)
	data = append(data, 0xff, 0xfe)
	data = varint.Append(data, 0)
	data = varint.Append(data, 0)
	data = varint.Append(data, 0)
	data = varint.Append(data, 0)

	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestParseCorruptVarint(t *testing.T) {
	t.Parallel()

	data := Encode([]Record{{Name: "x", Size: 1}})
	for range 12 {
		data = append(data, 0x80)
	}

	_, err := Parse(data)
	assert.ErrorIs(t, err, varint.ErrOverflow)
}

func TestRecordEnd(t *testing.T) {
	t.Parallel()

	r := Record{Offset: ^uint32(0), Size: ^uint32(0)}
	assert.Equal(t, uint64(^uint32(0))*2, r.End())
}
