package index

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/meigma/tfa/internal/varint"
)

// ErrInvalidName is returned when a record name is not valid UTF-8.
var ErrInvalidName = errors.New("index: name is not valid UTF-8")

// Record is one file entry as stored in an index file.
type Record struct {
	// Name is the file name relative to the index directory.
	Name string

	// Archive selects the archive<N>.tfa payload in the same directory.
	Archive uint32

	// Offset is the byte offset into the decompressed archive content.
	Offset uint32

	// Size is the content length in bytes.
	Size uint32

	// Hash is the integrity value stored by the format. It is not verified.
	Hash uint32
}

// End returns the exclusive end offset of the record's content.
func (r Record) End() uint64 {
	return uint64(r.Offset) + uint64(r.Size)
}

// ParseError describes where an index stopped being decodable.
type ParseError struct {
	// Record is the zero-based number of the record being decoded.
	Record int

	// Offset is the byte offset at which the failing field starts.
	Offset int

	// Field names the field being decoded.
	Field string

	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("index: record %d: %s at byte %d: %v", e.Record, e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes every record in data.
//
// Records are returned in encoding order. An empty buffer yields no records.
func Parse(data []byte) ([]Record, error) {
	var records []Record //nolint:prealloc // count is not stored in the format
	pos := 0
	for n := 0; pos < len(data); n++ {
		var rec Record
		var err error

		start := pos
		var nameLen uint32
		if nameLen, pos, err = varint.Decode(data, pos); err != nil {
			return nil, &ParseError{Record: n, Offset: start, Field: "name length", Err: err}
		}
		if uint64(len(data)-pos) < uint64(nameLen) {
			return nil, &ParseError{Record: n, Offset: pos, Field: "name", Err: varint.ErrTruncated}
		}
		name := data[pos : pos+int(nameLen)]
		if !utf8.Valid(name) {
			return nil, &ParseError{Record: n, Offset: pos, Field: "name", Err: ErrInvalidName}
		}
		rec.Name = string(name)
		pos += int(nameLen)

		fields := []struct {
			name string
			dst  *uint32
		}{
			{"archive index", &rec.Archive},
			{"offset", &rec.Offset},
			{"size", &rec.Size},
			{"hash", &rec.Hash},
		}
		for _, f := range fields {
			start = pos
			if *f.dst, pos, err = varint.Decode(data, pos); err != nil {
				return nil, &ParseError{Record: n, Offset: start, Field: f.name, Err: err}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Encode builds index bytes for the given records.
func Encode(records []Record) []byte {
	var buf []byte
	for _, r := range records {
		buf = varint.Append(buf, uint32(len(r.Name))) //nolint:gosec // names are short
		buf = append(buf, r.Name...)
		buf = varint.Append(buf, r.Archive)
		buf = varint.Append(buf, r.Offset)
		buf = varint.Append(buf, r.Size)
		buf = varint.Append(buf, r.Hash)
	}
	return buf
}
