// Package testutil builds synthetic archive trees for tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/meigma/tfa/internal/index"
)

// File describes one entry to place in a synthetic directory.
type File struct {
	Name    string
	Archive uint32
	Content []byte
	Hash    uint32
}

// Deflate compresses data as a raw DEFLATE stream.
func Deflate(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		tb.Fatalf("flate writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

// Zlib compresses data as a zlib stream.
func Zlib(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

// WriteIndex writes index.tfi into dir.
func WriteIndex(tb testing.TB, dir string, records []index.Record) string {
	tb.Helper()
	return WriteRaw(tb, dir, "index.tfi", index.Encode(records))
}

// WriteArchive writes archive<id>.tfa into dir holding raw-deflated content.
func WriteArchive(tb testing.TB, dir string, id uint32, content []byte) string {
	tb.Helper()
	return WriteRaw(tb, dir, ArchiveName(id), Deflate(tb, content))
}

// WriteRaw writes data to dir/name, creating dir.
func WriteRaw(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		tb.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // test fixture
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ArchiveName returns the payload file name for id.
func ArchiveName(id uint32) string {
	return "archive" + strconv.FormatUint(uint64(id), 10) + ".tfa"
}

// WriteDir writes an index and its archives for files into root/dir.
//
// Content for each archive is concatenated in the order files are given, and
// offsets are assigned accordingly. The records are returned in index order.
func WriteDir(tb testing.TB, root, dir string, files []File) []index.Record {
	tb.Helper()
	return writeDir(tb, filepath.Join(root, filepath.FromSlash(dir)), files, Deflate)
}

// WriteDirZlib is WriteDir with zlib-framed archives.
func WriteDirZlib(tb testing.TB, root, dir string, files []File) []index.Record {
	tb.Helper()
	return writeDir(tb, filepath.Join(root, filepath.FromSlash(dir)), files, Zlib)
}

func writeDir(tb testing.TB, dir string, files []File, compress func(testing.TB, []byte) []byte) []index.Record {
	tb.Helper()

	payloads := make(map[uint32][]byte)
	records := make([]index.Record, 0, len(files))
	for _, f := range files {
		payload := payloads[f.Archive]
		offset, size := len(payload), len(f.Content)
		records = append(records, index.Record{
			Name:    f.Name,
			Archive: f.Archive,
			Offset:  uint32(offset), //nolint:gosec // fixtures are small
			Size:    uint32(size),   //nolint:gosec // fixtures are small
			Hash:    f.Hash,
		})
		payloads[f.Archive] = append(payload, f.Content...)
	}

	WriteIndex(tb, dir, records)
	for id, payload := range payloads {
		WriteRaw(tb, dir, ArchiveName(id), compress(tb, payload))
	}
	return records
}
