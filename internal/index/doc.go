// Package index parses archive index files.
//
// An index file is a tight run of records with no header, version or count.
// Each record is a varint-prefixed UTF-8 name followed by four varints:
// archive index, offset, size and declared hash. Parsing stops at the end of
// the buffer.
package index
