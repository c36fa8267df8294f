// Package tfa catalogs, diffs and extracts Trove file archives.
//
// An archive tree is a directory hierarchy in which any directory may hold
// one index file (index.tfi) and numbered payload files (archive0.tfa,
// archive1.tfa, ...):
//   - Index file: a headerless run of varint-encoded records naming each file
//     with its archive number, offset, size and a declared hash
//   - Payload file: a raw DEFLATE stream whose decompressed bytes hold the
//     file contents addressed by the index records
//
// An [Engine] scans a tree, classifies every file as added, changed or
// unchanged against a previously extracted copy, and extracts changed,
// selected or all files. Content and hashes are computed lazily and at most
// once per scan.
//
// # Quick Start
//
//	e, err := tfa.New("/games/Trove/Live", "/games/Trove/Live/extracted")
//	if err != nil {
//	    return err
//	}
//	scan, err := e.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	res, err := e.Extract(ctx, scan, tfa.ModeChanges, scan.SelectChanged(),
//	    tfa.ExtractWithSnapshots("/games/Trove/Live/changes"),
//	)
//
// # Performance mode
//
// With [WithPerformanceMode], the engine compares the raw bytes of index and
// payload files against the hash manifest written by the last extraction and
// skips containers that have not changed. The manifest is only trustworthy if
// no other tool extracted or modified the tree in between.
package tfa
