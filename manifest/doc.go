// Package manifest persists the hash manifest used by performance mode.
//
// A manifest maps scan-root-relative paths (slash separated) to lowercase hex
// digests of index and archive files as they were when last extracted. It is
// stored as a single flat JSON object, by default in hashes.json at the scan
// root.
//
// The manifest is only accurate if every extraction of the scanned tree goes
// through this module. Extracting or updating the tree with another tool
// leaves stale entries behind, and stale entries cause unchanged-looking
// containers to be skipped.
package manifest
