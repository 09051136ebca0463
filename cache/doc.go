// Package cache provides the durable store backing the tree syncer.
//
// Records are persisted in a single bbolt database file, one bucket for
// tree snapshots keyed by "owner/name@ref" and one for per-owner
// repository listings. Values are zstd-compressed, versioned JSON
// envelopes; a record that fails to decompress, decode, or match the
// current envelope version is treated as absent and dropped, so a
// corrupt file entry heals itself through a refetch instead of failing
// the process.
//
// An in-memory map fronts the database so repeated reads within a
// process share the identical decoded snapshot. Records are immutable
// once handed out: writes and access-time bumps always replace the map
// entry with a fresh record (persisting first where applicable), so
// concurrent readers observe either the old or the new complete record
// and never a partial update.
//
// Expired records are removed by Sweep, typically driven by the
// background collector started with StartGC. Eviction never runs on
// the read path.
package cache
