// Package cachestore keeps catalog lookups between scans.
//
// Entries carry a TTL and an optional fingerprint. A reader gets a payload
// only while the TTL has not elapsed and, when both sides have one, the
// fingerprints agree. Reads never evict; PurgeExpired does.
//
// The Store keeps everything in memory and hands complete snapshots to a
// Persistence backend in batches. Three backends exist: a JSON file written
// through afero with temp-file-and-rename, a modernc SQLite database, and a
// bbolt file. Each save replaces the previous snapshot in one step, so a crash
// leaves either the old or the new contents. Unreadable snapshots are logged
// and the store starts empty.
//
// AcquireLock serializes whole scans across processes with a flock file.
package cachestore
