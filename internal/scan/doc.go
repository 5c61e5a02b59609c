// Package scan runs one gap scan end to end. It lists the owned inventory
// from the configured media server, fingerprints it against the previous
// scan, hands it to the movie or episode reconciler with options taken from
// configuration, and flushes the catalog cache when the scan ends.
//
// The cache is held under an exclusive file lock for the life of the
// process so two scans never interleave their flushes.
package scan
