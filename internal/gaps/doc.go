// Package gaps reconciles owned media against catalog data.
//
// MovieReconciler walks owned movies to the collections they belong to and
// reports the released parts that are not owned. EpisodeReconciler compares
// each owned series against its full episode list, season by season, after
// expanding multi-episode files with the episodefile resolver.
//
// Both reconcilers read through a Cache before calling their catalog source
// and choose TTLs from a TTLPolicy. Lookups run on a bounded errgroup pool.
// Per-item lookup errors become report failures; only authentication and
// configuration errors end a reconcile early. Cancellation returns whatever
// was processed, flagged as partial.
package gaps
