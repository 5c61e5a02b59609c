// Package tvdb provides the TheTVDB v4 client used by the episode
// reconciler: series status for cache lifetimes and the paginated default
// episode ordering for the expected episode list.
package tvdb
