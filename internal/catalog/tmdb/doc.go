// Package tmdb provides the minimal TMDB API client used by the movie
// collection reconciler.
//
// It resolves a movie to the collection it belongs to and fetches the part
// list of a collection. Status codes map onto the services error markers so
// the reconciler can tell a missing movie from an expired key, and requests
// go through the shared retry transport unless a test supplies its own
// HTTP client.
package tmdb
