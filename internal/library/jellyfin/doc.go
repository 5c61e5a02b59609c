// Package jellyfin reads the owned inventory from a Jellyfin server using
// an API key: virtual folders, movies and series with provider ids, and the
// episodes of each series.
package jellyfin
