// Package plex reads the owned inventory from a Plex Media Server: library
// sections, movies and shows with their provider GUIDs, and the episode
// files of each show. Listings are paged with the X-Plex-Container headers
// passed as query parameters.
package plex
