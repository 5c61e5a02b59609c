// Package library holds the types shared by the media server inventory
// readers in its plex and jellyfin subpackages.
package library
