// Command gapscan reports movies missing from partly owned collections and
// aired episodes missing from owned shows, for a Plex or Jellyfin library.
package main
