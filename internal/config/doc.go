// Package config loads, normalizes, and validates gapscan configuration data.
//
// It supplies repository defaults (including the cache TTL table), expands user
// paths, reads TOML files, and honours environment fallbacks such as
// TMDB_API_KEY and PLEX_TOKEN. Validation failures are tagged with
// services.ErrConfiguration so callers can surface them before a scan starts.
//
// The Config value is read once at startup and converted into the immutable
// option structs the reconcilers take; nothing downstream reads it globally.
package config
