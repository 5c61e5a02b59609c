package config

import (
	"fmt"

	"gapscan/internal/services"
)

// Validate ensures the configuration is structurally usable. Credentials are
// checked per scan kind by RequireMovieCatalog and RequireEpisodeCatalog.
func (c *Config) Validate() error {
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateTTL(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateFilters(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireMovieCatalog reports a configuration error when TMDB credentials are missing.
func (c *Config) RequireMovieCatalog() error {
	if c.TMDB.APIKey == "" {
		return configError("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'gapscan config init')", c.displayPath())
	}
	return nil
}

// RequireEpisodeCatalog reports a configuration error when TVDB credentials are missing.
func (c *Config) RequireEpisodeCatalog() error {
	if c.TVDB.APIKey == "" {
		return configError("tvdb.api_key is required. Set TVDB_API_KEY env var or edit %s", c.displayPath())
	}
	return nil
}

// RequireLibrarySource reports a configuration error when the selected media
// server lacks a URL or credential.
func (c *Config) RequireLibrarySource() error {
	switch c.Library.Source {
	case "plex":
		if c.Plex.URL == "" || c.Plex.Token == "" {
			return configError("plex.url and plex.token are required when library.source = \"plex\"")
		}
	case "jellyfin":
		if c.Jellyfin.URL == "" || c.Jellyfin.APIKey == "" {
			return configError("jellyfin.url and jellyfin.api_key are required when library.source = \"jellyfin\"")
		}
	}
	return nil
}

func (c *Config) displayPath() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}

func (c *Config) validateLibrary() error {
	switch c.Library.Source {
	case "plex", "jellyfin":
		return nil
	default:
		return configError("library.source must be \"plex\" or \"jellyfin\", got %q", c.Library.Source)
	}
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "json", "sqlite", "bolt":
	default:
		return configError("cache.backend must be one of json, sqlite, bolt; got %q", c.Cache.Backend)
	}
	if c.Cache.FlushThreshold <= 0 {
		return configError("cache.flush_threshold must be positive")
	}
	return nil
}

func (c *Config) validateTTL() error {
	return ensurePositiveMap(map[string]int{
		"ttl.movie_with_collection_hours":    c.TTL.MovieWithCollectionHours,
		"ttl.movie_without_collection_hours": c.TTL.MovieWithoutCollectionHours,
		"ttl.collection_hours":               c.TTL.CollectionHours,
		"ttl.series_hours":                   c.TTL.SeriesHours,
		"ttl.episodes_continuing_hours":      c.TTL.EpisodesContinuingHours,
		"ttl.episodes_ended_hours":           c.TTL.EpisodesEndedHours,
	})
}

func (c *Config) validateRetry() error {
	if c.Retry.InitialMillis <= 0 || c.Retry.MaxMillis <= 0 {
		return configError("retry.initial_ms and retry.max_ms must be positive")
	}
	if c.Retry.MaxMillis < c.Retry.InitialMillis {
		return configError("retry.max_ms must be at least retry.initial_ms")
	}
	if c.Retry.Multiplier < 1 {
		return configError("retry.multiplier must be >= 1")
	}
	if c.Retry.MaxRetries < 0 {
		return configError("retry.max_retries must not be negative")
	}
	return nil
}

func (c *Config) validateFilters() error {
	if c.Movies.MinCollectionSize < 0 || c.Movies.MinOwned < 0 {
		return configError("movies.min_collection_size and movies.min_owned must not be negative")
	}
	if c.Episodes.RecentThresholdHours < 0 {
		return configError("episodes.recent_threshold_hours must not be negative")
	}
	return nil
}

func (c *Config) validateScan() error {
	return ensurePositiveMap(map[string]int{
		"scan.workers":                 c.Scan.Workers,
		"scan.request_timeout_seconds": c.Scan.RequestTimeoutSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return configError("logging.format must be auto, console, or json; got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return configError("logging.level must be debug, info, warn, or error; got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return configError("%s must be positive", key)
		}
	}
	return nil
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", services.ErrConfiguration, fmt.Sprintf(format, args...))
}
