package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeTMDB()
	c.normalizeTVDB()
	c.normalizeLibrary()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeExclusions()
	return c.normalizeLogging()
}

func (c *Config) normalizeTMDB() {
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	if c.TMDB.APIKey == "" {
		c.TMDB.APIKey = strings.TrimSpace(os.Getenv("TMDB_API_KEY"))
	}
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
}

func (c *Config) normalizeTVDB() {
	c.TVDB.APIKey = strings.TrimSpace(c.TVDB.APIKey)
	if c.TVDB.APIKey == "" {
		c.TVDB.APIKey = strings.TrimSpace(os.Getenv("TVDB_API_KEY"))
	}
	c.TVDB.PIN = strings.TrimSpace(c.TVDB.PIN)
	if c.TVDB.PIN == "" {
		c.TVDB.PIN = strings.TrimSpace(os.Getenv("TVDB_PIN"))
	}
	c.TVDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TVDB.BaseURL), "/")
	if c.TVDB.BaseURL == "" {
		c.TVDB.BaseURL = defaultTVDBBaseURL
	}
}

func (c *Config) normalizeLibrary() {
	c.Library.Source = strings.ToLower(strings.TrimSpace(c.Library.Source))
	if c.Library.Source == "" {
		c.Library.Source = defaultLibrarySource
	}
	c.Library.MoviesLibrary = strings.TrimSpace(c.Library.MoviesLibrary)
	c.Library.ShowsLibrary = strings.TrimSpace(c.Library.ShowsLibrary)

	c.Plex.URL = strings.TrimRight(strings.TrimSpace(c.Plex.URL), "/")
	c.Plex.Token = strings.TrimSpace(c.Plex.Token)
	if c.Plex.Token == "" {
		c.Plex.Token = strings.TrimSpace(os.Getenv("PLEX_TOKEN"))
	}

	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
	if c.Jellyfin.APIKey == "" {
		c.Jellyfin.APIKey = strings.TrimSpace(os.Getenv("JELLYFIN_API_KEY"))
	}
	c.Jellyfin.UserID = strings.TrimSpace(c.Jellyfin.UserID)
}

func (c *Config) normalizeCache() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = filepath.Join(defaultCacheDir(), "cache"+cacheExtension(c.Cache.Backend))
	}
	var err error
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	return nil
}

func cacheExtension(backend string) string {
	switch backend {
	case "sqlite":
		return ".db"
	case "bolt":
		return ".bolt"
	default:
		return ".json"
	}
}

func (c *Config) normalizeExclusions() {
	c.Movies.ExcludedCollections = trimList(c.Movies.ExcludedCollections)
	c.Episodes.ExcludedShows = trimList(c.Episodes.ExcludedShows)
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		var err error
		if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}

func trimList(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
