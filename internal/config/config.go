package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// TVDB contains configuration for TheTVDB v4 API.
type TVDB struct {
	APIKey  string `toml:"api_key"`
	PIN     string `toml:"pin"`
	BaseURL string `toml:"base_url"`
}

// Library selects the media server the owned inventory is read from.
type Library struct {
	Source        string `toml:"source"` // "plex" or "jellyfin"
	MoviesLibrary string `toml:"movies_library"`
	ShowsLibrary  string `toml:"shows_library"`
}

// Plex contains configuration for Plex Media Server access.
type Plex struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Jellyfin contains configuration for Jellyfin Media Server access.
type Jellyfin struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
	UserID string `toml:"user_id"`
}

// Cache contains configuration for the catalog lookup cache.
type Cache struct {
	Backend        string `toml:"backend"` // "json", "sqlite", or "bolt"
	Path           string `toml:"path"`
	FlushThreshold int    `toml:"flush_threshold"`
}

// TTL holds cache lifetimes in hours for each class of catalog entry.
type TTL struct {
	MovieWithCollectionHours    int `toml:"movie_with_collection_hours"`
	MovieWithoutCollectionHours int `toml:"movie_without_collection_hours"`
	CollectionHours             int `toml:"collection_hours"`
	SeriesHours                 int `toml:"series_hours"`
	EpisodesContinuingHours     int `toml:"episodes_continuing_hours"`
	EpisodesEndedHours          int `toml:"episodes_ended_hours"`
}

// Retry tunes the capped exponential backoff applied to catalog requests.
type Retry struct {
	InitialMillis int     `toml:"initial_ms"`
	MaxMillis     int     `toml:"max_ms"`
	Multiplier    float64 `toml:"multiplier"`
	MaxRetries    int     `toml:"max_retries"`
}

// Movies contains collection gap filtering knobs.
type Movies struct {
	IncludeFuture         bool     `toml:"include_future"`
	MinCollectionSize     int      `toml:"min_collection_size"`
	MinOwned              int      `toml:"min_owned"`
	ExcludedCollections   []string `toml:"excluded_collections"`
	ExcludedCollectionIDs []int64  `toml:"excluded_collection_ids"`
}

// Episodes contains episode gap filtering knobs.
type Episodes struct {
	IncludeFuture        bool     `toml:"include_future"`
	IncludeSpecials      bool     `toml:"include_specials"`
	RecentThresholdHours int      `toml:"recent_threshold_hours"`
	ExcludedShows        []string `toml:"excluded_shows"`
	ExcludedShowIDs      []int64  `toml:"excluded_show_ids"`
}

// Scan contains worker and request limits shared by both reconcilers.
type Scan struct {
	Workers               int `toml:"workers"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for gapscan.
//
// Configuration sections by subsystem:
//   - TMDB, TVDB: catalog credentials and endpoints
//   - Library, Plex, Jellyfin: where the owned inventory comes from
//   - Cache, TTL: catalog cache backend and entry lifetimes
//   - Retry: backoff for rate-limited or flaky catalog requests
//   - Movies, Episodes: gap filters and exclusions
//   - Scan: worker pool size and request timeout
//   - Logging: log format, level, and optional JSON log file
type Config struct {
	TMDB     TMDB     `toml:"tmdb"`
	TVDB     TVDB     `toml:"tvdb"`
	Library  Library  `toml:"library"`
	Plex     Plex     `toml:"plex"`
	Jellyfin Jellyfin `toml:"jellyfin"`
	Cache    Cache    `toml:"cache"`
	TTL      TTL      `toml:"ttl"`
	Retry    Retry    `toml:"retry"`
	Movies   Movies   `toml:"movies"`
	Episodes Episodes `toml:"episodes"`
	Scan     Scan     `toml:"scan"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gapscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "gapscan")
	}
	return "~/.cache/gapscan"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
