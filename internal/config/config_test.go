package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"gapscan/internal/config"
	"gapscan/internal/services"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("TVDB_API_KEY", "tvdb-key")
	t.Setenv("PLEX_TOKEN", "plex-token")
	t.Setenv("XDG_CACHE_HOME", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.TMDB.APIKey != "tmdb-key" || cfg.TVDB.APIKey != "tvdb-key" || cfg.Plex.Token != "plex-token" {
		t.Fatalf("expected env credentials, got tmdb=%q tvdb=%q plex=%q", cfg.TMDB.APIKey, cfg.TVDB.APIKey, cfg.Plex.Token)
	}
	wantCache := filepath.Join(tempHome, ".cache", "gapscan", "cache.json")
	if cfg.Cache.Path != wantCache {
		t.Fatalf("unexpected cache path: got %q want %q", cfg.Cache.Path, wantCache)
	}
	if cfg.Cache.FlushThreshold != 250 {
		t.Fatalf("unexpected flush threshold: %d", cfg.Cache.FlushThreshold)
	}
	if cfg.TTL.EpisodesContinuingHours != 24 || cfg.TTL.EpisodesEndedHours != 720 {
		t.Fatalf("unexpected episode TTLs: %+v", cfg.TTL)
	}
	if cfg.Movies.MinOwned != 2 || cfg.Movies.MinCollectionSize != 2 {
		t.Fatalf("unexpected movie filters: %+v", cfg.Movies)
	}
	if cfg.Episodes.IncludeSpecials || cfg.Episodes.IncludeFuture {
		t.Fatal("expected specials and future episodes excluded by default")
	}
	if err := cfg.RequireMovieCatalog(); err != nil {
		t.Fatalf("RequireMovieCatalog: %v", err)
	}
}

func TestLoadCustomFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TMDB_API_KEY", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"tmdb":     map[string]any{"api_key": "file-key"},
		"library":  map[string]any{"source": "Jellyfin"},
		"jellyfin": map[string]any{"url": "http://jf.local:8096/", "api_key": "jf"},
		"cache":    map[string]any{"backend": "sqlite", "path": "~/gapscan/cache.db"},
		"movies":   map[string]any{"min_owned": 3, "excluded_collections": []string{" Star Wars Collection ", ""}},
		"logging":  map[string]any{"format": "JSON", "level": "debug"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Library.Source != "jellyfin" {
		t.Fatalf("expected normalized source, got %q", cfg.Library.Source)
	}
	if cfg.Jellyfin.URL != "http://jf.local:8096" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Jellyfin.URL)
	}
	if want := filepath.Join(tempHome, "gapscan", "cache.db"); cfg.Cache.Path != want {
		t.Fatalf("unexpected cache path: got %q want %q", cfg.Cache.Path, want)
	}
	if len(cfg.Movies.ExcludedCollections) != 1 || cfg.Movies.ExcludedCollections[0] != "Star Wars Collection" {
		t.Fatalf("unexpected exclusions: %#v", cfg.Movies.ExcludedCollections)
	}
	if cfg.Movies.MinOwned != 3 {
		t.Fatalf("expected min_owned 3, got %d", cfg.Movies.MinOwned)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if err := cfg.RequireLibrarySource(); err != nil {
		t.Fatalf("RequireLibrarySource: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[cache]\nbackend_typo = \"json\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateReportsConfigurationErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"backend", func(c *config.Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"source", func(c *config.Config) { c.Library.Source = "kodi" }, "library.source"},
		{"ttl", func(c *config.Config) { c.TTL.SeriesHours = 0 }, "ttl.series_hours"},
		{"retry", func(c *config.Config) { c.Retry.MaxMillis = 10 }, "retry.max_ms"},
		{"workers", func(c *config.Config) { c.Scan.Workers = 0 }, "scan.workers"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%s: expected configuration marker, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, err.Error())
		}
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireMovieCatalog(); !services.IsFatal(err) {
		t.Fatalf("expected fatal config error for missing TMDB key, got %v", err)
	}
	if err := cfg.RequireEpisodeCatalog(); !services.IsFatal(err) {
		t.Fatalf("expected fatal config error for missing TVDB key, got %v", err)
	}
	if err := cfg.RequireLibrarySource(); err == nil {
		t.Fatal("expected error when plex url/token missing")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Cache.Backend != "json" || cfg.Scan.Workers != 4 {
		t.Fatalf("unexpected sample values: backend=%q workers=%d", cfg.Cache.Backend, cfg.Scan.Workers)
	}
}
