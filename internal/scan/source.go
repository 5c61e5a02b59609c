package scan

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"gapscan/internal/catalog/retry"
	"gapscan/internal/catalog/tmdb"
	"gapscan/internal/catalog/tvdb"
	"gapscan/internal/config"
	"gapscan/internal/gaps"
	"gapscan/internal/library"
	"gapscan/internal/library/jellyfin"
	"gapscan/internal/library/plex"
	"gapscan/internal/services"
)

// LibrarySource lists what a media server says the user owns.
type LibrarySource interface {
	Libraries(ctx context.Context) ([]library.Section, error)
	ListOwnedMovies(ctx context.Context, libraryName string) ([]gaps.OwnedMovie, error)
	ListOwnedShows(ctx context.Context, libraryName string) ([]library.ShowRef, error)
	ListEpisodes(ctx context.Context, show library.ShowRef) ([]gaps.OwnedEpisode, error)
}

var (
	_ LibrarySource = (*plex.Client)(nil)
	_ LibrarySource = (*jellyfin.Client)(nil)
)

// NewLibrarySource builds the configured media server client.
func NewLibrarySource(cfg *config.Config, logger *slog.Logger) (LibrarySource, error) {
	if err := cfg.RequireLibrarySource(); err != nil {
		return nil, err
	}
	switch cfg.Library.Source {
	case "plex":
		client, err := plex.New(cfg.Plex.URL, cfg.Plex.Token, plex.WithHTTPClient(NewHTTPClient(cfg, "plex", logger)))
		if err != nil {
			return nil, err
		}
		return client, nil
	case "jellyfin":
		client, err := jellyfin.New(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey, cfg.Jellyfin.UserID,
			jellyfin.WithHTTPClient(NewHTTPClient(cfg, "jellyfin", logger)))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "scan", "library source", "unknown source "+cfg.Library.Source, nil)
	}
}

// NewMovieCatalog builds the TMDB client.
func NewMovieCatalog(cfg *config.Config, logger *slog.Logger) (*tmdb.Client, error) {
	if err := cfg.RequireMovieCatalog(); err != nil {
		return nil, err
	}
	return tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language,
		tmdb.WithHTTPClient(NewHTTPClient(cfg, "tmdb", logger)))
}

// NewEpisodeCatalog builds the TVDB client.
func NewEpisodeCatalog(cfg *config.Config, logger *slog.Logger) (*tvdb.Client, error) {
	if err := cfg.RequireEpisodeCatalog(); err != nil {
		return nil, err
	}
	return tvdb.New(cfg.TVDB.APIKey, cfg.TVDB.PIN, cfg.TVDB.BaseURL,
		tvdb.WithHTTPClient(NewHTTPClient(cfg, "tvdb", logger)))
}

// NewHTTPClient returns a client whose transport retries with the configured
// backoff. The request timeout bounds each attempt's wait for response
// headers, not the retries as a whole.
func NewHTTPClient(cfg *config.Config, service string, logger *slog.Logger) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = time.Duration(cfg.Scan.RequestTimeoutSeconds) * time.Second
	return &http.Client{
		Transport: retry.New(service, base, RetryPolicy(cfg), retry.WithLogger(logger)),
	}
}
