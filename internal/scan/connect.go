package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"gapscan/internal/config"
	"gapscan/internal/library"
	"gapscan/internal/logging"
)

// ConnectionCheck is the outcome of contacting one configured service.
type ConnectionCheck struct {
	Service    string `json:"service"`
	Configured bool   `json:"configured"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CheckConnections contacts the media server and both catalogs in parallel.
// Services without credentials are reported as not configured rather than
// failed. The results keep a fixed order: library source, TMDB, TVDB.
func CheckConnections(ctx context.Context, cfg *config.Config, logger *slog.Logger) []ConnectionCheck {
	logger = logging.NewComponentLogger(logger, "connect")
	checks := []ConnectionCheck{
		{Service: cfg.Library.Source},
		{Service: "tmdb"},
		{Service: "tvdb"},
	}
	run := []func(context.Context, *ConnectionCheck){
		func(ctx context.Context, check *ConnectionCheck) {
			source, err := NewLibrarySource(cfg, logger)
			if err != nil {
				check.Error = err.Error()
				return
			}
			check.Configured = true
			sections, err := source.Libraries(ctx)
			if err != nil {
				check.Error = err.Error()
				return
			}
			check.OK = true
			check.Detail = describeSections(sections)
		},
		func(ctx context.Context, check *ConnectionCheck) {
			client, err := NewMovieCatalog(cfg, logger)
			if err != nil {
				check.Error = err.Error()
				return
			}
			check.Configured = true
			if err := client.Ping(ctx); err != nil {
				check.Error = err.Error()
				return
			}
			check.OK = true
		},
		func(ctx context.Context, check *ConnectionCheck) {
			client, err := NewEpisodeCatalog(cfg, logger)
			if err != nil {
				check.Error = err.Error()
				return
			}
			check.Configured = true
			if err := client.Ping(ctx); err != nil {
				check.Error = err.Error()
				return
			}
			check.OK = true
		},
	}

	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			run[i](ctx, &checks[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, check := range checks {
		if check.Configured && !check.OK {
			logging.WarnWithContext(logger, "connection check failed", "connection_check_failed",
				logging.String("service", check.Service),
				logging.String(logging.FieldErrorHint, "verify the url and credentials for "+check.Service),
				logging.String(logging.FieldImpact, "scans using this service will fail"),
				logging.String("error", check.Error))
		}
	}
	return checks
}

func describeSections(sections []library.Section) string {
	var movies, shows []string
	for _, section := range sections {
		switch section.Kind {
		case library.KindMovies:
			movies = append(movies, section.Title)
		case library.KindShows:
			shows = append(shows, section.Title)
		}
	}
	parts := []string{fmt.Sprintf("%d libraries", len(sections))}
	if len(movies) > 0 {
		parts = append(parts, "movies: "+strings.Join(movies, ", "))
	}
	if len(shows) > 0 {
		parts = append(parts, "shows: "+strings.Join(shows, ", "))
	}
	return strings.Join(parts, "; ")
}
