package gaps

import (
	"context"
	"time"

	"gapscan/internal/services"
)

// OwnedMovie is one movie in the library. ID is the canonical TMDB id.
type OwnedMovie struct {
	ID    int64  `json:"tmdb_id"`
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	File  string `json:"file,omitempty"`
}

// CollectionRef points at the collection a movie belongs to.
type CollectionRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MovieDetails is the catalog view of a single movie.
type MovieDetails struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	ReleaseDate *time.Time     `json:"release_date,omitempty"`
	Collection  *CollectionRef `json:"collection,omitempty"`
}

// CatalogMovie is one part of a collection manifest. A nil ReleaseDate means
// the catalog does not know when (or whether) it releases.
type CatalogMovie struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// Year returns the release year, or 0 when unknown.
func (m CatalogMovie) Year() int {
	if m.ReleaseDate == nil {
		return 0
	}
	return m.ReleaseDate.Year()
}

// Collection is a full collection manifest.
type Collection struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	Parts []CatalogMovie `json:"parts"`
}

// MovieCatalogSource answers movie and collection lookups.
type MovieCatalogSource interface {
	MovieDetails(ctx context.Context, id int64) (MovieDetails, error)
	Collection(ctx context.Context, id int64) (Collection, error)
}

// OwnedEpisode is one episode file in the library. Season and Episode come
// from library metadata; File may encode more episodes.
type OwnedEpisode struct {
	ShowID  int64  `json:"show_id"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	Title   string `json:"title,omitempty"`
	File    string `json:"file,omitempty"`
}

// OwnedShow is a series in the library with the episodes present on disk.
// ID is the canonical TVDB id; zero means the library has none.
type OwnedShow struct {
	ID       int64          `json:"tvdb_id"`
	Title    string         `json:"title"`
	Episodes []OwnedEpisode `json:"episodes"`
}

// SeriesStatus reports whether a series has concluded.
type SeriesStatus struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Ended  bool   `json:"ended"`
}

// CatalogEpisode is one episode in the canonical order.
type CatalogEpisode struct {
	ID      int64      `json:"id"`
	ShowID  int64      `json:"show_id"`
	Season  int        `json:"season"`
	Episode int        `json:"episode"`
	Title   string     `json:"title,omitempty"`
	AirDate *time.Time `json:"air_date,omitempty"`
}

// Special reports whether the episode belongs to season 0.
func (e CatalogEpisode) Special() bool { return e.Season == 0 }

// EpisodeCatalogSource answers series lookups. Episodes returns the complete
// list; paging is the source's concern.
type EpisodeCatalogSource interface {
	SeriesStatus(ctx context.Context, id int64) (SeriesStatus, error)
	Episodes(ctx context.Context, id int64) ([]CatalogEpisode, error)
}

// Cache is the read-through store used by both reconcilers.
// *cachestore.Store satisfies it.
type Cache interface {
	GetJSON(key, fingerprint string, v any) bool
	SetJSON(key string, v any, ttl time.Duration, fingerprint string) error
}

// cachedJSON reads key through cache and counts the lookup against catalog
// on the scan's recorder.
func cachedJSON(ctx context.Context, cache Cache, catalog, key, fingerprint string, v any) bool {
	hit := cache.GetJSON(key, fingerprint, v)
	services.RecorderFromContext(ctx).CacheLookup(catalog, hit)
	return hit
}
