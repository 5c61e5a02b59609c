package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gapscan/internal/catalog"
	"gapscan/internal/catalog/retry"
	"gapscan/internal/gaps"
	"gapscan/internal/library"
	"gapscan/internal/services"
)

const (
	service   = "plex"
	pageSize  = 200
	userAgent = "gapscan/1.0"
)

type guid struct {
	ID string `json:"id"`
}

type part struct {
	File string `json:"file"`
}

type media struct {
	Part []part `json:"Part"`
}

type metadata struct {
	RatingKey   string  `json:"ratingKey"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	Index       int     `json:"index"`
	ParentIndex int     `json:"parentIndex"`
	LegacyGUID  string  `json:"guid"`
	GUID        []guid  `json:"Guid"`
	Media       []media `json:"Media"`
}

type directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type container struct {
	MediaContainer struct {
		Size      int         `json:"size"`
		TotalSize int         `json:"totalSize"`
		Directory []directory `json:"Directory"`
		Metadata  []metadata  `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Client reads library inventory from a Plex Media Server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu       sync.Mutex
	sections []library.Section
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Plex client.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)
	if baseURL == "" || token == "" {
		return nil, services.Wrap(services.ErrConfiguration, service, "new client", "url and token required", nil)
	}
	client := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: retry.New(service, nil, retry.DefaultPolicy()),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Libraries lists the server's library sections.
func (c *Client) Libraries(ctx context.Context) ([]library.Section, error) {
	return c.ensureSections(ctx)
}

func (c *Client) ensureSections(ctx context.Context) ([]library.Section, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sections != nil {
		return c.sections, nil
	}

	var payload container
	if err := c.get(ctx, "sections", "/library/sections", nil, &payload); err != nil {
		return nil, err
	}
	sections := make([]library.Section, 0, len(payload.MediaContainer.Directory))
	for _, dir := range payload.MediaContainer.Directory {
		if dir.Key == "" || dir.Title == "" {
			continue
		}
		sections = append(sections, library.Section{Key: dir.Key, Title: dir.Title, Kind: sectionKind(dir.Type)})
	}
	c.sections = sections
	return sections, nil
}

func (c *Client) section(ctx context.Context, name string) (library.Section, error) {
	sections, err := c.ensureSections(ctx)
	if err != nil {
		return library.Section{}, err
	}
	s, ok := library.Match(sections, name)
	if !ok {
		return library.Section{}, services.Wrap(services.ErrNotFound, service, "sections", fmt.Sprintf("library %q not found", name), nil)
	}
	return s, nil
}

// ListOwnedMovies returns every movie in the named library. Movies without a
// tmdb:// GUID come back with ID 0.
func (c *Client) ListOwnedMovies(ctx context.Context, libraryName string) ([]gaps.OwnedMovie, error) {
	s, err := c.section(ctx, libraryName)
	if err != nil {
		return nil, err
	}
	items, err := c.all(ctx, s.Key, "1")
	if err != nil {
		return nil, err
	}
	movies := make([]gaps.OwnedMovie, 0, len(items))
	for _, item := range items {
		tmdbID, _ := externalIDs(item)
		movies = append(movies, gaps.OwnedMovie{
			ID:    tmdbID,
			Title: item.Title,
			Year:  item.Year,
			File:  firstFile(item),
		})
	}
	return movies, nil
}

// ListOwnedShows returns every show in the named library.
func (c *Client) ListOwnedShows(ctx context.Context, libraryName string) ([]library.ShowRef, error) {
	s, err := c.section(ctx, libraryName)
	if err != nil {
		return nil, err
	}
	items, err := c.all(ctx, s.Key, "2")
	if err != nil {
		return nil, err
	}
	shows := make([]library.ShowRef, 0, len(items))
	for _, item := range items {
		_, tvdbID := externalIDs(item)
		shows = append(shows, library.ShowRef{Key: item.RatingKey, ID: tvdbID, Title: item.Title})
	}
	return shows, nil
}

// ListEpisodes returns the episode files of one show.
func (c *Client) ListEpisodes(ctx context.Context, show library.ShowRef) ([]gaps.OwnedEpisode, error) {
	if strings.TrimSpace(show.Key) == "" {
		return nil, fmt.Errorf("plex show %q has no rating key", show.Title)
	}
	items, err := c.paged(ctx, "episodes", "/library/metadata/"+url.PathEscape(show.Key)+"/allLeaves", nil)
	if err != nil {
		return nil, err
	}
	episodes := make([]gaps.OwnedEpisode, 0, len(items))
	for _, item := range items {
		episodes = append(episodes, gaps.OwnedEpisode{
			ShowID:  show.ID,
			Season:  item.ParentIndex,
			Episode: item.Index,
			Title:   item.Title,
			File:    firstFile(item),
		})
	}
	return episodes, nil
}

func (c *Client) all(ctx context.Context, key, itemType string) ([]metadata, error) {
	params := url.Values{}
	params.Set("includeGuids", "1")
	params.Set("type", itemType)
	return c.paged(ctx, "items", "/library/sections/"+url.PathEscape(key)+"/all", params)
}

func (c *Client) paged(ctx context.Context, operation, path string, params url.Values) ([]metadata, error) {
	if params == nil {
		params = url.Values{}
	}
	var out []metadata
	for start := 0; ; start += pageSize {
		params.Set("X-Plex-Container-Start", strconv.Itoa(start))
		params.Set("X-Plex-Container-Size", strconv.Itoa(pageSize))
		var payload container
		if err := c.get(ctx, operation, path, params, &payload); err != nil {
			return nil, err
		}
		page := payload.MediaContainer.Metadata
		out = append(out, page...)
		total := payload.MediaContainer.TotalSize
		if len(page) < pageSize || (total > 0 && len(out) >= total) {
			return out, nil
		}
	}
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) error {
	services.RecorderFromContext(ctx).Request(service, operation)
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build plex %s request: %w", operation, err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return catalog.TransportError(service, operation, err)
	}
	if err := catalog.CheckResponse(service, operation, resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, service, operation, "decode response", err)
	}
	return nil
}

func sectionKind(plexType string) library.Kind {
	switch plexType {
	case "movie":
		return library.KindMovies
	case "show":
		return library.KindShows
	default:
		return library.KindOther
	}
}

// externalIDs pulls TMDB and TVDB ids out of Plex GUIDs such as tmdb://603.
// Items matched by the legacy agents only carry the single guid field, e.g.
// com.plexapp.agents.themoviedb://603?lang=en.
func externalIDs(item metadata) (tmdbID, tvdbID int64) {
	for _, g := range item.GUID {
		scheme, value, ok := strings.Cut(g.ID, "://")
		if !ok {
			continue
		}
		switch strings.ToLower(scheme) {
		case "tmdb":
			tmdbID = library.ParseID(value)
		case "tvdb":
			tvdbID = library.ParseID(value)
		}
	}
	if tmdbID != 0 || tvdbID != 0 {
		return tmdbID, tvdbID
	}
	scheme, value, ok := strings.Cut(item.LegacyGUID, "://")
	if !ok {
		return 0, 0
	}
	value, _, _ = strings.Cut(value, "?")
	switch {
	case strings.HasSuffix(scheme, ".themoviedb"):
		tmdbID = library.ParseID(value)
	case strings.HasSuffix(scheme, ".thetvdb"):
		value, _, _ = strings.Cut(value, "/")
		tvdbID = library.ParseID(value)
	}
	return tmdbID, tvdbID
}

func firstFile(item metadata) string {
	for _, m := range item.Media {
		for _, p := range m.Part {
			if p.File != "" {
				return p.File
			}
		}
	}
	return ""
}
