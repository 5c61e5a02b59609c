package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gapscan/internal/catalog"
	"gapscan/internal/catalog/retry"
	"gapscan/internal/gaps"
	"gapscan/internal/library"
	"gapscan/internal/services"
)

const (
	service  = "jellyfin"
	pageSize = 500
)

type virtualFolder struct {
	Name           string `json:"Name"`
	ItemID         string `json:"ItemId"`
	CollectionType string `json:"CollectionType"`
}

type item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	ProductionYear    int               `json:"ProductionYear"`
	ProviderIDs       map[string]string `json:"ProviderIds"`
	Path              string            `json:"Path"`
	ParentIndexNumber int               `json:"ParentIndexNumber"`
	IndexNumber       int               `json:"IndexNumber"`
	IndexNumberEnd    int               `json:"IndexNumberEnd"`
}

type itemsResponse struct {
	Items            []item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// Client reads library inventory from a Jellyfin server.
type Client struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
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

// New creates a Jellyfin client. When userID is set, item queries are
// scoped to that user's view of the library.
func New(baseURL, apiKey, userID string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	if baseURL == "" || apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, service, "new client", "url and api key required", nil)
	}
	client := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  strings.TrimSpace(userID),
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

// Libraries lists the server's virtual folders.
func (c *Client) Libraries(ctx context.Context) ([]library.Section, error) {
	var folders []virtualFolder
	if err := c.get(ctx, "libraries", "/Library/VirtualFolders", nil, &folders); err != nil {
		return nil, err
	}
	sections := make([]library.Section, 0, len(folders))
	for _, f := range folders {
		if f.ItemID == "" {
			continue
		}
		sections = append(sections, library.Section{Key: f.ItemID, Title: f.Name, Kind: folderKind(f.CollectionType)})
	}
	return sections, nil
}

func (c *Client) section(ctx context.Context, name string) (library.Section, error) {
	sections, err := c.Libraries(ctx)
	if err != nil {
		return library.Section{}, err
	}
	s, ok := library.Match(sections, name)
	if !ok {
		return library.Section{}, services.Wrap(services.ErrNotFound, service, "libraries", fmt.Sprintf("library %q not found", name), nil)
	}
	return s, nil
}

// ListOwnedMovies returns every movie in the named library.
func (c *Client) ListOwnedMovies(ctx context.Context, libraryName string) ([]gaps.OwnedMovie, error) {
	s, err := c.section(ctx, libraryName)
	if err != nil {
		return nil, err
	}
	items, err := c.items(ctx, s.Key, "Movie")
	if err != nil {
		return nil, err
	}
	movies := make([]gaps.OwnedMovie, 0, len(items))
	for _, it := range items {
		movies = append(movies, gaps.OwnedMovie{
			ID:    providerID(it.ProviderIDs, "Tmdb"),
			Title: it.Name,
			Year:  it.ProductionYear,
			File:  it.Path,
		})
	}
	return movies, nil
}

// ListOwnedShows returns every series in the named library.
func (c *Client) ListOwnedShows(ctx context.Context, libraryName string) ([]library.ShowRef, error) {
	s, err := c.section(ctx, libraryName)
	if err != nil {
		return nil, err
	}
	items, err := c.items(ctx, s.Key, "Series")
	if err != nil {
		return nil, err
	}
	shows := make([]library.ShowRef, 0, len(items))
	for _, it := range items {
		shows = append(shows, library.ShowRef{Key: it.ID, ID: providerID(it.ProviderIDs, "Tvdb"), Title: it.Name})
	}
	return shows, nil
}

// ListEpisodes returns the episodes of one series. A file Jellyfin already
// knows spans several episodes (IndexNumberEnd) yields one entry per episode.
func (c *Client) ListEpisodes(ctx context.Context, show library.ShowRef) ([]gaps.OwnedEpisode, error) {
	if strings.TrimSpace(show.Key) == "" {
		return nil, fmt.Errorf("jellyfin series %q has no item id", show.Title)
	}
	params := url.Values{}
	params.Set("Fields", "Path")
	if c.userID != "" {
		params.Set("UserId", c.userID)
	}
	var payload itemsResponse
	if err := c.get(ctx, "episodes", "/Shows/"+url.PathEscape(show.Key)+"/Episodes", params, &payload); err != nil {
		return nil, err
	}
	episodes := make([]gaps.OwnedEpisode, 0, len(payload.Items))
	for _, it := range payload.Items {
		last := max(it.IndexNumberEnd, it.IndexNumber)
		for n := it.IndexNumber; n <= last; n++ {
			episodes = append(episodes, gaps.OwnedEpisode{
				ShowID:  show.ID,
				Season:  it.ParentIndexNumber,
				Episode: n,
				Title:   it.Name,
				File:    it.Path,
			})
		}
	}
	return episodes, nil
}

func (c *Client) items(ctx context.Context, parentID, itemType string) ([]item, error) {
	path := "/Items"
	if c.userID != "" {
		path = "/Users/" + url.PathEscape(c.userID) + "/Items"
	}
	var out []item
	for start := 0; ; start += pageSize {
		params := url.Values{}
		params.Set("ParentId", parentID)
		params.Set("IncludeItemTypes", itemType)
		params.Set("Recursive", "true")
		params.Set("Fields", "ProviderIds,Path")
		params.Set("StartIndex", strconv.Itoa(start))
		params.Set("Limit", strconv.Itoa(pageSize))
		var payload itemsResponse
		if err := c.get(ctx, "items", path, params, &payload); err != nil {
			return nil, err
		}
		out = append(out, payload.Items...)
		if len(payload.Items) < pageSize || len(out) >= payload.TotalRecordCount {
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
		return fmt.Errorf("build jellyfin %s request: %w", operation, err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

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

func folderKind(collectionType string) library.Kind {
	switch strings.ToLower(collectionType) {
	case "movies":
		return library.KindMovies
	case "tvshows":
		return library.KindShows
	default:
		return library.KindOther
	}
}

// providerID looks a provider up case-insensitively; servers differ on
// "Tmdb" versus "TMDB".
func providerID(ids map[string]string, provider string) int64 {
	if v, ok := ids[provider]; ok {
		return library.ParseID(v)
	}
	for k, v := range ids {
		if strings.EqualFold(k, provider) {
			return library.ParseID(v)
		}
	}
	return 0
}
