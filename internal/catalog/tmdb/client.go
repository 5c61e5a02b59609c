package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gapscan/internal/catalog"
	"gapscan/internal/catalog/retry"
	"gapscan/internal/gaps"
	"gapscan/internal/services"
)

const service = "tmdb"

type collectionRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type movieResponse struct {
	ID                  int64          `json:"id"`
	Title               string         `json:"title"`
	ReleaseDate         string         `json:"release_date"`
	BelongsToCollection *collectionRef `json:"belongs_to_collection"`
}

type collectionPart struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

type collectionResponse struct {
	ID    int64            `json:"id"`
	Name  string           `json:"name"`
	Parts []collectionPart `json:"parts"`
}

// Client provides access to the TMDB movie and collection endpoints.
type Client struct {
	apiKey     string
	bearer     bool
	baseURL    string
	language   string
	httpClient *http.Client
}

var _ gaps.MovieCatalogSource = (*Client)(nil)

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

// New creates a TMDB client. A v4 read access token (a JWT) is sent as a
// bearer token; anything else is treated as a v3 api_key.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, service, "new client", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, service, "new client", "base url required", nil)
	}
	client := &Client{
		apiKey:   apiKey,
		bearer:   strings.HasPrefix(apiKey, "eyJ") && strings.Count(apiKey, ".") == 2,
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: strings.TrimSpace(language),
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: retry.New(service, nil, retry.DefaultPolicy()),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Ping checks that the API is reachable and accepts the key.
func (c *Client) Ping(ctx context.Context) error {
	var payload struct{}
	return c.get(ctx, "configuration", "/configuration", &payload)
}

// MovieDetails fetches a movie and the collection it belongs to, if any.
func (c *Client) MovieDetails(ctx context.Context, movieID int64) (gaps.MovieDetails, error) {
	if movieID <= 0 {
		return gaps.MovieDetails{}, errors.New("movie id must be positive")
	}
	var payload movieResponse
	if err := c.get(ctx, "movie details", fmt.Sprintf("/movie/%d", movieID), &payload); err != nil {
		return gaps.MovieDetails{}, err
	}
	details := gaps.MovieDetails{
		ID:          payload.ID,
		Title:       payload.Title,
		ReleaseDate: catalog.ParseDate(payload.ReleaseDate),
	}
	if details.ID == 0 {
		details.ID = movieID
	}
	if ref := payload.BelongsToCollection; ref != nil && ref.ID > 0 {
		details.Collection = &gaps.CollectionRef{ID: ref.ID, Name: ref.Name}
	}
	return details, nil
}

// Collection fetches the full part list of a collection.
func (c *Client) Collection(ctx context.Context, collectionID int64) (gaps.Collection, error) {
	if collectionID <= 0 {
		return gaps.Collection{}, errors.New("collection id must be positive")
	}
	var payload collectionResponse
	if err := c.get(ctx, "collection", fmt.Sprintf("/collection/%d", collectionID), &payload); err != nil {
		return gaps.Collection{}, err
	}
	coll := gaps.Collection{ID: payload.ID, Name: payload.Name, Parts: make([]gaps.CatalogMovie, 0, len(payload.Parts))}
	if coll.ID == 0 {
		coll.ID = collectionID
	}
	for _, part := range payload.Parts {
		if part.ID <= 0 {
			continue
		}
		coll.Parts = append(coll.Parts, gaps.CatalogMovie{
			ID:          part.ID,
			Title:       part.Title,
			ReleaseDate: catalog.ParseDate(part.ReleaseDate),
		})
	}
	return coll, nil
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	services.RecorderFromContext(ctx).Request(service, operation)
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params := url.Values{}
	if !c.bearer {
		params.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.bearer {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return catalog.TransportError(service, operation, fmt.Errorf("latency=%v: %w", latency, err))
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
