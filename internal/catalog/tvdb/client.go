package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"gapscan/internal/catalog"
	"gapscan/internal/catalog/retry"
	"gapscan/internal/gaps"
	"gapscan/internal/services"
)

const (
	service = "tvdb"

	// TVDB tokens are valid for a month; used when the token carries no exp.
	fallbackTokenLifetime = 30 * 24 * time.Hour
	refreshMargin         = 5 * time.Minute
	maxEpisodePages       = 200
)

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Links  struct {
		Next *string `json:"next"`
	} `json:"links"`
}

type loginData struct {
	Token string `json:"token"`
}

type seriesData struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status struct {
		Name string `json:"name"`
	} `json:"status"`
}

type episodeData struct {
	ID           int64  `json:"id"`
	SeriesID     int64  `json:"seriesId"`
	Name         string `json:"name"`
	Aired        string `json:"aired"`
	SeasonNumber int    `json:"seasonNumber"`
	Number       int    `json:"number"`
}

type episodesData struct {
	Episodes []episodeData `json:"episodes"`
}

// Client talks to the TheTVDB v4 API. It logs in lazily and refreshes the
// bearer token shortly before it expires or after the API rejects it.
type Client struct {
	apiKey     string
	pin        string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	maxPages   int

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ gaps.EpisodeCatalogSource = (*Client)(nil)

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

// WithClock overrides the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxEpisodePages caps how many episode pages one series may span.
func WithMaxEpisodePages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// New creates a TVDB client. The subscriber pin is optional.
func New(apiKey, pin, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, service, "new client", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, service, "new client", "base url required", nil)
	}
	client := &Client{
		apiKey:  apiKey,
		pin:     strings.TrimSpace(pin),
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: retry.New(service, nil, retry.DefaultPolicy()),
		},
		now:      time.Now,
		maxPages: maxEpisodePages,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SeriesStatus reports whether a series has ended.
func (c *Client) SeriesStatus(ctx context.Context, seriesID int64) (gaps.SeriesStatus, error) {
	if seriesID <= 0 {
		return gaps.SeriesStatus{}, errors.New("series id must be positive")
	}
	var payload envelope[seriesData]
	if err := c.get(ctx, "series", fmt.Sprintf("/series/%d", seriesID), nil, &payload); err != nil {
		return gaps.SeriesStatus{}, err
	}
	status := strings.TrimSpace(payload.Data.Status.Name)
	return gaps.SeriesStatus{
		ID:     seriesID,
		Name:   payload.Data.Name,
		Status: status,
		Ended:  strings.EqualFold(status, "ended"),
	}, nil
}

// Ping logs in, or reuses a still valid token, to check the key and pin.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.bearer(ctx)
	return err
}

// Episodes returns every episode of a series in the default ordering,
// following pagination until the API stops advertising a next page. A series
// still advertising pages past the cap is a transient error, never a
// truncated list.
func (c *Client) Episodes(ctx context.Context, seriesID int64) ([]gaps.CatalogEpisode, error) {
	if seriesID <= 0 {
		return nil, errors.New("series id must be positive")
	}
	var out []gaps.CatalogEpisode
	for page := 0; page < c.maxPages; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		var payload envelope[episodesData]
		if err := c.get(ctx, "episodes", fmt.Sprintf("/series/%d/episodes/default", seriesID), params, &payload); err != nil {
			return nil, err
		}
		for _, ep := range payload.Data.Episodes {
			if ep.Number <= 0 {
				continue
			}
			out = append(out, gaps.CatalogEpisode{
				ID:      ep.ID,
				ShowID:  seriesID,
				Season:  ep.SeasonNumber,
				Episode: ep.Number,
				Title:   ep.Name,
				AirDate: catalog.ParseDate(ep.Aired),
			})
		}
		if payload.Links.Next == nil || strings.TrimSpace(*payload.Links.Next) == "" || len(payload.Data.Episodes) == 0 {
			return out, nil
		}
	}
	return nil, services.Wrap(services.ErrTransient, service, "episodes",
		fmt.Sprintf("series %d still paginating after %d pages", seriesID, c.maxPages), nil)
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	err = c.fetch(ctx, token, operation, path, params, out)
	if errors.Is(err, services.ErrAuth) {
		// The token may have been revoked early; log in again once.
		c.invalidate()
		if token, err = c.bearer(ctx); err != nil {
			return err
		}
		err = c.fetch(ctx, token, operation, path, params, out)
	}
	return err
}

func (c *Client) fetch(ctx context.Context, token, operation, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, operation, out)
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	services.RecorderFromContext(req.Context()).Request(service, operation)
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

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Add(refreshMargin).Before(c.expires) {
		return c.token, nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expires = c.tokenExpiry(token)
	return token, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	body := map[string]string{"apikey": c.apiKey}
	if c.pin != "" {
		body["pin"] = c.pin
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var payload envelope[loginData]
	if err := c.do(req, "login", &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Data.Token) == "" {
		return "", services.Wrap(services.ErrAuth, service, "login", "no token in response", nil)
	}
	return payload.Data.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client only needs to know when to log in again.
func (c *Client) tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, ok := claims["exp"].(float64); ok && exp > 0 {
			return time.Unix(int64(exp), 0)
		}
	}
	return c.now().Add(fallbackTokenLifetime)
}
