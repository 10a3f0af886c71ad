package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/price-estimator-bot/internal/metrics"
	"github.com/raine/price-estimator-bot/internal/schema"
)

const (
	CustomSearchBaseURL = "https://www.googleapis.com"
	customSearchPath    = "/customsearch/v1"

	// MaxResultsPerQuery is the largest page size the Custom Search API accepts.
	MaxResultsPerQuery = 10

	DefaultSearchTimeout = 10 * time.Second
)

// ErrUpstreamUnavailable is returned when the search service cannot be
// reached, answers with an error status, or returns an unexpected shape.
var ErrUpstreamUnavailable = errors.New("search service unavailable")

// Item is a single web search result.
type Item struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type customSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"items"`
}

type ClientOpts struct {
	BaseURL        string
	APIKey         string
	SearchEngineID string
	Timeout        time.Duration
}

// Client queries the Google Custom Search JSON API.
type Client struct {
	httpClient     *resty.Client
	apiKey         string
	searchEngineID string
	timeout        time.Duration
}

func NewClient(opts ClientOpts) *Client {
	c := Client{
		apiKey:         opts.APIKey,
		searchEngineID: opts.SearchEngineID,
		timeout:        DefaultSearchTimeout,
	}
	baseURL := CustomSearchBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		c.timeout = opts.Timeout
	}
	c.httpClient = resty.New().
		SetDebug(false).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return &c
}

// Search runs one query and returns up to MaxResultsPerQuery items.
func (c *Client) Search(ctx context.Context, query string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	res, err := handleError(c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key": c.apiKey,
			"cx":  c.searchEngineID,
			"q":   query,
			"num": strconv.Itoa(MaxResultsPerQuery),
		}).
		Get(customSearchPath))
	metrics.ObserveUpstream("search", statusCode(res), started)
	if err != nil {
		return nil, err
	}

	return parseSearchResponse(res.Body())
}

func parseSearchResponse(body []byte) ([]Item, error) {
	if err := schema.SearchResponse.Validate(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var resp customSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUpstreamUnavailable, err)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, Item{Title: it.Title, Snippet: it.Snippet, URL: it.Link})
	}
	return items, nil
}

// handleError turns failing responses (>399 status code) into errors wrapping
// ErrUpstreamUnavailable. Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if res.IsError() {
		return res, fmt.Errorf("%w: %s (status: %d)", ErrUpstreamUnavailable, res.Request.Method, res.StatusCode())
	}
	return res, nil
}

func statusCode(res *resty.Response) int {
	if res == nil || res.RawResponse == nil {
		return 0
	}
	return res.StatusCode()
}
