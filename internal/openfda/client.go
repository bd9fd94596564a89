// Package openfda fetches paginated records from an openFDA-style device
// record source: strategy cascade, offset pagination, and bounded retry on
// transient failures.
package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/models"
)

// Request is one page request against a source endpoint.
type Request struct {
	Endpoint string // e.g. "/device/event.json"
	Query    string // formulated search expression
	Sort     string // optional sort expression
	Offset   int
	Limit    int
}

// Page is one page of source records plus the source's disclosed total for
// the query.
type Page struct {
	Records        []models.RawRecord
	TotalAvailable int
}

// Source is the external paginated record source.
type Source interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey attaches an API key to every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a source client. Each call carries a fixed per-call
// timeout via the HTTP client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	Meta struct {
		Results struct {
			Skip  int `json:"skip"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []models.RawRecord `json:"results"`
}

// Fetch retrieves one page. A 404 from the source means zero matches, not an
// error; 429 and 5xx are transient; other 4xx are permanent.
func (c *Client) Fetch(ctx context.Context, req Request) (*Page, error) {
	q := url.Values{}
	q.Set("search", req.Query)
	q.Set("skip", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	fullURL := c.baseURL + req.Endpoint + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, NewPermanentError(0, "build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures are retryable.
		return nil, NewTransientError(0, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The source reports zero matches as NOT_FOUND.
		io.Copy(io.Discard, resp.Body)
		return &Page{}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewTransientError(resp.StatusCode, "rate limited", nil)
	case resp.StatusCode >= 500:
		return nil, NewTransientError(resp.StatusCode, "server error", nil)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewPermanentError(resp.StatusCode, fmt.Sprintf("rejected query: %s", body), nil)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewTransientError(resp.StatusCode, "decode response", err)
	}

	c.logger.Debug("Fetched source page",
		zap.String("endpoint", req.Endpoint),
		zap.Int("offset", req.Offset),
		zap.Int("records", len(parsed.Results)),
		zap.Int("total", parsed.Meta.Results.Total))

	return &Page{Records: parsed.Results, TotalAvailable: parsed.Meta.Results.Total}, nil
}
