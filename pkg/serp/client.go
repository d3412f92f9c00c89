// Package serp wraps the web-search provider used for profile discovery and
// liveness checks.
package serp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/benefitscout/leadgen-cli/internal/resilience"
)

const defaultBaseURL = "https://api.serpprovider.com/v1"

// creditsHeader carries the credits the provider charged for the call.
const creditsHeader = "X-Credits-Charged"

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string) (*Response, error)
}

// Result is one organic search result.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// KnowledgeGraph is the provider's entity panel, when present.
type KnowledgeGraph struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Website     string `json:"website"`
}

// Response is a parsed search response plus the raw body for caching.
type Response struct {
	Organic        []Result        `json:"organic_results"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	News           []Result        `json:"news_results,omitempty"`

	Raw     json.RawMessage `json:"-"`
	Credits int             `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string) (*Response, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serp: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serp: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serp: read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitError(
			eris.Errorf("serp: rate limited: %s", string(respBody)),
			resilience.ParseRetryAfter(resp.Header),
		)
	}
	if resp.StatusCode >= 500 {
		return nil, resilience.NewTransientError(
			eris.Errorf("serp: status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("serp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "serp: unmarshal response")
	}
	result.Raw = respBody
	result.Credits = creditsFrom(resp.Header)
	return &result, nil
}

func creditsFrom(h http.Header) int {
	if n, err := strconv.Atoi(h.Get(creditsHeader)); err == nil && n > 0 {
		return n
	}
	return 1
}
