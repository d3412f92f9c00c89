// Package peopledata wraps the people-enrichment provider: company lookup by
// name and location, person search by company id and title, and person
// enrichment by profile URL.
package peopledata

import (
	"bytes"
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

const defaultBaseURL = "https://api.peopledatahub.com/v5"

const creditsHeader = "X-Credits-Charged"

// ErrNotFound is returned for provider 404s so callers can distinguish a
// clean miss from a failure.
var ErrNotFound = eris.New("peopledata: not found")

// Client performs people-data operations.
type Client interface {
	// EnrichCompany resolves a company by name. A non-empty state restricts
	// the match (the strict call); empty state is the relaxed fallback.
	EnrichCompany(ctx context.Context, name, state string) (*Company, error)
	// SearchPeople finds people at a company matching any of the titles.
	SearchPeople(ctx context.Context, companyID string, titles []string) (*PersonList, error)
	// EnrichPerson resolves a person from a canonical profile URL.
	EnrichPerson(ctx context.Context, profileURL string) (*Person, error)
}

// Company is the provider's company record.
type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"location_region"`
	Website   string `json:"website"`
	Employees int    `json:"employee_count"`

	Raw     json.RawMessage `json:"-"`
	Credits int             `json:"-"`
}

// Person is the provider's person record.
type Person struct {
	FullName       string `json:"full_name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Title          string `json:"job_title"`
	JobCompanyName string `json:"job_company_name"`
	WorkEmail      string `json:"work_email"`
	LinkedinURL    string `json:"linkedin_url"`
	State          string `json:"location_region"`

	Raw     json.RawMessage `json:"-"`
	Credits int             `json:"-"`
}

// PersonList is a person-search page plus the charge for it.
type PersonList struct {
	People []Person `json:"data"`

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

// NewClient creates a people-data client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) EnrichCompany(ctx context.Context, name, state string) (*Company, error) {
	q := url.Values{}
	q.Set("name", name)
	if state != "" {
		q.Set("location_region", state)
	}

	body, status, credits, err := c.get(ctx, "/company/enrich?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("peopledata: company enrich status %d: %s", status, string(body))
	}

	var company Company
	if err := json.Unmarshal(body, &company); err != nil {
		return nil, eris.Wrap(err, "peopledata: unmarshal company")
	}
	company.Raw = body
	company.Credits = credits
	return &company, nil
}

type personSearchRequest struct {
	CompanyID string   `json:"job_company_id"`
	Titles    []string `json:"job_title_levels"`
	Size      int      `json:"size"`
}

func (c *httpClient) SearchPeople(ctx context.Context, companyID string, titles []string) (*PersonList, error) {
	reqBody, err := json.Marshal(personSearchRequest{CompanyID: companyID, Titles: titles, Size: 5})
	if err != nil {
		return nil, eris.Wrap(err, "peopledata: marshal search request")
	}

	body, status, credits, err := c.post(ctx, "/person/search", reqBody)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("peopledata: person search status %d: %s", status, string(body))
	}

	var list PersonList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, eris.Wrap(err, "peopledata: unmarshal person list")
	}
	list.Raw = body
	list.Credits = credits
	return &list, nil
}

func (c *httpClient) EnrichPerson(ctx context.Context, profileURL string) (*Person, error) {
	q := url.Values{}
	q.Set("profile", profileURL)

	body, status, credits, err := c.get(ctx, "/person/enrich?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("peopledata: person enrich status %d: %s", status, string(body))
	}

	var person Person
	if err := json.Unmarshal(body, &person); err != nil {
		return nil, eris.Wrap(err, "peopledata: unmarshal person")
	}
	person.Raw = body
	person.Credits = credits
	return &person, nil
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "peopledata: create request")
	}
	return c.do(req)
}

func (c *httpClient) post(ctx context.Context, path string, body []byte) ([]byte, int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "peopledata: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// do runs one request and maps 429/5xx to retryable errors. 404 is a valid
// outcome handled by the callers.
func (c *httpClient) do(req *http.Request) ([]byte, int, int, error) {
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "peopledata: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "peopledata: read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, 0, 0, resilience.NewRateLimitError(
			eris.Errorf("peopledata: rate limited: %s", string(body)),
			resilience.ParseRetryAfter(resp.Header),
		)
	}
	if resp.StatusCode >= 500 {
		return nil, 0, 0, resilience.NewTransientError(
			eris.Errorf("peopledata: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}

	credits := 1
	if n, err := strconv.Atoi(resp.Header.Get(creditsHeader)); err == nil && n > 0 {
		credits = n
	}
	return body, resp.StatusCode, credits, nil
}
