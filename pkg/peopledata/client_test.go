package peopledata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benefitscout/leadgen-cli/internal/resilience"
)

func TestEnrichCompany_Strict(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/company/enrich", r.URL.Path)
		assert.Equal(t, "ACME CO", r.URL.Query().Get("name"))
		assert.Equal(t, "CA", r.URL.Query().Get("location_region"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("X-Credits-Charged", "1")
		_, _ = w.Write([]byte(`{"id":"c-123","name":"Acme Co","location_region":"CA","employee_count":420}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL+"/v5"))
	company, err := c.EnrichCompany(context.Background(), "ACME CO", "CA")
	require.NoError(t, err)
	assert.Equal(t, "c-123", company.ID)
	assert.Equal(t, 420, company.Employees)
	assert.Equal(t, 1, company.Credits)
}

func TestEnrichCompany_RelaxedOmitsState(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("location_region"))
		_, _ = w.Write([]byte(`{"id":"c-9"}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	company, err := c.EnrichCompany(context.Background(), "ACME CO", "")
	require.NoError(t, err)
	assert.Equal(t, "c-9", company.ID)
}

func TestEnrichCompany_NotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.EnrichCompany(context.Background(), "NOBODY", "CA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchPeople(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/person/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req personSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c-123", req.CompanyID)
		assert.Contains(t, req.Titles, "CHRO")

		w.Header().Set("X-Credits-Charged", "2")
		_, _ = w.Write([]byte(`{"data":[{"full_name":"Dana Ito","job_title":"CHRO","work_email":"dana@acme.com"}]}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL+"/v5"))
	list, err := c.SearchPeople(context.Background(), "c-123", []string{"CFO", "CHRO"})
	require.NoError(t, err)
	require.Len(t, list.People, 1)
	assert.Equal(t, "Dana Ito", list.People[0].FullName)
	assert.Equal(t, 2, list.Credits)
}

func TestSearchPeople_EmptyPage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	list, err := c.SearchPeople(context.Background(), "c-1", []string{"CFO"})
	require.NoError(t, err)
	assert.Empty(t, list.People)
}

func TestEnrichPerson(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/person/enrich", r.URL.Path)
		assert.Equal(t, "https://www.linkedin.com/in/neil-parton", r.URL.Query().Get("profile"))
		_, _ = w.Write([]byte(`{
			"full_name": "Neil Parton",
			"first_name": "Neil",
			"last_name": "Parton",
			"job_title": "Area President",
			"job_company_name": "Gallagher Benefit Services",
			"work_email": "neil_parton@ajg.com",
			"linkedin_url": "https://www.linkedin.com/in/neil-parton"
		}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL+"/v5"))
	person, err := c.EnrichPerson(context.Background(), "https://www.linkedin.com/in/neil-parton")
	require.NoError(t, err)
	assert.Equal(t, "Neil Parton", person.FullName)
	assert.Equal(t, "Gallagher Benefit Services", person.JobCompanyName)
	assert.Equal(t, "neil_parton@ajg.com", person.WorkEmail)
	assert.NotEmpty(t, person.Raw)
}

func TestEnrichPerson_RateLimited(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.EnrichPerson(context.Background(), "https://www.linkedin.com/in/x")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimit(err))
}

func TestEnrichPerson_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.EnrichPerson(context.Background(), "https://www.linkedin.com/in/x")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
