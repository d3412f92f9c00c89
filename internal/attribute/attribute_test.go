package attribute

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benefitscout/leadgen-cli/internal/budget"
	"github.com/benefitscout/leadgen-cli/internal/cache"
	"github.com/benefitscout/leadgen-cli/internal/diag"
	"github.com/benefitscout/leadgen-cli/internal/firm"
	"github.com/benefitscout/leadgen-cli/internal/model"
	"github.com/benefitscout/leadgen-cli/internal/roster"
	"github.com/benefitscout/leadgen-cli/pkg/peopledata"
	"github.com/benefitscout/leadgen-cli/pkg/serp"
)

type stubSerp struct {
	calls   int
	byQuery map[string]*serp.Response
	err     error
}

func (s *stubSerp) Search(_ context.Context, query string) (*serp.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if resp, ok := s.byQuery[query]; ok {
		return resp, nil
	}
	return serpResponse(), nil
}

func serpResponse(results ...serp.Result) *serp.Response {
	resp := &serp.Response{Organic: results, Credits: 1}
	raw, _ := json.Marshal(resp)
	resp.Raw = raw
	return resp
}

type stubPeople struct {
	companies map[string]*peopledata.Company    // keyed name|state
	people    map[string]*peopledata.Person     // keyed profile URL
	search    map[string]*peopledata.PersonList // keyed companyID|firstTitle

	companyCalls int
	personCalls  int
	searchCalls  int
	err          error
}

func (s *stubPeople) EnrichCompany(_ context.Context, name, state string) (*peopledata.Company, error) {
	s.companyCalls++
	if s.err != nil {
		return nil, s.err
	}
	if c, ok := s.companies[name+"|"+state]; ok {
		return c, nil
	}
	return nil, peopledata.ErrNotFound
}

func (s *stubPeople) SearchPeople(_ context.Context, companyID string, titles []string) (*peopledata.PersonList, error) {
	s.searchCalls++
	if s.err != nil {
		return nil, s.err
	}
	if list, ok := s.search[companyID+"|"+titles[0]]; ok {
		return list, nil
	}
	return personList(), nil
}

func (s *stubPeople) EnrichPerson(_ context.Context, profileURL string) (*peopledata.Person, error) {
	s.personCalls++
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.people[profileURL]; ok {
		return p, nil
	}
	return nil, peopledata.ErrNotFound
}

func companyRecord(id, name string) *peopledata.Company {
	c := &peopledata.Company{ID: id, Name: name, Credits: 1}
	raw, _ := json.Marshal(c)
	c.Raw = raw
	return c
}

func personRecord(p peopledata.Person) *peopledata.Person {
	raw, _ := json.Marshal(p)
	p.Raw = raw
	p.Credits = 1
	return &p
}

func personList(people ...peopledata.Person) *peopledata.PersonList {
	list := &peopledata.PersonList{People: people, Credits: 1}
	raw, _ := json.Marshal(list)
	list.Raw = raw
	return list
}

func newTestResolver(t *testing.T, sc serp.Client, pc peopledata.Client, creditCap int, entries []roster.Entry, dir string) (*Resolver, *budget.Counter, *diag.Emitter) {
	t.Helper()
	firms := firm.NewNormalizer(firm.DefaultFirms())
	ro := roster.New(entries, firms, 0.6)
	d := diag.New(io.Discard)
	b := budget.NewCounter(creditCap, d)
	store, err := cache.NewStore(dir)
	require.NoError(t, err)
	r, err := NewResolver(ro, firms, sc, pc, b, store, d, map[string]bool{"CA": true, "TX": true})
	require.NoError(t, err)
	r.WithNow(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return r, b, d
}

func testAnchor() model.FilingAnchor {
	return model.FilingAnchor{
		AckID:        "20240701123456-ACME",
		EmployerName: "ACME MANUFACTURING",
		EIN:          "123456789",
		PlanNum:      "501",
		PlanYear:     2023,
		SponsorState: "CA",
		Lives:        850,
	}
}

func commissionLink(raw string) model.BrokerLink {
	return model.BrokerLink{
		AckID:       "20240701123456-ACME",
		RawFirmName: raw,
		Source:      model.LinkCommission,
	}
}

const profileQueryACME = `"ACME MANUFACTURING" Arthur J. Gallagher benefits broker`

func TestResolve_RosterExact(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{}
	pc := &stubPeople{}
	entries := []roster.Entry{
		{PersonName: "Maria Chen", Firm: "Gallagher Benefit Services", City: "San Jose", State: "CA", Role: "Producer"},
	}
	r, b, _ := newTestResolver(t, sc, pc, 100, entries, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	assert.True(t, cand.RosterExact)
	require.NotNil(t, cand.Person)
	assert.Equal(t, "Maria Chen", cand.Person.FullName)
	assert.Equal(t, "GALLAGHER", cand.Person.CanonicalFirm)
	assert.Equal(t, model.IdentityHash, cand.Person.IdentityType)

	require.Len(t, cand.Evidence, 1)
	assert.Equal(t, model.EvidenceRosterExact, cand.Evidence[0].Source)
	assert.Equal(t, model.ConfidenceHigh, cand.Evidence[0].Confidence)

	assert.Zero(t, sc.calls)
	assert.Zero(t, pc.companyCalls+pc.personCalls+pc.searchCalls)
	assert.Zero(t, b.Spent())
}

func TestResolve_RosterFuzzy(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{}
	pc := &stubPeople{}
	entries := []roster.Entry{
		{PersonName: "Maria Chen", Firm: "Gallagher Benefit Services", State: "CA", Role: "Producer"},
	}
	r, b, _ := newTestResolver(t, sc, pc, 100, entries, t.TempDir())

	// The misspelled raw never alias-matches, so the canonical here is the
	// validator's novel token and only the fuzzy pass can reach the roster.
	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallaher Benefit Svcs"), "GALLAHER SVCS")
	require.NoError(t, err)

	assert.False(t, cand.RosterExact)
	assert.True(t, cand.RosterFuzzy)
	require.NotNil(t, cand.Person)
	assert.Equal(t, "Maria Chen", cand.Person.FullName)
	assert.Equal(t, "GALLAGHER", cand.Person.CanonicalFirm)

	require.Len(t, cand.Evidence, 1)
	assert.Equal(t, model.EvidenceRosterFuzzy, cand.Evidence[0].Source)
	assert.Equal(t, model.ConfidenceMedium, cand.Evidence[0].Confidence)

	assert.Zero(t, sc.calls)
	assert.Zero(t, b.Spent())
}

func TestResolve_ProfileDiscovery(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{byQuery: map[string]*serp.Response{
		profileQueryACME: serpResponse(serp.Result{
			Title:   "Neil Parton - Area President - Gallagher Benefit Services",
			Snippet: "Neil Parton is Area President at Gallagher Benefit Services in Walnut Creek.",
			Link:    "https://www.linkedin.com/in/neil-parton?trk=pub",
		}),
		"site:linkedin.com/in/ Neil Parton Arthur J. Gallagher": serpResponse(serp.Result{
			Title:   "Neil Parton - Area President - Gallagher Benefit Services",
			Snippet: "Area President at Gallagher Benefit Services.",
			Link:    "https://www.linkedin.com/in/neil-parton",
		}),
	}}
	pc := &stubPeople{people: map[string]*peopledata.Person{
		"https://www.linkedin.com/in/neil-parton": personRecord(peopledata.Person{
			FullName:       "Neil Parton",
			FirstName:      "Neil",
			LastName:       "Parton",
			Title:          "Area President",
			JobCompanyName: "Gallagher Benefit Services",
			WorkEmail:      "neil_parton@ajg.com",
			LinkedinURL:    "https://www.linkedin.com/in/neil-parton",
			State:          "CA",
		}),
	}}
	r, b, _ := newTestResolver(t, sc, pc, 100, nil, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	require.NotNil(t, cand.Person)
	assert.True(t, cand.Verified)
	assert.False(t, cand.Mismatch)
	assert.Equal(t, "Neil Parton", cand.Person.FullName)
	assert.Equal(t, "GALLAGHER", cand.Person.CanonicalFirm)
	assert.Equal(t, "https://www.linkedin.com/in/neil-parton", cand.Person.LinkedInURL)
	assert.Equal(t, "neil_parton@ajg.com", cand.Person.IdentityKey)
	assert.Equal(t, model.IdentityEmail, cand.Person.IdentityType)
	assert.Equal(t, model.LivenessCurrent, cand.Liveness)

	sources := make(map[model.EvidenceSource]bool)
	for _, ev := range cand.Evidence {
		sources[ev.Source] = true
	}
	assert.True(t, sources[model.EvidenceSearchSnippet])
	assert.True(t, sources[model.EvidencePeopleAPI])

	// Profile search, person enrich, liveness search.
	assert.Equal(t, 2, sc.calls)
	assert.Equal(t, 1, pc.personCalls)
	assert.Equal(t, 3, b.Spent())
}

func TestResolve_FirmMismatch(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{byQuery: map[string]*serp.Response{
		profileQueryACME: serpResponse(serp.Result{
			Title:   "Neil Parton - Area President - Gallagher Benefit Services",
			Snippet: "Benefits leadership at Gallagher Benefit Services.",
			Link:    "https://www.linkedin.com/in/neil-parton",
		}),
	}}
	pc := &stubPeople{people: map[string]*peopledata.Person{
		"https://www.linkedin.com/in/neil-parton": personRecord(peopledata.Person{
			FullName:       "Neil Parton",
			Title:          "Senior Vice President",
			JobCompanyName: "Lockton Companies",
		}),
	}}
	r, _, _ := newTestResolver(t, sc, pc, 100, nil, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	assert.Nil(t, cand.Person)
	assert.True(t, cand.Mismatch)
	assert.False(t, cand.Verified)
	assert.Equal(t, model.LivenessUnknown, cand.Liveness)

	found := false
	for _, ev := range cand.Evidence {
		if ev.Source == model.EvidencePeopleAPI {
			found = true
			assert.Equal(t, model.ConfidenceNone, ev.Confidence)
			assert.Contains(t, ev.Snippet, "firm mismatch: Lockton Companies")
		}
	}
	assert.True(t, found)

	// No liveness check without a person.
	assert.Equal(t, 1, sc.calls)
}

func TestResolve_CompanyWaterfall(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{}
	pc := &stubPeople{
		companies: map[string]*peopledata.Company{
			// Strict (name, state) lookup misses; the relaxed one lands.
			"ACME MANUFACTURING|": companyRecord("c-77", "Acme Manufacturing"),
		},
		search: map[string]*peopledata.PersonList{
			"c-77|VP of HR": personList(peopledata.Person{
				FullName:  "Priya Shah",
				Title:     "VP of Human Resources",
				WorkEmail: "priya@acme.com",
				State:     "CA",
			}),
		},
	}
	r, b, _ := newTestResolver(t, sc, pc, 100, nil, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	require.NotNil(t, cand.Person)
	assert.True(t, cand.Verified)
	assert.Equal(t, 2, cand.SearchTier)
	assert.Equal(t, "Priya Shah", cand.Person.FullName)
	assert.Equal(t, "GALLAGHER", cand.Person.CanonicalFirm)
	assert.Equal(t, "priya@acme.com", cand.Person.IdentityKey)

	var tierEv model.Evidence
	for _, ev := range cand.Evidence {
		if ev.Source == model.EvidencePeopleAPI {
			tierEv = ev
		}
	}
	assert.Contains(t, tierEv.Snippet, "title tier 2")

	assert.Equal(t, 2, pc.companyCalls)
	assert.Equal(t, 2, pc.searchCalls)
	// Profile search + liveness search + 2 company lookups + 2 tier searches.
	assert.Equal(t, 6, b.Spent())
}

func TestResolve_NoProfileNoCompany(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{}
	pc := &stubPeople{}
	r, _, _ := newTestResolver(t, sc, pc, 100, nil, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	assert.Nil(t, cand.Person)
	assert.False(t, cand.Verified)

	snippets := make([]string, 0, len(cand.Evidence))
	for _, ev := range cand.Evidence {
		snippets = append(snippets, ev.Snippet)
	}
	assert.Contains(t, fmt.Sprint(snippets), "no profile result")
	assert.Contains(t, fmt.Sprint(snippets), "no company record")
	assert.Equal(t, 2, pc.companyCalls) // strict then relaxed
}

func TestResolve_BudgetCapSkipsPaidCalls(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{}
	pc := &stubPeople{}
	r, b, d := newTestResolver(t, sc, pc, 0, nil, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	assert.Nil(t, cand.Person)
	assert.Zero(t, sc.calls)
	assert.Zero(t, pc.companyCalls+pc.personCalls+pc.searchCalls)
	assert.Equal(t, 1, d.Count(diag.BudgetCap))
	assert.Equal(t, 1, b.Skipped())
}

func TestResolve_CachedRerunMakesNoCalls(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	profileResp := serpResponse(serp.Result{
		Title:   "Neil Parton - Area President - Gallagher Benefit Services",
		Snippet: "Area President at Gallagher Benefit Services.",
		Link:    "https://www.linkedin.com/in/neil-parton",
	})

	sc := &stubSerp{byQuery: map[string]*serp.Response{
		profileQueryACME: profileResp,
		"site:linkedin.com/in/ Neil Parton Arthur J. Gallagher": profileResp,
	}}
	pc := &stubPeople{people: map[string]*peopledata.Person{
		"https://www.linkedin.com/in/neil-parton": personRecord(peopledata.Person{
			FullName:       "Neil Parton",
			Title:          "Area President",
			JobCompanyName: "Gallagher Benefit Services",
			WorkEmail:      "neil_parton@ajg.com",
		}),
	}}
	r1, _, _ := newTestResolver(t, sc, pc, 100, nil, dir)
	first, err := r1.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)
	require.NotNil(t, first.Person)

	// Second run over the same cache dir: failing stubs prove nothing paid
	// gets called.
	sc2 := &stubSerp{err: eris.New("should not be called")}
	pc2 := &stubPeople{err: eris.New("should not be called")}
	r2, b2, _ := newTestResolver(t, sc2, pc2, 100, nil, dir)
	second, err := r2.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	require.NotNil(t, second.Person)
	assert.Equal(t, first.Person.IdentityKey, second.Person.IdentityKey)
	assert.Equal(t, first.Liveness, second.Liveness)
	assert.Zero(t, sc2.calls)
	assert.Zero(t, pc2.personCalls)
	assert.Zero(t, b2.Spent())
}

func TestResolve_LivenessDeparture(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{byQuery: map[string]*serp.Response{
		profileQueryACME: serpResponse(serp.Result{
			Title:   "Neil Parton - Area President - Gallagher Benefit Services",
			Snippet: "Benefits leadership at Gallagher Benefit Services.",
			Link:    "https://www.linkedin.com/in/neil-parton",
		}),
		"site:linkedin.com/in/ Neil Parton Arthur J. Gallagher": serpResponse(serp.Result{
			Title:   "Neil Parton",
			Snippet: "Former Area President at Gallagher Benefit Services.",
			Link:    "https://www.linkedin.com/in/neil-parton",
		}),
	}}
	pc := &stubPeople{people: map[string]*peopledata.Person{
		"https://www.linkedin.com/in/neil-parton": personRecord(peopledata.Person{
			FullName:       "Neil Parton",
			Title:          "Area President",
			JobCompanyName: "Gallagher Benefit Services",
			WorkEmail:      "neil_parton@ajg.com",
		}),
	}}
	r, _, _ := newTestResolver(t, sc, pc, 100, nil, t.TempDir())

	cand, err := r.Resolve(context.Background(), testAnchor(), commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	require.NotNil(t, cand.Person)
	assert.Equal(t, model.LivenessDepartureSuspected, cand.Liveness)
}

func TestResolve_OutsideTerritory(t *testing.T) {
	t.Parallel()
	sc := &stubSerp{}
	pc := &stubPeople{}
	r, b, _ := newTestResolver(t, sc, pc, 100, nil, t.TempDir())

	anchor := testAnchor()
	anchor.SponsorState = "NY"
	cand, err := r.Resolve(context.Background(), anchor, commissionLink("Gallagher Benefit Services, Inc."), "GALLAGHER")
	require.NoError(t, err)

	assert.Nil(t, cand.Person)
	assert.Empty(t, cand.Evidence)
	assert.Zero(t, sc.calls)
	assert.Zero(t, b.Spent())
}
