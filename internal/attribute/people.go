package attribute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/benefitscout/leadgen-cli/internal/cache"
	"github.com/benefitscout/leadgen-cli/internal/model"
	"github.com/benefitscout/leadgen-cli/internal/resilience"
	"github.com/benefitscout/leadgen-cli/pkg/peopledata"
)

// titleTiers is the decision-maker waterfall run against the employer once no
// broker-side profile turned up. Tier order is significance order; the first
// tier with hits wins.
var titleTiers = [][]string{
	{"CFO", "Chief Financial Officer", "CHRO", "Chief Human Resources Officer", "Chief People Officer", "Chief Administrative Officer"},
	{"VP of HR", "VP of People", "VP of Benefits", "VP of Total Rewards", "Head of HR", "Head of People", "Head of Benefits"},
	{"Benefits Manager", "HR Manager", "Total Rewards Manager", "People Operations Manager"},
}

// discover runs step 3: profile search first, enrichment when a profile
// surfaced, the employer title waterfall otherwise. Provider failures and
// budget refusals end the waterfall early; whatever evidence accumulated is
// kept on the candidate.
func (r *Resolver) discover(ctx context.Context, anchor model.FilingAnchor, link model.BrokerLink, canonical string) *Candidate {
	cand := &Candidate{Liveness: model.LivenessUnknown}

	profileURL, ev, err := r.searchProfile(ctx, anchor, link, canonical)
	cand.Evidence = append(cand.Evidence, ev...)
	if err != nil {
		return cand
	}

	if profileURL != "" {
		r.enrichProfile(ctx, cand, profileURL, canonical)
		return cand
	}

	r.companyWaterfall(ctx, cand, anchor, canonical)
	return cand
}

// enrichProfile runs step 3b: enrich the found profile and verify the firm.
// A firm mismatch leaves Person nil but records the conflict.
func (r *Resolver) enrichProfile(ctx context.Context, cand *Candidate, profileURL, canonical string) {
	person, err := r.cachedEnrichPerson(ctx, profileURL)
	if err != nil {
		if errors.Is(err, peopledata.ErrNotFound) {
			cand.Evidence = append(cand.Evidence, model.NewEvidence(
				model.EvidencePeopleAPI, model.ConfidenceNone, profileURL,
				"no person record for profile", r.now(),
			))
		}
		return
	}

	if got, ok := r.firms.Canonical(person.JobCompanyName); !ok || got != canonical {
		cand.Mismatch = true
		cand.Evidence = append(cand.Evidence, model.NewEvidence(
			model.EvidencePeopleAPI, model.ConfidenceNone, profileURL,
			fmt.Sprintf("firm mismatch: %s", person.JobCompanyName), r.now(),
		))
		return
	}

	lnk := person.LinkedinURL
	if lnk == "" {
		lnk = profileURL
	}
	cand.Person = &model.BrokerPerson{
		FullName:      person.FullName,
		Title:         person.Title,
		CanonicalFirm: canonical,
		WorkEmail:     person.WorkEmail,
		LinkedInURL:   model.CanonicalizeLinkedIn(lnk),
		RegionState:   person.State,
	}
	cand.Verified = true
	cand.Evidence = append(cand.Evidence, model.NewEvidence(
		model.EvidencePeopleAPI, model.ConfidenceHigh, cand.Person.LinkedInURL,
		fmt.Sprintf("%s, %s at %s", person.FullName, person.Title, person.JobCompanyName), r.now(),
	))
}

// companyWaterfall runs step 3c: resolve the employer to a provider company
// id, then search it tier by tier for a benefits decision-maker.
func (r *Resolver) companyWaterfall(ctx context.Context, cand *Candidate, anchor model.FilingAnchor, canonical string) {
	company, err := r.resolveCompany(ctx, anchor)
	if err != nil {
		if errors.Is(err, peopledata.ErrNotFound) {
			cand.Evidence = append(cand.Evidence, model.NewEvidence(
				model.EvidencePeopleAPI, model.ConfidenceNone, "",
				fmt.Sprintf("no company record for %q", anchor.EmployerName), r.now(),
			))
		}
		return
	}

	for i, titles := range titleTiers {
		tier := i + 1
		list, err := r.cachedSearchPeople(ctx, company.ID, tier, titles)
		if err != nil {
			return
		}
		if len(list.People) == 0 {
			continue
		}

		p := list.People[0]
		cand.Person = &model.BrokerPerson{
			FullName:      p.FullName,
			Title:         p.Title,
			CanonicalFirm: canonical,
			WorkEmail:     p.WorkEmail,
			LinkedInURL:   model.CanonicalizeLinkedIn(p.LinkedinURL),
			RegionState:   p.State,
		}
		cand.Verified = true
		cand.SearchTier = tier
		cand.Evidence = append(cand.Evidence, model.NewEvidence(
			model.EvidencePeopleAPI, model.ConfidenceMedium, cand.Person.LinkedInURL,
			fmt.Sprintf("%s, %s at %s (title tier %d)", p.FullName, p.Title, company.Name, tier), r.now(),
		))
		return
	}
}

// resolveCompany tries the strict (name, state) lookup first and falls back
// to the relaxed name-only lookup on a clean miss. The relaxed call is a
// separate charge.
func (r *Resolver) resolveCompany(ctx context.Context, anchor model.FilingAnchor) (*peopledata.Company, error) {
	name := model.NormalizeEntityName(anchor.EmployerName)

	company, err := r.cachedEnrichCompany(ctx, name+"|"+anchor.SponsorState, anchor.EmployerName, anchor.SponsorState)
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, peopledata.ErrNotFound) {
		return nil, err
	}

	return r.cachedEnrichCompany(ctx, name+"|relaxed", anchor.EmployerName, "")
}

// cachedEnrichCompany is the read-through wrapper for company enrichment.
// Misses are cached as 404 entries so re-runs stay free.
func (r *Resolver) cachedEnrichCompany(ctx context.Context, key, name, state string) (*peopledata.Company, error) {
	if entry, ok := r.companyCache.Get(key); ok {
		if entry.Status == http.StatusNotFound {
			return nil, peopledata.ErrNotFound
		}
		var c peopledata.Company
		if err := json.Unmarshal(entry.Body, &c); err == nil {
			c.Raw = entry.Body
			return &c, nil
		}
	}

	if err := r.budget.Reserve(stage, "people", 1); err != nil {
		return nil, err
	}

	cfg := resilience.ProviderPolicy()
	cfg.OnRetry = resilience.RetryLogger("people", "company_enrich")
	company, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*peopledata.Company, error) {
		return r.people.EnrichCompany(ctx, name, state)
	})
	if err != nil {
		if errors.Is(err, peopledata.ErrNotFound) {
			r.budget.Commit("people", 1)
			_ = r.companyCache.Put(key, cache.Entry{Status: http.StatusNotFound})
			return nil, err
		}
		r.emitProviderFailure("people", err)
		return nil, err
	}

	r.budget.Commit("people", company.Credits)
	if err := r.companyCache.Put(key, cache.Entry{Status: http.StatusOK, Body: company.Raw, Credits: company.Credits}); err != nil {
		return nil, err
	}
	return company, nil
}

// cachedEnrichPerson is the read-through wrapper for person enrichment.
func (r *Resolver) cachedEnrichPerson(ctx context.Context, profileURL string) (*peopledata.Person, error) {
	if entry, ok := r.personCache.Get(profileURL); ok {
		if entry.Status == http.StatusNotFound {
			return nil, peopledata.ErrNotFound
		}
		var p peopledata.Person
		if err := json.Unmarshal(entry.Body, &p); err == nil {
			p.Raw = entry.Body
			return &p, nil
		}
	}

	if err := r.budget.Reserve(stage, "people", 1); err != nil {
		return nil, err
	}

	cfg := resilience.ProviderPolicy()
	cfg.OnRetry = resilience.RetryLogger("people", "person_enrich")
	person, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*peopledata.Person, error) {
		return r.people.EnrichPerson(ctx, profileURL)
	})
	if err != nil {
		if errors.Is(err, peopledata.ErrNotFound) {
			r.budget.Commit("people", 1)
			_ = r.personCache.Put(profileURL, cache.Entry{Status: http.StatusNotFound})
			return nil, err
		}
		r.emitProviderFailure("people", err)
		return nil, err
	}

	r.budget.Commit("people", person.Credits)
	if err := r.personCache.Put(profileURL, cache.Entry{Status: http.StatusOK, Body: person.Raw, Credits: person.Credits}); err != nil {
		return nil, err
	}
	return person, nil
}

// cachedSearchPeople is the read-through wrapper for one waterfall tier at
// one company. Empty pages are cached like hits.
func (r *Resolver) cachedSearchPeople(ctx context.Context, companyID string, tier int, titles []string) (*peopledata.PersonList, error) {
	key := fmt.Sprintf("%s|tier%d", companyID, tier)
	if entry, ok := r.searchCache.Get(key); ok {
		var list peopledata.PersonList
		if err := json.Unmarshal(entry.Body, &list); err == nil {
			list.Raw = entry.Body
			return &list, nil
		}
	}

	if err := r.budget.Reserve(stage, "people", 1); err != nil {
		return nil, err
	}

	cfg := resilience.ProviderPolicy()
	cfg.OnRetry = resilience.RetryLogger("people", "person_search")
	list, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*peopledata.PersonList, error) {
		return r.people.SearchPeople(ctx, companyID, titles)
	})
	if err != nil {
		r.emitProviderFailure("people", err)
		return nil, err
	}

	r.budget.Commit("people", list.Credits)
	if err := r.searchCache.Put(key, cache.Entry{Status: http.StatusOK, Body: list.Raw, Credits: list.Credits}); err != nil {
		return nil, err
	}
	return list, nil
}
