package attribute

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/benefitscout/leadgen-cli/internal/cache"
	"github.com/benefitscout/leadgen-cli/internal/diag"
	"github.com/benefitscout/leadgen-cli/internal/model"
	"github.com/benefitscout/leadgen-cli/internal/resilience"
	"github.com/benefitscout/leadgen-cli/pkg/serp"
)

var profileLinkRe = regexp.MustCompile(`linkedin\.com/in/`)

// departureWords in a liveness snippet mark a suspected departure.
var departureWords = []string{"former", "past", "ex-", "previous"}

// cachedSearch is the read-through wrapper for the search provider. Budget
// is charged only on a cache miss.
func (r *Resolver) cachedSearch(ctx context.Context, query string) (*serp.Response, error) {
	if entry, ok := r.serpCache.Get(query); ok {
		var resp serp.Response
		if err := json.Unmarshal(entry.Body, &resp); err == nil {
			resp.Raw = entry.Body
			return &resp, nil
		}
	}

	if err := r.budget.Reserve(stage, "serp", 1); err != nil {
		return nil, err
	}

	cfg := resilience.ProviderPolicy()
	cfg.OnRetry = resilience.RetryLogger("serp", "search")
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*serp.Response, error) {
		return r.serp.Search(ctx, query)
	})
	if err != nil {
		r.emitProviderFailure("serp", err)
		return nil, err
	}

	r.budget.Commit("serp", resp.Credits)
	if err := r.serpCache.Put(query, cache.Entry{Status: 200, Body: resp.Raw, Credits: resp.Credits}); err != nil {
		return nil, err
	}
	return resp, nil
}

// searchProfile runs step 3a: find a profile URL for the pair. The empty
// string with nil error means a clean miss.
func (r *Resolver) searchProfile(ctx context.Context, anchor model.FilingAnchor, link model.BrokerLink, canonical string) (string, []model.Evidence, error) {
	query := r.profileQuery(anchor, link, canonical)

	resp, err := r.cachedSearch(ctx, query)
	if err != nil {
		return "", nil, err
	}

	for _, res := range resp.Organic {
		if !profileLinkRe.MatchString(res.Link) {
			continue
		}
		if got, ok := r.firms.Canonical(res.Title + " " + res.Snippet); !ok || got != canonical {
			continue
		}
		url := model.CanonicalizeLinkedIn(res.Link)
		ev := model.NewEvidence(model.EvidenceSearchSnippet, model.ConfidenceMedium, url, res.Title+" | "+res.Snippet, r.now())
		return url, []model.Evidence{ev}, nil
	}

	ev := model.NewEvidence(model.EvidenceSearchSnippet, model.ConfidenceNone, "",
		fmt.Sprintf("no profile result for %q", query), r.now())
	return "", []model.Evidence{ev}, nil
}

// profileQuery builds the step-3a query. A fee row sometimes names a person
// rather than a firm; that gets the targeted site: form.
func (r *Resolver) profileQuery(anchor model.FilingAnchor, link model.BrokerLink, canonical string) string {
	display := r.firmDisplay(canonical)
	if link.Source == model.LinkFee && looksLikePersonName(link.RawFirmName) {
		return fmt.Sprintf(`site:linkedin.com/in/ %q %q`, strings.TrimSpace(link.RawFirmName), display)
	}
	return fmt.Sprintf(`%q %s benefits broker`, anchor.EmployerName, display)
}

// livenessCheck runs step 4: one more search over the person and firm, and a
// snippet test for departure language. Failures leave liveness UNKNOWN.
func (r *Resolver) livenessCheck(ctx context.Context, person *model.BrokerPerson, canonical string) model.Liveness {
	query := fmt.Sprintf("site:linkedin.com/in/ %s %s", person.FullName, r.firmDisplay(canonical))

	resp, err := r.cachedSearch(ctx, query)
	if err != nil || len(resp.Organic) == 0 {
		return model.LivenessUnknown
	}

	top := resp.Organic[0]
	if got, ok := r.firms.Canonical(top.Title + " " + top.Snippet); !ok || got != canonical {
		return model.LivenessDepartureSuspected
	}
	snippet := strings.ToLower(top.Snippet)
	for _, w := range departureWords {
		if strings.Contains(snippet, w) {
			return model.LivenessDepartureSuspected
		}
	}
	return model.LivenessCurrent
}

func (r *Resolver) firmDisplay(canonical string) string {
	if f, ok := r.firms.Firm(canonical); ok && f.DisplayName != "" {
		return f.DisplayName
	}
	return canonical
}

// emitProviderFailure classifies an exhausted provider call for diagnostics.
func (r *Resolver) emitProviderFailure(provider string, err error) {
	kind := diag.Transport
	if resilience.IsRateLimit(err) {
		kind = diag.RateLimit
	}
	r.diag.Emit(stage, kind, fmt.Sprintf("%s: %v", provider, err))
}

// looksLikePersonName guesses whether a fee-row provider string names a
// human rather than a firm.
func looksLikePersonName(s string) bool {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) < 2 || len(fields) > 3 {
		return false
	}
	for _, f := range fields {
		for _, r := range f {
			if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r == '.' || r == '\'') {
				return false
			}
		}
	}
	// Firm-ish words disqualify.
	clean := model.NormalizeEntityName(s)
	for _, tok := range strings.Fields(clean) {
		switch tok {
		case "LLC", "INC", "CO", "CORP", "GROUP", "SERVICES", "INSURANCE",
			"BENEFIT", "BENEFITS", "COMPANY", "COMPANIES", "AGENCY", "CONSULTING",
			"ASSOCIATES", "PARTNERS", "ADVISORS":
			return false
		}
	}
	return true
}
