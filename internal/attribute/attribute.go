// Package attribute resolves a broker person for each (anchor, firm) pair:
// internal roster first, fuzzy roster second, then the paid discovery
// waterfall under the credit budget.
package attribute

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/budget"
	"github.com/benefitscout/leadgen-cli/internal/cache"
	"github.com/benefitscout/leadgen-cli/internal/diag"
	"github.com/benefitscout/leadgen-cli/internal/firm"
	"github.com/benefitscout/leadgen-cli/internal/model"
	"github.com/benefitscout/leadgen-cli/internal/roster"
	"github.com/benefitscout/leadgen-cli/pkg/peopledata"
	"github.com/benefitscout/leadgen-cli/pkg/serp"
)

const stage = "attribute"

// Candidate is the attribution result for one (anchor, firm) pair. Person is
// nil when every resolution step missed; evidence is retained either way.
type Candidate struct {
	Person   *model.BrokerPerson
	Evidence []model.Evidence
	Liveness model.Liveness

	// RosterExact and RosterFuzzy mark which internal step hit.
	RosterExact bool
	RosterFuzzy bool
	// Verified marks a people-API-confirmed firm or company match.
	Verified bool
	// SearchTier is the title-waterfall tier that supplied the match (1-3),
	// zero when the person came from elsewhere.
	SearchTier int
	// Mismatch marks a people-API firm mismatch; the candidate is a clean
	// no-match but keeps its evidence for audit.
	Mismatch bool
}

// Resolver runs the person waterfall.
type Resolver struct {
	roster    *roster.Index
	firms     *firm.Normalizer
	serp      serp.Client
	people    peopledata.Client
	budget    *budget.Counter
	diag      *diag.Emitter
	territory map[string]bool

	serpCache    *cache.Cache
	companyCache *cache.Cache
	personCache  *cache.Cache
	searchCache  *cache.Cache

	now func() time.Time
}

// NewResolver wires the waterfall. Territory limits the paid steps: anchors
// outside it never trigger external calls.
func NewResolver(
	ro *roster.Index,
	firms *firm.Normalizer,
	sc serp.Client,
	pc peopledata.Client,
	b *budget.Counter,
	store *cache.Store,
	d *diag.Emitter,
	territory map[string]bool,
) (*Resolver, error) {
	serpCache, err := store.Provider("serp")
	if err != nil {
		return nil, err
	}
	companyCache, err := store.Provider("company")
	if err != nil {
		return nil, err
	}
	personCache, err := store.Provider("person")
	if err != nil {
		return nil, err
	}
	searchCache, err := store.Provider("person_search")
	if err != nil {
		return nil, err
	}
	return &Resolver{
		roster:       ro,
		firms:        firms,
		serp:         sc,
		people:       pc,
		budget:       b,
		diag:         d,
		territory:    territory,
		serpCache:    serpCache,
		companyCache: companyCache,
		personCache:  personCache,
		searchCache:  searchCache,
		now:          time.Now,
	}, nil
}

// WithNow sets a fixed clock for testing.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve runs the waterfall for one (anchor, firm) pair. It always returns
// a candidate; a nil Person means no resolution step landed.
func (r *Resolver) Resolve(ctx context.Context, anchor model.FilingAnchor, link model.BrokerLink, canonical string) (*Candidate, error) {
	regionKeys := roster.RegionKeys("", anchor.SponsorState)

	// Step 1: roster exact.
	if refs := r.roster.Exact(canonical, regionKeys...); len(refs) > 0 {
		ref := refs[0]
		cand := &Candidate{
			Person:      r.personFromRoster(ref, canonical),
			Liveness:    model.LivenessUnknown,
			RosterExact: true,
		}
		cand.Evidence = append(cand.Evidence, model.NewEvidence(
			model.EvidenceRosterExact, model.ConfidenceHigh, "",
			fmt.Sprintf("%s (%s) on internal roster for %s", ref.Name, ref.Title, canonical),
			r.now(),
		))
		return cand, nil
	}

	// Step 2: roster fuzzy on the raw firm string.
	if fuzzyCanonical, ratio, ok := r.roster.FuzzyFirm(link.RawFirmName); ok {
		if refs := r.roster.Exact(fuzzyCanonical, regionKeys...); len(refs) > 0 {
			ref := refs[0]
			cand := &Candidate{
				Person:      r.personFromRoster(ref, fuzzyCanonical),
				Liveness:    model.LivenessUnknown,
				RosterFuzzy: true,
			}
			cand.Evidence = append(cand.Evidence, model.NewEvidence(
				model.EvidenceRosterFuzzy, model.ConfidenceMedium, "",
				fmt.Sprintf("%q matched roster firm %s at similarity %.2f", link.RawFirmName, fuzzyCanonical, ratio),
				r.now(),
			))
			return cand, nil
		}
	}

	// Step 3: paid discovery, only inside the active territory.
	if len(r.territory) > 0 && !r.territory[anchor.SponsorState] {
		zap.L().Debug("attribute: anchor outside territory, skipping discovery",
			zap.String("ack_id", anchor.AckID),
			zap.String("state", anchor.SponsorState),
		)
		return &Candidate{Liveness: model.LivenessUnknown}, nil
	}
	cand := r.discover(ctx, anchor, link, canonical)

	// Step 4: liveness gate for externally discovered people.
	if cand.Person != nil {
		cand.Liveness = r.livenessCheck(ctx, cand.Person, canonical)
	}

	// Step 5: identity resolution.
	if cand.Person != nil {
		first, last := model.SplitName(cand.Person.FullName)
		key, typ := model.ResolveIdentity(cand.Person.WorkEmail, cand.Person.LinkedInURL, first, last, canonical)
		cand.Person.IdentityKey = key
		cand.Person.IdentityType = typ
	}
	return cand, nil
}

func (r *Resolver) personFromRoster(ref roster.PersonRef, canonical string) *model.BrokerPerson {
	first, last := model.SplitName(ref.Name)
	key, typ := model.ResolveIdentity("", "", first, last, canonical)
	return &model.BrokerPerson{
		IdentityKey:   key,
		IdentityType:  typ,
		FullName:      ref.Name,
		Title:         ref.Title,
		CanonicalFirm: canonical,
		RegionState:   ref.State,
	}
}
