// Package score assigns each lead candidate a confidence tier and a contact
// score, then orders the run's output.
package score

import (
	"sort"
	"strings"

	"github.com/benefitscout/leadgen-cli/internal/attribute"
	"github.com/benefitscout/leadgen-cli/internal/model"
)

const (
	baseScore = 50

	execBonus    = 40
	vpBonus      = 30
	managerBonus = 20

	emailBonus    = 20
	benefitsBonus = 20

	pcPenalty       = 25
	noEmailPenalty  = 60
	lowLevelPenalty = 20

	// departureCeiling keeps a suspected departure out of the top band.
	departureCeiling = 59
)

var (
	execTitles     = []string{"CHIEF", "CFO", "CHRO", "CPO", "CAO", "PRESIDENT"}
	vpTitles       = []string{"VICE PRESIDENT", "VP", "HEAD OF"}
	managerTitles  = []string{"DIRECTOR", "MANAGER"}
	lowLevelTitles = []string{"ASSISTANT", "INTERN", "ANALYST", "COORDINATOR"}

	benefitsPhrases = []string{"BENEFIT", "TOTAL REWARDS", "HUMAN RESOURCES", "PEOPLE"}
	pcWords         = []string{"PROPERTY", "CASUALTY", "P&C", "COMMERCIAL LINES"}
)

// Scorer grades lead candidates against the operator's territory.
type Scorer struct {
	territory map[string]bool
}

// New creates a scorer. An empty territory marks every lead in-territory.
func New(territory map[string]bool) *Scorer {
	return &Scorer{territory: territory}
}

// Evaluate fills in the candidate's tier, score, and territory class from the
// attribution outcome. The lead's evidence and funding estimate must already
// be assembled.
func (s *Scorer) Evaluate(lead *model.LeadCandidate, cand *attribute.Candidate) {
	lead.Tier = tier(lead, cand)
	lead.Score = personScore(lead)
	lead.Territory = s.territoryClass(lead)
}

// tier applies the tier ladder top-down. A people-API firm mismatch arrives
// here person-less and takes the firm-only path like any other clean miss.
func tier(lead *model.LeadCandidate, cand *attribute.Candidate) model.Tier {
	if cand == nil || lead.BrokerLink.CanonicalFirm == "" {
		return model.TierDiscard
	}

	t := model.TierSilver
	verified := cand.Verified || cand.RosterExact
	selfFunded := lead.HasEvidence(model.EvidenceDOLStopLoss) || lead.FundingStatus == model.FundingSelfFunded
	switch {
	case cand.RosterExact && lead.HasEvidence(model.EvidenceCommissionFiling):
		t = model.TierPlatinum
	case verified && lead.BrokerPerson != nil && selfFunded:
		t = model.TierGold
	}

	// A suspected departure keeps its outreach slot but never the top bands.
	if lead.Liveness == model.LivenessDepartureSuspected && tierRank(t) < tierRank(model.TierSilver) {
		t = model.TierSilver
	}
	return t
}

// personScore grades contactability of the attributed person. Firm-only
// leads keep the base score.
func personScore(lead *model.LeadCandidate) int {
	score := baseScore
	p := lead.BrokerPerson
	if p != nil {
		title := strings.ToUpper(p.Title)
		switch {
		case containsAny(title, execTitles):
			score += execBonus
		case containsAny(title, vpTitles):
			score += vpBonus
		case containsAny(title, managerTitles):
			score += managerBonus
		}
		if benefitsFocused(title) {
			score += benefitsBonus
		}
		if containsAny(title, pcWords) {
			score -= pcPenalty
		}
		if containsAny(title, lowLevelTitles) {
			score -= lowLevelPenalty
		}
		if validEmail(p.WorkEmail) {
			score += emailBonus
		} else {
			score -= noEmailPenalty
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	if lead.Liveness == model.LivenessDepartureSuspected && score > departureCeiling {
		score = departureCeiling
	}
	return score
}

func (s *Scorer) territoryClass(lead *model.LeadCandidate) model.TerritoryClass {
	if len(s.territory) == 0 {
		return model.InTerritory
	}
	state := lead.Anchor.SponsorState
	if lead.BrokerPerson != nil && lead.BrokerPerson.RegionState != "" {
		state = lead.BrokerPerson.RegionState
	}
	if s.territory[state] {
		return model.InTerritory
	}
	return model.OutOfTerritory
}

// Sort orders leads for output: tier first, then covered lives descending,
// then employer name for a stable tail.
func Sort(leads []model.LeadCandidate) {
	sort.SliceStable(leads, func(i, j int) bool {
		a, b := &leads[i], &leads[j]
		if tierRank(a.Tier) != tierRank(b.Tier) {
			return tierRank(a.Tier) < tierRank(b.Tier)
		}
		if a.Anchor.Lives != b.Anchor.Lives {
			return a.Anchor.Lives > b.Anchor.Lives
		}
		return a.Anchor.EmployerName < b.Anchor.EmployerName
	})
}

func tierRank(t model.Tier) int {
	switch t {
	case model.TierPlatinum:
		return 0
	case model.TierGold:
		return 1
	case model.TierSilver:
		return 2
	default:
		return 3
	}
}

// benefitsFocused matches the long phrases as substrings, but "HR" only as a
// whole word so titles like CHRO do not collect the bonus.
func benefitsFocused(title string) bool {
	if containsAny(title, benefitsPhrases) {
		return true
	}
	tokens := strings.FieldsFunc(title, func(r rune) bool {
		return r < 'A' || r > 'Z'
	})
	for _, tok := range tokens {
		if tok == "HR" {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// validEmail is a cheap shape check; deliverability is out of scope here.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t")
}
