// Package firm maps raw broker-firm strings from filings to canonical firm
// tokens via an alias table plus a deterministic validator.
package firm

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

// Normalizer resolves raw firm strings to canonical tokens. Alias matching
// is longest-first, so ties are impossible.
type Normalizer struct {
	byToken map[string]model.CanonicalFirm
	aliases []aliasEntry
}

type aliasEntry struct {
	alias string // normalized
	token string
}

// NewNormalizer builds a normalizer over the given dictionary. Every alias
// and the display name itself participate in matching.
func NewNormalizer(firms []model.CanonicalFirm) *Normalizer {
	n := &Normalizer{byToken: make(map[string]model.CanonicalFirm, len(firms))}
	for _, f := range firms {
		n.byToken[f.Token] = f
		candidates := append([]string{f.DisplayName}, f.Aliases...)
		for _, a := range candidates {
			na := model.NormalizeEntityName(a)
			if na == "" {
				continue
			}
			n.aliases = append(n.aliases, aliasEntry{alias: na, token: f.Token})
		}
	}
	// Longest alias first; alphabetical within a length for determinism.
	sort.SliceStable(n.aliases, func(i, j int) bool {
		if len(n.aliases[i].alias) != len(n.aliases[j].alias) {
			return len(n.aliases[i].alias) > len(n.aliases[j].alias)
		}
		return n.aliases[i].alias < n.aliases[j].alias
	})
	return n
}

// LoadAliases reads the canonical firm dictionary from a YAML file.
func LoadAliases(path string) (*Normalizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "firm: read alias table %s", path)
	}
	var wrapper struct {
		Firms []model.CanonicalFirm `yaml:"firms"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "firm: parse alias table")
	}
	return NewNormalizer(wrapper.Firms), nil
}

// Firm returns the dictionary entry for a canonical token.
func (n *Normalizer) Firm(token string) (model.CanonicalFirm, bool) {
	f, ok := n.byToken[token]
	return f, ok
}

// Canonical maps a raw firm string to its canonical token. Returns ok=false
// when the string survives neither the alias table nor the validator.
// Canonical is idempotent: feeding a result back returns it unchanged.
func (n *Normalizer) Canonical(raw string) (string, bool) {
	clean := model.NormalizeEntityName(raw)
	if clean == "" {
		return "", false
	}

	// Alias pass, longest-first whole-word substring.
	padded := " " + clean + " "
	for _, e := range n.aliases {
		if strings.Contains(padded, " "+e.alias+" ") {
			return e.token, true
		}
	}

	// Validator: drop stopwords and generic-industry words; at least two
	// brand tokens make a novel canonical.
	brand := brandTokens(clean)
	if len(brand) < 2 {
		return "", false
	}
	return strings.Join(brand, " "), true
}

// brandTokens filters the distinctive tokens out of a normalized name.
func brandTokens(clean string) []string {
	var out []string
	for _, tok := range strings.Fields(clean) {
		if genericWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// genericWords are stopwords and industry filler that carry no brand signal.
var genericWords = map[string]bool{
	"THE": true, "OF": true, "AND": true, "A": true, "AN": true, "&": true,
	"BENEFIT": true, "BENEFITS": true, "INSURANCE": true, "SERVICES": true,
	"SERVICE": true, "GROUP": true, "COMPANY": true, "COMPANIES": true,
	"ASSOCIATES": true, "AGENCY": true, "AGENCIES": true, "BROKERAGE": true,
	"BROKERS": true, "BROKER": true, "CONSULTING": true, "CONSULTANTS": true,
	"ADVISORS": true, "ADVISERS": true, "SOLUTIONS": true, "PARTNERS": true,
	"HOLDINGS": true, "INTERNATIONAL": true, "NATIONAL": true, "FINANCIAL": true,
	"RISK": true, "MANAGEMENT": true, "EMPLOYEE": true, "PLAN": true,
	"PLANS": true, "HEALTH": true, "WELFARE": true, "TRUST": true,
	"ADMINISTRATORS": true, "LLC": true, "INC": true, "CORP": true,
	"CORPORATION": true, "LTD": true, "LP": true, "LLP": true, "CO": true,
}

// DefaultFirms is the built-in dictionary of national benefits brokerages.
// Operators extend it through the YAML alias table.
func DefaultFirms() []model.CanonicalFirm {
	return []model.CanonicalFirm{
		{Token: "GALLAGHER", DisplayName: "Arthur J. Gallagher", Aliases: []string{"GALLAGHER BENEFIT SERVICES", "ARTHUR J GALLAGHER", "AJG", "GALLAGHER"}, PrimaryDomain: "ajg.com"},
		{Token: "LOCKTON", DisplayName: "Lockton Companies", Aliases: []string{"LOCKTON COMPANIES", "LOCKTON"}, PrimaryDomain: "lockton.com"},
		{Token: "MERCER", DisplayName: "Mercer", Aliases: []string{"MERCER HEALTH & BENEFITS", "MERCER"}, PrimaryDomain: "mercer.com"},
		{Token: "MARSH", DisplayName: "Marsh McLennan Agency", Aliases: []string{"MARSH MCLENNAN", "MARSH & MCLENNAN", "MARSH MMA", "MARSH"}, PrimaryDomain: "marshmma.com"},
		{Token: "AON", DisplayName: "Aon", Aliases: []string{"AON CONSULTING", "AON HEWITT", "AON"}, PrimaryDomain: "aon.com"},
		{Token: "WTW", DisplayName: "WTW", Aliases: []string{"WILLIS TOWERS WATSON", "TOWERS WATSON", "WTW"}, PrimaryDomain: "wtwco.com"},
		{Token: "HUB", DisplayName: "HUB International", Aliases: []string{"HUB INTERNATIONAL", "HUB"}, PrimaryDomain: "hubinternational.com"},
		{Token: "USI", DisplayName: "USI Insurance Services", Aliases: []string{"USI INSURANCE", "USI"}, PrimaryDomain: "usi.com"},
		{Token: "ALLIANT", DisplayName: "Alliant Insurance Services", Aliases: []string{"ALLIANT INSURANCE", "ALLIANT"}, PrimaryDomain: "alliant.com"},
		{Token: "BROWNBROWN", DisplayName: "Brown & Brown", Aliases: []string{"BROWN & BROWN", "BROWN AND BROWN"}, PrimaryDomain: "bbrown.com"},
		{Token: "NFP", DisplayName: "NFP", Aliases: []string{"NFP CORP", "NFP"}, PrimaryDomain: "nfp.com"},
		{Token: "ONEDIGITAL", DisplayName: "OneDigital", Aliases: []string{"ONEDIGITAL", "ONE DIGITAL", "DIGITAL INSURANCE"}, PrimaryDomain: "onedigital.com"},
		{Token: "SEGAL", DisplayName: "Segal", Aliases: []string{"SEGAL CONSULTING", "THE SEGAL COMPANY", "SEGAL"}, PrimaryDomain: "segalco.com"},
		{Token: "HOLMES", DisplayName: "Holmes Murphy", Aliases: []string{"HOLMES MURPHY"}, PrimaryDomain: "holmesmurphy.com"},
		{Token: "IMA", DisplayName: "IMA Financial Group", Aliases: []string{"IMA FINANCIAL", "IMA"}, PrimaryDomain: "imacorp.com"},
	}
}
