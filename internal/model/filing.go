// Package model defines the typed records flowing through the triangulation
// pipeline: filing anchors, broker links, resolved persons, and scored leads.
package model

import (
	"sort"
	"strings"
	"time"
)

// FundingCode is a Form 5500 benefit-arrangement code.
type FundingCode string

// Funding arrangement codes as reported on the main filing.
const (
	FundingInsurance FundingCode = "INSURANCE"
	FundingTrust     FundingCode = "TRUST"
	FundingGenAsset  FundingCode = "GEN_ASSET"
	FundingSec412    FundingCode = "SEC412"
)

// FundingStatus estimates whether a plan is self-funded.
type FundingStatus string

const (
	FundingSelfFunded       FundingStatus = "SELF_FUNDED"
	FundingLikelySelfFunded FundingStatus = "LIKELY_SELF_FUNDED"
	FundingLikelyInsured    FundingStatus = "LIKELY_INSURED"
	FundingUnknown          FundingStatus = "UNKNOWN"
)

// FundingConfidence grades a funding status estimate.
type FundingConfidence string

const (
	FundingConfHigh   FundingConfidence = "HIGH"
	FundingConfMedium FundingConfidence = "MEDIUM"
	FundingConfLow    FundingConfidence = "LOW"
)

// FilingAnchor is one employer-plan row promoted past the anchor filters.
// Created in the anchor stage and immutable afterward.
type FilingAnchor struct {
	AckID        string        `json:"ack_id"`
	EmployerName string        `json:"employer_name"`
	EIN          string        `json:"ein"`      // 9 digits, zero-padded
	PlanNum      string        `json:"plan_num"` // 3 digits, zero-padded
	PlanYear     int           `json:"plan_year"`
	SponsorState string        `json:"sponsor_state"`
	Lives        int           `json:"lives"`
	FundingCodes []FundingCode `json:"funding_codes"`
	PlanName     string        `json:"plan_name"`
}

// HasFunding reports whether the anchor carries the given funding code.
func (a *FilingAnchor) HasFunding(code FundingCode) bool {
	for _, c := range a.FundingCodes {
		if c == code {
			return true
		}
	}
	return false
}

// FundingEstimate derives the funding status from the code set alone.
// Stop-loss evidence found later in the join stage promotes the result to
// SELF_FUNDED / HIGH.
func (a *FilingAnchor) FundingEstimate() (FundingStatus, FundingConfidence) {
	ins := a.HasFunding(FundingInsurance)
	trust := a.HasFunding(FundingTrust)
	genAsset := a.HasFunding(FundingGenAsset)

	switch {
	case (trust || genAsset) && !ins:
		return FundingLikelySelfFunded, FundingConfMedium
	case ins && !trust && !genAsset:
		return FundingLikelyInsured, FundingConfMedium
	default:
		return FundingUnknown, FundingConfLow
	}
}

// FundingCodeString renders the code set verbatim for evidence snippets,
// sorted for determinism.
func (a *FilingAnchor) FundingCodeString() string {
	codes := make([]string, 0, len(a.FundingCodes))
	for _, c := range a.FundingCodes {
		codes = append(codes, string(c))
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}

// LinkSource identifies which filing table produced a broker link.
type LinkSource string

const (
	LinkCommission LinkSource = "COMMISSION"
	LinkFee        LinkSource = "FEE"
)

// BrokerLink associates a firm with an anchor via a filing table.
// At most one COMMISSION link exists per (ack_id, raw_firm_name); FEE links
// are retained only when no COMMISSION link exists for the ack_id.
type BrokerLink struct {
	AckID         string     `json:"ack_id"`
	RawFirmName   string     `json:"raw_firm_name"`
	CanonicalFirm string     `json:"canonical_firm,omitempty"`
	Source        LinkSource `json:"source"`
	RoleCode      string     `json:"role_code,omitempty"`
}

// CanonicalFirm is a dictionary entry mapping alias strings to a stable
// uppercase token such as GALLAGHER or LOCKTON.
type CanonicalFirm struct {
	Token         string   `json:"token" yaml:"token"`
	DisplayName   string   `json:"display_name" yaml:"display_name"`
	Aliases       []string `json:"aliases" yaml:"aliases"`
	PrimaryDomain string   `json:"primary_domain,omitempty" yaml:"primary_domain,omitempty"`
}

// AllocationRow is one committed row of the global allocation ledger.
type AllocationRow struct {
	LeadID       string    `json:"lead_id"`
	BrokerUserID string    `json:"broker_user_id"`
	AllocatedAt  time.Time `json:"allocated_at"`
	Sponsor      string    `json:"sponsor"`
}

// USStates is the set of valid two-letter state codes for sponsor_state.
var USStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}
