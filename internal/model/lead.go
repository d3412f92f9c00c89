package model

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Tier is the confidence tier assigned in the score stage.
type Tier string

const (
	TierPlatinum Tier = "PLATINUM"
	TierGold     Tier = "GOLD"
	TierSilver   Tier = "SILVER"
	TierDiscard  Tier = "DISCARD"
)

// Liveness records whether the attributed person still appears to be at the
// attributed firm, per the snippet check.
type Liveness string

const (
	LivenessCurrent            Liveness = "CURRENT"
	LivenessDepartureSuspected Liveness = "DEPARTURE_SUSPECTED"
	LivenessUnknown            Liveness = "UNKNOWN"
)

// TerritoryClass marks whether a person's inferred state is in the operator
// target set.
type TerritoryClass string

const (
	InTerritory    TerritoryClass = "IN_TERRITORY"
	OutOfTerritory TerritoryClass = "OUT_OF_TERRITORY"
)

// EvidenceSource identifies where a piece of supporting evidence came from.
type EvidenceSource string

const (
	EvidenceRosterExact      EvidenceSource = "ROSTER_EXACT"
	EvidenceRosterFuzzy      EvidenceSource = "ROSTER_FUZZY"
	EvidenceSearchSnippet    EvidenceSource = "SEARCH_SNIPPET"
	EvidencePeopleAPI        EvidenceSource = "PEOPLE_API"
	EvidenceFirmSite         EvidenceSource = "FIRM_SITE"
	EvidenceCommissionFiling EvidenceSource = "COMMISSION_FILING"
	EvidenceFeeFiling        EvidenceSource = "FEE_FILING"
	EvidenceDOLFundingCode   EvidenceSource = "DOL_FUNDING_CODE"
	EvidenceDOLStopLoss      EvidenceSource = "DOL_STOP_LOSS"
	EvidenceSizePrior        EvidenceSource = "SIZE_PRIOR"
)

// EvidenceConfidence grades a single evidence item.
type EvidenceConfidence string

const (
	ConfidenceHigh   EvidenceConfidence = "HIGH"
	ConfidenceMedium EvidenceConfidence = "MEDIUM"
	ConfidenceLow    EvidenceConfidence = "LOW"
	ConfidenceNone   EvidenceConfidence = "NONE"
)

const maxSnippetLen = 500

// Evidence is a single support for (or against) an attribution, retained
// for audit.
type Evidence struct {
	Source     EvidenceSource     `json:"source"`
	Confidence EvidenceConfidence `json:"confidence"`
	URL        string             `json:"url,omitempty"`
	Snippet    string             `json:"snippet,omitempty"`
	CapturedAt time.Time          `json:"captured_at"`
}

// NewEvidence builds an evidence record, truncating the snippet to the
// 500-char audit limit.
func NewEvidence(source EvidenceSource, conf EvidenceConfidence, url, snippet string, at time.Time) Evidence {
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	return Evidence{Source: source, Confidence: conf, URL: url, Snippet: snippet, CapturedAt: at.UTC()}
}

// LeadCandidate is the pipeline's output row: an anchor, its broker link,
// the resolved person, and the score stage's verdict.
type LeadCandidate struct {
	LeadID            string            `json:"lead_id"`
	Anchor            FilingAnchor      `json:"anchor"`
	BrokerLink        BrokerLink        `json:"broker_link"`
	BrokerPerson      *BrokerPerson     `json:"broker_person,omitempty"`
	Score             int               `json:"score"`
	Tier              Tier              `json:"tier"`
	Evidence          []Evidence        `json:"evidence"`
	Liveness          Liveness          `json:"liveness"`
	FundingStatus     FundingStatus     `json:"funding_status_estimate"`
	FundingConfidence FundingConfidence `json:"funding_confidence"`
	Territory         TerritoryClass    `json:"territory,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// HasEvidence reports whether any evidence item has the given source.
func (lc *LeadCandidate) HasEvidence(source EvidenceSource) bool {
	for _, ev := range lc.Evidence {
		if ev.Source == source {
			return true
		}
	}
	return false
}

// FindEvidence returns the first evidence item from the given source.
func (lc *LeadCandidate) FindEvidence(source EvidenceSource) (Evidence, bool) {
	for _, ev := range lc.Evidence {
		if ev.Source == source {
			return ev, true
		}
	}
	return Evidence{}, false
}

var (
	leadPunctRe = regexp.MustCompile(`[^A-Z0-9& ]+`)
	leadSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// NormalizeEntityName uppercases, strips punctuation except ampersands, and
// collapses whitespace. Used for lead-id hashing and firm alias matching.
func NormalizeEntityName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = leadPunctRe.ReplaceAllString(n, " ")
	n = leadSpaceRe.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// LeadID derives the stable lead identifier:
// sha1(normalize(employer) | canonical_firm | canonical_linkedin).
func LeadID(employerName, canonicalFirm, linkedinURL string) string {
	h := sha1.Sum([]byte(NormalizeEntityName(employerName) + "|" + canonicalFirm + "|" + CanonicalizeLinkedIn(linkedinURL)))
	return hex.EncodeToString(h[:])
}
