package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// IdentityType is the notion of identity backing an identity key.
type IdentityType string

const (
	IdentityEmail    IdentityType = "email"
	IdentityLinkedIn IdentityType = "linkedin"
	IdentityHash     IdentityType = "hash"
)

// BrokerPerson is a resolved human at a brokerage firm.
type BrokerPerson struct {
	IdentityKey   string       `json:"identity_key"`
	IdentityType  IdentityType `json:"identity_type"`
	FullName      string       `json:"full_name"`
	Title         string       `json:"title,omitempty"`
	CanonicalFirm string       `json:"canonical_firm"`
	WorkEmail     string       `json:"work_email,omitempty"`
	LinkedInURL   string       `json:"linkedin_url,omitempty"`
	RegionState   string       `json:"region_state,omitempty"`
}

// CanonicalizeLinkedIn normalizes a LinkedIn profile URL: lowercased, query
// string and fragment stripped, trailing slash removed.
func CanonicalizeLinkedIn(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		// Unparseable input still needs a deterministic form.
		raw = strings.ToLower(raw)
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	out := strings.ToLower(u.String())
	return strings.TrimRight(out, "/")
}

// ResolveIdentity applies the identity-key precedence rule: a lowercased
// email wins, then a canonicalized LinkedIn URL, then a sha256 over the
// normalized name and firm. Resolution is total: any non-empty input yields
// exactly one (key, type) pair.
func ResolveIdentity(workEmail, linkedinURL, firstName, lastName, firm string) (string, IdentityType) {
	if email := strings.ToLower(strings.TrimSpace(workEmail)); email != "" {
		return email, IdentityEmail
	}
	if lnk := CanonicalizeLinkedIn(linkedinURL); lnk != "" {
		return lnk, IdentityLinkedIn
	}
	h := sha256.Sum256([]byte(alphaOnly(firstName) + ":" + alphaOnly(lastName) + ":" + alphaOnly(firm)))
	return hex.EncodeToString(h[:]), IdentityHash
}

// SplitName splits a full name into (first, last) on whitespace. Middle
// tokens fold into the last name.
func SplitName(full string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(full))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// alphaOnly lowercases and strips everything outside [a-z].
func alphaOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
