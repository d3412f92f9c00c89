package pipeline

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

// artifactHeader is the flattened lead row. Evidence is pipe-joined as
// source:confidence:url triples.
var artifactHeader = []string{
	"lead_id", "employer_name", "ein", "plan_num", "plan_year",
	"sponsor_state", "lives", "plan_name",
	"raw_firm_name", "canonical_firm", "link_source",
	"person_name", "person_title", "person_email", "person_linkedin",
	"identity_key", "identity_type",
	"score", "tier", "liveness", "territory",
	"funding_status", "funding_confidence",
	"evidence", "created_at",
}

// WriteArtifact writes the scored leads as the run's CSV artifact.
func WriteArtifact(path string, leads []model.LeadCandidate) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create artifact %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(artifactHeader); err != nil {
		return eris.Wrap(err, "pipeline: write artifact header")
	}
	for i := range leads {
		if err := w.Write(artifactRow(&leads[i])); err != nil {
			return eris.Wrap(err, "pipeline: write artifact row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "pipeline: flush artifact")
	}
	return eris.Wrap(f.Sync(), "pipeline: sync artifact")
}

func artifactRow(lead *model.LeadCandidate) []string {
	var name, title, email, linkedin, identityKey, identityType string
	if p := lead.BrokerPerson; p != nil {
		name, title, email, linkedin = p.FullName, p.Title, p.WorkEmail, p.LinkedInURL
		identityKey, identityType = p.IdentityKey, string(p.IdentityType)
	}
	return []string{
		lead.LeadID,
		lead.Anchor.EmployerName,
		lead.Anchor.EIN,
		lead.Anchor.PlanNum,
		strconv.Itoa(lead.Anchor.PlanYear),
		lead.Anchor.SponsorState,
		strconv.Itoa(lead.Anchor.Lives),
		lead.Anchor.PlanName,
		lead.BrokerLink.RawFirmName,
		lead.BrokerLink.CanonicalFirm,
		string(lead.BrokerLink.Source),
		name, title, email, linkedin,
		identityKey, identityType,
		strconv.Itoa(lead.Score),
		string(lead.Tier),
		string(lead.Liveness),
		string(lead.Territory),
		string(lead.FundingStatus),
		string(lead.FundingConfidence),
		joinEvidence(lead.Evidence),
		lead.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func joinEvidence(evidence []model.Evidence) string {
	parts := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		parts = append(parts, string(ev.Source)+":"+string(ev.Confidence)+":"+ev.URL)
	}
	return strings.Join(parts, "|")
}
