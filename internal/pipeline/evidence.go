package pipeline

import (
	"fmt"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

// sizePriorLives is the covered-lives floor above which plan size alone is
// weak evidence of self-funding.
const sizePriorLives = 500

// filingEvidence assembles the filing-derived evidence for one lead: the
// broker link itself, the funding codes, the stop-loss signal, and the size
// prior.
func (p *Pipeline) filingEvidence(a model.FilingAnchor, link model.BrokerLink, stopLoss bool) []model.Evidence {
	at := p.now()
	var out []model.Evidence

	switch link.Source {
	case model.LinkCommission:
		out = append(out, model.NewEvidence(
			model.EvidenceCommissionFiling, model.ConfidenceHigh, "",
			fmt.Sprintf("commission row names %q", link.RawFirmName), at,
		))
	case model.LinkFee:
		snippet := fmt.Sprintf("fee row names %q", link.RawFirmName)
		if link.RoleCode != "" {
			snippet += " (service code " + link.RoleCode + ")"
		}
		out = append(out, model.NewEvidence(
			model.EvidenceFeeFiling, model.ConfidenceMedium, "", snippet, at,
		))
	}

	if len(a.FundingCodes) > 0 {
		out = append(out, model.NewEvidence(
			model.EvidenceDOLFundingCode, model.ConfidenceMedium, "",
			"benefit arrangement codes: "+a.FundingCodeString(), at,
		))
	}
	if stopLoss {
		out = append(out, model.NewEvidence(
			model.EvidenceDOLStopLoss, model.ConfidenceHigh, "",
			"stop-loss coverage in fee filing for EIN "+a.EIN, at,
		))
	}
	if a.Lives >= sizePriorLives {
		out = append(out, model.NewEvidence(
			model.EvidenceSizePrior, model.ConfidenceLow, "",
			fmt.Sprintf("%d covered lives", a.Lives), at,
		))
	}
	return out
}
