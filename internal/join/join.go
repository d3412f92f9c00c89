// Package join attaches broker firms to anchors by streaming the
// broker-commission and service-provider fee tables and matching on the
// filing acknowledgement id.
package join

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/ingest"
	"github.com/benefitscout/leadgen-cli/internal/model"
)

const colAckID = "ACK_ID"

// commissionFirmCols is the broker-name column priority for commission rows.
var commissionFirmCols = []string{"BROKER_FIRM", "AGENT_BROKER", "ROW_BROKER", "CARRIER_NAME"}

var feeProviderCols = []string{"PROVIDER_NAME", "SERVICE_PROVIDER_NAME"}

var feeEINCols = []string{"SPONS_DFE_EIN", "SPONSOR_EIN", "EIN"}

// Result accumulates broker links and the stop-loss signal across passes.
type Result struct {
	// Links maps ack_id to its broker links. Commission links dominate:
	// a fee link is only present when the ack_id has no commission link.
	Links map[string][]model.BrokerLink
	// StopLossEINs holds sponsor EINs whose fee rows mention stop-loss
	// coverage. Matching anchors are promoted to SELF_FUNDED / HIGH.
	StopLossEINs map[string]bool
}

// NewResult returns an empty join result.
func NewResult() *Result {
	return &Result{
		Links:        make(map[string][]model.BrokerLink),
		StopLossEINs: make(map[string]bool),
	}
}

// hasSource reports whether the ack_id already has a link from source.
func (r *Result) hasSource(ackID string, source model.LinkSource) bool {
	for _, l := range r.Links[ackID] {
		if l.Source == source {
			return true
		}
	}
	return false
}

// hasLink reports whether the exact (ack_id, raw_firm_name, source) link exists.
func (r *Result) hasLink(ackID, rawFirm string, source model.LinkSource) bool {
	for _, l := range r.Links[ackID] {
		if l.Source == source && l.RawFirmName == rawFirm {
			return true
		}
	}
	return false
}

func ackSet(anchors []model.FilingAnchor) map[string]bool {
	set := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		set[a.AckID] = true
	}
	return set
}

// CommissionPass streams the commission table and appends COMMISSION links
// for rows matching an anchor. First-observed wins on duplicate
// (ack_id, raw_firm_name) pairs.
func CommissionPass(s *ingest.Stream, anchors []model.FilingAnchor, r *Result) error {
	if err := s.Columns.Require(colAckID); err != nil {
		return err
	}
	firmCol, err := brokerNameColumn(s.Columns)
	if err != nil {
		return err
	}
	zap.L().Info("join: commission pass", zap.String("firm_column", firmCol))

	acks := ackSet(anchors)
	matched := 0
	for {
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return eris.Wrap(err, "join: read commission row")
		}

		ackID := s.Columns.Get(row, colAckID)
		if !acks[ackID] {
			continue
		}
		firm := s.Columns.Get(row, firmCol)
		if firm == "" || r.hasLink(ackID, firm, model.LinkCommission) {
			continue
		}
		r.Links[ackID] = append(r.Links[ackID], model.BrokerLink{
			AckID:       ackID,
			RawFirmName: firm,
			Source:      model.LinkCommission,
		})
		matched++
	}

	zap.L().Info("join: commission pass complete",
		zap.Int64("rows_scanned", s.RowsRead()),
		zap.Int("links", matched),
	)
	return nil
}

// FeePass streams the fee table. A FEE link is attached only when the
// ack_id has no COMMISSION link and no earlier FEE link; the stop-loss
// scan covers every row regardless of anchor membership.
func FeePass(s *ingest.Stream, anchors []model.FilingAnchor, r *Result) error {
	if err := s.Columns.Require(colAckID); err != nil {
		return err
	}
	providerCol, err := s.Columns.RequireAny(feeProviderCols...)
	if err != nil {
		return err
	}

	acks := ackSet(anchors)
	matched := 0
	for {
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return eris.Wrap(err, "join: read fee row")
		}

		if ein := stopLossEIN(s.Columns, row); ein != "" {
			r.StopLossEINs[ein] = true
		}

		ackID := s.Columns.Get(row, colAckID)
		if !acks[ackID] {
			continue
		}
		if r.hasSource(ackID, model.LinkCommission) || r.hasSource(ackID, model.LinkFee) {
			continue
		}
		provider := s.Columns.Get(row, providerCol)
		if provider == "" {
			continue
		}
		r.Links[ackID] = append(r.Links[ackID], model.BrokerLink{
			AckID:       ackID,
			RawFirmName: provider,
			Source:      model.LinkFee,
			RoleCode:    s.Columns.Get(row, "SERVICE_CODE"),
		})
		matched++
	}

	zap.L().Info("join: fee pass complete",
		zap.Int64("rows_scanned", s.RowsRead()),
		zap.Int("links", matched),
		zap.Int("stop_loss_eins", len(r.StopLossEINs)),
	)
	return nil
}

// brokerNameColumn resolves the best-available broker-name column, falling
// back to the first header containing both AGENT and NAME.
func brokerNameColumn(cols *ingest.ColumnMap) (string, error) {
	for _, c := range commissionFirmCols {
		if cols.Has(c) {
			return c, nil
		}
	}
	if col, ok := cols.FirstWhere(func(name string) bool {
		return strings.Contains(name, "AGENT") && strings.Contains(name, "NAME")
	}); ok {
		return col, nil
	}
	_, err := cols.RequireAny(commissionFirmCols...)
	return "", err
}

// stopLossEIN returns the row's EIN when any cell mentions stop-loss
// coverage.
func stopLossEIN(cols *ingest.ColumnMap, row []string) string {
	found := false
	for _, cell := range row {
		lc := strings.ToLower(cell)
		if strings.Contains(lc, "stop loss") || strings.Contains(lc, "stop-loss") {
			found = true
			break
		}
	}
	if !found {
		return ""
	}
	for _, c := range feeEINCols {
		if v := cols.Get(row, c); v != "" {
			return v
		}
	}
	return ""
}
