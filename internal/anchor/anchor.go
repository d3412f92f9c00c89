// Package anchor filters main-filing rows down to employer candidates that
// satisfy the region, size, and welfare gates.
package anchor

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/ingest"
	"github.com/benefitscout/leadgen-cli/internal/model"
)

// Main-filing column names, with the vendor variants seen across plan years.
const (
	colAckID       = "ACK_ID"
	colPlanName    = "PLAN_NAME"
	colWelfareCode = "TYPE_WELFARE_BNFT_CODE"

	colFundingInsurance = "FUNDING_INSURANCE_IND"
	colFundingTrust     = "FUNDING_TRUST_IND"
	colFundingGenAsset  = "FUNDING_GEN_ASSET_IND"
	colFundingSec412    = "FUNDING_SEC412_IND"
)

var (
	sponsorCols  = []string{"SPONSOR_DFE_NAME", "SPONS_DFE_NAME", "SPONSOR_NAME"}
	einCols      = []string{"SPONS_DFE_EIN", "SPONSOR_EIN", "EIN"}
	planNumCols  = []string{"SPONS_DFE_PN", "LAST_RPT_PLAN_NUM", "PLAN_NUM"}
	stateCols    = []string{"SPONS_DFE_MAIL_US_STATE", "SPONS_DFE_LOC_US_STATE", "STATE"}
	livesCols    = []string{"TOT_ACT_PARTCP_CNT", "TOT_ACTIVE_PARTCP_CNT", "TOT_PARTCP_BOY_CNT", "PARTCP_COUNT"}
	planYearCols = []string{"FORM_PLAN_YEAR_BEGIN_DATE", "PLAN_YEAR_BEGIN_DATE"}
)

// retirementPlanRe excludes plans that are retirement vehicles rather than
// welfare plans, whatever their welfare code claims.
var retirementPlanRe = regexp.MustCompile(`(?i)(401\(?K\)?|PENSION|RETIREMENT|DEFINED BENEFIT|SAVINGS PLAN|PROFIT SHARING)`)

// Filter holds the operator-supplied anchor gates and caps.
type Filter struct {
	TargetStates    map[string]bool
	WelfareCode     string
	MinLives        int
	MinLivesInsured int
	MaxAnchors      int // 0 = unlimited
	MaxRows         int // 0 = unlimited
	PlanYear        int // fallback when the filing lacks a plan-year date
}

// Scan consumes the main-filing stream and returns anchors in stream order.
// A header missing any required column is fatal.
func Scan(s *ingest.Stream, f Filter) ([]model.FilingAnchor, error) {
	if err := s.Columns.Require(colAckID, colWelfareCode); err != nil {
		return nil, err
	}
	sponsorCol, err := s.Columns.RequireAny(sponsorCols...)
	if err != nil {
		return nil, err
	}
	stateCol, err := s.Columns.RequireAny(stateCols...)
	if err != nil {
		return nil, err
	}
	livesCol, err := s.Columns.RequireAny(livesCols...)
	if err != nil {
		return nil, err
	}

	var anchors []model.FilingAnchor
	for {
		if f.MaxRows > 0 && s.RowsRead() >= int64(f.MaxRows) {
			zap.L().Info("anchor: row cap reached", zap.Int64("rows", s.RowsRead()))
			break
		}
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "anchor: read main filing")
		}

		a, ok := evaluate(s.Columns, row, f, sponsorCol, stateCol, livesCol)
		if !ok {
			continue
		}
		anchors = append(anchors, a)

		if f.MaxAnchors > 0 && len(anchors) >= f.MaxAnchors {
			zap.L().Info("anchor: anchor cap reached", zap.Int("anchors", len(anchors)))
			break
		}
	}

	zap.L().Info("anchor scan complete",
		zap.Int64("rows_scanned", s.RowsRead()),
		zap.Int("anchors", len(anchors)),
	)
	return anchors, nil
}

// evaluate applies the four gates to one row.
func evaluate(cols *ingest.ColumnMap, row []string, f Filter, sponsorCol, stateCol, livesCol string) (model.FilingAnchor, bool) {
	var zero model.FilingAnchor

	// Region gate.
	state := strings.ToUpper(cols.Get(row, stateCol))
	if state != "" && !model.USStates[state] {
		return zero, false
	}
	if len(f.TargetStates) > 0 && !f.TargetStates[state] {
		return zero, false
	}

	// Size gate.
	lives, err := strconv.Atoi(strings.TrimSpace(cols.Get(row, livesCol)))
	if err != nil || lives < f.MinLives {
		return zero, false
	}

	codes := fundingCodes(cols, row)
	if fullyInsured(codes) && lives < f.MinLivesInsured {
		return zero, false
	}

	// Welfare gate.
	welfare := strings.ToUpper(cols.Get(row, colWelfareCode))
	if !strings.Contains(welfare, strings.ToUpper(f.WelfareCode)) {
		return zero, false
	}
	planName := cols.Get(row, colPlanName)
	if retirementPlanRe.MatchString(planName) {
		return zero, false
	}

	return model.FilingAnchor{
		AckID:        cols.Get(row, colAckID),
		EmployerName: cols.Get(row, sponsorCol),
		EIN:          padLeft(digitsOnly(firstCell(cols, row, einCols)), 9),
		PlanNum:      padLeft(digitsOnly(firstCell(cols, row, planNumCols)), 3),
		PlanYear:     planYear(cols, row, f.PlanYear),
		SponsorState: state,
		Lives:        lives,
		FundingCodes: codes,
		PlanName:     planName,
	}, true
}

// fundingCodes collects the benefit-arrangement indicators set to 1, in a
// fixed order so output is deterministic.
var fundingIndicators = []struct {
	col  string
	code model.FundingCode
}{
	{colFundingInsurance, model.FundingInsurance},
	{colFundingTrust, model.FundingTrust},
	{colFundingGenAsset, model.FundingGenAsset},
	{colFundingSec412, model.FundingSec412},
}

func fundingCodes(cols *ingest.ColumnMap, row []string) []model.FundingCode {
	var codes []model.FundingCode
	for _, ind := range fundingIndicators {
		if cols.Get(row, ind.col) == "1" {
			codes = append(codes, ind.code)
		}
	}
	return codes
}

func fullyInsured(codes []model.FundingCode) bool {
	ins, other := false, false
	for _, c := range codes {
		switch c {
		case model.FundingInsurance:
			ins = true
		case model.FundingTrust, model.FundingGenAsset:
			other = true
		}
	}
	return ins && !other
}

func planYear(cols *ingest.ColumnMap, row []string, fallback int) int {
	for _, col := range planYearCols {
		v := cols.Get(row, col)
		if len(v) >= 4 {
			if y, err := strconv.Atoi(v[:4]); err == nil && y > 1900 {
				return y
			}
		}
	}
	return fallback
}

func firstCell(cols *ingest.ColumnMap, row []string, names []string) string {
	for _, n := range names {
		if v := cols.Get(row, n); v != "" {
			return v
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func padLeft(s string, width int) string {
	if s == "" {
		return ""
	}
	if len(s) >= width {
		return s
	}
	return fmt.Sprintf("%0*s", width, s)
}
