package anchor

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benefitscout/leadgen-cli/internal/diag"
	"github.com/benefitscout/leadgen-cli/internal/ingest"
	"github.com/benefitscout/leadgen-cli/internal/model"
)

const mainHeader = "ACK_ID,SPONSOR_DFE_NAME,SPONS_DFE_EIN,SPONS_DFE_PN,SPONS_DFE_MAIL_US_STATE," +
	"TOT_ACT_PARTCP_CNT,TYPE_WELFARE_BNFT_CODE,PLAN_NAME," +
	"FUNDING_INSURANCE_IND,FUNDING_TRUST_IND,FUNDING_GEN_ASSET_IND,FUNDING_SEC412_IND," +
	"FORM_PLAN_YEAR_BEGIN_DATE\n"

func mainRow(ack, name, ein, pn, state string, lives int, welfare, plan string, ins, trust, ga, sec string) string {
	return fmt.Sprintf("%s,%s,%s,%s,%s,%d,%s,%s,%s,%s,%s,%s,2024-01-01\n",
		ack, name, ein, pn, state, lives, welfare, plan, ins, trust, ga, sec)
}

func stream(t *testing.T, csv string) *ingest.Stream {
	t.Helper()
	s, err := ingest.OpenReader(strings.NewReader(csv), ingest.CategoryMain, diag.New(io.Discard))
	require.NoError(t, err)
	return s
}

func caFilter() Filter {
	return Filter{
		TargetStates:    map[string]bool{"CA": true},
		WelfareCode:     "4A",
		MinLives:        50,
		MinLivesInsured: 1000,
	}
}

func TestScan_HappyPath(t *testing.T) {
	csv := mainHeader +
		mainRow("A1", "ACME CO", "123456789", "501", "CA", 400, "4A", "Acme Health Plan", "0", "0", "1", "0")

	anchors, err := Scan(stream(t, csv), caFilter())
	require.NoError(t, err)
	require.Len(t, anchors, 1)

	a := anchors[0]
	assert.Equal(t, "A1", a.AckID)
	assert.Equal(t, "ACME CO", a.EmployerName)
	assert.Equal(t, "123456789", a.EIN)
	assert.Equal(t, "501", a.PlanNum)
	assert.Equal(t, 2024, a.PlanYear)
	assert.Equal(t, "CA", a.SponsorState)
	assert.Equal(t, 400, a.Lives)
	assert.Equal(t, []model.FundingCode{model.FundingGenAsset}, a.FundingCodes)

	status, conf := a.FundingEstimate()
	assert.Equal(t, model.FundingLikelySelfFunded, status)
	assert.Equal(t, model.FundingConfMedium, conf)
}

func TestScan_RegionGate(t *testing.T) {
	csv := mainHeader +
		mainRow("A1", "OREGON CO", "1", "1", "OR", 400, "4A", "Health Plan", "0", "0", "1", "0") +
		mainRow("A2", "CAL CO", "2", "1", "CA", 400, "4A", "Health Plan", "0", "0", "1", "0")

	anchors, err := Scan(stream(t, csv), caFilter())
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, "A2", anchors[0].AckID)
}

func TestScan_SizeGateBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		lives int
		ins   string
		trust string
		ga    string
		want  bool
	}{
		{"49 filtered", 49, "0", "0", "1", false},
		{"50 admitted", 50, "0", "0", "1", true},
		{"999 fully insured filtered", 999, "1", "0", "0", false},
		{"1000 fully insured admitted", 1000, "1", "0", "0", true},
		{"999 insured plus trust admitted", 999, "1", "1", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := mainHeader +
				mainRow("A1", "ACME", "1", "1", "CA", tt.lives, "4A", "Health Plan", tt.ins, tt.trust, tt.ga, "0")
			anchors, err := Scan(stream(t, csv), caFilter())
			require.NoError(t, err)
			assert.Equal(t, tt.want, len(anchors) == 1)
		})
	}
}

func TestScan_WelfareGate(t *testing.T) {
	csv := mainHeader +
		mainRow("A1", "NO WELFARE", "1", "1", "CA", 400, "4B", "Dental Plan", "0", "0", "1", "0") +
		mainRow("A2", "RETIREMENT", "2", "1", "CA", 400, "4A", "Acme 401(k) Savings Plan", "0", "0", "1", "0") +
		mainRow("A3", "PENSIONERS", "3", "1", "CA", 400, "4A", "Defined Benefit Pension", "0", "0", "1", "0") +
		mainRow("A4", "KEEPER", "4", "1", "CA", 400, "4A4D", "Group Health Plan", "0", "0", "1", "0")

	anchors, err := Scan(stream(t, csv), caFilter())
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, "A4", anchors[0].AckID)
}

func TestScan_UnparseableLivesFiltered(t *testing.T) {
	csv := mainHeader +
		"A1,ACME,1,1,CA,not-a-number,4A,Health Plan,0,0,1,0,2024-01-01\n"
	anchors, err := Scan(stream(t, csv), caFilter())
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestScan_Caps(t *testing.T) {
	var b strings.Builder
	b.WriteString(mainHeader)
	for i := 0; i < 10; i++ {
		b.WriteString(mainRow(fmt.Sprintf("A%d", i), "ACME", "1", "1", "CA", 400, "4A", "Health Plan", "0", "0", "1", "0"))
	}

	f := caFilter()
	f.MaxAnchors = 3
	anchors, err := Scan(stream(t, b.String()), f)
	require.NoError(t, err)
	assert.Len(t, anchors, 3)

	f = caFilter()
	f.MaxRows = 5
	anchors, err = Scan(stream(t, b.String()), f)
	require.NoError(t, err)
	assert.Len(t, anchors, 5)
}

func TestScan_SchemaMismatch(t *testing.T) {
	// Welfare code column missing entirely.
	csv := "ACK_ID,SPONSOR_DFE_NAME,SPONS_DFE_MAIL_US_STATE,TOT_ACT_PARTCP_CNT\nA1,ACME,CA,400\n"
	_, err := Scan(stream(t, csv), caFilter())
	require.Error(t, err)
	var sm *ingest.SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Contains(t, sm.Observed, "ACK_ID")
}

func TestScan_EINZeroPadding(t *testing.T) {
	csv := mainHeader +
		mainRow("A1", "ACME", "1234567", "7", "CA", 400, "4A", "Health Plan", "0", "0", "1", "0")
	anchors, err := Scan(stream(t, csv), caFilter())
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, "001234567", anchors[0].EIN)
	assert.Equal(t, "007", anchors[0].PlanNum)
}

func TestScan_EmptyStateAdmittedWhenNoTargetSet(t *testing.T) {
	csv := mainHeader +
		mainRow("A1", "ACME", "1", "1", "", 400, "4A", "Health Plan", "0", "0", "1", "0")
	f := caFilter()
	f.TargetStates = nil
	anchors, err := Scan(stream(t, csv), f)
	require.NoError(t, err)
	assert.Len(t, anchors, 1)
	assert.Equal(t, "", anchors[0].SponsorState)
}
