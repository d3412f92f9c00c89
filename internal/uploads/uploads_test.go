package uploads

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_Roster(t *testing.T) {
	t.Parallel()
	kind, idx := Detect([][]string{
		{"Producer", "Account", "State"},
		{"Neil Parton", "Gallagher", "CA"},
	})
	assert.Equal(t, KindRoster, kind)
	assert.Equal(t, 0, idx)
}

func TestDetect_MarketMap(t *testing.T) {
	t.Parallel()
	kind, idx := Detect([][]string{
		{"Employer", "Broker"},
		{"ACME CO", "Gallagher"},
	})
	assert.Equal(t, KindMarketMap, kind)
	assert.Equal(t, 0, idx)
}

func TestDetect_MarketMapBeatsRosterOnAmbiguousHeader(t *testing.T) {
	t.Parallel()
	// BROKER appears in both keyword sets; the CLIENT column disambiguates.
	kind, _ := Detect([][]string{{"Client", "Broker"}})
	assert.Equal(t, KindMarketMap, kind)
}

func TestDetect_HeaderBelowPreamble(t *testing.T) {
	t.Parallel()
	rows := [][]string{
		{"Exported from CRM"},
		{""},
		{"Contact", "Agency"},
	}
	kind, idx := Detect(rows)
	assert.Equal(t, KindRoster, kind)
	assert.Equal(t, 2, idx)
}

func TestDetect_WindowCutoff(t *testing.T) {
	t.Parallel()
	var rows [][]string
	for i := 0; i < 50; i++ {
		rows = append(rows, []string{fmt.Sprintf("junk %d", i)})
	}
	rows = append(rows, []string{"Producer", "Account"})
	kind, _ := Detect(rows)
	assert.Equal(t, KindUnknown, kind)
}

func TestDetect_Unknown(t *testing.T) {
	t.Parallel()
	kind, idx := Detect([][]string{{"foo", "bar"}})
	assert.Equal(t, KindUnknown, kind)
	assert.Equal(t, -1, idx)
}

func TestParseRoster(t *testing.T) {
	t.Parallel()
	entries, err := ParseRoster([][]string{
		{"Producer", "Account", "City", "State", "Title"},
		{"Neil Parton", "Gallagher Benefit Services", "San Francisco", "CA", "Area President"},
		{"", "", "", "", ""},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Neil Parton", entries[0].PersonName)
	assert.Equal(t, "Gallagher Benefit Services", entries[0].Firm)
	assert.Equal(t, "Area President", entries[0].Role)
}

func TestParseRoster_MissingColumns(t *testing.T) {
	t.Parallel()
	_, err := ParseRoster([][]string{{"Producer", "City"}})
	assert.Error(t, err)
}

func TestParseMarketMap(t *testing.T) {
	t.Parallel()
	entries, err := ParseMarketMap([][]string{
		{"Client", "Broker"},
		{"ACME CO", "Gallagher"},
		{"ONLY EMPLOYER", ""},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ACME CO", entries[0].Employer)
	assert.Equal(t, "Gallagher", entries[0].Firm)
}

func TestSniff_CSV(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "targets.csv")
	content := "note row\nEmployer,Broker\nACME CO,Gallagher\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	kind, rows, err := Sniff(path)
	require.NoError(t, err)
	assert.Equal(t, KindMarketMap, kind)
	// Rows start at the detected header.
	require.NotEmpty(t, rows)
	assert.Equal(t, "Employer", rows[0][0])
}

func TestSniff_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	_, _, err := Sniff("targets.tsv")
	assert.Error(t, err)
}
