// Package uploads classifies operator-uploaded target tables and parses them
// into roster entries or employer-to-broker market maps.
package uploads

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/fetcher"
	"github.com/benefitscout/leadgen-cli/internal/roster"
)

// Kind is the detected upload type.
type Kind string

const (
	KindRoster    Kind = "ROSTER"
	KindMarketMap Kind = "MARKET_MAP"
	KindUnknown   Kind = "UNKNOWN"
)

// detectWindow is how many leading rows are scanned for a recognizable header.
const detectWindow = 50

// MarketMapEntry ties an employer to the broker the operator believes holds
// the account.
type MarketMapEntry struct {
	Employer string
	Firm     string
}

var (
	rosterNameKeys = []string{"NAME", "PRODUCER", "BROKER", "CONTACT"}
	rosterFirmKeys = []string{"ACCOUNT", "FIRM", "AGENCY"}

	mapEmployerKeys = []string{"EMPLOYER", "CLIENT", "COMPANY", "SPONSOR"}
	mapBrokerKeys   = []string{"BROKER", "FIRM", "AGENCY"}
)

// Detect scans the leading rows for a header matching either type. A
// market-map header needs an employer-side keyword, so it is checked first;
// a row matching neither leaves the file UNKNOWN.
func Detect(rows [][]string) (Kind, int) {
	limit := len(rows)
	if limit > detectWindow {
		limit = detectWindow
	}
	for i := 0; i < limit; i++ {
		cells := upperCells(rows[i])
		if hasAny(cells, mapEmployerKeys) && hasAny(cells, mapBrokerKeys) {
			return KindMarketMap, i
		}
		if hasAny(cells, rosterNameKeys) && hasAny(cells, rosterFirmKeys) {
			return KindRoster, i
		}
	}
	return KindUnknown, -1
}

// Sniff reads an uploaded CSV or XLSX file and classifies it.
func Sniff(path string) (Kind, [][]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = fetcher.ReadCSVFile(path)
	case ".xlsx":
		rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	default:
		return KindUnknown, nil, eris.Errorf("uploads: unsupported file type %s", path)
	}
	if err != nil {
		return KindUnknown, nil, err
	}
	kind, headerIdx := Detect(rows)
	zap.L().Info("upload classified",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.Int("header_row", headerIdx),
	)
	if kind == KindUnknown {
		return kind, rows, nil
	}
	return kind, rows[headerIdx:], nil
}

// ParseRoster converts classified rows into roster entries.
func ParseRoster(rows [][]string) ([]roster.Entry, error) {
	if len(rows) == 0 {
		return nil, eris.New("uploads: empty roster table")
	}
	header := upperCells(rows[0])
	nameIdx := firstMatch(header, rosterNameKeys)
	firmIdx := firstMatch(header, rosterFirmKeys)
	if nameIdx < 0 || firmIdx < 0 {
		return nil, eris.Errorf("uploads: roster header lacks name or firm column: %v", rows[0])
	}
	cityIdx := firstMatch(header, []string{"CITY"})
	stateIdx := firstMatch(header, []string{"STATE", "REGION"})
	roleIdx := firstMatch(header, []string{"ROLE", "TITLE"})

	var entries []roster.Entry
	for _, row := range rows[1:] {
		e := roster.Entry{
			PersonName: cell(row, nameIdx),
			Firm:       cell(row, firmIdx),
			City:       cell(row, cityIdx),
			State:      cell(row, stateIdx),
			Role:       cell(row, roleIdx),
		}
		if e.PersonName == "" && e.Firm == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseMarketMap converts classified rows into employer-to-broker entries.
func ParseMarketMap(rows [][]string) ([]MarketMapEntry, error) {
	if len(rows) == 0 {
		return nil, eris.New("uploads: empty market map table")
	}
	header := upperCells(rows[0])
	employerIdx := firstMatch(header, mapEmployerKeys)
	brokerIdx := firstMatch(header, mapBrokerKeys)
	if employerIdx < 0 || brokerIdx < 0 {
		return nil, eris.Errorf("uploads: market map header lacks employer or broker column: %v", rows[0])
	}

	var entries []MarketMapEntry
	for _, row := range rows[1:] {
		e := MarketMapEntry{
			Employer: cell(row, employerIdx),
			Firm:     cell(row, brokerIdx),
		}
		if e.Employer == "" || e.Firm == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func upperCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	return out
}

func hasAny(cells []string, keys []string) bool {
	return firstMatch(cells, keys) >= 0
}

func firstMatch(cells []string, keys []string) int {
	for _, k := range keys {
		for i, c := range cells {
			if strings.Contains(c, k) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
