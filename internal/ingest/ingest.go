// Package ingest stream-decodes regulatory filing CSVs out of compressed
// archives. Header rows drift by vendor and year, so the header is located
// heuristically by category keyword sets, and the file encoding is decided
// once from the header block.
package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Category selects which filing table a stream is expected to contain.
type Category string

const (
	// CategoryMain is the main Form 5500 filing table.
	CategoryMain Category = "main"
	// CategoryCommission is the broker-commission table (Schedule A).
	CategoryCommission Category = "commission"
	// CategoryFee is the service-provider fee table (Schedule C).
	CategoryFee Category = "fee"
)

// Sentinel errors surfaced to the operator. Both are fatal to the stage.
var (
	ErrHeaderNotFound = eris.New("ingest: header not found in first 50 rows")
	ErrNoCSVEntry     = eris.New("ingest: no csv entry in archive")
)

// SchemaMismatchError reports a header that was found but is missing a
// column the caller's category requires. The observed header is carried so
// the operator can extend the keyword set.
type SchemaMismatchError struct {
	Missing  string
	Observed []string
}

func (e *SchemaMismatchError) Error() string {
	return "ingest: schema mismatch: missing column " + e.Missing +
		" (observed header: " + strings.Join(e.Observed, ", ") + ")"
}

// headerRowLimit bounds the heuristic header scan.
const headerRowLimit = 50

// isHeader reports whether the uppercase-stripped cells of row satisfy the
// category's keyword rule.
func isHeader(category Category, row []string) bool {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	contains := func(sub string) bool {
		for _, c := range cells {
			if strings.Contains(c, sub) {
				return true
			}
		}
		return false
	}
	exact := func(name string) bool {
		for _, c := range cells {
			if c == name {
				return true
			}
		}
		return false
	}

	switch category {
	case CategoryMain:
		return contains("STATE")
	case CategoryCommission:
		return exact("ACK_ID") && (contains("BROKER") || contains("FIRM") || contains("AGENT"))
	case CategoryFee:
		return contains("SERVICE_CODE") || contains("PROVIDER_NAME")
	default:
		return false
	}
}
