package fetcher

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"
)

// ReadCSVFile reads an entire uploaded CSV table into memory. Uploaded
// rosters and suppression lists are small; the regulatory archives go through
// the streaming ingest path instead.
func ReadCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read csv %s", path)
	}
	return rows, nil
}
