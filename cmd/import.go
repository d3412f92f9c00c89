package main

import (
	"encoding/csv"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/uploads"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an uploaded roster or market-map table",
	Long:  "Classifies an uploaded CSV or XLSX file. Rosters are normalized into the configured roster file; market maps mark their employers as existing clients in the suppression list.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, rows, err := uploads.Sniff(importFilePath)
		if err != nil {
			return err
		}

		switch kind {
		case uploads.KindRoster:
			entries, err := uploads.ParseRoster(rows)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return eris.Wrap(err, "import: marshal roster")
			}
			if err := os.WriteFile(cfg.Roster.Path, data, 0o644); err != nil {
				return eris.Wrap(err, "import: write roster")
			}
			zap.L().Info("roster imported",
				zap.String("from", importFilePath),
				zap.String("to", cfg.Roster.Path),
				zap.Int("entries", len(entries)),
			)

		case uploads.KindMarketMap:
			entries, err := uploads.ParseMarketMap(rows)
			if err != nil {
				return err
			}
			if err := appendClientSuppression(cfg.Suppress.ClientPath, entries); err != nil {
				return err
			}
			zap.L().Info("market map imported as client suppression",
				zap.String("from", importFilePath),
				zap.String("to", cfg.Suppress.ClientPath),
				zap.Int("employers", len(entries)),
			)

		default:
			return eris.Errorf("import: %s matches neither a roster nor a market map", importFilePath)
		}
		return nil
	},
}

// appendClientSuppression adds market-map employers to the client
// suppression CSV, creating it with a header when missing.
func appendClientSuppression(path string, entries []uploads.MarketMapEntry) error {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "import: open suppression list")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write([]string{"Client Name", "Broker"}); err != nil {
			return eris.Wrap(err, "import: write suppression header")
		}
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Employer, e.Firm}); err != nil {
			return eris.Wrap(err, "import: write suppression row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "import: flush suppression list")
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to the uploaded CSV or XLSX file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
