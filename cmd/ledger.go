package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/benefitscout/leadgen-cli/internal/ledger"
)

// initLedger opens the configured allocation ledger backend, running
// migrations for the database backends.
func initLedger(ctx context.Context) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case "file", "":
		return ledger.NewFile(cfg.Ledger.Path, ledger.FileOptions{}), nil

	case "sqlite":
		l, err := ledger.NewSQLite(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		if err := l.Migrate(ctx); err != nil {
			_ = l.Close()
			return nil, err
		}
		return l, nil

	case "postgres":
		l, err := ledger.NewPostgres(ctx, cfg.Ledger.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := l.Migrate(ctx); err != nil {
			_ = l.Close()
			return nil, err
		}
		return l, nil

	default:
		return nil, eris.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the allocation ledger",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print allocation counts by broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		led, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer led.Close() //nolint:errcheck

		stats, err := led.Stats(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerStatsCmd)
	rootCmd.AddCommand(ledgerCmd)
}
