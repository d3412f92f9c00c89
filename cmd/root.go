package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/config"
	"github.com/benefitscout/leadgen-cli/internal/ingest"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadgen",
	Short: "Benefits-broker lead triangulation pipeline",
	Long:  "Ingests Form 5500 bulk filings, joins the broker commission and fee tables, resolves broker contacts through the roster and paid-API waterfall, scores leads, and commits them to the shared allocation ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

const (
	exitFailure      = 1
	exitSchema       = 2
	exitMissingInput = 3
	exitBudget       = 4
)

// errBudgetUnderflow marks a run where the paid providers were unreachable
// before any credit was usefully spent.
var errBudgetUnderflow = errors.New("paid providers unreachable before any useful work")

func exitCode(err error) int {
	var schemaErr *ingest.SchemaMismatchError
	switch {
	case errors.Is(err, ingest.ErrHeaderNotFound), errors.As(err, &schemaErr):
		return exitSchema
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ingest.ErrNoCSVEntry):
		return exitMissingInput
	case errors.Is(err, errBudgetUnderflow):
		return exitBudget
	default:
		return exitFailure
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
