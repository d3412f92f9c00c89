package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/attribute"
	"github.com/benefitscout/leadgen-cli/internal/budget"
	"github.com/benefitscout/leadgen-cli/internal/cache"
	"github.com/benefitscout/leadgen-cli/internal/diag"
	"github.com/benefitscout/leadgen-cli/internal/firm"
	"github.com/benefitscout/leadgen-cli/internal/ledger"
	"github.com/benefitscout/leadgen-cli/internal/pipeline"
	"github.com/benefitscout/leadgen-cli/internal/roster"
	"github.com/benefitscout/leadgen-cli/internal/score"
	"github.com/benefitscout/leadgen-cli/internal/suppress"
	"github.com/benefitscout/leadgen-cli/pkg/peopledata"
	"github.com/benefitscout/leadgen-cli/pkg/serp"
)

var (
	runBrokerID      string
	runTargetYield   int
	runBudgetCredits int
	runRegion        []string
	runYear          int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full triangulation pass for one plan year",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		states := runRegion
		if len(states) == 0 {
			states = cfg.Anchor.TargetStates
		}
		territory := make(map[string]bool, len(states))
		for i, st := range states {
			states[i] = strings.ToUpper(strings.TrimSpace(st))
			territory[states[i]] = true
		}
		cfg.Anchor.TargetStates = states

		firms, err := loadFirms()
		if err != nil {
			return err
		}
		ro, err := loadRoster(firms)
		if err != nil {
			return err
		}
		sup, err := loadSuppress()
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Data.ArtifactDir, 0o755); err != nil {
			return eris.Wrap(err, "create artifact dir")
		}
		d, err := diag.NewFile(filepath.Join(cfg.Data.ArtifactDir, fmt.Sprintf("diag_%d.ndjson", runYear)))
		if err != nil {
			return err
		}
		defer d.Close() //nolint:errcheck

		credits := cfg.Budget.Credits
		if runBudgetCredits >= 0 {
			credits = runBudgetCredits
		}
		b := budget.NewCounter(credits, d)

		store, err := cache.NewStore(cfg.Cache.Dir)
		if err != nil {
			return err
		}

		sc := serp.NewClient(cfg.Serp.Key, serp.WithBaseURL(cfg.Serp.BaseURL))
		pc := peopledata.NewClient(cfg.PeopleData.Key, peopledata.WithBaseURL(cfg.PeopleData.BaseURL))

		resolver, err := attribute.NewResolver(ro, firms, sc, pc, b, store, d, territory)
		if err != nil {
			return err
		}

		led, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer led.Close() //nolint:errcheck

		quota := ledger.NewQuota(runTargetYield).
			WithLimits(cfg.Quota.PersonsPerSponsor, cfg.Quota.SponsorsPerFirm)

		p := pipeline.New(pipeline.Options{
			Config:       cfg,
			Archives:     archivePaths(cfg.Data.Dir, runYear),
			Firms:        firms,
			Resolver:     resolver,
			Scorer:       score.New(territory),
			Suppress:     sup,
			Ledger:       led,
			Quota:        quota,
			Budget:       b,
			Diag:         d,
			BrokerUserID: runBrokerID,
			PlanYear:     runYear,
		})

		leads, summary, err := p.Run(ctx)
		if err != nil {
			return err
		}

		artifactPath := filepath.Join(cfg.Data.ArtifactDir, fmt.Sprintf("leads_%d.csv", runYear))
		if err := pipeline.WriteArtifact(artifactPath, leads); err != nil {
			return err
		}

		// A run that burned every paid attempt on transport failures without
		// spending a single credit is a provider outage, not a clean finish.
		if summary.BudgetSpent == 0 && d.Count(diag.Transport) > 0 {
			return eris.Wrapf(errBudgetUnderflow, "%d transport failures", d.Count(diag.Transport))
		}

		zap.L().Info("run complete",
			zap.String("artifact", artifactPath),
			zap.Int("leads", summary.Leads),
			zap.Int("committed", summary.Committed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func loadFirms() (*firm.Normalizer, error) {
	if _, err := os.Stat(cfg.Firms.AliasPath); err == nil {
		return firm.LoadAliases(cfg.Firms.AliasPath)
	}
	return firm.NewNormalizer(firm.DefaultFirms()), nil
}

func loadRoster(firms *firm.Normalizer) (*roster.Index, error) {
	if _, err := os.Stat(cfg.Roster.Path); err != nil {
		zap.L().Warn("roster file missing, roster stage will not match",
			zap.String("path", cfg.Roster.Path),
		)
		return roster.New(nil, firms, cfg.Roster.FuzzyThreshold), nil
	}
	return roster.Load(cfg.Roster.Path, firms, cfg.Roster.FuzzyThreshold)
}

func loadSuppress() (*suppress.List, error) {
	l := suppress.NewList()
	if _, err := os.Stat(cfg.Suppress.ClientPath); err == nil {
		if err := l.LoadClients(cfg.Suppress.ClientPath); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(cfg.Suppress.DNCPath); err == nil {
		if err := l.LoadDNC(cfg.Suppress.DNCPath); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func init() {
	runCmd.Flags().StringVar(&runBrokerID, "broker-id", "", "broker user id claiming the allocations (required)")
	runCmd.Flags().IntVar(&runTargetYield, "target-yield", 0, "stop committing after this many leads (0 = unlimited)")
	runCmd.Flags().IntVar(&runBudgetCredits, "budget-credits", -1, "paid-API credit cap (default from config)")
	runCmd.Flags().StringSliceVar(&runRegion, "region", nil, "target states (default from config)")
	runCmd.Flags().IntVar(&runYear, "year", 2023, "plan year of the filing archives")
	_ = runCmd.MarkFlagRequired("broker-id")
	rootCmd.AddCommand(runCmd)
}
