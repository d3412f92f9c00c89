// Package pipeline orchestrates a full triangulation run: ingest, anchor,
// join, attribution, scoring, and the allocation commit, producing the lead
// artifact and diagnostics stream.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/anchor"
	"github.com/benefitscout/leadgen-cli/internal/attribute"
	"github.com/benefitscout/leadgen-cli/internal/budget"
	"github.com/benefitscout/leadgen-cli/internal/config"
	"github.com/benefitscout/leadgen-cli/internal/diag"
	"github.com/benefitscout/leadgen-cli/internal/firm"
	"github.com/benefitscout/leadgen-cli/internal/ingest"
	"github.com/benefitscout/leadgen-cli/internal/join"
	"github.com/benefitscout/leadgen-cli/internal/ledger"
	"github.com/benefitscout/leadgen-cli/internal/model"
	"github.com/benefitscout/leadgen-cli/internal/score"
	"github.com/benefitscout/leadgen-cli/internal/suppress"
)

// Archives locates the three filing tables for one plan year.
type Archives struct {
	Main       string
	Commission string
	Fee        string
}

// Options wires a pipeline together.
type Options struct {
	Config       *config.Config
	Archives     Archives
	Firms        *firm.Normalizer
	Resolver     *attribute.Resolver
	Scorer       *score.Scorer
	Suppress     *suppress.List
	Ledger       ledger.Ledger
	Quota        *ledger.Quota
	Budget       *budget.Counter
	Diag         *diag.Emitter
	BrokerUserID string
	PlanYear     int
}

// Summary reports what a run produced.
type Summary struct {
	RunID         string `json:"run_id"`
	Anchors       int    `json:"anchors"`
	Links         int    `json:"links"`
	Leads         int    `json:"leads"`
	Committed     int    `json:"committed"`
	Suppressed    int    `json:"suppressed"`
	BudgetSpent   int    `json:"budget_spent"`
	BudgetSkipped int    `json:"budget_skipped"`
}

// Pipeline runs the triangulation stages in order.
type Pipeline struct {
	opts  Options
	runID string
	now   func() time.Time
}

// New creates a pipeline with a fresh run id.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts, runID: uuid.NewString(), now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (p *Pipeline) WithNow(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run executes the full pipeline and returns the scored, committed leads in
// output order alongside the run summary.
func (p *Pipeline) Run(ctx context.Context) ([]model.LeadCandidate, *Summary, error) {
	summary := &Summary{RunID: p.runID}
	p.opts.Diag.WithRun(p.runID)

	anchors, err := p.scanAnchors()
	if err != nil {
		return nil, summary, err
	}
	summary.Anchors = len(anchors)

	links, err := p.joinFilings(anchors)
	if err != nil {
		return nil, summary, err
	}
	for _, ls := range links.Links {
		summary.Links += len(ls)
	}

	leads := p.buildLeads(ctx, anchors, links, summary)
	score.Sort(leads)
	summary.Leads = len(leads)

	p.commit(ctx, leads, summary)

	summary.BudgetSpent = p.opts.Budget.Spent()
	summary.BudgetSkipped = p.opts.Budget.Skipped()

	zap.L().Info("pipeline run complete",
		zap.String("run_id", p.runID),
		zap.Int("anchors", summary.Anchors),
		zap.Int("links", summary.Links),
		zap.Int("leads", summary.Leads),
		zap.Int("committed", summary.Committed),
		zap.Int("suppressed", summary.Suppressed),
		zap.Int("budget_spent", summary.BudgetSpent),
	)
	return leads, summary, nil
}

func (p *Pipeline) scanAnchors() ([]model.FilingAnchor, error) {
	s, err := ingest.Open(p.opts.Archives.Main, ingest.CategoryMain, p.opts.Diag)
	if err != nil {
		return nil, err
	}
	defer s.Close() //nolint:errcheck

	cfg := p.opts.Config.Anchor
	states := make(map[string]bool, len(cfg.TargetStates))
	for _, st := range cfg.TargetStates {
		states[st] = true
	}
	return anchor.Scan(s, anchor.Filter{
		TargetStates:    states,
		WelfareCode:     cfg.WelfareCode,
		MinLives:        cfg.MinLives,
		MinLivesInsured: cfg.MinLivesInsured,
		MaxAnchors:      cfg.MaxAnchors,
		MaxRows:         cfg.MaxRows,
		PlanYear:        p.opts.PlanYear,
	})
}

func (p *Pipeline) joinFilings(anchors []model.FilingAnchor) (*join.Result, error) {
	result := join.NewResult()

	cs, err := ingest.Open(p.opts.Archives.Commission, ingest.CategoryCommission, p.opts.Diag)
	if err != nil {
		return nil, err
	}
	defer cs.Close() //nolint:errcheck
	if err := join.CommissionPass(cs, anchors, result); err != nil {
		return nil, err
	}

	fs, err := ingest.Open(p.opts.Archives.Fee, ingest.CategoryFee, p.opts.Diag)
	if err != nil {
		return nil, err
	}
	defer fs.Close() //nolint:errcheck
	if err := join.FeePass(fs, anchors, result); err != nil {
		return nil, err
	}
	return result, nil
}

// buildLeads runs attribution and scoring over every (anchor, link) pair.
// Suppressed sponsors are dropped before any paid call.
func (p *Pipeline) buildLeads(ctx context.Context, anchors []model.FilingAnchor, links *join.Result, summary *Summary) []model.LeadCandidate {
	var leads []model.LeadCandidate
	for _, a := range anchors {
		if p.opts.Suppress != nil && p.opts.Suppress.BlockedClient(a.EmployerName) {
			summary.Suppressed++
			zap.L().Debug("pipeline: sponsor suppressed", zap.String("employer", a.EmployerName))
			continue
		}

		for _, link := range links.Links[a.AckID] {
			lead, ok := p.buildLead(ctx, a, link, links, summary)
			if !ok {
				continue
			}
			leads = append(leads, lead)
		}
	}
	return leads
}

func (p *Pipeline) buildLead(ctx context.Context, a model.FilingAnchor, link model.BrokerLink, links *join.Result, summary *Summary) (model.LeadCandidate, bool) {
	canonical, _ := p.opts.Firms.Canonical(link.RawFirmName)
	link.CanonicalFirm = canonical

	stopLoss := links.StopLossEINs[a.EIN]
	lead := model.LeadCandidate{
		Anchor:     a,
		BrokerLink: link,
		Liveness:   model.LivenessUnknown,
		Evidence:   p.filingEvidence(a, link, stopLoss),
		CreatedAt:  p.now().UTC(),
	}
	lead.FundingStatus, lead.FundingConfidence = a.FundingEstimate()
	if stopLoss {
		lead.FundingStatus = model.FundingSelfFunded
		lead.FundingConfidence = model.FundingConfHigh
	}

	cand := &attribute.Candidate{Liveness: model.LivenessUnknown}
	if canonical != "" {
		resolved, err := p.opts.Resolver.Resolve(ctx, a, link, canonical)
		if err != nil {
			zap.L().Warn("pipeline: attribution failed",
				zap.String("ack_id", a.AckID),
				zap.Error(err),
			)
		} else {
			cand = resolved
		}
	}
	lead.BrokerPerson = cand.Person
	lead.Liveness = cand.Liveness
	lead.Evidence = append(lead.Evidence, cand.Evidence...)

	if cand.Person != nil && p.opts.Suppress != nil && p.opts.Suppress.BlockedEmail(cand.Person.WorkEmail) {
		summary.Suppressed++
		zap.L().Debug("pipeline: contact suppressed", zap.String("employer", a.EmployerName))
		return model.LeadCandidate{}, false
	}

	linkedin := ""
	if cand.Person != nil {
		linkedin = cand.Person.LinkedInURL
	}
	lead.LeadID = model.LeadID(a.EmployerName, canonical, linkedin)

	p.opts.Scorer.Evaluate(&lead, cand)
	return lead, true
}

// commit claims ledger slots for eligible leads in output order until the
// quota fills.
func (p *Pipeline) commit(ctx context.Context, leads []model.LeadCandidate, summary *Summary) {
	for i := range leads {
		lead := &leads[i]
		if !commitEligible(lead) {
			continue
		}
		if p.opts.Quota.Filled() {
			break
		}
		if !p.opts.Quota.Admit(lead.Anchor.EmployerName, lead.BrokerLink.CanonicalFirm) {
			continue
		}

		ok, err := p.opts.Ledger.Claim(ctx, model.AllocationRow{
			LeadID:       lead.LeadID,
			BrokerUserID: p.opts.BrokerUserID,
			AllocatedAt:  p.now().UTC(),
			Sponsor:      lead.Anchor.EmployerName,
		})
		if err != nil {
			if errors.Is(err, ledger.ErrLedgerBusy) {
				p.opts.Diag.Emit("commit", diag.LedgerBusy, "claim timed out for "+lead.LeadID)
				continue
			}
			zap.L().Error("pipeline: ledger claim failed",
				zap.String("lead_id", lead.LeadID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			zap.L().Debug("pipeline: lead already claimed", zap.String("lead_id", lead.LeadID))
			continue
		}
		summary.Committed++
	}
}

// commitEligible is the allocation gate: a discard never commits, an
// out-of-territory lead never commits, and a firm-only lead commits only
// when the plan shows a self-funding signal.
func commitEligible(lead *model.LeadCandidate) bool {
	if lead.Tier == model.TierDiscard {
		return false
	}
	if lead.Territory == model.OutOfTerritory {
		return false
	}
	if lead.BrokerPerson == nil && lead.FundingStatus != model.FundingSelfFunded {
		return false
	}
	return true
}
