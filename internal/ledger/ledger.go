// Package ledger is the global allocation ledger: one claim per lead across
// every operator and run. Backends share claim-once semantics; the file
// backend is the default, sqlite and postgres serve shared deployments.
package ledger

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

// ErrLedgerBusy means the ledger could not be locked within the claim
// timeout. The lead stays unclaimed and may be retried next run.
var ErrLedgerBusy = eris.New("ledger: busy")

// Ledger records lead allocations.
type Ledger interface {
	// Claim atomically allocates a lead. Returns false when the lead id is
	// already claimed, by anyone, ever.
	Claim(ctx context.Context, row model.AllocationRow) (bool, error)
	// Stats summarizes the ledger contents.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats is a ledger summary.
type Stats struct {
	Total    int            `json:"total"`
	ByBroker map[string]int `json:"by_broker"`
}

// Quota enforces the run-local allocation limits: at most two persons per
// sponsor, at most five sponsors per firm, and an optional overall target
// yield. Quota state never leaves the run.
type Quota struct {
	maxPersonsPerSponsor int
	maxSponsorsPerFirm   int
	targetYield          int

	committed    int
	perSponsor   map[string]int
	firmSponsors map[string]map[string]bool
}

const (
	defaultPersonsPerSponsor = 2
	defaultSponsorsPerFirm   = 5
)

// NewQuota creates a quota tracker. targetYield <= 0 means unlimited.
func NewQuota(targetYield int) *Quota {
	return &Quota{
		maxPersonsPerSponsor: defaultPersonsPerSponsor,
		maxSponsorsPerFirm:   defaultSponsorsPerFirm,
		targetYield:          targetYield,
		perSponsor:           make(map[string]int),
		firmSponsors:         make(map[string]map[string]bool),
	}
}

// WithLimits overrides the per-sponsor and per-firm caps. Non-positive
// values keep the defaults.
func (q *Quota) WithLimits(personsPerSponsor, sponsorsPerFirm int) *Quota {
	if personsPerSponsor > 0 {
		q.maxPersonsPerSponsor = personsPerSponsor
	}
	if sponsorsPerFirm > 0 {
		q.maxSponsorsPerFirm = sponsorsPerFirm
	}
	return q
}

// Admit reserves a slot for one (sponsor, firm) allocation and records it.
// Returns false without recording when any limit is already reached.
func (q *Quota) Admit(sponsor, firm string) bool {
	if q.Filled() {
		return false
	}
	if q.perSponsor[sponsor] >= q.maxPersonsPerSponsor {
		return false
	}
	sponsors := q.firmSponsors[firm]
	if !sponsors[sponsor] && len(sponsors) >= q.maxSponsorsPerFirm {
		return false
	}

	q.perSponsor[sponsor]++
	if sponsors == nil {
		sponsors = make(map[string]bool)
		q.firmSponsors[firm] = sponsors
	}
	sponsors[sponsor] = true
	q.committed++
	return true
}

// Filled reports whether the target yield has been reached.
func (q *Quota) Filled() bool {
	return q.targetYield > 0 && q.committed >= q.targetYield
}

// Committed returns the number of admitted allocations this run.
func (q *Quota) Committed() int {
	return q.committed
}
