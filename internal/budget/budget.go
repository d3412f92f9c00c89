// Package budget enforces the per-run paid-API credit cap.
package budget

import (
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/diag"
)

// ErrBudgetCap is returned when a reservation would push spend past the cap.
var ErrBudgetCap = eris.New("budget: credit cap reached")

// Counter tracks paid-API credits for one run. Callers reserve an estimate
// before a call and commit what the provider actually charged afterward.
type Counter struct {
	mu         sync.Mutex
	cap        int
	spent      int
	skipped    int
	byProvider map[string]int
	diag       *diag.Emitter
}

// NewCounter creates a counter with the given credit cap. Cap 0 means no
// paid calls at all.
func NewCounter(creditCap int, d *diag.Emitter) *Counter {
	return &Counter{
		cap:        creditCap,
		byProvider: make(map[string]int),
		diag:       d,
	}
}

// Reserve checks whether an estimated-cost call fits under the cap. On
// refusal it emits a BUDGET_CAP diagnostic and returns ErrBudgetCap; the
// caller skips the call and continues with the evidence it already has.
func (c *Counter) Reserve(stage, provider string, estimated int) error {
	if estimated <= 0 {
		estimated = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spent+estimated > c.cap {
		c.skipped++
		c.diag.Emit(stage, diag.BudgetCap,
			fmt.Sprintf("%s call for %d credits refused at %d/%d spent", provider, estimated, c.spent, c.cap))
		return ErrBudgetCap
	}
	return nil
}

// Commit records what the provider actually charged for a completed call.
// Zero or negative charges count as one credit.
func (c *Counter) Commit(provider string, actual int) {
	if actual <= 0 {
		actual = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spent += actual
	c.byProvider[provider] += actual
	if c.spent > c.cap {
		zap.L().Warn("budget: provider charged past the cap",
			zap.String("provider", provider),
			zap.Int("spent", c.spent),
			zap.Int("cap", c.cap),
		)
	}
}

// Spent returns total credits charged so far.
func (c *Counter) Spent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent
}

// Remaining returns credits left under the cap, never negative.
func (c *Counter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spent >= c.cap {
		return 0
	}
	return c.cap - c.spent
}

// Skipped returns how many paid calls were refused.
func (c *Counter) Skipped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// ByProvider returns a copy of the per-provider spend.
func (c *Counter) ByProvider() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.byProvider))
	for k, v := range c.byProvider {
		out[k] = v
	}
	return out
}
