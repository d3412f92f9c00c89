package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

func allocation(leadID string) model.AllocationRow {
	return model.AllocationRow{
		LeadID:       leadID,
		BrokerUserID: "broker-7",
		Sponsor:      "ACME MANUFACTURING",
		AllocatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileLedger_ClaimOnce(t *testing.T) {
	t.Parallel()
	l := NewFile(filepath.Join(t.TempDir(), "ledger.csv"), FileOptions{})

	ok, err := l.Claim(context.Background(), allocation("lead-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(context.Background(), allocation("lead-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Claim(context.Background(), allocation("lead-2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileLedger_ClaimSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ledger.csv")

	first := NewFile(path, FileOptions{})
	ok, err := first.Claim(context.Background(), allocation("lead-1"))
	require.NoError(t, err)
	require.True(t, ok)

	second := NewFile(path, FileOptions{})
	ok, err = second.Claim(context.Background(), allocation("lead-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileLedger_ConcurrentClaimsSingleWinner(t *testing.T) {
	t.Parallel()
	l := NewFile(filepath.Join(t.TempDir(), "ledger.csv"), FileOptions{})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Claim(context.Background(), allocation("lead-contested"))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestFileLedger_BusyWhenLocked(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.csv")
	require.NoError(t, os.WriteFile(path+".lock", []byte("12345\n"), 0o644))

	l := NewFile(path, FileOptions{LockTimeout: 250 * time.Millisecond, LockStale: time.Hour})
	_, err := l.Claim(context.Background(), allocation("lead-1"))
	assert.True(t, errors.Is(err, ErrLedgerBusy))
}

func TestFileLedger_BreaksStaleLock(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.csv")
	lockPath := path + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("12345\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	l := NewFile(path, FileOptions{LockTimeout: 2 * time.Second, LockStale: time.Minute})
	ok, err := l.Claim(context.Background(), allocation("lead-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFileLedger_Stats(t *testing.T) {
	t.Parallel()
	l := NewFile(filepath.Join(t.TempDir(), "ledger.csv"), FileOptions{})

	rowA := allocation("lead-1")
	rowB := allocation("lead-2")
	rowC := allocation("lead-3")
	rowC.BrokerUserID = "broker-9"
	for _, row := range []model.AllocationRow{rowA, rowB, rowC} {
		ok, err := l.Claim(context.Background(), row)
		require.NoError(t, err)
		require.True(t, ok)
	}

	stats, err := l.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByBroker["broker-7"])
	assert.Equal(t, 1, stats.ByBroker["broker-9"])
}

func TestQuota(t *testing.T) {
	t.Parallel()

	q := NewQuota(0)
	assert.True(t, q.Admit("ACME", "GALLAGHER"))
	assert.True(t, q.Admit("ACME", "GALLAGHER"))
	// Third person for the same sponsor is refused.
	assert.False(t, q.Admit("ACME", "GALLAGHER"))

	// Five sponsors per firm; a sixth is refused, an existing one is not.
	for _, sponsor := range []string{"S2", "S3", "S4", "S5"} {
		assert.True(t, q.Admit(sponsor, "GALLAGHER"))
	}
	assert.False(t, q.Admit("S6", "GALLAGHER"))
	assert.True(t, q.Admit("S2", "GALLAGHER"))

	// Another firm starts fresh.
	assert.True(t, q.Admit("S6", "LOCKTON"))
}

func TestQuota_TargetYield(t *testing.T) {
	t.Parallel()
	q := NewQuota(2)
	assert.True(t, q.Admit("A", "GALLAGHER"))
	assert.False(t, q.Filled())
	assert.True(t, q.Admit("B", "LOCKTON"))
	assert.True(t, q.Filled())
	assert.False(t, q.Admit("C", "MERCER"))
	assert.Equal(t, 2, q.Committed())
}
