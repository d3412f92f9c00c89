package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

const (
	defaultLockTimeout = 10 * time.Second
	defaultLockStale   = 10 * time.Minute
	lockPollInterval   = 100 * time.Millisecond
)

// FileOptions tunes the file backend's locking.
type FileOptions struct {
	// LockTimeout bounds how long a claim waits for the lock before giving
	// up with ErrLedgerBusy.
	LockTimeout time.Duration
	// LockStale is the age past which a leftover lock from a dead process
	// is broken.
	LockStale time.Duration
}

// FileLedger is the CSV-file ledger backend. Cross-process exclusion uses a
// sidecar lock file; every claim re-reads the ledger under the lock.
type FileLedger struct {
	path     string
	lockPath string
	timeout  time.Duration
	stale    time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewFile creates a file ledger at path. The file is created on first claim.
func NewFile(path string, opts FileOptions) *FileLedger {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.LockStale <= 0 {
		opts.LockStale = defaultLockStale
	}
	return &FileLedger{
		path:     path,
		lockPath: path + ".lock",
		timeout:  opts.LockTimeout,
		stale:    opts.LockStale,
		now:      time.Now,
	}
}

func (l *FileLedger) Claim(ctx context.Context, row model.AllocationRow) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.acquireLock(ctx); err != nil {
		return false, err
	}
	defer l.releaseLock()

	claimed, err := l.readIDs()
	if err != nil {
		return false, err
	}
	if claimed[row.LeadID] {
		return false, nil
	}
	if err := l.appendRow(row); err != nil {
		return false, err
	}
	return true, nil
}

func (l *FileLedger) Stats(ctx context.Context) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.readRows()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByBroker: make(map[string]int)}
	for _, r := range rows {
		stats.Total++
		stats.ByBroker[r.BrokerUserID]++
	}
	return stats, nil
}

func (l *FileLedger) Close() error { return nil }

// acquireLock creates the sidecar lock file exclusively, breaking stale
// locks and polling until the timeout.
func (l *FileLedger) acquireLock(ctx context.Context) error {
	deadline := l.now().Add(l.timeout)
	for {
		f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			return f.Close()
		}
		if !os.IsExist(err) {
			return eris.Wrapf(err, "ledger: create lock %s", l.lockPath)
		}

		if info, serr := os.Stat(l.lockPath); serr == nil && l.now().Sub(info.ModTime()) > l.stale {
			zap.L().Warn("ledger: breaking stale lock",
				zap.String("path", l.lockPath),
				zap.Time("mtime", info.ModTime()),
			)
			_ = os.Remove(l.lockPath)
			continue
		}

		if l.now().After(deadline) {
			return ErrLedgerBusy
		}
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "ledger: lock wait")
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *FileLedger) releaseLock() {
	if err := os.Remove(l.lockPath); err != nil {
		zap.L().Error("ledger: release lock", zap.Error(err))
	}
}

func (l *FileLedger) readIDs() (map[string]bool, error) {
	rows, err := l.readRows()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		ids[r.LeadID] = true
	}
	return ids, nil
}

func (l *FileLedger) readRows() ([]model.AllocationRow, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: open %s", l.path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows []model.AllocationRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: read %s", l.path)
		}
		if len(rec) < 4 {
			continue
		}
		at, _ := time.Parse(time.RFC3339, rec[2])
		rows = append(rows, model.AllocationRow{
			LeadID:       rec[0],
			BrokerUserID: rec[1],
			AllocatedAt:  at,
			Sponsor:      rec[3],
		})
	}
	return rows, nil
}

// appendRow appends one record and fsyncs before releasing the lock.
func (l *FileLedger) appendRow(row model.AllocationRow) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s for append", l.path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	at := row.AllocatedAt
	if at.IsZero() {
		at = l.now().UTC()
	}
	if err := w.Write([]string{row.LeadID, row.BrokerUserID, at.UTC().Format(time.RFC3339), row.Sponsor}); err != nil {
		return eris.Wrap(err, "ledger: write row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "ledger: flush row")
	}
	return eris.Wrap(f.Sync(), "ledger: sync")
}
