package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

// SQLiteLedger backs the ledger with modernc.org/sqlite for single-host
// multi-operator deployments.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens the ledger database and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS allocations (
	lead_id        TEXT PRIMARY KEY,
	broker_user_id TEXT NOT NULL,
	sponsor        TEXT NOT NULL,
	allocated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_allocations_broker ON allocations(broker_user_id);
`

func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "ledger: migrate sqlite")
}

func (l *SQLiteLedger) Claim(ctx context.Context, row model.AllocationRow) (bool, error) {
	at := row.AllocatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO allocations (lead_id, broker_user_id, sponsor, allocated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lead_id) DO NOTHING`,
		row.LeadID, row.BrokerUserID, row.Sponsor, at,
	)
	if err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return false, ErrLedgerBusy
		}
		return false, eris.Wrapf(err, "ledger: claim %s", row.LeadID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "ledger: rows affected")
	}
	return n == 1, nil
}

func (l *SQLiteLedger) Stats(ctx context.Context) (Stats, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT broker_user_id, COUNT(*) FROM allocations GROUP BY broker_user_id`,
	)
	if err != nil {
		return Stats{}, eris.Wrap(err, "ledger: stats")
	}
	defer rows.Close() //nolint:errcheck

	stats := Stats{ByBroker: make(map[string]int)}
	for rows.Next() {
		var broker string
		var n int
		if err := rows.Scan(&broker, &n); err != nil {
			return Stats{}, eris.Wrap(err, "ledger: scan stats")
		}
		stats.ByBroker[broker] = n
		stats.Total += n
	}
	return stats, eris.Wrap(rows.Err(), "ledger: stats iterate")
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
