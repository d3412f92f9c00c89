package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/benefitscout/leadgen-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the ledger needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresLedger backs the ledger with a shared postgres instance for
// multi-host deployments.
type PostgresLedger struct {
	pool Pool
}

// NewPostgres connects a postgres-backed ledger.
func NewPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: parse postgres config")
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ledger: ping")
	}
	return &PostgresLedger{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests.
func NewPostgresFromPool(pool Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS allocations (
	lead_id        TEXT PRIMARY KEY,
	broker_user_id TEXT NOT NULL,
	sponsor        TEXT NOT NULL,
	allocated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_allocations_broker ON allocations(broker_user_id);
`

func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "ledger: migrate postgres")
}

func (l *PostgresLedger) Claim(ctx context.Context, row model.AllocationRow) (bool, error) {
	at := row.AllocatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO allocations (lead_id, broker_user_id, sponsor, allocated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (lead_id) DO NOTHING`,
		row.LeadID, row.BrokerUserID, row.Sponsor, at,
	)
	if err != nil {
		return false, eris.Wrapf(err, "ledger: claim %s", row.LeadID)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PostgresLedger) Stats(ctx context.Context) (Stats, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT broker_user_id, COUNT(*) FROM allocations GROUP BY broker_user_id`,
	)
	if err != nil {
		return Stats{}, eris.Wrap(err, "ledger: stats")
	}
	defer rows.Close()

	stats := Stats{ByBroker: make(map[string]int)}
	for rows.Next() {
		var broker string
		var n int64
		if err := rows.Scan(&broker, &n); err != nil {
			return Stats{}, eris.Wrap(err, "ledger: scan stats")
		}
		stats.ByBroker[broker] = int(n)
		stats.Total += int(n)
	}
	return stats, eris.Wrap(rows.Err(), "ledger: stats iterate")
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}
