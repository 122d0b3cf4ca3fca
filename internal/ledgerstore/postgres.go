package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// Postgres is a Store backed by a single JSON-payload table, per §6's
// "Persisted state layout": ledger_records(auction_id PK, data JSON,
// created_at, updated_at). Events are appended inside the same JSON
// document's "events" array so a single row read/write covers both.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against dsn using the lib/pq driver
// and ensures the ledger_records table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledgerstore(postgres): open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ledgerstore(postgres): ping: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.initSchema(ctx); err != nil {
		log.WithError(err).Warn("ledgerstore(postgres): schema initialization skipped")
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_records (
			auction_id TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_records_status ON ledger_records ((data->>'state'));
	`)
	return err
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ledger_records (auction_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (auction_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("ledgerstore(postgres): put %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM ledger_records WHERE auction_id = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ledgerstore(postgres): get %s: %w", key, err)
	}
	return data, true, nil
}

// Update performs the read-modify-write inside a single transaction using
// SELECT ... FOR UPDATE to serialize concurrent updaters on the same row.
func (p *Postgres) Update(ctx context.Context, key string, mutate Mutator) ([]byte, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledgerstore(postgres): begin tx: %w", err)
	}
	defer tx.Rollback()

	var cur []byte
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT data FROM ledger_records WHERE auction_id = $1 FOR UPDATE`, key).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("ledgerstore(postgres): update select %s: %w", key, err)
	}

	next, err := mutate(cur, exists)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// No-op: mutator rejected an absent/ineligible key without
		// fabricating a row for it. Rolled back by the deferred Rollback.
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_records (auction_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (auction_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, key, next)
	if err != nil {
		return nil, fmt.Errorf("ledgerstore(postgres): update write %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledgerstore(postgres): commit %s: %w", key, err)
	}
	return next, nil
}

// AppendEvent is implemented as an Update whose mutator (appendJSONEvent)
// merges the event into the document's "events" array, so the append is
// expressed in terms of Update rather than a separate side table.
func (p *Postgres) AppendEvent(ctx context.Context, key string, event []byte) error {
	_, err := p.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
		return appendJSONEvent(cur, exists, event)
	})
	return err
}

func (p *Postgres) Events(ctx context.Context, key string) ([][]byte, error) {
	data, ok, err := p.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return extractJSONEvents(data)
}
