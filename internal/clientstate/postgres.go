package clientstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ Store   = (*Postgres)(nil)
	_ Sweeper = (*Postgres)(nil)
)

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// WithClock overrides the timestamps written by Set.
func (p *Postgres) WithClock(now func() time.Time) *Postgres {
	p.now = now
	return p
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `
		SELECT value
		FROM client_state
		WHERE key = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query client state: %w", err)
	}

	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := p.now().UTC()
	var expiresAt any = nil
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key)
		DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, key, value, expiresAt, now)
	if err != nil {
		return fmt.Errorf("upsert client state: %w", err)
	}

	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}
	return nil
}

func (p *Postgres) Sweep(ctx context.Context, staleBefore time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := p.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT key
			FROM client_state
			WHERE (expires_at IS NOT NULL AND expires_at < NOW())
			   OR updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM client_state t
		USING stale
		WHERE t.key = stale.key
	`, staleBefore.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale client state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale client state rows affected: %w", err)
	}

	return affected, nil
}
