package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	loadQuery = `SELECT payload FROM cart_partitions WHERE key = $1`
	saveQuery = `INSERT INTO cart_partitions (key, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
)

// PgStore implements Store on the cart_partitions table. Payloads are kept as jsonb.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of Store using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// Load returns the stored payload. Returns ErrNotFound if the key has never been saved.
func (p *PgStore) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, loadQuery, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load partition %s: %w", key, err)
	}
	return payload, nil
}

// Save upserts the payload under key.
func (p *PgStore) Save(ctx context.Context, key string, payload []byte) error {
	if _, err := p.db.Exec(ctx, saveQuery, key, string(payload)); err != nil {
		return fmt.Errorf("failed to save partition %s: %w", key, err)
	}
	return nil
}
