package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/cartline/shipping/pkg/carrier"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the carrier settings record in Postgres.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS carrier_settings (
//	    id          int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
//	    active      boolean NOT NULL DEFAULT false,
//	    sandbox_url text NOT NULL DEFAULT '',
//	    sandbox_key text NOT NULL DEFAULT '',
//	    prod_url    text NOT NULL DEFAULT '',
//	    prod_key    text NOT NULL DEFAULT '',
//	    updated_at  timestamptz NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a settings store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CarrierSettings reads the settings record. A missing row is not an
// error; it means the static fallback tier applies.
func (s *PostgresStore) CarrierSettings(ctx context.Context) (*carrier.Settings, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT active, sandbox_url, sandbox_key, prod_url, prod_key
		 FROM carrier_settings WHERE id = 1`,
	).Scan(&rec.Active, &rec.SandboxURL, &rec.SandboxKey, &rec.ProdURL, &rec.ProdKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading carrier settings: %w", err)
	}
	return toCarrier(&rec), nil
}

// Save replaces the settings record.
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO carrier_settings (id, active, sandbox_url, sandbox_key, prod_url, prod_key, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET
		     active = EXCLUDED.active,
		     sandbox_url = EXCLUDED.sandbox_url,
		     sandbox_key = EXCLUDED.sandbox_key,
		     prod_url = EXCLUDED.prod_url,
		     prod_key = EXCLUDED.prod_key,
		     updated_at = now()`,
		rec.Active, rec.SandboxURL, rec.SandboxKey, rec.ProdURL, rec.ProdKey,
	)
	if err != nil {
		return fmt.Errorf("saving carrier settings: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
