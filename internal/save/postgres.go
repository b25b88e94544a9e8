package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the optional remote document store. Each save is one JSONB
// row keyed by player.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a small pool; a single player never needs more than a
// couple of connections.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tycoon_saves (
			save_key TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("ensure save schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO tycoon_saves (save_key, doc, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (save_key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, key, string(blob)); err != nil {
		return fmt.Errorf("put remote save: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var doc string
	err := s.pool.QueryRow(ctx, `SELECT doc::text FROM tycoon_saves WHERE save_key = $1`, key).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get remote save: %w", err)
	}
	return []byte(doc), nil
}
