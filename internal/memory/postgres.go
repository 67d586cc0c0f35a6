package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation blobs in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_blobs (
			key TEXT PRIMARY KEY,
			blob BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT blob FROM conversation_blobs WHERE key=$1`, key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blob: %w", err)
	}
	return blob, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, blob []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_blobs (key, blob, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`,
		key,
		blob,
	)
	if err != nil {
		return fmt.Errorf("save blob: %w", err)
	}
	return nil
}

func (s *PostgresStore) Erase(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversation_blobs WHERE key=$1`, key)
	if err != nil {
		return fmt.Errorf("erase blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
