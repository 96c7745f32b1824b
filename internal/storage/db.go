package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
  owner          TEXT NOT NULL,
  name           TEXT NOT NULL,
  content_hash   TEXT NOT NULL,
  format_version INT NOT NULL,
  body           JSONB NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (owner, name)
);
CREATE TABLE IF NOT EXISTS user_quotas (
  owner           TEXT PRIMARY KEY,
  limit_tokens    BIGINT NOT NULL,
  consumed_tokens BIGINT NOT NULL DEFAULT 0,
  last_access     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS llm_calls (
  call_id           UUID PRIMARY KEY,
  operation         TEXT NOT NULL,
  owner             TEXT,
  document          TEXT,
  run_id            INT,
  provider_name     TEXT NOT NULL,
  model             TEXT NOT NULL,
  status            TEXT NOT NULL,
  error_type        TEXT,
  attempt           INT NOT NULL DEFAULT 1,
  prompt_tokens     INT NOT NULL DEFAULT 0,
  completion_tokens INT NOT NULL DEFAULT 0,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// EnsureSchema creates the tables used by the Postgres-backed repos.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
