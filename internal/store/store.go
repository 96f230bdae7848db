// Package store persists sessions, the fused-state stream, dissociation
// episodes and safety events to Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema if it does not exist. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id           UUID PRIMARY KEY,
			phase        TEXT NOT NULL,
			start_time   TIMESTAMPTZ NOT NULL,
			end_time     TIMESTAMPTZ,
			planned_for  BIGINT NOT NULL,
			metrics      JSONB
		);

		CREATE TABLE IF NOT EXISTS session_states (
			id         BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id),
			ts         TIMESTAMPTZ NOT NULL,
			state      JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_states_session
			ON session_states (session_id, ts);

		CREATE TABLE IF NOT EXISTS dissociation_episodes (
			id            UUID PRIMARY KEY,
			session_id    UUID NOT NULL REFERENCES sessions(id),
			start_time    TIMESTAMPTZ NOT NULL,
			end_time      TIMESTAMPTZ NOT NULL,
			duration_ms   BIGINT NOT NULL,
			max_intensity DOUBLE PRECISION NOT NULL,
			severity      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS safety_events (
			id         BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id),
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			previous   TEXT NOT NULL,
			reason     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_safety_events_session
			ON safety_events (session_id, ts);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
