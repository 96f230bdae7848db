package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/attunelabs/attune/internal/session"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// SessionSummary is the listing row served by the control API.
type SessionSummary struct {
	ID        uuid.UUID        `json:"id"`
	Phase     session.Phase    `json:"phase"`
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Metrics   *session.Metrics `json:"metrics,omitempty"`
}

// CreateSession inserts the session row at start time.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, phase, start_time, planned_for)
		VALUES ($1, $2, $3, $4)`,
		sess.ID, string(sess.Phase), sess.StartTime, sess.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession stamps the end time and stores the finalized metrics.
func (s *Store) FinishSession(ctx context.Context, sess *session.Session) error {
	metrics, err := json.Marshal(sess.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET phase = $1, end_time = $2, metrics = $3
		WHERE id = $4`,
		string(sess.Phase), sess.EndTime, metrics, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession loads one session summary.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*SessionSummary, error) {
	var (
		sum     SessionSummary
		phase   string
		metrics []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, phase, start_time, end_time, metrics
		FROM sessions WHERE id = $1`, id,
	).Scan(&sum.ID, &phase, &sum.StartTime, &sum.EndTime, &metrics)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	sum.Phase = session.Phase(phase)
	if len(metrics) > 0 {
		var m session.Metrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		sum.Metrics = &m
	}
	return &sum, nil
}

// RecentSessions lists the newest sessions, most recent first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, phase, start_time, end_time, metrics
		FROM sessions ORDER BY start_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum     SessionSummary
			phase   string
			metrics []byte
		)
		if err := rows.Scan(&sum.ID, &phase, &sum.StartTime, &sum.EndTime, &metrics); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Phase = session.Phase(phase)
		if len(metrics) > 0 {
			var m session.Metrics
			if err := json.Unmarshal(metrics, &m); err != nil {
				return nil, fmt.Errorf("unmarshal metrics: %w", err)
			}
			sum.Metrics = &m
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
