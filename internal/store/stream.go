package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/safety"
)

// SaveState appends one fused state to the session stream. The full state is
// stored as JSONB so downstream analysis keeps every index and the embedded
// sample snapshots.
func (s *Store) SaveState(ctx context.Context, sessionID uuid.UUID, st fusion.IntegratedState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_states (session_id, ts, state)
		VALUES ($1, $2, $3)`,
		sessionID, st.Timestamp, payload,
	)
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

// SaveEpisode records a closed dissociation episode.
func (s *Store) SaveEpisode(ctx context.Context, sessionID uuid.UUID, ep dissociation.Episode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dissociation_episodes (id, session_id, start_time, end_time, duration_ms, max_intensity, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ep.ID, sessionID, ep.StartTime, ep.EndTime, ep.Duration.Milliseconds(), ep.MaxIntensity, string(ep.Severity),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// SaveSafetyEvent appends one alert-level transition to the audit trail.
func (s *Store) SaveSafetyEvent(ctx context.Context, sessionID uuid.UUID, evt safety.SafetyEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO safety_events (session_id, ts, level, previous, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, evt.Timestamp, evt.Level.String(), evt.Previous, evt.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

// SessionEpisodes lists the episodes recorded for a session.
func (s *Store) SessionEpisodes(ctx context.Context, sessionID uuid.UUID) ([]dissociation.Episode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, start_time, end_time, duration_ms, max_intensity, severity
		FROM dissociation_episodes WHERE session_id = $1 ORDER BY start_time`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select episodes: %w", err)
	}
	defer rows.Close()

	var out []dissociation.Episode
	for rows.Next() {
		var (
			ep         dissociation.Episode
			durationMS int64
			severity   string
		)
		if err := rows.Scan(&ep.ID, &ep.StartTime, &ep.EndTime, &durationMS, &ep.MaxIntensity, &severity); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.Duration = time.Duration(durationMS) * time.Millisecond
		ep.Severity = dissociation.Severity(severity)
		out = append(out, ep)
	}
	return out, rows.Err()
}
