package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/safety"
	"github.com/attunelabs/attune/internal/session"
)

type stateRow struct {
	sessionID uuid.UUID
	st        fusion.IntegratedState
}

// Batched wraps a Store so the 5 Hz state stream is written in bulk instead
// of one insert per tick. States buffer in memory and flush on a timer, on
// buffer pressure, and before the session row is finalized. All other
// operations pass straight through.
type Batched struct {
	inner    *Store
	interval time.Duration
	size     int
	logger   *slog.Logger

	mu  sync.Mutex
	buf []stateRow

	stop chan struct{}
	done chan struct{}
}

// NewBatched starts the flush loop. Close stops it and drains the buffer.
func NewBatched(inner *Store, interval time.Duration, size int, logger *slog.Logger) *Batched {
	b := &Batched{
		inner:    inner,
		interval: interval,
		size:     size,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Batched) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(context.Background()); err != nil {
				b.logger.Warn("state batch flush failed", "error", err)
			}
		case <-b.stop:
			return
		}
	}
}

// Close stops the flush loop and writes whatever is still buffered.
func (b *Batched) Close() {
	close(b.stop)
	<-b.done
	if err := b.Flush(context.Background()); err != nil {
		b.logger.Warn("final state batch flush failed", "error", err)
	}
}

// SaveState buffers the state; the write happens on the next flush. Buffer
// pressure flushes inline so a burst cannot grow memory unbounded.
func (b *Batched) SaveState(ctx context.Context, sessionID uuid.UUID, st fusion.IntegratedState) error {
	b.mu.Lock()
	b.buf = append(b.buf, stateRow{sessionID: sessionID, st: st})
	full := len(b.buf) >= b.size
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered states in one bulk copy.
func (b *Batched) Flush(ctx context.Context) error {
	b.mu.Lock()
	rows := b.buf
	b.buf = nil
	b.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if err := b.inner.SaveStates(ctx, rows); err != nil {
		// Put the rows back so a transient failure retries on the next
		// flush instead of losing data.
		b.mu.Lock()
		b.buf = append(rows, b.buf...)
		b.mu.Unlock()
		return err
	}
	return nil
}

// Buffered returns the number of states waiting for the next flush.
func (b *Batched) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *Batched) CreateSession(ctx context.Context, sess *session.Session) error {
	return b.inner.CreateSession(ctx, sess)
}

// FinishSession drains the buffer first so the finalized session row never
// precedes its own states.
func (b *Batched) FinishSession(ctx context.Context, sess *session.Session) error {
	if err := b.Flush(ctx); err != nil {
		return err
	}
	return b.inner.FinishSession(ctx, sess)
}

func (b *Batched) SaveEpisode(ctx context.Context, sessionID uuid.UUID, ep dissociation.Episode) error {
	return b.inner.SaveEpisode(ctx, sessionID, ep)
}

func (b *Batched) SaveSafetyEvent(ctx context.Context, sessionID uuid.UUID, evt safety.SafetyEvent) error {
	return b.inner.SaveSafetyEvent(ctx, sessionID, evt)
}

// SaveStates bulk-inserts states with the Postgres copy protocol.
func (s *Store) SaveStates(ctx context.Context, rows []stateRow) error {
	if len(rows) == 0 {
		return nil
	}
	source := make([][]any, 0, len(rows))
	for _, r := range rows {
		payload, err := json.Marshal(r.st)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		source = append(source, []any{r.sessionID, r.st.Timestamp, payload})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"session_states"},
		[]string{"session_id", "ts", "state"},
		pgx.CopyFromRows(source),
	)
	if err != nil {
		return fmt.Errorf("copy states: %w", err)
	}
	return nil
}
