// Package coordinator runs a therapeutic session end to end: it wires the
// fusion engine, dissociation tracker, safety monitor and response scheduler
// together, owns the session lifecycle state machine, and drives the phase
// progression timers.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/response"
	"github.com/attunelabs/attune/internal/safety"
	"github.com/attunelabs/attune/internal/session"
)

// Store persists sessions and the artifacts produced while one runs.
// All methods must tolerate concurrent calls.
type Store interface {
	CreateSession(ctx context.Context, s *session.Session) error
	FinishSession(ctx context.Context, s *session.Session) error
	SaveState(ctx context.Context, sessionID uuid.UUID, st fusion.IntegratedState) error
	SaveEpisode(ctx context.Context, sessionID uuid.UUID, ep dissociation.Episode) error
	SaveSafetyEvent(ctx context.Context, sessionID uuid.UUID, evt safety.SafetyEvent) error
}

// Publisher fans session artifacts out to downstream consumers.
type Publisher interface {
	PublishState(sessionID uuid.UUID, st fusion.IntegratedState)
	PublishResponse(sessionID uuid.UUID, r response.TherapeuticResponse)
	PublishSafetyEvent(sessionID uuid.UUID, evt safety.SafetyEvent)
	PublishPhaseChange(sessionID uuid.UUID, p session.Phase)
	PublishEpisode(sessionID uuid.UUID, ep dissociation.Episode)
}

// Status is the coordinator snapshot served by the control API.
type Status struct {
	State      session.State   `json:"state"`
	SessionID  *uuid.UUID      `json:"session_id,omitempty"`
	Phase      session.Phase   `json:"phase,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	AlertLevel string          `json:"alert_level"`
	Delivered  int             `json:"responses_delivered"`
	Engine     fusion.Stats    `json:"engine"`
}

// Coordinator is the composition point for one concurrent session. Store and
// Publisher are optional; a nil value disables that concern.
type Coordinator struct {
	engine    *fusion.Engine
	tracker   *dissociation.Tracker
	monitor   *safety.Monitor
	scheduler *response.Scheduler
	store     Store
	publisher Publisher
	logger    *slog.Logger

	mu          sync.Mutex
	state       session.State
	sess        *session.Session
	history     *fusion.History
	phaseTimers []*phaseTimer
	endOnce     *sync.Once
}

// phaseTimer is one scheduled automatic phase transition. fireAt is the
// wall-clock deadline while the session runs; remaining holds the unexpired
// balance across a pause so the deadline shifts by the paused interval.
type phaseTimer struct {
	target    session.Phase
	fireAt    time.Time
	remaining time.Duration
	timer     *time.Timer
}

// historyCapacity bounds the in-memory recent-state window served by the
// control API; at 5 Hz this is a little over three minutes.
const historyCapacity = 1000

func New(engine *fusion.Engine, tracker *dissociation.Tracker, monitor *safety.Monitor,
	scheduler *response.Scheduler, store Store, publisher Publisher, logger *slog.Logger) *Coordinator {

	c := &Coordinator{
		engine:    engine,
		tracker:   tracker,
		monitor:   monitor,
		scheduler: scheduler,
		store:     store,
		publisher: publisher,
		logger:    logger,
		state:     session.StateIdle,
		history:   fusion.NewHistory(historyCapacity),
	}

	// Subscribed once for the coordinator's lifetime; the handler drops
	// states unless a session is active.
	engine.Subscribe(c.onState)
	scheduler.Subscribe(c.onResponse)
	return c
}

// State returns the lifecycle state.
func (c *Coordinator) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the current session, or nil outside one.
func (c *Coordinator) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Status assembles the control-surface snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	st := Status{
		State:      c.state,
		AlertLevel: c.monitor.Level().String(),
		Delivered:  c.scheduler.Delivered(),
		Engine:     c.engine.Stats(),
	}
	if c.sess != nil {
		id := c.sess.ID
		start := c.sess.StartTime
		st.SessionID = &id
		st.Phase = c.sess.Phase
		st.StartedAt = &start
	}
	c.mu.Unlock()
	return st
}

// RecentStates returns up to n of the newest fused states, oldest first.
func (c *Coordinator) RecentStates(n int) []fusion.IntegratedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Recent(n)
}

// StartSession begins a new session in the given phase with the given planned
// duration. Only one session runs at a time. On persistence failure the
// coordinator rolls back to idle.
func (c *Coordinator) StartSession(ctx context.Context, phase session.Phase, duration time.Duration) (*session.Session, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid session duration %s", duration)
	}

	c.mu.Lock()
	if c.state != session.StateIdle && c.state != session.StateCompleted {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("cannot start session in state %q", state)
	}
	c.state = session.StatePreparing
	now := time.Now()
	sess := session.NewSession(phase, now, duration)
	c.sess = sess
	c.history = fusion.NewHistory(historyCapacity)
	c.endOnce = &sync.Once{}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.CreateSession(ctx, sess); err != nil {
			c.mu.Lock()
			c.state = session.StateIdle
			c.sess = nil
			c.mu.Unlock()
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	c.tracker.Reset()
	c.monitor.Reset()
	c.monitor.StartSession(now)
	c.scheduler.Reset()
	c.scheduler.SetPhase(phase)

	if err := c.engine.Start(); err != nil {
		c.mu.Lock()
		c.state = session.StateError
		c.mu.Unlock()
		return nil, fmt.Errorf("start fusion engine: %w", err)
	}
	c.scheduler.Start()

	c.mu.Lock()
	c.state = session.StateActive
	c.armPhaseTimersLocked(sess, phase, duration)
	c.mu.Unlock()

	c.logger.Info("session started",
		"session_id", sess.ID,
		"phase", string(phase),
		"duration", duration,
	)
	return sess, nil
}

// armPhaseTimersLocked schedules the automatic phase transitions. Each timer
// re-checks the session identity and state when it fires, so a timer from an
// ended or paused session never advances anything.
func (c *Coordinator) armPhaseTimersLocked(sess *session.Session, phase session.Phase, duration time.Duration) {
	now := time.Now()
	for _, d := range session.PhaseDeadlines(phase, duration) {
		target := d.Phase
		pt := &phaseTimer{target: target, fireAt: now.Add(d.After)}
		pt.timer = time.AfterFunc(d.After, func() {
			c.advanceIfActive(sess.ID, target)
		})
		c.phaseTimers = append(c.phaseTimers, pt)
	}
}

func (c *Coordinator) advanceIfActive(sessionID uuid.UUID, target session.Phase) {
	c.mu.Lock()
	if c.state != session.StateActive || c.sess == nil || c.sess.ID != sessionID {
		c.mu.Unlock()
		return
	}
	// A timer re-armed after a long pause can fire behind a manual advance
	// or a later deadline; progression stays forward-only.
	if target.Index() <= c.sess.Phase.Index() {
		c.mu.Unlock()
		return
	}
	c.sess.Phase = target
	c.mu.Unlock()

	c.scheduler.SetPhase(target)
	if c.publisher != nil {
		c.publisher.PublishPhaseChange(sessionID, target)
	}
	c.logger.Info("phase advanced", "session_id", sessionID, "phase", string(target))
}

// AdvanceToPhase moves the session forward explicitly, for therapist-driven
// pacing. Moving backwards is rejected.
func (c *Coordinator) AdvanceToPhase(target session.Phase) error {
	if !target.Valid() {
		return fmt.Errorf("unknown phase %q", target)
	}

	c.mu.Lock()
	if c.state != session.StateActive || c.sess == nil {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("no active session (state %q)", state)
	}
	if target.Index() <= c.sess.Phase.Index() {
		current := c.sess.Phase
		c.mu.Unlock()
		return fmt.Errorf("cannot move from %q back to %q", current, target)
	}
	id := c.sess.ID
	c.sess.Phase = target
	c.mu.Unlock()

	c.scheduler.SetPhase(target)
	if c.publisher != nil {
		c.publisher.PublishPhaseChange(id, target)
	}
	c.logger.Info("phase advanced", "session_id", id, "phase", string(target), "manual", true)
	return nil
}

// Pause suspends state handling and the phase clock. Fusion keeps ticking but
// every fused state is dropped until Resume; phase timers are stopped with
// their remaining time recorded, so a deadline cannot silently elapse while
// paused.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != session.StateActive {
		return fmt.Errorf("cannot pause in state %q", c.state)
	}
	now := time.Now()
	for _, pt := range c.phaseTimers {
		pt.timer.Stop()
		pt.remaining = pt.fireAt.Sub(now)
		if pt.remaining < 0 {
			pt.remaining = 0
		}
	}
	c.state = session.StatePaused
	c.logger.Info("session paused", "session_id", c.sess.ID)
	return nil
}

// Resume returns a paused session to active and re-arms the phase timers with
// the time they had left at pause, shifting every deadline by the paused
// interval. Timers for phases already reached are dropped.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != session.StatePaused {
		return fmt.Errorf("cannot resume in state %q", c.state)
	}
	c.state = session.StateActive
	id := c.sess.ID
	current := c.sess.Phase.Index()
	now := time.Now()
	kept := c.phaseTimers[:0]
	for _, pt := range c.phaseTimers {
		if pt.target.Index() <= current {
			continue
		}
		pt.fireAt = now.Add(pt.remaining)
		target := pt.target
		pt.timer = time.AfterFunc(pt.remaining, func() {
			c.advanceIfActive(id, target)
		})
		kept = append(kept, pt)
	}
	c.phaseTimers = kept
	c.logger.Info("session resumed", "session_id", id)
	return nil
}

// EndSession stops the pipeline, finalizes metrics and persists the session.
// Idempotent per session: concurrent calls (manual end racing a safety
// termination) collapse to one teardown.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	if c.sess == nil || (c.state != session.StateActive && c.state != session.StatePaused) {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("no session to end (state %q)", state)
	}
	once := c.endOnce
	c.mu.Unlock()

	var err error
	once.Do(func() { err = c.teardown(ctx) })
	return err
}

func (c *Coordinator) teardown(ctx context.Context) error {
	c.mu.Lock()
	for _, pt := range c.phaseTimers {
		pt.timer.Stop()
	}
	c.phaseTimers = nil
	sess := c.sess
	c.mu.Unlock()

	// Stop blocks until the tick loop exits, so no onState call can race
	// the finalization below.
	c.engine.Stop()
	c.scheduler.Stop()

	end := time.Now()
	delivered := c.scheduler.Delivered()

	// Session and Status keep serving this session to API handlers while the
	// teardown runs; finalize under the same lock they read through.
	c.mu.Lock()
	sess.Finalize(end, delivered)
	c.mu.Unlock()

	var err error
	if c.store != nil {
		if serr := c.store.FinishSession(ctx, sess); serr != nil {
			err = fmt.Errorf("persist session end: %w", serr)
			c.logger.Error("failed to persist session end", "session_id", sess.ID, "error", serr)
		}
	}

	c.mu.Lock()
	c.state = session.StateCompleted
	c.mu.Unlock()

	c.logger.Info("session ended",
		"session_id", sess.ID,
		"duration", end.Sub(sess.StartTime),
		"states", sess.Metrics.StatesRecorded,
		"responses", sess.Metrics.ResponsesDelivered,
		"episodes", sess.Metrics.DissociationEpisodes,
	)
	return err
}

// onState is the per-tick pipeline: record, track dissociation, evaluate
// safety, then let the scheduler decide on a response. Runs on the fusion
// tick goroutine.
func (c *Coordinator) onState(st fusion.IntegratedState) {
	c.mu.Lock()
	if c.state != session.StateActive || c.sess == nil {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	sess.AddState(st)
	c.history.Add(st)
	id := sess.ID
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveState(context.Background(), id, st); err != nil {
			c.logger.Warn("failed to persist state", "session_id", id, "error", err)
		}
	}
	if c.publisher != nil {
		c.publisher.PublishState(id, st)
	}

	status := c.tracker.Track(st)
	if status.Kind == dissociation.StatusRecent && status.Episode != nil {
		c.recordEpisode(id, sess, *status.Episode)
	}

	if evt := c.monitor.Evaluate(st); evt != nil {
		if c.store != nil {
			if err := c.store.SaveSafetyEvent(context.Background(), id, *evt); err != nil {
				c.logger.Warn("failed to persist safety event", "session_id", id, "error", err)
			}
		}
		if c.publisher != nil {
			c.publisher.PublishSafetyEvent(id, *evt)
		}
	}

	if c.monitor.NeedsIntervention(st) {
		c.scheduler.RequestCalming()
	}

	c.scheduler.HandleState(st, status)

	if c.monitor.ShouldTerminateSession(st) {
		c.logger.Warn("safety termination requested", "session_id", id)
		// Teardown stops the engine, which waits for this callback to
		// return; run it off the tick goroutine.
		go func() {
			if err := c.EndSession(context.Background()); err != nil {
				c.logger.Error("safety termination failed", "session_id", id, "error", err)
			}
		}()
	}
}

func (c *Coordinator) recordEpisode(id uuid.UUID, sess *session.Session, ep dissociation.Episode) {
	c.mu.Lock()
	sess.AddEpisode(ep)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveEpisode(context.Background(), id, ep); err != nil {
			c.logger.Warn("failed to persist episode", "session_id", id, "error", err)
		}
	}
	if c.publisher != nil {
		c.publisher.PublishEpisode(id, ep)
	}
}

func (c *Coordinator) onResponse(r response.TherapeuticResponse) {
	c.mu.Lock()
	var id uuid.UUID
	if c.sess != nil {
		id = c.sess.ID
	}
	c.mu.Unlock()

	if c.publisher != nil && id != uuid.Nil {
		c.publisher.PublishResponse(id, r)
	}
}
