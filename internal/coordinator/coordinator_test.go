package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/response"
	"github.com/attunelabs/attune/internal/safety"
	"github.com/attunelabs/attune/internal/sample"
	"github.com/attunelabs/attune/internal/session"
)

type memStore struct {
	mu            sync.Mutex
	created       int
	finished      int
	states        int
	episodes      int
	safetyEvents  int
	failCreate    bool
}

func (s *memStore) CreateSession(_ context.Context, _ *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("connection refused")
	}
	s.created++
	return nil
}

func (s *memStore) FinishSession(_ context.Context, _ *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return nil
}

func (s *memStore) SaveState(_ context.Context, _ uuid.UUID, _ fusion.IntegratedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states++
	return nil
}

func (s *memStore) SaveEpisode(_ context.Context, _ uuid.UUID, _ dissociation.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes++
	return nil
}

func (s *memStore) SaveSafetyEvent(_ context.Context, _ uuid.UUID, _ safety.SafetyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safetyEvents++
	return nil
}

func (s *memStore) counts() (int, int, int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, s.finished, s.states, s.episodes, s.safetyEvents
}

type memPublisher struct {
	mu           sync.Mutex
	states       int
	responses    int
	safetyEvents int
	phaseChanges []session.Phase
	episodes     int
}

func (p *memPublisher) PublishState(uuid.UUID, fusion.IntegratedState) {
	p.mu.Lock()
	p.states++
	p.mu.Unlock()
}

func (p *memPublisher) PublishResponse(uuid.UUID, response.TherapeuticResponse) {
	p.mu.Lock()
	p.responses++
	p.mu.Unlock()
}

func (p *memPublisher) PublishSafetyEvent(uuid.UUID, safety.SafetyEvent) {
	p.mu.Lock()
	p.safetyEvents++
	p.mu.Unlock()
}

func (p *memPublisher) PublishPhaseChange(_ uuid.UUID, ph session.Phase) {
	p.mu.Lock()
	p.phaseChanges = append(p.phaseChanges, ph)
	p.mu.Unlock()
}

func (p *memPublisher) PublishEpisode(uuid.UUID, dissociation.Episode) {
	p.mu.Lock()
	p.episodes++
	p.mu.Unlock()
}

type noopAlerter struct{}

func (noopAlerter) FlagForReview(string)              {}
func (noopAlerter) TriggerCalmingIntervention(string) {}
func (noopAlerter) NotifyGuardian(string)             {}
func (noopAlerter) NotifyTherapist(string)            {}
func (noopAlerter) TriggerSessionTermination(string)  {}

// newTestCoordinator wires a coordinator whose fusion engine never ticks on
// its own (one-hour interval); tests drive it via engine.Tick.
func newTestCoordinator(store Store, pub Publisher) (*Coordinator, *fusion.Engine) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := fusion.NewEngine(time.Hour, fusion.StalenessHold, logger)
	tracker := dissociation.NewTracker(logger)
	monitor := safety.NewMonitor(safety.DefaultThresholds(), noopAlerter{}, logger)
	scheduler := response.NewScheduler(1.0, rand.New(rand.NewSource(1)), logger)
	return New(engine, tracker, monitor, scheduler, store, pub, logger), engine
}

func submitPair(e *fusion.Engine, ts time.Time, emotion sample.Emotion) {
	e.SubmitFacialSample(sample.FacialSample{
		Timestamp:        ts,
		PrimaryEmotion:   emotion,
		PrimaryIntensity: 0.5,
		Confidence:       0.9,
		FaceQuality:      sample.FaceQualityGood,
	})
	e.SubmitPhysiologicalSample(sample.PhysiologicalSample{
		Timestamp:    ts,
		Heart:        sample.HeartMetrics{Rate: 70, Variability: 60, Quality: 0.9},
		Arousal:      0.3,
		QualityIndex: 0.9,
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCoordinator_StartSessionLifecycle(t *testing.T) {
	store := &memStore{}
	c, _ := newTestCoordinator(store, nil)
	defer c.EndSession(context.Background())

	if c.State() != session.StateIdle {
		t.Fatalf("initial state = %s, want idle", c.State())
	}

	sess, err := c.StartSession(context.Background(), session.PhaseConnection, time.Hour)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.ID == uuid.Nil {
		t.Error("session has no ID")
	}
	if c.State() != session.StateActive {
		t.Errorf("state = %s, want active", c.State())
	}
	if created, _, _, _, _ := store.counts(); created != 1 {
		t.Errorf("sessions created = %d, want 1", created)
	}

	if _, err := c.StartSession(context.Background(), session.PhaseConnection, time.Hour); err == nil {
		t.Error("second StartSession should fail while one is active")
	}
}

func TestCoordinator_StartSessionValidation(t *testing.T) {
	c, _ := newTestCoordinator(nil, nil)

	if _, err := c.StartSession(context.Background(), session.Phase("bogus"), time.Hour); err == nil {
		t.Error("unknown phase should be rejected")
	}
	if _, err := c.StartSession(context.Background(), session.PhaseConnection, 0); err == nil {
		t.Error("zero duration should be rejected")
	}
	if c.State() != session.StateIdle {
		t.Errorf("state = %s, want idle after rejected starts", c.State())
	}
}

func TestCoordinator_StartSessionRollsBackOnStoreFailure(t *testing.T) {
	store := &memStore{failCreate: true}
	c, _ := newTestCoordinator(store, nil)

	if _, err := c.StartSession(context.Background(), session.PhaseConnection, time.Hour); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if c.State() != session.StateIdle {
		t.Errorf("state = %s, want idle after rollback", c.State())
	}
	if c.Session() != nil {
		t.Error("session should be cleared after rollback")
	}

	// Recovery: a later start succeeds.
	store.mu.Lock()
	store.failCreate = false
	store.mu.Unlock()
	if _, err := c.StartSession(context.Background(), session.PhaseConnection, time.Hour); err != nil {
		t.Fatalf("StartSession after recovery: %v", err)
	}
	c.EndSession(context.Background())
}

func TestCoordinator_StatePipelinePersistsAndPublishes(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	c, engine := newTestCoordinator(store, pub)
	defer c.EndSession(context.Background())

	if _, err := c.StartSession(context.Background(), session.PhaseConnection, time.Hour); err != nil {
		t.Fatal(err)
	}

	t0 := time.Now()
	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * 200 * time.Millisecond)
		submitPair(engine, ts, sample.EmotionNeutral)
		engine.Tick(ts)
	}

	if _, _, states, _, _ := store.counts(); states != 3 {
		t.Errorf("states persisted = %d, want 3", states)
	}
	pub.mu.Lock()
	published := pub.states
	pub.mu.Unlock()
	if published != 3 {
		t.Errorf("states published = %d, want 3", published)
	}
	if got := len(c.Session().States); got != 3 {
		t.Errorf("states recorded = %d, want 3", got)
	}
	if got := len(c.RecentStates(2)); got != 2 {
		t.Errorf("recent states = %d, want 2", got)
	}
	if got := len(c.RecentStates(10)); got != 3 {
		t.Errorf("recent states = %d, want all 3", got)
	}
}

func TestCoordinator_PauseDropsStates(t *testing.T) {
	store := &memStore{}
	c, engine := newTestCoordinator(store, nil)
	defer c.EndSession(context.Background())

	c.StartSession(context.Background(), session.PhaseConnection, time.Hour)

	t0 := time.Now()
	submitPair(engine, t0, sample.EmotionNeutral)
	engine.Tick(t0)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	submitPair(engine, t0.Add(200*time.Millisecond), sample.EmotionNeutral)
	engine.Tick(t0.Add(200 * time.Millisecond))

	if _, _, states, _, _ := store.counts(); states != 1 {
		t.Errorf("states persisted = %d, want 1 (paused tick dropped)", states)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	submitPair(engine, t0.Add(400*time.Millisecond), sample.EmotionNeutral)
	engine.Tick(t0.Add(400 * time.Millisecond))
	if _, _, states, _, _ := store.counts(); states != 2 {
		t.Errorf("states persisted = %d, want 2 after resume", states)
	}
}

func TestCoordinator_PauseSuspendsPhaseTimers(t *testing.T) {
	pub := &memPublisher{}
	c, _ := newTestCoordinator(nil, pub)
	defer c.EndSession(context.Background())

	// 1s session: awareness at 150ms. Pause straight away and sleep past that
	// deadline; the transition must survive the pause, not silently elapse.
	c.StartSession(context.Background(), session.PhaseConnection, time.Second)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	time.Sleep(250 * time.Millisecond)
	if got := c.Status().Phase; got != session.PhaseConnection {
		t.Fatalf("phase while paused = %s, want connection", got)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFor(t, func() bool {
		return c.Status().Phase != session.PhaseConnection
	}, "phase never advanced after resume")

	pub.mu.Lock()
	first := pub.phaseChanges[0]
	pub.mu.Unlock()
	if first != session.PhaseAwareness {
		t.Errorf("first phase change = %s, want awareness (deadline elapsed during pause must not skip it)", first)
	}
}

func TestCoordinator_PauseResumeValidation(t *testing.T) {
	c, _ := newTestCoordinator(nil, nil)

	if err := c.Pause(); err == nil {
		t.Error("Pause without a session should fail")
	}
	if err := c.Resume(); err == nil {
		t.Error("Resume without a session should fail")
	}
}

func TestCoordinator_AdvanceToPhase(t *testing.T) {
	pub := &memPublisher{}
	c, _ := newTestCoordinator(nil, pub)
	defer c.EndSession(context.Background())

	c.StartSession(context.Background(), session.PhaseConnection, time.Hour)

	if err := c.AdvanceToPhase(session.PhaseAwareness); err != nil {
		t.Fatalf("AdvanceToPhase: %v", err)
	}
	if c.Session().Phase != session.PhaseAwareness {
		t.Errorf("phase = %s, want awareness", c.Session().Phase)
	}

	if err := c.AdvanceToPhase(session.PhaseConnection); err == nil {
		t.Error("moving backwards should be rejected")
	}
	if err := c.AdvanceToPhase(session.PhaseAwareness); err == nil {
		t.Error("moving to the current phase should be rejected")
	}

	pub.mu.Lock()
	changes := len(pub.phaseChanges)
	pub.mu.Unlock()
	if changes != 1 {
		t.Errorf("phase changes published = %d, want 1", changes)
	}
}

func TestCoordinator_PhaseTimersAdvanceAutomatically(t *testing.T) {
	pub := &memPublisher{}
	c, _ := newTestCoordinator(nil, pub)
	defer c.EndSession(context.Background())

	// 400ms session: awareness at 60ms, integration at 180ms, regulation at
	// 300ms, transfer at 360ms.
	c.StartSession(context.Background(), session.PhaseConnection, 400*time.Millisecond)

	waitFor(t, func() bool {
		return c.Status().Phase == session.PhaseTransfer
	}, "session never reached the transfer phase")

	pub.mu.Lock()
	got := append([]session.Phase(nil), pub.phaseChanges...)
	pub.mu.Unlock()
	want := []session.Phase{session.PhaseAwareness, session.PhaseIntegration, session.PhaseRegulation, session.PhaseTransfer}
	if len(got) != len(want) {
		t.Fatalf("phase changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase change %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCoordinator_EndSessionFinalizes(t *testing.T) {
	store := &memStore{}
	c, engine := newTestCoordinator(store, nil)

	c.StartSession(context.Background(), session.PhaseConnection, time.Hour)
	t0 := time.Now()
	submitPair(engine, t0, sample.EmotionNeutral)
	engine.Tick(t0)

	if err := c.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if c.State() != session.StateCompleted {
		t.Errorf("state = %s, want completed", c.State())
	}

	sess := c.Session()
	if sess.Metrics == nil {
		t.Fatal("metrics not computed")
	}
	if sess.Metrics.StatesRecorded != 1 {
		t.Errorf("states recorded = %d, want 1", sess.Metrics.StatesRecorded)
	}
	if _, finished, _, _, _ := store.counts(); finished != 1 {
		t.Errorf("sessions finished = %d, want 1", finished)
	}

	if err := c.EndSession(context.Background()); err == nil {
		t.Error("second EndSession should fail")
	}

	// A completed coordinator can start again.
	if _, err := c.StartSession(context.Background(), session.PhaseConnection, time.Hour); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
	c.EndSession(context.Background())
}

func TestCoordinator_StatusReadsDuringEndSession(t *testing.T) {
	c, engine := newTestCoordinator(nil, nil)

	c.StartSession(context.Background(), session.PhaseConnection, time.Hour)
	t0 := time.Now()
	submitPair(engine, t0, sample.EmotionNeutral)
	engine.Tick(t0)

	// Control-surface reads racing the teardown; meaningful under -race.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = c.Status()
			_ = c.Session()
		}
	}()

	if err := c.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	<-done

	if c.Session().Metrics == nil {
		t.Error("metrics not computed")
	}
}

func TestCoordinator_TicksAfterEndAreDropped(t *testing.T) {
	store := &memStore{}
	c, engine := newTestCoordinator(store, nil)

	c.StartSession(context.Background(), session.PhaseConnection, time.Hour)
	c.EndSession(context.Background())

	t0 := time.Now()
	submitPair(engine, t0, sample.EmotionNeutral)
	engine.Tick(t0)
	if _, _, states, _, _ := store.counts(); states != 0 {
		t.Errorf("states persisted = %d, want 0 after end", states)
	}
}

func TestCoordinator_SafetyTerminationEndsSession(t *testing.T) {
	store := &memStore{}
	c, engine := newTestCoordinator(store, nil)

	c.StartSession(context.Background(), session.PhaseConnection, time.Hour)

	// Severe dissociation on good data triggers the termination path.
	ts := time.Now()
	engine.SubmitFacialSample(sample.FacialSample{
		Timestamp:        ts,
		PrimaryEmotion:   sample.EmotionNeutral,
		PrimaryIntensity: 0.1,
		Confidence:       0.9,
		FaceQuality:      sample.FaceQualityGood,
	})
	engine.SubmitPhysiologicalSample(sample.PhysiologicalSample{
		Timestamp:    ts,
		Heart:        sample.HeartMetrics{Rate: 50, Variability: 20, Quality: 0.9},
		Arousal:      0.2,
		QualityIndex: 0.9,
	})
	engine.Tick(ts)

	waitFor(t, func() bool {
		return c.State() == session.StateCompleted
	}, "safety termination never completed the session")

	if _, finished, _, _, _ := store.counts(); finished != 1 {
		t.Errorf("sessions finished = %d, want 1", finished)
	}
}
