package response

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/session"
)

// Delivery pacing bounds. Sensitivity 0 yields the slowest pace, 1 the
// fastest; the debounce never drops below minDelay.
const (
	minDelay        = 500 * time.Millisecond
	maxDelay        = 3 * time.Second
	deliverInterval = 500 * time.Millisecond
	arousalSwingMin = 0.3
)

// Subscriber receives each delivered response. Called from the delivery
// loop; keep it fast.
type Subscriber func(TherapeuticResponse)

// Scheduler turns the fused-state stream into a paced sequence of responses.
// It decides per state change whether to respond at all (significance diff
// plus randomized gating scaled by sensitivity), generates the response for
// the current phase, and delivers from a queue so that responses never
// overlap and never arrive faster than the debounce allows.
type Scheduler struct {
	mu sync.Mutex

	sensitivity float64
	rng         *rand.Rand
	now         func() time.Time
	logger      *slog.Logger

	phase       session.Phase
	preferences []Technique

	prev          *fusion.IntegratedState
	pendingSafety bool

	queue         []TherapeuticResponse
	activeUntil   time.Time
	lastDelivered time.Time
	delivered     int

	subscribers []Subscriber

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler creates a scheduler with the given response sensitivity in
// [0,1]. The rng seeds the randomized response gating; pass a fixed-seed
// source for reproducible runs.
func NewScheduler(sensitivity float64, rng *rand.Rand, logger *slog.Logger) *Scheduler {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 1 {
		sensitivity = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{
		sensitivity: sensitivity,
		rng:         rng,
		now:         time.Now,
		logger:      logger,
		phase:       session.PhaseConnection,
	}
}

// ResponseDelay is the minimum gap between deliveries: 3s at sensitivity 0
// shrinking linearly to the 0.5s floor at sensitivity 1.
func (s *Scheduler) ResponseDelay() time.Duration {
	d := time.Duration((3.0 - s.sensitivity*2.5) * float64(time.Second))
	if d < minDelay {
		d = minDelay
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// SetPhase switches the generation phase for subsequent responses.
func (s *Scheduler) SetPhase(p session.Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// SetPreferences restricts grounding technique selection.
func (s *Scheduler) SetPreferences(prefs []Technique) {
	s.mu.Lock()
	s.preferences = append([]Technique(nil), prefs...)
	s.mu.Unlock()
}

// Subscribe registers a delivery callback. Not safe to call after Start.
func (s *Scheduler) Subscribe(fn Subscriber) {
	s.subscribers = append(s.subscribers, fn)
}

// RequestCalming asks for a pre-emptive calming response on the next state.
// Safety-driven: bypasses significance and randomized gating.
func (s *Scheduler) RequestCalming() {
	s.mu.Lock()
	s.pendingSafety = true
	s.mu.Unlock()
}

// Delivered returns the number of responses delivered so far.
func (s *Scheduler) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// QueueLen returns the number of responses waiting for delivery.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// HandleState considers one fused state together with the current
// dissociation status and enqueues at most one response. Priority order:
// safety calming, then grounding for an active episode, then the
// phase-specific response when the change is significant and the randomized
// gate passes.
func (s *Scheduler) HandleState(st fusion.IntegratedState, status dissociation.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingSafety {
		s.pendingSafety = false
		s.prev = &st
		s.enqueueLocked(Calming(st))
		return
	}

	if status.Kind == dissociation.StatusActive && status.Severity != dissociation.SeverityPotential {
		s.prev = &st
		technique := TechniqueFor(status.Severity, s.preferences)
		s.enqueueLocked(Grounding(status.Severity, technique, st))
		return
	}

	if s.prev == nil {
		s.prev = &st
		return
	}
	change := Diff(*s.prev, st)
	s.prev = &st

	if !change.Significant() {
		return
	}
	if !s.shouldRespondLocked(change) {
		return
	}
	s.enqueueLocked(ForPhase(s.phase, st))
}

// shouldRespondLocked is the randomized gate. Regulation and dissociation
// changes always pass; emotion changes and large arousal swings pass with
// probability equal to the sensitivity; coherence-only changes are rarer.
func (s *Scheduler) shouldRespondLocked(c StateChange) bool {
	switch {
	case c.RegulationChanged || c.DissociationChanged:
		return true
	case c.EmotionChanged || c.IntensityChanged:
		return s.rng.Float64() < s.sensitivity
	case c.ArousalChanged && c.ArousalSwing() > arousalSwingMin:
		return s.rng.Float64() < s.sensitivity
	default:
		return s.rng.Float64() < 0.7*s.sensitivity
	}
}

// enqueueLocked replaces any queued-but-undelivered responses: only the most
// recent decision is worth delivering late.
func (s *Scheduler) enqueueLocked(r TherapeuticResponse) {
	s.queue = s.queue[:0]
	s.queue = append(s.queue, r)
}

// Advance delivers the next queued response if both gates allow it at the
// given instant: the previous response has finished playing and the debounce
// interval has elapsed. Returns the delivered response or nil.
func (s *Scheduler) Advance(now time.Time) *TherapeuticResponse {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	if now.Before(s.activeUntil) {
		s.mu.Unlock()
		return nil
	}
	if !s.lastDelivered.IsZero() && now.Sub(s.lastDelivered) < s.ResponseDelay() {
		s.mu.Unlock()
		return nil
	}

	r := s.queue[0]
	s.queue = s.queue[1:]
	s.lastDelivered = now
	s.activeUntil = now.Add(r.Duration)
	s.delivered++
	subs := s.subscribers
	s.mu.Unlock()

	for _, fn := range subs {
		fn(r)
	}
	if s.logger != nil {
		s.logger.Debug("response delivered",
			"type", string(r.Type),
			"intervention", string(r.Intervention),
			"duration", r.Duration,
		)
	}
	return &r
}

// Start launches the delivery loop. Stop with Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(deliverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Advance(s.now())
		}
	}
}

// Stop halts the delivery loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
}

// Reset clears all pacing state and the queue for a new session.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = nil
	s.pendingSafety = false
	s.queue = nil
	s.activeUntil = time.Time{}
	s.lastDelivered = time.Time{}
	s.delivered = 0
	s.phase = session.PhaseConnection
}
