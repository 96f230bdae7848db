package fusion

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attunelabs/attune/internal/sample"
)

// StalenessMode controls what a fusion tick does when neither input has
// produced a new sample since the previous tick. The original behavior is
// sample-and-hold: re-fuse the last-known pair every tick.
type StalenessMode string

const (
	// StalenessHold re-fuses the last-known sample pair on every tick.
	StalenessHold StalenessMode = "hold"
	// StalenessSkip suppresses the tick until at least one input updates.
	StalenessSkip StalenessMode = "skip"
)

// Subscriber receives every fused state, synchronously on the tick goroutine.
type Subscriber func(IntegratedState)

// Stats are the engine's lifetime counters.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	Fused          uint64 `json:"fused"`
	SkippedMissing uint64 `json:"skipped_missing"`
	SkippedStale   uint64 `json:"skipped_stale"`
	StaleHolds     uint64 `json:"stale_holds"`
}

// Engine combines the latest facial and physiological samples into one
// IntegratedState on a fixed tick. The two inputs are single-slot latest-value
// cells: a new sample overwrites the previous one, with no queueing.
//
// All subscribers are invoked in registration order, in-line on the tick
// goroutine. Stop blocks until the tick loop has exited, so no subscriber
// callback can fire after Stop returns.
type Engine struct {
	interval  time.Duration
	staleness StalenessMode
	logger    *slog.Logger

	mu          sync.Mutex
	facial      *sample.FacialSample
	physio      *sample.PhysiologicalSample
	submitSeq   uint64 // bumped on every submit
	fusedSeq    uint64 // submitSeq at the last fusion
	subscribers []Subscriber
	running     bool
	stopChan    chan struct{}
	doneChan    chan struct{}
	stats       Stats
}

// DefaultInterval is the fusion tick period (5 Hz).
const DefaultInterval = 200 * time.Millisecond

func NewEngine(interval time.Duration, staleness StalenessMode, logger *slog.Logger) *Engine {
	if staleness == "" {
		staleness = StalenessHold
	}
	return &Engine{
		interval:  interval,
		staleness: staleness,
		logger:    logger,
	}
}

// Subscribe registers a synchronous consumer of fused states. Must be called
// before Start.
func (e *Engine) Subscribe(fn Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// SubmitFacialSample installs a new facial sample as the latest value.
func (e *Engine) SubmitFacialSample(s sample.FacialSample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facial = &s
	e.submitSeq++
}

// SubmitPhysiologicalSample installs a new biometric sample as the latest value.
func (e *Engine) SubmitPhysiologicalSample(s sample.PhysiologicalSample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.physio = &s
	e.submitSeq++
}

// Start launches the tick loop. It fails if the engine is already running or
// misconfigured; a failed Start leaves the engine stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interval <= 0 {
		return fmt.Errorf("invalid fusion interval %s", e.interval)
	}
	if e.running {
		return fmt.Errorf("fusion engine already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	go e.run(e.stopChan, e.doneChan)
	return nil
}

// Stop halts the tick loop and waits for it to exit. Safe to call twice.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stop, done := e.stopChan, e.doneChan
	e.mu.Unlock()

	close(stop)
	<-done
}

func (e *Engine) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			e.Tick(now)
		case <-stop:
			return
		}
	}
}

// Tick performs one fusion pass at the given time. A tick with a missing
// input is a no-op; a tick with no fresh input follows the staleness policy.
// Exposed so the composition root and tests can drive fusion without the
// wall-clock loop.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	e.stats.Ticks++

	if e.facial == nil || e.physio == nil {
		e.stats.SkippedMissing++
		e.mu.Unlock()
		return
	}

	if e.submitSeq == e.fusedSeq {
		if e.staleness == StalenessSkip {
			e.stats.SkippedStale++
			e.mu.Unlock()
			return
		}
		e.stats.StaleHolds++
		e.logger.Debug("re-fusing stale sample pair", "stale_holds", e.stats.StaleHolds)
	}
	e.fusedSeq = e.submitSeq

	st := Fuse(now, *e.facial, *e.physio)
	e.stats.Fused++
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Fuse assembles one IntegratedState from a sample pair. Pure; all indices
// are clamped to [0,1] regardless of input.
func Fuse(now time.Time, f sample.FacialSample, p sample.PhysiologicalSample) IntegratedState {
	coherence := CoherenceIndex(f, p)
	dissociation := DissociationIndex(f, p, coherence)

	return IntegratedState{
		Timestamp:             now,
		Facial:                f,
		Physio:                p,
		CoherenceIndex:        coherence,
		EmotionalMaskingIndex: MaskingIndex(f, p, coherence),
		DissociationIndex:     dissociation,
		DominantEmotion:       DominantEmotion(f, p, dissociation),
		EmotionalIntensity:    EmotionalIntensity(f, p),
		Regulation:            RegulationFor(clamp01(p.Arousal), p.NormalizedHRV(), coherence),
		ArousalLevel:          clamp01(p.Arousal),
		Quality:               QualityFor(f.FaceQuality, p.QualityIndex),
	}
}
