// Package dissociation tracks dissociation episodes over the fused-state
// stream: a hysteresis state machine that opens an episode when the
// dissociation index crosses the threshold, follows its duration and peak
// intensity, and records it on close if it lasted long enough to matter.
package dissociation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/fusion"
)

// Severity grades an episode by duration and peak intensity.
type Severity string

const (
	// SeverityPotential marks an open episode still below the minimum
	// recording duration. Potential episodes are never persisted.
	SeverityPotential Severity = "potential"
	SeverityMild      Severity = "mild"
	SeverityModerate  Severity = "moderate"
	SeveritySevere    Severity = "severe"
)

// StatusKind tags the tracker's per-tick output.
type StatusKind string

const (
	StatusNone   StatusKind = "none"
	StatusActive StatusKind = "active"
	StatusRecent StatusKind = "recent"
)

// Status is the tracker's answer for one fused state.
type Status struct {
	Kind      StatusKind    `json:"kind"`
	Severity  Severity      `json:"severity,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Intensity float64       `json:"intensity,omitempty"`
	Episode   *Episode      `json:"episode,omitempty"` // set when Kind is recent
}

// Episode is a closed dissociation episode. Immutable.
type Episode struct {
	ID           uuid.UUID     `json:"id"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	MaxIntensity float64       `json:"max_intensity"`
	Severity     Severity      `json:"severity"`
}

const (
	// Threshold is the dissociation index above which an episode opens and
	// at or below which it closes.
	Threshold = 0.6

	// MildDuration is the minimum duration for an episode to be recorded.
	MildDuration     = 5 * time.Second
	ModerateDuration = 30 * time.Second
	SevereDuration   = 120 * time.Second

	// Intensity cutoffs for grading a closed episode upward.
	moderateIntensity = 0.8
	severeIntensity   = 0.9

	// HistoryLimit bounds the retained episode list.
	HistoryLimit = 20
)

// Tracker is the episode state machine. Durations are measured on state
// timestamps, not wall clock, so replayed streams grade identically.
type Tracker struct {
	logger *slog.Logger

	mu           sync.Mutex
	active       bool
	start        time.Time
	maxIntensity float64
	history      []Episode
}

func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Track advances the state machine with one fused state and returns the
// current status. While an episode is open it reports active with the running
// duration; on close it reports either recent (episode recorded) or none
// (too brief, discarded).
func (t *Tracker) Track(st fusion.IntegratedState) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := st.DissociationIndex

	if !t.active {
		if idx <= Threshold {
			return Status{Kind: StatusNone}
		}
		t.active = true
		t.start = st.Timestamp
		t.maxIntensity = idx
		t.logger.Info("dissociation episode opened", "index", idx)
		return Status{
			Kind:      StatusActive,
			Severity:  activeSeverity(0),
			Duration:  0,
			Intensity: idx,
		}
	}

	if idx > Threshold {
		if idx > t.maxIntensity {
			t.maxIntensity = idx
		}
		elapsed := st.Timestamp.Sub(t.start)
		return Status{
			Kind:      StatusActive,
			Severity:  activeSeverity(elapsed),
			Duration:  elapsed,
			Intensity: idx,
		}
	}

	// Index dropped: close the episode.
	elapsed := st.Timestamp.Sub(t.start)
	maxIntensity := t.maxIntensity
	start := t.start
	t.active = false
	t.maxIntensity = 0

	if elapsed < MildDuration {
		t.logger.Debug("dissociation episode discarded", "duration", elapsed)
		return Status{Kind: StatusNone}
	}

	ep := Episode{
		ID:           uuid.New(),
		StartTime:    start,
		EndTime:      st.Timestamp,
		Duration:     elapsed,
		MaxIntensity: maxIntensity,
		Severity:     episodeSeverity(elapsed, maxIntensity),
	}
	t.history = append(t.history, ep)
	if len(t.history) > HistoryLimit {
		t.history = t.history[len(t.history)-HistoryLimit:]
	}
	t.logger.Info("dissociation episode closed",
		"episode_id", ep.ID,
		"duration", ep.Duration,
		"max_intensity", ep.MaxIntensity,
		"severity", ep.Severity,
	)

	return Status{
		Kind:      StatusRecent,
		Severity:  ep.Severity,
		Duration:  ep.Duration,
		Intensity: ep.MaxIntensity,
		Episode:   &ep,
	}
}

// History returns a copy of the recorded episodes, oldest first.
func (t *Tracker) History() []Episode {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Episode, len(t.history))
	copy(out, t.history)
	return out
}

// Reset clears the open episode and history for reuse across sessions.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.maxIntensity = 0
	t.history = nil
}

// activeSeverity grades an open episode by elapsed duration alone.
func activeSeverity(elapsed time.Duration) Severity {
	switch {
	case elapsed >= SevereDuration:
		return SeveritySevere
	case elapsed >= ModerateDuration:
		return SeverityModerate
	case elapsed >= MildDuration:
		return SeverityMild
	default:
		return SeverityPotential
	}
}

// episodeSeverity grades a closed episode by duration and peak intensity.
func episodeSeverity(duration time.Duration, maxIntensity float64) Severity {
	switch {
	case duration > SevereDuration || maxIntensity > severeIntensity:
		return SeveritySevere
	case duration > ModerateDuration || maxIntensity > moderateIntensity:
		return SeverityModerate
	default:
		return SeverityMild
	}
}
