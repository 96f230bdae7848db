package safety

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attunelabs/attune/internal/fusion"
)

// Monitor is the alert-level state machine. It is evaluated once per fusion
// tick; all duration tracking runs on state timestamps so replayed streams
// behave identically.
//
// Escalation is monotonic: a candidate level takes effect only when strictly
// greater than the current level. The only downgrade path is a full reset to
// AlertNone on an evaluation where no trigger fires.
type Monitor struct {
	thresholds Thresholds
	alerter    Alerter
	logger     *slog.Logger

	mu           sync.Mutex
	level        AlertLevel
	sessionStart time.Time
	lastSeen     time.Time

	distressSince      *time.Time // open while arousal stays above the sustained cutoff
	guardianAlerted    bool       // one guardian alert per session from the intervention path
	terminationAlerted bool       // one therapist alert per session from the termination path
}

func NewMonitor(thresholds Thresholds, alerter Alerter, logger *slog.Logger) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		alerter:    alerter,
		logger:     logger,
	}
}

// StartSession stamps the session start time used by the guardian-notify
// gate, clearing all prior state.
func (m *Monitor) StartSession(start time.Time) {
	m.Reset()
	m.mu.Lock()
	m.sessionStart = start
	m.mu.Unlock()
}

// Level returns the current alert level.
func (m *Monitor) Level() AlertLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Evaluate runs the per-tick threshold checks and advances the alert level.
// It returns a SafetyEvent when the level changed, nil otherwise. Evaluation
// is skipped entirely on invalid/poor data: no safety decision is ever made
// on data we do not trust.
func (m *Monitor) Evaluate(st fusion.IntegratedState) *SafetyEvent {
	if !st.Quality.Usable() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.observeLocked(st)

	candidate, reason := m.candidateLocked(st)

	if candidate == AlertNone {
		if m.level == AlertNone {
			return nil
		}
		prev := m.level
		m.level = AlertNone
		m.terminationAlerted = false
		m.logger.Info("safety alert cleared", "previous", prev.String())
		return &SafetyEvent{
			Timestamp: st.Timestamp,
			Level:     AlertNone,
			LevelName: AlertNone.String(),
			Previous:  prev.String(),
			Reason:    "no trigger condition holds",
		}
	}

	if candidate <= m.level {
		// Still true at or below the current level: no duplicate side effects.
		return nil
	}

	prev := m.level
	m.level = candidate
	m.logger.Warn("safety alert escalated",
		"from", prev.String(),
		"to", candidate.String(),
		"reason", reason,
	)

	switch candidate {
	case AlertLow:
		m.alerter.FlagForReview(reason)
	case AlertMedium:
		m.alerter.TriggerCalmingIntervention(reason)
		if !m.sessionStart.IsZero() && st.Timestamp.Sub(m.sessionStart) > m.thresholds.GuardianNotifyAfter {
			m.alerter.NotifyGuardian(reason)
		}
	case AlertHigh:
		m.alerter.TriggerSessionTermination(reason)
		m.alerter.NotifyGuardian(reason)
	}

	return &SafetyEvent{
		Timestamp: st.Timestamp,
		Level:     candidate,
		LevelName: candidate.String(),
		Previous:  prev.String(),
		Reason:    reason,
	}
}

// candidateLocked maps one state to the alert level its triggers justify.
func (m *Monitor) candidateLocked(st fusion.IntegratedState) (AlertLevel, string) {
	thr := m.thresholds

	if distressEmotions[st.DominantEmotion] &&
		st.EmotionalIntensity > thr.DistressIntensity &&
		st.ArousalLevel > thr.DistressArousal {
		return AlertHigh, fmt.Sprintf("severe distress: %s at intensity %.2f, arousal %.2f",
			st.DominantEmotion, st.EmotionalIntensity, st.ArousalLevel)
	}

	if st.DissociationIndex > thr.DissociationIndex {
		return AlertMedium, fmt.Sprintf("severe dissociation: index %.2f", st.DissociationIndex)
	}

	if st.ArousalLevel > thr.ExtremeArousal && st.Physio.Heart.Rate > thr.ExtremeHeartRate {
		return AlertMedium, fmt.Sprintf("extreme arousal: %.2f at %.0f bpm",
			st.ArousalLevel, st.Physio.Heart.Rate)
	}

	// Intense negative affect without the arousal to match: worth a flag,
	// not an intervention.
	if distressEmotions[st.DominantEmotion] && st.EmotionalIntensity > thr.DistressIntensity {
		return AlertLow, fmt.Sprintf("elevated distress: %s at intensity %.2f",
			st.DominantEmotion, st.EmotionalIntensity)
	}

	return AlertNone, ""
}

// observeLocked advances the sustained-distress timer exactly once per state.
func (m *Monitor) observeLocked(st fusion.IntegratedState) {
	if !st.Timestamp.After(m.lastSeen) {
		return
	}
	m.lastSeen = st.Timestamp

	if st.ArousalLevel > m.thresholds.SustainedDistressArousal {
		if m.distressSince == nil {
			t := st.Timestamp
			m.distressSince = &t
		}
	} else {
		m.distressSince = nil
	}
}

// NeedsIntervention reports whether the current state demands a mandatory
// calming intervention: distress sustained beyond the intervention window, or
// severe dissociation. The guardian is alerted at most once per session from
// this path.
func (m *Monitor) NeedsIntervention(st fusion.IntegratedState) bool {
	if !st.Quality.Usable() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.observeLocked(st)

	if st.DissociationIndex > m.thresholds.DissociationIndex {
		return true
	}

	if m.distressSince != nil && st.Timestamp.Sub(*m.distressSince) >= m.thresholds.InterventionAfter {
		if !m.guardianAlerted {
			m.guardianAlerted = true
			m.alerter.NotifyGuardian(fmt.Sprintf("distress sustained for %s", m.thresholds.InterventionAfter))
		}
		return true
	}

	return false
}

// ShouldTerminateSession reports whether the session must end: distress
// sustained beyond the termination window, or severe dissociation on usable
// data. The therapist alert fires exactly once per escalation; subsequent
// calls keep returning true without re-firing while the condition holds.
func (m *Monitor) ShouldTerminateSession(st fusion.IntegratedState) bool {
	if !st.Quality.Usable() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.observeLocked(st)

	var reason string
	switch {
	case m.distressSince != nil && st.Timestamp.Sub(*m.distressSince) >= m.thresholds.TerminateAfter:
		reason = fmt.Sprintf("distress sustained for %s", m.thresholds.TerminateAfter)
	case st.DissociationIndex > m.thresholds.DissociationIndex:
		reason = fmt.Sprintf("persistent severe dissociation: index %.2f", st.DissociationIndex)
	default:
		return false
	}

	if !m.terminationAlerted {
		m.terminationAlerted = true
		m.alerter.NotifyTherapist(reason)
	}
	return true
}

// Reset clears all timers and flags for reuse across sessions.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = AlertNone
	m.sessionStart = time.Time{}
	m.lastSeen = time.Time{}
	m.distressSince = nil
	m.guardianAlerted = false
	m.terminationAlerted = false
}
