// Package session owns the therapeutic session model: the five-phase
// progression, the session record with its state and episode history, and
// the derived metrics computed when a session ends.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
)

// Phase is one of the five sequential therapeutic stages.
type Phase string

const (
	PhaseConnection  Phase = "connection"
	PhaseAwareness   Phase = "awareness"
	PhaseIntegration Phase = "integration"
	PhaseRegulation  Phase = "regulation"
	PhaseTransfer    Phase = "transfer"
)

// Phases lists the stages in progression order.
var Phases = []Phase{PhaseConnection, PhaseAwareness, PhaseIntegration, PhaseRegulation, PhaseTransfer}

// PhaseShare is the fraction of total session duration allocated to each
// phase. Shares sum to 1.
var PhaseShare = map[Phase]float64{
	PhaseConnection:  0.15,
	PhaseAwareness:   0.30,
	PhaseIntegration: 0.30,
	PhaseRegulation:  0.15,
	PhaseTransfer:    0.10,
}

// Index returns the position of p in the progression, or -1.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.Index() >= 0 }

// State is the coordinator's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Metrics are the derived summary computed when a session is finalized.
type Metrics struct {
	AverageCoherenceIndex   float64       `json:"average_coherence_index"`
	RegulationCapacity      float64       `json:"regulation_capacity"` // fraction of regulated states
	EmotionalRange          int           `json:"emotional_range"`     // distinct dominant emotions observed
	DissociationEpisodes    int           `json:"dissociation_episodes"`
	DissociationTotal       time.Duration `json:"dissociation_total"`
	StatesRecorded          int           `json:"states_recorded"`
	ResponsesDelivered      int           `json:"responses_delivered"`
}

// Session is one therapeutic session. Owned exclusively by the Coordinator;
// mutated by appends while active and finalized on end.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Phase     Phase      `json:"phase"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	States   []fusion.IntegratedState `json:"-"`
	Episodes []dissociation.Episode   `json:"episodes,omitempty"`
	Metrics  *Metrics                 `json:"metrics,omitempty"`
}

// NewSession creates a session starting in the given phase.
func NewSession(phase Phase, start time.Time, duration time.Duration) *Session {
	return &Session{
		ID:        uuid.New(),
		Phase:     phase,
		StartTime: start,
		Duration:  duration,
	}
}

// AddState appends a fused state to the session record.
func (s *Session) AddState(st fusion.IntegratedState) {
	s.States = append(s.States, st)
}

// AddEpisode appends a closed dissociation episode.
func (s *Session) AddEpisode(ep dissociation.Episode) {
	s.Episodes = append(s.Episodes, ep)
}

// Finalize stamps the end time and computes the session metrics.
func (s *Session) Finalize(end time.Time, responsesDelivered int) {
	s.EndTime = &end
	m := ComputeMetrics(s.States, s.Episodes)
	m.ResponsesDelivered = responsesDelivered
	s.Metrics = &m
}

// ComputeMetrics derives summary metrics from the recorded stream.
func ComputeMetrics(states []fusion.IntegratedState, episodes []dissociation.Episode) Metrics {
	m := Metrics{
		StatesRecorded:       len(states),
		DissociationEpisodes: len(episodes),
	}

	if len(states) > 0 {
		var coherenceSum float64
		regulated := 0
		emotions := make(map[string]bool)
		for _, st := range states {
			coherenceSum += st.CoherenceIndex
			if st.Regulation == fusion.Regulated {
				regulated++
			}
			emotions[string(st.DominantEmotion)] = true
		}
		m.AverageCoherenceIndex = coherenceSum / float64(len(states))
		m.RegulationCapacity = float64(regulated) / float64(len(states))
		m.EmotionalRange = len(emotions)
	}

	for _, ep := range episodes {
		m.DissociationTotal += ep.Duration
	}

	return m
}

// PhaseDeadlines returns, for each transition, the offset from session start
// at which the next phase begins, computed from cumulative phase shares.
// The returned slice pairs each offset with the phase to enter at that time,
// starting after the given initial phase.
func PhaseDeadlines(initial Phase, total time.Duration) []PhaseDeadline {
	start := initial.Index()
	if start < 0 {
		start = 0
	}

	var deadlines []PhaseDeadline
	elapsed := 0.0
	for i, ph := range Phases {
		share := PhaseShare[ph]
		if i < start {
			continue
		}
		elapsed += share
		if i+1 < len(Phases) {
			deadlines = append(deadlines, PhaseDeadline{
				Phase: Phases[i+1],
				After: time.Duration(elapsed * float64(total)),
			})
		}
	}
	return deadlines
}

// PhaseDeadline schedules entry into Phase after the offset from start.
type PhaseDeadline struct {
	Phase Phase
	After time.Duration
}
