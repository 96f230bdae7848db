package dissociation

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/attunelabs/attune/internal/fusion"
)

func testTracker() *Tracker {
	return NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func stateAt(t0 time.Time, offset time.Duration, index float64) fusion.IntegratedState {
	return fusion.IntegratedState{
		Timestamp:         t0.Add(offset),
		DissociationIndex: index,
	}
}

// feed runs a synthetic index stream at 200ms ticks and returns every status.
func feed(tr *Tracker, t0 time.Time, indices []float64) []Status {
	out := make([]Status, 0, len(indices))
	for i, idx := range indices {
		st := stateAt(t0, time.Duration(i)*200*time.Millisecond, idx)
		out = append(out, tr.Track(st))
	}
	return out
}

func TestTracker_IdleBelowThreshold(t *testing.T) {
	tr := testTracker()
	t0 := time.Now()

	statuses := feed(tr, t0, []float64{0.1, 0.5, 0.6}) // 0.6 is not above threshold
	for i, s := range statuses {
		if s.Kind != StatusNone {
			t.Errorf("status[%d].Kind = %q, want none", i, s.Kind)
		}
	}
	if len(tr.History()) != 0 {
		t.Errorf("history should be empty, got %d episodes", len(tr.History()))
	}
}

func TestTracker_EpisodeBoundary(t *testing.T) {
	// Index at 0.7 for exactly 6 seconds (30 ticks at 200ms), then 0.2.
	tr := testTracker()
	t0 := time.Now()

	indices := make([]float64, 31)
	for i := 0; i < 30; i++ {
		indices[i] = 0.7
	}
	indices[30] = 0.2

	statuses := feed(tr, t0, indices)

	// During the window: active, escalating potential -> mild at t>=5s.
	for i := 0; i < 30; i++ {
		s := statuses[i]
		if s.Kind != StatusActive {
			t.Fatalf("status[%d].Kind = %q, want active", i, s.Kind)
		}
		elapsed := time.Duration(i) * 200 * time.Millisecond
		wantSev := SeverityPotential
		if elapsed >= MildDuration {
			wantSev = SeverityMild
		}
		if s.Severity != wantSev {
			t.Errorf("status[%d].Severity = %q at %s, want %q", i, s.Severity, elapsed, wantSev)
		}
	}

	// On drop: exactly one recent(mild, 6s, max 0.7).
	closing := statuses[30]
	if closing.Kind != StatusRecent {
		t.Fatalf("closing status = %q, want recent", closing.Kind)
	}
	if closing.Severity != SeverityMild {
		t.Errorf("closing severity = %q, want mild", closing.Severity)
	}
	if closing.Duration != 6*time.Second {
		t.Errorf("closing duration = %s, want 6s", closing.Duration)
	}
	if math.Abs(closing.Intensity-0.7) > 0.001 {
		t.Errorf("closing intensity = %f, want 0.7", closing.Intensity)
	}

	history := tr.History()
	if len(history) != 1 {
		t.Fatalf("history has %d episodes, want 1", len(history))
	}
	ep := history[0]
	if ep.Severity != SeverityMild || ep.Duration != 6*time.Second {
		t.Errorf("episode = %+v, want mild 6s", ep)
	}
	if closing.Episode == nil || closing.Episode.ID != ep.ID {
		t.Error("closing status should carry the recorded episode")
	}
}

func TestTracker_BriefSpikeDiscarded(t *testing.T) {
	// 0.7 for 3 seconds (15 ticks) is below the 5s minimum: no episode.
	tr := testTracker()
	t0 := time.Now()

	indices := make([]float64, 16)
	for i := 0; i < 15; i++ {
		indices[i] = 0.7
	}
	indices[15] = 0.2

	statuses := feed(tr, t0, indices)
	if closing := statuses[15]; closing.Kind != StatusNone {
		t.Errorf("closing status = %q, want none", closing.Kind)
	}
	if len(tr.History()) != 0 {
		t.Errorf("history should be empty after brief spike, got %d", len(tr.History()))
	}
}

func TestTracker_MaxIntensityIsRunningMax(t *testing.T) {
	tr := testTracker()
	t0 := time.Now()

	indices := []float64{0.7, 0.95, 0.8}
	for i := 3; i < 30; i++ {
		indices = append(indices, 0.7)
	}
	indices = append(indices, 0.1)

	statuses := feed(tr, t0, indices)
	closing := statuses[len(statuses)-1]
	if closing.Kind != StatusRecent {
		t.Fatalf("closing status = %q, want recent", closing.Kind)
	}
	if math.Abs(closing.Intensity-0.95) > 0.001 {
		t.Errorf("max intensity = %f, want 0.95", closing.Intensity)
	}
	// Peak above 0.9 grades the episode severe regardless of duration.
	if closing.Severity != SeveritySevere {
		t.Errorf("severity = %q, want severe", closing.Severity)
	}
}

func TestEpisodeSeverity(t *testing.T) {
	tests := []struct {
		name      string
		duration  time.Duration
		intensity float64
		want      Severity
	}{
		{"short mild", 6 * time.Second, 0.7, SeverityMild},
		{"long duration severe", 130 * time.Second, 0.7, SeveritySevere},
		{"peak intensity severe", 6 * time.Second, 0.95, SeveritySevere},
		{"medium duration moderate", 40 * time.Second, 0.7, SeverityModerate},
		{"peak intensity moderate", 6 * time.Second, 0.85, SeverityModerate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := episodeSeverity(tt.duration, tt.intensity)
			if got != tt.want {
				t.Errorf("episodeSeverity(%s, %f) = %q, want %q", tt.duration, tt.intensity, got, tt.want)
			}
		})
	}
}

func TestActiveSeverityEscalation(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    Severity
	}{
		{0, SeverityPotential},
		{4 * time.Second, SeverityPotential},
		{5 * time.Second, SeverityMild},
		{30 * time.Second, SeverityModerate},
		{120 * time.Second, SeveritySevere},
	}

	for _, tt := range tests {
		if got := activeSeverity(tt.elapsed); got != tt.want {
			t.Errorf("activeSeverity(%s) = %q, want %q", tt.elapsed, got, tt.want)
		}
	}
}

func TestTracker_HistoryBounded(t *testing.T) {
	tr := testTracker()
	t0 := time.Now()

	// Record 25 episodes of ~6s each; only the last 20 are retained.
	for ep := 0; ep < 25; ep++ {
		base := t0.Add(time.Duration(ep) * time.Minute)
		for i := 0; i <= 30; i++ {
			idx := 0.7
			if i == 30 {
				idx = 0.1
			}
			tr.Track(stateAt(base, time.Duration(i)*200*time.Millisecond, idx))
		}
	}

	if got := len(tr.History()); got != HistoryLimit {
		t.Errorf("history length = %d, want %d", got, HistoryLimit)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := testTracker()
	t0 := time.Now()

	tr.Track(stateAt(t0, 0, 0.8)) // open an episode
	tr.Reset()

	// After reset the tracker is idle again: a sub-threshold state is none,
	// not a close.
	if s := tr.Track(stateAt(t0, time.Second, 0.2)); s.Kind != StatusNone {
		t.Errorf("status after reset = %q, want none", s.Kind)
	}
	if len(tr.History()) != 0 {
		t.Error("history should be cleared by Reset")
	}
}
