package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attunelabs/attune/internal/bus"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/sample"
)

func testIngestor() (*Ingestor, *fusion.Engine) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := fusion.NewEngine(time.Hour, fusion.StalenessHold, logger)
	return New(engine, logger), engine
}

func facialJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(sample.FacialSample{
		Timestamp:        time.Now(),
		PrimaryEmotion:   sample.EmotionHappiness,
		PrimaryIntensity: 0.7,
		Confidence:       0.9,
		FaceQuality:      sample.FaceQualityGood,
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func physioJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(sample.PhysiologicalSample{
		Timestamp:    time.Now(),
		Heart:        sample.HeartMetrics{Rate: 72, Variability: 55, Quality: 0.9},
		Arousal:      0.5,
		QualityIndex: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestIngestor_AcceptsValidSamples(t *testing.T) {
	ing, engine := testIngestor()

	ing.HandleFacial(bus.SubjectFacialSample, facialJSON(t))
	ing.HandlePhysio(bus.SubjectPhysioSample, physioJSON(t))

	stats := ing.Stats()
	if stats.FacialAccepted != 1 || stats.PhysioAccepted != 1 {
		t.Errorf("accepted = %d/%d, want 1/1", stats.FacialAccepted, stats.PhysioAccepted)
	}

	// Both slots are filled: the next tick fuses.
	engine.Tick(time.Now())
	if engine.Stats().Fused != 1 {
		t.Errorf("fused = %d, want 1", engine.Stats().Fused)
	}
}

func TestIngestor_RejectsMalformedJSON(t *testing.T) {
	ing, _ := testIngestor()

	ing.HandleFacial(bus.SubjectFacialSample, []byte("{not json"))
	ing.HandlePhysio(bus.SubjectPhysioSample, []byte(""))

	stats := ing.Stats()
	if stats.FacialRejected != 1 || stats.PhysioRejected != 1 {
		t.Errorf("rejected = %d/%d, want 1/1", stats.FacialRejected, stats.PhysioRejected)
	}
	if stats.FacialAccepted != 0 || stats.PhysioAccepted != 0 {
		t.Error("malformed samples must not be accepted")
	}
}

func TestIngestor_RejectsInvalidSamples(t *testing.T) {
	ing, engine := testIngestor()

	// Unknown emotion.
	bad, _ := json.Marshal(sample.FacialSample{
		Timestamp:      time.Now(),
		PrimaryEmotion: sample.Emotion("euphoric_rage"),
		Confidence:     0.9,
		FaceQuality:    sample.FaceQualityGood,
	})
	ing.HandleFacial(bus.SubjectFacialSample, bad)

	// Zero timestamp.
	stale, _ := json.Marshal(sample.PhysiologicalSample{
		Heart:        sample.HeartMetrics{Rate: 72},
		QualityIndex: 0.9,
	})
	ing.HandlePhysio(bus.SubjectPhysioSample, stale)

	stats := ing.Stats()
	if stats.FacialRejected != 1 || stats.PhysioRejected != 1 {
		t.Errorf("rejected = %d/%d, want 1/1", stats.FacialRejected, stats.PhysioRejected)
	}

	// Neither slot filled: a tick is a missing-input no-op.
	engine.Tick(time.Now())
	if engine.Stats().SkippedMissing != 1 {
		t.Errorf("skipped = %d, want 1", engine.Stats().SkippedMissing)
	}
}
