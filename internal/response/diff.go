package response

import "github.com/attunelabs/attune/internal/fusion"

// Change thresholds: index deltas below these are treated as noise.
const (
	intensityDelta    = 0.25
	arousalDelta      = 0.2
	coherenceDelta    = 0.2
	dissociationDelta = 0.2

	// Contextual gates: dissociation and arousal changes only count as
	// significant when the current value is itself concerning.
	dissociationFloor = 0.5
	arousalFloor      = 0.7
)

// StateChange is the diff between two consecutive fused states.
type StateChange struct {
	Previous fusion.IntegratedState
	Current  fusion.IntegratedState

	EmotionChanged      bool
	IntensityChanged    bool
	ArousalChanged      bool
	CoherenceChanged    bool
	DissociationChanged bool
	RegulationChanged   bool
}

// Diff compares two consecutive states against the noise thresholds.
func Diff(prev, cur fusion.IntegratedState) StateChange {
	return StateChange{
		Previous:            prev,
		Current:             cur,
		EmotionChanged:      prev.DominantEmotion != cur.DominantEmotion,
		IntensityChanged:    abs(cur.EmotionalIntensity-prev.EmotionalIntensity) > intensityDelta,
		ArousalChanged:      abs(cur.ArousalLevel-prev.ArousalLevel) > arousalDelta,
		CoherenceChanged:    abs(cur.CoherenceIndex-prev.CoherenceIndex) > coherenceDelta,
		DissociationChanged: abs(cur.DissociationIndex-prev.DissociationIndex) > dissociationDelta,
		RegulationChanged:   prev.Regulation != cur.Regulation,
	}
}

// Significant reports whether this change deserves a response at all.
// Emotion, intensity and regulation changes always qualify; dissociation and
// arousal changes qualify only above their contextual floors.
func (c StateChange) Significant() bool {
	if c.EmotionChanged || c.IntensityChanged || c.RegulationChanged {
		return true
	}
	if c.DissociationChanged && c.Current.DissociationIndex > dissociationFloor {
		return true
	}
	if c.ArousalChanged && c.Current.ArousalLevel > arousalFloor {
		return true
	}
	return false
}

// ArousalSwing is the absolute arousal delta.
func (c StateChange) ArousalSwing() float64 {
	return abs(c.Current.ArousalLevel - c.Previous.ArousalLevel)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
