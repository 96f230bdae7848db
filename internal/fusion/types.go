package fusion

import (
	"time"

	"github.com/attunelabs/attune/internal/sample"
)

// DataQuality is the collapsed confidence grade of a fused state. Safety
// decisions are suppressed below DataQualityFair.
type DataQuality string

const (
	DataQualityInvalid   DataQuality = "invalid"
	DataQualityPoor      DataQuality = "poor"
	DataQualityFair      DataQuality = "fair"
	DataQualityGood      DataQuality = "good"
	DataQualityExcellent DataQuality = "excellent"
)

// Usable reports whether the quality grade is good enough to base safety
// evaluation on.
func (q DataQuality) Usable() bool {
	return q != DataQualityInvalid && q != DataQualityPoor
}

// RegulationState is the categorical assessment of emotional self-regulation.
type RegulationState string

const (
	Regulated             RegulationState = "regulated"
	MildDysregulation     RegulationState = "mild_dysregulation"
	ModerateDysregulation RegulationState = "moderate_dysregulation"
	SevereDysregulation   RegulationState = "severe_dysregulation"
)

// IntegratedState is one fused emotional state, produced once per fusion tick
// from the latest facial and physiological samples. It is immutable; the
// contributing samples are embedded by value as snapshots.
//
// Invariant: CoherenceIndex, EmotionalMaskingIndex, DissociationIndex,
// EmotionalIntensity and ArousalLevel are all in [0,1].
type IntegratedState struct {
	Timestamp time.Time `json:"timestamp"`

	Facial sample.FacialSample        `json:"facial"`
	Physio sample.PhysiologicalSample `json:"physio"`

	CoherenceIndex        float64 `json:"coherence_index"`
	EmotionalMaskingIndex float64 `json:"emotional_masking_index"`
	DissociationIndex     float64 `json:"dissociation_index"`

	DominantEmotion    sample.Emotion  `json:"dominant_emotion"`
	EmotionalIntensity float64         `json:"emotional_intensity"`
	Regulation         RegulationState `json:"regulation"`
	ArousalLevel       float64         `json:"arousal_level"`
	Quality            DataQuality     `json:"quality"`
}
