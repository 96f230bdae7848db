package sample

import (
	"fmt"
	"math"
)

// ValidateFacial rejects samples the fusion engine must never see: missing
// timestamps, out-of-taxonomy emotions, or non-finite score values. Range
// overshoot on finite values is not an error here; the fusion layer clamps.
func ValidateFacial(s FacialSample) error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	if !s.PrimaryEmotion.Valid() {
		return fmt.Errorf("unknown emotion %q", s.PrimaryEmotion)
	}
	if !finite(s.PrimaryIntensity) || !finite(s.Confidence) {
		return fmt.Errorf("non-finite intensity or confidence")
	}
	for e, v := range s.SecondaryEmotions {
		if !e.Valid() {
			return fmt.Errorf("unknown secondary emotion %q", e)
		}
		if !finite(v) {
			return fmt.Errorf("non-finite intensity for secondary emotion %q", e)
		}
	}
	return nil
}

// ValidatePhysiological rejects biometric samples with missing timestamps or
// non-finite values in any field the fusion math reads.
func ValidatePhysiological(s PhysiologicalSample) error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	for name, v := range map[string]float64{
		"heart.rate":        s.Heart.Rate,
		"heart.variability": s.Heart.Variability,
		"heart.rmssd":       s.Heart.RMSSD,
		"motion.tremor":     s.Motion.Tremor,
		"motion.freeze":     s.Motion.FreezeIndex,
		"respiration.rate":  s.Respiration.Rate,
		"arousal":           s.Arousal,
		"quality_index":     s.QualityIndex,
	} {
		if !finite(v) {
			return fmt.Errorf("non-finite value for %s", name)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
