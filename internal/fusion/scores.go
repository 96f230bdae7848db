package fusion

import "github.com/attunelabs/attune/internal/sample"

// arousalBand is the physiological arousal range expected for an emotion.
type arousalBand struct {
	lo, hi float64
}

func (b arousalBand) center() float64 { return (b.lo + b.hi) / 2 }

func (b arousalBand) halfWidth() float64 { return (b.hi - b.lo) / 2 }

// expectedArousal maps each emotion to its expected arousal band. Emotions
// absent from the table use the confusion/interest mid-band.
var expectedArousal = map[sample.Emotion]arousalBand{
	sample.EmotionNeutral:        {0.0, 0.4},
	sample.EmotionHappiness:      {0.4, 0.8},
	sample.EmotionSadness:        {0.2, 0.5},
	sample.EmotionAnger:          {0.6, 1.0},
	sample.EmotionFear:           {0.6, 1.0},
	sample.EmotionSurprise:       {0.5, 0.9},
	sample.EmotionDisgust:        {0.3, 0.6},
	sample.EmotionContempt:       {0.3, 0.6},
	sample.EmotionDissociation:   {0.0, 0.3},
	sample.EmotionHypervigilance: {0.7, 1.0},
	sample.EmotionFreeze:         {0.0, 0.3},
	sample.EmotionShame:          {0.2, 0.6},
	sample.EmotionPride:          {0.4, 0.8},
}

var defaultBand = arousalBand{0.3, 0.7}

func bandFor(e sample.Emotion) arousalBand {
	if b, ok := expectedArousal[e]; ok {
		return b
	}
	return defaultBand
}

// CoherenceIndex measures how well the physiological arousal matches the
// arousal expected for the facial emotion. Inside the band the score falls
// linearly from 1.0 at the center to 0.5 at the edge; outside it falls from
// 0.5 at the edge to 0 half a unit away. Emotion-specific corroboration adds
// a bonus, and the result is weighted by facial confidence and physiological
// quality.
func CoherenceIndex(f sample.FacialSample, p sample.PhysiologicalSample) float64 {
	band := bandFor(f.PrimaryEmotion)
	arousal := clamp01(p.Arousal)

	var base float64
	if arousal >= band.lo && arousal <= band.hi {
		dist := arousal - band.center()
		if dist < 0 {
			dist = -dist
		}
		hw := band.halfWidth()
		if hw == 0 {
			base = 1.0
		} else {
			base = 1.0 - 0.5*(dist/hw)
		}
	} else {
		var edgeDist float64
		if arousal < band.lo {
			edgeDist = band.lo - arousal
		} else {
			edgeDist = arousal - band.hi
		}
		base = 0.5 - edgeDist
		if base < 0 {
			base = 0
		}
	}

	// Fear expressed as freeze rather than flight is still coherent.
	if f.PrimaryEmotion == sample.EmotionFear && p.Motion.FreezeIndex > 0.7 {
		if base < 0.8 {
			base = 0.8
		}
	}

	base += corroborationBonus(f.PrimaryEmotion, p)

	return clamp01(base * clamp01(f.Confidence) * clamp01(p.QualityIndex))
}

// corroborationBonus rewards emotion-specific physiological signatures that
// go beyond the arousal band alone.
func corroborationBonus(e sample.Emotion, p sample.PhysiologicalSample) float64 {
	hrv := p.NormalizedHRV()
	switch e {
	case sample.EmotionAnger:
		if p.Heart.Rate > 100 && hrv < 0.4 {
			return 0.2
		}
	case sample.EmotionFear:
		if p.Heart.Rate > 100 || p.Motion.FreezeIndex > 0.7 {
			return 0.15
		}
	case sample.EmotionHappiness:
		if hrv > 0.5 {
			return 0.1
		}
	case sample.EmotionSadness:
		if p.Respiration.Rate > 0 && p.Respiration.Rate < 12 {
			return 0.1
		}
	}
	return 0
}

// MaskingIndex is high when the face suppresses or contradicts the
// physiological activation: a calm face over high arousal, or a smile over a
// stress signature. Low coherence always implies some masking, so the index
// never drops below 1-coherence.
func MaskingIndex(f sample.FacialSample, p sample.PhysiologicalSample, coherence float64) float64 {
	arousal := clamp01(p.Arousal)
	var masking float64

	if f.PrimaryEmotion == sample.EmotionNeutral && arousal > 0.6 {
		masking = arousal * 1.5
		if masking > 1.0 {
			masking = 1.0
		}
	}

	// Smile over a stress signature: happy face, suppressed HRV, high arousal.
	if f.PrimaryEmotion == sample.EmotionHappiness && p.NormalizedHRV() < 0.3 && arousal > 0.6 {
		if arousal > masking {
			masking = arousal
		}
	}

	if inverse := 1.0 - clamp01(coherence); inverse > masking {
		masking = inverse
	}

	return clamp01(masking)
}

// Dissociation flag weights. Each flag is an independent signal; the index is
// their clamped sum.
const (
	flatAffectWeight      = 0.4
	freezeWeight          = 0.4
	lowHRVLowHRWeight     = 0.3
	absentMicroWeight     = 0.2
	lowCoherenceWeightMax = 0.3
)

// DissociationIndex scores the numbing/disconnection pattern: flat affect,
// freeze response, parasympathetic shutdown (low HRV with low HR), absent
// micro-expressions despite a confident detection, and incoherence.
func DissociationIndex(f sample.FacialSample, p sample.PhysiologicalSample, coherence float64) float64 {
	var idx float64

	if f.PrimaryEmotion == sample.EmotionNeutral && f.PrimaryIntensity < 0.25 {
		idx += flatAffectWeight
	}
	if p.Motion.FreezeIndex > 0.7 {
		idx += freezeWeight
	}
	if p.NormalizedHRV() < 0.3 && p.Heart.Rate > 0 && p.Heart.Rate < 55 {
		idx += lowHRVLowHRWeight
	}
	if len(f.MicroExpressions) == 0 && f.Confidence > 0.7 {
		idx += absentMicroWeight
	}
	if coherence < 0.3 {
		idx += lowCoherenceWeightMax * (1.0 - clamp01(coherence))
	}

	return clamp01(idx)
}

// DominantEmotion resolves the single emotion label for a fused state.
// Preference order: a confident, intense facial read; a physiological
// inference when the face is unreliable but biometrics are strong; the
// dissociation label when the dissociation index dominates; otherwise the
// facial emotion as-is.
func DominantEmotion(f sample.FacialSample, p sample.PhysiologicalSample, dissociationIdx float64) sample.Emotion {
	if f.Confidence > 0.7 && f.PrimaryIntensity > 0.5 {
		return f.PrimaryEmotion
	}

	if f.Confidence < 0.4 && p.QualityIndex > 0.7 {
		switch {
		case p.Arousal > 0.7 && p.Motion.FreezeIndex > 0.7:
			return sample.EmotionFear
		case p.Arousal > 0.7:
			return sample.EmotionAnger
		case p.Arousal < 0.3:
			return sample.EmotionSadness
		}
	}

	if dissociationIdx > 0.7 {
		return sample.EmotionDissociation
	}

	return f.PrimaryEmotion
}

// EmotionalIntensity blends facial intensity and physiological arousal,
// weighted by facial confidence and biometric quality. With no usable weight
// on either side it degrades to a plain average.
func EmotionalIntensity(f sample.FacialSample, p sample.PhysiologicalSample) float64 {
	wf := clamp01(f.Confidence)
	wp := clamp01(p.QualityIndex)
	fi := clamp01(f.PrimaryIntensity)
	ar := clamp01(p.Arousal)

	if wf+wp == 0 {
		return clamp01((fi + ar) / 2)
	}
	return clamp01((fi*wf + ar*wp) / (wf + wp))
}

// RegulationFor grades self-regulation from arousal, normalized HRV and
// coherence. The severe branch is checked first so overlapping conditions
// resolve to the worst grade.
func RegulationFor(arousal, normalizedHRV, coherence float64) RegulationState {
	switch {
	case arousal > 0.8 && normalizedHRV < 0.3:
		return SevereDysregulation
	case arousal > 0.6 && normalizedHRV < 0.4:
		return ModerateDysregulation
	case arousal > 0.5 && normalizedHRV < 0.5:
		return MildDysregulation
	case normalizedHRV > 0.6 && coherence > 0.6:
		return Regulated
	default:
		return Regulated
	}
}

// QualityFor collapses face-detection quality and the biometric quality index
// into one grade. No face or near-zero biometric quality means the state is
// unusable for any downstream decision.
func QualityFor(faceQ sample.FaceQuality, bioQuality float64) DataQuality {
	if faceQ == sample.FaceQualityNoFace || bioQuality < 0.2 {
		return DataQualityInvalid
	}
	switch {
	case faceQ == sample.FaceQualityExcellent && bioQuality >= 0.8:
		return DataQualityExcellent
	case faceQ.Rank() >= sample.FaceQualityGood.Rank() && bioQuality >= 0.6:
		return DataQualityGood
	case faceQ.Rank() >= sample.FaceQualityFair.Rank() && bioQuality >= 0.4:
		return DataQualityFair
	default:
		return DataQualityPoor
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
