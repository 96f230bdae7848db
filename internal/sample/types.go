package sample

import "time"

// Emotion is the fixed facial-emotion taxonomy produced by the expression
// analysis collaborator. The trauma-adjacent labels (dissociation,
// hypervigilance, freeze) are first-class emotions here, not derived states.
type Emotion string

const (
	EmotionNeutral        Emotion = "neutral"
	EmotionHappiness      Emotion = "happiness"
	EmotionSadness        Emotion = "sadness"
	EmotionAnger          Emotion = "anger"
	EmotionFear           Emotion = "fear"
	EmotionSurprise       Emotion = "surprise"
	EmotionDisgust        Emotion = "disgust"
	EmotionContempt       Emotion = "contempt"
	EmotionDissociation   Emotion = "dissociation"
	EmotionHypervigilance Emotion = "hypervigilance"
	EmotionFreeze         Emotion = "freeze"
	EmotionConfusion      Emotion = "confusion"
	EmotionInterest       Emotion = "interest"
	EmotionShame          Emotion = "shame"
	EmotionPride          Emotion = "pride"
)

// Valid reports whether e is a member of the taxonomy.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionNeutral, EmotionHappiness, EmotionSadness, EmotionAnger,
		EmotionFear, EmotionSurprise, EmotionDisgust, EmotionContempt,
		EmotionDissociation, EmotionHypervigilance, EmotionFreeze,
		EmotionConfusion, EmotionInterest, EmotionShame, EmotionPride:
		return true
	}
	return false
}

// FaceQuality is the face-detection quality reported alongside a facial sample.
type FaceQuality string

const (
	FaceQualityNoFace    FaceQuality = "no_face"
	FaceQualityPoor      FaceQuality = "poor"
	FaceQualityFair      FaceQuality = "fair"
	FaceQualityGood      FaceQuality = "good"
	FaceQualityExcellent FaceQuality = "excellent"
)

// Rank returns the ordering of q (no_face=0 .. excellent=4) for threshold
// comparisons. Unknown values rank as no_face.
func (q FaceQuality) Rank() int {
	switch q {
	case FaceQualityPoor:
		return 1
	case FaceQualityFair:
		return 2
	case FaceQualityGood:
		return 3
	case FaceQualityExcellent:
		return 4
	default:
		return 0
	}
}

// FacialSample is one frame of facial-expression analysis. Samples are
// immutable once created; a newer sample simply supersedes the previous one.
type FacialSample struct {
	Timestamp         time.Time           `json:"timestamp"`
	PrimaryEmotion    Emotion             `json:"primary_emotion"`
	PrimaryIntensity  float64             `json:"primary_intensity"` // [0,1]
	Confidence        float64             `json:"confidence"`        // [0,1]
	SecondaryEmotions map[Emotion]float64 `json:"secondary_emotions,omitempty"`
	FaceQuality       FaceQuality         `json:"face_quality"`
	MicroExpressions  []Emotion           `json:"micro_expressions,omitempty"`
}

// HeartMetrics carries HR and HRV measurements from the wearable collaborator.
type HeartMetrics struct {
	Rate        float64 `json:"rate"`        // beats per minute
	Variability float64 `json:"variability"` // SDNN, ms
	RMSSD       float64 `json:"rmssd"`       // ms
	PNN50       float64 `json:"pnn50"`       // [0,1]
	Quality     float64 `json:"quality"`     // [0,1]
}

// ElectrodermalMetrics carries skin-conductance measurements.
type ElectrodermalMetrics struct {
	ConductanceLevel float64 `json:"conductance_level"` // microsiemens
	ResponseCount    int     `json:"response_count"`
	PeakAmplitude    float64 `json:"peak_amplitude"`
	Quality          float64 `json:"quality"` // [0,1]
}

// Vector3 is a raw accelerometer/gyroscope reading.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MotionMetrics carries movement-derived signals. FreezeIndex is high when
// the subject is abnormally still for the context; Tremor is high under
// fine rapid movement.
type MotionMetrics struct {
	Acceleration Vector3 `json:"acceleration"`
	RotationRate Vector3 `json:"rotation_rate"`
	Tremor       float64 `json:"tremor"`       // [0,1]
	FreezeIndex  float64 `json:"freeze_index"` // [0,1]
	Quality      float64 `json:"quality"`      // [0,1]
}

// RespirationMetrics carries breathing measurements.
type RespirationMetrics struct {
	Rate         float64 `json:"rate"` // breaths per minute
	Irregularity float64 `json:"irregularity"`
	Depth        float64 `json:"depth"`
	Quality      float64 `json:"quality"` // [0,1]
}

// PhysiologicalSample is one aggregated biometric reading. Arousal and
// QualityIndex are computed upstream by the sensor service; this core treats
// them as inputs.
type PhysiologicalSample struct {
	Timestamp     time.Time            `json:"timestamp"`
	Heart         HeartMetrics         `json:"heart"`
	Electrodermal ElectrodermalMetrics `json:"electrodermal"`
	Motion        MotionMetrics        `json:"motion"`
	Respiration   RespirationMetrics   `json:"respiration"`
	Arousal       float64              `json:"arousal"`       // [0,1]
	QualityIndex  float64              `json:"quality_index"` // [0,1]
}

// NormalizedHRV maps SDNN onto [0,1]. 100ms SDNN is treated as the healthy
// ceiling; values above it saturate at 1.
func (p PhysiologicalSample) NormalizedHRV() float64 {
	v := p.Heart.Variability / 100.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
