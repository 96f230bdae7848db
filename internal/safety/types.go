// Package safety watches the fused-state stream for distress, dissociation
// and arousal conditions that require escalation beyond the companion
// character: therapist review, calming interventions, guardian notification,
// and session termination.
package safety

import (
	"time"

	"github.com/attunelabs/attune/internal/sample"
)

// AlertLevel is the monitor's escalation level. Totally ordered; within an
// escalation episode it only moves up, and it resets to AlertNone only when
// no trigger fires on an evaluation.
type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertLow
	AlertMedium
	AlertHigh
)

func (l AlertLevel) String() string {
	switch l {
	case AlertLow:
		return "low"
	case AlertMedium:
		return "medium"
	case AlertHigh:
		return "high"
	default:
		return "none"
	}
}

// SafetyEvent records one level change, for the audit trail and the event feed.
type SafetyEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	Level     AlertLevel `json:"-"`
	LevelName string     `json:"level"`
	Previous  string     `json:"previous"`
	Reason    string     `json:"reason"`
}

// Alerter is the monitor's outbound side-effect surface, implemented by the
// notification collaborators. All methods must be safe to call from the
// fusion tick goroutine and should not block.
type Alerter interface {
	// FlagForReview marks the session for later therapist review (low).
	FlagForReview(reason string)
	// TriggerCalmingIntervention asks the companion layer for an immediate
	// calming sequence (medium).
	TriggerCalmingIntervention(reason string)
	// NotifyGuardian alerts the parent/guardian contact.
	NotifyGuardian(reason string)
	// NotifyTherapist alerts the supervising therapist.
	NotifyTherapist(reason string)
	// TriggerSessionTermination asks the coordinator to end the session (high).
	TriggerSessionTermination(reason string)
}

// Thresholds is the single authoritative table for every safety cutoff. The
// per-tick evaluation and the duration-based checks read the same values, so
// a tuning change cannot leave the two paths disagreeing.
type Thresholds struct {
	// Severe distress: negative emotion with both intensity and arousal high.
	DistressIntensity float64
	DistressArousal   float64

	// Severe dissociation index cutoff.
	DissociationIndex float64

	// Extreme arousal: arousal plus heart-rate floor.
	ExtremeArousal   float64
	ExtremeHeartRate float64

	// SustainedDistressArousal keys the distress duration timers.
	SustainedDistressArousal float64
	// InterventionAfter is how long sustained distress runs before a
	// mandatory intervention.
	InterventionAfter time.Duration
	// TerminateAfter is how long sustained distress runs before the session
	// must end.
	TerminateAfter time.Duration

	// GuardianNotifyAfter gates guardian notification on medium escalations
	// early in a session.
	GuardianNotifyAfter time.Duration
}

// DefaultThresholds returns the clinical defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DistressIntensity:        0.8,
		DistressArousal:          0.7,
		DissociationIndex:        0.8,
		ExtremeArousal:           0.9,
		ExtremeHeartRate:         120,
		SustainedDistressArousal: 0.9,
		InterventionAfter:        120 * time.Second,
		TerminateAfter:           240 * time.Second,
		GuardianNotifyAfter:      5 * time.Minute,
	}
}

// distressEmotions are the negative emotions that can constitute severe
// distress when intense and aroused.
var distressEmotions = map[sample.Emotion]bool{
	sample.EmotionSadness: true,
	sample.EmotionAnger:   true,
	sample.EmotionFear:    true,
	sample.EmotionDisgust: true,
}
