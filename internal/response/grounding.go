package response

import (
	"time"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/sample"
)

// Technique is a grounding technique category used to counter dissociation.
type Technique string

const (
	TechniqueBreathing Technique = "breathing"
	TechniqueSensory   Technique = "sensory"
	TechniqueMovement  Technique = "movement"
	TechniqueCognitive Technique = "cognitive"
	TechniqueNaming    Technique = "naming"
)

// techniqueTable maps episode severity to a primary technique and its
// fallback when the primary is excluded by preference.
var techniqueTable = map[dissociation.Severity][2]Technique{
	dissociation.SeveritySevere:    {TechniqueSensory, TechniqueBreathing},
	dissociation.SeverityModerate:  {TechniqueMovement, TechniqueBreathing},
	dissociation.SeverityMild:      {TechniqueCognitive, TechniqueNaming},
	dissociation.SeverityPotential: {TechniqueCognitive, TechniqueNaming},
}

// TechniqueFor selects the grounding technique for an episode severity,
// honoring the user/therapist preference list. An empty preference list
// allows everything. A grounding response is never suppressed outright: when
// both table entries are excluded, the fallback is used anyway.
func TechniqueFor(sev dissociation.Severity, preferences []Technique) Technique {
	pair := techniqueTable[sev]
	if pair[0] == "" {
		pair = techniqueTable[dissociation.SeverityMild]
	}
	if len(preferences) == 0 {
		return pair[0]
	}
	allowed := make(map[Technique]bool, len(preferences))
	for _, t := range preferences {
		allowed[t] = true
	}
	if allowed[pair[0]] {
		return pair[0]
	}
	if allowed[pair[1]] {
		return pair[1]
	}
	return pair[1]
}

// Grounding builds the grounding response for an active dissociation episode.
func Grounding(sev dissociation.Severity, technique Technique, st fusion.IntegratedState) TherapeuticResponse {
	r := TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeGrounding,
		TargetEmotion:   sample.EmotionNeutral,
		TargetIntensity: 0.3,
		Intervention:    interventionForSeverity(sev),
		Duration:        8 * time.Second,
	}

	switch technique {
	case TechniqueBreathing:
		r.Action = BreathingAction(6, 0.8) // slow, deep
		r.Verbal = "Let's breathe together. In... and out."
		r.Nonverbal = "slow visible belly breathing, soft gaze"
	case TechniqueSensory:
		r.Action = AttentionAction("immediate_surroundings")
		r.Verbal = "Can you find three things you can see right now?"
		r.Nonverbal = "looks around slowly, pointing gently"
	case TechniqueMovement:
		r.Action = MovementAction("gentle_sway", 0.4)
		r.Verbal = "Let's move a little. Can you feel your feet?"
		r.Nonverbal = "sways side to side, stamps softly"
	case TechniqueCognitive:
		r.Action = AttentionAction("counting")
		r.Verbal = "Let's count backwards from ten together."
		r.Nonverbal = "holds up fingers one at a time"
	case TechniqueNaming:
		r.Action = VocalAction("naming")
		r.Verbal = "What's one word for how this feels?"
		r.Nonverbal = "tilts head, attentive posture"
	}

	return r
}

// Calming builds the pre-emptive calming response a safety intervention asks
// for. It ignores session phase entirely.
func Calming(st fusion.IntegratedState) TherapeuticResponse {
	return TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeRegulation,
		TargetEmotion:   sample.EmotionNeutral,
		TargetIntensity: 0.2,
		Action:          BreathingAction(5, 0.9),
		Verbal:          "I'm right here with you. Let's slow down together.",
		Nonverbal:       "settles low and still, slow exaggerated breathing",
		Intervention:    InterventionIntensive,
		Duration:        10 * time.Second,
	}
}

func interventionForSeverity(sev dissociation.Severity) InterventionLevel {
	switch sev {
	case dissociation.SeveritySevere:
		return InterventionIntensive
	case dissociation.SeverityModerate:
		return InterventionSignificant
	default:
		return InterventionModerate
	}
}
