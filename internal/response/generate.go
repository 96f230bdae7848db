package response

import (
	"fmt"
	"time"

	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/sample"
	"github.com/attunelabs/attune/internal/session"
)

// ForPhase builds the phase-appropriate response to a fused state. The
// companion never amplifies: target intensity is always attenuated relative
// to the observed intensity, and the attenuation deepens as the session moves
// from connection toward regulation.
func ForPhase(p session.Phase, st fusion.IntegratedState) TherapeuticResponse {
	switch p {
	case session.PhaseConnection:
		return mirroring(st)
	case session.PhaseAwareness:
		return awareness(st)
	case session.PhaseIntegration:
		return integration(st)
	case session.PhaseRegulation:
		return regulation(st)
	case session.PhaseTransfer:
		return transfer(st)
	default:
		return mirroring(st)
	}
}

// mirroring reflects the observed emotion back at reduced intensity to build
// the felt sense of being seen.
func mirroring(st fusion.IntegratedState) TherapeuticResponse {
	target := st.EmotionalIntensity * 0.8
	return TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeMirroring,
		TargetEmotion:   st.DominantEmotion,
		TargetIntensity: target,
		Action:          FacialAction(st.DominantEmotion, target),
		Verbal:          mirrorVerbal(st.DominantEmotion),
		Nonverbal:       "matches posture, softened expression",
		Intervention:    InterventionMinimal,
		Duration:        4 * time.Second,
	}
}

// awareness invites the user to notice and name what is happening. High
// masking turns the prompt toward the gap between display and body.
func awareness(st fusion.IntegratedState) TherapeuticResponse {
	r := TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeExploration,
		TargetEmotion:   st.DominantEmotion,
		TargetIntensity: st.EmotionalIntensity * 0.7,
		Action:          AttentionAction("body_sensation"),
		Verbal:          fmt.Sprintf("I notice something that looks like %s. Where do you feel it?", st.DominantEmotion),
		Nonverbal:       "leans in slightly, curious expression",
		Intervention:    InterventionModerate,
		Duration:        5 * time.Second,
	}
	if st.EmotionalMaskingIndex > 0.7 {
		r.Type = TypeValidation
		r.Verbal = "It's okay to feel something different from what you're showing."
		r.Nonverbal = "open posture, steady gentle gaze"
	}
	return r
}

// integration pairs the observed emotion with its bodily signature so the
// two channels can be held together.
func integration(st fusion.IntegratedState) TherapeuticResponse {
	return TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeIntegration,
		TargetEmotion:   st.DominantEmotion,
		TargetIntensity: st.EmotionalIntensity * 0.6,
		Action:          AttentionAction("emotion_and_body"),
		Verbal:          fmt.Sprintf("Your face shows %s and your body agrees. Can you stay with both for a moment?", st.DominantEmotion),
		Nonverbal:       "calm containing presence, hand over own heart",
		Intervention:    InterventionModerate,
		Duration:        6 * time.Second,
	}
}

// regulation models down-shifting: slow breathing toward a calmer target.
func regulation(st fusion.IntegratedState) TherapeuticResponse {
	neutral := sample.EmotionNeutral
	return TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeRegulation,
		TargetEmotion:   st.DominantEmotion,
		TargetIntensity: st.EmotionalIntensity * 0.5,
		Action:          BreathingAction(6, 0.8),
		Verbal:          "Let's find a slower rhythm together.",
		Nonverbal:       "visible slow breathing, grounded stance",
		Intervention:    InterventionSignificant,
		TargetState:     &neutral,
		Duration:        6 * time.Second,
	}
}

// transfer hands regulation back to the user; positive states get celebrated
// instead of coached.
func transfer(st fusion.IntegratedState) TherapeuticResponse {
	if st.DominantEmotion == sample.EmotionHappiness && st.Regulation == fusion.Regulated {
		return TherapeuticResponse{
			Timestamp:       st.Timestamp,
			Type:            TypeCelebration,
			TargetEmotion:   sample.EmotionHappiness,
			TargetIntensity: st.EmotionalIntensity * 0.6,
			Action:          MovementAction("small_bounce", 0.5),
			Verbal:          "You did that yourself. Look at you.",
			Nonverbal:       "bright expression, small celebratory gesture",
			Intervention:    InterventionMinimal,
			Duration:        4 * time.Second,
		}
	}
	return TherapeuticResponse{
		Timestamp:       st.Timestamp,
		Type:            TypeTransfer,
		TargetEmotion:   st.DominantEmotion,
		TargetIntensity: st.EmotionalIntensity * 0.6,
		Action:          VocalAction("prompt"),
		Verbal:          "What helped you last time this came up?",
		Nonverbal:       "steps back half a pace, encouraging nod",
		Intervention:    InterventionMinimal,
		Duration:        5 * time.Second,
	}
}

func mirrorVerbal(e sample.Emotion) string {
	switch e {
	case sample.EmotionHappiness:
		return "I see that brightness in you."
	case sample.EmotionSadness:
		return "I'm here. It's okay to feel heavy."
	case sample.EmotionAnger:
		return "Something feels really unfair right now."
	case sample.EmotionFear:
		return "I'm staying right here with you."
	case sample.EmotionSurprise:
		return "Oh! That caught you off guard."
	case sample.EmotionNeutral:
		return "Just being here together is enough."
	default:
		return "I'm with you."
	}
}
