// Package response converts the fused-state stream into a throttled,
// non-overlapping sequence of therapeutic responses for the companion
// character: significance diffing, randomized gating, grounding technique
// selection, phase-specific generation, and a debounced delivery queue.
package response

import (
	"time"

	"github.com/attunelabs/attune/internal/sample"
)

// Type classifies a therapeutic response.
type Type string

const (
	TypeMirroring   Type = "mirroring"
	TypeExploration Type = "exploration"
	TypeValidation  Type = "validation"
	TypeRegulation  Type = "regulation"
	TypeGrounding   Type = "grounding"
	TypeTransfer    Type = "transfer"
	TypeCelebration Type = "celebration"
	TypeIntegration Type = "integration"
	TypeTitration   Type = "titration"
)

// InterventionLevel grades how strongly a response intervenes.
type InterventionLevel string

const (
	InterventionMinimal     InterventionLevel = "minimal"
	InterventionModerate    InterventionLevel = "moderate"
	InterventionSignificant InterventionLevel = "significant"
	InterventionIntensive   InterventionLevel = "intensive"
)

// ActionKind tags the character action variant.
type ActionKind string

const (
	ActionBreathing  ActionKind = "breathing"
	ActionFacial     ActionKind = "facial_expression"
	ActionMovement   ActionKind = "body_movement"
	ActionVocal      ActionKind = "vocalization"
	ActionAttention  ActionKind = "attention"
)

// Action is the character action a response asks for. Kind selects the
// variant; only the fields for that variant are meaningful.
type Action struct {
	Kind ActionKind `json:"kind"`

	BreathingSpeed float64 `json:"breathing_speed,omitempty"` // cycles per minute
	BreathingDepth float64 `json:"breathing_depth,omitempty"` // [0,1]

	Emotion   sample.Emotion `json:"emotion,omitempty"`
	Intensity float64        `json:"intensity,omitempty"`

	MovementType      string  `json:"movement_type,omitempty"`
	MovementIntensity float64 `json:"movement_intensity,omitempty"`

	VocalizationType string `json:"vocalization_type,omitempty"`

	AttentionFocus string `json:"attention_focus,omitempty"`
}

func BreathingAction(speed, depth float64) Action {
	return Action{Kind: ActionBreathing, BreathingSpeed: speed, BreathingDepth: depth}
}

func FacialAction(e sample.Emotion, intensity float64) Action {
	return Action{Kind: ActionFacial, Emotion: e, Intensity: intensity}
}

func MovementAction(movement string, intensity float64) Action {
	return Action{Kind: ActionMovement, MovementType: movement, MovementIntensity: intensity}
}

func VocalAction(kind string) Action {
	return Action{Kind: ActionVocal, VocalizationType: kind}
}

func AttentionAction(focus string) Action {
	return Action{Kind: ActionAttention, AttentionFocus: focus}
}

// TherapeuticResponse is one immutable response descriptor for the
// presentation layer. The scheduler guarantees responses never overlap in
// time: a response stays active for Duration before the next is dequeued.
type TherapeuticResponse struct {
	Timestamp       time.Time         `json:"timestamp"`
	Type            Type              `json:"type"`
	TargetEmotion   sample.Emotion    `json:"target_emotion"`
	TargetIntensity float64           `json:"target_intensity"`
	Action          Action            `json:"action"`
	Verbal          string            `json:"verbal,omitempty"`
	Nonverbal       string            `json:"nonverbal,omitempty"`
	Intervention    InterventionLevel `json:"intervention"`
	TargetState     *sample.Emotion   `json:"target_state,omitempty"`
	Duration        time.Duration     `json:"duration"`
}
