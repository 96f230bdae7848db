package bus

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/response"
	"github.com/attunelabs/attune/internal/safety"
	"github.com/attunelabs/attune/internal/session"
)

// StateEnvelope wraps a fused state with its session for the wire.
type StateEnvelope struct {
	SessionID uuid.UUID             `json:"session_id"`
	State     fusion.IntegratedState `json:"state"`
}

// ResponseEnvelope wraps a delivered response with its session.
type ResponseEnvelope struct {
	SessionID uuid.UUID                    `json:"session_id"`
	Response  response.TherapeuticResponse `json:"response"`
}

// SafetyEnvelope wraps a safety event with its session.
type SafetyEnvelope struct {
	SessionID uuid.UUID          `json:"session_id"`
	Event     safety.SafetyEvent `json:"event"`
}

// PhaseEnvelope announces a phase transition.
type PhaseEnvelope struct {
	SessionID uuid.UUID     `json:"session_id"`
	Phase     session.Phase `json:"phase"`
	Timestamp time.Time     `json:"timestamp"`
}

// EpisodeEnvelope wraps a closed dissociation episode with its session.
type EpisodeEnvelope struct {
	SessionID uuid.UUID            `json:"session_id"`
	Episode   dissociation.Episode `json:"episode"`
}

// Publisher fans coordinator output onto the bus. Publish failures are
// logged and dropped: the pipeline never blocks on a slow broker.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) PublishState(sessionID uuid.UUID, st fusion.IntegratedState) {
	p.publish(SubjectIntegratedState, StateEnvelope{SessionID: sessionID, State: st})
}

func (p *Publisher) PublishResponse(sessionID uuid.UUID, r response.TherapeuticResponse) {
	p.publish(SubjectResponse, ResponseEnvelope{SessionID: sessionID, Response: r})
}

func (p *Publisher) PublishSafetyEvent(sessionID uuid.UUID, evt safety.SafetyEvent) {
	p.publish(SubjectSafetyEvent, SafetyEnvelope{SessionID: sessionID, Event: evt})
}

func (p *Publisher) PublishPhaseChange(sessionID uuid.UUID, ph session.Phase) {
	p.publish(SubjectPhaseChange, PhaseEnvelope{SessionID: sessionID, Phase: ph, Timestamp: time.Now()})
}

func (p *Publisher) PublishEpisode(sessionID uuid.UUID, ep dissociation.Episode) {
	p.publish(SubjectEpisodeClosed, EpisodeEnvelope{SessionID: sessionID, Episode: ep})
}

func (p *Publisher) publish(subject string, data any) {
	if err := p.client.Publish(subject, data); err != nil {
		p.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}
