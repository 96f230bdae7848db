package bus

import (
	"log/slog"
	"time"
)

// Alert is the wire form of a safety escalation side effect.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
}

// Alerter delivers safety side effects over the bus, one subject per
// channel so guardian and therapist consumers can subscribe narrowly.
type Alerter struct {
	client *Client
	logger *slog.Logger
}

func NewAlerter(client *Client, logger *slog.Logger) *Alerter {
	return &Alerter{client: client, logger: logger}
}

func (a *Alerter) FlagForReview(reason string) {
	a.send(SubjectAlertReview, "review", reason)
}

func (a *Alerter) TriggerCalmingIntervention(reason string) {
	a.send(SubjectAlertCalming, "calming", reason)
}

func (a *Alerter) NotifyGuardian(reason string) {
	a.send(SubjectAlertGuardian, "guardian", reason)
}

func (a *Alerter) NotifyTherapist(reason string) {
	a.send(SubjectAlertTherapist, "therapist", reason)
}

func (a *Alerter) TriggerSessionTermination(reason string) {
	a.send(SubjectAlertTermination, "termination", reason)
}

func (a *Alerter) send(subject, kind, reason string) {
	alert := Alert{Timestamp: time.Now(), Kind: kind, Reason: reason}
	if err := a.client.Publish(subject, alert); err != nil {
		a.logger.Error("alert publish failed", "kind", kind, "reason", reason, "error", err)
	}
}
