// Package bus is the NATS edge: inbound sensor sample subjects, outbound
// state/response/safety fan-out, and the safety alert channel.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject layout. Sensors publish samples inbound; everything else is
// outbound fan-out for companion frontends and monitoring consumers.
const (
	SubjectFacialSample = "attune.sample.facial"
	SubjectPhysioSample = "attune.sample.physio"

	SubjectIntegratedState = "attune.state.integrated"
	SubjectResponse        = "attune.response.delivered"
	SubjectSafetyEvent     = "attune.safety.event"
	SubjectPhaseChange     = "attune.session.phase"
	SubjectEpisodeClosed   = "attune.episode.closed"

	SubjectAlertReview      = "attune.alert.review"
	SubjectAlertCalming     = "attune.alert.calming"
	SubjectAlertGuardian    = "attune.alert.guardian"
	SubjectAlertTherapist   = "attune.alert.therapist"
	SubjectAlertTermination = "attune.alert.termination"
)

// ClientConfig controls the NATS connection. Zero values for the reconnect
// fields fall back to defaults sized for a long-running session service: a
// mid-session network blip should reconnect quietly for a couple of minutes
// before the process gives up.
type ClientConfig struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
}

const (
	defaultMaxReconnects = 60
	defaultReconnectWait = 2 * time.Second
)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = defaultReconnectWait
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
