package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"agent-hub/internal/config"
	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
)

var _ adapter.EventPublisher = (*NATSPublisher)(nil)

type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher fans events out on <prefix>.<type>.
type NATSPublisher struct {
	nc     conn
	prefix string
	log    *zerolog.Logger
}

func NewNATSPublisher(cfg config.NATSConfig, logger *zerolog.Logger) (*NATSPublisher, error) {
	l := logger.With().Str("component", "nats_publisher").Logger()
	nc, err := nats.Connect(cfg.URL,
		nats.Name("agent-hub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newNATSPublisher(nc, cfg.SubjectPrefix, &l), nil
}

func newNATSPublisher(nc conn, prefix string, logger *zerolog.Logger) *NATSPublisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "agenthub.events"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: logger}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + subjectToken(eventType)
}

func (p *NATSPublisher) Publish(ctx context.Context, e *model.Event) error {
	if e == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subj := p.Subject(e.Type)
	if err := p.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	p.log.Debug().Str("subject", subj).Str("project_id", e.ProjectID).Msg("event published")
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// subjectToken keeps NATS wildcard and separator characters out of a token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, s)
}

var _ adapter.EventPublisher = NoopPublisher{}

// NoopPublisher drops events. Used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *model.Event) error { return nil }
func (NoopPublisher) Close() error                                { return nil }

// New returns a NATS publisher when cfg.URL is set and a noop otherwise.
func New(cfg config.NATSConfig, logger *zerolog.Logger) (adapter.EventPublisher, error) {
	if cfg.URL == "" {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg, logger)
}
