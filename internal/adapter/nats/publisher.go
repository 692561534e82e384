// Package nats publishes alert lifecycle events on a NATS subject per event
// type.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

const (
	SubjectAlertCreated  = "gas.alerts.created"
	SubjectAlertResolved = "gas.alerts.resolved"
)

type conn interface {
	Publish(subj string, data []byte) error
}

// Publisher implements notify.Subscriber over a NATS connection.
type Publisher struct {
	conn   conn
	close  func()
	logger *slog.Logger
}

// NewPublisher connects to url. The client keeps retrying a lost connection
// in the background.
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("gas-leak-monitor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	logger.Info("connected to nats", "url", url)
	return &Publisher{conn: nc, close: nc.Close, logger: logger}, nil
}

// Notify publishes the event JSON on the subject of its type.
func (p *Publisher) Notify(ctx context.Context, event domain.AlertEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, err := subjectFor(event.Type)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize alert event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
		p.logger.Info("disconnected from nats")
	}
}

func subjectFor(t domain.EventType) (string, error) {
	switch t {
	case domain.AlertCreated:
		return SubjectAlertCreated, nil
	case domain.AlertResolved:
		return SubjectAlertResolved, nil
	default:
		return "", fmt.Errorf("no subject for event type %q", t)
	}
}
