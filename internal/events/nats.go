package events

import (
	"context"
	"encoding/json"
	"fmt"

	"hospitalops/queue-service/internal/queue"

	"github.com/nats-io/nats.go"
)

// NATSPublisher pushes transition events to the realtime display boards'
// subject. Fanout to connected clients is a separate service's concern.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Handle(ctx context.Context, event queue.TransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, payload)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
