package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/sense/internal/expectation"
)

// Publisher is the part of *nats.Conn used by NATSPublisher.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSPublisher publishes JSON messages to <subject>.registered and <subject>.notified.
type NATSPublisher struct {
	pub     Publisher
	subject string
}

func NewNATSPublisher(pub Publisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = "sense.notifications"
	}
	return &NATSPublisher{pub: pub, subject: subject}
}

func (p *NATSPublisher) NotificationRegistered(info expectation.Info) error {
	return p.publish("registered", info)
}

func (p *NATSPublisher) Notify(n expectation.Notification) error {
	return p.publish("notified", n)
}

func (p *NATSPublisher) publish(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}
	subject := p.subject + "." + kind
	if err := p.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
