package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// message is the part of jetstream.Msg the source needs.
type message interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// NATS consumes JSON encoded events from a JetStream durable consumer.
type NATS struct {
	js       jetstream.JetStream
	conf     config.NATSSourceConf
	listener Listener
	now      func() time.Time
}

func NewNATS(nc *nats.Conn, conf config.NATSSourceConf, l Listener) (*NATS, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &NATS{js: js, conf: conf, listener: l, now: time.Now}, nil
}

// Run subscribes and blocks until ctx is done.
func (s *NATS) Run(ctx context.Context) error {
	_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     s.conf.Stream,
		Subjects: []string{s.conf.Subject},
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", s.conf.Stream, err)
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.conf.Stream, jetstream.ConsumerConfig{
		Durable:       s.conf.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: s.conf.Subject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", s.conf.Durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	slog.Info("nats source subscribed", "stream", s.conf.Stream, "subject", s.conf.Subject, "durable", s.conf.Durable)

	<-ctx.Done()
	cc.Stop()
	slog.Info("nats source stopped", "stream", s.conf.Stream)
	return nil
}

func (s *NATS) handle(ctx context.Context, msg message) {
	var ev event.Event
	if err := json.Unmarshal(msg.Data(), &ev); err != nil || ev.ID == "" {
		if err == nil {
			err = errors.New("event id is required")
		}
		slog.Warn("dropping undecodable event", "err", err)
		_ = msg.Term()
		return
	}
	if err := s.listener.OnData(ctx, &ev, s.now()); err != nil {
		slog.Warn("event not processed, requesting redelivery", "event", ev.ID, "err", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}
