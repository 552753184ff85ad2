package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"page-assist/internal/retry"
)

const (
	DefaultSubject = "history.exchanges"

	publishAttempts = 4
	publishBase     = 200 * time.Millisecond
	publishMaxDelay = time.Second
)

// publisher is the part of *nats.Conn the sink publishes through.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes exchanges as JSON on a subject.
type NATSSink struct {
	log     *slog.Logger
	pub     publisher
	nc      *nats.Conn
	subject string
	base    time.Duration
}

// NewNATS constructs a sink on an open connection.
func NewNATS(log *slog.Logger, nc *nats.Conn, subject string) *NATSSink {
	s := newSink(log, nc, subject)
	s.nc = nc
	return s
}

func newSink(log *slog.Logger, pub publisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{log: log.With("component", "history"), pub: pub, subject: subject, base: publishBase}
}

// Record publishes ex, retrying with capped exponential backoff.
func (s *NATSSink) Record(ctx context.Context, ex Exchange) error {
	ex = prepare(ex)
	body, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, publishAttempts, s.base, publishMaxDelay, func(context.Context) error {
		return s.pub.Publish(s.subject, body)
	})
	if err != nil {
		s.log.Warn("failed to publish exchange", "id", ex.ID, "err", err)
		return err
	}
	return nil
}

// Subscribe delivers recorded exchanges to handler until ctx ends.
func (s *NATSSink) Subscribe(ctx context.Context, handler Handler) error {
	if s.nc == nil {
		return errors.New("history: subscribe needs a nats connection")
	}
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handleMessage(ctx, msg.Data, handler)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (s *NATSSink) handleMessage(ctx context.Context, data []byte, handler Handler) {
	var ex Exchange
	if err := json.Unmarshal(data, &ex); err != nil {
		s.log.Error("failed to decode exchange", "err", err)
		return
	}
	if err := handler(ctx, ex); err != nil {
		s.log.Error("exchange handler failed", "id", ex.ID, "err", err)
	}
}
