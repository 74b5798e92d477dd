package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is the default prefix of the subjects to which events
// are published. Each event is published to <prefix>.<kind>.
const DefaultNATSSubject = "counters.changes"

var (
	ErrNATSURLRequired    = errors.New("nats relay requires a url")
	ErrInvalidNATSSubject = errors.New("nats subject must be a non-empty dot-separated name without wildcards")

	_ Sink = (*NATSSink)(nil)
)

type (
	// NATSSink publishes change events to NATS core subjects.
	NATSSink struct {
		conn    *nats.Conn
		subject string
	}

	NATSOptions struct {
		URL     string
		Subject string
	}
)

func NewNATSSink(logger logr.Logger, opts NATSOptions) (*NATSSink, error) {
	if opts.URL == "" {
		return nil, ErrNATSURLRequired
	}
	if opts.Subject == "" {
		opts.Subject = DefaultNATSSubject
	}
	if err := validateSubject(opts.Subject); err != nil {
		return nil, err
	}
	conn, err := nats.Connect(opts.URL,
		nats.Name("countersd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, "nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSSink{conn: conn, subject: opts.Subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Publish publishes the event to <subject>.<kind>, with the counter ID as a
// header so that consumers can route on it without decoding the payload.
func (s *NATSSink) Publish(ctx context.Context, event changefeed.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: s.subjectFor(event),
		Data:    data,
		Header:  nats.Header{"id": []string{event.ID}},
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}
	return nil
}

func (s *NATSSink) subjectFor(event changefeed.ChangeEvent) string {
	return s.subject + "." + string(event.Kind)
}

func (s *NATSSink) Close() {
	if s.conn != nil {
		s.conn.Drain()
	}
}

func validateSubject(subject string) error {
	if strings.ContainsAny(subject, "*> \t") {
		return fmt.Errorf("%w: %s", ErrInvalidNATSSubject, subject)
	}
	for token := range strings.SplitSeq(subject, ".") {
		if token == "" {
			return fmt.Errorf("%w: %s", ErrInvalidNATSSubject, subject)
		}
	}
	return nil
}
