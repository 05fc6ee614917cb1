// Package analysis hands finalized utterances to the downstream analysis consumer
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/utils"
)

// Sink receives finalized utterances in the order they were assembled
type Sink interface {
	Publish(ctx context.Context, utterance models.Utterance) error
	Close() error
}

// NewSink returns a NATS sink when a NATS URL is configured and a log sink otherwise
func NewSink(cfg config.NATSConfig) (Sink, error) {
	if cfg.URL == "" {
		log.Println("No NATS URL configured, logging utterances instead of publishing")
		return &LogSink{}, nil
	}
	return NewNATSSink(cfg)
}

// publisher is the part of *nats.Conn the sink uses
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes utterances as JSON to <prefix>.<meetingID>
type NATSSink struct {
	conn   publisher
	prefix string
}

// NewNATSSink connects to NATS
func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	name := cfg.Name
	if name == "" {
		name = "meetcore"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("Publishing utterances to NATS subject prefix %s", cfg.SubjectPrefix)
	return newNATSSink(nc, cfg.SubjectPrefix), nil
}

func newNATSSink(conn publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "meetcore.transcript"
	}
	return &NATSSink{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject utterances of a meeting are published on
func (s *NATSSink) Subject(meetingID string) string {
	return s.prefix + "." + subjectToken(meetingID)
}

// Publish sends one utterance
func (s *NATSSink) Publish(ctx context.Context, utterance models.Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(utterance)
	if err != nil {
		return fmt.Errorf("marshal utterance: %w", err)
	}
	if err := s.conn.Publish(s.Subject(utterance.MeetingID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}

// subjectToken makes a meeting id safe to use as a single NATS subject token
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '*' || r == '>' || r <= ' ' || r == 0x7f:
			return '_'
		}
		return r
	}, id)
}

// LogSink writes utterances to the log
type LogSink struct{}

// Publish logs the utterance
func (LogSink) Publish(ctx context.Context, u models.Utterance) error {
	log.Printf("Utterance %d in meeting %s (session %s, confidence %.2f): %s",
		u.Sequence, utils.SanitizeLogString(u.MeetingID), utils.SanitizeLogString(u.SessionID),
		u.Confidence, utils.Preview(u.Text))
	return nil
}

// Close is a no-op
func (LogSink) Close() error {
	return nil
}
