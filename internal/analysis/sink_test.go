package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/models"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) Drain() error {
	p.drained = true
	return nil
}

func TestNATSSinkPublish(t *testing.T) {
	pub := &recordingPublisher{}
	sink := newNATSSink(pub, "meetcore.transcript.")

	u := models.Utterance{SessionID: "S1", MeetingID: "M1", Sequence: 2, Text: "Hello", Confidence: 0.9, Timestamp: time.Now().UTC()}
	require.NoError(t, sink.Publish(context.Background(), u))

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "meetcore.transcript.M1", pub.subjects[0])

	var decoded models.Utterance
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, "Hello", decoded.Text)
	assert.Equal(t, int64(2), decoded.Sequence)

	require.NoError(t, sink.Close())
	assert.True(t, pub.drained)
}

func TestNATSSinkErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection closed")}
	sink := newNATSSink(pub, "")

	err := sink.Publish(context.Background(), models.Utterance{MeetingID: "M1"})
	assert.ErrorContains(t, err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Publish(ctx, models.Utterance{MeetingID: "M1"}), context.Canceled)
}

func TestSubjectToken(t *testing.T) {
	sink := newNATSSink(&recordingPublisher{}, "x")
	assert.Equal(t, "x.team_standup", sink.Subject("team.standup"))
	assert.Equal(t, "x.a_b_c", sink.Subject("a b*c"))
	assert.Equal(t, "x._", sink.Subject(""))
}

func TestNewSinkWithoutURL(t *testing.T) {
	sink, err := NewSink(config.NATSConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, sink)
	assert.NoError(t, sink.Publish(context.Background(), models.Utterance{Text: "hi"}))
	assert.NoError(t, sink.Close())
}

func TestIntegration_PublishToNATS(t *testing.T) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}

	nc, err := nats.Connect(natsURL)
	require.NoError(t, err)
	defer nc.Drain()

	sub, err := nc.SubscribeSync("meetcore.test.>")
	require.NoError(t, err)

	sink, err := NewSink(config.NATSConfig{URL: natsURL, SubjectPrefix: "meetcore.test"})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(context.Background(), models.Utterance{MeetingID: "M1", Text: "Hello"}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "meetcore.test.M1", msg.Subject)
}
