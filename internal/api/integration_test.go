package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/api"
	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/repository/memory"
	"github.com/navikt/meetcore/internal/service"
	"github.com/navikt/meetcore/internal/session"
	"github.com/navikt/meetcore/internal/signaling"
	"github.com/navikt/meetcore/internal/transcription"
	"github.com/navikt/meetcore/internal/web"
)

type collectingSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *collectingSink) Publish(ctx context.Context, u models.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, u.Text)
	return nil
}

func (s *collectingSink) Close() error { return nil }

func (s *collectingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func newIntegrationServer(t *testing.T) (*httptest.Server, *collectingSink) {
	t.Helper()
	store := session.NewStore()
	meetingService := service.NewMeetingService(store)
	sink := &collectingSink{}
	transcriptionService := service.NewTranscriptionService(memory.NewRepository(), store, sink, models.DefaultTranscriptionConfig())

	events := web.NewSSEManager()
	meetingService.RegisterUpdateCallback(events.NotifyPresence)
	transcriptionService.RegisterUtteranceCallback(events.NotifyUtterance)

	relay := signaling.NewRelay(store, signaling.Config{MaxParticipants: 4}, meetingService)

	server := httptest.NewServer(api.NewRouter(api.Dependencies{
		Meetings:      meetingService,
		Transcription: transcriptionService,
		Signaling:     signaling.NewHandler(relay, signaling.TransportConfig{}),
		Events:        events,
		Storage:       transcriptionService,
	}))
	t.Cleanup(func() {
		relay.Shutdown()
		events.Close()
		server.Close()
	})
	return server, sink
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestMeetingWithTranscription(t *testing.T) {
	server, sink := newIntegrationServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/signaling/M1?participant_id=alice&display_name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var list models.SignalingMessage
	require.NoError(t, conn.ReadJSON(&list))
	assert.Equal(t, models.MessageParticipantList, list.Type)

	var participants []models.Participant
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/meetings/M1/participants", &participants))
	require.Len(t, participants, 1)
	assert.Equal(t, "Alice", participants[0].DisplayName)

	controller := transcription.NewController(transcription.NewHTTPClient(server.URL, 2*time.Second), nil, transcription.Options{})
	started, err := controller.Start(ctx, "M1", models.DefaultTranscriptionConfig())
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptionActive, controller.Status())

	// A second session for the same meeting is rejected
	body, _ := json.Marshal(models.StartTranscriptionRequest{MeetingID: "M1"})
	resp, err := http.Post(server.URL+"/api/transcription/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var summary models.MeetingSummary
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/meetings/M1", &summary))
	assert.Equal(t, started.SessionID, summary.TranscriptionSessionID)

	require.NoError(t, controller.SubmitChunk(models.TranscriptChunk{Text: "Hello everyone", IsFinal: true, Confidence: 0.9}))
	require.NoError(t, controller.SubmitChunk(models.TranscriptChunk{Text: "let us", Confidence: 0.6}))
	require.NoError(t, controller.End(ctx))

	assert.Equal(t, models.TranscriptionEnded, controller.Status())
	assert.Equal(t, 2, controller.Stats().TotalChunks)
	assert.Equal(t, []string{"Hello everyone", "let us"}, sink.all())

	var record models.TranscriptionSession
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/transcription/status/"+started.SessionID, &record))
	assert.Equal(t, models.TranscriptionEnded, record.Status)

	// The meeting may start a new session once the first has ended
	resp, err = http.Post(server.URL+"/api/transcription/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSignalingRouteRequiresUpgrade(t *testing.T) {
	server, _ := newIntegrationServer(t)

	resp, err := http.Get(server.URL + "/ws/signaling/M1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/api/meetings/M1", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health/ready", nil))
}
