package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/version"
)

func newTestBackend(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	srv, err := newServer(cfg)
	require.NoError(t, err)

	server := httptest.NewServer(srv.handler)
	t.Cleanup(func() {
		srv.close()
		server.Close()
	})
	return server
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Transcription.RestartBackoff = 10 * time.Millisecond
	cfg.Client.Timeout = 2 * time.Second
	return cfg
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd(&Dependencies{Config: config.Defaults()})

	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "transcribe")
	assert.Contains(t, names, "version")

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version.Full()+"\n", out.String())

	out.Reset()
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version.Full()+"\n", out.String())
}

func TestTranscribeRequiresMeeting(t *testing.T) {
	root := NewRootCmd(&Dependencies{Config: testConfig()})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"transcribe"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meeting")
}

func TestServerHealth(t *testing.T) {
	server := newTestBackend(t, testConfig())

	resp, err := http.Get(server.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.URI = "redis://" + mr.Addr()
	server := newTestBackend(t, cfg)

	body, _ := json.Marshal(models.StartTranscriptionRequest{MeetingID: "M1"})
	resp, err := http.Post(server.URL+"/api/transcription/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var started models.StartTranscriptionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.True(t, mr.Exists("meetcore:transcriptions:"+started.SessionID))
}

func TestRunTranscription(t *testing.T) {
	cfg := testConfig()
	server := newTestBackend(t, cfg)
	cfg.Client.ServerURL = server.URL

	input := strings.NewReader("~ Hel\nHello\t0.9\n!no-speech\nWorld\n")
	stats, err := runTranscription(context.Background(), cfg, transcribeOptions{meetingID: "M1"}, input)
	require.NoError(t, err)

	assert.Equal(t, models.TranscriptionEnded, stats.Status)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, "M1", stats.MeetingID)

	// The meeting is free for a new session afterwards
	stats, err = runTranscription(context.Background(), cfg, transcribeOptions{meetingID: "M1", noInterim: true}, strings.NewReader("~ dropped\nkept\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestRunTranscriptionFatalRecognizerError(t *testing.T) {
	cfg := testConfig()
	server := newTestBackend(t, cfg)

	input := strings.NewReader("Hello\n!not-allowed microphone blocked\n")
	_, err := runTranscription(context.Background(), cfg, transcribeOptions{meetingID: "M1", serverURL: server.URL}, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription failed")
}

func TestRunTranscriptionServerUnavailable(t *testing.T) {
	cfg := testConfig()
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := runTranscription(context.Background(), cfg, transcribeOptions{meetingID: "M1", serverURL: server.URL}, strings.NewReader("Hello\n"))
	require.Error(t, err)
}
