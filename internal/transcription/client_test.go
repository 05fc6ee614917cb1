package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/models"
)

func TestHTTPClientRoundTrip(t *testing.T) {
	var chunk models.TranscriptionChunkRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/transcription/start", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req models.StartTranscriptionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "M1", req.MeetingID)
		if !assert.NotNil(t, req.Config) {
			return
		}
		assert.Equal(t, "nb-NO", req.Config.Language)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.StartTranscriptionResponse{
			SessionID: "S1",
			MeetingID: req.MeetingID,
			Status:    models.TranscriptionActive,
			Config:    *req.Config,
		})
	})
	mux.HandleFunc("/api/transcription/process-chunk", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&chunk))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"processed":true}`))
	})
	mux.HandleFunc("/api/transcription/end/S1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.SessionStats{SessionID: "S1", TotalChunks: 1})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", time.Second)
	ctx := context.Background()

	resp, err := client.StartSession(ctx, "M1", models.TranscriptionConfig{Language: "nb-NO"})
	require.NoError(t, err)
	assert.Equal(t, "S1", resp.SessionID)

	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, client.ProcessChunk(ctx, "S1", 3, models.TranscriptChunk{Text: "Hello", IsFinal: true, Confidence: 0.9, Timestamp: ts}))
	assert.Equal(t, "S1", chunk.SessionID)
	assert.Equal(t, int64(3), chunk.Sequence)
	assert.Equal(t, "Hello", chunk.TranscriptText)
	assert.True(t, chunk.IsFinal)
	assert.Equal(t, 0.9, chunk.Confidence)
	assert.True(t, ts.Equal(chunk.Timestamp))

	stats, err := client.EndSession(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestHTTPClientNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no active session"}`, http.StatusGone)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second)
	err := client.ProcessChunk(context.Background(), "S1", 1, models.TranscriptChunk{Text: "x"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusGone, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "no active session")
}

func TestHTTPClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewController(NewHTTPClient(url, time.Second), nil, Options{})
	_, err := c.Start(context.Background(), "M1", models.DefaultTranscriptionConfig())
	assert.ErrorIs(t, err, ErrSessionStartFailed)
}
