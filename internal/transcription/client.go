package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/navikt/meetcore/internal/models"
)

// StatusError is returned when the transcription backend answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription API error (status %d): %s", e.StatusCode, e.Body)
}

// HTTPClient talks to the transcription API of a meetcore server
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the server at baseURL
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartSession asks the backend for a new transcription session
func (c *HTTPClient) StartSession(ctx context.Context, meetingID string, cfg models.TranscriptionConfig) (models.StartTranscriptionResponse, error) {
	var resp models.StartTranscriptionResponse
	req := models.StartTranscriptionRequest{MeetingID: meetingID, Config: &cfg}
	if err := c.do(ctx, http.MethodPost, "/api/transcription/start", req, &resp); err != nil {
		return models.StartTranscriptionResponse{}, err
	}
	if resp.SessionID == "" {
		return models.StartTranscriptionResponse{}, fmt.Errorf("transcription API returned no session id")
	}
	return resp, nil
}

// ProcessChunk delivers one transcript chunk
func (c *HTTPClient) ProcessChunk(ctx context.Context, sessionID string, sequence int64, chunk models.TranscriptChunk) error {
	req := models.TranscriptionChunkRequest{
		SessionID:      sessionID,
		Sequence:       sequence,
		TranscriptText: chunk.Text,
		IsFinal:        chunk.IsFinal,
		Confidence:     chunk.Confidence,
		Timestamp:      chunk.Timestamp,
	}
	return c.do(ctx, http.MethodPost, "/api/transcription/process-chunk", req, nil)
}

// EndSession ends a session and returns its statistics
func (c *HTTPClient) EndSession(ctx context.Context, sessionID string) (models.SessionStats, error) {
	var stats models.SessionStats
	err := c.do(ctx, http.MethodPost, "/api/transcription/end/"+url.PathEscape(sessionID), nil, &stats)
	return stats, err
}

// SessionStatus fetches the server-side record of a session
func (c *HTTPClient) SessionStatus(ctx context.Context, sessionID string) (models.TranscriptionSession, error) {
	var session models.TranscriptionSession
	err := c.do(ctx, http.MethodGet, "/api/transcription/status/"+url.PathEscape(sessionID), nil, &session)
	return session, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
