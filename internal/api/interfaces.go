package api

import (
	"context"
	"net/http"

	"github.com/navikt/meetcore/internal/models"
)

// MeetingServicer defines the meeting presence queries needed by API handlers
type MeetingServicer interface {
	ListMeetings() []models.MeetingSummary
	GetMeeting(meetingID string) (models.MeetingSummary, error)
	GetParticipants(meetingID string) ([]models.Participant, error)
}

// TranscriptionServicer defines the transcription session operations needed by API handlers
type TranscriptionServicer interface {
	Start(ctx context.Context, req models.StartTranscriptionRequest) (models.StartTranscriptionResponse, error)
	ProcessChunk(ctx context.Context, req models.TranscriptionChunkRequest) (models.ChunkResult, error)
	End(ctx context.Context, sessionID string) (models.SessionStats, error)
	Status(ctx context.Context, sessionID string) (*models.TranscriptionSession, error)
	ListSessions(ctx context.Context, meetingID string) ([]*models.TranscriptionSession, error)
}

// SignalingServer upgrades a request to a signaling connection for a meeting
type SignalingServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, meetingID string)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}
