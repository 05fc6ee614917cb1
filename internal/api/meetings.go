package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/navikt/meetcore/internal/service"
	"github.com/navikt/meetcore/internal/utils"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MeetingHandler handles HTTP requests for live meeting presence
type MeetingHandler struct {
	meetings      MeetingServicer
	transcription TranscriptionServicer
}

// NewMeetingHandler creates a new meeting handler
func NewMeetingHandler(meetings MeetingServicer, transcription TranscriptionServicer) *MeetingHandler {
	return &MeetingHandler{
		meetings:      meetings,
		transcription: transcription,
	}
}

// listMeetings handles GET /api/meetings
func (h *MeetingHandler) listMeetings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.meetings.ListMeetings())
}

// getMeeting handles GET /api/meetings/{meetingID}
func (h *MeetingHandler) getMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	summary, err := h.meetings.GetMeeting(meetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getParticipants handles GET /api/meetings/{meetingID}/participants
func (h *MeetingHandler) getParticipants(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	participants, err := h.meetings.GetParticipants(meetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

// listTranscriptions handles GET /api/meetings/{meetingID}/transcriptions.
// Ended sessions remain listed after everyone has left.
func (h *MeetingHandler) listTranscriptions(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	sessions, err := h.transcription.ListSessions(r.Context(), meetingID)
	if err != nil {
		log.Printf("Error listing transcriptions for meeting %s: %v", utils.SanitizeLogString(meetingID), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMeetingNotFound), errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionAlreadyActive), errors.Is(err, service.ErrOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionNotActive):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
