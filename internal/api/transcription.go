package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/navikt/meetcore/internal/models"
)

// TranscriptionHandler handles the transcription session endpoints
type TranscriptionHandler struct {
	service TranscriptionServicer
}

// NewTranscriptionHandler creates a new transcription handler
func NewTranscriptionHandler(svc TranscriptionServicer) *TranscriptionHandler {
	return &TranscriptionHandler{service: svc}
}

// start handles POST /api/transcription/start
func (h *TranscriptionHandler) start(w http.ResponseWriter, r *http.Request) {
	var req models.StartTranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding start request: %v", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.service.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// processChunk handles POST /api/transcription/process-chunk
func (h *TranscriptionHandler) processChunk(w http.ResponseWriter, r *http.Request) {
	var req models.TranscriptionChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding chunk request: %v", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.service.ProcessChunk(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// end handles POST /api/transcription/end/{sessionID}
func (h *TranscriptionHandler) end(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.End(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// status handles GET /api/transcription/status/{sessionID}
func (h *TranscriptionHandler) status(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
