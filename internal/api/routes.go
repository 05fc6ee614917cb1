package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/navikt/meetcore/internal/web"
)

// Dependencies are the services the router dispatches to
type Dependencies struct {
	Meetings      MeetingServicer
	Transcription TranscriptionServicer
	Signaling     SignalingServer
	Events        http.Handler
	Storage       Pinger
}

// NewRouter configures the HTTP routes for the API
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(web.ProtocolMiddleware("/events"))

	// Health check endpoints for Kubernetes
	r.Get("/health/live", HealthLiveHandler)
	r.Get("/health/ready", NewHealthReadyHandler(deps.Storage))

	if deps.Signaling != nil {
		r.Get("/ws/signaling/{meetingID}", func(w http.ResponseWriter, r *http.Request) {
			deps.Signaling.ServeWS(w, r, chi.URLParam(r, "meetingID"))
		})
	}

	if deps.Events != nil {
		r.Method(http.MethodGet, "/events", deps.Events)
		r.Method(http.MethodOptions, "/events", deps.Events)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Meetings != nil {
			meetings := NewMeetingHandler(deps.Meetings, deps.Transcription)
			r.Get("/meetings", meetings.listMeetings)
			r.Get("/meetings/{meetingID}", meetings.getMeeting)
			r.Get("/meetings/{meetingID}/participants", meetings.getParticipants)
			if deps.Transcription != nil {
				r.Get("/meetings/{meetingID}/transcriptions", meetings.listTranscriptions)
			}
		}

		if deps.Transcription != nil {
			transcription := NewTranscriptionHandler(deps.Transcription)
			r.Post("/transcription/start", transcription.start)
			r.Post("/transcription/process-chunk", transcription.processChunk)
			r.Post("/transcription/end/{sessionID}", transcription.end)
			r.Get("/transcription/status/{sessionID}", transcription.status)
		}
	})

	return r
}
