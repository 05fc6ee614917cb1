// Package web serves the live event stream consumed by meeting dashboards
package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/utils"
)

// AllMeetingsStream receives the presence updates of every meeting
const AllMeetingsStream = "meetings"

// Event names published on the streams
const (
	EventPresence  = "presence"
	EventUtterance = "utterance"
)

// SSEManager handles server-sent events to clients. Each meeting has its own
// stream, selected with the stream query parameter.
type SSEManager struct {
	server *sse.Server
}

// NewSSEManager creates a new server-sent events manager
func NewSSEManager() *SSEManager {
	server := sse.New()
	server.AutoStream = true
	server.AutoReplay = false
	server.Headers = map[string]string{
		"X-Accel-Buffering": "no", // Disable nginx proxy buffering
	}
	server.CreateStream(AllMeetingsStream)

	return &SSEManager{server: server}
}

// ServeHTTP implements the http.Handler interface for SSE connections
func (sm *SSEManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set CORS headers to make SSE work in various environments
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

	// Handle CORS preflight
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	stream := r.URL.Query().Get("stream")
	if stream == "" {
		http.Error(w, "stream parameter is required", http.StatusBadRequest)
		return
	}

	log.Printf("SSE client connected to stream %s from %s", utils.SanitizeLogString(stream), r.RemoteAddr)
	sm.server.ServeHTTP(w, r)
	log.Printf("SSE client disconnected from stream %s", utils.SanitizeLogString(stream))
}

// NotifyPresence publishes a presence update to the meeting stream and the all-meetings stream
func (sm *SSEManager) NotifyPresence(presence models.MeetingPresence) {
	data, err := json.Marshal(presence)
	if err != nil {
		log.Printf("Error encoding presence for meeting %s: %v", utils.SanitizeLogString(presence.MeetingID), err)
		return
	}

	sm.publish(presence.MeetingID, EventPresence, data)
	sm.publish(AllMeetingsStream, EventPresence, data)
}

// NotifyUtterance publishes a finalized utterance to the meeting stream
func (sm *SSEManager) NotifyUtterance(u models.Utterance) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Printf("Error encoding utterance for session %s: %v", u.SessionID, err)
		return
	}

	sm.publish(u.MeetingID, EventUtterance, data)
}

// publish is a no-op for streams nobody has subscribed to
func (sm *SSEManager) publish(stream, event string, data []byte) {
	if stream == "" || !sm.server.StreamExists(stream) {
		return
	}
	sm.server.Publish(stream, &sse.Event{
		Event: []byte(event),
		Data:  data,
	})
}

// Close disconnects all subscribers
func (sm *SSEManager) Close() {
	sm.server.Close()
}
