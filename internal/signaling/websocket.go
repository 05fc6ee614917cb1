package signaling

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/utils"
)

// TransportConfig holds websocket connection settings
type TransportConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// Handler upgrades HTTP requests to signaling connections
type Handler struct {
	relay    *Relay
	cfg      TransportConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler for relay
func NewHandler(relay *Relay, cfg TransportConfig) *Handler {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}

	h := &Handler{relay: relay, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows any origin unless an allow list is configured. Requests
// without an Origin header come from non-browser clients and are accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// GenerateParticipantID returns an id for connections that do not supply one
func GenerateParticipantID() string {
	return "user-" + uuid.NewString()[:8]
}

// ServeWS upgrades the request and runs the connection until it closes.
// The participant is identified by the participant_id query parameter, with
// optional display_name and kind.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, meetingID string) {
	if meetingID == "" {
		http.Error(w, "Meeting ID is required", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	participant := models.Participant{
		ID:          query.Get("participant_id"),
		DisplayName: query.Get("display_name"),
		Kind:        models.ParseParticipantKind(query.Get("kind")),
	}
	if participant.ID == "" {
		participant.ID = GenerateParticipantID()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Printf("Error upgrading signaling connection: %v", err)
		return
	}

	client, err := h.relay.Join(meetingID, participant)
	if err != nil {
		h.reject(conn, err)
		return
	}

	go h.writePump(conn, client)
	h.readPump(conn, client)
}

// reject tells the peer why it could not join and closes the connection
func (h *Handler) reject(conn *websocket.Conn, err error) {
	defer conn.Close()

	code := websocket.CloseInternalServerErr
	if errors.Is(err, ErrMeetingFull) {
		code = websocket.CloseTryAgainLater
		frame, _ := json.Marshal(models.NewErrorMessage(models.ErrorMeetingFull, err.Error()))
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	} else if errors.Is(err, ErrRelayClosed) {
		code = websocket.CloseServiceRestart
	}

	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
}

// readPump feeds inbound frames to the relay. It owns the read side of conn.
func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.relay.Leave(client)
		conn.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Printf("Signaling connection for %s in meeting %s closed unexpectedly: %v",
					utils.SanitizeLogString(client.ParticipantID), utils.SanitizeLogString(client.MeetingID), err)
			}
			return
		}
		h.relay.Handle(client, data)
	}
}

// writePump drains the client's queue to conn and keeps the connection alive
// with pings. It owns the write side of conn.
func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				code, text := closeFrame(client.Reason())
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeFrame(reason CloseReason) (int, string) {
	switch reason {
	case CloseReplaced:
		return websocket.ClosePolicyViolation, "replaced by a newer connection"
	case CloseMeetingEnded:
		return websocket.CloseNormalClosure, "meeting ended"
	case CloseSlowConsumer:
		return websocket.ClosePolicyViolation, "connection too slow"
	case CloseShutdown:
		return websocket.CloseGoingAway, "server shutting down"
	default:
		return websocket.CloseNormalClosure, ""
	}
}
