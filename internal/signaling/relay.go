// Package signaling relays negotiation and presence messages between the
// participants of a meeting
package signaling

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/session"
	"github.com/navikt/meetcore/internal/utils"
)

var (
	// ErrMeetingFull is returned by Join when the meeting is at capacity
	ErrMeetingFull = errors.New("meeting is full")
	// ErrRelayClosed is returned by Join after Shutdown
	ErrRelayClosed = errors.New("relay is shut down")
)

// PresenceNotifier is told whenever the membership or participant state of a meeting changes
type PresenceNotifier interface {
	NotifyPresenceChanged(meetingID string)
}

// Config holds relay limits
type Config struct {
	MaxParticipants int // 0 means unlimited
	SendBufferSize  int
}

// CloseReason explains why the relay dropped a client
type CloseReason int

const (
	CloseNone CloseReason = iota
	CloseLeft
	CloseReplaced
	CloseMeetingEnded
	CloseSlowConsumer
	CloseShutdown
)

// Client is one participant connection registered with the relay. Frames
// queued for the participant are read from Outbound; the channel is closed
// when the relay drops the client.
type Client struct {
	ID            string
	MeetingID     string
	ParticipantID string

	send   chan []byte
	closed bool // guarded by the meeting lock
	reason CloseReason
}

// Outbound returns the queue of encoded frames for this client
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Reason reports why the client was dropped. Only valid once Outbound is closed.
func (c *Client) Reason() CloseReason {
	return c.reason
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close(reason CloseReason) {
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.send)
}

// hub is the connection table of one meeting. All state transitions for the
// meeting happen while holding mu, in arrival order.
type hub struct {
	mu      sync.Mutex
	clients map[string]*Client // participant id -> connection
	removed bool
}

// Relay routes signaling messages between connected participants
type Relay struct {
	store    *session.Store
	cfg      Config
	notifier PresenceNotifier
	meetings sync.Map // meeting id -> *hub
	shutdown atomic.Bool
	now      func() time.Time
}

// NewRelay creates a relay backed by store. notifier may be nil.
func NewRelay(store *session.Store, cfg Config, notifier PresenceNotifier) *Relay {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}
	return &Relay{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

// acquire returns the locked hub of a meeting, creating it if requested
func (r *Relay) acquire(meetingID string, create bool) *hub {
	for {
		var h *hub
		if v, ok := r.meetings.Load(meetingID); ok {
			h = v.(*hub)
		} else if create {
			v, _ := r.meetings.LoadOrStore(meetingID, &hub{clients: make(map[string]*Client)})
			h = v.(*hub)
		} else {
			return nil
		}

		h.mu.Lock()
		if !h.removed {
			return h
		}
		h.mu.Unlock()
	}
}

// release unlocks h, removing the hub first when it has no connections left
func (r *Relay) release(meetingID string, h *hub) {
	if len(h.clients) == 0 {
		h.removed = true
		r.meetings.CompareAndDelete(meetingID, h)
	}
	h.mu.Unlock()
}

func (r *Relay) notify(meetingID string) {
	if r.notifier != nil {
		r.notifier.NotifyPresenceChanged(meetingID)
	}
}

// Join registers a participant connection with a meeting. The new connection
// receives the participant list and everyone else is told about the arrival.
// A connection for a participant id that is already connected replaces the
// old one.
func (r *Relay) Join(meetingID string, p models.Participant) (*Client, error) {
	if r.shutdown.Load() {
		return nil, ErrRelayClosed
	}

	h := r.acquire(meetingID, true)
	old := h.clients[p.ID]
	if old == nil && r.cfg.MaxParticipants > 0 && len(h.clients) >= r.cfg.MaxParticipants {
		r.release(meetingID, h)
		log.Printf("Meeting %s is full, rejecting participant %s",
			utils.SanitizeLogString(meetingID), utils.SanitizeLogString(p.ID))
		return nil, ErrMeetingFull
	}

	c := &Client{
		ID:            uuid.NewString(),
		MeetingID:     meetingID,
		ParticipantID: p.ID,
		send:          make(chan []byte, r.cfg.SendBufferSize),
	}
	if old != nil {
		old.close(CloseReplaced)
		log.Printf("Participant %s reconnected to meeting %s, replacing previous connection",
			utils.SanitizeLogString(p.ID), utils.SanitizeLogString(meetingID))
	}
	h.clients[p.ID] = c

	registered, created := r.store.Register(meetingID, p)
	r.announceMembership(h, meetingID, c, registered, created)
	r.release(meetingID, h)

	log.Printf("Participant %s joined meeting %s (%d connected)",
		utils.SanitizeLogString(p.ID), utils.SanitizeLogString(meetingID), r.store.Count(meetingID))
	r.notify(meetingID)
	return c, nil
}

// announceMembership replies to c with the participant list and tells the
// others that the participant arrived (or changed, for a re-registration).
// Caller holds h.mu.
func (r *Relay) announceMembership(h *hub, meetingID string, c *Client, p models.Participant, created bool) {
	r.sendTo(h, meetingID, c, &models.SignalingMessage{
		Type:         models.MessageParticipantList,
		Participant:  &p,
		Participants: r.store.ListParticipants(meetingID),
	})

	announcement := models.MessageParticipantJoined
	if !created {
		announcement = models.MessageParticipantUpdated
	}
	r.broadcast(h, meetingID, &models.SignalingMessage{
		Type:        announcement,
		SenderID:    p.ID,
		Participant: &p,
	}, p.ID)
}

// Handle processes one inbound frame from c
func (r *Relay) Handle(c *Client, data []byte) {
	msg, parseErr := models.ParseSignalingMessage(data)

	h := r.acquire(c.MeetingID, false)
	if h == nil {
		return
	}
	if h.clients[c.ParticipantID] != c {
		// Connection was already dropped or replaced
		r.release(c.MeetingID, h)
		return
	}

	changed := false
	if parseErr != nil {
		log.Printf("Invalid signaling message from %s in meeting %s: %v",
			utils.SanitizeLogString(c.ParticipantID), utils.SanitizeLogString(c.MeetingID), parseErr)
		r.sendError(h, c, models.ErrorInvalidMessage, parseErr.Error())
	} else {
		msg.SenderID = c.ParticipantID
		msg.MeetingID = c.MeetingID
		msg.Timestamp = r.now().UTC()
		changed = r.dispatch(h, c, msg)
	}

	r.release(c.MeetingID, h)
	if changed {
		r.notify(c.MeetingID)
	}
}

// dispatch routes a validated message. It reports whether presence changed.
// Caller holds h.mu.
func (r *Relay) dispatch(h *hub, c *Client, msg *models.SignalingMessage) bool {
	meetingID := c.MeetingID

	switch msg.Type {
	case models.MessageOffer, models.MessageAnswer, models.MessageICECandidate:
		target := h.clients[msg.TargetID]
		if target == nil || msg.TargetID == c.ParticipantID {
			r.sendError(h, c, models.ErrorTargetUnreachable, "participant "+msg.TargetID+" is not connected to this meeting")
			return false
		}
		r.fanOut(h, meetingID, r.encode(msg), []*Client{target})
		return false

	case models.MessageParticipantUpdated:
		patch, _ := msg.Patch()
		subject := patch.ParticipantID
		if subject == "" {
			subject = c.ParticipantID
		}
		if subject != c.ParticipantID && !r.mayUpdateOthers(meetingID, c.ParticipantID) {
			r.sendError(h, c, models.ErrorInvalidMessage, "participant "+c.ParticipantID+" may only update itself")
			return false
		}
		updated, err := r.store.Update(meetingID, subject, patch)
		if err != nil {
			r.sendError(h, c, models.ErrorStaleParticipant, "participant "+subject+" is not in this meeting")
			return false
		}
		msg.Participant = &updated
		r.broadcast(h, meetingID, msg, c.ParticipantID)
		return true

	case models.MessageMeetingEnded:
		r.endMeeting(h, meetingID, msg)
		log.Printf("Meeting %s ended by %s",
			utils.SanitizeLogString(meetingID), utils.SanitizeLogString(c.ParticipantID))
		return true

	case models.MessageJoinMeeting:
		join, err := msg.Join()
		if err != nil {
			r.sendError(h, c, models.ErrorInvalidMessage, err.Error())
			return false
		}
		p := models.Participant{ID: c.ParticipantID, DisplayName: join.DisplayName}
		if join.Kind != "" {
			p.Kind = models.ParseParticipantKind(string(join.Kind))
		}
		registered, created := r.store.Register(meetingID, p)
		r.announceMembership(h, meetingID, c, registered, created)
		return true

	case models.MessageLeaveMeeting:
		r.removeAndAnnounce(h, meetingID, c, CloseLeft)
		return true

	default:
		r.broadcast(h, meetingID, msg, c.ParticipantID)
		return false
	}
}

// mayUpdateOthers reports whether the sender may patch another participant.
// Only AI agents do, to publish speaker activity for the room.
func (r *Relay) mayUpdateOthers(meetingID, senderID string) bool {
	sender, ok := r.store.Get(meetingID, senderID)
	return ok && sender.Kind == models.ParticipantAI
}

// Leave unregisters a connection that has gone away
func (r *Relay) Leave(c *Client) {
	h := r.acquire(c.MeetingID, false)
	if h == nil {
		return
	}

	changed := false
	if h.clients[c.ParticipantID] == c {
		changed = r.removeAndAnnounce(h, c.MeetingID, c, CloseLeft)
	}
	r.release(c.MeetingID, h)

	if changed {
		log.Printf("Participant %s left meeting %s",
			utils.SanitizeLogString(c.ParticipantID), utils.SanitizeLogString(c.MeetingID))
		r.notify(c.MeetingID)
	}
}

// MeetingParticipants returns the live participant list of a meeting
func (r *Relay) MeetingParticipants(meetingID string) []models.Participant {
	return r.store.ListParticipants(meetingID)
}

// Shutdown drops every connection. Subsequent joins fail with ErrRelayClosed.
func (r *Relay) Shutdown() {
	r.shutdown.Store(true)

	r.meetings.Range(func(key, _ any) bool {
		meetingID := key.(string)
		h := r.acquire(meetingID, false)
		if h == nil {
			return true
		}
		for id, c := range h.clients {
			c.close(CloseShutdown)
			delete(h.clients, id)
		}
		r.store.DeleteMeeting(meetingID)
		r.release(meetingID, h)
		return true
	})
}

// endMeeting delivers msg to every connection, closes them all and deletes the meeting.
// Caller holds h.mu.
func (r *Relay) endMeeting(h *hub, meetingID string, msg *models.SignalingMessage) {
	data := r.encode(msg)
	for id, c := range h.clients {
		if data != nil && !c.enqueue(data) {
			log.Printf("Could not deliver meeting_ended to %s, queue full", utils.SanitizeLogString(id))
		}
		c.close(CloseMeetingEnded)
		delete(h.clients, id)
	}
	r.store.DeleteMeeting(meetingID)
}

// removeAndAnnounce drops c and tells the remaining participants. Caller holds h.mu.
func (r *Relay) removeAndAnnounce(h *hub, meetingID string, c *Client, reason CloseReason) bool {
	delete(h.clients, c.ParticipantID)
	c.close(reason)

	left, ok := r.store.Unregister(meetingID, c.ParticipantID)
	if !ok {
		return false
	}
	r.broadcast(h, meetingID, &models.SignalingMessage{
		Type:        models.MessageParticipantLeft,
		SenderID:    left.ID,
		Participant: &left,
	}, left.ID)
	return true
}

// broadcast sends msg to every connection of the meeting except the one for exceptID.
// Caller holds h.mu.
func (r *Relay) broadcast(h *hub, meetingID string, msg *models.SignalingMessage, exceptID string) {
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != exceptID {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return
	}
	r.fanOut(h, meetingID, r.encode(r.stamp(meetingID, msg)), targets)
}

// fanOut queues data on every target without blocking. A target whose queue is
// full is disconnected, and its departure is announced to the rest, which may
// in turn evict further slow clients. Caller holds h.mu.
func (r *Relay) fanOut(h *hub, meetingID string, data []byte, targets []*Client) {
	if data == nil {
		return
	}

	var evicted []*Client
	for _, c := range targets {
		if !c.enqueue(data) {
			evicted = append(evicted, c)
		}
	}

	for len(evicted) > 0 {
		c := evicted[0]
		evicted = evicted[1:]
		if h.clients[c.ParticipantID] != c {
			continue
		}

		log.Printf("Disconnecting slow participant %s from meeting %s",
			utils.SanitizeLogString(c.ParticipantID), utils.SanitizeLogString(meetingID))
		delete(h.clients, c.ParticipantID)
		c.close(CloseSlowConsumer)

		left, ok := r.store.Unregister(meetingID, c.ParticipantID)
		if !ok {
			continue
		}
		notice := r.encode(r.stamp(meetingID, &models.SignalingMessage{
			Type:        models.MessageParticipantLeft,
			SenderID:    left.ID,
			Participant: &left,
		}))
		for _, other := range h.clients {
			if !other.enqueue(notice) {
				evicted = append(evicted, other)
			}
		}
	}
}

// sendTo queues msg for a single live connection. Caller holds h.mu.
func (r *Relay) sendTo(h *hub, meetingID string, c *Client, msg *models.SignalingMessage) {
	if h.clients[c.ParticipantID] != c {
		return
	}
	r.fanOut(h, meetingID, r.encode(r.stamp(meetingID, msg)), []*Client{c})
}

func (r *Relay) sendError(h *hub, c *Client, code models.ErrorCode, message string) {
	r.sendTo(h, c.MeetingID, c, models.NewErrorMessage(code, message))
}

// stamp fills in the meeting id and server time of relay-originated messages
func (r *Relay) stamp(meetingID string, msg *models.SignalingMessage) *models.SignalingMessage {
	if msg.MeetingID == "" {
		msg.MeetingID = meetingID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now().UTC()
	}
	return msg
}

func (r *Relay) encode(msg *models.SignalingMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding %s message: %v", msg.Type, err)
		return nil
	}
	return data
}
