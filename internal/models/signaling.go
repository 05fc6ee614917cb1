package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// MessageType identifies a signaling message variant
type MessageType string

const (
	MessageJoinMeeting        MessageType = "join_meeting"
	MessageLeaveMeeting       MessageType = "leave_meeting"
	MessageParticipantJoined  MessageType = "participant_joined"
	MessageParticipantLeft    MessageType = "participant_left"
	MessageParticipantUpdated MessageType = "participant_updated"
	MessageOpaque             MessageType = "message"
	MessageMeetingEnded       MessageType = "meeting_ended"
	MessageOffer              MessageType = "offer"
	MessageAnswer             MessageType = "answer"
	MessageICECandidate       MessageType = "ice_candidate"

	// Server to client only
	MessageParticipantList MessageType = "participant_list"
	MessageError           MessageType = "error"
)

// IsNegotiation reports whether messages of this type are routed to a single target
func (t MessageType) IsNegotiation() bool {
	return t == MessageOffer || t == MessageAnswer || t == MessageICECandidate
}

// ErrorCode identifies a relay-local error reported back to a sender
type ErrorCode string

const (
	ErrorInvalidMessage    ErrorCode = "invalid_message"
	ErrorTargetUnreachable ErrorCode = "target_unreachable"
	ErrorStaleParticipant  ErrorCode = "stale_participant"
	ErrorMeetingFull       ErrorCode = "meeting_full"
)

// ErrorEvent is the body of an error frame
type ErrorEvent struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// SignalingMessage is a single frame exchanged over a signaling connection
type SignalingMessage struct {
	Type         MessageType     `json:"type"`
	MeetingID    string          `json:"meeting_id,omitempty"`
	SenderID     string          `json:"sender_id,omitempty"`
	TargetID     string          `json:"target_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Participant  *Participant    `json:"participant,omitempty"`
	Participants []Participant   `json:"participants,omitempty"`
	Error        *ErrorEvent     `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp,omitempty"`
}

// JoinPayload is the optional payload of a join_meeting message
type JoinPayload struct {
	DisplayName string          `json:"display_name,omitempty"`
	Kind        ParticipantKind `json:"kind,omitempty"`
}

var (
	// ErrUnknownMessageType is returned for frames whose type is not a client variant
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMissingTarget is returned for negotiation messages without target_id
	ErrMissingTarget = errors.New("negotiation message requires target_id")
	// ErrInvalidPayload is returned when a payload does not match its message type
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrServerField is returned for frames that set participant, participants or error
	ErrServerField = errors.New("participant, participants and error are set by the relay only")
)

// clientTypes are the variants a participant may send
var clientTypes = map[MessageType]bool{
	MessageJoinMeeting:        true,
	MessageLeaveMeeting:       true,
	MessageParticipantUpdated: true,
	MessageOpaque:             true,
	MessageMeetingEnded:       true,
	MessageOffer:              true,
	MessageAnswer:             true,
	MessageICECandidate:       true,
}

// ParseSignalingMessage decodes and validates a frame received from a participant
func ParseSignalingMessage(data []byte) (*SignalingMessage, error) {
	var msg SignalingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if !clientTypes[msg.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
	if msg.Participant != nil || msg.Participants != nil || msg.Error != nil {
		return nil, ErrServerField
	}

	switch msg.Type {
	case MessageOffer, MessageAnswer:
		if msg.TargetID == "" {
			return nil, ErrMissingTarget
		}
		if err := validateSessionDescription(msg.Type, msg.Payload); err != nil {
			return nil, err
		}
	case MessageICECandidate:
		if msg.TargetID == "" {
			return nil, ErrMissingTarget
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			return nil, fmt.Errorf("%w: ice candidate: %v", ErrInvalidPayload, err)
		}
	case MessageParticipantUpdated:
		if _, err := msg.Patch(); err != nil {
			return nil, err
		}
	case MessageJoinMeeting:
		if _, err := msg.Join(); err != nil {
			return nil, err
		}
	}

	return &msg, nil
}

// validateSessionDescription checks that an offer/answer carries an SDP of the matching type
func validateSessionDescription(t MessageType, payload json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("%w: session description: %v", ErrInvalidPayload, err)
	}

	want := webrtc.SDPTypeOffer
	if t == MessageAnswer {
		want = webrtc.SDPTypeAnswer
	}
	if desc.Type != want {
		return fmt.Errorf("%w: %s carries sdp type %s", ErrInvalidPayload, t, desc.Type)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidPayload)
	}
	return nil
}

// Patch decodes the payload of a participant_updated message
func (m *SignalingMessage) Patch() (ParticipantPatch, error) {
	var patch ParticipantPatch
	if len(m.Payload) == 0 {
		return patch, fmt.Errorf("%w: participant_updated requires a payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(m.Payload, &patch); err != nil {
		return patch, fmt.Errorf("%w: participant patch: %v", ErrInvalidPayload, err)
	}
	return patch, nil
}

// Join decodes the optional payload of a join_meeting message
func (m *SignalingMessage) Join() (JoinPayload, error) {
	var join JoinPayload
	if len(m.Payload) == 0 {
		return join, nil
	}
	if err := json.Unmarshal(m.Payload, &join); err != nil {
		return join, fmt.Errorf("%w: join: %v", ErrInvalidPayload, err)
	}
	return join, nil
}

// NewErrorMessage builds an error frame addressed to a single sender
func NewErrorMessage(code ErrorCode, message string) *SignalingMessage {
	return &SignalingMessage{
		Type:  MessageError,
		Error: &ErrorEvent{Code: code, Message: message},
	}
}
