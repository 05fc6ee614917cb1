package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a requested entity is not found
var ErrNotFound = errors.New("entity not found")

// ParticipantKind distinguishes human attendees from AI agents
type ParticipantKind string

const (
	ParticipantHuman ParticipantKind = "human"
	ParticipantAI    ParticipantKind = "ai"
)

// ParseParticipantKind converts a query or payload value to a ParticipantKind.
// Unknown values fall back to human.
func ParseParticipantKind(s string) ParticipantKind {
	if ParticipantKind(s) == ParticipantAI {
		return ParticipantAI
	}
	return ParticipantHuman
}

// ConnectionState represents whether a participant currently holds a signaling connection
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// Participant represents a user or agent taking part in a meeting
type Participant struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name,omitempty"`
	Kind        ParticipantKind `json:"kind"`
	State       ConnectionState `json:"connection_state"`
	Muted       bool            `json:"muted"`
	Speaking    bool            `json:"speaking"`
	AudioLevel  float64         `json:"audio_level"`
	JoinedAt    time.Time       `json:"joined_at"`
}

// ParticipantPatch is a partial update of a participant's mutable fields.
// ParticipantID names the subject; when empty the sender is the subject.
type ParticipantPatch struct {
	ParticipantID string   `json:"participant_id,omitempty"`
	DisplayName   *string  `json:"display_name,omitempty"`
	Muted         *bool    `json:"muted,omitempty"`
	Speaking      *bool    `json:"speaking,omitempty"`
	AudioLevel    *float64 `json:"audio_level,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ParticipantPatch) IsEmpty() bool {
	return p.DisplayName == nil && p.Muted == nil && p.Speaking == nil && p.AudioLevel == nil
}

// Apply copies the fields set in the patch onto the participant
func (p *Participant) Apply(patch ParticipantPatch) {
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Muted != nil {
		p.Muted = *patch.Muted
	}
	if patch.Speaking != nil {
		p.Speaking = *patch.Speaking
	}
	if patch.AudioLevel != nil {
		p.AudioLevel = ClampAudioLevel(*patch.AudioLevel)
	}
}

// ClampAudioLevel bounds an audio level to [0,1]
func ClampAudioLevel(level float64) float64 {
	switch {
	case level != level: // NaN
		return 0
	case level < 0:
		return 0
	case level > 1:
		return 1
	}
	return level
}

// MeetingSummary is a read-only view of a live meeting
type MeetingSummary struct {
	ID                     string `json:"id"`
	ParticipantCount       int    `json:"participant_count"`
	HumanCount             int    `json:"human_count"`
	AICount                int    `json:"ai_count"`
	TranscriptionSessionID string `json:"transcription_session_id,omitempty"`
}

// MeetingPresence is a point-in-time view of who is in a meeting, pushed to dashboard listeners
type MeetingPresence struct {
	MeetingID    string        `json:"meeting_id"`
	Active       bool          `json:"active"`
	Participants []Participant `json:"participants"`
	Timestamp    time.Time     `json:"timestamp"`
}
