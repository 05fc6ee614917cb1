package service

import (
	"errors"
	"sync"
	"time"

	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/session"
)

// ErrMeetingNotFound is returned when a meeting has no connected participants
var ErrMeetingNotFound = errors.New("meeting not found")

// PresenceCallback is a function type for presence update callbacks
type PresenceCallback func(models.MeetingPresence)

// MeetingService answers presence queries over the live session store
type MeetingService struct {
	store *session.Store
	now   func() time.Time

	mu              sync.RWMutex
	updateCallbacks []PresenceCallback
}

// NewMeetingService creates a new MeetingService over store
func NewMeetingService(store *session.Store) *MeetingService {
	return &MeetingService{
		store:           store,
		now:             time.Now,
		updateCallbacks: make([]PresenceCallback, 0),
	}
}

// RegisterUpdateCallback registers a callback function to be called when presence changes
func (s *MeetingService) RegisterUpdateCallback(callback PresenceCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCallbacks = append(s.updateCallbacks, callback)
}

// NotifyPresenceChanged publishes the current presence of a meeting to all callbacks
func (s *MeetingService) NotifyPresenceChanged(meetingID string) {
	participants := s.store.ListParticipants(meetingID)
	presence := models.MeetingPresence{
		MeetingID:    meetingID,
		Active:       len(participants) > 0,
		Participants: participants,
		Timestamp:    s.now().UTC(),
	}

	s.mu.RLock()
	callbacks := append([]PresenceCallback(nil), s.updateCallbacks...)
	s.mu.RUnlock()

	for _, callback := range callbacks {
		callback(presence)
	}
}

// ListMeetings returns a summary of every live meeting
func (s *MeetingService) ListMeetings() []models.MeetingSummary {
	ids := s.store.MeetingIDs()
	summaries := make([]models.MeetingSummary, 0, len(ids))
	for _, id := range ids {
		summary, err := s.GetMeeting(id)
		if err != nil {
			// Emptied since the ids were listed
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// GetMeeting returns the summary of a single meeting
func (s *MeetingService) GetMeeting(meetingID string) (models.MeetingSummary, error) {
	participants := s.store.ListParticipants(meetingID)
	if len(participants) == 0 {
		return models.MeetingSummary{}, ErrMeetingNotFound
	}

	summary := models.MeetingSummary{ID: meetingID, ParticipantCount: len(participants)}
	for _, p := range participants {
		if p.Kind == models.ParticipantAI {
			summary.AICount++
		} else {
			summary.HumanCount++
		}
	}
	if sessionID, ok := s.store.ActiveTranscription(meetingID); ok {
		summary.TranscriptionSessionID = sessionID
	}
	return summary, nil
}

// GetParticipants returns the participants of a meeting
func (s *MeetingService) GetParticipants(meetingID string) ([]models.Participant, error) {
	participants := s.store.ListParticipants(meetingID)
	if len(participants) == 0 {
		return nil, ErrMeetingNotFound
	}
	return participants, nil
}
