// Package session holds the authoritative in-memory state of live meetings
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/navikt/meetcore/internal/models"
)

// ErrNotFound is returned when a meeting or participant is not present
var ErrNotFound = models.ErrNotFound

// ErrTranscriptionActive is returned when a meeting already has an active transcription session
var ErrTranscriptionActive = errors.New("meeting already has an active transcription session")

// meeting is a single Meeting Session entry. A removed entry has been
// unlinked from the store and must not be mutated again.
type meeting struct {
	mu           sync.Mutex
	participants map[string]models.Participant
	removed      bool
}

// Store keeps meetings and their participants. Each meeting is guarded by its
// own mutex; there is no lock shared across meetings.
type Store struct {
	meetings       sync.Map // meeting id -> *meeting
	transcriptions sync.Map // meeting id -> transcription session id
	now            func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{now: time.Now}
}

// acquire returns the locked entry for meetingID, creating it if requested.
// It returns nil when the meeting does not exist and create is false.
func (s *Store) acquire(meetingID string, create bool) *meeting {
	for {
		var m *meeting
		if v, ok := s.meetings.Load(meetingID); ok {
			m = v.(*meeting)
		} else if create {
			v, _ := s.meetings.LoadOrStore(meetingID, &meeting{participants: make(map[string]models.Participant)})
			m = v.(*meeting)
		} else {
			return nil
		}

		m.mu.Lock()
		if !m.removed {
			return m
		}
		// Deleted between lookup and lock, look again
		m.mu.Unlock()
	}
}

// remove unlinks m from the store. Caller holds m.mu.
func (s *Store) remove(meetingID string, m *meeting) {
	m.removed = true
	s.meetings.CompareAndDelete(meetingID, m)
}

// Register adds a participant to a meeting, creating the meeting if needed.
// Registering an id that is already present updates it in place and keeps the
// original join time. The second return value reports whether the participant
// was newly added.
func (s *Store) Register(meetingID string, p models.Participant) (models.Participant, bool) {
	m := s.acquire(meetingID, true)
	defer m.mu.Unlock()

	existing, ok := m.participants[p.ID]
	if ok {
		existing.State = models.StateConnected
		if p.DisplayName != "" {
			existing.DisplayName = p.DisplayName
		}
		if p.Kind != "" {
			existing.Kind = p.Kind
		}
		m.participants[p.ID] = existing
		return existing, false
	}

	if p.Kind == "" {
		p.Kind = models.ParticipantHuman
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now().UTC()
	}
	p.State = models.StateConnected
	p.AudioLevel = models.ClampAudioLevel(p.AudioLevel)
	m.participants[p.ID] = p
	return p, true
}

// Unregister removes a participant. The meeting is deleted when it becomes empty.
// The returned participant is marked disconnected.
func (s *Store) Unregister(meetingID, participantID string) (models.Participant, bool) {
	m := s.acquire(meetingID, false)
	if m == nil {
		return models.Participant{}, false
	}
	defer m.mu.Unlock()

	p, ok := m.participants[participantID]
	if !ok {
		return models.Participant{}, false
	}
	delete(m.participants, participantID)
	if len(m.participants) == 0 {
		s.remove(meetingID, m)
	}

	p.State = models.StateDisconnected
	return p, true
}

// Update applies a patch to a participant and returns the result
func (s *Store) Update(meetingID, participantID string, patch models.ParticipantPatch) (models.Participant, error) {
	m := s.acquire(meetingID, false)
	if m == nil {
		return models.Participant{}, ErrNotFound
	}
	defer m.mu.Unlock()

	p, ok := m.participants[participantID]
	if !ok {
		return models.Participant{}, ErrNotFound
	}
	p.Apply(patch)
	m.participants[participantID] = p
	return p, nil
}

// Get returns a single participant
func (s *Store) Get(meetingID, participantID string) (models.Participant, bool) {
	m := s.acquire(meetingID, false)
	if m == nil {
		return models.Participant{}, false
	}
	defer m.mu.Unlock()

	p, ok := m.participants[participantID]
	return p, ok
}

// ListParticipants returns the participants of a meeting ordered by join time, then id
func (s *Store) ListParticipants(meetingID string) []models.Participant {
	m := s.acquire(meetingID, false)
	if m == nil {
		return []models.Participant{}
	}
	defer m.mu.Unlock()

	list := make([]models.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Count returns the number of participants in a meeting
func (s *Store) Count(meetingID string) int {
	m := s.acquire(meetingID, false)
	if m == nil {
		return 0
	}
	defer m.mu.Unlock()
	return len(m.participants)
}

// MeetingExists reports whether a meeting has at least one participant
func (s *Store) MeetingExists(meetingID string) bool {
	m := s.acquire(meetingID, false)
	if m == nil {
		return false
	}
	m.mu.Unlock()
	return true
}

// DeleteMeeting removes a meeting and returns the participants it held
func (s *Store) DeleteMeeting(meetingID string) []models.Participant {
	m := s.acquire(meetingID, false)
	if m == nil {
		return nil
	}
	defer m.mu.Unlock()

	removed := make([]models.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		p.State = models.StateDisconnected
		removed = append(removed, p)
	}
	m.participants = make(map[string]models.Participant)
	s.remove(meetingID, m)
	return removed
}

// MeetingIDs returns the ids of all live meetings in sorted order
func (s *Store) MeetingIDs() []string {
	var ids []string
	s.meetings.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// ClaimTranscription records sessionID as the active transcription session of a
// meeting. Claiming again with the same session id is a no-op.
func (s *Store) ClaimTranscription(meetingID, sessionID string) error {
	current, loaded := s.transcriptions.LoadOrStore(meetingID, sessionID)
	if loaded && current.(string) != sessionID {
		return ErrTranscriptionActive
	}
	return nil
}

// ReleaseTranscription clears the active transcription entry if it still names sessionID
func (s *Store) ReleaseTranscription(meetingID, sessionID string) bool {
	return s.transcriptions.CompareAndDelete(meetingID, sessionID)
}

// ActiveTranscription returns the active transcription session id of a meeting
func (s *Store) ActiveTranscription(meetingID string) (string, bool) {
	v, ok := s.transcriptions.Load(meetingID)
	if !ok {
		return "", false
	}
	return v.(string), true
}
