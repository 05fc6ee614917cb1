// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/navikt/meetcore/internal/models"
)

// ErrNotFound is returned when a requested entity is not found
var ErrNotFound = models.ErrNotFound

// Repository implements the repository interface with in-memory storage
type Repository struct {
	sessions map[string]models.TranscriptionSession
	mu       sync.RWMutex
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		sessions: make(map[string]models.TranscriptionSession),
	}
}

// SaveSession stores a copy of the session record
func (r *Repository) SaveSession(ctx context.Context, session *models.TranscriptionSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = *session
	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.TranscriptionSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

// ListSessions returns all sessions ordered by start time
func (r *Repository) ListSessions(ctx context.Context) ([]*models.TranscriptionSession, error) {
	return r.list(func(*models.TranscriptionSession) bool { return true }), nil
}

// ListSessionsByMeeting returns the sessions of one meeting ordered by start time
func (r *Repository) ListSessionsByMeeting(ctx context.Context, meetingID string) ([]*models.TranscriptionSession, error) {
	return r.list(func(s *models.TranscriptionSession) bool { return s.MeetingID == meetingID }), nil
}

func (r *Repository) list(keep func(*models.TranscriptionSession) bool) []*models.TranscriptionSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*models.TranscriptionSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		session := s
		if keep(&session) {
			sessions = append(sessions, &session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// DeleteSession removes a session by ID
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Ping always succeeds for the in-memory repository
func (r *Repository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory repository
func (r *Repository) Close() error {
	return nil
}
