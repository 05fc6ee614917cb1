package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navikt/meetcore/internal/analysis"
	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/repository"
	"github.com/navikt/meetcore/internal/session"
	"github.com/navikt/meetcore/internal/utils"
)

// Transcription errors
var (
	ErrInvalidRequest       = errors.New("invalid transcription request")
	ErrSessionAlreadyActive = errors.New("meeting already has an active transcription session")
	ErrSessionNotFound      = errors.New("transcription session not found")
	ErrSessionNotActive     = errors.New("transcription session is not active")
	ErrOutOfOrder           = errors.New("transcript chunk out of order")
)

// UtteranceCallback is a function type for finalized utterance callbacks
type UtteranceCallback func(models.Utterance)

// TranscriptionService is the server side of transcription sessions. It keeps
// session records, assembles utterances and hands them to the analysis sink.
type TranscriptionService struct {
	repo     repository.Repository
	store    *session.Store
	sink     analysis.Sink
	defaults models.TranscriptionConfig
	now      func() time.Time

	locks sync.Map // session id -> *sync.Mutex

	mu                 sync.RWMutex
	utteranceCallbacks []UtteranceCallback
}

// NewTranscriptionService creates a TranscriptionService
func NewTranscriptionService(repo repository.Repository, store *session.Store, sink analysis.Sink, defaults models.TranscriptionConfig) *TranscriptionService {
	return &TranscriptionService{
		repo:     repo,
		store:    store,
		sink:     sink,
		defaults: defaults.WithDefaults(models.DefaultTranscriptionConfig()),
		now:      time.Now,
	}
}

// RegisterUtteranceCallback registers a callback for every finalized utterance
func (s *TranscriptionService) RegisterUtteranceCallback(callback UtteranceCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utteranceCallbacks = append(s.utteranceCallbacks, callback)
}

// lock serializes all work on one session
func (s *TranscriptionService) lock(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m
}

// forget drops the lock of a session id that has no record. Unknown and
// terminal sessions are never written again. Caller holds the session lock.
func (s *TranscriptionService) forget(sessionID string, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		s.locks.Delete(sessionID)
	}
}

// Start creates a session for a meeting. A meeting has at most one active session.
func (s *TranscriptionService) Start(ctx context.Context, req models.StartTranscriptionRequest) (models.StartTranscriptionResponse, error) {
	if strings.TrimSpace(req.MeetingID) == "" {
		return models.StartTranscriptionResponse{}, fmt.Errorf("%w: meeting_id is required", ErrInvalidRequest)
	}

	cfg := s.defaults
	if req.Config != nil {
		cfg = req.Config.WithDefaults(s.defaults)
	}

	id := uuid.NewString()
	if err := s.store.ClaimTranscription(req.MeetingID, id); err != nil {
		return models.StartTranscriptionResponse{}, ErrSessionAlreadyActive
	}

	now := s.now().UTC()
	record := &models.TranscriptionSession{
		ID:           id,
		MeetingID:    req.MeetingID,
		Status:       models.TranscriptionActive,
		Config:       cfg,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := s.repo.SaveSession(ctx, record); err != nil {
		s.store.ReleaseTranscription(req.MeetingID, id)
		return models.StartTranscriptionResponse{}, fmt.Errorf("failed to save session: %w", err)
	}

	log.Printf("Started transcription session %s for meeting %s (%s, %d Hz)",
		id, utils.SanitizeLogString(req.MeetingID), utils.SanitizeLogString(cfg.Language), cfg.SampleRate)

	return models.StartTranscriptionResponse{
		SessionID: id,
		MeetingID: req.MeetingID,
		Status:    models.TranscriptionActive,
		Config:    cfg,
	}, nil
}

// getSession maps repository misses to ErrSessionNotFound
func (s *TranscriptionService) getSession(ctx context.Context, sessionID string) (*models.TranscriptionSession, error) {
	record, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return record, nil
}

// ProcessChunk records a chunk. Interim chunks replace the pending partial
// text; a final chunk completes the utterance and supersedes the partial.
func (s *TranscriptionService) ProcessChunk(ctx context.Context, req models.TranscriptionChunkRequest) (models.ChunkResult, error) {
	if req.SessionID == "" {
		return models.ChunkResult{}, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.TranscriptText) == "" {
		return models.ChunkResult{}, fmt.Errorf("%w: transcript_text is required", ErrInvalidRequest)
	}

	m := s.lock(req.SessionID)
	defer m.Unlock()

	record, err := s.getSession(ctx, req.SessionID)
	if err != nil {
		s.forget(req.SessionID, err)
		return models.ChunkResult{}, err
	}
	if record.Status != models.TranscriptionActive {
		s.locks.Delete(req.SessionID)
		return models.ChunkResult{}, ErrSessionNotActive
	}
	if req.Sequence > 0 {
		if req.Sequence <= record.LastSequence {
			return models.ChunkResult{}, fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, req.Sequence, record.LastSequence)
		}
		record.LastSequence = req.Sequence
	}

	now := s.now().UTC()
	chunk := req.Chunk().Normalized(now)
	record.ChunkCount++
	record.ConfidenceSum += chunk.Confidence
	record.ConfidenceCount++
	record.LastActivity = now

	result := models.ChunkResult{
		SessionID:   record.ID,
		Confidence:  chunk.Confidence,
		ChunkNumber: record.ChunkCount,
	}

	if !chunk.IsFinal {
		record.PartialText = chunk.Text
		if err := s.repo.SaveSession(ctx, record); err != nil {
			return models.ChunkResult{}, fmt.Errorf("failed to save session: %w", err)
		}
		result.Interim = true
		result.PartialText = chunk.Text
		return result, nil
	}

	record.PartialText = ""
	if err := s.repo.SaveSession(ctx, record); err != nil {
		return models.ChunkResult{}, fmt.Errorf("failed to save session: %w", err)
	}

	s.emit(ctx, models.Utterance{
		SessionID:  record.ID,
		MeetingID:  record.MeetingID,
		Sequence:   int64(record.ChunkCount),
		Text:       strings.TrimSpace(chunk.Text),
		Confidence: chunk.Confidence,
		Timestamp:  chunk.Timestamp,
	})

	result.Processed = true
	result.FinalText = strings.TrimSpace(chunk.Text)
	return result, nil
}

// emit hands a finalized utterance to the sink and the callbacks
func (s *TranscriptionService) emit(ctx context.Context, u models.Utterance) {
	if s.sink != nil {
		if err := s.sink.Publish(ctx, u); err != nil {
			log.Printf("Error publishing utterance for session %s: %v", u.SessionID, err)
		}
	}

	s.mu.RLock()
	callbacks := append([]UtteranceCallback(nil), s.utteranceCallbacks...)
	s.mu.RUnlock()
	for _, callback := range callbacks {
		callback(u)
	}
}

// End ends a session, flushing any pending partial text as a final utterance.
// Ending a session that has already ended returns its statistics again.
func (s *TranscriptionService) End(ctx context.Context, sessionID string) (models.SessionStats, error) {
	m := s.lock(sessionID)
	defer m.Unlock()

	record, err := s.getSession(ctx, sessionID)
	if err != nil {
		s.forget(sessionID, err)
		return models.SessionStats{}, err
	}
	if record.Status.IsTerminal() {
		s.locks.Delete(sessionID)
		return stats(record), nil
	}

	now := s.now().UTC()
	if partial := strings.TrimSpace(record.PartialText); partial != "" {
		s.emit(ctx, models.Utterance{
			SessionID:  record.ID,
			MeetingID:  record.MeetingID,
			Sequence:   int64(record.ChunkCount),
			Text:       partial,
			Confidence: record.AverageConfidence(),
			Timestamp:  record.LastActivity,
		})
		record.PartialText = ""
	}

	record.Status = models.TranscriptionEnded
	record.EndedAt = now
	if err := s.repo.SaveSession(ctx, record); err != nil {
		return models.SessionStats{}, fmt.Errorf("failed to save session: %w", err)
	}
	s.store.ReleaseTranscription(record.MeetingID, record.ID)
	s.locks.Delete(sessionID)

	result := stats(record)
	log.Printf("Ended transcription session %s for meeting %s: %d chunks, average confidence %.2f",
		record.ID, utils.SanitizeLogString(record.MeetingID), result.TotalChunks, result.AverageConfidence)
	return result, nil
}

// Status returns the session record
func (s *TranscriptionService) Status(ctx context.Context, sessionID string) (*models.TranscriptionSession, error) {
	return s.getSession(ctx, sessionID)
}

// ListSessions returns the sessions of a meeting, or all sessions when meetingID is empty
func (s *TranscriptionService) ListSessions(ctx context.Context, meetingID string) ([]*models.TranscriptionSession, error) {
	if meetingID == "" {
		return s.repo.ListSessions(ctx)
	}
	return s.repo.ListSessionsByMeeting(ctx, meetingID)
}

// ReapIdle ends active sessions that have received nothing for longer than idle
func (s *TranscriptionService) ReapIdle(ctx context.Context, idle time.Duration) (int, error) {
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-idle)
	reaped := 0
	for _, record := range sessions {
		if record.Status != models.TranscriptionActive || record.LastActivity.After(cutoff) {
			continue
		}
		if _, err := s.End(ctx, record.ID); err != nil {
			log.Printf("Error ending idle transcription session %s: %v", record.ID, err)
			continue
		}
		reaped++
	}
	return reaped, nil
}

// Ping reports whether session storage is reachable
func (s *TranscriptionService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func stats(record *models.TranscriptionSession) models.SessionStats {
	end := record.EndedAt
	if end.IsZero() {
		end = record.LastActivity
	}
	return models.SessionStats{
		SessionID:         record.ID,
		MeetingID:         record.MeetingID,
		Status:            record.Status,
		TotalChunks:       record.ChunkCount,
		AverageConfidence: record.AverageConfidence(),
		DurationSeconds:   end.Sub(record.StartedAt).Seconds(),
		EndedAt:           record.EndedAt,
	}
}
