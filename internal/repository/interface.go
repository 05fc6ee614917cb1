// Package repository defines interfaces for data storage
package repository

import (
	"context"

	"github.com/navikt/meetcore/internal/models"
)

// Repository stores server-side transcription session records
type Repository interface {
	SaveSession(ctx context.Context, session *models.TranscriptionSession) error
	GetSession(ctx context.Context, id string) (*models.TranscriptionSession, error)
	ListSessions(ctx context.Context) ([]*models.TranscriptionSession, error)
	ListSessionsByMeeting(ctx context.Context, meetingID string) ([]*models.TranscriptionSession, error)
	DeleteSession(ctx context.Context, id string) error

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error
	Close() error
}
