// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/models"
)

// Common errors
var (
	ErrNotFound = models.ErrNotFound
)

// Repository implements the repository interface with Redis storage
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.SessionTTL,
	}, nil
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

// Ping checks the connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// sessionKey returns the Redis key for a transcription session
func (r *Repository) sessionKey(id string) string {
	return fmt.Sprintf("%stranscriptions:%s", r.keyPrefix, id)
}

// meetingIndexKey returns the Redis key for the set of session ids of a meeting
func (r *Repository) meetingIndexKey(meetingID string) string {
	return fmt.Sprintf("%smeetings:%s:transcriptions", r.keyPrefix, meetingID)
}

// SaveSession stores the session record and indexes it by meeting
func (r *Repository) SaveSession(ctx context.Context, session *models.TranscriptionSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	indexKey := r.meetingIndexKey(session.MeetingID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(session.ID), data, r.ttl)
	pipe.SAdd(ctx, indexKey, session.ID)
	if r.ttl > 0 {
		pipe.Expire(ctx, indexKey, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.TranscriptionSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.TranscriptionSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all stored sessions ordered by start time
func (r *Repository) ListSessions(ctx context.Context) ([]*models.TranscriptionSession, error) {
	keys, err := r.client.Keys(ctx, r.sessionKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return r.load(ctx, keys)
}

// ListSessionsByMeeting returns the sessions of one meeting ordered by start time.
// Index entries whose record has expired are pruned.
func (r *Repository) ListSessionsByMeeting(ctx context.Context, meetingID string) ([]*models.TranscriptionSession, error) {
	indexKey := r.meetingIndexKey(meetingID)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list meeting sessions: %w", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	sessions, err := r.load(ctx, keys)
	if err != nil {
		return nil, err
	}

	if len(sessions) < len(ids) {
		found := make(map[string]bool, len(sessions))
		for _, s := range sessions {
			found[s.ID] = true
		}
		var stale []any
		for _, id := range ids {
			if !found[id] {
				stale = append(stale, id)
			}
		}
		if err := r.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune meeting index: %w", err)
		}
	}
	return sessions, nil
}

// load fetches and decodes session records with MGET
func (r *Repository) load(ctx context.Context, keys []string) ([]*models.TranscriptionSession, error) {
	if len(keys) == 0 {
		return []*models.TranscriptionSession{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	sessions := make([]*models.TranscriptionSession, 0, len(values))
	for _, v := range values {
		strData, ok := v.(string)
		if !ok {
			continue
		}
		var session models.TranscriptionSession
		if err := json.Unmarshal([]byte(strData), &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

// DeleteSession removes a session and its index entry
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	session, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(id))
	pipe.SRem(ctx, r.meetingIndexKey(session.MeetingID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
