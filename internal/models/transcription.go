package models

import (
	"time"
)

// TranscriptionStatus represents the lifecycle state of a transcription session
type TranscriptionStatus string

const (
	TranscriptionUninitialized TranscriptionStatus = "uninitialized"
	TranscriptionActive        TranscriptionStatus = "active"
	TranscriptionEnded         TranscriptionStatus = "ended"
	TranscriptionError         TranscriptionStatus = "error"
)

// IsTerminal reports whether no further transitions are possible
func (s TranscriptionStatus) IsTerminal() bool {
	return s == TranscriptionEnded || s == TranscriptionError
}

// TranscriptionConfig holds recognizer settings fixed at session creation
type TranscriptionConfig struct {
	SampleRate      int    `json:"sample_rate"`
	Language        string `json:"language"`
	InterimResults  bool   `json:"interim_results"`
	MaxAlternatives int    `json:"max_alternatives"`
}

// DefaultTranscriptionConfig returns the settings used when a caller provides none
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		SampleRate:      16000,
		Language:        "en-US",
		InterimResults:  true,
		MaxAlternatives: 1,
	}
}

// WithDefaults fills zero fields from defaults. InterimResults is taken as given.
func (c TranscriptionConfig) WithDefaults(defaults TranscriptionConfig) TranscriptionConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.Language == "" {
		c.Language = defaults.Language
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = defaults.MaxAlternatives
	}
	return c
}

// TranscriptChunk is one unit of recognized speech text, interim or final
type TranscriptChunk struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Normalized returns the chunk with confidence bounded to [0,1] and a capture time set
func (c TranscriptChunk) Normalized(now time.Time) TranscriptChunk {
	c.Confidence = ClampAudioLevel(c.Confidence)
	if c.Timestamp.IsZero() {
		c.Timestamp = now
	}
	return c
}

// TranscriptionSession is the server-side record of a transcription session
type TranscriptionSession struct {
	ID              string              `json:"id"`
	MeetingID       string              `json:"meeting_id"`
	Status          TranscriptionStatus `json:"status"`
	Config          TranscriptionConfig `json:"config"`
	StartedAt       time.Time           `json:"started_at"`
	EndedAt         time.Time           `json:"ended_at,omitempty"`
	LastActivity    time.Time           `json:"last_activity"`
	ChunkCount      int                 `json:"chunk_count"`
	LastSequence    int64               `json:"last_sequence"`
	PartialText     string              `json:"partial_text,omitempty"`
	ConfidenceSum   float64             `json:"confidence_sum"`
	ConfidenceCount int                 `json:"confidence_count"`
}

// AverageConfidence returns the mean confidence of all received chunks
func (s *TranscriptionSession) AverageConfidence() float64 {
	if s.ConfidenceCount == 0 {
		return 0
	}
	return s.ConfidenceSum / float64(s.ConfidenceCount)
}

// Utterance is a finalized span of speech handed to the analysis consumer
type Utterance struct {
	SessionID  string    `json:"session_id"`
	MeetingID  string    `json:"meeting_id"`
	Sequence   int64     `json:"sequence"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// StartTranscriptionRequest is the body of POST /api/transcription/start
type StartTranscriptionRequest struct {
	MeetingID string               `json:"meeting_id"`
	Config    *TranscriptionConfig `json:"config,omitempty"`
}

// StartTranscriptionResponse is returned when a session is created
type StartTranscriptionResponse struct {
	SessionID string              `json:"session_id"`
	MeetingID string              `json:"meeting_id"`
	Status    TranscriptionStatus `json:"status"`
	Config    TranscriptionConfig `json:"config"`
}

// TranscriptionChunkRequest is the body of POST /api/transcription/process-chunk
type TranscriptionChunkRequest struct {
	SessionID      string    `json:"session_id"`
	Sequence       int64     `json:"sequence,omitempty"`
	TranscriptText string    `json:"transcript_text"`
	IsFinal        bool      `json:"is_final"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}

// Chunk converts the request to a TranscriptChunk
func (r TranscriptionChunkRequest) Chunk() TranscriptChunk {
	return TranscriptChunk{
		Text:       r.TranscriptText,
		IsFinal:    r.IsFinal,
		Confidence: r.Confidence,
		Timestamp:  r.Timestamp,
	}
}

// ChunkResult describes how the server handled a chunk
type ChunkResult struct {
	SessionID   string  `json:"session_id"`
	Interim     bool    `json:"interim"`
	Processed   bool    `json:"processed"`
	PartialText string  `json:"partial_text,omitempty"`
	FinalText   string  `json:"final_text,omitempty"`
	Confidence  float64 `json:"confidence"`
	ChunkNumber int     `json:"chunk_number,omitempty"`
}

// SessionStats summarizes a transcription session when it ends
type SessionStats struct {
	SessionID         string              `json:"session_id"`
	MeetingID         string              `json:"meeting_id"`
	Status            TranscriptionStatus `json:"status"`
	TotalChunks       int                 `json:"total_chunks"`
	AverageConfidence float64             `json:"average_confidence"`
	DurationSeconds   float64             `json:"session_duration_seconds"`
	EndedAt           time.Time           `json:"ended_at"`
}
