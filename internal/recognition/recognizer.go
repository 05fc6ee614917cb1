// Package recognition runs continuous speech capture on top of a recognizer
// that may stop on its own or fail at any time
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the error condition reported by a recognizer
type ErrorCode string

const (
	ErrorNoSpeech          ErrorCode = "no-speech"
	ErrorAborted           ErrorCode = "aborted"
	ErrorAudioCapture      ErrorCode = "audio-capture"
	ErrorNetwork           ErrorCode = "network"
	ErrorNotAllowed        ErrorCode = "not-allowed"
	ErrorServiceNotAllowed ErrorCode = "service-not-allowed"
	ErrorPermissionDenied  ErrorCode = "permission-denied"
	// ErrorStartFailed is reported when the recognizer refuses to start
	ErrorStartFailed ErrorCode = "start-failed"
)

// IsFatal reports whether capture can never succeed again after this error
func (c ErrorCode) IsFatal() bool {
	switch c {
	case ErrorPermissionDenied, ErrorNotAllowed, ErrorServiceNotAllowed, ErrorStartFailed:
		return true
	}
	return false
}

// ErrRecognizerFatal matches every fatal RecognizerError with errors.Is
var ErrRecognizerFatal = errors.New("recognizer failed permanently")

// RecognizerError describes an error event from the recognizer
type RecognizerError struct {
	Code    ErrorCode
	Message string
}

func (e *RecognizerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognizer error: %s", e.Code)
	}
	return fmt.Sprintf("recognizer error: %s: %s", e.Code, e.Message)
}

// Is lets callers test for ErrRecognizerFatal
func (e *RecognizerError) Is(target error) bool {
	return target == ErrRecognizerFatal && e.Code.IsFatal()
}

// Config configures a recognizer run
type Config struct {
	Language        string
	InterimResults  bool
	MaxAlternatives int
	SampleRate      int
}

// EventKind identifies a recognizer event
type EventKind int

const (
	EventStart EventKind = iota
	EventResult
	EventError
)

// Result is a recognized span of speech
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64 // 0 when the engine does not report one
	Timestamp  time.Time
}

// Event is emitted by a running recognizer
type Event struct {
	Kind    EventKind
	Result  Result
	Code    ErrorCode
	Message string
}

// Recognizer is a speech engine that captures until it decides to stop.
//
// Start begins one capture run. The returned channel delivers the run's
// events and is closed when the run ends, whether the engine stopped on its
// own, after an error event, or because Stop was called or ctx was canceled.
// Implementations must stop sending once ctx is done.
type Recognizer interface {
	Start(ctx context.Context, cfg Config) (<-chan Event, error)
	Stop() error
}
