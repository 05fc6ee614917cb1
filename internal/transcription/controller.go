// Package transcription drives a client-held transcription session: it owns the
// session lifecycle, feeds it from a recognition loop and delivers chunks to
// the backend in order
package transcription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/recognition"
	"github.com/navikt/meetcore/internal/utils"
)

var (
	// ErrSessionStartFailed is returned when the backend did not create a session
	ErrSessionStartFailed = errors.New("transcription session start failed")
	// ErrNoActiveSession is returned when a chunk is submitted outside the active state
	ErrNoActiveSession = errors.New("no active transcription session")
	// ErrAlreadyStarted is returned when Start is called on a controller that has been used
	ErrAlreadyStarted = errors.New("transcription controller already started")
)

// Collaborator is the backend that owns the server side of a session
type Collaborator interface {
	StartSession(ctx context.Context, meetingID string, cfg models.TranscriptionConfig) (models.StartTranscriptionResponse, error)
	ProcessChunk(ctx context.Context, sessionID string, sequence int64, chunk models.TranscriptChunk) error
	EndSession(ctx context.Context, sessionID string) (models.SessionStats, error)
}

// Options tunes a Controller
type Options struct {
	RestartBackoff  time.Duration
	DeliveryTimeout time.Duration
	EndTimeout      time.Duration
}

type queuedChunk struct {
	sequence int64
	chunk    models.TranscriptChunk
}

// Controller is one transcription session. The lifecycle is
// uninitialized -> active -> ended | error, and a controller is not reused.
type Controller struct {
	collab     Collaborator
	recognizer recognition.Recognizer
	opts       Options

	mu       sync.Mutex
	status   models.TranscriptionStatus
	starting bool
	session  models.StartTranscriptionResponse
	stats    models.SessionStats
	failure  error
	cancel   context.CancelFunc
	loop     *recognition.Loop

	// Single ordered delivery queue
	pending  []queuedChunk
	sequence int64
	draining bool
	wake     chan struct{}

	loopDone   chan struct{}
	workerDone chan struct{}
	finished   chan struct{}

	errs     chan error
	warnings chan error
}

// NewController creates a controller. recognizer may be nil, in which case
// chunks only arrive through SubmitChunk.
func NewController(collab Collaborator, recognizer recognition.Recognizer, opts Options) *Controller {
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = recognition.DefaultRestartBackoff
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.EndTimeout <= 0 {
		opts.EndTimeout = 10 * time.Second
	}
	return &Controller{
		collab:     collab,
		recognizer: recognizer,
		opts:       opts,
		status:     models.TranscriptionUninitialized,
		wake:       make(chan struct{}, 1),
		loopDone:   make(chan struct{}),
		workerDone: make(chan struct{}),
		finished:   make(chan struct{}),
		errs:       make(chan error, 1),
		warnings:   make(chan error, 16),
	}
}

// Start creates the backend session and begins capture
func (c *Controller) Start(ctx context.Context, meetingID string, cfg models.TranscriptionConfig) (models.StartTranscriptionResponse, error) {
	c.mu.Lock()
	if c.status != models.TranscriptionUninitialized || c.starting {
		c.mu.Unlock()
		return models.StartTranscriptionResponse{}, ErrAlreadyStarted
	}
	c.starting = true
	c.mu.Unlock()

	resp, err := c.collab.StartSession(ctx, meetingID, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	if err != nil {
		return models.StartTranscriptionResponse{}, fmt.Errorf("%w: %v", ErrSessionStartFailed, err)
	}
	if c.status != models.TranscriptionUninitialized {
		// End was called while the backend was creating the session
		go c.endRemote(resp.SessionID)
		return models.StartTranscriptionResponse{}, fmt.Errorf("%w: controller ended during start", ErrSessionStartFailed)
	}

	c.session = resp
	c.status = models.TranscriptionActive
	go c.deliver(resp.SessionID)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if c.recognizer != nil {
		effective := resp.Config
		if effective.Language == "" {
			effective = cfg
		}
		c.loop = recognition.NewLoop(c.recognizer, c, recognition.LoopConfig{
			Recognizer: recognition.Config{
				Language:        effective.Language,
				InterimResults:  effective.InterimResults,
				MaxAlternatives: effective.MaxAlternatives,
				SampleRate:      effective.SampleRate,
			},
			RestartBackoff: c.opts.RestartBackoff,
		})
		go c.runLoop(loopCtx)
	} else {
		close(c.loopDone)
	}

	log.Printf("Transcription session %s started for meeting %s",
		utils.SanitizeLogString(resp.SessionID), utils.SanitizeLogString(meetingID))
	return resp, nil
}

func (c *Controller) runLoop(ctx context.Context) {
	defer close(c.loopDone)
	if err := c.loop.Run(ctx); err != nil {
		c.fail(err)
	}
}

// SubmitChunk queues a chunk for delivery. It fails with ErrNoActiveSession
// unless the session is active.
func (c *Controller) SubmitChunk(chunk models.TranscriptChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != models.TranscriptionActive {
		return ErrNoActiveSession
	}
	c.sequence++
	c.pending = append(c.pending, queuedChunk{sequence: c.sequence, chunk: chunk.Normalized(time.Now())})
	c.signal()
	return nil
}

// Active reports whether the session is active
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == models.TranscriptionActive
}

// Warn reports a recoverable problem to the caller
func (c *Controller) Warn(err error) {
	log.Printf("Transcription warning: %v", err)
	select {
	case c.warnings <- err:
	default:
	}
}

// End stops capture, delivers the queued chunks, and ends the backend session.
// It may be called any number of times. If ctx is done before the queue has
// drained, the remaining chunks are dropped, End returns ctx.Err() and the
// backend session is ended in the background within EndTimeout.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case models.TranscriptionUninitialized:
		c.status = models.TranscriptionEnded
		close(c.finished)
		c.mu.Unlock()
		return nil
	case models.TranscriptionEnded, models.TranscriptionError:
		c.mu.Unlock()
		select {
		case <-c.finished:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	c.status = models.TranscriptionEnded
	c.draining = true
	c.signal()
	cancel := c.cancel
	sessionID := c.session.SessionID
	c.mu.Unlock()

	// Stops the recognizer and any pending restart
	cancel()

	drained := make(chan struct{})
	go func() {
		<-c.loopDone
		<-c.workerDone
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		c.mu.Lock()
		dropped := len(c.pending)
		c.pending = nil
		c.mu.Unlock()
		log.Printf("Stopped draining transcription session %s, %d queued chunks dropped: %v",
			utils.SanitizeLogString(sessionID), dropped, ctx.Err())

		go func() {
			defer close(c.finished)
			<-drained
			c.endRemote(sessionID)
		}()
		return ctx.Err()
	}

	stats, err := c.collab.EndSession(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			go func() {
				defer close(c.finished)
				c.endRemote(sessionID)
			}()
		} else {
			close(c.finished)
		}
		return fmt.Errorf("failed to end transcription session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	close(c.finished)
	log.Printf("Transcription session %s ended after %d chunks",
		utils.SanitizeLogString(sessionID), stats.TotalChunks)
	return nil
}

// fail moves the session to error after an unrecoverable recognizer failure
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.status != models.TranscriptionActive {
		c.mu.Unlock()
		return
	}
	c.status = models.TranscriptionError
	c.failure = err
	c.draining = true
	c.signal()
	cancel := c.cancel
	sessionID := c.session.SessionID
	c.mu.Unlock()

	cancel()
	log.Printf("Transcription session %s failed: %v", utils.SanitizeLogString(sessionID), err)

	select {
	case c.errs <- err:
	default:
	}

	go func() {
		defer close(c.finished)
		<-c.loopDone
		<-c.workerDone
		c.endRemote(sessionID)
	}()
}

func (c *Controller) endRemote(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.EndTimeout)
	defer cancel()
	if _, err := c.collab.EndSession(ctx, sessionID); err != nil {
		log.Printf("Error ending transcription session %s: %v", utils.SanitizeLogString(sessionID), err)
	}
}

// signal wakes the delivery worker. Caller holds c.mu.
func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// deliver sends queued chunks one at a time, in submission order
func (c *Controller) deliver(sessionID string) {
	defer close(c.workerDone)

	for {
		c.mu.Lock()
		for len(c.pending) == 0 {
			if c.draining {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			<-c.wake
			c.mu.Lock()
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DeliveryTimeout)
		err := c.collab.ProcessChunk(ctx, sessionID, next.sequence, next.chunk)
		cancel()
		if err != nil {
			c.Warn(fmt.Errorf("failed to deliver chunk %d (%q): %w", next.sequence, utils.Preview(next.chunk.Text), err))
		}
	}
}

// Status returns the lifecycle state
func (c *Controller) Status() models.TranscriptionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session returns the backend session description
func (c *Controller) Session() models.StartTranscriptionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stats returns the statistics reported when the session ended
func (c *Controller) Stats() models.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Err returns the error that moved the session to error, if any
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Errors delivers the terminal error when the session fails
func (c *Controller) Errors() <-chan error {
	return c.errs
}

// Warnings delivers recoverable problems such as transient recognizer errors
func (c *Controller) Warnings() <-chan error {
	return c.warnings
}

// Done is closed once the session has been torn down
func (c *Controller) Done() <-chan struct{} {
	return c.finished
}
