package recognition

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/navikt/meetcore/internal/models"
)

// DefaultRestartBackoff is the pause before capture is restarted after a run ends
const DefaultRestartBackoff = 300 * time.Millisecond

// Sink receives what the loop produces. It is implemented by the transcription controller.
type Sink interface {
	// SubmitChunk accepts a recognized span. An error stops the loop.
	SubmitChunk(chunk models.TranscriptChunk) error
	// Active reports whether the owning session still wants capture
	Active() bool
	// Warn is told about recoverable recognizer errors
	Warn(err error)
}

// LoopConfig configures a Loop
type LoopConfig struct {
	Recognizer     Config
	RestartBackoff time.Duration
}

// Loop keeps a recognizer capturing for as long as its sink is active
type Loop struct {
	recognizer Recognizer
	sink       Sink
	cfg        LoopConfig
	now        func() time.Time

	starts atomic.Int64
}

// NewLoop creates a recognition loop
func NewLoop(recognizer Recognizer, sink Sink, cfg LoopConfig) *Loop {
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = DefaultRestartBackoff
	}
	return &Loop{
		recognizer: recognizer,
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Starts returns how many capture runs have been started
func (l *Loop) Starts() int64 {
	return l.starts.Load()
}

// Run captures until ctx is canceled, the sink is no longer active, or the
// recognizer fails permanently. A fatal failure is returned as a
// *RecognizerError; every other outcome returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil || !l.sink.Active() {
			return nil
		}

		restart, err := l.runOnce(ctx)
		if err != nil || !restart {
			return err
		}

		if ctx.Err() != nil || !l.sink.Active() {
			return nil
		}
		timer := time.NewTimer(l.cfg.RestartBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runOnce drives a single capture run and reports whether capture should restart
func (l *Loop) runOnce(ctx context.Context) (bool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := l.recognizer.Start(runCtx, l.cfg.Recognizer)
	if err != nil {
		return false, &RecognizerError{Code: ErrorStartFailed, Message: err.Error()}
	}
	l.starts.Add(1)

	for {
		select {
		case <-ctx.Done():
			l.stopRecognizer()
			return false, nil

		case ev, ok := <-events:
			if !ok {
				return true, nil
			}

			switch ev.Kind {
			case EventResult:
				if strings.TrimSpace(ev.Result.Text) == "" {
					continue
				}
				chunk := models.TranscriptChunk{
					Text:       ev.Result.Text,
					IsFinal:    ev.Result.IsFinal,
					Confidence: ev.Result.Confidence,
					Timestamp:  ev.Result.Timestamp,
				}.Normalized(l.now())
				if err := l.sink.SubmitChunk(chunk); err != nil {
					// Session is gone, nothing more may be submitted
					l.stopRecognizer()
					return false, nil
				}

			case EventError:
				recErr := &RecognizerError{Code: ev.Code, Message: ev.Message}
				switch {
				case ev.Code.IsFatal():
					l.stopRecognizer()
					return false, recErr
				case ev.Code == ErrorNoSpeech:
					// Silence ends the run like a normal stop
				default:
					l.sink.Warn(recErr)
				}
			}
		}
	}
}

func (l *Loop) stopRecognizer() {
	if err := l.recognizer.Stop(); err != nil {
		log.Printf("Error stopping recognizer: %v", err)
	}
}
