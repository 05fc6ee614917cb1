package recognition

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReaderRecognizer turns lines of text into recognizer events, so any
// external speech engine can feed the loop through a pipe.
//
// Line format:
//
//	text              final result
//	text<TAB>0.92     final result with confidence
//	~ text            interim result
//	!code message     error event, ends the run
//	(empty line)      the engine stopped, ends the run
//
// End of input ends the current run. Later runs stay idle until stopped. The
// first of them closes Exhausted, so by then every earlier event has been
// consumed by whoever restarted the recognizer.
type ReaderRecognizer struct {
	input     io.Reader
	lines     chan string
	exhausted chan struct{}
	once      sync.Once
	drained   sync.Once

	mu      sync.Mutex
	stop    chan struct{}
	seenEOF bool
}

// NewReaderRecognizer creates a recognizer reading from r
func NewReaderRecognizer(r io.Reader) *ReaderRecognizer {
	return &ReaderRecognizer{
		input:     r,
		lines:     make(chan string),
		exhausted: make(chan struct{}),
	}
}

// Exhausted is closed once the input has been fully consumed and a later run has started
func (r *ReaderRecognizer) Exhausted() <-chan struct{} {
	return r.exhausted
}

func (r *ReaderRecognizer) readLines() {
	defer close(r.lines)

	scanner := bufio.NewScanner(r.input)
	for scanner.Scan() {
		r.lines <- scanner.Text()
	}
}

// Start begins a run
func (r *ReaderRecognizer) Start(ctx context.Context, cfg Config) (<-chan Event, error) {
	r.once.Do(func() { go r.readLines() })

	stop := make(chan struct{})
	r.mu.Lock()
	r.stop = stop
	if r.seenEOF {
		r.drained.Do(func() { close(r.exhausted) })
	}
	r.mu.Unlock()

	events := make(chan Event, 16)
	go r.run(ctx, stop, cfg, events)
	return events, nil
}

// Stop ends the current run
func (r *ReaderRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	return nil
}

func (r *ReaderRecognizer) run(ctx context.Context, stop <-chan struct{}, cfg Config, events chan<- Event) {
	defer close(events)

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		}
	}

	if !emit(Event{Kind: EventStart}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case line, ok := <-r.lines:
			if !ok {
				if r.isExhausted() {
					// Nothing left to hear, idle until stopped
					select {
					case <-ctx.Done():
					case <-stop:
					}
				}
				return
			}

			ev, end := parseLine(line, time.Now())
			if ev != nil {
				if ev.Kind == EventResult && !ev.Result.IsFinal && !cfg.InterimResults {
					continue
				}
				if !emit(*ev) {
					return
				}
			}
			if end {
				return
			}
		}
	}
}

// isExhausted reports whether the first end of input has already been seen by
// an earlier run. The run that observes the close returns immediately.
func (r *ReaderRecognizer) isExhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := r.seenEOF
	r.seenEOF = true
	return seen
}

// parseLine converts one input line to an event. end reports whether the run is over.
func parseLine(line string, now time.Time) (*Event, bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return nil, true

	case strings.HasPrefix(trimmed, "!"):
		code, message, _ := strings.Cut(strings.TrimPrefix(trimmed, "!"), " ")
		return &Event{Kind: EventError, Code: ErrorCode(code), Message: strings.TrimSpace(message)}, true

	case strings.HasPrefix(trimmed, "~"):
		text, confidence := splitConfidence(strings.TrimSpace(strings.TrimPrefix(trimmed, "~")))
		return &Event{Kind: EventResult, Result: Result{Text: text, Confidence: confidence, Timestamp: now}}, false

	default:
		text, confidence := splitConfidence(trimmed)
		return &Event{Kind: EventResult, Result: Result{Text: text, IsFinal: true, Confidence: confidence, Timestamp: now}}, false
	}
}

func splitConfidence(text string) (string, float64) {
	idx := strings.LastIndex(text, "\t")
	if idx < 0 {
		return text, 0
	}
	confidence, err := strconv.ParseFloat(strings.TrimSpace(text[idx+1:]), 64)
	if err != nil {
		return text, 0
	}
	return strings.TrimSpace(text[:idx]), confidence
}
