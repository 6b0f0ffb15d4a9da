// Package capture runs voice capture sessions: it records one spoken
// utterance through a speech recognizer and delivers exactly one transcript
// per session.
//
// Two operating modes exist, selected once at startup from the configured STT
// backend's capability: direct streaming (continuous partial and final
// results) and one-shot fallback (record the whole utterance, then a single
// transcription round trip). Both are driven through the same Recognizer
// interface; the controller's transition logic does not branch on mode.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nutrivox/nutrivox/internal/observe"
)

// State is the capture session's lifecycle state.
type State int

const (
	// StateIdle means no capture has been requested yet.
	StateIdle State = iota
	// StateStarting means the recognizer is being opened.
	StateStarting
	// StateListening means audio is flowing and partials may arrive.
	StateListening
	// StateProcessing means audio input ended and a final result is pending.
	StateProcessing
	// StateSuccess means a transcript was delivered.
	StateSuccess
	// StateError means recognition failed; the best-available transcript was
	// still delivered.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind discriminates recognition progress events.
type EventKind int

const (
	// EventReady means the recognizer is open and audio is flowing.
	EventReady EventKind = iota
	// EventPartial carries an interim transcript. Partials update the
	// session's last good transcript but never trigger delivery.
	EventPartial
	// EventProcessing means audio input ended and the final result is pending.
	EventProcessing
	// EventFinal carries the authoritative transcript and is terminal.
	EventFinal
	// EventError is terminal: recognition failed before a final result.
	EventError
)

// Event is one recognition progress signal. The controller's transition
// function consumes events only, so it is testable without a real recognizer.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Attempt is one in-flight recognition attempt.
type Attempt interface {
	// Stop requests cessation of audio input. It does not synthesize a
	// delivery: the terminal result still arrives through the event path.
	// In fallback mode Stop is a no-op because the one-shot round trip owns
	// its own lifecycle.
	Stop()
}

// Recognizer abstracts the two capture modes behind one start operation.
type Recognizer interface {
	// Start begins one recognition attempt. Events are delivered through emit,
	// possibly from other goroutines, ending with exactly one EventFinal or
	// EventError. Cancelling ctx abandons the attempt.
	Start(ctx context.Context, emit func(Event)) (Attempt, error)

	// Mode identifies the operating mode ("direct" or "fallback") for logs
	// and metrics.
	Mode() string

	// Close releases the underlying recognition resource.
	Close() error
}

// Stopper is the narration collaborator silenced before capture begins, so
// the microphone does not pick up the device's own speech.
type Stopper interface {
	Stop()
}

// Controller owns one voice capture session at a time. All state transitions
// are applied atomically with respect to recognizer callbacks; a delivery
// guard ensures exactly one terminal result delivery per session even when a
// final result and an error race.
type Controller struct {
	rec      Recognizer
	narrator Stopper
	metrics  *observe.Metrics
	log      *slog.Logger

	mu          sync.Mutex
	state       State
	lastPartial string
	text        string
	reason      string
	delivered   bool
	active      bool
	destroyed   bool
	gen         uint64
	attempt     Attempt
	cancel      context.CancelFunc
	onResult    func(text string)
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithNarrator sets the narration collaborator stopped before each capture.
func WithNarrator(n Stopper) Option {
	return func(c *Controller) { c.narrator = n }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController creates an idle capture controller over the given recognizer.
func NewController(rec Recognizer, opts ...Option) *Controller {
	c := &Controller{rec: rec, state: StateIdle}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// State returns the current session state. For StateSuccess the delivered text
// is in Result; for StateError the failure reason is in Reason.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the delivered transcript, valid once the state is
// StateSuccess or StateError.
func (c *Controller) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Reason returns the recognition failure description, valid in StateError.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// StartListening begins a new capture session. Any previous session is
// abandoned first and its session state (last partial, delivery guard) is
// reset. onResult is invoked exactly once with the terminal transcript, which
// may be empty when recognition failed with no usable partial.
func (c *Controller) StartListening(ctx context.Context, onResult func(text string)) error {
	if c.narrator != nil {
		c.narrator.Stop()
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("capture: controller destroyed")
	}
	c.abandonLocked(ctx, "superseded")

	c.gen++
	gen := c.gen
	c.lastPartial = ""
	c.text = ""
	c.reason = ""
	c.delivered = false
	c.onResult = onResult
	c.state = StateStarting

	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	attempt, err := c.rec.Start(attemptCtx, func(ev Event) { c.handleEvent(ctx, gen, ev) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// A racing StartListening or Destroy superseded this session.
		if attempt != nil {
			attempt.Stop()
		}
		cancel()
		return nil
	}
	if err != nil {
		cancel()
		c.cancel = nil
		c.state = StateError
		c.reason = err.Error()
		c.metrics.RecordCaptureSession(ctx, c.rec.Mode(), "start_error")
		return fmt.Errorf("capture: start recognition: %w", err)
	}

	c.attempt = attempt
	c.active = true
	c.metrics.ActiveCaptures.Add(ctx, 1)
	c.log.Debug("capture session started", "mode", c.rec.Mode())
	return nil
}

// StopListening requests cessation of audio input for the active session. It
// does not synthesize a delivery: the terminal result still arrives through
// the recognizer's event path. A no-op when no session is listening.
func (c *Controller) StopListening() {
	c.mu.Lock()
	attempt := c.attempt
	if c.state == StateListening {
		c.state = StateProcessing
	}
	c.mu.Unlock()
	if attempt != nil {
		attempt.Stop()
	}
}

// Destroy abandons any in-flight session and releases the recognition
// resource. The controller cannot be reused afterwards; callers re-initialize
// on next use.
func (c *Controller) Destroy() error {
	c.mu.Lock()
	c.abandonLocked(context.Background(), "destroyed")
	c.destroyed = true
	c.state = StateIdle
	c.mu.Unlock()
	if err := c.rec.Close(); err != nil {
		return fmt.Errorf("capture: close recognizer: %w", err)
	}
	return nil
}

// abandonLocked invalidates the in-flight attempt, if any, without delivering
// a result. The bumped generation makes dangling recognizer callbacks no-ops.
func (c *Controller) abandonLocked(ctx context.Context, outcome string) {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.attempt = nil
	c.onResult = nil
	if c.active {
		c.active = false
		c.metrics.ActiveCaptures.Add(ctx, -1)
		if !c.delivered {
			c.metrics.RecordCaptureSession(ctx, c.rec.Mode(), outcome)
		}
	}
}

// handleEvent is the state machine transition function. Events from a
// superseded session generation are discarded.
func (c *Controller) handleEvent(ctx context.Context, gen uint64, ev Event) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventReady:
		if c.state == StateStarting {
			c.state = StateListening
		}
		c.mu.Unlock()
		return

	case EventPartial:
		if !c.delivered {
			c.lastPartial = ev.Text
		}
		c.mu.Unlock()
		return

	case EventProcessing:
		if c.state == StateStarting || c.state == StateListening {
			c.state = StateProcessing
		}
		c.mu.Unlock()
		return

	case EventFinal:
		if c.delivered {
			c.mu.Unlock()
			return
		}
		text := ev.Text
		if strings.TrimSpace(text) == "" {
			text = c.lastPartial
		}
		cb := c.deliverLocked(ctx, text, "success")
		c.state = StateSuccess
		c.mu.Unlock()
		if cb != nil {
			cb(text)
		}
		return

	case EventError:
		if c.delivered {
			c.mu.Unlock()
			return
		}
		// Recover with the best available transcript: the last partial when
		// one exists, otherwise an empty result. Non-fatal either way.
		text := c.lastPartial
		cb := c.deliverLocked(ctx, text, "error")
		c.state = StateError
		if ev.Err != nil {
			c.reason = ev.Err.Error()
		}
		c.log.Warn("recognition failed, delivering last partial",
			"error", ev.Err, "partial_len", len(text))
		c.mu.Unlock()
		if cb != nil {
			cb(text)
		}
		return
	}
	c.mu.Unlock()
}

// deliverLocked marks the session delivered and returns the result callback
// to invoke outside the lock. Caller holds the mutex.
func (c *Controller) deliverLocked(ctx context.Context, text, outcome string) func(string) {
	c.delivered = true
	c.text = text
	cb := c.onResult
	c.onResult = nil
	c.attempt = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.active {
		c.active = false
		c.metrics.ActiveCaptures.Add(ctx, -1)
	}
	c.metrics.RecordCaptureSession(ctx, c.rec.Mode(), outcome)
	return cb
}
