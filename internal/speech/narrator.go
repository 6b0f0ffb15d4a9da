package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nutrivox/nutrivox/internal/observe"
)

// State is the narrator's lifecycle state.
type State int

const (
	// StateIdle means no narration has been requested yet.
	StateIdle State = iota
	// StateSpeaking means a section utterance is in flight.
	StateSpeaking
	// StatePaused means narration is halted at the current index and can resume.
	StatePaused
	// StateReady means the last narration finished or was stopped.
	StateReady
	// StateError means the speech collaborator failed; narration is halted and
	// not retried automatically.
	StateError
)

// String implements fmt.Stringer for logs and tests.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Synth speaks one section and blocks until the utterance finishes or ctx is
// cancelled. Implementations must return ctx.Err() on cancellation and a
// non-nil error on synthesis failure.
type Synth interface {
	Speak(ctx context.Context, section Section, rate float64) error
}

// Narrator plays an ordered section sequence one section at a time, driven by
// utterance-finished events from the Synth. It supports pause, resume,
// forward/backward skips clamped to the sequence bounds, stop, and single
// answer sections that preempt any in-progress narration.
//
// All transitions are applied atomically under one mutex; stale utterance
// completions from a superseded session are discarded by generation counter,
// so two racing events can never corrupt the state.
type Narrator struct {
	synth   Synth
	metrics *observe.Metrics
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	sections []Section
	idx      int
	rate     float64
	gen      uint64             // bumped whenever the active utterance is superseded
	cancel   context.CancelFunc // cancels the in-flight utterance, nil when none
	baseCtx  context.Context
}

// NarratorOption is a functional option for configuring a Narrator.
type NarratorOption func(*Narrator)

// WithNarratorMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithNarratorMetrics(m *observe.Metrics) NarratorOption {
	return func(n *Narrator) { n.metrics = m }
}

// WithNarratorLogger sets the logger. Defaults to slog.Default().
func WithNarratorLogger(l *slog.Logger) NarratorOption {
	return func(n *Narrator) { n.log = l }
}

// NewNarrator creates an idle Narrator. ctx bounds the narrator's lifetime:
// when it is cancelled every in-flight utterance stops and no callback can
// mutate torn-down state.
func NewNarrator(ctx context.Context, synth Synth, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		synth:   synth,
		state:   StateIdle,
		rate:    1.0,
		baseCtx: ctx,
	}
	for _, o := range opts {
		o(n)
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}
	if n.log == nil {
		n.log = slog.Default()
	}
	return n
}

// State returns the current state and section index.
func (n *Narrator) State() (State, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.idx
}

// Speak starts narrating sections from the beginning at the given rate.
// A concurrent Speak overwrites the active narration rather than queueing:
// there is at most one active narration session.
func (n *Narrator) Speak(sections []Section, rate float64) {
	if len(sections) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cancelCurrentLocked()
	if n.state != StateSpeaking && n.state != StatePaused {
		n.metrics.ActiveNarrations.Add(n.baseCtx, 1)
	}
	n.sections = sections
	n.idx = 0
	n.rate = rate
	n.state = StateSpeaking
	n.issueLocked()
}

// Pause halts output and stays at the current index. No-op unless speaking.
func (n *Narrator) Pause() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateSpeaking {
		return
	}
	n.cancelCurrentLocked()
	n.state = StatePaused
}

// Resume re-issues the current section's utterance. No-op unless paused.
func (n *Narrator) Resume() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StatePaused {
		return
	}
	n.state = StateSpeaking
	n.issueLocked()
}

// SkipNext advances to the next section, clamped at the last valid index, and
// immediately (re)issues that section's utterance. Effective while speaking or
// paused; a skip while paused resumes speech.
func (n *Narrator) SkipNext() {
	n.skip(1)
}

// SkipPrevious moves back one section, clamped at index 0, and immediately
// (re)issues that section's utterance.
func (n *Narrator) SkipPrevious() {
	n.skip(-1)
}

func (n *Narrator) skip(delta int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateSpeaking && n.state != StatePaused {
		return
	}
	idx := n.idx + delta
	if idx < 0 {
		idx = 0
	}
	if max := len(n.sections) - 1; idx > max {
		idx = max
	}
	n.cancelCurrentLocked()
	n.idx = idx
	n.state = StateSpeaking
	n.issueLocked()
}

// Repeat re-issues the current section's utterance from the start. Effective
// while speaking or paused.
func (n *Narrator) Repeat() {
	n.skip(0)
}

// Stop cancels any in-flight utterance, resets the index to 0, and moves to
// Ready.
func (n *Narrator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Narrator) stopLocked() {
	if n.state == StateSpeaking || n.state == StatePaused {
		n.metrics.ActiveNarrations.Add(n.baseCtx, -1)
	}
	n.cancelCurrentLocked()
	n.idx = 0
	n.state = StateReady
}

// SpeakAnswer preempts any in-progress narration and narrates exactly one ad
// hoc answer section before returning to Ready.
func (n *Narrator) SpeakAnswer(text string) {
	n.Speak([]Section{AnswerSection(text)}, n.currentRate())
}

func (n *Narrator) currentRate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rate
}

// cancelCurrentLocked invalidates the in-flight utterance, if any. The bumped
// generation makes its eventual completion event a no-op.
func (n *Narrator) cancelCurrentLocked() {
	n.gen++
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

// issueLocked starts the utterance for the current index. Caller holds the
// mutex and has set state to Speaking.
func (n *Narrator) issueLocked() {
	section := n.sections[n.idx]
	rate := n.rate
	gen := n.gen
	ctx, cancel := context.WithCancel(n.baseCtx)
	n.cancel = cancel

	n.metrics.RecordNarratedSection(n.baseCtx, string(section.Category))
	n.log.Debug("speaking section", "category", section.Category, "index", n.idx)

	go func() {
		err := n.synth.Speak(ctx, section, rate)
		cancel()
		n.onUtteranceDone(gen, err)
	}()
}

// onUtteranceDone is the section-finished event handler. Events from a
// superseded generation are discarded: a skip, pause, stop, or new Speak has
// already decided what happens next.
func (n *Narrator) onUtteranceDone(gen uint64, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if gen != n.gen || n.state != StateSpeaking {
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		n.log.Error("utterance failed", "error", err, "index", n.idx)
		n.metrics.ActiveNarrations.Add(n.baseCtx, -1)
		n.cancel = nil
		n.state = StateError
		return
	}

	if n.idx+1 < len(n.sections) {
		n.gen++
		n.idx++
		n.issueLocked()
		return
	}

	n.metrics.ActiveNarrations.Add(n.baseCtx, -1)
	n.cancel = nil
	n.idx = 0
	n.state = StateReady
}
