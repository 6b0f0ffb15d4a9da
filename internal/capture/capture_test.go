package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nutrivox/nutrivox/internal/observe"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// stubRecognizer hands each attempt's emit function to the test, which then
// plays recognizer by firing events directly.
type stubRecognizer struct {
	mu       sync.Mutex
	startErr error
	emits    []func(Event)
	attempts []*stubAttempt
	closed   bool
}

func (r *stubRecognizer) Start(_ context.Context, emit func(Event)) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	a := &stubAttempt{}
	r.emits = append(r.emits, emit)
	r.attempts = append(r.attempts, a)
	return a, nil
}

func (r *stubRecognizer) Mode() string { return "direct" }

func (r *stubRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// emit fires an event into session i (0-based, in StartListening order).
func (r *stubRecognizer) emit(i int, ev Event) {
	r.mu.Lock()
	fn := r.emits[i]
	r.mu.Unlock()
	fn(ev)
}

type stubAttempt struct {
	mu      sync.Mutex
	stopped bool
}

func (a *stubAttempt) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

func (a *stubAttempt) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// resultRecorder collects every delivery so tests can assert exactly-once.
type resultRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *resultRecorder) deliver(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, text)
}

func (r *resultRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func newTestController(t *testing.T) (*Controller, *stubRecognizer, *resultRecorder) {
	t.Helper()
	rec := &stubRecognizer{}
	c := NewController(rec, WithMetrics(testMetrics(t)))
	return c, rec, &resultRecorder{}
}

func TestControllerDirectContract(t *testing.T) {
	t.Parallel()

	t.Run("final result delivers its text", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		if err := c.StartListening(context.Background(), res.deliver); err != nil {
			t.Fatalf("StartListening: %v", err)
		}
		if got := c.State(); got != StateStarting {
			t.Fatalf("state = %s", got)
		}

		rec.emit(0, Event{Kind: EventReady})
		if got := c.State(); got != StateListening {
			t.Fatalf("state = %s", got)
		}

		rec.emit(0, Event{Kind: EventPartial, Text: "ingredients wat"})
		rec.emit(0, Event{Kind: EventFinal, Text: "ingredients water sugar"})

		if got := res.all(); len(got) != 1 || got[0] != "ingredients water sugar" {
			t.Errorf("deliveries = %v", got)
		}
		if got := c.State(); got != StateSuccess {
			t.Errorf("state = %s", got)
		}
		if got := c.Result(); got != "ingredients water sugar" {
			t.Errorf("Result = %q", got)
		}
	})

	t.Run("partials never trigger delivery", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		_ = c.StartListening(context.Background(), res.deliver)
		rec.emit(0, Event{Kind: EventPartial, Text: "one"})
		rec.emit(0, Event{Kind: EventPartial, Text: "one two"})
		if got := res.all(); len(got) != 0 {
			t.Errorf("deliveries = %v", got)
		}
	})

	t.Run("blank final falls back to last partial", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		_ = c.StartListening(context.Background(), res.deliver)
		rec.emit(0, Event{Kind: EventPartial, Text: "does this have milk"})
		rec.emit(0, Event{Kind: EventFinal, Text: "   "})
		if got := res.all(); len(got) != 1 || got[0] != "does this have milk" {
			t.Errorf("deliveries = %v", got)
		}
		if got := c.State(); got != StateSuccess {
			t.Errorf("state = %s", got)
		}
	})

	t.Run("error delivers last partial", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		_ = c.StartListening(context.Background(), res.deliver)
		rec.emit(0, Event{Kind: EventPartial, Text: "calories one fifty"})
		rec.emit(0, Event{Kind: EventError, Err: errors.New("network dropped")})
		if got := res.all(); len(got) != 1 || got[0] != "calories one fifty" {
			t.Errorf("deliveries = %v", got)
		}
		if got := c.State(); got != StateError {
			t.Errorf("state = %s", got)
		}
		if c.Reason() == "" {
			t.Error("missing error reason")
		}
	})

	t.Run("error with no partial delivers empty string", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		_ = c.StartListening(context.Background(), res.deliver)
		rec.emit(0, Event{Kind: EventError, Err: errors.New("mic unavailable")})
		if got := res.all(); len(got) != 1 || got[0] != "" {
			t.Errorf("deliveries = %v", got)
		}
	})
}

func TestControllerDeliveryGuard(t *testing.T) {
	t.Parallel()

	t.Run("racing final and error produce exactly one delivery with the final text", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		_ = c.StartListening(context.Background(), res.deliver)
		rec.emit(0, Event{Kind: EventPartial, Text: "stale partial"})
		rec.emit(0, Event{Kind: EventFinal, Text: "best before december"})
		rec.emit(0, Event{Kind: EventError, Err: errors.New("late stream error")})

		if got := res.all(); len(got) != 1 || got[0] != "best before december" {
			t.Fatalf("deliveries = %v", got)
		}
		if got := c.State(); got != StateSuccess {
			t.Errorf("state = %s", got)
		}
	})

	t.Run("duplicate finals deliver once", func(t *testing.T) {
		t.Parallel()
		c, rec, res := newTestController(t)
		_ = c.StartListening(context.Background(), res.deliver)
		rec.emit(0, Event{Kind: EventFinal, Text: "first"})
		rec.emit(0, Event{Kind: EventFinal, Text: "second"})
		if got := res.all(); len(got) != 1 || got[0] != "first" {
			t.Errorf("deliveries = %v", got)
		}
	})
}

func TestControllerSessionReset(t *testing.T) {
	t.Parallel()
	c, rec, res := newTestController(t)

	_ = c.StartListening(context.Background(), res.deliver)
	rec.emit(0, Event{Kind: EventPartial, Text: "previous session partial"})
	rec.emit(0, Event{Kind: EventFinal, Text: "first result"})

	// The new session must not inherit the old partial: an immediate error
	// delivers an empty string, not "previous session partial".
	_ = c.StartListening(context.Background(), res.deliver)
	rec.emit(1, Event{Kind: EventError, Err: errors.New("boom")})

	got := res.all()
	if len(got) != 2 || got[0] != "first result" || got[1] != "" {
		t.Fatalf("deliveries = %v", got)
	}
}

func TestControllerSupersededSessionEventsIgnored(t *testing.T) {
	t.Parallel()
	c, rec, res := newTestController(t)

	_ = c.StartListening(context.Background(), res.deliver)
	_ = c.StartListening(context.Background(), res.deliver)

	// Events from the abandoned first session must not mutate the new one.
	rec.emit(0, Event{Kind: EventFinal, Text: "stale final"})
	if got := res.all(); len(got) != 0 {
		t.Fatalf("deliveries = %v", got)
	}

	rec.emit(1, Event{Kind: EventFinal, Text: "current final"})
	if got := res.all(); len(got) != 1 || got[0] != "current final" {
		t.Fatalf("deliveries = %v", got)
	}
}

func TestControllerStopListening(t *testing.T) {
	t.Parallel()
	c, rec, res := newTestController(t)

	_ = c.StartListening(context.Background(), res.deliver)
	rec.emit(0, Event{Kind: EventReady})

	c.StopListening()
	if !rec.attempts[0].isStopped() {
		t.Error("attempt not stopped")
	}
	if got := c.State(); got != StateProcessing {
		t.Errorf("state = %s", got)
	}
	// Stop itself must not synthesize a delivery.
	if got := res.all(); len(got) != 0 {
		t.Fatalf("deliveries = %v", got)
	}

	// Delivery still arrives through the normal callback path.
	rec.emit(0, Event{Kind: EventFinal, Text: "flushed final"})
	if got := res.all(); len(got) != 1 || got[0] != "flushed final" {
		t.Errorf("deliveries = %v", got)
	}
}

func TestControllerDestroy(t *testing.T) {
	t.Parallel()
	c, rec, res := newTestController(t)

	_ = c.StartListening(context.Background(), res.deliver)
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !rec.closed {
		t.Error("recognizer not closed")
	}

	// Dangling callbacks from the torn-down session are no-ops.
	rec.emit(0, Event{Kind: EventFinal, Text: "ghost"})
	if got := res.all(); len(got) != 0 {
		t.Errorf("deliveries = %v", got)
	}

	if err := c.StartListening(context.Background(), res.deliver); err == nil {
		t.Error("expected error after destroy")
	}
}

func TestControllerStartError(t *testing.T) {
	t.Parallel()
	rec := &stubRecognizer{startErr: errors.New("no microphone")}
	c := NewController(rec, WithMetrics(testMetrics(t)))
	if err := c.StartListening(context.Background(), func(string) {}); err == nil {
		t.Fatal("expected error")
	}
	if got := c.State(); got != StateError {
		t.Errorf("state = %s", got)
	}
}

type stopRecorder struct {
	mu    sync.Mutex
	stops int
}

func (s *stopRecorder) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *stopRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func TestControllerSilencesNarratorBeforeCapture(t *testing.T) {
	t.Parallel()
	rec := &stubRecognizer{}
	narr := &stopRecorder{}
	c := NewController(rec, WithMetrics(testMetrics(t)), WithNarrator(narr))
	_ = c.StartListening(context.Background(), func(string) {})
	if narr.count() != 1 {
		t.Errorf("narrator stops = %d", narr.count())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
