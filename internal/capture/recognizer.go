package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/pkg/provider/stt"
)

// Source provides microphone audio for one utterance as a stream of 16-bit
// little-endian PCM chunks. The channel closes when the utterance ends, either
// from end-of-speech detection in the implementation or from ctx cancellation.
type Source interface {
	Stream(ctx context.Context) (<-chan []byte, error)
}

// directRecognizer streams audio to a live STT session and forwards its
// partial and final transcripts as capture events.
type directRecognizer struct {
	provider stt.Provider
	source   Source
	cfg      stt.StreamConfig
	metrics  *observe.Metrics
}

// NewDirectRecognizer builds the streaming-mode recognizer.
func NewDirectRecognizer(provider stt.Provider, source Source, cfg stt.StreamConfig) Recognizer {
	return &directRecognizer{
		provider: provider,
		source:   source,
		cfg:      cfg,
		metrics:  observe.DefaultMetrics(),
	}
}

func (r *directRecognizer) Mode() string { return "direct" }

// Close is a no-op: streaming sessions are per-attempt, there is no shared
// resource to release.
func (r *directRecognizer) Close() error { return nil }

func (r *directRecognizer) Start(ctx context.Context, emit func(Event)) (Attempt, error) {
	handle, err := r.provider.StartStream(ctx, r.cfg)
	if err != nil {
		r.metrics.RecordProviderError(ctx, "stt", "stream")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	audio, err := r.source.Stream(ctx)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("open audio source: %w", err)
	}

	a := &directAttempt{handle: handle, stop: make(chan struct{})}
	go a.pumpAudio(audio, emit)
	go a.readTranscripts(ctx, emit)
	emit(Event{Kind: EventReady})
	return a, nil
}

type directAttempt struct {
	handle   stt.SessionHandle
	stop     chan struct{}
	stopOnce sync.Once
}

// Stop ends audio input. The session is closed by the pump, which flushes the
// provider and lets the final transcript arrive through the event path.
func (a *directAttempt) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// pumpAudio forwards source chunks to the session until the source ends or
// Stop is called, then closes the session so the provider emits its final.
func (a *directAttempt) pumpAudio(audio <-chan []byte, emit func(Event)) {
	defer func() {
		_ = a.handle.Close()
		emit(Event{Kind: EventProcessing})
	}()
	for {
		select {
		case <-a.stop:
			return
		case chunk, ok := <-audio:
			if !ok {
				return
			}
			if err := a.handle.SendAudio(chunk); err != nil {
				emit(Event{Kind: EventError, Err: fmt.Errorf("send audio: %w", err)})
				return
			}
		}
	}
}

// readTranscripts forwards session transcripts until a final arrives or both
// channels close. A session that ends without any final is an error: the
// controller recovers with the last partial.
func (a *directAttempt) readTranscripts(ctx context.Context, emit func(Event)) {
	partials := a.handle.Partials()
	finals := a.handle.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			emit(Event{Kind: EventPartial, Text: tr.Text})
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			emit(Event{Kind: EventFinal, Text: tr.Text})
			return
		}
	}
	emit(Event{Kind: EventError, Err: errors.New("stream ended without a final result")})
}

// fallbackRecognizer records the complete utterance first, then transcribes
// it in one opaque round trip. Used when the configured STT backend cannot
// stream, e.g. local whisper.cpp inference.
type fallbackRecognizer struct {
	transcriber stt.Transcriber
	source      Source
	metrics     *observe.Metrics

	closeOnce sync.Once
	closeErr  error
}

// NewFallbackRecognizer builds the one-shot-mode recognizer.
func NewFallbackRecognizer(transcriber stt.Transcriber, source Source) Recognizer {
	return &fallbackRecognizer{
		transcriber: transcriber,
		source:      source,
		metrics:     observe.DefaultMetrics(),
	}
}

func (r *fallbackRecognizer) Mode() string { return "fallback" }

// Close releases the transcriber when it holds a resource, such as a loaded
// whisper model.
func (r *fallbackRecognizer) Close() error {
	r.closeOnce.Do(func() {
		if c, ok := r.transcriber.(interface{ Close() error }); ok {
			r.closeErr = c.Close()
		}
	})
	return r.closeErr
}

func (r *fallbackRecognizer) Start(ctx context.Context, emit func(Event)) (Attempt, error) {
	audio, err := r.source.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	go r.run(ctx, audio, emit)
	emit(Event{Kind: EventReady})
	return fallbackAttempt{}, nil
}

func (r *fallbackRecognizer) run(ctx context.Context, audio <-chan []byte, emit func(Event)) {
	var buf bytes.Buffer
	for chunk := range audio {
		buf.Write(chunk)
	}
	emit(Event{Kind: EventProcessing})

	start := time.Now()
	tr, err := r.transcriber.Transcribe(ctx, buf.Bytes())
	if err != nil {
		// A cancelled round trip is a user cancellation, delivered as an
		// empty result rather than an error.
		if errors.Is(err, context.Canceled) {
			emit(Event{Kind: EventFinal, Text: ""})
			return
		}
		r.metrics.RecordProviderError(ctx, "stt", "transcribe")
		emit(Event{Kind: EventError, Err: fmt.Errorf("transcribe: %w", err)})
		return
	}
	r.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	emit(Event{Kind: EventFinal, Text: strings.TrimSpace(tr.Text)})
}

// fallbackAttempt's Stop is a no-op: the one-shot round trip owns its own
// lifecycle, including end-of-speech detection inside the audio source.
type fallbackAttempt struct{}

func (fallbackAttempt) Stop() {}

var (
	_ Recognizer = (*directRecognizer)(nil)
	_ Recognizer = (*fallbackRecognizer)(nil)
)
