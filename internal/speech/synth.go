package speech

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/pkg/provider/tts"
	"github.com/nutrivox/nutrivox/pkg/types"
)

// AudioSink receives synthesized audio chunks for playback. Write blocks until
// the chunk is accepted; playback backpressure propagates into synthesis.
type AudioSink interface {
	Write(ctx context.Context, chunk []byte) error
}

// AudioSinkFunc adapts a function to AudioSink.
type AudioSinkFunc func(ctx context.Context, chunk []byte) error

func (f AudioSinkFunc) Write(ctx context.Context, chunk []byte) error { return f(ctx, chunk) }

// TTSSynth speaks sections through a streaming TTS provider and plays the
// resulting audio on a sink. One Speak call is one complete utterance: the
// section text is sent, the text channel closed, and the audio stream drained
// to the sink until the provider closes it.
type TTSSynth struct {
	provider tts.Provider
	sink     AudioSink
	voice    types.VoiceProfile
	metrics  *observe.Metrics
	log      *slog.Logger
}

// TTSSynthOption is a functional option for configuring a TTSSynth.
type TTSSynthOption func(*TTSSynth)

// WithSynthMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithSynthMetrics(m *observe.Metrics) TTSSynthOption {
	return func(s *TTSSynth) { s.metrics = m }
}

// WithSynthLogger sets the logger. Defaults to slog.Default().
func WithSynthLogger(l *slog.Logger) TTSSynthOption {
	return func(s *TTSSynth) { s.log = l }
}

// NewTTSSynth creates a synth that speaks with the given voice. The narration
// rate passed to Speak overrides the voice's SpeedFactor per utterance.
func NewTTSSynth(provider tts.Provider, sink AudioSink, voice types.VoiceProfile, opts ...TTSSynthOption) *TTSSynth {
	s := &TTSSynth{
		provider: provider,
		sink:     sink,
		voice:    voice,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

var _ Synth = (*TTSSynth)(nil)

// Speak synthesizes the section's title and content as one utterance and
// blocks until the audio stream has been fully played or ctx is cancelled.
func (s *TTSSynth) Speak(ctx context.Context, section Section, rate float64) error {
	text := make(chan string, 2)
	text <- section.Title + ". " + section.Content
	close(text)

	voice := s.voice
	if rate > 0 {
		voice.SpeedFactor = rate
	}

	start := time.Now()
	audio, err := s.provider.SynthesizeStream(ctx, text, voice)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return fmt.Errorf("speech: start synthesis: %w", err)
	}

	var bytes int
	for chunk := range audio {
		if err := s.sink.Write(ctx, chunk); err != nil {
			return fmt.Errorf("speech: play audio: %w", err)
		}
		bytes += len(chunk)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")
	s.log.Debug("utterance complete",
		"category", section.Category,
		"audio_bytes", bytes,
		"duration", time.Since(start))
	return nil
}
