// Package whisper provides a local one-shot STT backend using the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Unlike a streaming backend, whisper.cpp transcribes a complete recording in
// one pass, so this package implements stt.Transcriber and drives the capture
// controller's fallback mode: record the whole utterance, then transcribe.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/nutrivox/nutrivox/pkg/provider/stt"
	"github.com/nutrivox/nutrivox/pkg/types"
)

const (
	defaultLanguage = "en"
	defaultChannels = 1
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber backed by a locally loaded
// whisper.cpp model. The model is loaded once at construction and shared
// across all Transcribe calls; each call creates its own whisper context, so
// concurrent calls are safe.
type Transcriber struct {
	model    whisperlib.Model
	language string
	channels int

	closeOnce sync.Once
	closeErr  error
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithChannels sets the channel count of the PCM audio passed to Transcribe.
// Multi-channel input is down-mixed to mono before inference. Defaults to 1.
func WithChannels(channels int) Option {
	return func(t *Transcriber) { t.channels = channels }
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when the transcriber is no longer
// needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
		channels: defaultChannels,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model. Safe to call more than once.
func (t *Transcriber) Close() error {
	t.closeOnce.Do(func() {
		if t.model != nil {
			t.closeErr = t.model.Close()
		}
	})
	return t.closeErr
}

// Transcribe runs whisper.cpp inference over a complete 16-bit signed
// little-endian PCM recording and returns one final transcript. Inference is
// CPU-bound and not interruptible mid-run, so ctx is checked only before the
// model call starts.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(pcm) == 0 {
		return types.Transcript{IsFinal: true}, nil
	}

	start := time.Now()
	text, err := t.infer(pcm)
	if err != nil {
		return types.Transcript{}, err
	}
	slog.Debug("whisper transcription complete",
		"duration", time.Since(start),
		"pcm_bytes", len(pcm),
		"text_len", len(text))

	return types.Transcript{
		Text:    text,
		IsFinal: true,
	}, nil
}

// infer converts the PCM audio to float32 mono, runs whisper.cpp inference
// using a fresh context, and returns the concatenated segment text.
func (t *Transcriber) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, t.channels)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
