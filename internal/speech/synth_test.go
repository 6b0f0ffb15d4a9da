package speech

import (
	"bytes"
	"context"
	"errors"
	"testing"

	ttsmock "github.com/nutrivox/nutrivox/pkg/provider/tts/mock"
	"github.com/nutrivox/nutrivox/pkg/types"
)

type captureSink struct {
	chunks [][]byte
	err    error
}

func (s *captureSink) Write(_ context.Context, chunk []byte) error {
	if s.err != nil {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func TestTTSSynthSpeak(t *testing.T) {
	t.Parallel()

	section := Section{Category: CategoryIngredients, Title: "Ingredients", Content: "Oats, Honey."}
	voice := types.VoiceProfile{ID: "voice-1", SpeedFactor: 1.0}

	t.Run("streams section text and plays the audio", func(t *testing.T) {
		t.Parallel()
		prov := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}, {3}}}
		sink := &captureSink{}
		s := NewTTSSynth(prov, sink, voice, WithSynthMetrics(testMetrics(t)))

		if err := s.Speak(context.Background(), section, 1.5); err != nil {
			t.Fatalf("Speak: %v", err)
		}

		call := prov.SynthesizeStreamCalls[0]
		if len(call.Text) != 1 || call.Text[0] != "Ingredients. Oats, Honey." {
			t.Errorf("text = %v", call.Text)
		}
		if call.Voice.SpeedFactor != 1.5 {
			t.Errorf("SpeedFactor = %v, want the narration rate", call.Voice.SpeedFactor)
		}
		if len(sink.chunks) != 2 || !bytes.Equal(sink.chunks[0], []byte{1, 2}) {
			t.Errorf("chunks = %v", sink.chunks)
		}
	})

	t.Run("zero rate keeps the configured voice speed", func(t *testing.T) {
		t.Parallel()
		prov := &ttsmock.Provider{}
		s := NewTTSSynth(prov, &captureSink{}, voice, WithSynthMetrics(testMetrics(t)))
		if err := s.Speak(context.Background(), section, 0); err != nil {
			t.Fatalf("Speak: %v", err)
		}
		if got := prov.SynthesizeStreamCalls[0].Voice.SpeedFactor; got != 1.0 {
			t.Errorf("SpeedFactor = %v", got)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		prov := &ttsmock.Provider{SynthesizeErr: errors.New("socket closed")}
		s := NewTTSSynth(prov, &captureSink{}, voice, WithSynthMetrics(testMetrics(t)))
		if err := s.Speak(context.Background(), section, 1.0); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("sink error", func(t *testing.T) {
		t.Parallel()
		prov := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}}
		s := NewTTSSynth(prov, &captureSink{err: errors.New("device gone")}, voice, WithSynthMetrics(testMetrics(t)))
		if err := s.Speak(context.Background(), section, 1.0); err == nil {
			t.Fatal("expected error")
		}
	})
}
