package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
	barcodemock "github.com/nutrivox/nutrivox/pkg/provider/barcode/mock"
	"github.com/nutrivox/nutrivox/pkg/provider/llm"
	llmmock "github.com/nutrivox/nutrivox/pkg/provider/llm/mock"
	"github.com/nutrivox/nutrivox/pkg/provider/stt"
	sttmock "github.com/nutrivox/nutrivox/pkg/provider/stt/mock"
	ttsmock "github.com/nutrivox/nutrivox/pkg/provider/tts/mock"
	"github.com/nutrivox/nutrivox/pkg/types"
)

func testFallbackConfig() FallbackConfig {
	return FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: time.Minute,
			HalfOpenMax:  1,
		},
	}
}

func TestLLMFallback(t *testing.T) {
	t.Parallel()

	t.Run("primary serves when healthy", func(t *testing.T) {
		t.Parallel()
		primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
		secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}
		f := NewLLMFallback(primary, "openai", testFallbackConfig())
		f.AddFallback("local", secondary)

		resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "primary" {
			t.Errorf("content = %q", resp.Content)
		}
		if secondary.CompleteCallCount() != 0 {
			t.Error("secondary should not have been called")
		}
	})

	t.Run("failover to secondary", func(t *testing.T) {
		t.Parallel()
		primary := &llmmock.Provider{CompleteErr: errors.New("quota exceeded")}
		secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}
		f := NewLLMFallback(primary, "openai", testFallbackConfig())
		f.AddFallback("local", secondary)

		resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "secondary" {
			t.Errorf("content = %q", resp.Content)
		}
	})

	t.Run("all failed", func(t *testing.T) {
		t.Parallel()
		primary := &llmmock.Provider{CompleteErr: errors.New("down")}
		f := NewLLMFallback(primary, "openai", testFallbackConfig())
		if _, err := f.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("open breaker skips the primary", func(t *testing.T) {
		t.Parallel()
		primary := &llmmock.Provider{CompleteErr: errors.New("down")}
		secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}
		f := NewLLMFallback(primary, "openai", testFallbackConfig())
		f.AddFallback("local", secondary)

		for range 4 {
			if _, err := f.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
				t.Fatalf("Complete: %v", err)
			}
		}
		// Threshold is 3: the fourth call must not reach the primary.
		if got := primary.CompleteCallCount(); got != 3 {
			t.Errorf("primary calls = %d", got)
		}
	})
}

func TestSTTFallback(t *testing.T) {
	t.Parallel()

	primarySession := sttmock.NewSession()
	primary := &sttmock.Provider{Session: primarySession}
	secondary := &sttmock.Provider{Session: sttmock.NewSession()}
	f := NewSTTFallback(primary, "deepgram", testFallbackConfig())
	f.AddFallback("backup", secondary)

	handle, err := f.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if handle != stt.SessionHandle(primarySession) {
		t.Error("expected the primary's session")
	}
	if secondary.StartStreamCallCount() != 0 {
		t.Error("secondary should not have been called")
	}
}

func TestSTTFallbackFailover(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{StartStreamErr: errors.New("auth failed")}
	secondarySession := sttmock.NewSession()
	secondary := &sttmock.Provider{Session: secondarySession}
	f := NewSTTFallback(primary, "deepgram", testFallbackConfig())
	f.AddFallback("backup", secondary)

	handle, err := f.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if handle != stt.SessionHandle(secondarySession) {
		t.Error("expected the secondary's session")
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("socket refused")}
	secondary := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}}}
	f := NewTTSFallback(primary, "elevenlabs", testFallbackConfig())
	f.AddFallback("backup", secondary)

	text := make(chan string)
	close(text)
	audio, err := f.SynthesizeStream(context.Background(), text, types.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	var chunks int
	for range audio {
		chunks++
	}
	if chunks != 1 {
		t.Errorf("chunks = %d", chunks)
	}
}

func TestBarcodeFallback(t *testing.T) {
	t.Parallel()

	t.Run("failover on lookup failure", func(t *testing.T) {
		t.Parallel()
		primary := &barcodemock.Provider{LookupErr: errors.New("gateway timeout")}
		secondary := &barcodemock.Provider{Product: &barcode.Product{Code: "123", Name: "Oat Bar"}}
		f := NewBarcodeFallback(primary, "openfoodfacts", testFallbackConfig())
		f.AddFallback("backup", secondary)

		prod, err := f.Lookup(context.Background(), "123")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if prod.Name != "Oat Bar" {
			t.Errorf("name = %q", prod.Name)
		}
	})

	t.Run("not found is authoritative and does not trip the breaker", func(t *testing.T) {
		t.Parallel()
		primary := &barcodemock.Provider{LookupErr: barcode.ErrNotFound}
		secondary := &barcodemock.Provider{Product: &barcode.Product{Code: "123"}}
		f := NewBarcodeFallback(primary, "openfoodfacts", testFallbackConfig())
		f.AddFallback("backup", secondary)

		for range 5 {
			if _, err := f.Lookup(context.Background(), "123"); !errors.Is(err, barcode.ErrNotFound) {
				t.Fatalf("err = %v", err)
			}
		}
		// Every call reaches the primary: not-found never opened its breaker.
		if got := primary.LookupCallCount(); got != 5 {
			t.Errorf("primary calls = %d", got)
		}
		if secondary.LookupCallCount() != 0 {
			t.Error("secondary should not have been called")
		}
	})
}
