package ask

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/pkg/provider/llm"
	llmmock "github.com/nutrivox/nutrivox/pkg/provider/llm/mock"
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

func sampleRecord() *product.Record {
	rec := product.NewRecord("raw")
	rec.Name = "Oat Bar"
	rec.Ingredients = []string{"Oats", "Honey"}
	rec.Nutrition.Calories = "120 kcal"
	rec.DetectedAllergens = []string{"Milk"}
	return rec
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	t.Run("grounds the model on the record", func(t *testing.T) {
		t.Parallel()
		prov := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "  Yes, it contains milk.  "},
		}
		a := New(prov, WithMetrics(testMetrics(t)))

		got, err := a.Answer(context.Background(), "does this contain milk?", sampleRecord())
		if err != nil {
			t.Fatalf("Answer: %v", err)
		}
		if got != "Yes, it contains milk." {
			t.Errorf("answer = %q", got)
		}

		req := prov.CompleteCalls[0].Req
		user := req.Messages[len(req.Messages)-1].Content
		for _, want := range []string{"Oat Bar", "120 kcal", "does this contain milk?"} {
			if !strings.Contains(user, want) {
				t.Errorf("prompt missing %q:\n%s", want, user)
			}
		}
		if req.MaxTokens != maxAnswerTokens {
			t.Errorf("MaxTokens = %d", req.MaxTokens)
		}
	})

	t.Run("empty question rejected without a model call", func(t *testing.T) {
		t.Parallel()
		prov := &llmmock.Provider{}
		a := New(prov, WithMetrics(testMetrics(t)))
		if _, err := a.Answer(context.Background(), "   ", sampleRecord()); err == nil {
			t.Fatal("expected error")
		}
		if prov.CompleteCallCount() != 0 {
			t.Error("model should not have been called")
		}
	})

	t.Run("nil record rejected", func(t *testing.T) {
		t.Parallel()
		a := New(&llmmock.Provider{}, WithMetrics(testMetrics(t)))
		if _, err := a.Answer(context.Background(), "question", nil); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("provider error propagates", func(t *testing.T) {
		t.Parallel()
		prov := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
		a := New(prov, WithMetrics(testMetrics(t)))
		if _, err := a.Answer(context.Background(), "question", sampleRecord()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("sparse record gets placeholder grounding", func(t *testing.T) {
		t.Parallel()
		prov := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "I don't know."},
		}
		a := New(prov, WithMetrics(testMetrics(t)))
		if _, err := a.Answer(context.Background(), "what is it?", product.NewRecord("")); err != nil {
			t.Fatalf("Answer: %v", err)
		}
		user := prov.CompleteCalls[0].Req.Messages[0].Content
		if !strings.Contains(user, "no structured data") {
			t.Errorf("prompt missing placeholder: %q", user)
		}
	})
}
