// Package ask answers free-form spoken questions about a scanned product.
//
// The answerer grounds the model on a plain-text rendering of the current
// product record and asks for a short reply suitable for spoken delivery. It
// has no memory between questions: each call is one self-contained exchange.
package ask

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/pkg/provider/llm"
	"github.com/nutrivox/nutrivox/pkg/types"
)

// answerSystemPrompt keeps replies short and spoken-friendly. The model sees
// only the rendered record; it must not invent label facts.
const answerSystemPrompt = `You answer questions about a scanned packaged food product for a user who is
listening, not reading. You are given the product's extracted label data and
one question. Answer in one to three short sentences of plain speech. Use only
the provided label data; if it does not contain the answer, say so briefly.
Do not use markdown, lists, or emoji.`

// maxAnswerTokens bounds the spoken reply. Three sentences of speech fit
// comfortably; anything longer is a planner bug, not a better answer.
const maxAnswerTokens = 200

// Answerer turns (question, record) pairs into short spoken answers.
type Answerer struct {
	provider llm.Provider
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option is a functional option for configuring an Answerer.
type Option func(*Answerer)

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Answerer) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Answerer) { a.log = l }
}

// New creates an Answerer backed by the given LLM provider.
func New(provider llm.Provider, opts ...Option) *Answerer {
	a := &Answerer{provider: provider}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Answer sends the question plus the rendered record to the model and returns
// the reply text trimmed for narration. A blank question or nil record is an
// error before any model call is made.
func (a *Answerer) Answer(ctx context.Context, question string, rec *product.Record) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("ask: question must not be empty")
	}
	if rec == nil {
		return "", fmt.Errorf("ask: no product record to answer about")
	}

	start := time.Now()
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: buildQuestionPrompt(question, rec),
		}},
		MaxTokens: maxAnswerTokens,
	})
	a.metrics.AnswerDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, "llm", "answer")
		return "", fmt.Errorf("ask: answer question: %w", err)
	}
	a.metrics.RecordProviderRequest(ctx, "llm", "answer", "ok")

	answer := strings.TrimSpace(resp.Content)
	a.log.Debug("question answered",
		"record_id", rec.ID,
		"question_len", len(question),
		"answer_len", len(answer),
		"duration", time.Since(start))
	return answer, nil
}

// buildQuestionPrompt renders the grounding record followed by the question.
func buildQuestionPrompt(question string, rec *product.Record) string {
	var b strings.Builder
	b.WriteString("Product label data:\n")
	rendered := product.Render(rec)
	if rendered == "" {
		rendered = "(no structured data was extracted from this label)"
	}
	b.WriteString(rendered)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
