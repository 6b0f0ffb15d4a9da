// Package voicecmd recognizes spoken narration commands in capture
// transcripts. Final transcripts are checked against a set of regex patterns
// first; short utterances that match no pattern get a phonetic second pass, so
// STT mishearings like "paws" or "stahp" still land on the intended command.
//
// Transcripts that match no command are treated as free-form questions about
// the scanned product.
package voicecmd

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Command identifies one narration control action.
type Command string

const (
	CommandPause        Command = "pause"
	CommandResume       Command = "resume"
	CommandSkipNext     Command = "skip-next"
	CommandSkipPrevious Command = "skip-previous"
	CommandRepeat       Command = "repeat"
	CommandStop         Command = "stop"
)

// Controls is the narration collaborator driven by voice commands. The
// speech narrator satisfies it directly.
type Controls interface {
	Pause()
	Resume()
	SkipNext()
	SkipPrevious()
	Repeat()
	Stop()
}

// Pattern pairs a compiled regex with the command it triggers.
type Pattern struct {
	// Regex is the compiled pattern, matched against the trimmed transcript.
	Regex *regexp.Regexp

	// Command is executed when Regex matches.
	Command Command
}

// Handler checks capture transcripts for narration commands and executes
// matching ones on the controls. All methods are safe for concurrent use;
// the Handler itself is read-only after construction.
type Handler struct {
	patterns []Pattern
	matcher  *Matcher
	controls Controls
	ask      func(ctx context.Context, question string) error
	log      *slog.Logger
}

// Option is a functional option for configuring a Handler.
type Option func(*Handler)

// WithAsk sets the callback invoked for transcripts that match no command.
// When nil, unmatched transcripts are simply reported as not handled.
func WithAsk(ask func(ctx context.Context, question string) error) Option {
	return func(h *Handler) { h.ask = ask }
}

// WithPatterns replaces the built-in pattern set.
func WithPatterns(patterns []Pattern) Option {
	return func(h *Handler) { h.patterns = patterns }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New creates a Handler driving the given controls.
func New(controls Controls, opts ...Option) *Handler {
	h := &Handler{
		patterns: defaultPatterns(),
		matcher:  NewMatcher(),
		controls: controls,
	}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// Handle interprets one final transcript. A recognized command is executed on
// the controls and Handle returns (true, nil). An unrecognized transcript is
// passed to the ask callback when one is configured, returning (true, err);
// without a callback it returns (false, nil). Blank transcripts are ignored.
func (h *Handler) Handle(ctx context.Context, text string) (bool, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, nil
	}

	if cmd, ok := h.Interpret(trimmed); ok {
		h.execute(cmd)
		h.log.Info("voice command executed", "command", cmd, "text", trimmed)
		return true, nil
	}

	if h.ask == nil {
		return false, nil
	}
	if err := h.ask(ctx, trimmed); err != nil {
		return true, fmt.Errorf("voicecmd: answer question: %w", err)
	}
	return true, nil
}

// Interpret maps a transcript to a command without executing it. The regex
// pass runs first; utterances of at most three words that match no pattern
// get a phonetic pass against the command keywords.
func (h *Handler) Interpret(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	for _, p := range h.patterns {
		if p.Regex.MatchString(trimmed) {
			return p.Command, true
		}
	}

	if len(strings.Fields(trimmed)) <= 3 {
		if keyword, conf, ok := h.matcher.Match(trimmed, Keywords()); ok {
			if cmd, known := commandFor(keyword); known {
				h.log.Debug("phonetic command match",
					"text", trimmed, "keyword", keyword, "confidence", conf)
				return cmd, true
			}
		}
	}
	return "", false
}

func (h *Handler) execute(cmd Command) {
	switch cmd {
	case CommandPause:
		h.controls.Pause()
	case CommandResume:
		h.controls.Resume()
	case CommandSkipNext:
		h.controls.SkipNext()
	case CommandSkipPrevious:
		h.controls.SkipPrevious()
	case CommandRepeat:
		h.controls.Repeat()
	case CommandStop:
		h.controls.Stop()
	}
}

// defaultPatterns returns the built-in narration command patterns. Patterns
// are anchored so a command word inside a longer question does not hijack it:
// "stop" is a command, "does storage matter" is not.
func defaultPatterns() []Pattern {
	return []Pattern{
		{Command: CommandPause, Regex: regexp.MustCompile(`(?i)^(?:please\s+)?pause(?:\s+(?:it|reading|narration))?$`)},
		{Command: CommandResume, Regex: regexp.MustCompile(`(?i)^(?:please\s+)?(?:resume|continue)(?:\s+(?:it|reading|narration))?$`)},
		{Command: CommandResume, Regex: regexp.MustCompile(`(?i)^(?:keep|carry\s+on)\s+(?:going|reading)$`)},
		{Command: CommandSkipNext, Regex: regexp.MustCompile(`(?i)^(?:skip(?:\s+(?:this|that|ahead|it))?|next(?:\s+section)?)$`)},
		{Command: CommandSkipPrevious, Regex: regexp.MustCompile(`(?i)^(?:go\s+)?back(?:\s+(?:one|a)\s+section)?$`)},
		{Command: CommandSkipPrevious, Regex: regexp.MustCompile(`(?i)^previous(?:\s+section)?$`)},
		{Command: CommandRepeat, Regex: regexp.MustCompile(`(?i)^(?:repeat|say)(?:\s+(?:that|it))?(?:\s+again)?$`)},
		{Command: CommandRepeat, Regex: regexp.MustCompile(`(?i)^again$`)},
		{Command: CommandStop, Regex: regexp.MustCompile(`(?i)^(?:please\s+)?stop(?:\s+(?:it|reading|narration|talking))?$`)},
		{Command: CommandStop, Regex: regexp.MustCompile(`(?i)^(?:be\s+quiet|shut\s+up|enough)$`)},
	}
}

// commandKeywords pairs one phonetic anchor word per command. The slice order
// is fixed: Matcher.Match keeps the first of two equal-scoring candidates, so
// iteration order decides phonetic ties and must stay stable across runs.
var commandKeywords = []struct {
	Keyword string
	Command Command
}{
	{"pause", CommandPause},
	{"resume", CommandResume},
	{"continue", CommandResume},
	{"skip", CommandSkipNext},
	{"next", CommandSkipNext},
	{"back", CommandSkipPrevious},
	{"previous", CommandSkipPrevious},
	{"repeat", CommandRepeat},
	{"stop", CommandStop},
}

// Keywords lists the command anchor words in their fixed matching order.
// Callers pass them to the STT provider as vocabulary hints so short commands
// survive noisy capture.
func Keywords() []string {
	out := make([]string, len(commandKeywords))
	for i, kc := range commandKeywords {
		out[i] = kc.Keyword
	}
	return out
}

// commandFor resolves a matched anchor word back to its command.
func commandFor(keyword string) (Command, bool) {
	for _, kc := range commandKeywords {
		if kc.Keyword == keyword {
			return kc.Command, true
		}
	}
	return "", false
}
