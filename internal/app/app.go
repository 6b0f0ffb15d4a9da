// Package app wires all NutriVox subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API and blocks, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithAudioSource, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/nutrivox/nutrivox/internal/allergen"
	"github.com/nutrivox/nutrivox/internal/api"
	"github.com/nutrivox/nutrivox/internal/ask"
	"github.com/nutrivox/nutrivox/internal/capture"
	"github.com/nutrivox/nutrivox/internal/config"
	"github.com/nutrivox/nutrivox/internal/health"
	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/internal/pipeline"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/internal/speech"
	"github.com/nutrivox/nutrivox/internal/voicecmd"
	"github.com/nutrivox/nutrivox/pkg/audio"
	"github.com/nutrivox/nutrivox/pkg/history"
	"github.com/nutrivox/nutrivox/pkg/history/postgres"
	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
	"github.com/nutrivox/nutrivox/pkg/provider/llm"
	"github.com/nutrivox/nutrivox/pkg/provider/stt"
	"github.com/nutrivox/nutrivox/pkg/provider/tts"
	"github.com/nutrivox/nutrivox/pkg/types"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry,
// already wrapped with fallback chains where the config declares any.
type Providers struct {
	LLM         llm.Provider
	STT         stt.Provider
	Transcriber stt.Transcriber
	TTS         tts.Provider
	Barcode     barcode.Provider
}

// App owns all subsystem lifetimes and serves the NutriVox HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	store    history.Store
	checks   []health.Checker
	pipeline *pipeline.Pipeline
	answerer *ask.Answerer
	narrator *speech.Narrator
	capture  *capture.Controller
	commands *voicecmd.Handler
	server   *http.Server

	// Injected test doubles; nil means build from config.
	source capture.Source
	sink   speech.AudioSink

	// Preferences, profile, and the last scanned record are read per request
	// and swapped on hot reload.
	mu      sync.RWMutex
	prefs   speech.Preferences
	profile allergen.Profile
	lastRec *product.Record

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a scan history store instead of connecting to
// PostgreSQL from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithAudioSource injects a capture audio source instead of opening the
// configured input stream.
func WithAudioSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithAudioSink injects a narration audio sink instead of opening the
// configured output stream.
func WithAudioSink(s speech.AudioSink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics injects a metrics recorder. Defaults to the process-wide
// instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// ctx bounds the app's background work: narration utterances issued after Run
// starts are cancelled when it is done.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		prefs:     cfg.Speech.Preferences(),
		profile:   cfg.Profile.AllergenProfile(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Scan history ──────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Scan pipeline + question answering ────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 3. Narrator ──────────────────────────────────────────────────────
	if err := a.initNarrator(ctx); err != nil {
		return nil, fmt.Errorf("app: init narrator: %w", err)
	}

	// ── 4. Voice capture + commands ──────────────────────────────────────
	if err := a.initCapture(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory connects the PostgreSQL scan store, or leaves persistence off
// when no DSN is configured and no store was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.History.PostgresDSN
		if dsn == "" {
			slog.Info("history disabled: no postgres_dsn configured")
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		a.checks = append(a.checks, health.PingChecker("postgres", p))
	}
	return nil
}

// initPipeline builds the scan pipeline and, when an LLM provider exists, the
// AI extraction stage and the question answerer.
func (a *App) initPipeline() error {
	popts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
	}
	if a.providers.Barcode != nil {
		popts = append(popts, pipeline.WithBarcodeProvider(a.providers.Barcode))
	}
	if a.providers.LLM != nil {
		ex, err := pipeline.NewAIExtractor(a.providers.LLM)
		if err != nil {
			return fmt.Errorf("build AI extractor: %w", err)
		}
		popts = append(popts, pipeline.WithAIExtractor(ex))
		a.answerer = ask.New(a.providers.LLM, ask.WithMetrics(a.metrics))
	}
	a.pipeline = pipeline.New(popts...)
	return nil
}

// initNarrator builds the narrator over the TTS provider when one is
// configured. Without TTS the server still answers scans over HTTP; it just
// cannot speak them.
func (a *App) initNarrator(ctx context.Context) error {
	if a.providers.TTS == nil {
		slog.Info("narration disabled: no TTS provider configured")
		return nil
	}

	sink := a.sink
	if sink == nil {
		if out := a.cfg.Speech.Output; out != "" {
			ws, closer, err := audio.OpenSink(out)
			if err != nil {
				return err
			}
			sink = ws
			a.closers = append(a.closers, closer.Close)
		} else {
			slog.Warn("speech.output is empty; narration audio is discarded")
			sink = speech.AudioSinkFunc(func(context.Context, []byte) error { return nil })
		}
	}

	voice := types.VoiceProfile{
		ID:       a.cfg.Speech.VoiceID,
		Provider: a.cfg.Providers.TTS.Name,
	}
	synth := speech.NewTTSSynth(a.providers.TTS, sink, voice,
		speech.WithSynthMetrics(a.metrics))
	a.narrator = speech.NewNarrator(ctx, synth,
		speech.WithNarratorMetrics(a.metrics))
	return nil
}

// initCapture builds the capture controller and the voice command handler.
// Capture needs an audio source (configured input path or injected) and a
// recognizer matching the configured mode.
func (a *App) initCapture() error {
	source := a.source
	if source == nil {
		if a.cfg.Capture.Input == "" {
			slog.Info("voice capture disabled: no capture.input configured")
			return nil
		}
		src := audio.Format{SampleRate: a.cfg.Capture.SampleRate, Channels: a.cfg.Capture.Channels}
		rs, err := audio.OpenSource(a.cfg.Capture.Input, src, a.recognizerFormat())
		if err != nil {
			return err
		}
		source = rs
		a.closers = append(a.closers, rs.Close)
	}

	rec, err := a.buildRecognizer(source)
	if err != nil {
		return err
	}

	copts := []capture.Option{capture.WithMetrics(a.metrics)}
	if a.narrator != nil {
		copts = append(copts, capture.WithNarrator(a.narrator))
	}
	a.capture = capture.NewController(rec, copts...)
	a.closers = append(a.closers, a.capture.Destroy)

	if a.narrator != nil {
		var vopts []voicecmd.Option
		if a.answerer != nil {
			vopts = append(vopts, voicecmd.WithAsk(a.answerAloud))
		}
		a.commands = voicecmd.New(a.narrator, vopts...)
	}
	return nil
}

// recognizerFormat is the PCM format capture audio is normalized to. Direct
// streaming keeps the input format and declares it to the provider; the
// one-shot transcriber expects 16 kHz mono.
func (a *App) recognizerFormat() audio.Format {
	if a.resolveMode() == config.CaptureDirect {
		return audio.Format{SampleRate: a.cfg.Capture.SampleRate, Channels: a.cfg.Capture.Channels}
	}
	return audio.Format{SampleRate: 16000, Channels: 1}
}

// resolveMode maps auto to a concrete capture mode based on which STT
// capability is available.
func (a *App) resolveMode() config.CaptureMode {
	mode := a.cfg.Capture.Mode
	if mode == "" || mode == config.CaptureAuto {
		if a.providers.STT != nil {
			return config.CaptureDirect
		}
		return config.CaptureFallback
	}
	return mode
}

// buildRecognizer constructs the recognizer for the resolved capture mode.
func (a *App) buildRecognizer(source capture.Source) (capture.Recognizer, error) {
	switch mode := a.resolveMode(); mode {
	case config.CaptureDirect:
		if a.providers.STT == nil {
			return nil, fmt.Errorf("capture mode %q requires a streaming STT provider", mode)
		}
		cfg := stt.StreamConfig{
			SampleRate: a.cfg.Capture.SampleRate,
			Channels:   a.cfg.Capture.Channels,
			Keywords:   commandBoosts(),
		}
		return capture.NewDirectRecognizer(a.providers.STT, source, cfg), nil

	case config.CaptureFallback:
		if a.providers.Transcriber == nil {
			return nil, fmt.Errorf("capture mode %q requires a transcriber provider", mode)
		}
		return capture.NewFallbackRecognizer(a.providers.Transcriber, source), nil

	default:
		return nil, fmt.Errorf("unknown capture mode %q", mode)
	}
}

// initServer assembles the HTTP API around the subsystems that exist.
func (a *App) initServer() {
	opts := []api.Option{
		api.WithMetrics(a.metrics),
		api.WithHealth(health.New(a.checks...)),
		api.WithDefaultProfile(a.currentProfile),
		api.WithDefaultPreferences(a.currentPrefs),
		api.WithScanHook(a.onScan),
	}
	if a.store != nil {
		opts = append(opts, api.WithHistory(a.store))
	}
	if a.answerer != nil {
		opts = append(opts, api.WithAnswerer(a.answerer))
	}
	if a.narrator != nil {
		opts = append(opts, api.WithControls(a.narrator))
	}
	if a.capture != nil {
		opts = append(opts, api.WithListener(a))
	}

	srv := api.NewServer(a.pipeline, opts...)
	a.server = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: srv.Handler(),
	}
}

// commandBoosts converts the voice command anchor words to STT vocabulary
// hints.
func commandBoosts() []types.KeywordBoost {
	words := voicecmd.Keywords()
	out := make([]types.KeywordBoost, 0, len(words))
	for _, w := range words {
		out = append(out, types.KeywordBoost{Keyword: w, Boost: 1.5})
	}
	return out
}

// ─── Voice loop ──────────────────────────────────────────────────────────────

// Start begins one capture session. Transcripts flow into the voice command
// handler; questions are answered aloud about the last scanned product.
func (a *App) Start(ctx context.Context) error {
	if a.capture == nil {
		return errors.New("app: voice capture is not configured")
	}
	return a.capture.StartListening(ctx, func(text string) {
		a.onTranscript(ctx, text)
	})
}

// Stop ends the in-flight capture session, if any.
func (a *App) Stop() {
	if a.capture != nil {
		a.capture.StopListening()
	}
}

var _ api.Listener = (*App)(nil)

// onTranscript routes one capture result through the command handler.
func (a *App) onTranscript(ctx context.Context, text string) {
	if a.commands == nil {
		slog.Info("transcript received but narration is disabled", "text", text)
		return
	}
	handled, err := a.commands.Handle(ctx, text)
	if err != nil {
		slog.Warn("voice command failed", "text", text, "err", err)
		return
	}
	if !handled {
		slog.Debug("transcript not handled", "text", text)
	}
}

// answerAloud answers a spoken question about the last scanned product and
// narrates the answer.
func (a *App) answerAloud(ctx context.Context, question string) error {
	rec := a.lastRecord()
	if rec == nil {
		a.narrator.SpeakAnswer("No product has been scanned yet.")
		return nil
	}
	answer, err := a.answerer.Answer(ctx, question, rec)
	if err != nil {
		return fmt.Errorf("answer question: %w", err)
	}
	a.narrator.SpeakAnswer(answer)

	if a.store != nil {
		saveErr := a.store.SaveAnswer(ctx, history.Answer{
			ID:       uuid.NewString(),
			ScanID:   rec.ID,
			Question: question,
			Answer:   answer,
		})
		if saveErr != nil {
			slog.Warn("persist answer", "err", saveErr, "scan_id", rec.ID)
		}
	}
	return nil
}

// onScan remembers the record for follow-up questions and narrates it.
func (a *App) onScan(rec *product.Record) {
	a.mu.Lock()
	a.lastRec = rec
	a.mu.Unlock()

	if a.narrator != nil {
		prefs := a.currentPrefs()
		a.narrator.Speak(speech.Plan(rec, prefs), prefs.Rate)
	}
}

func (a *App) lastRecord() *product.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastRec
}

func (a *App) currentPrefs() speech.Preferences {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.prefs
}

func (a *App) currentProfile() allergen.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profile
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyPreferences swaps the reading preferences. Takes effect on the next
// scan or narration; an in-flight narration keeps its plan.
func (a *App) ApplyPreferences(p speech.Preferences) {
	a.mu.Lock()
	a.prefs = p
	a.mu.Unlock()
	slog.Info("reading preferences updated", "rate", p.Rate)
}

// ApplyProfile swaps the allergen profile used for scans without an explicit
// one.
func (a *App) ApplyProfile(p allergen.Profile) {
	a.mu.Lock()
	a.profile = p
	a.mu.Unlock()
	slog.Info("allergen profile updated", "allergens", p.Names())
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the listener
// fails. When ctx is done, Run returns ctx.Err(); call Shutdown to tear the
// app down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server listening",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
		"history", a.store != nil,
		"narration", a.narrator != nil,
		"capture", a.capture != nil,
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: HTTP server first so no new
// work arrives, then narration, then the closers registered during New. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		if a.narrator != nil {
			a.narrator.Stop()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
