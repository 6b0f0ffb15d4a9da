package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"openai", "anthropic", "gemini", "ollama"},
	"stt":     {"deepgram", "whisper"},
	"tts":     {"elevenlabs"},
	"barcode": {"openfoodfacts"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Capture.Mode != "" && !cfg.Capture.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("capture.mode %q is invalid; valid values: auto, direct, fallback", cfg.Capture.Mode))
	}
	if cfg.Capture.Mode != "" && cfg.Capture.Mode != CaptureAuto && cfg.Providers.STT.Name == "" {
		errs = append(errs, fmt.Errorf("capture.mode %q requires an STT provider but providers.stt is not configured", cfg.Capture.Mode))
	}

	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is invalid", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels != 0 && cfg.Capture.Channels != 1 && cfg.Capture.Channels != 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is invalid; valid values: 1, 2", cfg.Capture.Channels))
	}

	if cfg.Speech.Rate != 0 && (cfg.Speech.Rate < 0.5 || cfg.Speech.Rate > 2.0) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.5, 2.0]", cfg.Speech.Rate))
	}

	validateProviderChain("llm", cfg.Providers.LLM)
	validateProviderChain("stt", cfg.Providers.STT)
	validateProviderChain("tts", cfg.Providers.TTS)
	validateProviderChain("barcode", cfg.Providers.Barcode)

	// Availability warnings. A missing provider degrades a feature rather
	// than failing validation: the scan pipeline works from pattern
	// extraction alone.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; AI extraction and question answering are disabled")
	}
	if cfg.Providers.Barcode.Name == "" {
		slog.Warn("no barcode provider configured; barcode lookup is disabled")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; narration is disabled")
	}
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; scans will not be persisted")
	}
	if len(cfg.Profile.Allergens) == 0 {
		slog.Warn("profile.allergens is empty; no allergen alerts will be raised")
	}

	return errors.Join(errs...)
}

// validateProviderChain warns about unknown names in an entry and its
// fallbacks.
func validateProviderChain(kind string, entry ProviderEntry) {
	validateProviderName(kind, entry.Name)
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
