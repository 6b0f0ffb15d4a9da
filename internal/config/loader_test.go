package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    fallbacks:
      - name: ollama
        base_url: http://localhost:11434
        model: llama3
  stt:
    name: whisper
    model: /models/ggml-base.en.bin
  tts:
    name: elevenlabs
    api_key: el-test
  barcode:
    name: openfoodfacts
capture:
  mode: fallback
speech:
  major_ingredients_only: true
  rate: 1.25
  voice_id: river
profile:
  allergens: [Milk, Soy, kiwi]
history:
  postgres_dsn: postgres://nutrivox@localhost:5432/nutrivox
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	t.Run("full config", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
		if err != nil {
			t.Fatalf("LoadFromReader: %v", err)
		}

		if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != LogDebug {
			t.Errorf("server = %+v", cfg.Server)
		}
		if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
			t.Errorf("llm = %+v", cfg.Providers.LLM)
		}
		if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "ollama" {
			t.Errorf("llm fallbacks = %+v", cfg.Providers.LLM.Fallbacks)
		}
		if cfg.Capture.Mode != CaptureFallback {
			t.Errorf("capture mode = %q", cfg.Capture.Mode)
		}
		if !cfg.Speech.MajorIngredientsOnly || cfg.Speech.Rate != 1.25 || cfg.Speech.VoiceID != "river" {
			t.Errorf("speech = %+v", cfg.Speech)
		}
		if len(cfg.Profile.Allergens) != 3 {
			t.Errorf("allergens = %v", cfg.Profile.Allergens)
		}
		if cfg.History.PostgresDSN == "" {
			t.Error("history dsn lost")
		}
	})

	t.Run("omitted fields keep defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFromReader(strings.NewReader("providers:\n  barcode:\n    name: openfoodfacts\n"))
		if err != nil {
			t.Fatalf("LoadFromReader: %v", err)
		}
		if cfg.Server.ListenAddr != ":8080" {
			t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
		}
		if !cfg.Speech.Ingredients || cfg.Speech.Rate != 1.0 {
			t.Errorf("speech defaults lost: %+v", cfg.Speech)
		}
		if cfg.Capture.Mode != CaptureAuto {
			t.Errorf("capture mode = %q", cfg.Capture.Mode)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("server:\n  listen_adr: ':9000'\n"))
		if err == nil || !strings.Contains(err.Error(), "listen_adr") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("speech:\n  rate: 3.0\n"))
		if err == nil || !strings.Contains(err.Error(), "speech.rate") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nutrivox.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("stt = %+v", cfg.Providers.STT)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
