package config

import (
	"strings"
	"testing"

	"github.com/nutrivox/nutrivox/internal/allergen"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("default config is valid", func(t *testing.T) {
		t.Parallel()
		if err := Validate(Default()); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Server.LogLevel = "verbose"
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "log_level") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("incomplete tls", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Server.TLS = &TLSConfig{CertFile: "server.crt"}
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "tls") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("invalid capture mode", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Capture.Mode = "hybrid"
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "capture.mode") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("explicit capture mode requires stt", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Capture.Mode = CaptureDirect
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "providers.stt") {
			t.Errorf("err = %v", err)
		}

		cfg.Providers.STT.Name = "deepgram"
		if err := Validate(cfg); err != nil {
			t.Errorf("Validate with stt configured: %v", err)
		}
	})

	t.Run("speech rate bounds", func(t *testing.T) {
		t.Parallel()
		for _, rate := range []float64{0.4, 2.1, -1} {
			cfg := Default()
			cfg.Speech.Rate = rate
			if err := Validate(cfg); err == nil {
				t.Errorf("rate %.2f accepted", rate)
			}
		}
		for _, rate := range []float64{0, 0.5, 1.0, 2.0} {
			cfg := Default()
			cfg.Speech.Rate = rate
			if err := Validate(cfg); err != nil {
				t.Errorf("rate %.2f rejected: %v", rate, err)
			}
		}
	})

	t.Run("multiple failures joined", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Server.LogLevel = "loud"
		cfg.Speech.Rate = 9
		err := Validate(cfg)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "speech.rate") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestSpeechConfigPreferences(t *testing.T) {
	t.Parallel()

	prefs := Default().Speech.Preferences()
	if !prefs.ProductName || !prefs.Nutrition || !prefs.Protein {
		t.Errorf("default prefs = %+v", prefs)
	}
	if prefs.Rate != 1.0 {
		t.Errorf("Rate = %v", prefs.Rate)
	}

	fast := SpeechConfig{Ingredients: true, MajorIngredientsOnly: true, Rate: 1.5}
	got := fast.Preferences()
	if !got.Ingredients || !got.MajorIngredientsOnly || got.Nutrition {
		t.Errorf("prefs = %+v", got)
	}
	if got.Rate != 1.5 {
		t.Errorf("Rate = %v", got.Rate)
	}

	// Zero rate means normal speed.
	if got := (SpeechConfig{}).Preferences(); got.Rate != 1.0 {
		t.Errorf("Rate = %v", got.Rate)
	}
}

func TestProfileConfigAllergenProfile(t *testing.T) {
	t.Parallel()

	p := ProfileConfig{Allergens: []string{"Milk", "tree nuts", "dragon fruit"}}
	got := p.AllergenProfile()
	if len(got.Common) != 2 || got.Common[0] != allergen.Milk || got.Common[1] != allergen.TreeNuts {
		t.Errorf("Common = %v", got.Common)
	}
	if len(got.Custom) != 1 || got.Custom[0] != "dragon fruit" {
		t.Errorf("Custom = %v", got.Custom)
	}

	if !(ProfileConfig{}).AllergenProfile().IsEmpty() {
		t.Error("empty config must produce an empty profile")
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	t.Run("no changes", func(t *testing.T) {
		t.Parallel()
		d := Diff(Default(), Default())
		if d.HotApplicable() || d.RestartRequired {
			t.Errorf("diff = %+v", d)
		}
	})

	t.Run("hot-applicable changes", func(t *testing.T) {
		t.Parallel()
		old := Default()
		new := Default()
		new.Server.LogLevel = LogDebug
		new.Speech.Rate = 1.5
		new.Profile.Allergens = []string{"Milk"}

		d := Diff(old, new)
		if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
			t.Errorf("log level diff = %+v", d)
		}
		if !d.SpeechChanged || d.NewSpeech.Rate != 1.5 {
			t.Errorf("speech diff = %+v", d)
		}
		if !d.ProfileChanged || len(d.NewProfile.Allergens) != 1 {
			t.Errorf("profile diff = %+v", d)
		}
		if d.RestartRequired {
			t.Error("hot-applicable changes must not require a restart")
		}
	})

	t.Run("restart-required changes", func(t *testing.T) {
		t.Parallel()
		for name, mutate := range map[string]func(*Config){
			"listen addr": func(c *Config) { c.Server.ListenAddr = ":9090" },
			"provider":    func(c *Config) { c.Providers.LLM.Name = "openai" },
			"capture":     func(c *Config) { c.Capture.Mode = CaptureFallback },
			"history":     func(c *Config) { c.History.PostgresDSN = "postgres://x" },
		} {
			new := Default()
			mutate(new)
			if d := Diff(Default(), new); !d.RestartRequired {
				t.Errorf("%s change did not require restart", name)
			}
		}
	})
}
