package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher(t *testing.T) {
	t.Parallel()

	t.Run("detects changes", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "nutrivox.yaml")
		writeConfig(t, path, "speech:\n  rate: 1.0\n")

		changed := make(chan *Config, 1)
		w, err := NewWatcher(path, func(old, new *Config) {
			changed <- new
		}, WithInterval(20*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		defer w.Stop()

		if got := w.Current().Speech.Rate; got != 1.0 {
			t.Fatalf("initial rate = %v", got)
		}

		// mtime granularity can swallow rapid rewrites; back-date the
		// original so the update always looks newer.
		past := time.Now().Add(-time.Minute)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		writeConfig(t, path, "speech:\n  rate: 1.5\n")

		select {
		case cfg := <-changed:
			if cfg.Speech.Rate != 1.5 {
				t.Errorf("reloaded rate = %v", cfg.Speech.Rate)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for reload")
		}
		if got := w.Current().Speech.Rate; got != 1.5 {
			t.Errorf("Current rate = %v", got)
		}
	})

	t.Run("keeps old config on invalid update", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "nutrivox.yaml")
		writeConfig(t, path, "speech:\n  rate: 1.0\n")

		w, err := NewWatcher(path, func(old, new *Config) {
			t.Error("onChange fired for an invalid config")
		}, WithInterval(20*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		defer w.Stop()

		past := time.Now().Add(-time.Minute)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		writeConfig(t, path, "speech:\n  rate: 99\n")

		time.Sleep(200 * time.Millisecond)
		if got := w.Current().Speech.Rate; got != 1.0 {
			t.Errorf("Current rate = %v, want old value kept", got)
		}
	})

	t.Run("initial load failure", func(t *testing.T) {
		t.Parallel()
		_, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil)
		if err == nil {
			t.Error("missing file accepted")
		}
	})
}
