package elevenlabs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nutrivox/nutrivox/pkg/types"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty api key", func(t *testing.T) {
		t.Parallel()
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty apiKey")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		p, err := New("key")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.model != defaultModel {
			t.Errorf("model = %q, want %q", p.model, defaultModel)
		}
		if p.outputFormat != defaultOutputFmt {
			t.Errorf("outputFormat = %q, want %q", p.outputFormat, defaultOutputFmt)
		}
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()
		p, err := New("key", WithModel("eleven_turbo_v2"), WithOutputFormat("pcm_24000"))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.model != "eleven_turbo_v2" || p.outputFormat != "pcm_24000" {
			t.Errorf("options not applied: %+v", p)
		}
	})
}

func TestSettingsForVoice(t *testing.T) {
	t.Parallel()

	t.Run("default speed omitted", func(t *testing.T) {
		t.Parallel()
		vs := settingsForVoice(types.VoiceProfile{ID: "v1", SpeedFactor: 1.0})
		if vs.Speed != 0 {
			t.Errorf("Speed = %v, want 0 (omitted)", vs.Speed)
		}
	})

	t.Run("custom speed carried", func(t *testing.T) {
		t.Parallel()
		vs := settingsForVoice(types.VoiceProfile{ID: "v1", SpeedFactor: 1.5})
		if vs.Speed != 1.5 {
			t.Errorf("Speed = %v, want 1.5", vs.Speed)
		}
	})

	t.Run("zero speed omitted", func(t *testing.T) {
		t.Parallel()
		vs := settingsForVoice(types.VoiceProfile{ID: "v1"})
		if vs.Speed != 0 {
			t.Errorf("Speed = %v, want 0", vs.Speed)
		}
	})
}

func TestParseVoicesResponse(t *testing.T) {
	t.Parallel()

	t.Run("maps voices", func(t *testing.T) {
		t.Parallel()
		data := []byte(`{
			"voices": [
				{"voice_id": "v1", "name": "Rachel", "category": "premade", "labels": {"accent": "american"}},
				{"voice_id": "v2", "name": "Sam"}
			]
		}`)
		profiles, err := parseVoicesResponse(data)
		if err != nil {
			t.Fatalf("parseVoicesResponse: %v", err)
		}
		if len(profiles) != 2 {
			t.Fatalf("got %d profiles, want 2", len(profiles))
		}
		if profiles[0].ID != "v1" || profiles[0].Name != "Rachel" {
			t.Errorf("profile[0] = %+v", profiles[0])
		}
		if profiles[0].Provider != "elevenlabs" {
			t.Errorf("Provider = %q, want elevenlabs", profiles[0].Provider)
		}
		if profiles[0].Metadata["accent"] != "american" || profiles[0].Metadata["category"] != "premade" {
			t.Errorf("Metadata = %v", profiles[0].Metadata)
		}
		if len(profiles[1].Metadata) != 0 {
			t.Errorf("profile[1].Metadata = %v, want empty", profiles[1].Metadata)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		t.Parallel()
		if _, err := parseVoicesResponse([]byte(`{bad`)); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})

	t.Run("empty catalogue", func(t *testing.T) {
		t.Parallel()
		profiles, err := parseVoicesResponse([]byte(`{"voices": []}`))
		if err != nil {
			t.Fatalf("parseVoicesResponse: %v", err)
		}
		if len(profiles) != 0 {
			t.Errorf("got %d profiles, want 0", len(profiles))
		}
	})
}

func TestBuildWSMessages(t *testing.T) {
	t.Parallel()

	t.Run("boi carries key and format", func(t *testing.T) {
		t.Parallel()
		p, err := New("secret-key", WithOutputFormat("pcm_16000"))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_ = p
		// The BOI payload shape is fixed JSON; verify field names survive marshalling.
		got := mustJSON(t, boiMessage{Text: " ", XiAPIKey: "secret-key", OutputFormat: "pcm_16000"})
		for _, want := range []string{`"xi_api_key":"secret-key"`, `"output_format":"pcm_16000"`} {
			if !strings.Contains(got, want) {
				t.Errorf("BOI %q missing %q", got, want)
			}
		}
	})

	t.Run("flush message is empty text", func(t *testing.T) {
		t.Parallel()
		got := mustJSON(t, textMessage{Text: ""})
		if got != `{"text":""}` {
			t.Errorf("flush = %q", got)
		}
	})
}
