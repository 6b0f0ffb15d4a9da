package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmFromSamples(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()

	t.Run("normalisation", func(t *testing.T) {
		t.Parallel()
		out := pcmToFloat32(pcmFromSamples(0, 16384, -32768, 32767))
		want := []float32{0, 0.5, -1.0, float32(32767) / 32768.0}
		if len(out) != len(want) {
			t.Fatalf("len = %d, want %d", len(out), len(want))
		}
		for i := range want {
			if math.Abs(float64(out[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
			}
		}
	})

	t.Run("odd trailing byte ignored", func(t *testing.T) {
		t.Parallel()
		pcm := append(pcmFromSamples(100), 0x7f)
		if got := len(pcmToFloat32(pcm)); got != 1 {
			t.Errorf("len = %d, want 1", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		if got := len(pcmToFloat32(nil)); got != 0 {
			t.Errorf("len = %d, want 0", got)
		}
	})
}

func TestPCMToFloat32Mono(t *testing.T) {
	t.Parallel()

	t.Run("stereo average", func(t *testing.T) {
		t.Parallel()
		// Two frames of interleaved L/R: (16384, 0) and (-16384, -16384).
		pcm := pcmFromSamples(16384, 0, -16384, -16384)
		out := pcmToFloat32Mono(pcm, 2)
		want := []float32{0.25, -0.5}
		if len(out) != len(want) {
			t.Fatalf("len = %d, want %d", len(out), len(want))
		}
		for i := range want {
			if math.Abs(float64(out[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
			}
		}
	})

	t.Run("mono passthrough", func(t *testing.T) {
		t.Parallel()
		pcm := pcmFromSamples(16384)
		out := pcmToFloat32Mono(pcm, 1)
		if len(out) != 1 || out[0] != 0.5 {
			t.Errorf("out = %v, want [0.5]", out)
		}
	})
}
