package audio

import (
	"bytes"
	"math"
	"testing"
)

func int16LE(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := int16LE(0, 1000, -1000, 32767, -32768)
	wav := EncodeWAV(pcm, 16000, 1)

	clip, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Channels = %d, want 1", clip.Channels)
	}
	if !bytes.Equal(clip.Data, pcm) {
		t.Errorf("Data mismatch: got %v, want %v", clip.Data, pcm)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":      nil,
		"short":      []byte("RIFF"),
		"wrong sig":  append([]byte("OGGS"), make([]byte, 40)...),
		"no chunks":  append([]byte("RIFF\x00\x00\x00\x00WAVE"), nil...),
		"fmt only":   EncodeWAV(nil, 16000, 1)[:36],
		"truncated":  EncodeWAV(int16LE(1, 2, 3, 4), 16000, 1)[:46],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeWAV(data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	stereo := int16LE(100, 200, -100, -200)
	mono := StereoToMono(stereo)
	want := int16LE(150, -150)
	if !bytes.Equal(mono, want) {
		t.Errorf("StereoToMono = %v, want %v", mono, want)
	}
}

func TestResampleMono16SameRate(t *testing.T) {
	t.Parallel()

	pcm := int16LE(1, 2, 3)
	out := ResampleMono16(pcm, 16000, 16000)
	if !bytes.Equal(out, pcm) {
		t.Error("same-rate resample should return input unchanged")
	}
}

func TestResampleMono16Halves(t *testing.T) {
	t.Parallel()

	pcm := int16LE(0, 0, 0, 0, 0, 0, 0, 0)
	out := ResampleMono16(pcm, 32000, 16000)
	if len(out) != len(pcm)/2 {
		t.Errorf("resampled length = %d, want %d", len(out), len(pcm)/2)
	}
}

func TestFloat32Mono(t *testing.T) {
	t.Parallel()

	pcm := int16LE(0, 16384, -32768)
	samples := Float32Mono(pcm)
	want := []float32{0, 0.5, -1}
	if len(samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-4 {
			t.Errorf("sample %d = %f, want %f", i, samples[i], want[i])
		}
	}
}

func TestPrepareForSTT(t *testing.T) {
	t.Parallel()

	// Stereo 32 kHz in, mono 16 kHz float out.
	clip := Clip{Data: int16LE(100, 100, 200, 200, 300, 300, 400, 400), SampleRate: 32000, Channels: 2}
	samples := PrepareForSTT(clip, 16000)
	if len(samples) != 2 {
		t.Fatalf("len = %d, want 2", len(samples))
	}
}
