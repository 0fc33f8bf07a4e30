package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/cwbudde/algo-codec/codec/frame"
	"github.com/cwbudde/algo-codec/codec/pipeline"
)

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := loadConfigFromReader(strings.NewReader(`
sample_rate: 16000
duration_ms: 10
bitrate_kbps: 32
channels: 2
`))
	if err != nil {
		t.Fatalf("loadConfigFromReader: %v", err)
	}

	if cfg.SampleRate != 16000 || cfg.DurationMs != 10 || cfg.BitrateKbps != 32 || cfg.Channels != 2 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := loadConfigFromReader(strings.NewReader("sample_rate: 16000\nbit_rate: 32\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestDurationFromMs(t *testing.T) {
	tests := []struct {
		ms      float64
		want    frame.Duration
		wantErr bool
	}{
		{2.5, frame.Duration2_5ms, false},
		{5, frame.Duration5ms, false},
		{10, frame.Duration10ms, false},
		{7.5, 0, true},
		{0, 0, true},
	}

	for _, tt := range tests {
		got, err := durationFromMs(tt.ms)
		if tt.wantErr {
			if err == nil {
				t.Errorf("durationFromMs(%g): expected error", tt.ms)
			}
			continue
		}
		if err != nil {
			t.Errorf("durationFromMs(%g): %v", tt.ms, err)
			continue
		}
		if got != tt.want {
			t.Errorf("durationFromMs(%g) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}

// buildWAV assembles a minimal RIFF/WAVE stream around interleaved 16-bit
// samples, optionally inserting an unknown chunk before the data chunk.
func buildWAV(rate, channels int, pcm []int16, junkChunk bool) []byte {
	var data bytes.Buffer
	for _, s := range pcm {
		_ = binary.Write(&data, binary.LittleEndian, s)
	}

	var body bytes.Buffer
	body.WriteString("WAVE")

	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(16))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1))
	_ = binary.Write(&body, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&body, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&body, binary.LittleEndian, uint32(rate*channels*2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(16))

	if junkChunk {
		body.WriteString("LIST")
		_ = binary.Write(&body, binary.LittleEndian, uint32(5))
		body.Write([]byte{1, 2, 3, 4, 5, 0}) // odd size, padded
	}

	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(data.Len()))
	body.Write(data.Bytes())

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestReadWAVMono(t *testing.T) {
	pcm := []int16{0, 100, -100, 32767, -32768}
	wav, err := readWAV(bytes.NewReader(buildWAV(16000, 1, pcm, false)))
	if err != nil {
		t.Fatalf("readWAV: %v", err)
	}

	if wav.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", wav.SampleRate)
	}
	if len(wav.Samples) != 1 {
		t.Fatalf("channels = %d, want 1", len(wav.Samples))
	}
	for i, want := range pcm {
		if got := wav.Samples[0][i]; got != float64(want)/32768 {
			t.Errorf("sample %d = %g, want %g", i, got, float64(want)/32768)
		}
	}
}

func TestReadWAVStereoDeinterleaves(t *testing.T) {
	pcm := []int16{1, -1, 2, -2, 3, -3}
	wav, err := readWAV(bytes.NewReader(buildWAV(48000, 2, pcm, false)))
	if err != nil {
		t.Fatalf("readWAV: %v", err)
	}

	if len(wav.Samples) != 2 || len(wav.Samples[0]) != 3 {
		t.Fatalf("got %d channels x %d samples, want 2 x 3", len(wav.Samples), len(wav.Samples[0]))
	}
	for i := 0; i < 3; i++ {
		left, right := float64(i+1)/32768, float64(-(i+1))/32768
		if wav.Samples[0][i] != left || wav.Samples[1][i] != right {
			t.Errorf("sample %d = (%g, %g), want (%g, %g)", i, wav.Samples[0][i], wav.Samples[1][i], left, right)
		}
	}
}

func TestReadWAVSkipsUnknownChunks(t *testing.T) {
	pcm := []int16{7, 8, 9}
	wav, err := readWAV(bytes.NewReader(buildWAV(8000, 1, pcm, true)))
	if err != nil {
		t.Fatalf("readWAV: %v", err)
	}
	if len(wav.Samples[0]) != 3 || wav.Samples[0][2] != 9.0/32768 {
		t.Errorf("unexpected samples: %v", wav.Samples[0])
	}
}

func TestReadWAVRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("RIFX....WAVE")},
		{"truncated", buildWAV(16000, 1, []int16{1, 2, 3}, false)[:20]},
	}

	for _, tt := range tests {
		if _, err := readWAV(bytes.NewReader(tt.data)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestEncodeDecodedWAVStaysInRange(t *testing.T) {
	const rate, n = 16000, 160

	// A -12 dBFS sine through the WAV reader must not saturate the transform.
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(8192 * math.Sin(2*math.Pi*1000*float64(i)/rate))
	}

	wav, err := readWAV(bytes.NewReader(buildWAV(rate, 1, pcm, false)))
	if err != nil {
		t.Fatalf("readWAV: %v", err)
	}

	enc, err := pipeline.New(frame.Config{
		SampleRate:  rate,
		Duration:    frame.Duration10ms,
		BitrateKbps: 32,
		Channels:    1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if _, err := enc.EncodeFrame(wav.Samples[0][:n]); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if enc.Stats().Overflow {
		t.Error("overflow flagged for a -12 dBFS sine")
	}
}

func TestReadRaw(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []int16{10, -10, 20, -20} {
		_ = binary.Write(&buf, binary.LittleEndian, s)
	}

	samples, err := readRaw(&buf, 2)
	if err != nil {
		t.Fatalf("readRaw: %v", err)
	}
	if len(samples) != 2 || len(samples[0]) != 2 {
		t.Fatalf("got %d channels x %d samples, want 2 x 2", len(samples), len(samples[0]))
	}
	if samples[0][1] != 20.0/32768 || samples[1][1] != -20.0/32768 {
		t.Errorf("unexpected samples: %v", samples)
	}
}

func TestReadRawRejectsPartialFrame(t *testing.T) {
	if _, err := readRaw(bytes.NewReader([]byte{1, 2, 3}), 2); err == nil {
		t.Fatal("expected error for partial frame")
	}
}
