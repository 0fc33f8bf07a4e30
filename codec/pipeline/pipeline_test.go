package pipeline

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cwbudde/algo-codec/codec/bitstream"
	"github.com/cwbudde/algo-codec/codec/frame"
	"github.com/cwbudde/algo-codec/dsp/signal"
)

func sineInput(t *testing.T, freq float64, cfg frame.Config, frames int) []float64 {
	t.Helper()

	gen, err := signal.NewGenerator(float64(cfg.SampleRate))
	if err != nil {
		t.Fatal(err)
	}
	pcm, err := gen.Sine(freq, 0.5, cfg.FrameLength()*frames)
	if err != nil {
		t.Fatal(err)
	}
	return pcm
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  frame.Config
	}{
		{"bad sample rate", frame.Config{SampleRate: 11025, Duration: frame.Duration10ms, BitrateKbps: 32, Channels: 1}},
		{"bad bitrate", frame.Config{SampleRate: 16000, Duration: frame.Duration10ms, BitrateKbps: 17, Channels: 1}},
		{"fractional frame", frame.Config{SampleRate: 44100, Duration: frame.Duration2_5ms, BitrateKbps: 32, Channels: 1}},
		{"bad channels", frame.Config{SampleRate: 16000, Duration: frame.Duration10ms, BitrateKbps: 32, Channels: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEncodeSineEndToEnd(t *testing.T) {
	cfg := testConfig() // 16 kHz, 10 ms, 32 kbps, mono

	enc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	pcm := sineInput(t, 1000, cfg, 1)
	out, err := enc.EncodeFrame(pcm)
	if err != nil {
		t.Fatal(err)
	}

	if len(out) <= bitstream.Overhead {
		t.Fatalf("output %d bytes, want payload beyond framing overhead", len(out))
	}

	h, err := bitstream.ParseHeader(binary.BigEndian.Uint16(out))
	if err != nil {
		t.Fatal(err)
	}
	if h.SampleRateIndex != cfg.SampleRateIndex() {
		t.Errorf("sample-rate index = %d, want %d", h.SampleRateIndex, cfg.SampleRateIndex())
	}
	if h.DurationIndex != cfg.DurationIndex() {
		t.Errorf("duration index = %d, want %d", h.DurationIndex, cfg.DurationIndex())
	}
	if h.BitrateIndex != cfg.BitrateIndex() {
		t.Errorf("bitrate index = %d, want %d", h.BitrateIndex, cfg.BitrateIndex())
	}
	if h.Stereo {
		t.Error("stereo bit set on mono frame")
	}
	if !h.CRCPresent {
		t.Error("CRC flag missing")
	}

	if err := bitstream.Check(out); err != nil {
		t.Errorf("frame check: %v", err)
	}

	stats := enc.Stats()
	if stats.TargetBits != cfg.TargetBits() {
		t.Errorf("target bits = %d, want %d", stats.TargetBits, cfg.TargetBits())
	}
	if stats.UsedBits <= 0 {
		t.Errorf("used bits = %d, want > 0", stats.UsedBits)
	}
}

func TestEncodeAllZeroFrameIsMinimal(t *testing.T) {
	cfg := testConfig()

	enc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	out, err := enc.EncodeFrame(make([]float64, cfg.FrameLength()))
	if err != nil {
		t.Fatal(err)
	}

	// A silent frame collapses to one zero-run symbol: a few payload
	// bytes at most.
	if len(out) > bitstream.Overhead+8 {
		t.Errorf("silent frame is %d bytes", len(out))
	}
	if err := bitstream.Check(out); err != nil {
		t.Errorf("frame check: %v", err)
	}
}

func TestEncodeIdempotentAfterReset(t *testing.T) {
	cfg := testConfig()

	enc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	pcm := sineInput(t, 440, cfg, 4)
	n := cfg.FrameLength()

	run := func() [][]byte {
		var outs [][]byte
		for f := 0; f < 4; f++ {
			out, err := enc.EncodeFrame(pcm[f*n : (f+1)*n])
			if err != nil {
				t.Fatal(err)
			}
			outs = append(outs, out)
		}
		return outs
	}

	first := run()
	enc.Reset()
	second := run()

	for f := range first {
		if !bytes.Equal(first[f], second[f]) {
			t.Fatalf("frame %d differs after reset", f)
		}
	}
}

func TestEncodeStateful(t *testing.T) {
	cfg := testConfig()

	enc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	pcm := sineInput(t, 440, cfg, 2)
	n := cfg.FrameLength()

	// Without a reset, the transform history and adaptive tables make the
	// second identical input frame encode differently from the first.
	first, err := enc.EncodeFrame(pcm[:n])
	if err != nil {
		t.Fatal(err)
	}
	second, err := enc.EncodeFrame(pcm[:n])
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(first, second) {
		t.Error("stateful frames unexpectedly identical")
	}
}

func TestEncodeStereo(t *testing.T) {
	cfg := testConfig()
	cfg.Channels = 2

	enc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	left := sineInput(t, 440, cfg, 1)
	right := sineInput(t, 1000, cfg, 1)

	out, err := enc.Encode([][]float64{left, right})
	if err != nil {
		t.Fatal(err)
	}

	if len(out) < 2*bitstream.Overhead {
		t.Fatalf("stereo output %d bytes", len(out))
	}

	h, err := bitstream.ParseHeader(binary.BigEndian.Uint16(out))
	if err != nil {
		t.Fatal(err)
	}
	if !h.Stereo {
		t.Error("stereo bit missing")
	}

	// Mono EncodeFrame is refused on a stereo encoder.
	if _, err := enc.EncodeFrame(left); err == nil {
		t.Error("EncodeFrame on stereo encoder: expected error")
	}
	// Channel count must match.
	if _, err := enc.Encode([][]float64{left}); err == nil {
		t.Error("Encode with one channel: expected error")
	}
}

func TestEncodeShortInput(t *testing.T) {
	enc, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := enc.EncodeFrame(make([]float64, 10)); err == nil {
		t.Fatal("short input: expected error")
	}

	// The aborted frame leaves no state behind; a full frame still encodes.
	if _, err := enc.EncodeFrame(make([]float64, testConfig().FrameLength())); err != nil {
		t.Fatal(err)
	}
}

func TestRateSweepAcrossBitrates(t *testing.T) {
	cfg := frame.Config{
		SampleRate: 48000,
		Duration:   frame.Duration10ms,
		Channels:   1,
	}

	gen, err := signal.NewGenerator(float64(cfg.SampleRate), signal.WithSeed(31))
	if err != nil {
		t.Fatal(err)
	}
	pcm, err := gen.WhiteNoise(0.05, cfg.FrameLength())
	if err != nil {
		t.Fatal(err)
	}

	converged := 0
	for _, kbps := range frame.Bitrates {
		cfg.BitrateKbps = kbps

		enc, err := New(cfg)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := enc.EncodeFrame(pcm); err != nil {
			t.Fatalf("%d kbps: %v", kbps, err)
		}
		if enc.Stats().Converged {
			converged++
		}
		enc.Close()
	}

	if frac := float64(converged) / float64(len(frame.Bitrates)); frac < 0.95 {
		t.Errorf("converged at %d of %d bitrates (%.0f%%), want >= 95%%",
			converged, len(frame.Bitrates), frac*100)
	}
}

func TestWarningsOnMissedRate(t *testing.T) {
	cfg := testConfig()
	cfg.BitrateKbps = 320

	enc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// A silent frame cannot spend 3200 bits; rate control reports the
	// shortfall as a warning while the frame still encodes.
	out, err := enc.EncodeFrame(make([]float64, cfg.FrameLength()))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("no output")
	}

	stats := enc.Stats()
	if stats.Converged {
		t.Skip("rate control converged on silence; nothing to report")
	}
	if len(stats.Warnings) == 0 {
		t.Error("missed rate target produced no warning")
	}
}
