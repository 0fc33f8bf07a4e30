package tables

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-codec/codec/frame"
)

func testConfig() frame.Config {
	return frame.Config{SampleRate: 16000, Duration: frame.Duration10ms, BitrateKbps: 32, Channels: 1}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(frame.Config{SampleRate: 12345, Duration: frame.Duration10ms, BitrateKbps: 32, Channels: 1})
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestWindowLengths(t *testing.T) {
	l, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	if got := len(l.LongWindow()); got != 320 {
		t.Errorf("long window length = %d, want 320", got)
	}

	if got := len(l.AnalysisWindow()); got != 160 {
		t.Errorf("analysis window length = %d, want 160", got)
	}
}

func TestBarkMapShape(t *testing.T) {
	cfgs := []frame.Config{
		{SampleRate: 16000, Duration: frame.Duration10ms, BitrateKbps: 32, Channels: 1},
		{SampleRate: 16000, Duration: frame.Duration2_5ms, BitrateKbps: 32, Channels: 1},
		{SampleRate: 48000, Duration: frame.Duration10ms, BitrateKbps: 128, Channels: 1},
		{SampleRate: 8000, Duration: frame.Duration10ms, BitrateKbps: 16, Channels: 1},
	}

	for _, cfg := range cfgs {
		l, err := New(cfg)
		if err != nil {
			t.Fatalf("%+v: %v", cfg, err)
		}

		m := l.BarkMap()
		if len(m) != cfg.FrameLength() {
			t.Fatalf("map length = %d, want %d", len(m), cfg.FrameLength())
		}

		seen := make([]int, cfg.BandCount())
		prev := 0
		for k, b := range m {
			if b < prev {
				t.Fatalf("map not monotonic at bin %d: %d < %d", k, b, prev)
			}
			if b < 0 || b >= cfg.BandCount() {
				t.Fatalf("band %d out of range at bin %d", b, k)
			}
			seen[b]++
			prev = b
		}

		for b, count := range seen {
			if count == 0 {
				t.Fatalf("band %d received no bins (%+v)", b, cfg)
			}
		}
	}
}

func TestMaskingCoeffsDecreasing(t *testing.T) {
	l, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	prev := math.Inf(1)
	for b := 0; b < 64; b++ {
		c := l.MaskingCoeff(b)
		if c <= 0 || c >= 1 {
			t.Fatalf("masking coeff %d = %v, want in (0, 1)", b, c)
		}
		if c > prev {
			t.Fatalf("masking coeffs must not increase: band %d", b)
		}
		prev = c
	}
}

func TestQuantStepGrid(t *testing.T) {
	l, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	// Geometric grid: four steps per doubling.
	for i := 0; i+4 < StepCount; i++ {
		ratio := l.QuantStep(i+4) / l.QuantStep(i)
		if math.Abs(ratio-2) > 1e-12 {
			t.Fatalf("step ratio at %d = %v, want 2", i, ratio)
		}
	}

	if l.QuantStep(stepAnchor) != 0.5 {
		t.Errorf("anchor step = %v, want 0.5", l.QuantStep(stepAnchor))
	}

	// The grid reaches below the anchor for high-budget frames.
	if l.QuantStep(0) >= l.QuantStep(stepAnchor) {
		t.Errorf("finest step = %v, want below %v", l.QuantStep(0), l.QuantStep(stepAnchor))
	}
}

func TestFetch(t *testing.T) {
	l, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		table   TableID
		addr    int
		wantErr bool
	}{
		{"long window", TableWindowLong, 0, false},
		{"long window end", TableWindowLong, 319, false},
		{"long window past end", TableWindowLong, 320, true},
		{"analysis window", TableWindowAnalysis, 159, false},
		{"bark map", TableBarkMap, 80, false},
		{"bark map negative", TableBarkMap, -1, true},
		{"masking", TableMasking, 63, false},
		{"masking past end", TableMasking, 64, true},
		{"quant step", TableQuantStep, StepCount - 1, false},
		{"quant step past end", TableQuantStep, StepCount, true},
		{"unknown table", TableID(99), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Fetch(tt.table, tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Fetch(%d, %d) err = %v, wantErr %v", tt.table, tt.addr, err, tt.wantErr)
			}
		})
	}

	// Fetch must agree with the typed accessors.
	v, err := l.Fetch(TableBarkMap, 10)
	if err != nil {
		t.Fatal(err)
	}
	if int(v) != l.BarkBand(10) {
		t.Errorf("Fetch bark = %v, BarkBand = %d", v, l.BarkBand(10))
	}
}
