package preemph

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-codec/dsp/core"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		n    int
		opts []Option
	}{
		{"zero length", 0, nil},
		{"negative length", -4, nil},
		{"alpha too large", 160, []Option{WithAlpha(1)}},
		{"alpha negative", 160, []Option{WithAlpha(-0.1)}},
		{"alpha NaN", 160, []Option{WithAlpha(math.NaN())}},
		{"window mismatch", 160, []Option{WithWindow(make([]float64, 80))}},
		{"zero scale", 160, []Option{WithInputScale(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.n, tt.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := New(160, nil, WithAlpha(0.9)); err != nil {
		t.Errorf("nil option must be tolerated: %v", err)
	}
}

func TestStateSequence(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatal(err)
	}

	if p.State() != StateIdle {
		t.Fatalf("initial state = %s, want Idle", p.State())
	}

	dst := make([]float64, 4)
	if err := p.Begin(dst, []float64{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	want := []State{StatePreEmphasis, StateWindow, StateDone, StateIdle}
	for i, ws := range want {
		done, err := p.Step()
		if err != nil {
			t.Fatal(err)
		}
		if p.State() != ws {
			t.Fatalf("after step %d state = %s, want %s", i, p.State(), ws)
		}
		if done != (ws == StateIdle) {
			t.Fatalf("after step %d done = %v", i, done)
		}
	}
}

func TestPreEmphasisDifferenceEquation(t *testing.T) {
	const alpha = 0.5

	p, err := New(4, WithAlpha(alpha))
	if err != nil {
		t.Fatal(err)
	}

	src := []float64{1, 2, 3, 4}
	dst := make([]float64, 4)
	if err := p.Process(dst, src); err != nil {
		t.Fatal(err)
	}

	// y[n] = x[n] - alpha*x[n-1], x[-1] = 0 on the first frame.
	want := []float64{1, 1.5, 2, 2.5}
	for i := range want {
		if !core.NearlyEqual(dst[i], want[i], 1e-12) {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestCarryAcrossFrames(t *testing.T) {
	const alpha = 0.25

	p, err := New(2, WithAlpha(alpha))
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]float64, 2)
	if err := p.Process(dst, []float64{10, 20}); err != nil {
		t.Fatal(err)
	}

	// Second frame sees x[-1] = 20 from the first frame.
	if err := p.Process(dst, []float64{30, 40}); err != nil {
		t.Fatal(err)
	}

	want := []float64{30 - alpha*20, 40 - alpha*30}
	for i := range want {
		if !core.NearlyEqual(dst[i], want[i], 1e-12) {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}

	// Reset clears the carry.
	p.Reset()
	if err := p.Process(dst, []float64{8, 8}); err != nil {
		t.Fatal(err)
	}
	if dst[0] != 8 {
		t.Errorf("carry survived Reset: dst[0] = %v, want 8", dst[0])
	}
}

func TestWindowAndScale(t *testing.T) {
	win := []float64{0.5, 0.5, 0.5, 0.5}

	p, err := New(4, WithAlpha(0), WithWindow(win), WithInputScale(2))
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]float64, 4)
	if err := p.Process(dst, []float64{1, 1, 1, 1}); err != nil {
		t.Fatal(err)
	}

	for i, v := range dst {
		if v != 1 { // 1 * scale 2 * window 0.5
			t.Errorf("dst[%d] = %v, want 1", i, v)
		}
	}
}

func TestTruncatedInput(t *testing.T) {
	p, err := New(160)
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]float64, 160)
	err = p.Begin(dst, make([]float64, 100))
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("err = %v, want ErrTruncatedFrame", err)
	}

	// The stage must remain Idle and accept the resupplied frame.
	if p.State() != StateIdle {
		t.Fatalf("state after truncation = %s, want Idle", p.State())
	}

	if err := p.Process(dst, make([]float64, 160)); err != nil {
		t.Fatal(err)
	}
}

func TestBeginErrors(t *testing.T) {
	p, _ := New(4)
	dst := make([]float64, 4)

	if err := p.Begin(dst[:2], make([]float64, 4)); err == nil {
		t.Error("expected error for short dst")
	}

	if err := p.Begin(dst, make([]float64, 4)); err != nil {
		t.Fatal(err)
	}

	if err := p.Begin(dst, make([]float64, 4)); err == nil {
		t.Error("expected error for Begin while busy")
	}

	if _, err := New(4); err != nil {
		t.Fatal(err)
	}
}

func TestStepInIdleFails(t *testing.T) {
	p, _ := New(4)
	if _, err := p.Step(); err == nil {
		t.Error("expected error for Step in Idle")
	}
}
