package core

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name            string
		value, min, max float64
		want            float64
	}{
		{"inside", 0.5, 0, 1, 0.5},
		{"below", -2, 0, 1, 0},
		{"above", 3, 0, 1, 1},
		{"swapped bounds", 0.5, 1, 0, 0.5},
		{"at min", 0, 0, 1, 0},
		{"at max", 1, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.value, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestNearlyEqual(t *testing.T) {
	if !NearlyEqual(1.0, 1.0+1e-13, 1e-12) {
		t.Error("values within eps should be nearly equal")
	}

	if NearlyEqual(1.0, 1.1, 1e-12) {
		t.Error("distinct values should not be nearly equal")
	}

	if !NearlyEqual(0, 0, 0) {
		t.Error("zero eps falls back to default epsilon")
	}
}

func TestFlushDenormals(t *testing.T) {
	if got := FlushDenormals(1e-40); got != 0 {
		t.Errorf("FlushDenormals(1e-40) = %v, want 0", got)
	}

	if got := FlushDenormals(0.5); got != 0.5 {
		t.Errorf("FlushDenormals(0.5) = %v, want 0.5", got)
	}
}

func TestPowerDBConversions(t *testing.T) {
	if got := LinearPowerToDB(100); !NearlyEqual(got, 20, 1e-9) {
		t.Errorf("LinearPowerToDB(100) = %v, want 20", got)
	}

	if got := DBPowerToLinear(20); !NearlyEqual(got, 100, 1e-9) {
		t.Errorf("DBPowerToLinear(20) = %v, want 100", got)
	}

	if got := LinearPowerToDB(0); !math.IsInf(got, -1) {
		t.Errorf("LinearPowerToDB(0) = %v, want -Inf", got)
	}

	if got := LinearPowerToDB(-1); !math.IsNaN(got) {
		t.Errorf("LinearPowerToDB(-1) = %v, want NaN", got)
	}
}

func TestEnsureLen(t *testing.T) {
	buf := make([]float64, 4, 16)

	got := EnsureLen(buf, 8)
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8", len(got))
	}

	if &got[0] != &buf[0] {
		t.Error("capacity should have been reused")
	}

	grown := EnsureLen(buf, 32)
	if len(grown) != 32 {
		t.Fatalf("len = %d, want 32", len(grown))
	}

	if got := EnsureLen(buf, 0); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestZeroAndCopy(t *testing.T) {
	buf := []float64{1, 2, 3}
	Zero(buf)
	for i, v := range buf {
		if v != 0 {
			t.Errorf("buf[%d] = %v, want 0", i, v)
		}
	}

	idx := []int32{4, 5}
	ZeroInt32(idx)
	if idx[0] != 0 || idx[1] != 0 {
		t.Errorf("ZeroInt32 left %v", idx)
	}

	dst := make([]float64, 2)
	n := CopyInto(dst, []float64{7, 8, 9})
	if n != 2 || dst[0] != 7 || dst[1] != 8 {
		t.Errorf("CopyInto copied %d into %v", n, dst)
	}
}
