package fixed

import (
	"math"
	"testing"
)

func TestSat(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		lo, hi   int32
		want     int32
		overflow bool
	}{
		{"in range", 100.4, Index12Min, Index12Max, 100, false},
		{"rounds half away", 100.5, Index12Min, Index12Max, 101, false},
		{"negative round", -3.5, Index12Min, Index12Max, -4, false},
		{"clip high", 5000, Index12Min, Index12Max, 2047, true},
		{"clip low", -5000, Index12Min, Index12Max, -2048, true},
		{"at max", 2047, Index12Min, Index12Max, 2047, false},
		{"at min", -2048, Index12Min, Index12Max, -2048, false},
		{"coeff clip", 1e9, Coeff24Min, Coeff24Max, Coeff24Max, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ovf := Sat(tt.v, tt.lo, tt.hi)
			if got != tt.want || ovf != tt.overflow {
				t.Errorf("Sat(%v) = (%d, %v), want (%d, %v)", tt.v, got, ovf, tt.want, tt.overflow)
			}
		})
	}
}

func TestSatAdd32(t *testing.T) {
	if got, ovf := SatAdd32(1, 2); got != 3 || ovf {
		t.Errorf("SatAdd32(1,2) = (%d, %v)", got, ovf)
	}

	if got, ovf := SatAdd32(math.MaxInt32, 1); got != math.MaxInt32 || !ovf {
		t.Errorf("positive overflow = (%d, %v)", got, ovf)
	}

	if got, ovf := SatAdd32(math.MinInt32, -1); got != math.MinInt32 || !ovf {
		t.Errorf("negative overflow = (%d, %v)", got, ovf)
	}
}

func TestScaleExp(t *testing.T) {
	if got := ScaleExp(3, 4); got != 48 {
		t.Errorf("ScaleExp(3, 4) = %v, want 48", got)
	}

	if got := ScaleExp(48, -4); got != 3 {
		t.Errorf("ScaleExp(48, -4) = %v, want 3", got)
	}
}

func TestExpFor(t *testing.T) {
	tests := []struct {
		name   string
		maxAbs float64
		limit  float64
		want   int
	}{
		{"fits", 100, 2047, 0},
		{"zero", 0, 2047, 0},
		{"one shift", 4000, 2047, 1},
		{"several shifts", 100000, 2047, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpFor(tt.maxAbs, tt.limit)
			if got != tt.want {
				t.Errorf("ExpFor(%v, %v) = %d, want %d", tt.maxAbs, tt.limit, got, tt.want)
			}

			// The chosen exponent must actually bring the value in range.
			if tt.maxAbs > 0 && ScaleExp(tt.maxAbs, -got) > tt.limit {
				t.Errorf("exponent %d does not fit %v under %v", got, tt.maxAbs, tt.limit)
			}
		})
	}
}
