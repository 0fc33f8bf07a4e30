// Package fixed provides saturating fixed-point helpers for the encoder
// datapath. Values wider than a stage's output format are clipped to the
// format's min/max, never wrapped, and clipping is reported to the caller.
package fixed

import "math"

// Signed ranges of the datapath formats.
const (
	// Coeff24 is the transform output format.
	Coeff24Min int32 = -(1 << 23)
	Coeff24Max int32 = 1<<23 - 1

	// Index12 is the quantizer index format.
	Index12Min int32 = -2048
	Index12Max int32 = 2047
)

// Sat rounds v to the nearest integer and clips it to [lo, hi].
// The second return reports whether clipping occurred.
func Sat(v float64, lo, hi int32) (int32, bool) {
	r := math.Round(v)

	if r < float64(lo) {
		return lo, true
	}
	if r > float64(hi) {
		return hi, true
	}

	return int32(r), false
}

// SatAdd32 adds two int32 values, clipping to the int32 range.
func SatAdd32(a, b int32) (int32, bool) {
	s := int64(a) + int64(b)

	if s > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if s < math.MinInt32 {
		return math.MinInt32, true
	}

	return int32(s), false
}

// ScaleExp multiplies v by 2^exp. Scale factors are carried as explicit
// exponents so bit growth stays visible at each stage boundary.
func ScaleExp(v float64, exp int) float64 {
	return math.Ldexp(v, exp)
}

// ExpFor returns the smallest non-negative exponent e such that
// maxAbs / 2^e fits within limit. It is how per-band scale factors are
// chosen before quantization.
func ExpFor(maxAbs, limit float64) int {
	if limit <= 0 || maxAbs <= limit {
		return 0
	}

	e := int(math.Ceil(math.Log2(maxAbs / limit)))
	if e < 0 {
		e = 0
	}
	return e
}
