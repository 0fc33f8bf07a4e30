// Package mdct implements the forward modified discrete cosine transform
// stage. The transform keeps one frame of history, windows the 2N-sample
// concatenation and emits N coefficients per N-sample input, saturated to
// the fixed-point coefficient range.
//
// Lengths whose doubled size is a power of two go through an FFT plan
// (pre/post twiddled 2N-point transform); all other lengths use a direct
// kernel with a precomputed cosine table.
package mdct

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-codec/dsp/window"
	"github.com/cwbudde/algo-codec/internal/fixed"
)

// State identifies the stage's position in its frame cycle.
type State int

const (
	StateIdle State = iota
	StateInputBuffer
	StatePreprocess
	StateTransform
	StatePostprocess
	StateOutput
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInputBuffer:
		return "InputBuffer"
	case StatePreprocess:
		return "Preprocess"
	case StateTransform:
		return "Transform"
	case StatePostprocess:
		return "Postprocess"
	case StateOutput:
		return "Output"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Transform.
type Option func(*Transform) error

// WithWindow sets the 2N-point overlap window. The default is the periodic
// sine window satisfying the 50% overlap identity.
func WithWindow(coeffs []float64) Option {
	return func(t *Transform) error {
		if len(coeffs) != 2*t.n {
			return fmt.Errorf("mdct: window length %d, want %d", len(coeffs), 2*t.n)
		}
		t.longWin = coeffs
		return nil
	}
}

// WithSaturation sets the output clipping range. Outputs beyond the range
// are clipped to it, never wrapped, and flag the frame as overflowed.
func WithSaturation(lo, hi int32) Option {
	return func(t *Transform) error {
		if lo >= hi {
			return fmt.Errorf("mdct: saturation range [%d, %d] is empty", lo, hi)
		}
		t.satLo, t.satHi = lo, hi
		return nil
	}
}

// WithDirectKernel forces the direct O(N^2) kernel even for lengths the
// FFT path supports. Used to cross-check the two paths.
func WithDirectKernel() Option {
	return func(t *Transform) error {
		t.forceDirect = true
		return nil
	}
}

// Transform computes the forward MDCT-IV of successive N-sample frames.
type Transform struct {
	n       int
	longWin []float64
	history []float64
	work    []float64
	norm    float64

	satLo, satHi int32
	forceDirect  bool

	// direct kernel
	cosTable []float64 // n * 2n, row k holds cos(theta*(t+n0)*(k+0.5))

	// FFT fast path
	plan   *algofft.Plan[complex128]
	pre    []complex128
	post   []complex128
	fftIn  []complex128
	fftOut []complex128

	state    State
	overflow bool
	dst      []float64
	src      []float64
}

// New creates a Transform of length n (coefficients per frame).
func New(n int, opts ...Option) (*Transform, error) {
	if n <= 0 || n%2 != 0 {
		return nil, fmt.Errorf("mdct: length must be positive and even: %d", n)
	}

	t := &Transform{
		n:       n,
		history: make([]float64, n),
		work:    make([]float64, 2*n),
		norm:    math.Sqrt(2 / float64(n)),
		satLo:   fixed.Coeff24Min,
		satHi:   fixed.Coeff24Max,
		state:   StateIdle,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	if t.longWin == nil {
		win, err := window.Sine(2 * n)
		if err != nil {
			return nil, fmt.Errorf("mdct: %w", err)
		}
		t.longWin = win
	}

	if !t.forceDirect && isPowerOfTwo(2*n) {
		if err := t.initFFT(); err != nil {
			return nil, err
		}
	} else {
		t.initDirect()
	}

	return t, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (t *Transform) initDirect() {
	n := t.n
	theta := math.Pi / float64(n)
	n0 := 0.5 + float64(n)/2

	t.cosTable = make([]float64, n*2*n)
	for k := 0; k < n; k++ {
		row := t.cosTable[k*2*n:]
		for i := 0; i < 2*n; i++ {
			row[i] = math.Cos(theta * (float64(i) + n0) * (float64(k) + 0.5))
		}
	}
}

func (t *Transform) initFFT() error {
	n := t.n

	plan, err := algofft.NewPlan64(2 * n)
	if err != nil {
		return fmt.Errorf("mdct: fft plan: %w", err)
	}
	t.plan = plan

	// Pre-twiddle z[i] = y[i]*e^{-i*pi*i/(2n)} turns the MDCT kernel into
	// a plain 2n-point DFT; the post-twiddle restores the half-bin offset.
	t.pre = make([]complex128, 2*n)
	for i := range t.pre {
		phi := -math.Pi * float64(i) / float64(2*n)
		t.pre[i] = complex(math.Cos(phi), math.Sin(phi))
	}

	theta := math.Pi / float64(n)
	n0 := 0.5 + float64(n)/2
	t.post = make([]complex128, n)
	for k := range t.post {
		phi := -theta * n0 * (float64(k) + 0.5)
		t.post[k] = complex(math.Cos(phi), math.Sin(phi))
	}

	t.fftIn = make([]complex128, 2*n)
	t.fftOut = make([]complex128, 2*n)

	return nil
}

// Len returns the transform length N.
func (t *Transform) Len() int {
	return t.n
}

// State returns the current stage state.
func (t *Transform) State() State {
	return t.state
}

// Overflowed reports whether the last completed frame clipped any output.
func (t *Transform) Overflowed() bool {
	return t.overflow
}

// Reset aborts any frame in progress and clears the overlap history.
func (t *Transform) Reset() {
	t.state = StateIdle
	t.overflow = false
	t.dst = nil
	t.src = nil
	for i := range t.history {
		t.history[i] = 0
	}
}

// Begin admits a new frame of exactly N samples.
func (t *Transform) Begin(dst, src []float64) error {
	if t.state != StateIdle {
		return fmt.Errorf("mdct: Begin in state %s", t.state)
	}

	if len(src) != t.n {
		return fmt.Errorf("mdct: src length %d, want %d", len(src), t.n)
	}

	if len(dst) != t.n {
		return fmt.Errorf("mdct: dst length %d, want %d", len(dst), t.n)
	}

	t.src = src
	t.dst = dst
	t.overflow = false
	t.state = StateInputBuffer

	return nil
}

// Step advances the state machine by one state and reports completion.
func (t *Transform) Step() (bool, error) {
	switch t.state {
	case StateInputBuffer:
		copy(t.work[:t.n], t.history)
		copy(t.work[t.n:], t.src)
		copy(t.history, t.src)
		t.state = StatePreprocess

	case StatePreprocess:
		if err := window.ApplyCoefficientsInPlace(t.work, t.longWin); err != nil {
			return false, fmt.Errorf("mdct: %w", err)
		}
		t.state = StateTransform

	case StateTransform:
		if t.plan != nil {
			if err := t.transformFFT(); err != nil {
				return false, err
			}
		} else {
			t.transformDirect()
		}
		t.state = StatePostprocess

	case StatePostprocess:
		for i, v := range t.dst {
			clipped, ovf := fixed.Sat(v, t.satLo, t.satHi)
			if ovf {
				t.overflow = true
			}
			t.dst[i] = float64(clipped)
		}
		t.state = StateOutput

	case StateOutput:
		t.state = StateIdle
		t.dst = nil
		t.src = nil
		return true, nil

	default:
		return false, fmt.Errorf("mdct: Step in state %s", t.state)
	}

	return false, nil
}

// Process runs a whole frame through the stage in one call.
func (t *Transform) Process(dst, src []float64) error {
	if err := t.Begin(dst, src); err != nil {
		return err
	}

	for {
		done, err := t.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (t *Transform) transformDirect() {
	n := t.n
	for k := 0; k < n; k++ {
		row := t.cosTable[k*2*n : (k+1)*2*n]
		sum := 0.0
		for i, w := range t.work {
			sum += w * row[i]
		}
		t.dst[k] = sum * t.norm
	}
}

func (t *Transform) transformFFT() error {
	for i, w := range t.work {
		t.fftIn[i] = t.pre[i] * complex(w, 0)
	}

	if err := t.plan.Forward(t.fftOut, t.fftIn); err != nil {
		return fmt.Errorf("mdct: fft forward: %w", err)
	}

	for k := 0; k < t.n; k++ {
		t.dst[k] = real(t.fftOut[k]*t.post[k]) * t.norm
	}

	return nil
}
