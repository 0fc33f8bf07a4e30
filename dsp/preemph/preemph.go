// Package preemph implements the time-domain preprocessing stage: input
// collection, first-order pre-emphasis and analysis windowing, performed
// in place on the frame's scratch slot.
package preemph

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-codec/dsp/window"
)

// State identifies the stage's position in its frame cycle.
type State int

const (
	StateIdle State = iota
	StateCollect
	StatePreEmphasis
	StateWindow
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCollect:
		return "Collect"
	case StatePreEmphasis:
		return "PreEmphasis"
	case StateWindow:
		return "Window"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const defaultAlpha = 0.9375 // 15/16, exact in fixed point

// Option configures a Processor.
type Option func(*Processor) error

// WithAlpha sets the pre-emphasis coefficient in y[n] = x[n] - alpha*x[n-1].
func WithAlpha(alpha float64) Option {
	return func(p *Processor) error {
		if alpha < 0 || alpha >= 1 || math.IsNaN(alpha) {
			return fmt.Errorf("preemph: alpha must be in [0, 1): %f", alpha)
		}
		p.alpha = alpha
		return nil
	}
}

// WithWindow sets the analysis window coefficients. The length must match
// the frame length. A nil window disables windowing.
func WithWindow(coeffs []float64) Option {
	return func(p *Processor) error {
		if coeffs != nil && len(coeffs) != p.frameLen {
			return fmt.Errorf("preemph: window length %d does not match frame length %d",
				len(coeffs), p.frameLen)
		}
		p.win = coeffs
		return nil
	}
}

// WithInputScale multiplies collected samples by scale, bridging float
// PCM in [-1, 1] into the fixed-point level convention of the transform.
func WithInputScale(scale float64) Option {
	return func(p *Processor) error {
		if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
			return fmt.Errorf("preemph: input scale must be > 0 and finite: %f", scale)
		}
		p.scale = scale
		return nil
	}
}

// Processor runs the preprocessing state machine over one frame at a time.
// The previous frame's final raw sample is carried so pre-emphasis is
// continuous across frame boundaries.
type Processor struct {
	frameLen int
	alpha    float64
	scale    float64
	win      []float64

	state State
	carry float64
	src   []float64
	buf   []float64
}

// New creates a Processor for the given frame length.
func New(frameLen int, opts ...Option) (*Processor, error) {
	if frameLen <= 0 {
		return nil, fmt.Errorf("preemph: frame length must be > 0: %d", frameLen)
	}

	p := &Processor{
		frameLen: frameLen,
		alpha:    defaultAlpha,
		scale:    1,
		state:    StateIdle,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// State returns the current stage state.
func (p *Processor) State() State {
	return p.state
}

// FrameLength returns the configured frame length.
func (p *Processor) FrameLength() int {
	return p.frameLen
}

// Reset aborts any frame in progress and clears the cross-frame carry.
func (p *Processor) Reset() {
	p.state = StateIdle
	p.carry = 0
	p.src = nil
	p.buf = nil
}

// Begin admits a new frame. A source shorter than the frame length is a
// truncated input: it is reported, not retried, and the caller must supply
// a complete frame. dst receives the processed samples in place.
func (p *Processor) Begin(dst, src []float64) error {
	if p.state != StateIdle {
		return fmt.Errorf("preemph: Begin in state %s", p.state)
	}

	if len(src) < p.frameLen {
		return fmt.Errorf("%w: have %d of %d samples", ErrTruncatedFrame, len(src), p.frameLen)
	}

	if len(dst) != p.frameLen {
		return fmt.Errorf("preemph: dst length %d, want %d", len(dst), p.frameLen)
	}

	p.src = src[:p.frameLen]
	p.buf = dst
	p.state = StateCollect

	return nil
}

// Step advances the state machine by one state and reports completion.
// After the final step the stage auto-returns to Idle.
func (p *Processor) Step() (bool, error) {
	switch p.state {
	case StateCollect:
		for i, v := range p.src {
			p.buf[i] = v * p.scale
		}
		p.state = StatePreEmphasis

	case StatePreEmphasis:
		prev := p.carry
		for i := range p.buf {
			raw := p.buf[i]
			p.buf[i] = raw - p.alpha*prev
			prev = raw
		}
		p.carry = prev
		p.state = StateWindow

	case StateWindow:
		if p.win != nil {
			if err := window.ApplyCoefficientsInPlace(p.buf, p.win); err != nil {
				return false, fmt.Errorf("preemph: %w", err)
			}
		}
		p.state = StateDone

	case StateDone:
		p.state = StateIdle
		p.src = nil
		p.buf = nil
		return true, nil

	default:
		return false, fmt.Errorf("preemph: Step in state %s", p.state)
	}

	return false, nil
}

// Process runs a whole frame through the stage in one call.
func (p *Processor) Process(dst, src []float64) error {
	if err := p.Begin(dst, src); err != nil {
		return err
	}

	for {
		done, err := p.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
