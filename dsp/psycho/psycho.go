// Package psycho implements the spectral analysis stage: power spectrum of
// the transform coefficients, perceptual band energies, a smoothed spectral
// envelope, per-band masking thresholds and noise-shaping weights.
package psycho

import (
	"fmt"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-codec/dsp/core"
)

// State identifies the stage's position in its frame cycle.
type State int

const (
	StateIdle State = iota
	StateInputCollect
	StatePowerCalc
	StateBarkMapping
	StateEnvelopeEstimate
	StateMaskingCalc
	StateOutputGen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInputCollect:
		return "InputCollect"
	case StatePowerCalc:
		return "PowerCalc"
	case StateBarkMapping:
		return "BarkMapping"
	case StateEnvelopeEstimate:
		return "EnvelopeEstimate"
	case StateMaskingCalc:
		return "MaskingCalc"
	case StateOutputGen:
		return "OutputGen"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Band describes one perceptual band after analysis.
type Band struct {
	Energy    float64
	Envelope  float64
	Threshold float64
	Weight    float64
}

const (
	defaultSmoothing = 0.7
	defaultMinWeight = 0.25
	defaultMaxWeight = 1.0
	defaultLoRatio   = 1.0
	defaultHiRatio   = 4.0

	// thresholdBias keeps the envelope/threshold ratio finite on silent bands.
	thresholdBias = 1.0
)

// Option configures an Analyzer.
type Option func(*Analyzer) error

// WithSmoothing sets the envelope smoothing constant in
// env = alpha*energy + (1-alpha)*env_prev.
func WithSmoothing(alpha float64) Option {
	return func(a *Analyzer) error {
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("psycho: smoothing alpha must be in (0, 1]: %f", alpha)
		}
		a.alpha = alpha
		return nil
	}
}

// WithWeightRange sets the minimum and maximum noise-shaping weights.
func WithWeightRange(min, max float64) Option {
	return func(a *Analyzer) error {
		if min <= 0 || min >= max {
			return fmt.Errorf("psycho: weight range [%f, %f] invalid", min, max)
		}
		a.minWeight, a.maxWeight = min, max
		return nil
	}
}

// WithTierRatios sets the envelope/threshold ratios separating the three
// noise-shaping tiers. Above hi the weight saturates at the maximum; between
// lo and hi it interpolates linearly; below lo it stays at the minimum.
func WithTierRatios(lo, hi float64) Option {
	return func(a *Analyzer) error {
		if lo <= 0 || lo >= hi {
			return fmt.Errorf("psycho: tier ratios [%f, %f] invalid", lo, hi)
		}
		a.loRatio, a.hiRatio = lo, hi
		return nil
	}
}

// Analyzer runs the spectral analysis state machine. The smoothed envelope
// persists across frames per instance, so one Analyzer serves one channel.
type Analyzer struct {
	nBins  int
	nBands int

	barkMap []int
	masking []float64

	alpha     float64
	minWeight float64
	maxWeight float64
	loRatio   float64
	hiRatio   float64

	env []float64

	state  State
	coeffs []float64
	power  []float64
	bands  []Band
}

// New creates an Analyzer. barkMap maps each of the nBins coefficient bins
// to a band; masking holds one coefficient per band.
func New(nBins int, barkMap []int, masking []float64, opts ...Option) (*Analyzer, error) {
	if nBins <= 0 {
		return nil, fmt.Errorf("psycho: bins must be > 0: %d", nBins)
	}

	if len(barkMap) != nBins {
		return nil, fmt.Errorf("psycho: bark map length %d, want %d", len(barkMap), nBins)
	}

	nBands := len(masking)
	if nBands <= 0 {
		return nil, fmt.Errorf("psycho: masking table is empty")
	}

	for k, b := range barkMap {
		if b < 0 || b >= nBands {
			return nil, fmt.Errorf("psycho: bark map bin %d references band %d of %d", k, b, nBands)
		}
	}

	a := &Analyzer{
		nBins:     nBins,
		nBands:    nBands,
		barkMap:   barkMap,
		masking:   masking,
		alpha:     defaultSmoothing,
		minWeight: defaultMinWeight,
		maxWeight: defaultMaxWeight,
		loRatio:   defaultLoRatio,
		hiRatio:   defaultHiRatio,
		env:       make([]float64, nBands),
		state:     StateIdle,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// BandCount returns the number of perceptual bands.
func (a *Analyzer) BandCount() int {
	return a.nBands
}

// State returns the current stage state.
func (a *Analyzer) State() State {
	return a.state
}

// Reset aborts any frame in progress and clears the envelope memory.
func (a *Analyzer) Reset() {
	a.state = StateIdle
	a.coeffs = nil
	a.power = nil
	a.bands = nil
	core.Zero(a.env)
}

// Begin admits a frame of transform coefficients. power is scratch for the
// power spectrum; bands receives the per-band results.
func (a *Analyzer) Begin(bands []Band, coeffs, power []float64) error {
	if a.state != StateIdle {
		return fmt.Errorf("psycho: Begin in state %s", a.state)
	}

	if len(coeffs) != a.nBins {
		return fmt.Errorf("psycho: coeffs length %d, want %d", len(coeffs), a.nBins)
	}

	if len(power) != a.nBins {
		return fmt.Errorf("psycho: power length %d, want %d", len(power), a.nBins)
	}

	if len(bands) != a.nBands {
		return fmt.Errorf("psycho: bands length %d, want %d", len(bands), a.nBands)
	}

	a.coeffs = coeffs
	a.power = power
	a.bands = bands
	a.state = StateInputCollect

	return nil
}

// Step advances the state machine by one state and reports completion.
func (a *Analyzer) Step() (bool, error) {
	switch a.state {
	case StateInputCollect:
		a.state = StatePowerCalc

	case StatePowerCalc:
		vecmath.MulBlock(a.power, a.coeffs, a.coeffs)
		a.state = StateBarkMapping

	case StateBarkMapping:
		for i := range a.bands {
			a.bands[i] = Band{}
		}
		for k, p := range a.power {
			a.bands[a.barkMap[k]].Energy += p
		}
		a.state = StateEnvelopeEstimate

	case StateEnvelopeEstimate:
		for b := range a.bands {
			e := a.alpha*a.bands[b].Energy + (1-a.alpha)*a.env[b]
			e = core.FlushDenormals(e)
			a.env[b] = e
			a.bands[b].Envelope = e
		}
		a.state = StateMaskingCalc

	case StateMaskingCalc:
		for b := range a.bands {
			a.bands[b].Threshold = a.bands[b].Envelope * a.masking[b]
		}
		a.state = StateOutputGen

	case StateOutputGen:
		for b := range a.bands {
			a.bands[b].Weight = a.weightFor(a.bands[b])
		}
		a.state = StateIdle
		a.coeffs = nil
		a.power = nil
		a.bands = nil
		return true, nil

	default:
		return false, fmt.Errorf("psycho: Step in state %s", a.state)
	}

	return false, nil
}

// Process runs a whole frame through the stage in one call.
func (a *Analyzer) Process(bands []Band, coeffs, power []float64) error {
	if err := a.Begin(bands, coeffs, power); err != nil {
		return err
	}

	for {
		done, err := a.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// weightFor maps a band's envelope/threshold ratio onto the three
// noise-shaping tiers.
func (a *Analyzer) weightFor(b Band) float64 {
	ratio := b.Envelope / (b.Threshold + thresholdBias)
	frac := (ratio - a.loRatio) / (a.hiRatio - a.loRatio)
	return core.Clamp(a.minWeight+(a.maxWeight-a.minWeight)*frac, a.minWeight, a.maxWeight)
}
