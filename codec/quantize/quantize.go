// Package quantize implements the quantizer and rate controller: per-band
// bit allocation, scale-factor selection, 12-bit index quantization and a
// bounded feedback loop that adjusts the global step until the estimated
// frame size meets the byte budget.
package quantize

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-codec/dsp/core"
	"github.com/cwbudde/algo-codec/dsp/psycho"
	"github.com/cwbudde/algo-codec/internal/fixed"
)

// State identifies the rate controller's position in its loop.
type State int

const (
	StateInit State = iota
	StateQuantize
	StateCountBits
	StateAdjust
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateQuantize:
		return "Quantize"
	case StateCountBits:
		return "CountBits"
	case StateAdjust:
		return "Adjust"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CostModel estimates the packed size of a frame of quantizer indices.
// scales carries the per-bin scale-factor exponents.
type CostModel interface {
	FrameBits(indices []int32, scales []int) (int, error)
}

// Band holds the per-band quantization decisions. Allocation is the
// importance model's advisory bit share for the band; the adaptive coder
// determines the actual spend.
type Band struct {
	Allocation int
	Scale      int
}

// Result is the outcome of one rate-control run. Converged false means the
// loop hit its iteration cap or exhausted the step table; the last computed
// state is still valid and usable.
type Result struct {
	Converged  bool
	Iterations int
	UsedBits   int
	StepIndex  int
	Bands      []Band
}

const defaultMaxIterations = 16

// Option configures a Quantizer.
type Option func(*Quantizer) error

// WithMaxIterations bounds the rate-control loop.
func WithMaxIterations(n int) Option {
	return func(q *Quantizer) error {
		if n <= 0 {
			return fmt.Errorf("quantize: max iterations must be > 0: %d", n)
		}
		q.maxIter = n
		return nil
	}
}

// WithTolerance fixes the convergence tolerance in bits. Without it the
// tolerance is derived per frame from the target and the coefficient count.
func WithTolerance(bits int) Option {
	return func(q *Quantizer) error {
		if bits < 0 {
			return fmt.Errorf("quantize: tolerance must be >= 0: %d", bits)
		}
		q.tolerance = bits
		q.fixedTol = true
		return nil
	}
}

// Quantizer runs the quantize/count/adjust state machine over one frame of
// transform coefficients.
type Quantizer struct {
	nCoeffs int
	nBands  int
	barkMap []int
	steps   []float64
	cost    CostModel

	maxIter   int
	tolerance int
	fixedTol  bool

	scales    []int
	binScales []int
	maxAbs    []float64
	imp       []float64

	state      State
	coeffs     []float64
	bands      []psycho.Band
	indices    []int32
	targetBits int
	frameTol   int

	lo, hi     int
	stepIdx    int
	iterations int
	usedBits   int
	bestIdx    int
	bestUsed   int
	bestSet    bool
	finalizing bool
	converged  bool
	outBands   []Band
}

// New creates a Quantizer. barkMap maps each coefficient bin to a band and
// steps is the global step table in ascending order.
func New(nCoeffs int, barkMap []int, steps []float64, cost CostModel, opts ...Option) (*Quantizer, error) {
	if nCoeffs <= 0 {
		return nil, fmt.Errorf("quantize: coefficient count must be > 0: %d", nCoeffs)
	}

	if len(barkMap) != nCoeffs {
		return nil, fmt.Errorf("quantize: bark map length %d, want %d", len(barkMap), nCoeffs)
	}

	if len(steps) == 0 {
		return nil, fmt.Errorf("quantize: step table is empty")
	}

	for i := 1; i < len(steps); i++ {
		if steps[i] <= steps[i-1] {
			return nil, fmt.Errorf("quantize: step table not ascending at %d", i)
		}
	}

	if cost == nil {
		return nil, fmt.Errorf("quantize: cost model is nil")
	}

	nBands := 0
	for k, b := range barkMap {
		if b < 0 {
			return nil, fmt.Errorf("quantize: bark map bin %d references band %d", k, b)
		}
		if b >= nBands {
			nBands = b + 1
		}
	}

	q := &Quantizer{
		nCoeffs:   nCoeffs,
		nBands:    nBands,
		barkMap:   barkMap,
		steps:     steps,
		cost:      cost,
		maxIter:   defaultMaxIterations,
		scales:    make([]int, nBands),
		binScales: make([]int, nCoeffs),
		maxAbs:    make([]float64, nBands),
		state:     StateInit,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(q); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// BandCount returns the number of perceptual bands.
func (q *Quantizer) BandCount() int {
	return q.nBands
}

// State returns the current loop state.
func (q *Quantizer) State() State {
	return q.state
}

// Reset aborts any frame in progress.
func (q *Quantizer) Reset() {
	q.state = StateInit
	q.coeffs = nil
	q.bands = nil
	q.indices = nil
	q.outBands = nil
}

// Begin admits a frame. indices receives the quantizer output; bands is the
// analyzer's per-band data; targetBits is the frame's bit budget.
func (q *Quantizer) Begin(indices []int32, coeffs []float64, bands []psycho.Band, targetBits int) error {
	if q.state != StateInit || q.coeffs != nil {
		return fmt.Errorf("quantize: Begin with frame in progress (state %s)", q.state)
	}

	if len(coeffs) != q.nCoeffs {
		return fmt.Errorf("quantize: coeffs length %d, want %d", len(coeffs), q.nCoeffs)
	}

	if len(indices) != q.nCoeffs {
		return fmt.Errorf("quantize: indices length %d, want %d", len(indices), q.nCoeffs)
	}

	if len(bands) != q.nBands {
		return fmt.Errorf("quantize: bands length %d, want %d", len(bands), q.nBands)
	}

	if targetBits <= 0 {
		return fmt.Errorf("quantize: target bits must be > 0: %d", targetBits)
	}

	q.coeffs = coeffs
	q.indices = indices
	q.bands = bands
	q.targetBits = targetBits

	q.frameTol = q.tolerance
	if !q.fixedTol {
		q.frameTol = deriveTolerance(targetBits, q.nCoeffs)
	}

	return nil
}

// Dequantize maps a quantizer index back to a coefficient value. It is the
// exact linear inverse of the quantization rule before clipping.
func Dequantize(index int32, step float64, scale int) float64 {
	return float64(index) * step * fixed.ScaleExp(1, scale)
}

// deriveTolerance picks a frame tolerance wide enough that the coder's bit
// granularity between adjacent steps cannot starve the search at low rates.
func deriveTolerance(targetBits, nCoeffs int) int {
	tol := targetBits / 16
	if floor := nCoeffs / 2; tol < floor {
		tol = floor
	}
	return tol
}

// Step advances the loop by one state and reports completion.
func (q *Quantizer) Step() (bool, error) {
	switch q.state {
	case StateInit:
		if q.coeffs == nil {
			return false, fmt.Errorf("quantize: Step before Begin")
		}
		q.initFrame()
		q.state = StateQuantize

	case StateQuantize:
		q.quantizePass()
		if q.finalizing {
			q.finish()
			return false, nil
		}
		q.state = StateCountBits

	case StateCountBits:
		used, err := q.cost.FrameBits(q.indices, q.binScales)
		if err != nil {
			q.state = StateInit
			return false, fmt.Errorf("quantize: cost model: %v", err)
		}
		q.usedBits = used
		q.iterations++
		q.state = StateAdjust

	case StateAdjust:
		if q.adjust() {
			q.state = StateQuantize
		}

	case StateDone:
		q.state = StateInit
		q.coeffs = nil
		q.bands = nil
		q.indices = nil
		return true, nil

	default:
		return false, fmt.Errorf("quantize: Step in state %s", q.state)
	}

	return false, nil
}

// Process runs a whole frame through the loop in one call.
func (q *Quantizer) Process(indices []int32, coeffs []float64, bands []psycho.Band, targetBits int) (Result, error) {
	if err := q.Begin(indices, coeffs, bands, targetBits); err != nil {
		return Result{}, err
	}

	for {
		done, err := q.Step()
		if err != nil {
			return Result{}, err
		}
		if done {
			return q.Result(), nil
		}
	}
}

// Result returns the outcome of the last completed frame.
func (q *Quantizer) Result() Result {
	return Result{
		Converged:  q.converged,
		Iterations: q.iterations,
		UsedBits:   q.bestUsed,
		StepIndex:  q.bestIdx,
		Bands:      q.outBands,
	}
}

func (q *Quantizer) initFrame() {
	q.iterations = 0
	q.usedBits = 0
	q.bestSet = false
	q.finalizing = false
	q.converged = false
	q.lo, q.hi = 0, len(q.steps)-1
	q.stepIdx = (q.lo + q.hi) / 2

	// Band maxima drive the scale factors on every pass.
	for b := range q.maxAbs {
		q.maxAbs[b] = 0
	}
	for k, c := range q.coeffs {
		if a := math.Abs(c); a > q.maxAbs[q.barkMap[k]] {
			q.maxAbs[q.barkMap[k]] = a
		}
	}

	// Initial allocation from importance, weighted by noise shaping.
	q.outBands = make([]Band, q.nBands)
	q.imp = core.EnsureLen(q.imp, q.nBands)
	total := 0.0
	for b, band := range q.bands {
		q.imp[b] = band.Weight * band.Envelope / (band.Threshold + 1)
		total += q.imp[b]
	}
	for b := range q.outBands {
		if total > 0 {
			q.outBands[b].Allocation = int(float64(q.targetBits) * q.imp[b] / total)
		} else {
			q.outBands[b].Allocation = q.targetBits / q.nBands
		}
	}
}

// quantizePass quantizes the frame at the current step index, choosing each
// band's scale factor so its maximum fits the 12-bit index range.
func (q *Quantizer) quantizePass() {
	step := q.steps[q.stepIdx]

	for b := range q.scales {
		q.scales[b] = fixed.ExpFor(q.maxAbs[b]/step, float64(fixed.Index12Max))
		q.outBands[b].Scale = q.scales[b]
	}

	for k, c := range q.coeffs {
		s := q.scales[q.barkMap[k]]
		q.binScales[k] = s
		div := step * fixed.ScaleExp(1, s)
		q.indices[k], _ = fixed.Sat(c/div, fixed.Index12Min, fixed.Index12Max)
	}
}

// adjust narrows the binary search over the step table. It returns true when
// another quantize pass is needed and false once the loop has finished.
func (q *Quantizer) adjust() bool {
	diff := q.usedBits - q.targetBits
	if diff <= q.frameTol && diff >= -q.frameTol {
		q.bestIdx, q.bestUsed, q.bestSet = q.stepIdx, q.usedBits, true
		q.converged = true
		q.finish()
		return false
	}

	if !q.bestSet || better(q.usedBits, q.bestUsed, q.targetBits) {
		q.bestIdx, q.bestUsed, q.bestSet = q.stepIdx, q.usedBits, true
	}

	if diff > 0 {
		q.lo = q.stepIdx + 1
	} else {
		q.hi = q.stepIdx - 1
	}

	if q.lo > q.hi || q.iterations >= q.maxIter {
		q.finish()
		return false
	}

	q.stepIdx = (q.lo + q.hi) / 2
	return true
}

// better reports whether used lands closer to target than best, never
// preferring an over-budget count to an in-budget one.
func better(used, best, target int) bool {
	if (used > target) != (best > target) {
		return used <= target
	}
	du, db := used-target, best-target
	if du < 0 {
		du = -du
	}
	if db < 0 {
		db = -db
	}
	return du < db
}

// finish reruns the quantize pass at the accepted step index if the search
// ended elsewhere, then parks the loop in Done.
func (q *Quantizer) finish() {
	if !q.finalizing && q.bestIdx != q.stepIdx {
		q.stepIdx = q.bestIdx
		q.finalizing = true
		q.state = StateQuantize
		return
	}

	q.finalizing = false
	q.state = StateDone
}
