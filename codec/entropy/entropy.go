// Package entropy implements the adaptive arithmetic coding stage:
// symbolization of quantizer indices into zero-run and magnitude/sign
// symbols, a context-sensitive adaptive frequency model and a 32-bit
// arithmetic coder.
package entropy

import "fmt"

const (
	// escapeSymbol marks magnitudes too large for the main alphabet;
	// the remainder follows as escapeBits raw uniform bits.
	escapeSymbol = 255
	escapeBits   = 11

	// runContinue is the zero-run cap; a run symbol at the cap means the
	// run continues with another symbol.
	runContinue = 255
)

// State identifies the encoder's position in its frame cycle.
type State int

const (
	StateIdle State = iota
	StateCoeffCollect
	StateSymbolAnalysis
	StateContextModel
	StateArithmeticCode
	StateBitOutput
	StateFrameFinish
	StateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCoeffCollect:
		return "CoeffCollect"
	case StateSymbolAnalysis:
		return "SymbolAnalysis"
	case StateContextModel:
		return "ContextModel"
	case StateArithmeticCode:
		return "ArithmeticCode"
	case StateBitOutput:
		return "BitOutput"
	case StateFrameFinish:
		return "FrameFinish"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Symbol is one unit of the symbolized frame: either a zero run covering
// Run consecutive bins or a magnitude/sign pair covering one bin.
type Symbol struct {
	Bin     int
	ZeroRun bool
	Run     int
	Mag     int32
	Neg     bool
}

// Symbolize collapses runs of zero indices into zero-run symbols and maps
// each nonzero index to a magnitude/sign symbol.
func Symbolize(indices []int32) []Symbol {
	var syms []Symbol

	for k := 0; k < len(indices); {
		if indices[k] == 0 {
			run := 1
			for k+run < len(indices) && indices[k+run] == 0 {
				run++
			}
			syms = append(syms, Symbol{Bin: k, ZeroRun: true, Run: run})
			k += run
			continue
		}

		mag, neg := indices[k], false
		if mag < 0 {
			mag, neg = -mag, true
		}
		syms = append(syms, Symbol{Bin: k, Mag: mag, Neg: neg})
		k++
	}

	return syms
}

// prevAt returns the two coefficients preceding bin k, zero at the frame
// boundary.
func prevAt(indices []int32, k int) (p1, p2 int32) {
	if k >= 1 {
		p1 = indices[k-1]
	}
	if k >= 2 {
		p2 = indices[k-2]
	}
	return p1, p2
}

// contexts computes each symbol's context bucket and adaptation increment
// from the coefficients preceding its first bin.
func contexts(indices []int32, scales []int, syms []Symbol) (ctxs, incs []int) {
	ctxs = make([]int, len(syms))
	incs = make([]int, len(syms))

	for i, s := range syms {
		p1, p2 := prevAt(indices, s.Bin)
		ctxs[i] = ContextOf(p1, p2, scales[s.Bin])
		incs[i] = adaptInc(p1, p2, scales[s.Bin])
	}

	return ctxs, incs
}

// encodeSym codes one symbol and adapts the model.
func encodeSym(c *Coder, m *Model, s Symbol, ctx, inc int) error {
	t := m.main[ctx]

	if s.ZeroRun {
		if err := c.Encode(t, 0); err != nil {
			return err
		}
		t.Update(0, inc)

		r := s.Run
		for {
			v := r
			if v > runContinue {
				v = runContinue
			}
			if err := c.Encode(m.run, v); err != nil {
				return err
			}
			m.run.Update(v, 1)
			r -= v
			if v < runContinue {
				return nil
			}
		}
	}

	if s.Mag < escapeSymbol {
		if err := c.Encode(t, int(s.Mag)); err != nil {
			return err
		}
		t.Update(int(s.Mag), inc)
	} else {
		if err := c.Encode(t, escapeSymbol); err != nil {
			return err
		}
		t.Update(escapeSymbol, inc)
		if err := c.EncodeDirect(uint32(s.Mag-escapeSymbol), escapeBits); err != nil {
			return err
		}
	}

	sign := 0
	if s.Neg {
		sign = 1
	}
	if err := c.Encode(m.sign, sign); err != nil {
		return err
	}
	m.sign.Update(sign, 1)

	return nil
}

// codeFrame codes every symbol, checking the bit budget after each one.
// budget 0 disables the check.
func codeFrame(c *Coder, m *Model, syms []Symbol, ctxs, incs []int, budget int) error {
	for i, s := range syms {
		if err := encodeSym(c, m, s, ctxs[i], incs[i]); err != nil {
			return err
		}
		if budget > 0 && c.BitsWritten() > budget {
			return fmt.Errorf("%w: %d bits after %d symbols, budget %d", ErrBudgetExceeded, c.BitsWritten(), i+1, budget)
		}
	}
	return nil
}

// Encoder runs the entropy coding state machine over one frame of
// quantizer indices. Its model persists across frames; Reset after an
// error aborts the frame but keeps the model.
type Encoder struct {
	model *Model

	state   State
	w       BitWriter
	coder   *Coder
	indices []int32
	scales  []int
	budget  int
	syms    []Symbol
	ctxs    []int
	incs    []int
	err     error
}

// NewEncoder returns an Encoder with a fresh model.
func NewEncoder() *Encoder {
	return &Encoder{model: NewModel(), state: StateIdle}
}

// Model exposes the adaptive model, primarily so callers can reset it
// between streams.
func (e *Encoder) Model() *Model {
	return e.model
}

// State returns the current encoder state.
func (e *Encoder) State() State {
	return e.state
}

// Err returns the error that moved the encoder into the Error state.
func (e *Encoder) Err() error {
	return e.err
}

// Reset aborts any frame in progress and leaves the Error state. The
// model is kept; a half-coded frame has already adapted it, so streams
// needing reproducibility should also reset the model.
func (e *Encoder) Reset() {
	e.state = StateIdle
	e.w = nil
	e.coder = nil
	e.indices = nil
	e.scales = nil
	e.syms = nil
	e.err = nil
}

// Begin admits one frame. scales carries the per-bin scale-factor
// exponents; budgetBits bounds the compressed size, 0 disables the bound.
func (e *Encoder) Begin(w BitWriter, indices []int32, scales []int, budgetBits int) error {
	if e.state != StateIdle {
		return fmt.Errorf("entropy: Begin in state %s", e.state)
	}

	if w == nil {
		return fmt.Errorf("entropy: bit writer is nil")
	}

	if len(scales) != len(indices) {
		return fmt.Errorf("entropy: scales length %d, want %d", len(scales), len(indices))
	}

	if budgetBits < 0 {
		return fmt.Errorf("entropy: budget must be >= 0: %d", budgetBits)
	}

	e.w = w
	e.indices = indices
	e.scales = scales
	e.budget = budgetBits
	e.state = StateCoeffCollect

	return nil
}

// Step advances the encoder by one state and reports completion. Coding
// failures move the encoder into the Error state; recovery is Reset.
func (e *Encoder) Step() (bool, error) {
	switch e.state {
	case StateCoeffCollect:
		e.coder = NewCoder(e.w)
		e.state = StateSymbolAnalysis

	case StateSymbolAnalysis:
		e.syms = Symbolize(e.indices)
		e.state = StateContextModel

	case StateContextModel:
		e.ctxs, e.incs = contexts(e.indices, e.scales, e.syms)
		e.state = StateArithmeticCode

	case StateArithmeticCode:
		if err := codeFrame(e.coder, e.model, e.syms, e.ctxs, e.incs, e.budget); err != nil {
			return false, e.fail(err)
		}
		e.state = StateBitOutput

	case StateBitOutput:
		if err := e.coder.Flush(); err != nil {
			return false, e.fail(err)
		}
		e.state = StateFrameFinish

	case StateFrameFinish:
		e.state = StateIdle
		e.w = nil
		e.coder = nil
		e.indices = nil
		e.scales = nil
		e.syms = nil
		return true, nil

	case StateError:
		return false, e.err

	default:
		return false, fmt.Errorf("entropy: Step in state %s", e.state)
	}

	return false, nil
}

func (e *Encoder) fail(err error) error {
	e.state = StateError
	e.err = err
	return err
}

// EncodeFrame runs a whole frame through the encoder in one call.
func (e *Encoder) EncodeFrame(w BitWriter, indices []int32, scales []int, budgetBits int) error {
	if err := e.Begin(w, indices, scales, budgetBits); err != nil {
		return err
	}

	for {
		done, err := e.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// bitCounter discards bits, keeping only their count.
type bitCounter struct {
	bits int
}

func (b *bitCounter) WriteBit(uint32) error {
	b.bits++
	return nil
}

// FrameBits estimates the compressed size of a frame against the current
// model without mutating it, including the flush. It satisfies the rate
// controller's cost model.
func (e *Encoder) FrameBits(indices []int32, scales []int) (int, error) {
	if len(scales) != len(indices) {
		return 0, fmt.Errorf("entropy: scales length %d, want %d", len(scales), len(indices))
	}

	syms := Symbolize(indices)
	ctxs, incs := contexts(indices, scales, syms)

	counter := &bitCounter{}
	c := NewCoder(counter)

	if err := codeFrame(c, e.model.Clone(), syms, ctxs, incs, 0); err != nil {
		return 0, err
	}
	if err := c.Flush(); err != nil {
		return 0, err
	}

	return counter.bits, nil
}

// DecodeIndices reconstructs a frame of quantizer indices from r, evolving
// m exactly as encoding did. scales must match the encoder's.
func DecodeIndices(r BitReader, m *Model, indices []int32, scales []int) error {
	if len(scales) != len(indices) {
		return fmt.Errorf("entropy: scales length %d, want %d", len(scales), len(indices))
	}

	d := NewDecoder(r)
	n := len(indices)

	for k := 0; k < n; {
		p1, p2 := prevAt(indices, k)
		ctx := ContextOf(p1, p2, scales[k])
		inc := adaptInc(p1, p2, scales[k])
		t := m.main[ctx]

		sym, err := d.Decode(t)
		if err != nil {
			return err
		}
		t.Update(sym, inc)

		if sym == 0 {
			run := 0
			for {
				v, err := d.Decode(m.run)
				if err != nil {
					return err
				}
				m.run.Update(v, 1)
				run += v
				if v < runContinue {
					break
				}
			}
			if run < 1 || k+run > n {
				return fmt.Errorf("entropy: zero run of %d at bin %d overruns frame of %d", run, k, n)
			}
			for i := 0; i < run; i++ {
				indices[k] = 0
				k++
			}
			continue
		}

		mag := int32(sym)
		if sym == escapeSymbol {
			v, err := d.DecodeDirect(escapeBits)
			if err != nil {
				return err
			}
			mag = escapeSymbol + int32(v)
		}

		sign, err := d.Decode(m.sign)
		if err != nil {
			return err
		}
		m.sign.Update(sign, 1)

		if sign == 1 {
			mag = -mag
		}
		indices[k] = mag
		k++
	}

	return nil
}
