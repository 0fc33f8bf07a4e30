// Package tables is the read-only coefficient lookup service for the
// encoding pipeline: window functions, the bin-to-band perceptual map,
// per-band masking coefficients and the quantization step table. Tables
// are generated once per configuration and are synchronously addressable
// with no backpressure.
package tables

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-codec/codec/frame"
	"github.com/cwbudde/algo-codec/dsp/core"
	"github.com/cwbudde/algo-codec/dsp/window"
)

// TableID identifies an addressable table.
type TableID int

const (
	// TableWindowLong is the 2N-point transform overlap window.
	TableWindowLong TableID = iota
	// TableWindowAnalysis is the N-point preprocessor window.
	TableWindowAnalysis
	// TableBarkMap maps coefficient bins to perceptual bands.
	TableBarkMap
	// TableMasking holds per-band masking coefficients.
	TableMasking
	// TableQuantStep holds the quantization step grid.
	TableQuantStep
)

// StepCount is the size of the quantization step table.
const StepCount = 96

// baseStep anchors the geometric step grid at stepAnchor; consecutive
// entries differ by a factor of 2^(1/4). The grid extends eight octaves
// below the anchor so the rate controller can quantize finer than the
// reference step when a large bit budget demands it.
const (
	baseStep   = 0.5
	stepAnchor = 32
)

// Lookup provides addressed read-only access to the generated tables.
type Lookup struct {
	longWin     []float64
	analysisWin []float64
	barkMap     []int
	masking     []float64
	steps       []float64
}

// New generates all tables for the given configuration.
func New(cfg frame.Config) (*Lookup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.FrameLength()
	bands := cfg.BandCount()

	longWin, err := window.Sine(2 * n)
	if err != nil {
		return nil, fmt.Errorf("tables: long window: %w", err)
	}

	analysisWin, err := window.Hann(n, window.WithPeriodic())
	if err != nil {
		return nil, fmt.Errorf("tables: analysis window: %w", err)
	}

	l := &Lookup{
		longWin:     longWin,
		analysisWin: analysisWin,
		barkMap:     barkMap(n, bands, cfg.SampleRate),
		masking:     maskingCoeffs(bands),
		steps:       stepTable(),
	}

	return l, nil
}

// LongWindow returns the 2N-point transform overlap window.
func (l *Lookup) LongWindow() []float64 {
	return l.longWin
}

// AnalysisWindow returns the N-point preprocessor window.
func (l *Lookup) AnalysisWindow() []float64 {
	return l.analysisWin
}

// BarkBand returns the perceptual band of coefficient bin.
func (l *Lookup) BarkBand(bin int) int {
	return l.barkMap[bin]
}

// BarkMap returns the full bin-to-band map.
func (l *Lookup) BarkMap() []int {
	return l.barkMap
}

// MaskingCoeff returns the masking coefficient for band.
func (l *Lookup) MaskingCoeff(band int) float64 {
	return l.masking[band]
}

// QuantStep returns the quantization step for step index i.
func (l *Lookup) QuantStep(i int) float64 {
	return l.steps[i]
}

// Fetch provides generic addressed access: fetch(table, address) -> value.
// An address outside the table's bounds is a caller bug, not a runtime
// condition, and is returned as an error.
func (l *Lookup) Fetch(table TableID, addr int) (float64, error) {
	switch table {
	case TableWindowLong:
		if addr < 0 || addr >= len(l.longWin) {
			return 0, addrError(table, addr, len(l.longWin))
		}
		return l.longWin[addr], nil
	case TableWindowAnalysis:
		if addr < 0 || addr >= len(l.analysisWin) {
			return 0, addrError(table, addr, len(l.analysisWin))
		}
		return l.analysisWin[addr], nil
	case TableBarkMap:
		if addr < 0 || addr >= len(l.barkMap) {
			return 0, addrError(table, addr, len(l.barkMap))
		}
		return float64(l.barkMap[addr]), nil
	case TableMasking:
		if addr < 0 || addr >= len(l.masking) {
			return 0, addrError(table, addr, len(l.masking))
		}
		return l.masking[addr], nil
	case TableQuantStep:
		if addr < 0 || addr >= len(l.steps) {
			return 0, addrError(table, addr, len(l.steps))
		}
		return l.steps[addr], nil
	default:
		return 0, fmt.Errorf("tables: unknown table id %d", int(table))
	}
}

func addrError(table TableID, addr, size int) error {
	return fmt.Errorf("tables: address %d out of bounds for table %d (size %d)", addr, int(table), size)
}

// bark evaluates the Zwicker critical-band rate approximation at f Hz.
func bark(f float64) float64 {
	return 13*math.Atan(0.00076*f) + 3.5*math.Atan((f/7500)*(f/7500))
}

// barkMap distributes n coefficient bins over the requested band count
// along the Bark scale. Band edges follow the warp where possible; a
// fix-up pass guarantees every band receives at least one bin (requires
// n >= bands, enforced by frame.Config validation).
func barkMap(n, bands, sampleRate int) []int {
	nyquist := float64(sampleRate) / 2
	barkMax := bark(nyquist)

	// edges[b] is the first bin of band b; edges[bands] == n.
	edges := make([]int, bands+1)
	for b := 1; b < bands; b++ {
		target := float64(b) / float64(bands) * barkMax
		k := 0
		for k < n {
			f := (float64(k) + 0.5) / float64(n) * nyquist
			if bark(f) >= target {
				break
			}
			k++
		}
		edges[b] = k
	}
	edges[bands] = n

	// Force strictly increasing edges so no band is empty.
	for b := 1; b <= bands; b++ {
		if edges[b] < edges[b-1]+1 {
			edges[b] = edges[b-1] + 1
		}
	}
	for b := bands - 1; b >= 1; b-- {
		if edges[b] > edges[b+1]-1 {
			edges[b] = edges[b+1] - 1
		}
	}

	m := make([]int, n)
	for b := 0; b < bands; b++ {
		for k := edges[b]; k < edges[b+1]; k++ {
			m[k] = b
		}
	}

	return m
}

// maskingCoeffs returns per-band masking coefficients: a 6 dB offset at the
// lowest band growing to 12 dB at the highest, expressed as linear power.
func maskingCoeffs(bands int) []float64 {
	out := make([]float64, bands)
	for b := range out {
		offsetDB := 6 + 6*float64(b)/float64(bands-1)
		out[b] = core.DBPowerToLinear(-offsetDB)
	}
	return out
}

// stepTable returns the geometric quantization step grid.
func stepTable() []float64 {
	out := make([]float64, StepCount)
	for i := range out {
		out[i] = baseStep * math.Exp2(float64(i-stepAnchor)/4)
	}
	return out
}
