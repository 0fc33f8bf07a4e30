// Package pipeline assembles the six encoding stages into a frame encoder:
// arbitrated scratch regions, fixed-order stage sequencing and the public
// per-frame API.
package pipeline

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-codec/codec/bitstream"
	"github.com/cwbudde/algo-codec/codec/entropy"
	"github.com/cwbudde/algo-codec/codec/frame"
	"github.com/cwbudde/algo-codec/codec/quantize"
	"github.com/cwbudde/algo-codec/codec/tables"
	"github.com/cwbudde/algo-codec/dsp/mdct"
	"github.com/cwbudde/algo-codec/dsp/preemph"
	"github.com/cwbudde/algo-codec/dsp/psycho"
)

// defaultInputScale maps unit-range PCM onto the Q15 integer range the
// datapath is calibrated for.
const defaultInputScale = 32768

// FrameStats reports quality conditions of the last encoded frame.
// Warnings carry non-fatal conditions; the frame output is still valid.
type FrameStats struct {
	Converged  bool
	Iterations int
	UsedBits   int
	TargetBits int
	Overflow   bool
	Warnings   []string
}

// Option configures an Encoder.
type Option func(*Encoder) error

// WithInputScale overrides the PCM input scale.
func WithInputScale(scale float64) Option {
	return func(e *Encoder) error {
		if scale <= 0 {
			return fmt.Errorf("pipeline: input scale must be > 0: %f", scale)
		}
		e.scale = scale
		return nil
	}
}

// WithPreEmphasis overrides the pre-emphasis coefficient.
func WithPreEmphasis(alpha float64) Option {
	return func(e *Encoder) error {
		if alpha < 0 || alpha >= 1 {
			return fmt.Errorf("pipeline: pre-emphasis alpha must be in [0, 1): %f", alpha)
		}
		e.alpha = alpha
		e.alphaSet = true
		return nil
	}
}

// WithSmoothing overrides the spectral envelope smoothing constant.
func WithSmoothing(alpha float64) Option {
	return func(e *Encoder) error {
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("pipeline: smoothing alpha must be in (0, 1]: %f", alpha)
		}
		e.smoothing = alpha
		e.smoothSet = true
		return nil
	}
}

// channel bundles one audio channel's stage instances and scratch state.
// Frequency tables, the spectral envelope, the pre-emphasis carry and the
// transform history all persist across frames within the channel.
type channel struct {
	cfg frame.Config
	arb *Arbiter

	pre  *preemph.Processor
	tr   *mdct.Transform
	an   *psycho.Analyzer
	qu   *quantize.Quantizer
	ent  *entropy.Encoder
	pack *bitstream.Packer

	bands     []psycho.Band
	binScales []int
	barkMap   []int
}

// Encoder is the public frame encoder. It is not safe for concurrent use;
// stereo channels are encoded concurrently internally.
type Encoder struct {
	cfg   frame.Config
	chans []*channel
	stats FrameStats

	scale     float64
	alpha     float64
	alphaSet  bool
	smoothing float64
	smoothSet bool
}

// New creates an Encoder. An invalid configuration is rejected here,
// before any frame is admitted.
func New(cfg frame.Config, opts ...Option) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Encoder{cfg: cfg, scale: defaultInputScale}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	lk, err := tables.New(cfg)
	if err != nil {
		return nil, err
	}

	for i := 0; i < cfg.Channels; i++ {
		ch, err := e.newChannel(lk)
		if err != nil {
			return nil, err
		}
		e.chans = append(e.chans, ch)
	}

	return e, nil
}

func (e *Encoder) newChannel(lk *tables.Lookup) (*channel, error) {
	cfg := e.cfg
	n := cfg.FrameLength()
	bands := cfg.BandCount()

	arb, err := NewArbiter(cfg)
	if err != nil {
		return nil, err
	}

	preOpts := []preemph.Option{
		preemph.WithWindow(lk.AnalysisWindow()),
		preemph.WithInputScale(e.scale),
	}
	if e.alphaSet {
		preOpts = append(preOpts, preemph.WithAlpha(e.alpha))
	}
	pre, err := preemph.New(n, preOpts...)
	if err != nil {
		return nil, err
	}

	tr, err := mdct.New(n, mdct.WithWindow(lk.LongWindow()))
	if err != nil {
		return nil, err
	}

	masking := make([]float64, bands)
	for b := range masking {
		masking[b] = lk.MaskingCoeff(b)
	}

	var anOpts []psycho.Option
	if e.smoothSet {
		anOpts = append(anOpts, psycho.WithSmoothing(e.smoothing))
	}
	an, err := psycho.New(n, lk.BarkMap(), masking, anOpts...)
	if err != nil {
		return nil, err
	}

	ent := entropy.NewEncoder()

	steps := make([]float64, tables.StepCount)
	for i := range steps {
		steps[i] = lk.QuantStep(i)
	}
	qu, err := quantize.New(n, lk.BarkMap(), steps, ent)
	if err != nil {
		return nil, err
	}

	pack, err := bitstream.NewPacker(cfg.MaxFrameBytes())
	if err != nil {
		return nil, err
	}

	return &channel{
		cfg:       cfg,
		arb:       arb,
		pre:       pre,
		tr:        tr,
		an:        an,
		qu:        qu,
		ent:       ent,
		pack:      pack,
		bands:     make([]psycho.Band, bands),
		binScales: make([]int, n),
		barkMap:   lk.BarkMap(),
	}, nil
}

// Config returns the encoder's configuration.
func (e *Encoder) Config() frame.Config {
	return e.cfg
}

// Stats returns the statistics of the last encoded frame. For stereo they
// aggregate both channels.
func (e *Encoder) Stats() FrameStats {
	return e.stats
}

// Reset aborts all stages back to Idle and discards every piece of
// cross-frame state: pre-emphasis carry, transform history, spectral
// envelope and frequency tables. The next frame encodes as the first.
func (e *Encoder) Reset() {
	for _, ch := range e.chans {
		ch.pre.Reset()
		ch.tr.Reset()
		ch.an.Reset()
		ch.qu.Reset()
		ch.ent.Reset()
		ch.ent.Model().Reset()
		ch.pack.Reset()
		ch.arb.Reset()
	}
	e.stats = FrameStats{}
}

// Close releases each channel's scratch regions back to the shared pool.
// The encoder must not be used after Close.
func (e *Encoder) Close() {
	for _, ch := range e.chans {
		ch.arb.Close()
	}
}

// EncodeFrame encodes one mono frame of PCM samples in unit range.
func (e *Encoder) EncodeFrame(pcm []float64) ([]byte, error) {
	if e.cfg.Channels != 1 {
		return nil, fmt.Errorf("pipeline: EncodeFrame on %d-channel encoder, use Encode", e.cfg.Channels)
	}

	out, stats, err := e.chans[0].encodeFrame(pcm)
	if err != nil {
		return nil, err
	}

	e.stats = stats
	return out, nil
}

// Encode encodes one frame per channel, channels running concurrently.
// The packed channel frames are concatenated, channel 0 first.
func (e *Encoder) Encode(pcm [][]float64) ([]byte, error) {
	if len(pcm) != e.cfg.Channels {
		return nil, fmt.Errorf("pipeline: %d channels of input, want %d", len(pcm), e.cfg.Channels)
	}

	outs := make([][]byte, len(e.chans))
	stats := make([]FrameStats, len(e.chans))

	var g errgroup.Group
	for i, ch := range e.chans {
		i, ch := i, ch
		g.Go(func() error {
			out, st, err := ch.encodeFrame(pcm[i])
			if err != nil {
				return fmt.Errorf("channel %d: %w", i, err)
			}
			outs[i] = out
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.stats = mergeStats(stats)

	var out []byte
	for _, o := range outs {
		out = append(out, o...)
	}
	return out, nil
}

func mergeStats(stats []FrameStats) FrameStats {
	merged := FrameStats{Converged: true}
	for i, st := range stats {
		merged.TargetBits += st.TargetBits
		merged.UsedBits += st.UsedBits
		merged.Converged = merged.Converged && st.Converged
		merged.Overflow = merged.Overflow || st.Overflow
		if st.Iterations > merged.Iterations {
			merged.Iterations = st.Iterations
		}
		for _, w := range st.Warnings {
			merged.Warnings = append(merged.Warnings, fmt.Sprintf("channel %d: %s", i, w))
		}
	}
	return merged
}

// acquire spins ticks until the arbiter grants the region. Ownership
// discipline inside encodeFrame guarantees the wait is finite.
func (c *channel) acquire(p Port, id RegionID) *Region {
	for {
		if r, ok := c.arb.Acquire(p, id); ok {
			return r
		}
		c.arb.Tick()
	}
}

// abort discards all in-flight frame state after a stage failure; nothing
// is emitted for the aborted frame.
func (c *channel) abort() {
	c.pre.Reset()
	c.tr.Reset()
	c.an.Reset()
	c.qu.Reset()
	c.ent.Reset()
	c.pack.Reset()
	c.arb.Reset()
}

// encodeFrame drives the six stages over one frame in fixed pipeline
// order. Each stage acquires its regions through the arbiter and releases
// them before the next stage runs.
func (c *channel) encodeFrame(pcm []float64) ([]byte, FrameStats, error) {
	stats := FrameStats{TargetBits: c.cfg.TargetBits()}

	if len(pcm) < c.cfg.FrameLength() {
		return nil, stats, fmt.Errorf("pipeline: %d samples, want %d", len(pcm), c.cfg.FrameLength())
	}

	// Preprocess: pre-emphasis and analysis window into the coefficient
	// region.
	coeff := c.acquire(PortPreprocess, RegionCoeff)
	if err := c.pre.Process(coeff.Samples(), pcm); err != nil {
		c.abort()
		return nil, stats, err
	}
	if err := c.arb.Release(PortPreprocess, coeff); err != nil {
		c.abort()
		return nil, stats, err
	}

	// Transform in place: the region's samples serve as both input and
	// output.
	coeff = c.acquire(PortTransform, RegionCoeff)
	if err := c.tr.Process(coeff.Samples(), coeff.Samples()); err != nil {
		c.abort()
		return nil, stats, err
	}
	stats.Overflow = c.tr.Overflowed()
	if stats.Overflow {
		stats.Warnings = append(stats.Warnings, "transform output clipped")
	}
	if err := c.arb.Release(PortTransform, coeff); err != nil {
		c.abort()
		return nil, stats, err
	}

	// Analyze: power spectrum, band energies, envelope, thresholds,
	// weights.
	coeff = c.acquire(PortAnalyze, RegionCoeff)
	power := c.acquire(PortAnalyze, RegionPower)
	env := c.acquire(PortAnalyze, RegionEnvelope)
	thr := c.acquire(PortAnalyze, RegionThreshold)
	if err := c.an.Process(c.bands, coeff.Samples(), power.Samples()); err != nil {
		c.abort()
		return nil, stats, err
	}
	for b, band := range c.bands {
		env.Samples()[b] = band.Envelope
		thr.Samples()[b] = band.Threshold
	}
	for _, r := range []*Region{power, env, thr} {
		if err := c.arb.Release(PortAnalyze, r); err != nil {
			c.abort()
			return nil, stats, err
		}
	}
	if err := c.arb.Release(PortAnalyze, coeff); err != nil {
		c.abort()
		return nil, stats, err
	}

	// Quantize with the rate-control loop; the entropy encoder's estimator
	// is the cost model.
	coeff = c.acquire(PortQuantize, RegionCoeff)
	sym := c.acquire(PortQuantize, RegionSymbol)
	res, err := c.qu.Process(sym.Indices(), coeff.Samples(), c.bands, stats.TargetBits)
	if err != nil {
		c.abort()
		return nil, stats, err
	}
	stats.Converged = res.Converged
	stats.Iterations = res.Iterations
	stats.UsedBits = res.UsedBits
	if !res.Converged {
		stats.Warnings = append(stats.Warnings,
			fmt.Sprintf("rate control missed target by %d bits", res.UsedBits-stats.TargetBits))
	}
	if err := c.arb.Release(PortQuantize, coeff); err != nil {
		c.abort()
		return nil, stats, err
	}
	if err := c.arb.Release(PortQuantize, sym); err != nil {
		c.abort()
		return nil, stats, err
	}

	for k := range c.binScales {
		c.binScales[k] = res.Bands[c.barkMap[k]].Scale
	}

	// Entropy-code the indices. A coding fault aborts the frame and
	// resets the stage for the next one.
	sym = c.acquire(PortEntropy, RegionSymbol)
	w := bitstream.NewWriter()
	budget := (c.cfg.MaxFrameBytes() - bitstream.Overhead) * 8
	if err := c.ent.EncodeFrame(w, sym.Indices(), c.binScales, budget); err != nil {
		c.abort()
		return nil, stats, err
	}
	if err := c.arb.Release(PortEntropy, sym); err != nil {
		c.abort()
		return nil, stats, err
	}

	// Pack: header, byte-aligned payload, CRC. An oversized frame is
	// discarded, never emitted malformed.
	header := bitstream.Header{
		FrameType:       bitstream.FrameTypeAudio,
		SampleRateIndex: c.cfg.SampleRateIndex(),
		DurationIndex:   c.cfg.DurationIndex(),
		BitrateIndex:    c.cfg.BitrateIndex(),
		Stereo:          c.cfg.Channels == 2,
		CRCPresent:      true,
	}

	outReg := c.acquire(PortPack, RegionOutput)
	packed, err := c.pack.Pack(header, w.Bytes())
	if err != nil {
		c.abort()
		return nil, stats, err
	}
	n := copy(outReg.Bytes(), packed)
	out := append([]byte(nil), outReg.Bytes()[:n]...)
	if err := c.arb.Release(PortPack, outReg); err != nil {
		c.abort()
		return nil, stats, err
	}

	return out, stats, nil
}

// IsFatal reports whether an encode error is a frame-capacity or region
// fault as opposed to a recoverable per-frame coding condition.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRegionBounds) || errors.Is(err, bitstream.ErrFrameTooLarge)
}
