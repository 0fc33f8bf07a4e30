package pipeline

import (
	"fmt"

	"github.com/cwbudde/algo-codec/codec/frame"
	"github.com/cwbudde/algo-codec/dsp/buffer"
	"github.com/cwbudde/algo-codec/dsp/core"
)

// regionPool recycles sample-region buffers across encoder lifecycles.
var regionPool = buffer.NewPool()

// Port identifies a requester. Ports are numbered in pipeline order;
// the sequencer steps them upstream first, which is how upstream stages
// win region contention.
type Port int

const (
	PortPreprocess Port = iota
	PortTransform
	PortAnalyze
	PortQuantize
	PortEntropy
	PortPack
	numPorts
)

// String implements fmt.Stringer.
func (p Port) String() string {
	switch p {
	case PortPreprocess:
		return "Preprocess"
	case PortTransform:
		return "Transform"
	case PortAnalyze:
		return "Analyze"
	case PortQuantize:
		return "Quantize"
	case PortEntropy:
		return "Entropy"
	case PortPack:
		return "Pack"
	default:
		return fmt.Sprintf("Port(%d)", int(p))
	}
}

// RegionID names the shared scratch regions.
type RegionID int

const (
	RegionCoeff RegionID = iota
	RegionPower
	RegionEnvelope
	RegionThreshold
	RegionSymbol
	RegionOutput
	numRegions
)

// String implements fmt.Stringer.
func (id RegionID) String() string {
	switch id {
	case RegionCoeff:
		return "Coeff"
	case RegionPower:
		return "Power"
	case RegionEnvelope:
		return "Envelope"
	case RegionThreshold:
		return "Threshold"
	case RegionSymbol:
		return "Symbol"
	case RegionOutput:
		return "Output"
	default:
		return fmt.Sprintf("Region(%d)", int(id))
	}
}

// Region is an exclusively held scratch region handle. Sample regions carry
// float64 data, the symbol region int32 indices, the output region bytes.
type Region struct {
	id      RegionID
	samples []float64
	indices []int32
	bytes   []byte
	size    int
}

// ID returns the region's identity.
func (r *Region) ID() RegionID {
	return r.id
}

// Size returns the region's declared bound in elements.
func (r *Region) Size() int {
	return r.size
}

// Samples returns the float64 view of a sample region, nil otherwise.
func (r *Region) Samples() []float64 {
	return r.samples
}

// Indices returns the int32 view of the symbol region, nil otherwise.
func (r *Region) Indices() []int32 {
	return r.indices
}

// Bytes returns the byte view of the output region, nil otherwise.
func (r *Region) Bytes() []byte {
	return r.bytes
}

// Check validates an address against the region's bounds.
func (r *Region) Check(addr int) error {
	if addr < 0 || addr >= r.size {
		return fmt.Errorf("%w: %s address %d of %d", ErrRegionBounds, r.id, addr, r.size)
	}
	return nil
}

// ReadAt returns the sample at addr of a sample region.
func (r *Region) ReadAt(addr int) (float64, error) {
	if err := r.Check(addr); err != nil {
		return 0, err
	}
	if r.samples == nil {
		return 0, fmt.Errorf("%w: %s is not a sample region", ErrRegionBounds, r.id)
	}
	return r.samples[addr], nil
}

// WriteAt stores a sample at addr of a sample region.
func (r *Region) WriteAt(addr int, v float64) error {
	if err := r.Check(addr); err != nil {
		return err
	}
	if r.samples == nil {
		return fmt.Errorf("%w: %s is not a sample region", ErrRegionBounds, r.id)
	}
	r.samples[addr] = v
	return nil
}

// Arbiter mediates exclusive ownership of the scratch regions. A region is
// held by at most one port at a time, and at most one new grant is issued
// per tick; a denied requester retries on a later tick.
type Arbiter struct {
	regions [numRegions]*Region
	held    [numRegions]bool
	owner   [numRegions]Port
	granted bool

	bufs [numRegions]*buffer.Buffer
}

// NewArbiter sizes the regions for one channel of the given configuration.
func NewArbiter(cfg frame.Config) (*Arbiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.FrameLength()
	bands := cfg.BandCount()
	outBytes := cfg.MaxFrameBytes()

	a := &Arbiter{}

	sizes := map[RegionID]int{
		RegionCoeff:     n,
		RegionPower:     n,
		RegionEnvelope:  bands,
		RegionThreshold: bands,
	}
	for id, size := range sizes {
		b := regionPool.Get(size)
		a.bufs[id] = b
		a.regions[id] = &Region{id: id, samples: b.Samples(), size: size}
	}

	a.regions[RegionSymbol] = &Region{id: RegionSymbol, indices: make([]int32, n), size: n}
	a.regions[RegionOutput] = &Region{id: RegionOutput, bytes: make([]byte, outBytes), size: outBytes}

	return a, nil
}

// Acquire requests exclusive ownership of a region for port p. It returns
// (nil, false) when the region is already held or when this tick's grant
// has been spent.
func (a *Arbiter) Acquire(p Port, id RegionID) (*Region, bool) {
	if p < 0 || p >= numPorts || id < 0 || id >= numRegions {
		return nil, false
	}

	if a.regions[id] == nil || a.granted || a.held[id] {
		return nil, false
	}

	a.granted = true
	a.held[id] = true
	a.owner[id] = p

	return a.regions[id], true
}

// Release returns ownership of a region. Releasing a region the port does
// not hold is an error.
func (a *Arbiter) Release(p Port, r *Region) error {
	if r == nil {
		return fmt.Errorf("%w: nil region", ErrNotOwner)
	}

	id := r.id
	if !a.held[id] || a.owner[id] != p {
		return fmt.Errorf("%w: port %s, region %s", ErrNotOwner, p, id)
	}

	a.held[id] = false
	return nil
}

// Tick starts a new arbitration step, making one fresh grant available.
func (a *Arbiter) Tick() {
	a.granted = false
}

// Reset forcibly reclaims every region and clears the tick state. Region
// contents are zeroed so no aborted frame leaks into the next.
func (a *Arbiter) Reset() {
	for id := range a.held {
		a.held[id] = false
	}
	a.granted = false

	for _, r := range a.regions {
		if r == nil {
			continue
		}
		core.Zero(r.samples)
		core.ZeroInt32(r.indices)
		for i := range r.bytes {
			r.bytes[i] = 0
		}
	}
}

// Close returns the sample regions to the pool. The arbiter grants nothing
// after Close; calling it twice is harmless.
func (a *Arbiter) Close() {
	for id, b := range a.bufs {
		if b != nil {
			regionPool.Put(b)
			a.bufs[id] = nil
		}
		a.regions[id] = nil
	}
}
