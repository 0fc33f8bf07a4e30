package entropy

import "fmt"

// BitWriter is the bit sink the coder emits into.
type BitWriter interface {
	WriteBit(b uint32) error
}

// BitReader is the bit source the decoder consumes. A source may run out
// before the decoder finishes; the decoder then supplies zero bits, the
// implicit tail of a flushed stream.
type BitReader interface {
	ReadBit() (uint32, error)
}

// Interval register layout. Symbol ranges are rescaled to 16-bit precision
// against the table's running total before narrowing.
const (
	topBit    uint32 = 1 << 31
	secondBit uint32 = 1 << 30
	precision        = 16
	precTotal uint32 = 1 << precision
)

// Coder is the arithmetic encoder: a 32-bit [low, high] interval narrowed
// per symbol, renormalized with pending-bit carry resolution.
type Coder struct {
	w       BitWriter
	low     uint32
	high    uint32
	pending int
	written int
}

// NewCoder returns a Coder emitting into w.
func NewCoder(w BitWriter) *Coder {
	return &Coder{w: w, high: ^uint32(0)}
}

// BitsWritten returns the number of bits emitted so far, counting carry
// bits still pending.
func (c *Coder) BitsWritten() int {
	return c.written + c.pending
}

// scaled rescales a cumulative count to the coder's 16-bit precision.
func scaled(cum, total uint32) uint32 {
	return uint32(uint64(cum) * uint64(precTotal) / uint64(total))
}

// Encode narrows the interval by sym's probability range in t and updates
// nothing; table adaptation is the caller's concern.
func (c *Coder) Encode(t *FreqTable, sym int) error {
	lo, hi, total, err := t.Range(sym)
	if err != nil {
		return err
	}
	return c.narrow(scaled(lo, total), scaled(hi, total))
}

// EncodeDirect codes the low n bits of v at uniform probability through
// the interval, bypassing any model.
func (c *Coder) EncodeDirect(v uint32, n int) error {
	if n <= 0 || n > precision {
		return fmt.Errorf("entropy: direct bit count out of range: %d", n)
	}

	if v>>uint(n) != 0 {
		return fmt.Errorf("entropy: value %d does not fit in %d bits", v, n)
	}

	shift := uint(precision - n)
	return c.narrow(v<<shift, (v+1)<<shift)
}

func (c *Coder) narrow(sLow, sHigh uint32) error {
	if sHigh <= sLow {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, sLow, sHigh)
	}

	span := uint64(c.high-c.low) + 1
	newLow := c.low + uint32(span*uint64(sLow)>>precision)
	newHigh := c.low + uint32(span*uint64(sHigh)>>precision) - 1

	if newHigh < newLow {
		return fmt.Errorf("%w: low 0x%08X high 0x%08X", ErrIntervalCollapse, newLow, newHigh)
	}

	c.low, c.high = newLow, newHigh

	for {
		switch {
		case c.high < topBit:
			if err := c.emit(0); err != nil {
				return err
			}
		case c.low >= topBit:
			if err := c.emit(1); err != nil {
				return err
			}
			c.low -= topBit
			c.high -= topBit
		case c.low >= secondBit && c.high < topBit+secondBit:
			c.pending++
			c.low -= secondBit
			c.high -= secondBit
		default:
			return nil
		}

		c.low <<= 1
		c.high = c.high<<1 | 1
	}
}

// emit writes one settled bit followed by any pending carry bits.
func (c *Coder) emit(b uint32) error {
	if err := c.w.WriteBit(b); err != nil {
		return err
	}
	c.written++

	for ; c.pending > 0; c.pending-- {
		if err := c.w.WriteBit(b ^ 1); err != nil {
			return err
		}
		c.written++
	}

	return nil
}

// Flush settles the final interval so a decoder reading the stream (padded
// with zero bits) lands inside it. The coder must not be reused afterwards.
func (c *Coder) Flush() error {
	c.pending++

	if c.low < secondBit {
		return c.emit(0)
	}
	return c.emit(1)
}

// Decoder mirrors Coder, consuming bits to resolve symbols.
type Decoder struct {
	r    BitReader
	low  uint32
	high uint32
	code uint32
}

// NewDecoder primes a Decoder with the first 32 bits of r.
func NewDecoder(r BitReader) *Decoder {
	d := &Decoder{r: r, high: ^uint32(0)}
	for i := 0; i < 32; i++ {
		d.code = d.code<<1 | d.nextBit()
	}
	return d
}

func (d *Decoder) nextBit() uint32 {
	b, err := d.r.ReadBit()
	if err != nil {
		return 0
	}
	return b
}

// Decode resolves the next symbol against t. Table adaptation is the
// caller's concern.
func (d *Decoder) Decode(t *FreqTable) (int, error) {
	span := uint64(d.high-d.low) + 1
	off := uint32(((uint64(d.code-d.low)+1)<<precision - 1) / span)

	sym := -1
	var sLow, sHigh uint32
	var cum uint32
	for s := 0; s < t.Len(); s++ {
		lo := scaled(cum, t.total)
		cum += t.counts[s]
		hi := scaled(cum, t.total)
		if off >= lo && off < hi {
			sym, sLow, sHigh = s, lo, hi
			break
		}
	}

	if sym < 0 {
		return 0, fmt.Errorf("%w: offset %d resolves to no symbol", ErrInvalidRange, off)
	}

	if err := d.narrow(sLow, sHigh); err != nil {
		return 0, err
	}
	return sym, nil
}

// DecodeDirect consumes n uniformly coded bits.
func (d *Decoder) DecodeDirect(n int) (uint32, error) {
	if n <= 0 || n > precision {
		return 0, fmt.Errorf("entropy: direct bit count out of range: %d", n)
	}

	span := uint64(d.high-d.low) + 1
	off := uint32(((uint64(d.code-d.low)+1)<<precision - 1) / span)

	shift := uint(precision - n)
	v := off >> shift

	if err := d.narrow(v<<shift, (v+1)<<shift); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *Decoder) narrow(sLow, sHigh uint32) error {
	if sHigh <= sLow {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, sLow, sHigh)
	}

	span := uint64(d.high-d.low) + 1
	newLow := d.low + uint32(span*uint64(sLow)>>precision)
	newHigh := d.low + uint32(span*uint64(sHigh)>>precision) - 1

	if newHigh < newLow {
		return fmt.Errorf("%w: low 0x%08X high 0x%08X", ErrIntervalCollapse, newLow, newHigh)
	}

	d.low, d.high = newLow, newHigh

	for {
		switch {
		case d.high < topBit:
		case d.low >= topBit:
			d.low -= topBit
			d.high -= topBit
			d.code -= topBit
		case d.low >= secondBit && d.high < topBit+secondBit:
			d.low -= secondBit
			d.high -= secondBit
			d.code -= secondBit
		default:
			return nil
		}

		d.low <<= 1
		d.high = d.high<<1 | 1
		d.code = d.code<<1 | d.nextBit()
	}
}
