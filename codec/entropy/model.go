package entropy

import "fmt"

// Alphabet sizes of the adaptive model.
const (
	mainAlphabet = 256
	runAlphabet  = 256
	signAlphabet = 2
)

// maxTotal caps a table's running total; reaching it halves every count so
// the model keeps adapting to recent statistics.
const maxTotal = 1 << 13

// FreqTable is an adaptive symbol frequency table. Every count starts at
// one so no symbol ever has zero probability.
type FreqTable struct {
	counts []uint32
	total  uint32
}

// NewFreqTable returns a table over an alphabet of n symbols.
func NewFreqTable(n int) *FreqTable {
	t := &FreqTable{counts: make([]uint32, n)}
	t.init()
	return t
}

func (t *FreqTable) init() {
	for i := range t.counts {
		t.counts[i] = 1
	}
	t.total = uint32(len(t.counts))
}

// Len returns the alphabet size.
func (t *FreqTable) Len() int {
	return len(t.counts)
}

// Total returns the running total count.
func (t *FreqTable) Total() uint32 {
	return t.total
}

// Range returns the cumulative count interval [lo, hi) of sym and the
// table total.
func (t *FreqTable) Range(sym int) (lo, hi, total uint32, err error) {
	if sym < 0 || sym >= len(t.counts) {
		return 0, 0, 0, fmt.Errorf("entropy: symbol %d outside alphabet of %d", sym, len(t.counts))
	}

	for _, c := range t.counts[:sym] {
		lo += c
	}
	hi = lo + t.counts[sym]

	return lo, hi, t.total, nil
}

// Update adds inc to sym's count, halving the whole table when the total
// reaches its cap.
func (t *FreqTable) Update(sym, inc int) {
	if sym < 0 || sym >= len(t.counts) || inc <= 0 {
		return
	}

	t.counts[sym] += uint32(inc)
	t.total += uint32(inc)

	if t.total >= maxTotal {
		t.total = 0
		for i, c := range t.counts {
			c = (c + 1) / 2
			t.counts[i] = c
			t.total += c
		}
	}
}

// Clone returns an independent copy of the table.
func (t *FreqTable) Clone() *FreqTable {
	c := &FreqTable{counts: make([]uint32, len(t.counts)), total: t.total}
	copy(c.counts, t.counts)
	return c
}

// Reset restores the uniform initial state.
func (t *FreqTable) Reset() {
	t.init()
}

// Model holds the adaptive tables of one channel: a magnitude table per
// context bucket, a zero-run length table and a sign table. Tables persist
// across frames until Reset.
type Model struct {
	main [3]*FreqTable
	run  *FreqTable
	sign *FreqTable
}

// NewModel returns a model with all tables in their uniform initial state.
func NewModel() *Model {
	m := &Model{
		run:  NewFreqTable(runAlphabet),
		sign: NewFreqTable(signAlphabet),
	}
	for i := range m.main {
		m.main[i] = NewFreqTable(mainAlphabet)
	}
	return m
}

// Clone returns an independent copy with identical table state.
func (m *Model) Clone() *Model {
	c := &Model{
		run:  m.run.Clone(),
		sign: m.sign.Clone(),
	}
	for i := range m.main {
		c.main[i] = m.main[i].Clone()
	}
	return c
}

// Reset restores every table to its initial state.
func (m *Model) Reset() {
	for i := range m.main {
		m.main[i].Reset()
	}
	m.run.Reset()
	m.sign.Reset()
}

// ContextOf selects the context bucket for the coefficient following the
// two given predecessors: 0 when both are zero, otherwise a hash of their
// low bytes and the band's scale factor picks the first- or second-order
// bucket.
func ContextOf(prev1, prev2 int32, scale int) int {
	if prev1 == 0 && prev2 == 0 {
		return 0
	}

	h := uint32(uint8(prev1))*31 ^ uint32(uint8(prev2))*17 ^ uint32(scale)
	if prev2 == 0 || h&3 == 0 {
		return 1
	}
	return 2
}

// adaptInc biases the adaptation increment by a small hash of the previous
// two coefficients' low bytes and the band's scale factor.
func adaptInc(prev1, prev2 int32, scale int) int {
	h := uint32(uint8(prev1))*31 ^ uint32(uint8(prev2))*17 ^ uint32(scale)
	return 1 + int(h&1)
}
