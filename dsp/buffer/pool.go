package buffer

import "sync"

// Pool recycles Buffers across encoder instances. Frame regions are
// acquired once per channel and live for the encoder's lifetime, so the
// pool mostly smooths over encoder construction and teardown churn.
type Pool struct {
	p sync.Pool
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{}
}

// Get returns a zeroed Buffer of length n. A pooled buffer whose capacity
// exceeds n by more than 4x is left for the GC instead of being resized,
// so short-frame encoders do not pin memory sized for long frames.
func (p *Pool) Get(n int) *Buffer {
	if n < 0 {
		n = 0
	}

	b, _ := p.p.Get().(*Buffer)
	if b == nil || cap(b.samples) > 4*n+16 {
		return New(n)
	}

	b.Resize(n)
	b.Zero()
	return b
}

// Put returns a Buffer to the pool. The caller must not touch the buffer
// afterwards.
func (p *Pool) Put(b *Buffer) {
	if b == nil {
		return
	}
	p.p.Put(b)
}
