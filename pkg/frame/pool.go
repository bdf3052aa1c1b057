package frame

import "sync"

// DefaultPoolSize is the minimum number of rotating buffers required by
// spec: enough that the send thread can hold a reference to one finished
// frame while the render loop fills the next, without a copy.
const DefaultPoolSize = 3

// Pool is a small ring of pre-allocated, output-sized buffers. The render
// loop acquires the next buffer each period and the send thread releases it
// back once the frame has gone out, giving the send path a stable reference
// without per-frame allocation.
type Pool struct {
	mu      sync.Mutex
	width   int
	height  int
	format  Format
	free    []Frame
	maxSize int
}

// NewPool creates a pool of size buffers (at least DefaultPoolSize),
// pre-allocated at width x height in the given format.
func NewPool(width, height int, format Format, size int) *Pool {
	if size < DefaultPoolSize {
		size = DefaultPoolSize
	}
	p := &Pool{width: width, height: height, format: format, maxSize: size}
	for i := 0; i < size; i++ {
		p.free = append(p.free, NewFrame(width, height, format))
	}
	return p
}

// Acquire returns the next available buffer. If the pool is momentarily
// exhausted (send thread holding every buffer) a fresh one is allocated
// rather than stalling the render loop; this should not happen in steady
// state with DefaultPoolSize buffers and a send thread that releases
// promptly.
func (p *Pool) Acquire() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		return f
	}
	return NewFrame(p.width, p.height, p.format)
}

// Release returns a buffer to the pool for reuse. Buffers of the wrong
// dimensions (e.g. left over from a resolution change) are dropped rather
// than recycled.
func (p *Pool) Release(f Frame) {
	if f.Width != p.width || f.Height != p.height || f.Format != p.format {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.maxSize {
		return
	}
	p.free = append(p.free, f)
}

// Len reports the number of buffers currently idle in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
