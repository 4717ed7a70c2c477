// Package pool implements the bounded Buffer Pool and Context Pool
// collaborators a multi-threaded compression driver shares across its
// workers (spec.md §4.1/§4.2). Both pools are slice-backed free lists
// guarded by a sync.Mutex, mirroring the lock-protected shared-state style
// of parallel.Dispatcher and parallel.ResultsCollector, rather than
// sync.Pool: the spec bounds each pool at an exact capacity (2*W+3 buffers,
// W contexts) that the GC-driven eviction behind sync.Pool cannot guarantee.
package pool

import "sync"

// BufferPool hands out and reclaims fixed-capacity []byte buffers. It never
// allocates past its configured capacity: once that many buffers are
// checked out, Acquire does not block but returns ok=false, and the caller
// decides what to do (the driver reports a memory_allocation error).
type BufferPool struct {
	mu        sync.Mutex
	free      [][]byte
	size      int // capacity of each buffer
	capacity  int // max number of buffers live at once (checked out + free)
	numIssued int
}

// NewBufferPool creates a pool of buffers of bufferSize bytes each, never
// issuing more than capacity of them simultaneously.
func NewBufferPool(bufferSize, capacity int) *BufferPool {
	if capacity < 1 {
		capacity = 1
	}
	return &BufferPool{
		size:     bufferSize,
		capacity: capacity,
	}
}

// Acquire returns a buffer of the pool's configured size, reusing a
// previously Released one when available. It returns ok=false if the pool
// is already at capacity; the caller decides whether to wait and retry.
func (p *BufferPool) Acquire() (buf []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		buf = p.free[n-1]
		p.free = p.free[:n-1]
		return buf, true
	}

	if p.numIssued >= p.capacity {
		return nil, false
	}

	p.numIssued++
	return make([]byte, p.size), true
}

// Release returns buf to the free list for reuse. Buffers of the wrong size
// are dropped rather than pooled, since a resized buffer would defeat the
// pool's fixed-capacity accounting.
func (p *BufferPool) Release(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cap(buf) != p.size {
		p.numIssued--
		return
	}
	p.free = append(p.free, buf[:p.size])
}

// SetTargetSize resizes future buffers. Already-issued or pooled buffers of
// the old size are dropped rather than resized in place, so the pool never
// exceeds its capacity bound mid-resize.
func (p *BufferPool) SetTargetSize(bufferSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bufferSize == p.size {
		return
	}
	p.size = bufferSize
	p.numIssued -= len(p.free)
	p.free = p.free[:0]
}

// Destroy releases all pooled buffers, resetting the pool to empty.
func (p *BufferPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = nil
	p.numIssued = 0
}

// SizeOf reports the current per-buffer size.
func (p *BufferPool) SizeOf() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Outstanding reports how many buffers are currently checked out.
func (p *BufferPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numIssued - len(p.free)
}
