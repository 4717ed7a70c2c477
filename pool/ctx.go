package pool

import "sync"

// Context is anything the Context Pool can hand out and reclaim: a
// resettable per-worker compression context (see compress.CCtx).
type Context interface {
	Reset()
}

// ContextPool is a bounded LIFO stack of Context values, sized to at most
// one per worker. It is seeded with a single eagerly-created context (so
// the first worker to acquire one does not have to create it) and grows
// lazily up to its capacity as more workers become active.
type ContextPool struct {
	mu       sync.Mutex
	free     []Context
	new      func() Context
	capacity int
	created  int
}

// NewContextPool creates a context pool that lazily creates up to capacity
// contexts using newFn, eagerly creating the first one now.
func NewContextPool(capacity int, newFn func() Context) *ContextPool {
	if capacity < 1 {
		capacity = 1
	}
	p := &ContextPool{
		new:      newFn,
		capacity: capacity,
	}
	p.free = append(p.free, newFn())
	p.created = 1
	return p
}

// Acquire returns a Context, reusing a Released one when available and
// otherwise lazily creating one if the pool has not yet reached capacity.
// It returns ok=false once capacity contexts are all checked out.
func (p *ContextPool) Acquire() (ctx Context, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		ctx = p.free[n-1]
		p.free = p.free[:n-1]
		return ctx, true
	}

	if p.created >= p.capacity {
		return nil, false
	}

	p.created++
	return p.new(), true
}

// Release resets ctx and returns it to the pool for reuse.
func (p *ContextPool) Release(ctx Context) {
	ctx.Reset()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, ctx)
}

// Destroy drops all pooled contexts.
func (p *ContextPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
	p.created = 0
}
