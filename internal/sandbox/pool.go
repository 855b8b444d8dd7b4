package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed     = errors.New("runtime pool is closed")
	ErrAcquireTimeout = errors.New("runtime acquisition timeout")
)

// acquireTimeout bounds how long Acquire waits for a free runtime when
// the caller's context has no deadline of its own.
const acquireTimeout = 5 * time.Second

// Setup prepares a freshly built runtime, typically by registering
// libraries. It runs once per runtime at pool construction and again
// whenever a runtime is rebuilt after a failed reset.
type Setup func(*Runtime) error

// Pool manages reusable runtimes for callers executing many
// independent scripts. Each runtime is still single-caller; the pool
// provides the serialization discipline by handing a runtime to one
// holder at a time.
type Pool struct {
	cfg      Config
	opts     []Option
	setup    Setup
	runtimes chan *Runtime
	size     int
	mu       sync.RWMutex
	closed   bool
}

// NewPool pre-creates size runtimes with the given config. setup may be
// nil when no libraries need registering.
func NewPool(cfg Config, size int, setup Setup, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		cfg:      cfg,
		opts:     opts,
		setup:    setup,
		runtimes: make(chan *Runtime, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		rt, err := pool.build()
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.runtimes <- rt
	}

	return pool, nil
}

func (p *Pool) build() (*Runtime, error) {
	rt, err := New(p.cfg, p.opts...)
	if err != nil {
		return nil, err
	}
	if p.setup != nil {
		if err := p.setup(rt); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// Acquire gets a runtime from the pool, waiting until one is released,
// the context is done, or the acquisition timeout elapses.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(acquireTimeout):
		return nil, ErrAcquireTimeout
	}
}

// Release returns a runtime to the pool. The runtime is reset first so
// the next holder sees no globals left behind by the previous script;
// a runtime that fails to reset is replaced.
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		rt.Close()
		return nil
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		if fresh, buildErr := p.build(); buildErr == nil {
			p.runtimes <- fresh
		}
		return err
	}

	select {
	case p.runtimes <- rt:
		return nil
	default:
		rt.Close()
		return nil
	}
}

// Execute runs source on a pooled runtime.
func (p *Pool) Execute(ctx context.Context, source string) (interface{}, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Execute(source)
}

// Close closes the pool and every idle runtime. Runtimes held by
// callers are closed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.runtimes)

	for rt := range p.runtimes {
		rt.Close()
	}
}

// Stats returns pool occupancy counters.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.runtimes),
		"in_use":    p.size - len(p.runtimes),
		"closed":    p.closed,
	}
}
