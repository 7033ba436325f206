package mutrun

import (
	"sync"

	"github.com/MesserLab/slimgo/internal/mutation"
)

// Pool is the process-wide free-list of Run objects, so splits/joins/generation
// swaps can recycle backing arrays instead of allocating fresh ones every
// generation, per spec §4.1 ("Runs have a process-wide free-list pool").
type Pool struct {
	mu   sync.Mutex
	free []*Run
}

// NewPool creates an empty run pool.
func NewPool() *Pool { return &Pool{} }

// Get returns a fresh, empty run with refcount 1, reusing a pooled backing array
// when available.
func (p *Pool) Get() *Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free = p.free[:n-1]
		r.indices = r.indices[:0]
		r.refcount = 1
		r.nonNeutralCacheSet = false
		return r
	}
	return NewRun()
}

// Put returns a run with refcount 0 to the pool. Callers must only call this once a
// run's last handle has been released. r is the last *Run referencing every index in
// r.indices, so each one is released in block before the slice is recycled — without
// this, the Block-level refcount would outlive the Run that was the only thing still
// counting it, per mutation.go's refcount invariant.
func (p *Pool) Put(block *mutation.Block, r *Run) {
	if r.Refcount() != 0 {
		panic("(internal error) returning a still-referenced run to the pool")
	}
	for _, idx := range r.indices {
		block.Release(idx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, r)
}
