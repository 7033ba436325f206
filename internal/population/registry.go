package population

import (
	"sort"
	"sync"

	"github.com/MesserLab/slimgo/internal/mutation"
)

// Registry is the process-wide mutation registry: the set of mutation indices
// currently segregating in the population, tracked so the fixation sweep (spec
// §4.4 stage 3) does not need to scan the whole mutation block. Invariant 3 ties
// this registry's tally to the sum of per-genome refcounts.
type Registry struct {
	mu      sync.RWMutex
	tracked map[mutation.Index]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tracked: make(map[mutation.Index]struct{})}
}

// Track adds idx to the registry, called whenever a new mutation is generated.
func (r *Registry) Track(idx mutation.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[idx] = struct{}{}
}

// Untrack removes idx, called once it has been fixed or lost.
func (r *Registry) Untrack(idx mutation.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracked, idx)
}

// IsTracked reports whether idx is currently in the registry.
func (r *Registry) IsTracked(idx mutation.Index) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tracked[idx]
	return ok
}

// Len reports how many mutations are currently tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracked)
}

// TrackedIndices returns a sorted snapshot of every tracked index, so sweeps and
// cross-checks iterate in a deterministic order.
func (r *Registry) TrackedIndices() []mutation.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mutation.Index, 0, len(r.tracked))
	for idx := range r.tracked {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CrossCheckRefcounts checks invariant 3 as far as the block alone allows: it
// returns, sorted, every tracked index whose block refcount is zero or less. It
// does not compare refcounts against per-genome sums, since Registry itself has no
// genome access.
func (r *Registry) CrossCheckRefcounts(block *mutation.Block) []mutation.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var mismatched []mutation.Index
	for idx := range r.tracked {
		if block.Refcount(idx) <= 0 {
			mismatched = append(mismatched, idx)
		}
	}
	sort.Slice(mismatched, func(i, j int) bool { return mismatched[i] < mismatched[j] })
	return mismatched
}
