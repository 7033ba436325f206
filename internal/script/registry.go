package script

import (
	"sort"
	"sync"
)

// Registry holds every live Script Block and dispatches by generation, type, and
// optional filter ids, per spec §4.3. It maintains a per-type cached vector rebuilt
// lazily when the set of blocks changes, and defers deregistration to between
// stages so dispatch never observes a hole.
type Registry struct {
	mu sync.Mutex

	blocks map[int64]*Block
	order  []int64 // insertion order, for deterministic cache rebuilds

	pendingRemoval map[int64]bool

	dirty      bool
	cacheByTyp map[BlockType][]*Block

	// Global-fitness callbacks are further split: a multimap keyed by generation
	// for single-generation callbacks, and a vector for multi-generation ones,
	// because their execution order is irrelevant (spec §4.3).
	globalFitnessSingleGen map[int64][]*Block
	globalFitnessMultiGen  []*Block
	globalFitnessDirty     bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		blocks:         make(map[int64]*Block),
		pendingRemoval: make(map[int64]bool),
		cacheByTyp:     make(map[BlockType][]*Block),
		globalFitnessSingleGen: make(map[int64][]*Block),
	}
}

// Add registers a new block.
func (r *Registry) Add(b *Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[b.ID] = b
	r.order = append(r.order, b.ID)
	r.dirty = true
	if b.Type == TypeFitnessGlobal {
		r.globalFitnessDirty = true
	}
}

// RequestRemoval places a block on the pending-removal list; it is not destroyed
// until SweepPendingRemovals runs, so in-flight dispatch calls never observe a hole
// (spec §4.3: "Deregistration is deferred").
func (r *Registry) RequestRemoval(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRemoval[id] = true
}

// SweepPendingRemovals destroys every block requested for removal, called between
// stages by the cycle driver.
func (r *Registry) SweepPendingRemovals() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pendingRemoval) == 0 {
		return
	}
	for id := range r.pendingRemoval {
		if b, ok := r.blocks[id]; ok && b.Type == TypeFitnessGlobal {
			r.globalFitnessDirty = true
		}
		delete(r.blocks, id)
	}
	newOrder := r.order[:0]
	for _, id := range r.order {
		if _, removed := r.pendingRemoval[id]; !removed {
			newOrder = append(newOrder, id)
		}
	}
	r.order = newOrder
	r.pendingRemoval = make(map[int64]bool)
	r.dirty = true
}

func (r *Registry) rebuildCacheLocked() {
	if !r.dirty {
		return
	}
	r.cacheByTyp = make(map[BlockType][]*Block)
	for _, id := range r.order {
		b := r.blocks[id]
		r.cacheByTyp[b.Type] = append(r.cacheByTyp[b.Type], b)
	}
	r.dirty = false
}

func (r *Registry) rebuildGlobalFitnessLocked() {
	if !r.globalFitnessDirty {
		return
	}
	r.globalFitnessSingleGen = make(map[int64][]*Block)
	r.globalFitnessMultiGen = nil
	for _, id := range r.order {
		b := r.blocks[id]
		if b.Type != TypeFitnessGlobal {
			continue
		}
		if b.StartGen == b.EndGen {
			r.globalFitnessSingleGen[b.StartGen] = append(r.globalFitnessSingleGen[b.StartGen], b)
		} else {
			r.globalFitnessMultiGen = append(r.globalFitnessMultiGen, b)
		}
	}
	r.globalFitnessDirty = false
}

// Matching returns the active callbacks of typ for the given generation and
// optional subpop/mutation-type/interaction-type filters, per spec §4.3's
// `matching(gen, type, mutType, interactionType, subpopId)` contract.
func (r *Registry) Matching(gen int64, typ BlockType, mutType, interactionType, subpopID int32) []*Block {
	r.mu.Lock()
	defer r.mu.Unlock()

	if typ == TypeFitnessGlobal {
		return r.matchingGlobalFitnessLocked(gen, mutType, subpopID)
	}

	r.rebuildCacheLocked()
	var out []*Block
	for _, b := range r.cacheByTyp[typ] {
		if !b.Active || !b.AppliesToGeneration(gen) {
			continue
		}
		if !matchesFilter(b.SubpopID, subpopID) {
			continue
		}
		if !matchesFilter(b.MutationTypeID, mutType) {
			continue
		}
		if !matchesFilter(b.InteractionTypeID, interactionType) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (r *Registry) matchingGlobalFitnessLocked(gen int64, mutType, subpopID int32) []*Block {
	r.rebuildGlobalFitnessLocked()
	var out []*Block
	for _, b := range r.globalFitnessSingleGen[gen] {
		if filterAndAppend(b, mutType, subpopID) {
			out = append(out, b)
		}
	}
	for _, b := range r.globalFitnessMultiGen {
		if !b.AppliesToGeneration(gen) {
			continue
		}
		if filterAndAppend(b, mutType, subpopID) {
			out = append(out, b)
		}
	}
	return out
}

func filterAndAppend(b *Block, mutType, subpopID int32) bool {
	if !b.Active {
		return false
	}
	if !matchesFilter(b.MutationTypeID, mutType) {
		return false
	}
	if !matchesFilter(b.SubpopID, subpopID) {
		return false
	}
	return true
}

// Len reports the number of registered blocks, including blocks requested for
// removal that SweepPendingRemovals has not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

// AllSorted returns every live block sorted by id, for deterministic reporting.
func (r *Registry) AllSorted() []*Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Block, 0, len(r.blocks))
	for _, b := range r.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
