// Package mutrun implements the shared, copy-on-write Mutation Run: an ordered,
// reference-counted sequence of mutation indices within one chromosome segment, per
// spec §3 and §4.1.
//
// A Run is semantically immutable while shared (refcount > 1); every mutator first
// calls WillModify, which clones the run if it is shared. This mirrors the teacher's
// discipline of never mutating a value that might be aliased elsewhere without first
// taking an explicit, owned copy (population-manager.go's "FIX: create new pointer to
// avoid loop variable issue" comment is the same concern at a different scale).
package mutrun

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/MesserLab/slimgo/internal/mutation"
)

// opCounter is the process-wide operation-id counter that invalidates every run's
// non-neutral cache, per spec §4.1.
var opCounter uint64

// BumpOperationID invalidates all non-neutral caches; called by the cycle driver's
// uniqueness pass, every UniquenessPassInterval generations.
func BumpOperationID() uint64 {
	return atomic.AddUint64(&opCounter, 1)
}

func currentOperationID() uint64 {
	return atomic.LoadUint64(&opCounter)
}

// Run is a reference-counted, position-sorted sequence of mutation indices.
type Run struct {
	indices  []mutation.Index
	refcount int32

	nonNeutralCache    []mutation.Index
	nonNeutralCacheOp  uint64
	nonNeutralCacheSet bool
}

// NewRun creates an empty run with refcount 1 (owned by its first handle).
func NewRun() *Run {
	return &Run{refcount: 1}
}

// Retain increments the run's refcount when a new handle aliases it.
func (r *Run) Retain() { atomic.AddInt32(&r.refcount, 1) }

// Release decrements the run's refcount when a handle stops referencing it.
func (r *Run) Release() int32 { return atomic.AddInt32(&r.refcount, -1) }

// Refcount reports the current refcount.
func (r *Run) Refcount() int32 { return atomic.LoadInt32(&r.refcount) }

// Len reports the number of mutation indices in the run.
func (r *Run) Len() int { return len(r.indices) }

// At returns the index at position i.
func (r *Run) At(i int) mutation.Index { return r.indices[i] }

// Indices returns the run's indices; callers must not mutate the returned slice.
func (r *Run) Indices() []mutation.Index { return r.indices }

// WillModify returns a run safe to mutate in place: either the receiver itself (if
// uniquely owned) or a fresh clone with the caller's reference dropped from the
// original and added to the clone. Per spec invariant 2, no run with refcount > 1 may
// be mutated without first cloning. Cloning makes the clone a second distinct *Run
// referencing every index it now holds, so per mutation.go's refcount invariant
// ("refcount[index] = number of mutation runs referencing it") each copied index must
// be retained in block on the clone's behalf.
func (r *Run) WillModify(block *mutation.Block) *Run {
	if r.Refcount() <= 1 {
		r.invalidateNonNeutralCache()
		return r
	}
	clone := &Run{
		indices:  append([]mutation.Index(nil), r.indices...),
		refcount: 1,
	}
	for _, idx := range clone.indices {
		block.Retain(idx)
	}
	r.Release()
	return clone
}

// EmplaceBack appends idx, assuming the caller guarantees ascending position order
// (spec §4.1's emplace_back contract).
func (r *Run) EmplaceBack(idx mutation.Index) {
	r.indices = append(r.indices, idx)
	r.invalidateNonNeutralCache()
}

// positionOf resolves idx's chromosome position via the block.
func positionOf(block *mutation.Block, idx mutation.Index) int64 {
	return block.At(idx).Position
}

// InsertSorted inserts idx keeping r.indices sorted by position, applying the given
// mutation type's stacking policy against any existing mutation at the same position
// that shares its stacking group. Returns true if idx was actually inserted (vs.
// rejected or substituted) per spec §4.1's stacking-insertion contract.
func (r *Run) InsertSorted(block *mutation.Block, idx mutation.Index, groupOf func(mutation.Index) int32) bool {
	// Retain up front: idx may be a brand-new allocation with zero refcount, and
	// block.At panics as a use-after-free guard on a zero-refcount index. Every
	// branch below either keeps this retain (idx ends up referenced by this run)
	// or releases it again (idx was rejected), so the net refcount change is
	// identical to retaining only on the branch that actually keeps idx.
	block.Retain(idx)
	pos := positionOf(block, idx)
	i := sort.Search(len(r.indices), func(i int) bool { return positionOf(block, r.indices[i]) >= pos })

	newType := block.At(idx).Type
	newGroup := groupOf(idx)

	j := i
	for j < len(r.indices) && positionOf(block, r.indices[j]) == pos {
		if groupOf(r.indices[j]) == newGroup {
			switch newType.Stacking {
			case mutation.StackKeepOld:
				block.Release(idx)
				return false
			case mutation.StackKeepNew:
				old := r.indices[j]
				r.indices[j] = idx
				block.Release(old)
				r.invalidateNonNeutralCache()
				return true
			case mutation.StackKeepBoth:
				// fall through to insert alongside
			}
		}
		j++
	}

	r.indices = append(r.indices, 0)
	copy(r.indices[i+1:], r.indices[i:])
	r.indices[i] = idx
	r.invalidateNonNeutralCache()
	return true
}

// RemoveValue removes and releases the first occurrence of idx, used by registry
// sweeps fixing a mutation into a Substitution; it reports whether idx was found.
func (r *Run) RemoveValue(block *mutation.Block, idx mutation.Index) bool {
	for i, v := range r.indices {
		if v == idx {
			r.indices = append(r.indices[:i], r.indices[i+1:]...)
			block.Release(idx)
			r.invalidateNonNeutralCache()
			return true
		}
	}
	return false
}

func (r *Run) invalidateNonNeutralCache() {
	r.nonNeutralCacheSet = false
}

// NonNeutral returns the subset of indices whose mutation has a non-zero
// selection coefficient, caching the result until the next BumpOperationID call
// (spec §4.1's "non-neutral cache, invalidated by a process-wide operation-id
// counter").
func (r *Run) NonNeutral(block *mutation.Block) []mutation.Index {
	op := currentOperationID()
	if r.nonNeutralCacheSet && r.nonNeutralCacheOp == op {
		return r.nonNeutralCache
	}
	out := r.nonNeutralCache[:0]
	for _, idx := range r.indices {
		if block.At(idx).SelectionCoeff != 0 {
			out = append(out, idx)
		}
	}
	r.nonNeutralCache = out
	r.nonNeutralCacheOp = op
	r.nonNeutralCacheSet = true
	return out
}

// CheckSegmentInvariant verifies spec invariant 1: every index's position falls
// within [segIndex*mutrunLength, (segIndex+1)*mutrunLength).
func (r *Run) CheckSegmentInvariant(block *mutation.Block, segIndex int, mutrunLength int64) error {
	lo := int64(segIndex) * mutrunLength
	hi := lo + mutrunLength
	for _, idx := range r.indices {
		pos := positionOf(block, idx)
		if pos < lo || pos >= hi {
			return fmt.Errorf("(internal error) mutation at position %d does not belong to segment %d [%d,%d)", pos, segIndex, lo, hi)
		}
	}
	return nil
}
