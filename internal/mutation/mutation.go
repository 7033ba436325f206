// Package mutation implements the process-wide Mutation Block: a single pool that
// allocates mutation records by dense 32-bit index, per spec §4.1 and §3.
//
// Mutations are immutable once created and referenced everywhere by index rather than
// pointer, so that upward traversal (genome -> run -> mutation) never needs a back
// pointer and mutation-run operations can iterate tightly over a contiguous slice.
package mutation

import (
	"fmt"
	"sync"
)

// Index is a dense, process-wide mutation index. Index 0 is never allocated, so the
// zero value can serve as "no mutation" in contexts that need one.
type Index uint32

// NucleotideAbsent marks a Mutation with no associated nucleotide state.
const NucleotideAbsent int8 = -1

// Mutation is an immutable mutation record, allocated from a Block and referenced
// everywhere by its dense Index.
type Mutation struct {
	ID               uint64  // process-wide unique id, distinct from Index
	Type             *Type   // mutation-type reference
	Position         int64   // integer chromosome position
	SelectionCoeff   float64 // selection coefficient
	OriginSubpopID   int32
	OriginGeneration int64
	Nucleotide       int8 // 0-3, or NucleotideAbsent
}

// Type describes a mutation type's dominance, distribution of fitness effects, and
// stacking policy, per spec §3 ("Script Block" and "Mutation Run" stacking policy).
type Type struct {
	ID                 int32
	DominanceCoeff     float64
	DistributionType   string // e.g. "f", "e", "n", "w", "g" (fixed/exp/normal/weibull/gamma)
	DistributionParams []float64
	Stacking           StackPolicy
	ConvertsToSubstitution bool
	Nucleotide         bool
}

// StackPolicy governs what happens when a new mutation arises at a position already
// occupied by one of the same stacking group, per spec §4.1.
type StackPolicy int

const (
	StackKeepBoth StackPolicy = iota
	StackKeepNew
	StackKeepOld
)

// Block is the process-wide pool. It is exclusively written by the single simulation
// thread (spec §5); no internal locking is required for correctness under that
// contract, but a mutex guards it so tests and the gRPC control plane (which only
// ever call in between generations, per SPEC_FULL.md §5) cannot corrupt it if misused.
type Block struct {
	mu       sync.Mutex
	records  []Mutation // records[0] is a sentinel, real mutations start at index 1
	free     []Index
	nextID   uint64
	refcount []int32 // refcount[index] = number of mutation runs referencing it
}

// NewBlock creates an empty block with its sentinel record reserved.
func NewBlock() *Block {
	return &Block{
		records:  make([]Mutation, 1),
		refcount: make([]int32, 1),
	}
}

// Allocate returns the next free index for a new mutation record and stores it.
func (b *Block) Allocate(m Mutation) Index {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	m.ID = b.nextID

	if n := len(b.free); n > 0 {
		idx := b.free[n-1]
		b.free = b.free[:n-1]
		b.records[idx] = m
		b.refcount[idx] = 0
		return idx
	}

	b.records = append(b.records, m)
	b.refcount = append(b.refcount, 0)
	return Index(len(b.records) - 1)
}

// AllocateWithID is Allocate with the process-wide id supplied by the caller rather
// than assigned sequentially, used only when reconstructing a block from a saved
// file (spec §4.6) where mutation ids must round-trip exactly. It advances nextID
// past id so any subsequently-Allocate'd mutation still receives a fresh id.
func (b *Block) AllocateWithID(m Mutation, id uint64) Index {
	b.mu.Lock()
	defer b.mu.Unlock()

	m.ID = id
	if id > b.nextID {
		b.nextID = id
	}

	if n := len(b.free); n > 0 {
		idx := b.free[n-1]
		b.free = b.free[:n-1]
		b.records[idx] = m
		b.refcount[idx] = 0
		return idx
	}

	b.records = append(b.records, m)
	b.refcount = append(b.refcount, 0)
	return Index(len(b.records) - 1)
}

// At returns the mutation stored at idx. Panics (internal invariant) on an
// out-of-range or freed index, since every live reference must have incremented the
// refcount first.
func (b *Block) At(idx Index) *Mutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(idx) <= 0 || int(idx) >= len(b.records) {
		panic(fmt.Sprintf("(internal error) mutation block: index %d out of range", idx))
	}
	if b.refcount[idx] <= 0 {
		panic(fmt.Sprintf("(internal error) mutation block: index %d has zero refcount", idx))
	}
	m := b.records[idx]
	return &m
}

// Retain increments idx's refcount, called whenever a mutation run gains a reference.
func (b *Block) Retain(idx Index) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refcount[idx]++
}

// Release decrements idx's refcount; at zero the index returns to the free-list and
// the slot can be reused by a future Allocate.
func (b *Block) Release(idx Index) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refcount[idx]--
	if b.refcount[idx] < 0 {
		panic(fmt.Sprintf("(internal error) mutation block: double-free of index %d", idx))
	}
	if b.refcount[idx] == 0 {
		b.records[idx] = Mutation{}
		b.free = append(b.free, idx)
	}
}

// Refcount reports the current reference count for idx (used by invariant 3's
// registry-tally cross-check).
func (b *Block) Refcount(idx Index) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refcount[idx]
}

// Len reports the number of live (non-free) records, for diagnostics.
func (b *Block) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records) - 1 - len(b.free)
}
