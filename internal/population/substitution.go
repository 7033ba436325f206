package population

import (
	"sort"
	"sync"

	"github.com/MesserLab/slimgo/internal/mutation"
)

// Substitution is a former mutation now fixed at frequency 1 in every non-null
// genome, stored outside any mutation run (spec §3, GLOSSARY "Substitution").
type Substitution struct {
	MutationID uint64
	Position   int64
	Type       *mutation.Type
	FixedAt    int64 // generation at which fixation occurred
}

// SubstitutionList is the process-wide, position-keyed multimap of substitutions,
// per spec §3 ("appended to a process-wide list keyed also by position (multimap:
// position → substitution) for tree-sequence recording"). The position-multimap
// grows monotonically within a run (spec §6 design note), so iteration via
// AtPosition is stable across concurrent appends elsewhere in the same generation.
type SubstitutionList struct {
	mu       sync.RWMutex
	all      []Substitution
	byPos    map[int64][]int // position -> indices into all, in append order
}

// NewSubstitutionList creates an empty substitution list.
func NewSubstitutionList() *SubstitutionList {
	return &SubstitutionList{byPos: make(map[int64][]int)}
}

// Add appends a new substitution, keyed by its position.
func (s *SubstitutionList) Add(sub Substitution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.all)
	s.all = append(s.all, sub)
	s.byPos[sub.Position] = append(s.byPos[sub.Position], idx)
}

// AtPosition returns every substitution fixed at the given chromosome position, in
// the order they were fixed (spec §6's "equal_range... is stable").
func (s *SubstitutionList) AtPosition(pos int64) []Substitution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byPos[pos]
	out := make([]Substitution, len(idxs))
	for i, idx := range idxs {
		out[i] = s.all[idx]
	}
	return out
}

// All returns every substitution in fixation order.
func (s *SubstitutionList) All() []Substitution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Substitution, len(s.all))
	copy(out, s.all)
	return out
}

// Len reports the total number of substitutions recorded.
func (s *SubstitutionList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}

// Positions returns every distinct position with at least one substitution, sorted
// ascending.
func (s *SubstitutionList) Positions() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.byPos))
	for pos := range s.byPos {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
