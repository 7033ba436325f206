package mutrun

import "github.com/MesserLab/slimgo/internal/mutation"

// SplitCons is the hash-consing map for runs being split in two: once one
// genome's run at this identity has been split, every other genome sharing the same
// *Run gets the same two output runs back, per spec §4.2 ("identical input pairs
// produce identical output runs via a hash-consing map built during the operation").
type SplitCons struct {
	cache map[*Run][2]*Run
	pool  *Pool
}

// NewSplitCons creates a fresh hash-consing map for one split operation (one call
// across the whole population doubling mutrun_count).
func NewSplitCons(pool *Pool) *SplitCons {
	return &SplitCons{cache: make(map[*Run][2]*Run), pool: pool}
}

// Split divides run into two new runs at the segment midpoint (splitPosition is the
// absolute chromosome position boundary between the left and right half), routing
// mutations by position. Repeated calls with the same run pointer return the cached
// pair instead of re-splitting and re-retaining every mutation.
func (c *SplitCons) Split(run *Run, block *mutation.Block, splitPosition int64) (left, right *Run) {
	if pair, ok := c.cache[run]; ok {
		pair[0].Retain()
		pair[1].Retain()
		return pair[0], pair[1]
	}

	left = c.pool.Get()
	right = c.pool.Get()
	for _, idx := range run.indices {
		if block.At(idx).Position < splitPosition {
			left.indices = append(left.indices, idx)
		} else {
			right.indices = append(right.indices, idx)
		}
		block.Retain(idx) // the original run's reference transfers to exactly one half...
	}
	// ...but the original run itself still holds its own references until its last
	// handle releases it, so the halves need their own retains independent of that.
	for _, idx := range left.indices {
		block.Retain(idx)
	}
	for _, idx := range right.indices {
		block.Retain(idx)
	}
	for _, idx := range run.indices {
		block.Release(idx) // undo the provisional retain above; net effect: halves own one retain each
	}

	c.cache[run] = [2]*Run{left, right}
	left.Retain()
	right.Retain()
	return left, right
}

// JoinCons is the analogous hash-consing map for joins.
type JoinCons struct {
	cache map[[2]*Run]*Run
	pool  *Pool
}

// NewJoinCons creates a fresh hash-consing map for one join operation.
func NewJoinCons(pool *Pool) *JoinCons {
	return &JoinCons{cache: make(map[[2]*Run]*Run), pool: pool}
}

// Join concatenates left then right (left's positions must all precede right's, since
// they are adjacent chromosome segments), retaining every mutation index once for the
// new combined run. Repeated calls with the same (left, right) pointer pair return the
// cached result.
func (c *JoinCons) Join(left, right *Run, block *mutation.Block) *Run {
	key := [2]*Run{left, right}
	if joined, ok := c.cache[key]; ok {
		joined.Retain()
		return joined
	}

	joined := c.pool.Get()
	joined.indices = append(joined.indices, left.indices...)
	joined.indices = append(joined.indices, right.indices...)
	for _, idx := range joined.indices {
		block.Retain(idx)
	}

	c.cache[key] = joined
	joined.Retain()
	return joined
}
