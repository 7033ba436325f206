package treeseq

// IsCoalesced reports whether the recorded genealogy has coalesced: every extant
// sample (the extantNodeIDs the caller currently has alive) traces back to a single
// common ancestor root. Remembered genomes are not part of this sample set. Root
// count alone is not a sufficient test, because a simplified tree sequence can
// retain extra roots that anchor remembered ancestors without any tracked sample
// descending from them (spec §4.5); coalescence instead requires exactly one root
// whose descendant set contains every extant sample.
//
// This walks the edge table as a single genealogy rather than tskit's true
// per-interval tree iteration, which is exact only when every retained edge spans
// the full sequence interval — true immediately after this package's own Simplify,
// but not in general once edges have been split into partial intervals by
// recombination; see DESIGN.md.
func (r *Recorder) IsCoalesced(extantNodeIDs []int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples := make(map[int64]bool, len(extantNodeIDs))
	for _, id := range extantNodeIDs {
		samples[id] = true
	}
	total := len(samples)
	if total == 0 {
		return true
	}

	childrenOf := make(map[int64][]int64)
	isChild := make(map[int64]bool)
	for _, e := range r.Tables.Edges {
		childrenOf[e.Parent] = append(childrenOf[e.Parent], e.Child)
		isChild[e.Child] = true
	}

	roots := make(map[int64]bool)
	for p := range childrenOf {
		if !isChild[p] {
			roots[p] = true
		}
	}
	for s := range samples {
		if !isChild[s] {
			roots[s] = true
		}
	}

	rootsSpanningAllSamples := 0
	for root := range roots {
		descendants := reachableDescendants(childrenOf, root)
		count := 0
		for s := range samples {
			if s == root || descendants[s] {
				count++
			}
		}
		if count == total {
			rootsSpanningAllSamples++
		}
	}
	return rootsSpanningAllSamples == 1
}

func reachableDescendants(childrenOf map[int64][]int64, root int64) map[int64]bool {
	seen := make(map[int64]bool)
	stack := []int64{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range childrenOf[n] {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return seen
}
