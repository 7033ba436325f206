package experimenter

import (
	"sort"
	"sync"
)

// WindowSize is the fixed number of per-generation wall-time samples collected per
// experiment, per spec §4.2.
const WindowSize = 50

// EarlyCheckAt is the sample count after which an experiment may terminate early.
const EarlyCheckAt = 10

// EarlyAlpha is the significance threshold for early termination.
const EarlyAlpha = 0.01

// StasisConfirmCount is the number of confirming experiments run once stasis is
// entered.
const StasisConfirmCount = 5

// InitialStasisAlpha is the starting significance threshold for breaking stasis.
const InitialStasisAlpha = 0.01

type direction int

const (
	dirUp direction = iota
	dirDown
)

type phase int

const (
	phaseFirst phase = iota
	phaseComparing
	phaseStasis
)

// Decision records one concluded experiment, for the end-of-run modal-count report.
type Decision struct {
	Count   int
	Outcome string // "first", "continue", "loss-early", "loss", "win", "stasis-continue", "stasis-break"
	Mean    float64
}

// Experimenter runs the paired-experiment mutrun_count scheduler described in spec
// §4.2: collect a window of per-generation wall-times, compare windows via Welch's
// t-test, and walk mutrun_count up or down (doubling/halving) until the process
// settles into stasis.
type Experimenter struct {
	mu sync.Mutex

	dir      direction
	reversed bool
	ph       phase

	currentCount  int
	previousCount int
	baselineCount int // the "older, better baseline" the no-noise-push rule compares against

	stasisCount          int
	stasisAlpha          float64
	stasisConfirmCount   int
	stasisRemaining      int
	lastTwoStasisCounts  []int

	currentSamples  []float64
	previousSamples []float64
	previousMean    float64

	// baselineSamples/baselineMean back the "older, better baseline" comparison
	// spec §4.2 calls for when an up-trend experiment neither wins nor loses
	// conclusively: the next experiment runs against this older baseline instead
	// of the just-concluded current experiment, so repeated marginal noise cannot
	// push mutrun_count up indefinitely.
	baselineSamples []float64
	baselineMean    float64

	history []Decision
}

// New creates an Experimenter starting its first experiment at initialCount.
func New(initialCount int) *Experimenter {
	return &Experimenter{
		ph:                 phaseFirst,
		currentCount:       initialCount,
		stasisAlpha:        InitialStasisAlpha,
		stasisConfirmCount: StasisConfirmCount,
	}
}

// CurrentMutrunCount reports the count the in-progress experiment is using.
func (e *Experimenter) CurrentMutrunCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentCount
}

// Feed records one generation's wall-time sample for the in-progress experiment.
// It returns the concluded Decision once the experiment window closes (by reaching
// WindowSize samples, or by early termination after EarlyCheckAt), or ok=false if
// the experiment is still collecting.
func (e *Experimenter) Feed(sample float64) (decision Decision, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentSamples = append(e.currentSamples, sample)

	if len(e.currentSamples) >= EarlyCheckAt && len(e.previousSamples) >= 2 {
		res := WelchTTest(e.currentSamples, e.previousSamples)
		if res.P < EarlyAlpha && res.MeanA > res.MeanB {
			return e.conclude("loss-early"), true
		}
	}

	if len(e.currentSamples) < WindowSize {
		return Decision{}, false
	}

	return e.conclude(""), true
}

// conclude finalizes the in-progress experiment, advances the state machine, and
// starts the next experiment.
func (e *Experimenter) conclude(forcedOutcome string) Decision {
	mean, _ := meanVariance(e.currentSamples)
	concludedCount := e.currentCount

	var outcome string
	switch e.ph {
	case phaseFirst:
		outcome = "first"
		e.ph = phaseComparing
		e.dir = dirUp
		e.previousSamples = e.currentSamples
		e.previousMean = mean
		e.previousCount = e.currentCount
		e.baselineSamples = e.currentSamples
		e.baselineMean = mean
		e.baselineCount = e.currentCount
		e.currentCount = e.currentCount * 2

	case phaseComparing:
		res := WelchTTest(e.currentSamples, e.previousSamples)
		if forcedOutcome == "loss-early" {
			outcome = "loss-early"
		} else if mean < e.previousMean {
			outcome = "win"
		} else if res.P >= 0.05 {
			outcome = "continue"
		} else {
			outcome = "loss"
		}

		switch outcome {
		case "win":
			// An improvement: this experiment becomes the new baseline too.
			e.previousSamples, e.previousMean, e.previousCount = e.currentSamples, mean, e.currentCount
			e.baselineSamples, e.baselineMean, e.baselineCount = e.currentSamples, mean, e.currentCount
			e.currentCount = step(e.currentCount, e.dir)

		case "continue":
			if e.dir == dirUp {
				// Per spec §4.2: not an improvement and not conclusive, but the
				// trend is increasing mutrun_count — compare the NEXT experiment
				// against the older baseline rather than this one, so marginal
				// noise cannot push the count up indefinitely.
				e.previousSamples, e.previousMean, e.previousCount = e.baselineSamples, e.baselineMean, e.baselineCount
			} else {
				e.previousSamples, e.previousMean, e.previousCount = e.currentSamples, mean, e.currentCount
				e.baselineSamples, e.baselineMean, e.baselineCount = e.currentSamples, mean, e.currentCount
			}
			e.currentCount = step(e.currentCount, e.dir)

		default: // "loss", "loss-early": conclusive loss, reverse direction
			if e.reversed {
				e.enterStasis(e.baselineCount)
			} else {
				e.reversed = true
				e.dir = flip(e.dir)
				e.previousSamples, e.previousMean, e.previousCount = e.currentSamples, mean, e.currentCount
				e.baselineSamples, e.baselineMean, e.baselineCount = e.currentSamples, mean, e.currentCount
				e.currentCount = step(e.baselineCount, e.dir)
			}
		}

	case phaseStasis:
		res := WelchTTest(e.currentSamples, e.previousSamples)
		if res.P < e.stasisAlpha {
			outcome = "stasis-break"
			e.ph = phaseComparing
			e.reversed = false
			e.dir = dirUp
			e.previousSamples, e.previousMean, e.previousCount = e.currentSamples, mean, e.currentCount
			e.baselineSamples, e.baselineMean, e.baselineCount = e.currentSamples, mean, e.currentCount
			e.currentCount = step(e.currentCount, e.dir)
		} else {
			outcome = "stasis-continue"
			e.stasisRemaining--
			if e.stasisRemaining <= 0 {
				e.recordStasisReentry(e.stasisCount)
				e.stasisRemaining = e.stasisConfirmCount
			}
			e.currentCount = e.stasisCount
		}
	}

	d := Decision{Count: concludedCount, Outcome: outcome, Mean: mean}
	e.currentSamples = nil
	e.history = append(e.history, d)
	return d
}

func (e *Experimenter) enterStasis(count int) {
	e.ph = phaseStasis
	e.stasisCount = count
	e.stasisRemaining = e.stasisConfirmCount
	e.previousSamples = e.currentSamples
	e.currentCount = count
}

// recordStasisReentry tightens the stasis criteria upon re-entering the same
// stasis count twice in a row, per spec §4.2's ping-pong suppression rule.
func (e *Experimenter) recordStasisReentry(count int) {
	e.lastTwoStasisCounts = append(e.lastTwoStasisCounts, count)
	if len(e.lastTwoStasisCounts) > 2 {
		e.lastTwoStasisCounts = e.lastTwoStasisCounts[len(e.lastTwoStasisCounts)-2:]
	}
	if len(e.lastTwoStasisCounts) == 2 && e.lastTwoStasisCounts[0] == e.lastTwoStasisCounts[1] {
		e.stasisAlpha /= 2
		e.stasisConfirmCount *= 2
	}
}

func step(count int, dir direction) int {
	if dir == dirUp {
		return count * 2
	}
	if count <= 1 {
		return 1
	}
	return count / 2
}

func flip(dir direction) direction {
	if dir == dirUp {
		return dirDown
	}
	return dirUp
}

// History returns every concluded experiment's decision, for the end-of-run
// modal-count report.
func (e *Experimenter) History() []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, len(e.history))
	copy(out, e.history)
	return out
}

// ModalCount returns the mutrun_count that appears most often across concluded
// experiments, per spec §4.2's "history vector used for an end-of-run modal-count
// report".
func (e *Experimenter) ModalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tally := make(map[int]int)
	for _, d := range e.history {
		tally[d.Count]++
	}
	best, bestCount := 0, -1
	keys := make([]int, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if tally[k] > bestCount {
			best, bestCount = k, tally[k]
		}
	}
	return best
}
