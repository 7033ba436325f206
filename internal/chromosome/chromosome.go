// Package chromosome implements per-sex recombination and mutation rate maps, the
// mutrun_count/mutrun_length geometry, and the packed ancestral nucleotide sequence,
// per spec §3 ("Chromosome") and §4.2.
package chromosome

import (
	"fmt"
	"math/bits"
)

// MaxMutrunCount is the compile-time cap on mutrun_count, per spec §4.2.
const MaxMutrunCount = 1024

// Sex distinguishes which rate map applies; SexCombined covers non-sex-specific
// chromosomes (the common case) and autosomes under a unisex map.
type Sex int

const (
	SexCombined Sex = iota
	SexMale
	SexFemale
)

// RateMap is a SLiM-style end-position/rate map: End[i] is the last chromosome
// position covered by Rate[i], in ascending order, with End[len-1] == chromosome
// length - 1.
type RateMap struct {
	End  []int64
	Rate []float64
}

// RateAt returns the rate in effect at position pos.
func (m RateMap) RateAt(pos int64) float64 {
	for i, end := range m.End {
		if pos <= end {
			return m.Rate[i]
		}
	}
	if len(m.Rate) == 0 {
		return 0
	}
	return m.Rate[len(m.Rate)-1]
}

// Validate checks the map is well-formed: strictly increasing ends, matching lengths,
// non-negative rates.
func (m RateMap) Validate(length int64) error {
	if len(m.End) != len(m.Rate) {
		return fmt.Errorf("rate map: %d end positions but %d rates", len(m.End), len(m.Rate))
	}
	if len(m.End) == 0 {
		return fmt.Errorf("rate map: empty")
	}
	prev := int64(-1)
	for i, end := range m.End {
		if end <= prev {
			return fmt.Errorf("rate map: end positions not strictly increasing at index %d", i)
		}
		if m.Rate[i] < 0 {
			return fmt.Errorf("rate map: negative rate at index %d", i)
		}
		prev = end
	}
	if m.End[len(m.End)-1] != length-1 {
		return fmt.Errorf("rate map: last end %d does not cover chromosome length %d", m.End[len(m.End)-1], length)
	}
	return nil
}

// HotspotMap scales per-base mutation rate for nucleotide-based models, same shape
// as RateMap but semantically a multiplier rather than an absolute rate.
type HotspotMap = RateMap

// Chromosome holds the recombination/mutation rate maps (combined, or split by sex),
// the hotspot multiplier map, mutrun geometry, and the packed ancestral sequence.
type Chromosome struct {
	Length int64

	RecombinationCombined RateMap
	RecombinationMale     RateMap
	RecombinationFemale   RateMap
	SexSpecificRecomb     bool

	MutationCombined RateMap
	MutationMale     RateMap
	MutationFemale   RateMap
	SexSpecificMut   bool

	Hotspots HotspotMap

	MutrunCount  int
	MutrunLength int64

	ancestralSequence []byte // packed 2 bits/base, first base of each four in the lowest two bits
}

// New constructs a Chromosome, deriving mutrun_length from mutrun_count and
// validating that both are powers of two and mutrun_count fits length, per spec
// invariant on Chromosome geometry.
func New(length int64, mutrunCount int) (*Chromosome, error) {
	if length <= 0 {
		return nil, fmt.Errorf("chromosome length must be positive, got %d", length)
	}
	if err := validatePowerOfTwo("mutrun_count", mutrunCount); err != nil {
		return nil, err
	}
	if mutrunCount > MaxMutrunCount {
		return nil, fmt.Errorf("mutrun_count %d exceeds compile-time maximum %d", mutrunCount, MaxMutrunCount)
	}
	if int64(mutrunCount) > length {
		return nil, fmt.Errorf("mutrun_count %d exceeds chromosome length %d", mutrunCount, length)
	}
	mutrunLength := length / int64(mutrunCount)
	if mutrunLength*int64(mutrunCount) != length {
		return nil, fmt.Errorf("chromosome length %d not evenly divisible by mutrun_count %d", length, mutrunCount)
	}
	if err := validatePowerOfTwo("mutrun_length", int(mutrunLength)); err != nil {
		return nil, err
	}
	return &Chromosome{
		Length:       length,
		MutrunCount:  mutrunCount,
		MutrunLength: mutrunLength,
	}, nil
}

func validatePowerOfTwo(name string, v int) error {
	if v <= 0 || bits.OnesCount(uint(v)) != 1 {
		return fmt.Errorf("%s must be a power of two, got %d", name, v)
	}
	return nil
}

// SegmentOf returns which mutrun segment index a chromosome position belongs to.
func (c *Chromosome) SegmentOf(pos int64) int {
	return int(pos / c.MutrunLength)
}

// RecombinationRateAt returns the recombination rate in effect at pos for the given
// sex (SexCombined when the model is not sex-specific for recombination).
func (c *Chromosome) RecombinationRateAt(pos int64, sex Sex) float64 {
	if !c.SexSpecificRecomb || sex == SexCombined {
		return c.RecombinationCombined.RateAt(pos)
	}
	if sex == SexMale {
		return c.RecombinationMale.RateAt(pos)
	}
	return c.RecombinationFemale.RateAt(pos)
}

// MutationRateAt returns the mutation rate in effect at pos for the given sex,
// scaled by any hotspot multiplier defined at that position.
func (c *Chromosome) MutationRateAt(pos int64, sex Sex) float64 {
	base := c.MutationCombined.RateAt(pos)
	if c.SexSpecificMut {
		if sex == SexMale {
			base = c.MutationMale.RateAt(pos)
		} else if sex == SexFemale {
			base = c.MutationFemale.RateAt(pos)
		}
	}
	if len(c.Hotspots.Rate) > 0 {
		base *= c.Hotspots.RateAt(pos)
	}
	return base
}

// SetAncestralSequence packs a sequence of 2-bit nucleotide codes (0-3) into the
// chromosome's ancestral sequence buffer.
func (c *Chromosome) SetAncestralSequence(bases []uint8) error {
	if int64(len(bases)) != c.Length {
		return fmt.Errorf("ancestral sequence length %d does not match chromosome length %d", len(bases), c.Length)
	}
	packed := make([]byte, (len(bases)+3)/4)
	for i, base := range bases {
		if base > 3 {
			return fmt.Errorf("ancestral base %d at position %d out of range [0,3]", base, i)
		}
		packed[i/4] |= base << uint((i%4)*2)
	}
	c.ancestralSequence = packed
	return nil
}

// AncestralBaseAt unpacks the 2-bit nucleotide code at pos.
func (c *Chromosome) AncestralBaseAt(pos int64) (uint8, error) {
	if pos < 0 || pos >= c.Length {
		return 0, fmt.Errorf("position %d out of chromosome range [0,%d)", pos, c.Length)
	}
	if c.ancestralSequence == nil {
		return 0, fmt.Errorf("chromosome has no ancestral sequence set")
	}
	b := c.ancestralSequence[pos/4]
	return (b >> uint((pos%4)*2)) & 0x3, nil
}
