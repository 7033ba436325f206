package fileio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
)

// Section tags for the SLiM binary format, per spec §4.6.
const (
	tagEnd         uint32 = 0xFFFF0000
	tagSubpop      uint32 = 0xFFFF0001
	tagMutation    uint32 = 0xFFFF0002
	tagNullGenome  uint32 = 0xFFFF1000
	binaryMagicDbl        = 1234567890.0987654321
)

// BinaryVersion is the format version this package writes and the only version it
// reads back; spec §4.6 calls for per-version branches on read, but only one
// version is ever produced here, so that branch point is a single check.
const BinaryVersion int32 = 1

// WriteBinary renders d in the SLiM binary format: little-endian magic marker,
// a header carrying the format version and the host's integral-type sizes (for
// cross-build validation) plus the magic double check, then tagged sections, per
// spec §4.6.
func WriteBinary(w io.Writer, d *Dump) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if err := binary.Write(bw, le, slimBinaryMagic); err != nil {
		return fmt.Errorf("fileio: writing binary magic: %w", err)
	}
	if err := binary.Write(bw, le, BinaryVersion); err != nil {
		return fmt.Errorf("fileio: writing version: %w", err)
	}
	// Sizes of the integral types this writer used, in bytes, for a reader built
	// against a different word size to detect incompatibility up front.
	sizes := [3]int32{4, 8, 8} // int32, int64, float64
	if err := binary.Write(bw, le, sizes); err != nil {
		return fmt.Errorf("fileio: writing type sizes: %w", err)
	}
	if err := binary.Write(bw, le, binaryMagicDbl); err != nil {
		return fmt.Errorf("fileio: writing magic double: %w", err)
	}
	if err := binary.Write(bw, le, d.Generation); err != nil {
		return fmt.Errorf("fileio: writing generation: %w", err)
	}
	if err := binary.Write(bw, le, int32(d.MutrunCount)); err != nil {
		return fmt.Errorf("fileio: writing mutrun count: %w", err)
	}
	if err := binary.Write(bw, le, d.ChromosomeLength); err != nil {
		return fmt.Errorf("fileio: writing chromosome length: %w", err)
	}

	idToLocal := make(map[uint64]int, len(d.Mutations))
	for i, m := range d.Mutations {
		idToLocal[m.ID] = i
	}
	wideRefs := len(d.Mutations) > 0xFFFF

	if err := binary.Write(bw, le, tagMutation); err != nil {
		return err
	}
	if err := binary.Write(bw, le, int32(len(d.Mutations))); err != nil {
		return err
	}
	for _, m := range d.Mutations {
		if err := writeMutationRecord(bw, le, m); err != nil {
			return fmt.Errorf("fileio: writing mutation %d: %w", m.ID, err)
		}
	}

	if err := binary.Write(bw, le, tagSubpop); err != nil {
		return err
	}
	if err := binary.Write(bw, le, int32(len(d.Subpopulations))); err != nil {
		return err
	}
	for _, sp := range d.Subpopulations {
		if err := writeSubpopRecord(bw, le, sp, idToLocal, wideRefs); err != nil {
			return fmt.Errorf("fileio: writing subpopulation p%d: %w", sp.ID, err)
		}
	}

	if err := binary.Write(bw, le, tagEnd); err != nil {
		return err
	}

	return bw.Flush()
}

func writeMutationRecord(bw *bufio.Writer, le binary.ByteOrder, m DumpMutation) error {
	fields := []any{
		m.ID, m.Position, m.SelectionCoeff, m.TypeID, m.DominanceCoeff,
		int32(m.Stacking), m.OriginSubpopID, m.OriginGeneration, m.Nucleotide,
	}
	for _, f := range fields {
		if err := binary.Write(bw, le, f); err != nil {
			return err
		}
	}
	return nil
}

func writeSubpopRecord(bw *bufio.Writer, le binary.ByteOrder, sp DumpSubpopulation, idToLocal map[uint64]int, wideRefs bool) error {
	if err := binary.Write(bw, le, sp.ID); err != nil {
		return err
	}
	if err := binary.Write(bw, le, int32(len(sp.Individuals))); err != nil {
		return err
	}
	for _, ind := range sp.Individuals {
		if err := writeIndividualRecord(bw, le, ind, idToLocal, wideRefs); err != nil {
			return err
		}
	}
	return nil
}

func writeIndividualRecord(bw *bufio.Writer, le binary.ByteOrder, ind DumpIndividual, idToLocal map[uint64]int, wideRefs bool) error {
	fields := []any{
		ind.PedigreeID, ind.Age, int32(ind.Sex),
		ind.Coordinates[0], ind.Coordinates[1], ind.Coordinates[2],
		int32(ind.SpatialDims), ind.Fitness,
	}
	for _, f := range fields {
		if err := binary.Write(bw, le, f); err != nil {
			return err
		}
	}
	if err := writeGenomeRecord(bw, le, ind.Genome1Null, ind.Genome1MutationIDs, idToLocal, wideRefs); err != nil {
		return err
	}
	return writeGenomeRecord(bw, le, ind.Genome2Null, ind.Genome2MutationIDs, idToLocal, wideRefs)
}

func writeGenomeRecord(bw *bufio.Writer, le binary.ByteOrder, isNull bool, ids []uint64, idToLocal map[uint64]int, wideRefs bool) error {
	if isNull {
		return binary.Write(bw, le, tagNullGenome)
	}
	if err := binary.Write(bw, le, int32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		local, ok := idToLocal[id]
		if !ok {
			return fmt.Errorf("genome references unknown mutation id %d", id)
		}
		if wideRefs {
			if err := binary.Write(bw, le, uint32(local)); err != nil {
				return err
			}
		} else {
			if err := binary.Write(bw, le, uint16(local)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadBinary parses a SLiM binary dump written by WriteBinary.
func ReadBinary(r io.Reader) (*Dump, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	var magic uint32
	if err := binary.Read(br, le, &magic); err != nil {
		return nil, fmt.Errorf("fileio: reading binary magic: %w", err)
	}
	if magic != slimBinaryMagic {
		return nil, fmt.Errorf("fileio: wrong endianness marker %#x (want %#x)", magic, slimBinaryMagic)
	}
	var version int32
	if err := binary.Read(br, le, &version); err != nil {
		return nil, fmt.Errorf("fileio: reading version: %w", err)
	}
	if version != BinaryVersion {
		return nil, fmt.Errorf("fileio: unsupported SLiM binary version %d (this reader supports %d)", version, BinaryVersion)
	}
	var sizes [3]int32
	if err := binary.Read(br, le, &sizes); err != nil {
		return nil, fmt.Errorf("fileio: reading type sizes: %w", err)
	}
	if sizes != [3]int32{4, 8, 8} {
		return nil, fmt.Errorf("fileio: incompatible integral type sizes %v", sizes)
	}
	var magicDbl float64
	if err := binary.Read(br, le, &magicDbl); err != nil {
		return nil, fmt.Errorf("fileio: reading magic double: %w", err)
	}
	if math.Abs(magicDbl-binaryMagicDbl) > 1e-9 {
		return nil, fmt.Errorf("fileio: magic double check failed, got %v", magicDbl)
	}

	d := &Dump{}
	if err := binary.Read(br, le, &d.Generation); err != nil {
		return nil, fmt.Errorf("fileio: reading generation: %w", err)
	}
	var mutrunCount int32
	if err := binary.Read(br, le, &mutrunCount); err != nil {
		return nil, fmt.Errorf("fileio: reading mutrun count: %w", err)
	}
	d.MutrunCount = int(mutrunCount)
	if err := binary.Read(br, le, &d.ChromosomeLength); err != nil {
		return nil, fmt.Errorf("fileio: reading chromosome length: %w", err)
	}

	var tag uint32
	if err := binary.Read(br, le, &tag); err != nil {
		return nil, fmt.Errorf("fileio: reading mutation section tag: %w", err)
	}
	if tag != tagMutation {
		return nil, fmt.Errorf("fileio: expected mutation section tag %#x, got %#x", tagMutation, tag)
	}
	var mutationCount int32
	if err := binary.Read(br, le, &mutationCount); err != nil {
		return nil, fmt.Errorf("fileio: reading mutation count: %w", err)
	}
	d.Mutations = make([]DumpMutation, mutationCount)
	for i := range d.Mutations {
		m, err := readMutationRecord(br, le)
		if err != nil {
			return nil, fmt.Errorf("fileio: reading mutation %d: %w", i, err)
		}
		d.Mutations[i] = m
	}
	wideRefs := len(d.Mutations) > 0xFFFF

	if err := binary.Read(br, le, &tag); err != nil {
		return nil, fmt.Errorf("fileio: reading subpopulation section tag: %w", err)
	}
	if tag != tagSubpop {
		return nil, fmt.Errorf("fileio: expected subpopulation section tag %#x, got %#x", tagSubpop, tag)
	}
	var subpopCount int32
	if err := binary.Read(br, le, &subpopCount); err != nil {
		return nil, fmt.Errorf("fileio: reading subpopulation count: %w", err)
	}
	d.Subpopulations = make([]DumpSubpopulation, subpopCount)
	for i := range d.Subpopulations {
		sp, err := readSubpopRecord(br, le, d.Mutations, wideRefs)
		if err != nil {
			return nil, fmt.Errorf("fileio: reading subpopulation %d: %w", i, err)
		}
		d.Subpopulations[i] = sp
	}

	if err := binary.Read(br, le, &tag); err != nil {
		return nil, fmt.Errorf("fileio: reading end tag: %w", err)
	}
	if tag != tagEnd {
		return nil, fmt.Errorf("fileio: expected end tag %#x, got %#x", tagEnd, tag)
	}

	return d, nil
}

func readMutationRecord(br *bufio.Reader, le binary.ByteOrder) (DumpMutation, error) {
	var m DumpMutation
	var stacking int32
	fields := []any{
		&m.ID, &m.Position, &m.SelectionCoeff, &m.TypeID, &m.DominanceCoeff,
		&stacking, &m.OriginSubpopID, &m.OriginGeneration, &m.Nucleotide,
	}
	for _, f := range fields {
		if err := binary.Read(br, le, f); err != nil {
			return DumpMutation{}, err
		}
	}
	m.Stacking = mutation.StackPolicy(stacking)
	return m, nil
}

func readSubpopRecord(br *bufio.Reader, le binary.ByteOrder, mutations []DumpMutation, wideRefs bool) (DumpSubpopulation, error) {
	var sp DumpSubpopulation
	if err := binary.Read(br, le, &sp.ID); err != nil {
		return sp, err
	}
	var count int32
	if err := binary.Read(br, le, &count); err != nil {
		return sp, err
	}
	sp.Individuals = make([]DumpIndividual, count)
	for i := range sp.Individuals {
		ind, err := readIndividualRecord(br, le, mutations, wideRefs)
		if err != nil {
			return sp, err
		}
		sp.Individuals[i] = ind
	}
	return sp, nil
}

func readIndividualRecord(br *bufio.Reader, le binary.ByteOrder, mutations []DumpMutation, wideRefs bool) (DumpIndividual, error) {
	var ind DumpIndividual
	var sex, spatialDims int32
	fields := []any{
		&ind.PedigreeID, &ind.Age, &sex,
		&ind.Coordinates[0], &ind.Coordinates[1], &ind.Coordinates[2],
		&spatialDims, &ind.Fitness,
	}
	for _, f := range fields {
		if err := binary.Read(br, le, f); err != nil {
			return ind, err
		}
	}
	ind.Sex = genome.Sex(sex)
	ind.SpatialDims = int(spatialDims)

	var err error
	ind.Genome1Null, ind.Genome1MutationIDs, err = readGenomeRecord(br, le, mutations, wideRefs)
	if err != nil {
		return ind, err
	}
	ind.Genome2Null, ind.Genome2MutationIDs, err = readGenomeRecord(br, le, mutations, wideRefs)
	if err != nil {
		return ind, err
	}
	return ind, nil
}

func readGenomeRecord(br *bufio.Reader, le binary.ByteOrder, mutations []DumpMutation, wideRefs bool) (bool, []uint64, error) {
	// Peek the next 4 bytes: either the null-genome tag, or a mutation count that
	// (by construction) never collides with it, since a SLiM binary genome can
	// never carry 0xFFFF1000 mutations.
	peek, err := br.Peek(4)
	if err != nil {
		return false, nil, err
	}
	marker := le.Uint32(peek)
	if marker == tagNullGenome {
		br.Discard(4)
		return true, nil, nil
	}
	var count int32
	if err := binary.Read(br, le, &count); err != nil {
		return false, nil, err
	}
	ids := make([]uint64, count)
	for i := range ids {
		var local int
		if wideRefs {
			var v uint32
			if err := binary.Read(br, le, &v); err != nil {
				return false, nil, err
			}
			local = int(v)
		} else {
			var v uint16
			if err := binary.Read(br, le, &v); err != nil {
				return false, nil, err
			}
			local = int(v)
		}
		if local < 0 || local >= len(mutations) {
			return false, nil, fmt.Errorf("genome references out-of-range mutation local index %d", local)
		}
		ids[i] = mutations[local].ID
	}
	return false, ids, nil
}
