package fileio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
)

// TextVersion is the SLiM text format version this package writes and the only
// version it accepts on read; spec §4.6 documents supported text versions 1-6
// with version-dependent optional columns (age, pedigree). This implementation
// only round-trips its own version, the subset actually exercised by round-trip
// law 8; older versions are rejected with a precise error rather than silently
// misparsed, matching spec §4.6's "on format error the reader aborts with a precise
// site-and-reason message" (stated for the binary format, applied here too for
// consistency).
const TextVersion = 6

// WriteText renders d in the SLiM text format: a `#OUT` header line, a `Version:`
// line, then line-oriented Populations/Mutations/Individuals/Genomes sections, per
// spec §4.6.
func WriteText(w io.Writer, d *Dump) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s: %d\n", slimTextMagic, d.Generation)
	fmt.Fprintf(bw, "Version: %d\n", TextVersion)
	fmt.Fprintf(bw, "MutrunCount: %d\n", d.MutrunCount)
	fmt.Fprintf(bw, "ChromosomeLength: %d\n", d.ChromosomeLength)

	fmt.Fprintln(bw, "Populations:")
	for _, sp := range d.Subpopulations {
		fmt.Fprintf(bw, "p%d %d\n", sp.ID, len(sp.Individuals))
	}

	fmt.Fprintln(bw, "Mutations:")
	for _, m := range d.Mutations {
		fmt.Fprintf(bw, "%d %d %g %d %g %d %d %d %d\n",
			m.ID, m.Position, m.SelectionCoeff, m.TypeID, m.DominanceCoeff,
			int(m.Stacking), m.OriginSubpopID, m.OriginGeneration, m.Nucleotide)
	}

	fmt.Fprintln(bw, "Individuals:")
	for _, sp := range d.Subpopulations {
		for _, ind := range sp.Individuals {
			fmt.Fprintf(bw, "p%d %d %d %d %g %g %g %d %g\n",
				sp.ID, ind.PedigreeID, ind.Age, int(ind.Sex),
				ind.Coordinates[0], ind.Coordinates[1], ind.Coordinates[2],
				ind.SpatialDims, ind.Fitness)
		}
	}

	fmt.Fprintln(bw, "Genomes:")
	for _, sp := range d.Subpopulations {
		for _, ind := range sp.Individuals {
			writeGenomeLine(bw, ind.PedigreeID, 1, ind.Genome1Null, ind.Genome1MutationIDs)
			writeGenomeLine(bw, ind.PedigreeID, 2, ind.Genome2Null, ind.Genome2MutationIDs)
		}
	}

	return bw.Flush()
}

func writeGenomeLine(bw *bufio.Writer, pedigreeID int64, which int, isNull bool, ids []uint64) {
	nullFlag := 0
	if isNull {
		nullFlag = 1
	}
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = strconv.FormatUint(id, 10)
	}
	fmt.Fprintf(bw, "%d %d %d %s\n", pedigreeID, which, nullFlag, strings.Join(idStrs, ","))
}

// ReadText parses a SLiM text dump written by WriteText.
func ReadText(r io.Reader) (*Dump, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("fileio: empty SLiM text input")
	}
	header := sc.Text()
	if !strings.HasPrefix(header, slimTextMagic) {
		return nil, fmt.Errorf("fileio: SLiM text file missing %q header, got %q", slimTextMagic, header)
	}
	gen, err := parseColonInt(header, slimTextMagic+":")
	if err != nil {
		return nil, fmt.Errorf("fileio: parsing generation from header %q: %w", header, err)
	}

	d := &Dump{Generation: gen}
	subpopByID := make(map[int32]*DumpSubpopulation)
	indexByPedigree := make(map[int64]*DumpIndividual)
	order := make(map[int32][]int64) // subpop id -> pedigree ids, in file order

	section := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "Version:"):
			v, err := parseColonInt(line, "Version:")
			if err != nil {
				return nil, fmt.Errorf("fileio: parsing version: %w", err)
			}
			if v != TextVersion {
				return nil, fmt.Errorf("fileio: unsupported SLiM text version %d (this reader supports %d)", v, TextVersion)
			}
			continue
		case strings.HasPrefix(line, "MutrunCount:"):
			v, err := parseColonInt(line, "MutrunCount:")
			if err != nil {
				return nil, fmt.Errorf("fileio: parsing MutrunCount: %w", err)
			}
			d.MutrunCount = int(v)
			continue
		case strings.HasPrefix(line, "ChromosomeLength:"):
			v, err := parseColonInt(line, "ChromosomeLength:")
			if err != nil {
				return nil, fmt.Errorf("fileio: parsing ChromosomeLength: %w", err)
			}
			d.ChromosomeLength = v
			continue
		case strings.HasSuffix(line, ":") && !strings.ContainsAny(line[:1], "p0123456789-"):
			section = strings.TrimSuffix(line, ":")
			continue
		}

		fields := strings.Fields(line)
		switch section {
		case "Populations":
			id, size, err := parsePopulationLine(fields)
			if err != nil {
				return nil, err
			}
			sp := &DumpSubpopulation{ID: id, Individuals: make([]DumpIndividual, 0, size)}
			subpopByID[id] = sp
			d.Subpopulations = append(d.Subpopulations, *sp)
		case "Mutations":
			m, err := parseMutationLine(fields)
			if err != nil {
				return nil, err
			}
			d.Mutations = append(d.Mutations, m)
		case "Individuals":
			spID, ind, err := parseIndividualLine(fields)
			if err != nil {
				return nil, err
			}
			order[spID] = append(order[spID], ind.PedigreeID)
			indexByPedigree[ind.PedigreeID] = ind
		case "Genomes":
			if err := parseGenomeLine(fields, indexByPedigree); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("fileio: data line %q outside any known section", line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("fileio: reading SLiM text: %w", err)
	}

	// Re-attach filled-in individuals to their subpopulations, preserving file order.
	for i := range d.Subpopulations {
		sp := &d.Subpopulations[i]
		sp.Individuals = sp.Individuals[:0]
	}
	for i := range d.Subpopulations {
		sp := &d.Subpopulations[i]
		for _, pedID := range order[sp.ID] {
			sp.Individuals = append(sp.Individuals, *indexByPedigree[pedID])
		}
	}

	return d, nil
}

func parseColonInt(line, prefix string) (int64, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	return strconv.ParseInt(rest, 10, 64)
}

func parsePopulationLine(fields []string) (int32, int, error) {
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("fileio: malformed population line, want 2 fields, got %d", len(fields))
	}
	id, err := parseSubpopID(fields[0])
	if err != nil {
		return 0, 0, err
	}
	size, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("fileio: population size: %w", err)
	}
	return id, size, nil
}

func parseSubpopID(field string) (int32, error) {
	if !strings.HasPrefix(field, "p") {
		return 0, fmt.Errorf("fileio: subpopulation id %q missing 'p' prefix", field)
	}
	v, err := strconv.ParseInt(field[1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("fileio: subpopulation id %q: %w", field, err)
	}
	return int32(v), nil
}

func parseMutationLine(fields []string) (DumpMutation, error) {
	if len(fields) != 9 {
		return DumpMutation{}, fmt.Errorf("fileio: malformed mutation line, want 9 fields, got %d", len(fields))
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: mutation id: %w", err)
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: mutation position: %w", err)
	}
	sel, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: selection coefficient: %w", err)
	}
	typeID, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: mutation type id: %w", err)
	}
	dom, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: dominance coefficient: %w", err)
	}
	stacking, err := strconv.ParseInt(fields[5], 10, 32)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: stacking policy: %w", err)
	}
	originSubpop, err := strconv.ParseInt(fields[6], 10, 32)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: origin subpop id: %w", err)
	}
	originGen, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: origin generation: %w", err)
	}
	nucleotide, err := strconv.ParseInt(fields[8], 10, 8)
	if err != nil {
		return DumpMutation{}, fmt.Errorf("fileio: nucleotide: %w", err)
	}
	return DumpMutation{
		ID:               id,
		Position:         pos,
		SelectionCoeff:   sel,
		TypeID:           int32(typeID),
		DominanceCoeff:   dom,
		Stacking:         mutation.StackPolicy(stacking),
		OriginSubpopID:   int32(originSubpop),
		OriginGeneration: originGen,
		Nucleotide:       int8(nucleotide),
	}, nil
}

func parseIndividualLine(fields []string) (int32, *DumpIndividual, error) {
	if len(fields) != 9 {
		return 0, nil, fmt.Errorf("fileio: malformed individual line, want 9 fields, got %d", len(fields))
	}
	spID, err := parseSubpopID(fields[0])
	if err != nil {
		return 0, nil, err
	}
	pedID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: pedigree id: %w", err)
	}
	age, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: age: %w", err)
	}
	sex, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: sex: %w", err)
	}
	x, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: x coordinate: %w", err)
	}
	y, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: y coordinate: %w", err)
	}
	z, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: z coordinate: %w", err)
	}
	dims, err := strconv.Atoi(fields[7])
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: spatial dims: %w", err)
	}
	fitness, err := strconv.ParseFloat(fields[8], 64)
	if err != nil {
		return 0, nil, fmt.Errorf("fileio: fitness: %w", err)
	}
	return spID, &DumpIndividual{
		PedigreeID:  pedID,
		Age:         int32(age),
		Sex:         genome.Sex(sex),
		Coordinates: [3]float64{x, y, z},
		SpatialDims: dims,
		Fitness:     fitness,
	}, nil
}

func parseGenomeLine(fields []string, byPedigree map[int64]*DumpIndividual) error {
	if len(fields) != 4 {
		return fmt.Errorf("fileio: malformed genome line, want 4 fields, got %d", len(fields))
	}
	pedID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("fileio: genome pedigree id: %w", err)
	}
	which, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("fileio: genome number: %w", err)
	}
	nullFlag, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("fileio: genome null flag: %w", err)
	}
	var ids []uint64
	if fields[3] != "" {
		for _, s := range strings.Split(fields[3], ",") {
			id, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return fmt.Errorf("fileio: genome mutation id %q: %w", s, err)
			}
			ids = append(ids, id)
		}
	}
	ind, ok := byPedigree[pedID]
	if !ok {
		return fmt.Errorf("fileio: genome line references unknown pedigree id %d", pedID)
	}
	switch which {
	case 1:
		ind.Genome1Null = nullFlag == 1
		ind.Genome1MutationIDs = ids
	case 2:
		ind.Genome2Null = nullFlag == 1
		ind.Genome2MutationIDs = ids
	default:
		return fmt.Errorf("fileio: genome number must be 1 or 2, got %d", which)
	}
	return nil
}
