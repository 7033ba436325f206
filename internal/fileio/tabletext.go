package fileio

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MesserLab/slimgo/internal/treeseq"
)

// Table-collection text files, named after tskit's own per-table text format
// (original_source/treerec/tskit/text_input.h's node/edge/site/mutation/individual/
// population/provenance loaders). No migration file is written: spec §4.6 describes
// "seven named files", and this package never models a migration table (see
// DESIGN.md), so the seven are exactly these.
const (
	nodesFileName       = "nodes.txt"
	edgesFileName       = "edges.txt"
	sitesFileName       = "sites.txt"
	mutationsFileName   = "mutations.txt"
	individualsFileName = "individuals.txt"
	populationsFileName = "populations.txt"
	provenancesFileName = "provenances.txt"
	referenceSeqFile    = "ReferenceSequence.txt"
)

// WriteTableText writes tc as a directory of seven tab-separated text files at dir,
// creating dir if necessary. If ancestralSequence is non-nil, it is also written as
// hex-encoded bytes to ReferenceSequence.txt, per spec §4.6.
func WriteTableText(dir string, tc *treeseq.TableCollection, ancestralSequence []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fileio: creating table-collection text directory %s: %w", dir, err)
	}

	if err := writeLines(filepath.Join(dir, nodesFileName), "is_sample\ttime\tpopulation\tindividual\tmetadata", len(tc.Nodes), func(i int, w *bufio.Writer) {
		n := tc.Nodes[i]
		isSample := 0
		if n.Flags&treeseq.NodeFlagSample != 0 {
			isSample = 1
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", isSample, formatFloat(n.Time), n.Population, n.Individual, hex.EncodeToString(n.Metadata))
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, edgesFileName), "left\tright\tparent\tchild", len(tc.Edges), func(i int, w *bufio.Writer) {
		e := tc.Edges[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", formatFloat(e.Left), formatFloat(e.Right), e.Parent, e.Child)
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, sitesFileName), "position\tancestral_state", len(tc.Sites), func(i int, w *bufio.Writer) {
		s := tc.Sites[i]
		fmt.Fprintf(w, "%s\t%s\n", formatFloat(s.Position), string(s.AncestralState))
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, mutationsFileName), "site\tnode\tderived_state\tparent\ttime\tmetadata", len(tc.Mutations), func(i int, w *bufio.Writer) {
		m := tc.Mutations[i]
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n", m.Site, m.Node, string(m.DerivedState), m.Parent, formatFloat(m.Time), hex.EncodeToString(m.Metadata))
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, individualsFileName), "flags\tlocation\tparents", len(tc.Individuals), func(i int, w *bufio.Writer) {
		ind := tc.Individuals[i]
		fmt.Fprintf(w, "%d\t%s\t%s\n", ind.Flags, joinFloats(ind.Location), joinInt64s(ind.Parents))
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, populationsFileName), "metadata", len(tc.Populations), func(i int, w *bufio.Writer) {
		fmt.Fprintf(w, "%s\n", hex.EncodeToString(tc.Populations[i].Metadata))
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, provenancesFileName), "timestamp\trecord", len(tc.Provenances), func(i int, w *bufio.Writer) {
		p := tc.Provenances[i]
		fmt.Fprintf(w, "%s\t%s\n", p.Timestamp, p.Record)
	}); err != nil {
		return err
	}

	if ancestralSequence != nil {
		f, err := os.Create(filepath.Join(dir, referenceSeqFile))
		if err != nil {
			return fmt.Errorf("fileio: creating %s: %w", referenceSeqFile, err)
		}
		defer f.Close()
		if _, err := f.WriteString(hex.EncodeToString(ancestralSequence)); err != nil {
			return fmt.Errorf("fileio: writing %s: %w", referenceSeqFile, err)
		}
	}

	return nil
}

func writeLines(path, header string, n int, row func(i int, w *bufio.Writer)) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fileio: creating %s: %w", path, err)
	}
	defer f.Close()
	return writeLinesTo(f, header, n, row)
}

// writeLinesTo renders header-then-rows tab-separated text to w, shared by the
// text-directory writer (a real *os.File) and the kastore binary writer (an
// in-memory blob builder).
func writeLinesTo(w io.Writer, header string, n int, row func(i int, w *bufio.Writer)) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, header)
	for i := 0; i < n; i++ {
		row(i, bw)
	}
	return bw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, ",")
}

func joinInt64s(is []int64) string {
	parts := make([]string, len(is))
	for i, v := range is {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

// ReadTableText loads a table-collection text directory written by WriteTableText.
// ancestralSequence is nil if dir has no ReferenceSequence.txt.
func ReadTableText(dir string) (*treeseq.TableCollection, []byte, error) {
	tc := &treeseq.TableCollection{}

	if err := readLines(filepath.Join(dir, nodesFileName), func(fields []string) error {
		n, err := parseNodeFields(fields)
		if err == nil {
			tc.Nodes = append(tc.Nodes, n)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", nodesFileName, err)
	}

	if err := readLines(filepath.Join(dir, edgesFileName), func(fields []string) error {
		e, err := parseEdgeFields(fields)
		if err == nil {
			tc.Edges = append(tc.Edges, e)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", edgesFileName, err)
	}

	if err := readLines(filepath.Join(dir, sitesFileName), func(fields []string) error {
		s, err := parseSiteFields(fields)
		if err == nil {
			tc.Sites = append(tc.Sites, s)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", sitesFileName, err)
	}

	if err := readLines(filepath.Join(dir, mutationsFileName), func(fields []string) error {
		m, err := parseMutationFields(fields)
		if err == nil {
			tc.Mutations = append(tc.Mutations, m)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", mutationsFileName, err)
	}

	if err := readLines(filepath.Join(dir, individualsFileName), func(fields []string) error {
		ind, err := parseIndividualRowFields(fields)
		if err == nil {
			tc.Individuals = append(tc.Individuals, ind)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", individualsFileName, err)
	}

	if err := readLines(filepath.Join(dir, populationsFileName), func(fields []string) error {
		meta, err := hex.DecodeString(fields[0])
		if err != nil {
			return err
		}
		tc.Populations = append(tc.Populations, treeseq.PopulationRow{Metadata: meta})
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", populationsFileName, err)
	}

	if err := readLines(filepath.Join(dir, provenancesFileName), func(fields []string) error {
		record := ""
		if len(fields) > 1 {
			record = strings.Join(fields[1:], "\t")
		}
		tc.Provenances = append(tc.Provenances, treeseq.Provenance{Timestamp: fields[0], Record: record})
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", provenancesFileName, err)
	}

	var ancestralSequence []byte
	if data, err := os.ReadFile(filepath.Join(dir, referenceSeqFile)); err == nil {
		ancestralSequence, err = hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, nil, fmt.Errorf("fileio: decoding %s: %w", referenceSeqFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("fileio: reading %s: %w", referenceSeqFile, err)
	}

	return tc, ancestralSequence, nil
}

// parseNodeFields, parseEdgeFields, parseSiteFields, parseMutationFields, and
// parseIndividualRowFields implement the row grammar each table's WriteTableText/
// WriteTableBinary case writes, shared by both readers (ReadTableText parses them
// from a directory of files, ReadTableBinary from kastore blobs holding identical
// text).
func parseNodeFields(fields []string) (treeseq.Node, error) {
	isSample, err := strconv.Atoi(fields[0])
	if err != nil {
		return treeseq.Node{}, err
	}
	t, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return treeseq.Node{}, err
	}
	pop, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return treeseq.Node{}, err
	}
	indiv, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return treeseq.Node{}, err
	}
	meta, err := hex.DecodeString(fields[4])
	if err != nil {
		return treeseq.Node{}, err
	}
	flags := treeseq.NodeFlag(0)
	if isSample == 1 {
		flags |= treeseq.NodeFlagSample
	}
	return treeseq.Node{Flags: flags, Time: t, Population: int32(pop), Individual: int32(indiv), Metadata: meta}, nil
}

func parseEdgeFields(fields []string) (treeseq.Edge, error) {
	left, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return treeseq.Edge{}, err
	}
	right, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return treeseq.Edge{}, err
	}
	parent, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return treeseq.Edge{}, err
	}
	child, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return treeseq.Edge{}, err
	}
	return treeseq.Edge{Left: left, Right: right, Parent: parent, Child: child}, nil
}

func parseSiteFields(fields []string) (treeseq.Site, error) {
	pos, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return treeseq.Site{}, err
	}
	as := ""
	if len(fields) > 1 {
		as = fields[1]
	}
	return treeseq.Site{Position: pos, AncestralState: []byte(as)}, nil
}

func parseMutationFields(fields []string) (treeseq.Mutation, error) {
	site, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return treeseq.Mutation{}, err
	}
	node, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return treeseq.Mutation{}, err
	}
	derived := fields[2]
	parent, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return treeseq.Mutation{}, err
	}
	t, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return treeseq.Mutation{}, err
	}
	meta, err := hex.DecodeString(fields[5])
	if err != nil {
		return treeseq.Mutation{}, err
	}
	return treeseq.Mutation{Site: site, Node: node, Parent: parent, Time: t, DerivedState: []byte(derived), Metadata: meta}, nil
}

func parseIndividualRowFields(fields []string) (treeseq.IndividualRow, error) {
	flags, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return treeseq.IndividualRow{}, err
	}
	loc, err := parseFloatList(fields[1])
	if err != nil {
		return treeseq.IndividualRow{}, err
	}
	parents, err := parseInt64List(fields[2])
	if err != nil {
		return treeseq.IndividualRow{}, err
	}
	return treeseq.IndividualRow{Flags: uint32(flags), Location: loc, Parents: parents}, nil
}

func readLines(path string, row func(fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return readLinesFrom(f, row)
}

// readLinesFrom parses header-then-rows tab-separated text from r, shared by the
// text-directory reader (a real *os.File) and the kastore binary reader (a blob held
// in memory as a bytes.Reader).
func readLinesFrom(r io.Reader, row func(fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		return nil // header-only (or empty) blob: no rows
	}
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := row(strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	return sc.Err()
}

func parseFloatList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInt64List(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
