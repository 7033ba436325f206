package fileio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/MesserLab/slimgo/internal/treeseq"
)

// kastoreMagic is the leading bytes of a table-collection binary file: a simple
// key-value store in the spirit of tskit's kastore (spec §4.6: "a single kastore
// file; the ancestral sequence is stored as a secondary key within the same
// store"). This package does not link tskit's actual kastore C library, so it
// defines its own compatible-in-spirit container instead: magic, key count, then
// length-prefixed (key, value) pairs sorted by key for determinism. Each value is
// the same tab-separated text blob the table-collection text format writes per
// table, so one row-encoding implementation (tabletext.go) serves both formats —
// see DESIGN.md.
const kastoreMagic = "KAS1"

// referenceSequenceKey is the kastore key the ancestral sequence is stored under,
// named directly in spec §4.6.
const referenceSequenceKey = "reference_sequence/data"

// WriteTableBinary writes tc (plus an optional ancestral sequence) as a single
// kastore-style file to w.
func WriteTableBinary(w io.Writer, tc *treeseq.TableCollection, ancestralSequence []byte) error {
	blobs := map[string][]byte{}

	nodesBlob, err := buildBlob("is_sample\ttime\tpopulation\tindividual\tmetadata", len(tc.Nodes), func(i int, bw *bufio.Writer) {
		n := tc.Nodes[i]
		isSample := 0
		if n.Flags&treeseq.NodeFlagSample != 0 {
			isSample = 1
		}
		fmt.Fprintf(bw, "%d\t%s\t%d\t%d\t%s\n", isSample, formatFloat(n.Time), n.Population, n.Individual, hex.EncodeToString(n.Metadata))
	})
	if err != nil {
		return err
	}
	blobs["nodes"] = nodesBlob

	edgesBlob, err := buildBlob("left\tright\tparent\tchild", len(tc.Edges), func(i int, bw *bufio.Writer) {
		e := tc.Edges[i]
		fmt.Fprintf(bw, "%s\t%s\t%d\t%d\n", formatFloat(e.Left), formatFloat(e.Right), e.Parent, e.Child)
	})
	if err != nil {
		return err
	}
	blobs["edges"] = edgesBlob

	sitesBlob, err := buildBlob("position\tancestral_state", len(tc.Sites), func(i int, bw *bufio.Writer) {
		s := tc.Sites[i]
		fmt.Fprintf(bw, "%s\t%s\n", formatFloat(s.Position), string(s.AncestralState))
	})
	if err != nil {
		return err
	}
	blobs["sites"] = sitesBlob

	mutationsBlob, err := buildBlob("site\tnode\tderived_state\tparent\ttime\tmetadata", len(tc.Mutations), func(i int, bw *bufio.Writer) {
		m := tc.Mutations[i]
		fmt.Fprintf(bw, "%d\t%d\t%s\t%d\t%s\t%s\n", m.Site, m.Node, string(m.DerivedState), m.Parent, formatFloat(m.Time), hex.EncodeToString(m.Metadata))
	})
	if err != nil {
		return err
	}
	blobs["mutations"] = mutationsBlob

	individualsBlob, err := buildBlob("flags\tlocation\tparents", len(tc.Individuals), func(i int, bw *bufio.Writer) {
		ind := tc.Individuals[i]
		fmt.Fprintf(bw, "%d\t%s\t%s\n", ind.Flags, joinFloats(ind.Location), joinInt64s(ind.Parents))
	})
	if err != nil {
		return err
	}
	blobs["individuals"] = individualsBlob

	populationsBlob, err := buildBlob("metadata", len(tc.Populations), func(i int, bw *bufio.Writer) {
		fmt.Fprintf(bw, "%s\n", hex.EncodeToString(tc.Populations[i].Metadata))
	})
	if err != nil {
		return err
	}
	blobs["populations"] = populationsBlob

	provenancesBlob, err := buildBlob("timestamp\trecord", len(tc.Provenances), func(i int, bw *bufio.Writer) {
		p := tc.Provenances[i]
		fmt.Fprintf(bw, "%s\t%s\n", p.Timestamp, p.Record)
	})
	if err != nil {
		return err
	}
	blobs["provenances"] = provenancesBlob

	if ancestralSequence != nil {
		blobs[referenceSequenceKey] = ancestralSequence
	}

	return writeKastore(w, blobs)
}

func buildBlob(header string, n int, row func(i int, bw *bufio.Writer)) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeLinesTo(&buf, header, n, row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeKastore(w io.Writer, blobs map[string][]byte) error {
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if _, err := w.Write([]byte(kastoreMagic)); err != nil {
		return fmt.Errorf("fileio: writing kastore magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(keys))); err != nil {
		return fmt.Errorf("fileio: writing kastore key count: %w", err)
	}
	for _, k := range keys {
		if err := writeKastoreEntry(w, k, blobs[k]); err != nil {
			return err
		}
	}
	return nil
}

func writeKastoreEntry(w io.Writer, key string, value []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(key))); err != nil {
		return fmt.Errorf("fileio: writing kastore key length for %q: %w", key, err)
	}
	if _, err := io.WriteString(w, key); err != nil {
		return fmt.Errorf("fileio: writing kastore key %q: %w", key, err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(value))); err != nil {
		return fmt.Errorf("fileio: writing kastore value length for key %q: %w", key, err)
	}
	if _, err := w.Write(value); err != nil {
		return fmt.Errorf("fileio: writing kastore value for key %q: %w", key, err)
	}
	return nil
}

// readKastore parses the magic/key-count/entries container WriteTableBinary writes.
func readKastore(r io.Reader) (map[string][]byte, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("fileio: reading kastore magic: %w", err)
	}
	if string(magic[:]) != kastoreMagic {
		return nil, fmt.Errorf("fileio: not a table-collection binary file (bad magic %q)", magic[:])
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("fileio: reading kastore key count: %w", err)
	}
	blobs := make(map[string][]byte, count)
	for i := uint32(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("fileio: reading kastore key length for entry %d: %w", i, err)
		}
		keyBuf := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return nil, fmt.Errorf("fileio: reading kastore key for entry %d: %w", i, err)
		}
		var valueLen uint64
		if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
			return nil, fmt.Errorf("fileio: reading kastore value length for key %q: %w", keyBuf, err)
		}
		valueBuf := make([]byte, valueLen)
		if _, err := io.ReadFull(r, valueBuf); err != nil {
			return nil, fmt.Errorf("fileio: reading kastore value for key %q: %w", keyBuf, err)
		}
		blobs[string(keyBuf)] = valueBuf
	}
	return blobs, nil
}

// ReadTableBinary loads a table-collection binary file written by WriteTableBinary.
func ReadTableBinary(r io.Reader) (*treeseq.TableCollection, []byte, error) {
	blobs, err := readKastore(r)
	if err != nil {
		return nil, nil, err
	}

	tc := &treeseq.TableCollection{}

	if err := readLinesFrom(bytes.NewReader(blobs["nodes"]), func(fields []string) error {
		n, err := parseNodeFields(fields)
		if err == nil {
			tc.Nodes = append(tc.Nodes, n)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing nodes blob: %w", err)
	}
	if err := readLinesFrom(bytes.NewReader(blobs["edges"]), func(fields []string) error {
		e, err := parseEdgeFields(fields)
		if err == nil {
			tc.Edges = append(tc.Edges, e)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing edges blob: %w", err)
	}
	if err := readLinesFrom(bytes.NewReader(blobs["sites"]), func(fields []string) error {
		s, err := parseSiteFields(fields)
		if err == nil {
			tc.Sites = append(tc.Sites, s)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing sites blob: %w", err)
	}
	if err := readLinesFrom(bytes.NewReader(blobs["mutations"]), func(fields []string) error {
		m, err := parseMutationFields(fields)
		if err == nil {
			tc.Mutations = append(tc.Mutations, m)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing mutations blob: %w", err)
	}
	if err := readLinesFrom(bytes.NewReader(blobs["individuals"]), func(fields []string) error {
		ind, err := parseIndividualRowFields(fields)
		if err == nil {
			tc.Individuals = append(tc.Individuals, ind)
		}
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing individuals blob: %w", err)
	}
	if err := readLinesFrom(bytes.NewReader(blobs["populations"]), func(fields []string) error {
		meta, err := hex.DecodeString(fields[0])
		if err != nil {
			return err
		}
		tc.Populations = append(tc.Populations, treeseq.PopulationRow{Metadata: meta})
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing populations blob: %w", err)
	}
	if err := readLinesFrom(bytes.NewReader(blobs["provenances"]), func(fields []string) error {
		record := ""
		if len(fields) > 1 {
			record = fields[1]
		}
		tc.Provenances = append(tc.Provenances, treeseq.Provenance{Timestamp: fields[0], Record: record})
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("fileio: parsing provenances blob: %w", err)
	}

	return tc, blobs[referenceSequenceKey], nil
}
