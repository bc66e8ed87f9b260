package cooccur

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
)

// ppmiFlushThreshold is the soft in-memory buffer size (bytes) at which
// PpmiPass flushes its accumulated output lines.
const ppmiFlushThreshold = 8500

// PpmiConfig carries the marginals and totals a PpmiPass needs: the two
// process-wide totals (from the Ingestor) and, per token id, the n_u/N_u
// pair built by BuildTokenStats from the Merger's pair_occurrences and
// the Ingestor's document_occurrences.
type PpmiConfig struct {
	TotalPairs     uint64
	TotalDocuments uint32
	Stats          []TokenStats
}

// PpmiPass streams a TF or DF output file and emits PPMI lines.
type PpmiPass struct {
	Config PpmiConfig
}

// RunTF streams r (a TF file: "u v tf") and writes "u v ln(x)" lines to w
// using the TF-based marginals.
func (p *PpmiPass) RunTF(r io.Reader, w io.Writer) error {
	return p.run(r, w, func(u, v int32, c uint64) (float64, bool) {
		nu, nv := p.Config.Stats[u].PairOccurrences, p.Config.Stats[v].PairOccurrences
		if nu == 0 || nv == 0 {
			return 0, false
		}
		return (float64(p.Config.TotalPairs) / float64(nu)) / (float64(nv) / float64(c)), true
	})
}

// RunDF streams r (a DF file: "u v df") and writes "u v ln(x)" lines to w
// using the document-frequency marginals.
func (p *PpmiPass) RunDF(r io.Reader, w io.Writer) error {
	return p.run(r, w, func(u, v int32, c uint64) (float64, bool) {
		Nu, Nv := p.Config.Stats[u].DocumentOccurrences, p.Config.Stats[v].DocumentOccurrences
		if Nu == 0 || Nv == 0 {
			return 0, false
		}
		return (float64(p.Config.TotalDocuments) / float64(Nu)) / (float64(Nv) / float64(c)), true
	})
}

func (p *PpmiPass) run(r io.Reader, w io.Writer, computeX func(u, v int32, c uint64) (float64, bool)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var out strings.Builder
	flush := func() error {
		if out.Len() == 0 {
			return nil
		}
		if _, err := io.WriteString(w, out.String()); err != nil {
			return E(IO, err, "write ppmi output")
		}
		out.Reset()
		return nil
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return E(Parse, nil, "malformed count line %q", line)
		}
		u64, e1 := strconv.ParseInt(fields[0], 10, 32)
		v64, e2 := strconv.ParseInt(fields[1], 10, 32)
		c, e3 := strconv.ParseUint(fields[2], 10, 64)
		if e1 != nil || e2 != nil || e3 != nil {
			return E(Parse, nil, "malformed count line %q", line)
		}
		u, v := int32(u64), int32(v64)
		if u > v {
			continue
		}
		x, ok := computeX(u, v, c)
		if !ok || x <= 1 {
			continue
		}
		ppmi := math.Log(x)

		out.WriteString(strconv.FormatInt(int64(u), 10))
		out.WriteByte(' ')
		out.WriteString(strconv.FormatInt(int64(v), 10))
		out.WriteByte(' ')
		out.WriteString(strconv.FormatFloat(ppmi, 'g', -1, 64))
		out.WriteByte('\n')
		if out.Len() >= ppmiFlushThreshold {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return E(IO, err, "read count file")
	}
	if err := flush(); err != nil {
		return err
	}
	log.Debug.Printf("ppmi: pass complete")
	return nil
}
