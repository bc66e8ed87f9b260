package cooccur

import (
	"io"
	"strconv"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
	"v.io/x/lib/vlog"
)

// mergeLeaf wraps one Batch participating in the k-way merge, caching its
// current front Cell so tree comparisons never need to touch the file.
// Grounded on cmd/bio-bam-sort/sorter's mergeLeaf/internalMergeShards,
// generalized from "smallest record wins" to "smallest-keyed cells across
// batches are combined", since distinct batches can each contribute a
// cell for the same first_id.
type mergeLeaf struct {
	seq   int
	batch *Batch
	front Cell
	done  bool
}

func (l *mergeLeaf) Compare(other llrb.Comparable) int {
	o := other.(*mergeLeaf)
	if l.front.FirstID != o.front.FirstID {
		if l.front.FirstID < o.front.FirstID {
			return -1
		}
		return 1
	}
	return l.seq - o.seq
}

// newMergeLeaf opens batch (subject to arbiter), reads its first cell,
// and returns nil (no error) if the batch is empty.
func newMergeLeaf(seq int, batch *Batch, arbiter *FileHandleArbiter) (*mergeLeaf, error) {
	l := &mergeLeaf{seq: seq, batch: batch}
	if err := refillLeaf(l, arbiter); err != nil {
		return nil, err
	}
	if l.done {
		return nil, nil
	}
	return l, nil
}

// refillLeaf advances l to its batch's next cell, reopening the batch
// (resuming at its saved offset) if a prior round closed it under
// arbiter pressure, and voluntarily closing it again if the arbiter is
// now at capacity.
func refillLeaf(l *mergeLeaf, arbiter *FileHandleArbiter) error {
	if err := l.batch.OpenForRead(); err != nil {
		return err
	}
	cell, ok, err := l.batch.ReadCell()
	if err != nil {
		return err
	}
	if !ok {
		l.done = true
		return l.batch.CloseForRead()
	}
	l.front = cell
	if arbiter.AtCap() {
		return l.batch.CloseForRead()
	}
	return nil
}

// combineCells merges two cells that share the same FirstID: matching
// SecondIDs have their tf/df summed, and the rest are interleaved in
// ascending SecondID order. Both inputs, and the result, satisfy the
// strictly-ascending-SecondID invariant.
func combineCells(a, b Cell) Cell {
	out := make([]Record, 0, len(a.Records)+len(b.Records))
	i, j := 0, 0
	for i < len(a.Records) && j < len(b.Records) {
		ra, rb := a.Records[i], b.Records[j]
		switch {
		case ra.SecondID == rb.SecondID:
			out = append(out, Record{SecondID: ra.SecondID, TF: ra.TF + rb.TF, DF: ra.DF + rb.DF})
			i++
			j++
		case ra.SecondID < rb.SecondID:
			out = append(out, ra)
			i++
		default:
			out = append(out, rb)
			j++
		}
	}
	out = append(out, a.Records[i:]...)
	out = append(out, b.Records[j:]...)
	return Cell{FirstID: a.FirstID, Records: out}
}

// MergeConfig controls the Merger's retention thresholds and output
// destinations. A nil writer disables emission to that file, but
// pair_occurrences accounting (needed for TF PPMI) is accumulated
// regardless, since enabling a PPMI output implies the underlying TF/DF
// computation even when the raw TF/DF file itself is not requested.
type MergeConfig struct {
	MinTF    uint64
	MinDF    uint32
	TFWriter io.Writer
	DFWriter io.Writer
}

// Merger performs the single-pass k-way external merge over a set of
// sorted Batches: a min-heap (here, a one-level llrb.Tree per the
// teacher's pattern) keyed by front-cell first_id groups and sums
// same-keyed cells, filters records below threshold, and accumulates
// pair_occurrences (n_u in the PMI formula).
type Merger struct {
	Batches []*Batch
	Arbiter *FileHandleArbiter
	Config  MergeConfig
}

// Run executes the merge and returns pair_occurrences indexed by token
// id (length vocabSize).
func (m *Merger) Run(vocabSize int) ([]uint64, error) {
	pairOccurrences := make([]uint64, vocabSize)
	log.Debug.Printf("merge: starting over %d batches, vocab size %d", len(m.Batches), vocabSize)

	tree := llrb.Tree{}
	for i, b := range m.Batches {
		leaf, err := newMergeLeaf(i, b, m.Arbiter)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			tree.Insert(leaf)
		}
	}
	vlog.VI(1).Infof("merge: %d batches, %d leafs active", len(m.Batches), tree.Len())

	for tree.Len() > 0 {
		var group []*mergeLeaf
		var minID int32
		n := 0
		tree.Do(func(item llrb.Comparable) bool {
			leaf := item.(*mergeLeaf)
			if n == 0 {
				minID = leaf.front.FirstID
			} else if leaf.front.FirstID != minID {
				return true
			}
			group = append(group, leaf)
			n++
			return false
		})

		acc := group[0].front
		for _, l := range group[1:] {
			acc = combineCells(acc, l.front)
		}

		lenBefore := tree.Len()
		for _, l := range group {
			tree.DeleteMin()
			if err := refillLeaf(l, m.Arbiter); err != nil {
				return nil, err
			}
			if !l.done {
				tree.Insert(l)
			}
		}
		if got, want := tree.Len(), lenBefore-len(group)+countNotDone(group); got != want {
			panic(E(Invariant, nil, "merge tree size mismatch: got %d want %d", got, want))
		}

		if err := m.finalize(acc, pairOccurrences); err != nil {
			return nil, err
		}
	}
	log.Debug.Printf("merge: done, vocab size %d", vocabSize)
	vlog.VI(1).Infof("merge: all leafs drained")
	return pairOccurrences, nil
}

func countNotDone(group []*mergeLeaf) int {
	n := 0
	for _, l := range group {
		if !l.done {
			n++
		}
	}
	return n
}

// finalize applies thresholds and writes one finished, merged cell
// (first_id = u) to the configured outputs, and folds its kept tf into
// pair_occurrences[u] — self-pairs (second_id == u) included in that
// sum but never written to the TF/DF files.
func (m *Merger) finalize(cell Cell, pairOccurrences []uint64) error {
	u := cell.FirstID
	for _, r := range cell.Records {
		tfKept := r.TF >= m.Config.MinTF
		if tfKept {
			pairOccurrences[u] += r.TF
		}
		if r.SecondID == u {
			continue
		}
		if tfKept && m.Config.TFWriter != nil {
			if err := writeCountLine(m.Config.TFWriter, u, r.SecondID, r.TF); err != nil {
				return err
			}
		}
		if r.DF >= m.Config.MinDF && m.Config.DFWriter != nil {
			if err := writeCountLine(m.Config.DFWriter, u, r.SecondID, uint64(r.DF)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeCountLine(w io.Writer, u, v int32, c uint64) error {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(int64(u), 10))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(int64(v), 10))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatUint(c, 10))
	sb.WriteByte('\n')
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return E(IO, err, "write count line")
	}
	return nil
}
