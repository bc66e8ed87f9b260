package cooccur

import (
	"sync"
	"sync/atomic"
)

// TokenStats holds, per token id, the two marginals the PPMI pass needs.
// PairOccurrences is filled in by the Merger: the sum of cooc_tf over a
// token's own retained cell records (self-pairs included, see §9 of the
// design notes). DocumentOccurrences is incremented by the Ingestor at
// most once per (document, token).
type TokenStats struct {
	PairOccurrences     uint64
	DocumentOccurrences uint32
}

// Counters are the two global, monotonically increasing accumulators the
// Ingestor maintains: total documents seen and total ordered pair
// observations recorded (each window co-occurrence contributes 2, one
// per direction).
type Counters struct {
	totalDocuments uint32
	totalPairs     uint64
}

func (c *Counters) addDocuments(n uint32) { atomic.AddUint32(&c.totalDocuments, n) }
func (c *Counters) addPairs(n uint64)      { atomic.AddUint64(&c.totalPairs, n) }

// BuildTokenStats zips the Merger's pair_occurrences (n_u) and the
// Ingestor's document_occurrences (N_u) into one per-token slice, the
// shape PpmiPass consumes. Both inputs must be indexed by the same
// vocabulary and therefore share a length.
func BuildTokenStats(pairOccurrences []uint64, documentOccurrences []uint32) []TokenStats {
	stats := make([]TokenStats, len(pairOccurrences))
	for id := range stats {
		stats[id] = TokenStats{
			PairOccurrences:     pairOccurrences[id],
			DocumentOccurrences: documentOccurrences[id],
		}
	}
	return stats
}

// TotalDocuments returns the current document count.
func (c *Counters) TotalDocuments() uint32 { return atomic.LoadUint32(&c.totalDocuments) }

// TotalPairs returns the current pair count.
func (c *Counters) TotalPairs() uint64 { return atomic.LoadUint64(&c.totalPairs) }

// DocumentOccurrenceTable is a fixed-size, concurrency-safe table of
// per-token document counts. A single mutex guards it; contention is low
// because it is touched once per (document, token), not per occurrence.
type DocumentOccurrenceTable struct {
	mu     sync.Mutex
	counts []uint32
}

// NewDocumentOccurrenceTable allocates a table sized for vocabulary size v.
func NewDocumentOccurrenceTable(v int) *DocumentOccurrenceTable {
	return &DocumentOccurrenceTable{counts: make([]uint32, v)}
}

// Increment bumps the count for token id.
func (t *DocumentOccurrenceTable) Increment(id int32) {
	t.mu.Lock()
	t.counts[id]++
	t.mu.Unlock()
}

// Get returns the current count for token id.
func (t *DocumentOccurrenceTable) Get(id int32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[id]
}

// Snapshot copies the full table out; used once ingestion has joined, so
// no locking is strictly required at that point, but it is cheap to keep
// it safe regardless.
func (t *DocumentOccurrenceTable) Snapshot() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint32, len(t.counts))
	copy(out, t.counts)
	return out
}
