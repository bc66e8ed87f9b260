package cooccur

import "sort"

// accumEntry is the per-(first,second) accumulator kept while a
// CooccurrenceHolder is live: cooc_tf, cooc_df, and the last document id
// that touched either counter (used to de-duplicate DF within a
// document).
type accumEntry struct {
	secondID  int32
	coocTF    uint64
	coocDF    uint32
	lastDocID int32
}

// CooccurrenceHolder accumulates, for one slice (batch) of documents, the
// TF/DF of every (first_id, second_id) pair observed. It is not safe for
// concurrent use: the Ingestor allocates exactly one holder per worker,
// per slice, and discards it once the corresponding Batch is spilled.
//
// Internally this is a hash map of hash maps, per the "hash map plus a
// sort at spill time" alternative the design allows: Record is O(1)
// amortized, and ascending iteration (the invariant Batch's sorted wire
// format relies on) is produced on demand by Cells.
type CooccurrenceHolder struct {
	byFirst map[int32]map[int32]*accumEntry
}

// NewCooccurrenceHolder creates an empty holder.
func NewCooccurrenceHolder() *CooccurrenceHolder {
	return &CooccurrenceHolder{byFirst: make(map[int32]map[int32]*accumEntry)}
}

// Record registers one occurrence of the ordered pair (firstID, secondID)
// in document docID. If the pair is new, it is inserted with
// cooc_tf=cooc_df=1. Otherwise cooc_tf is incremented unconditionally,
// and cooc_df is incremented (and lastDocID updated) only if docID
// differs from the last document that touched this pair.
func (h *CooccurrenceHolder) Record(firstID, secondID, docID int32) {
	inner, ok := h.byFirst[firstID]
	if !ok {
		inner = make(map[int32]*accumEntry)
		h.byFirst[firstID] = inner
	}
	e, ok := inner[secondID]
	if !ok {
		inner[secondID] = &accumEntry{secondID: secondID, coocTF: 1, coocDF: 1, lastDocID: docID}
		return
	}
	e.coocTF++
	if e.lastDocID != docID {
		e.coocDF++
		e.lastDocID = docID
	}
}

// Empty reports whether the holder has recorded nothing.
func (h *CooccurrenceHolder) Empty() bool {
	return len(h.byFirst) == 0
}

// Cells returns every accumulated first_id's Cell, in strictly ascending
// FirstID order; within each Cell, Records are in strictly ascending
// SecondID order. This is the sort performed at spill time.
func (h *CooccurrenceHolder) Cells() []Cell {
	firstIDs := make([]int32, 0, len(h.byFirst))
	for id := range h.byFirst {
		firstIDs = append(firstIDs, id)
	}
	sort.Slice(firstIDs, func(i, j int) bool { return firstIDs[i] < firstIDs[j] })

	cells := make([]Cell, 0, len(firstIDs))
	for _, fid := range firstIDs {
		inner := h.byFirst[fid]
		secondIDs := make([]int32, 0, len(inner))
		for sid := range inner {
			secondIDs = append(secondIDs, sid)
		}
		sort.Slice(secondIDs, func(i, j int) bool { return secondIDs[i] < secondIDs[j] })
		records := make([]Record, len(secondIDs))
		for i, sid := range secondIDs {
			e := inner[sid]
			records[i] = Record{SecondID: sid, TF: e.coocTF, DF: e.coocDF}
		}
		cells = append(cells, Cell{FirstID: fid, Records: records})
	}
	return cells
}
