package cooccur

import (
	"bufio"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cooccur/vocab"
)

// markerPrefix introduces a modality marker field, e.g. "|@default_class".
const markerPrefix = "|"

// noDocSentinel is the value last_doc_for_token entries start at: distinct
// from every valid in-slice document index (which starts at 0).
const noDocSentinel int32 = -1

// Ingestor runs the parallel ingestion phase: it fans a corpus out across
// worker goroutines, each of which claims a contiguous slice of
// docs-per-batch lines, accumulates a CooccurrenceHolder over that slice,
// and spills it to a fresh Batch. It is grounded on the teacher's shared
// read-lock-protected portion claiming in the BAM sorter's parallel
// readers, generalized to a line-oriented corpus.
type Ingestor struct {
	Vocab        *vocab.Vocabulary
	WindowWidth  int
	DocsPerBatch int
	NumThreads   int
	Scratch      *ScratchDir
	Arbiter      *FileHandleArbiter
	Compress     bool

	// Progress, if non-nil, is invoked once per claimed slice (serialized,
	// never concurrently) with the running total of documents processed
	// so far. It is implementation-defined progress reporting, not part
	// of the pipeline's semantics.
	Progress func(totalDocuments uint32)

	progressMu sync.Mutex
}

// Result is everything the Merger needs from a completed ingestion pass.
type Result struct {
	Batches        []*Batch
	Counters       *Counters
	DocOccurrences *DocumentOccurrenceTable
}

// lineReader hands out contiguous slices of corpus lines under a single
// mutex, mirroring the spec's single shared reader position.
type lineReader struct {
	mu   sync.Mutex
	sc   *bufio.Scanner
	done bool
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &lineReader{sc: sc}
}

// claim returns up to n lines, or nil once the underlying reader is
// exhausted. It holds the reader lock only for the duration of the copy.
func (lr *lineReader) claim(n int) ([]string, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.done {
		return nil, nil
	}
	lines := make([]string, 0, n)
	for len(lines) < n {
		if !lr.sc.Scan() {
			lr.done = true
			break
		}
		lines = append(lines, lr.sc.Text())
	}
	if err := lr.sc.Err(); err != nil {
		return nil, E(IO, err, "read corpus")
	}
	return lines, nil
}

// Run ingests r to completion and returns the registered batches and final
// counters. On any worker error, the other workers stop after their
// current slice and Run returns the first error observed.
func (ing *Ingestor) Run(r io.Reader) (*Result, error) {
	numThreads := ing.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if numThreads < 1 {
		numThreads = 1
	}
	docsPerBatch := ing.DocsPerBatch
	if docsPerBatch <= 0 {
		docsPerBatch = 1
	}

	log.Debug.Printf("ingest: starting %d workers, docs-per-batch %d, vocab size %d", numThreads, docsPerBatch, ing.Vocab.Size())
	reader := newLineReader(r)
	counters := &Counters{}
	docOcc := NewDocumentOccurrenceTable(ing.Vocab.Size())

	var (
		batchMu sync.Mutex
		batches []*Batch
		errOnce errors.Once
	)

	var wg sync.WaitGroup
	for t := 0; t < numThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if errOnce.Err() != nil {
					return
				}
				lines, err := reader.claim(docsPerBatch)
				if err != nil {
					errOnce.Set(err)
					return
				}
				if len(lines) == 0 {
					return
				}
				counters.addDocuments(uint32(len(lines)))

				// last_doc_for_token is reset per slice, not per worker: a
				// token's "last document seen" must never leak across the
				// doc_id renumbering between slices (spec §4.5 step 3;
				// original cooccurrence_dictionary.cc:127).
				lastDoc := make([]int32, ing.Vocab.Size())
				for i := range lastDoc {
					lastDoc[i] = noDocSentinel
				}

				holder := NewCooccurrenceHolder()
				var pairs uint64
				for docIdx, line := range lines {
					pairs += ing.processDocument(line, int32(docIdx), holder, lastDoc, docOcc)
				}
				counters.addPairs(pairs)

				if ing.Progress != nil {
					ing.progressMu.Lock()
					ing.Progress(counters.TotalDocuments())
					ing.progressMu.Unlock()
				}

				if holder.Empty() {
					continue
				}
				batch, err := NewBatch(ing.Scratch.Path(), ing.Arbiter, ing.Compress)
				if err != nil {
					errOnce.Set(err)
					return
				}
				for _, cell := range holder.Cells() {
					if err := batch.WriteCell(cell); err != nil {
						errOnce.Set(err)
						return
					}
				}
				if err := batch.Finish(); err != nil {
					errOnce.Set(err)
					return
				}
				log.Debug.Printf("ingest: spilled batch %s (%d docs in slice)", batch.Path(), len(lines))
				batchMu.Lock()
				batches = append(batches, batch)
				batchMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := errOnce.Err(); err != nil {
		log.Error.Printf("ingest: failed: %v", err)
		return nil, err
	}
	log.Debug.Printf("ingest: done, %d documents, %d pairs, %d batches", counters.TotalDocuments(), counters.TotalPairs(), len(batches))
	return &Result{Batches: batches, Counters: counters, DocOccurrences: docOcc}, nil
}

// processDocument applies one corpus line (doc_id within the current
// slice) to holder and docOcc, returning the number of ordered pair
// observations it recorded (each window co-occurrence counts 2, one per
// direction, matching total_pairs).
func (ing *Ingestor) processDocument(line string, docIdx int32, holder *CooccurrenceHolder, lastDoc []int32, docOcc *DocumentOccurrenceTable) uint64 {
	fields := strings.Fields(line)
	if len(fields) <= 1 {
		return 0
	}
	tokens := fields[1:] // fields[0] is the document title, always skipped

	var pairs uint64
	firstDefault := true
	for j, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, markerPrefix) {
			firstDefault = tok == markerPrefix+vocab.DefaultClass
			continue
		}
		if !firstDefault {
			continue
		}
		u := ing.Vocab.Lookup(tok, vocab.DefaultClass)
		if u == vocab.NotFound {
			continue
		}
		if lastDoc[u] != docIdx {
			lastDoc[u] = docIdx
			docOcc.Increment(u)
		}

		secondDefault := true
		extender := 0
		k := 0
		for _, next := range tokens[j+1:] {
			if next == "" {
				continue
			}
			if strings.HasPrefix(next, markerPrefix) {
				secondDefault = next == markerPrefix+vocab.DefaultClass
				extender++
				continue
			}
			k++
			if k > ing.WindowWidth+extender {
				break
			}
			if !secondDefault {
				continue
			}
			v := ing.Vocab.Lookup(next, vocab.DefaultClass)
			if v == vocab.NotFound {
				continue
			}
			holder.Record(u, v, docIdx)
			holder.Record(v, u, docIdx)
			pairs += 2
		}
	}
	return pairs
}
