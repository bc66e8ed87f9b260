package main

// cooc-pmi computes token co-occurrence TF/DF statistics and, optionally,
// PPMI weights over a Vowpal-Wabbit-style corpus and a fixed vocabulary.
//
// Usage: cooc-pmi --vocab vocab.txt --vw corpus.vw --cooc-tf-file tf.out

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cooccur"
)

var (
	vocabFlag        = flag.String("vocab", "", "Vocabulary file: one KEYWORD [MODALITY] entry per line (required)")
	vwFlag           = flag.String("vw", "", "Input corpus in Vowpal-Wabbit-like format (required)")
	windowWidthFlag  = flag.Int("window-width", 5, "Window half-width, in tokens, on each side of the center token")
	minTFFlag        = flag.Uint64("cooc-min-tf", 0, "Minimum total co-occurrence count for a pair to be kept")
	minDFFlag        = flag.Uint("cooc-min-df", 0, "Minimum distinct-document count for a pair to be kept")
	tfFileFlag       = flag.String("cooc-tf-file", "", "Path to write the TF output file (first_id second_id count)")
	dfFileFlag       = flag.String("cooc-df-file", "", "Path to write the DF output file (first_id second_id count)")
	ppmiTFFileFlag   = flag.String("ppmi-tf-file", "", "Path to write PPMI weights derived from TF marginals")
	ppmiDFFileFlag   = flag.String("ppmi-df-file", "", "Path to write PPMI weights derived from DF marginals")
	numThreadsFlag   = flag.Int("num-threads", 0, "Number of ingestion worker goroutines; <=0 means hardware concurrency")
	docsPerBatchFlag = flag.Int("docs-per-batch", 10000, "Number of corpus lines each worker claims per slice")
	maxOpenFilesFlag = flag.Int("max-open-files", cooccur.DefaultMaxOpenFiles, "Process-wide cap on simultaneously open batch files")
	scratchDirFlag   = flag.String("scratch-dir", ".", "Parent directory under which the UUID-named scratch directory is created")
	compressFlag     = flag.Bool("compress-batches", false, "Snappy-compress spilled batch files")
	progressFlag     = flag.Bool("progress", false, "Log a running document count to stderr during ingestion")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage: cooc-pmi --vocab vocab.txt --vw corpus.vw [flags]

Computes co-occurrence TF/DF statistics over a fixed vocabulary and a
Vowpal-Wabbit-like corpus (one document per line, first field is the
title, "|LABEL" fields switch modality, only "|@default_class" tokens
produce pairs). Enabling a PPMI output implies its underlying TF/DF
computation even when the raw TF/DF file itself is not requested.
`)
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	if *vocabFlag == "" || *vwFlag == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *tfFileFlag == "" && *dfFileFlag == "" && *ppmiTFFileFlag == "" && *ppmiDFFileFlag == "" {
		fmt.Fprintln(os.Stderr, "cooc-pmi: at least one of -cooc-tf-file, -cooc-df-file, -ppmi-tf-file, -ppmi-df-file is required")
		flag.Usage()
		os.Exit(1)
	}

	var progress func(uint32)
	if *progressFlag {
		progress = func(total uint32) {
			log.Debug.Printf("ingestion progress: %d documents processed", total)
		}
	}

	cfg := cooccur.PipelineConfig{
		WindowWidth:     *windowWidthFlag,
		MinTF:           *minTFFlag,
		MinDF:           uint32(*minDFFlag),
		NumThreads:      *numThreadsFlag,
		DocsPerBatch:    *docsPerBatchFlag,
		MaxOpenFiles:    *maxOpenFilesFlag,
		CompressBatches: *compressFlag,
		ScratchParent:   *scratchDirFlag,
		TFPath:          *tfFileFlag,
		DFPath:          *dfFileFlag,
		PpmiTFPath:      *ppmiTFFileFlag,
		PpmiDFPath:      *ppmiDFFileFlag,
		Progress:        progress,
	}

	counters, err := cooccur.Run(cfg, *vocabFlag, *vwFlag)
	if err != nil {
		log.Panicf("cooc-pmi: %v", err)
	}
	log.Debug.Printf("cooc-pmi: done, %d documents, %d pairs", counters.TotalDocuments(), counters.TotalPairs())
}
