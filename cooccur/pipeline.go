package cooccur

import (
	"bufio"
	"context"
	"io"
	"path/filepath"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cooccur/vocab"
)

// PipelineConfig is the end-to-end configuration the CLI front-end
// assembles from flags: where the vocab and corpus live, the window and
// batching parameters, thresholds, which outputs to produce, and where
// the scratch directory should be created.
type PipelineConfig struct {
	WindowWidth     int
	MinTF           uint64
	MinDF           uint32
	NumThreads      int
	DocsPerBatch    int
	MaxOpenFiles    int
	CompressBatches bool
	ScratchParent   string

	TFPath     string // "" disables TF file emission
	DFPath     string // "" disables DF file emission
	PpmiTFPath string // "" disables PPMI-from-TF
	PpmiDFPath string // "" disables PPMI-from-DF

	Progress func(totalDocuments uint32)
}

// Run executes the full pipeline: ingest corpus against vocab, merge the
// spilled batches into TF/DF files, then derive whichever PPMI outputs
// were requested. It returns the final counters, useful for a progress
// summary.
func Run(cfg PipelineConfig, vocabPath, corpusPath string) (*Counters, error) {
	ctx := vcontext.Background()

	vocabFile, err := file.Open(ctx, vocabPath)
	if err != nil {
		return nil, E(IO, err, "open vocab file %s", vocabPath)
	}
	v, err := vocab.Load(vocabFile.Reader(ctx))
	closeErr := vocabFile.Close(ctx)
	if err != nil {
		return nil, E(Config, err, "load vocab file %s", vocabPath)
	}
	if closeErr != nil {
		return nil, E(IO, closeErr, "close vocab file %s", vocabPath)
	}
	log.Debug.Printf("pipeline: loaded vocab %s, %d entries", vocabPath, v.Size())

	scratch, err := NewScratchDir(cfg.ScratchParent)
	if err != nil {
		return nil, err
	}
	defer func() { _ = scratch.Cleanup() }()

	arbiter := NewFileHandleArbiter(cfg.MaxOpenFiles)

	corpusFile, err := file.Open(ctx, corpusPath)
	if err != nil {
		return nil, E(IO, err, "open corpus file %s", corpusPath)
	}
	defer corpusFile.Close(ctx)

	ing := &Ingestor{
		Vocab:        v,
		WindowWidth:  cfg.WindowWidth,
		DocsPerBatch: cfg.DocsPerBatch,
		NumThreads:   cfg.NumThreads,
		Scratch:      scratch,
		Arbiter:      arbiter,
		Compress:     cfg.CompressBatches,
		Progress:     cfg.Progress,
	}
	ingestResult, err := ing.Run(corpusFile.Reader(ctx))
	if err != nil {
		return nil, err
	}

	// tfPath/dfPath are where the Merger writes its output: the
	// user-requested path if given, else a scratch file used only to
	// feed the PPMI pass (PPMI outputs imply their underlying TF/DF
	// computation even without an explicit --cooc-tf-file/--cooc-df-file).
	tfPath := cfg.TFPath
	if tfPath == "" && cfg.PpmiTFPath != "" {
		tfPath = filepath.Join(scratch.Path(), "tf.tmp")
	}
	dfPath := cfg.DFPath
	if dfPath == "" && cfg.PpmiDFPath != "" {
		dfPath = filepath.Join(scratch.Path(), "df.tmp")
	}

	var tfOut, dfOut *bufio.Writer
	if tfPath != "" {
		tfFile, err := file.Create(ctx, tfPath)
		if err != nil {
			return nil, E(IO, err, "create TF file %s", tfPath)
		}
		defer tfFile.Close(ctx)
		tfOut = bufio.NewWriter(tfFile.Writer(ctx))
	}
	if dfPath != "" {
		dfFile, err := file.Create(ctx, dfPath)
		if err != nil {
			return nil, E(IO, err, "create DF file %s", dfPath)
		}
		defer dfFile.Close(ctx)
		dfOut = bufio.NewWriter(dfFile.Writer(ctx))
	}

	log.Debug.Printf("pipeline: ingest complete, merging %d batches", len(ingestResult.Batches))
	merger := &Merger{
		Batches: ingestResult.Batches,
		Arbiter: arbiter,
		Config: MergeConfig{
			MinTF:    cfg.MinTF,
			MinDF:    cfg.MinDF,
			TFWriter: writerOrNil(tfOut),
			DFWriter: writerOrNil(dfOut),
		},
	}
	pairOccurrences, err := merger.Run(v.Size())
	if err != nil {
		return nil, err
	}
	for _, w := range []*bufio.Writer{tfOut, dfOut} {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil {
			return nil, E(IO, err, "flush merge output")
		}
	}

	stats := BuildTokenStats(pairOccurrences, ingestResult.DocOccurrences.Snapshot())

	if cfg.PpmiTFPath != "" {
		log.Debug.Printf("pipeline: computing PPMI from TF marginals -> %s", cfg.PpmiTFPath)
		if err := runPpmi(ctx, tfPath, cfg.PpmiTFPath, func(p *PpmiPass, r io.Reader, w io.Writer) error {
			return p.RunTF(r, w)
		}, PpmiConfig{
			TotalPairs: ingestResult.Counters.TotalPairs(),
			Stats:      stats,
		}); err != nil {
			return nil, err
		}
	}
	if cfg.PpmiDFPath != "" {
		log.Debug.Printf("pipeline: computing PPMI from DF marginals -> %s", cfg.PpmiDFPath)
		if err := runPpmi(ctx, dfPath, cfg.PpmiDFPath, func(p *PpmiPass, r io.Reader, w io.Writer) error {
			return p.RunDF(r, w)
		}, PpmiConfig{
			TotalDocuments: ingestResult.Counters.TotalDocuments(),
			Stats:          stats,
		}); err != nil {
			return nil, err
		}
	}

	return ingestResult.Counters, nil
}

func writerOrNil(w *bufio.Writer) io.Writer {
	if w == nil {
		return nil
	}
	return w
}

func runPpmi(ctx context.Context, inPath, outPath string, run func(p *PpmiPass, r io.Reader, w io.Writer) error, cfg PpmiConfig) error {
	in, err := file.Open(ctx, inPath)
	if err != nil {
		return E(IO, err, "open %s for PPMI pass", inPath)
	}
	defer in.Close(ctx)
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return E(IO, err, "create PPMI output %s", outPath)
	}
	defer out.Close(ctx)

	bw := bufio.NewWriter(out.Writer(ctx))
	pass := &PpmiPass{Config: cfg}
	if err := run(pass, bufio.NewReader(in.Reader(ctx)), bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return E(IO, err, "flush PPMI output %s", outPath)
	}
	return nil
}
