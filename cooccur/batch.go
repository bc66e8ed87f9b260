package cooccur

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/snappy"
)

// Record is one (second_id, tf, df) triple inside a Cell.
type Record struct {
	SecondID int32
	TF       uint64
	DF       uint32
}

// Cell groups every Record for one first_id. Within a Cell, SecondIDs are
// unique and strictly ascending; a Cell must be non-empty when written.
type Cell struct {
	FirstID int32
	Records []Record
}

// Batch is an on-disk sorted sequence of Cells (strictly ascending
// FirstID), written by one Ingestor worker and later consumed by the
// Merger. It owns its backing file: Remove deletes it. Reads may be
// interleaved with voluntary CloseForRead/OpenForRead cycles under
// FileHandleArbiter pressure; ReadCell always resumes exactly where a
// prior close left off.
type Batch struct {
	path     string
	arbiter  *FileHandleArbiter
	compress bool

	wf     *os.File
	bw     *bufio.Writer
	sw     *snappy.Writer
	writer io.Writer
	opened bool

	rf       *os.File
	br       *bufio.Reader
	readOpen bool
	offset   int64 // cumulative decoded bytes consumed from the stream so far

	front      Cell
	frontValid bool
	exhausted  bool
}

// NewBatch creates a Batch backed by a fresh file under dir. The file is
// created immediately (so its name is fixed), but not opened for writing
// until the first WriteCell call.
func NewBatch(dir string, arbiter *FileHandleArbiter, compress bool) (*Batch, error) {
	f, err := os.CreateTemp(dir, "cooc-batch-")
	if err != nil {
		return nil, E(IO, err, "create batch file in %s", dir)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, E(IO, err, "close freshly created batch file %s", path)
	}
	return &Batch{path: path, arbiter: arbiter, compress: compress}, nil
}

// Path returns the batch's backing file path.
func (b *Batch) Path() string { return b.path }

func (b *Batch) openForWrite() error {
	if b.opened {
		return nil
	}
	b.arbiter.Acquire()
	f, err := os.OpenFile(b.path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		b.arbiter.Release()
		return E(IO, err, "open batch %s for writing", b.path)
	}
	b.wf = f
	b.bw = bufio.NewWriter(f)
	b.writer = b.bw
	if b.compress {
		b.sw = snappy.NewBufferedWriter(b.bw)
		b.writer = b.sw
	}
	b.opened = true
	return nil
}

// WriteCell appends cell, in wire format, to the batch. It opens the
// write file (through the arbiter) on first call. Cells must be written
// in strictly ascending FirstID order and must never be empty.
func (b *Batch) WriteCell(cell Cell) error {
	if len(cell.Records) == 0 {
		return E(Invariant, nil, "attempted to write empty cell for first_id=%d", cell.FirstID)
	}
	if err := b.openForWrite(); err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(int64(cell.FirstID), 10))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(len(cell.Records)))
	sb.WriteByte('\n')
	for i, r := range cell.Records {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatInt(int64(r.SecondID), 10))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatUint(r.TF, 10))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatUint(uint64(r.DF), 10))
	}
	sb.WriteByte('\n')
	if _, err := io.WriteString(b.writer, sb.String()); err != nil {
		return E(IO, err, "write cell to batch %s", b.path)
	}
	return nil
}

// Finish flushes and closes the write side. It must be called exactly
// once, after the last WriteCell (even if WriteCell was never called, in
// which case it leaves behind an empty, well-formed, zero-cell batch).
func (b *Batch) Finish() error {
	if !b.opened {
		return nil
	}
	var err error
	if b.sw != nil {
		err = b.sw.Close()
	}
	if ferr := b.bw.Flush(); err == nil {
		err = ferr
	}
	if cerr := b.wf.Close(); err == nil {
		err = cerr
	}
	b.arbiter.Release()
	b.opened = false
	b.writer = nil
	b.sw = nil
	b.bw = nil
	b.wf = nil
	if err != nil {
		return E(IO, err, "finish batch %s", b.path)
	}
	return nil
}

// OpenForRead opens the batch for reading (subject to the arbiter),
// resuming decoding at the byte offset a prior CloseForRead left off.
// Idempotent.
func (b *Batch) OpenForRead() error {
	if b.readOpen {
		return nil
	}
	b.arbiter.Acquire()
	f, err := os.Open(b.path)
	if err != nil {
		b.arbiter.Release()
		return E(IO, err, "open batch %s for reading", b.path)
	}
	b.rf = f
	var r io.Reader = f
	if b.compress {
		r = snappy.NewReader(f)
	} else if b.offset > 0 {
		if _, err := f.Seek(b.offset, io.SeekStart); err != nil {
			f.Close()
			b.arbiter.Release()
			return E(IO, err, "seek batch %s to %d", b.path, b.offset)
		}
	}
	b.br = bufio.NewReader(r)
	if b.compress && b.offset > 0 {
		// Snappy's framed stream cannot be seeked into by raw byte
		// offset, so a compressed batch always redecodes from the
		// start and discards up to the previously reached point.
		if _, err := io.CopyN(io.Discard, b.br, b.offset); err != nil {
			f.Close()
			b.br = nil
			b.arbiter.Release()
			return E(IO, err, "resume compressed batch %s at decoded byte %d", b.path, b.offset)
		}
	}
	b.readOpen = true
	return nil
}

// CloseForRead closes the read side. The decoded byte offset already
// consumed (including any peeked-but-not-yet-returned cell) is preserved
// so a later OpenForRead resumes exactly there. Idempotent.
func (b *Batch) CloseForRead() error {
	if !b.readOpen {
		return nil
	}
	err := b.rf.Close()
	b.rf = nil
	b.br = nil
	b.readOpen = false
	b.arbiter.Release()
	if err != nil {
		return E(IO, err, "close batch %s", b.path)
	}
	return nil
}

// readLine reads one '\n'-terminated line (delimiter stripped), tracking
// consumed bytes in b.offset so close/reopen can resume precisely.
func (b *Batch) readLine() (string, error) {
	line, err := b.br.ReadString('\n')
	b.offset += int64(len(line))
	if err != nil {
		if err == io.EOF && line != "" {
			return "", E(Parse, nil, "batch %s: truncated trailing line", b.path)
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// ensureFront parses the next cell off the stream into b.front if it
// isn't already cached there. Requires the batch to be open for read.
func (b *Batch) ensureFront() error {
	if b.frontValid || b.exhausted {
		return nil
	}
	header, err := b.readLine()
	if err == io.EOF {
		b.exhausted = true
		return nil
	}
	if err != nil {
		return E(IO, err, "read cell header from batch %s", b.path)
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return E(Parse, nil, "batch %s: malformed cell header %q", b.path, header)
	}
	firstID, err1 := strconv.ParseInt(fields[0], 10, 32)
	numRecords, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || numRecords <= 0 {
		return E(Parse, nil, "batch %s: malformed cell header %q", b.path, header)
	}
	body, err := b.readLine()
	if err != nil {
		return E(Parse, err, "batch %s: corrupt payload for first_id=%d", b.path, firstID)
	}
	fields = strings.Fields(body)
	if len(fields) != numRecords*3 {
		return E(Parse, nil, "batch %s: corrupt payload for first_id=%d: expected %d records, got %d fields",
			b.path, firstID, numRecords, len(fields))
	}
	records := make([]Record, numRecords)
	for i := range records {
		sid, e1 := strconv.ParseInt(fields[i*3], 10, 32)
		tf, e2 := strconv.ParseUint(fields[i*3+1], 10, 64)
		df, e3 := strconv.ParseUint(fields[i*3+2], 10, 32)
		if e1 != nil || e2 != nil || e3 != nil {
			return E(Parse, nil, "batch %s: corrupt record %d for first_id=%d", b.path, i, firstID)
		}
		records[i] = Record{SecondID: int32(sid), TF: tf, DF: uint32(df)}
	}
	b.front = Cell{FirstID: int32(firstID), Records: records}
	b.frontValid = true
	return nil
}

// PeekFirstID returns the FirstID of the current front cell without
// consuming it, or ok=false if the batch is exhausted.
func (b *Batch) PeekFirstID() (id int32, ok bool, err error) {
	if err := b.ensureFront(); err != nil {
		return 0, false, err
	}
	if b.exhausted {
		return 0, false, nil
	}
	return b.front.FirstID, true, nil
}

// ReadCell advances past and returns the current front cell, or ok=false
// at end of batch.
func (b *Batch) ReadCell() (cell Cell, ok bool, err error) {
	if err := b.ensureFront(); err != nil {
		return Cell{}, false, err
	}
	if b.exhausted {
		return Cell{}, false, nil
	}
	cell = b.front
	b.front = Cell{}
	b.frontValid = false
	return cell, true, nil
}

// Remove deletes the backing file. Both read and write sides must
// already be closed.
func (b *Batch) Remove() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return E(IO, err, "remove batch %s", b.path)
	}
	return nil
}
