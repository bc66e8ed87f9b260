// Package vocab loads the fixed (keyword, modality) -> token id mapping
// used throughout the co-occurrence pipeline.
package vocab

import (
	"bufio"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// DefaultClass is the modality label that participates in co-occurrence
// counting. Tokens under any other modality are recognized by the input
// grammar but never contribute pairs.
const DefaultClass = "@default_class"

// NotFound is returned by Lookup when the (keyword, modality) pair is
// absent from the vocabulary.
const NotFound int32 = -1

type key struct {
	keyword  string
	modality string
}

// Vocabulary is an immutable mapping from (keyword, modality) to a dense
// id in [0, Size()). It is built once, typically at process startup, and
// is safe for concurrent read-only use thereafter.
type Vocabulary struct {
	ids     map[key]int32
	entries []key // index == id
}

// Entry is one line of a vocabulary file.
type Entry struct {
	Keyword  string
	Modality string
}

// Load reads a vocabulary file: one entry per line, `KEYWORD [MODALITY]`,
// leading/trailing whitespace trimmed, empty KEYWORD lines ignored, a
// missing MODALITY defaulting to DefaultClass. Ids are assigned in file
// order. A repeated (keyword, modality) pair fails with a Config-flavored
// error ("duplicate vocab entry").
func Load(r io.Reader) (*Vocabulary, error) {
	v := &Vocabulary{ids: make(map[key]int32)}
	scanner := bufio.NewScanner(r)
	// Vocab files can carry very long lines for wide corpora; grow the
	// scanner's buffer past bufio's 64KiB default rather than failing.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		keyword := fields[0]
		if keyword == "" {
			continue
		}
		modality := DefaultClass
		if len(fields) > 1 {
			modality = fields[1]
		}
		k := key{keyword: keyword, modality: modality}
		if _, dup := v.ids[k]; dup {
			return nil, errors.E("duplicate vocab entry:", keyword, modality)
		}
		id := int32(len(v.entries))
		v.ids[k] = id
		v.entries = append(v.entries, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "reading vocab file")
	}
	return v, nil
}

// Lookup returns the id assigned to (keyword, modality), or NotFound if
// the pair was never loaded. It runs in expected O(1).
func (v *Vocabulary) Lookup(keyword, modality string) int32 {
	if id, ok := v.ids[key{keyword: keyword, modality: modality}]; ok {
		return id
	}
	return NotFound
}

// Size returns the number of distinct (keyword, modality) entries, i.e.
// the vocabulary size V; valid ids lie in [0, Size()).
func (v *Vocabulary) Size() int {
	return len(v.entries)
}

// Entry returns the (keyword, modality) pair assigned to id.
func (v *Vocabulary) Entry(id int32) Entry {
	e := v.entries[id]
	return Entry{Keyword: e.keyword, Modality: e.modality}
}
