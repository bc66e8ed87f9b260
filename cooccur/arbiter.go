package cooccur

import "sync"

// DefaultMaxOpenFiles is the default cap on simultaneously open batch
// files, matching the original implementation's max_num_of_open_files_.
const DefaultMaxOpenFiles = 500

// FileHandleArbiter bounds the number of batch files concurrently open
// across the whole process. It is advisory-plus-assertion: callers ask
// permission before opening and report back when they close, and the
// arbiter panics if that contract is ever violated (the count must never
// exceed the cap).
type FileHandleArbiter struct {
	mu   sync.Mutex
	cap  int
	open int
}

// NewFileHandleArbiter creates an arbiter with the given cap. A cap <= 0
// falls back to DefaultMaxOpenFiles.
func NewFileHandleArbiter(cap int) *FileHandleArbiter {
	if cap <= 0 {
		cap = DefaultMaxOpenFiles
	}
	return &FileHandleArbiter{cap: cap}
}

// AtCap reports whether the arbiter is currently at its cap, i.e. whether
// a batch participating in the merge should voluntarily close itself
// before the next read.
func (a *FileHandleArbiter) AtCap() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open >= a.cap
}

// Acquire reserves one handle slot, blocking (via the caller retrying)
// is not supported here: acquire is meant to be called only when the
// caller has already decided, under AtCap or otherwise, that it needs a
// slot; it panics (an Invariant violation) rather than exceed the cap.
func (a *FileHandleArbiter) Acquire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open >= a.cap {
		panic(E(Invariant, nil, "file handle cap exceeded: open=%d cap=%d", a.open, a.cap))
	}
	a.open++
}

// Release gives back one handle slot.
func (a *FileHandleArbiter) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open <= 0 {
		panic(E(Invariant, nil, "file handle release with none held"))
	}
	a.open--
}

// Open returns the current open count (for tests/diagnostics).
func (a *FileHandleArbiter) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}
