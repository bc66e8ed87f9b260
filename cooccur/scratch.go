package cooccur

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ScratchDir is the batch working directory for one pipeline run: every
// Ingestor worker's Batch files live directly under it, and Cleanup
// removes the whole tree once the Merger has consumed them.
type ScratchDir struct {
	path string
}

// NewScratchDir creates a fresh, uniquely named directory under parent
// (parent must already exist). The uuid suffix makes collisions between
// concurrent runs sharing the same parent practically impossible; a
// collision that does somehow occur is reported as a Config error rather
// than silently reused, since two runs sharing a scratch dir would
// corrupt each other's batches.
func NewScratchDir(parent string) (*ScratchDir, error) {
	name := "cooc-scratch-" + uuid.NewString()
	path := filepath.Join(parent, name)
	if err := os.Mkdir(path, 0o700); err != nil {
		if os.IsExist(err) {
			return nil, E(Config, err, "scratch directory %s already exists", path)
		}
		return nil, E(IO, err, "create scratch directory %s", path)
	}
	return &ScratchDir{path: path}, nil
}

// Path returns the scratch directory's filesystem path.
func (s *ScratchDir) Path() string { return s.path }

// Cleanup removes the scratch directory and everything under it. Safe to
// call even if some batch files were already individually removed.
func (s *ScratchDir) Cleanup() error {
	if err := os.RemoveAll(s.path); err != nil {
		return E(IO, err, "remove scratch directory %s", s.path)
	}
	return nil
}
