// Package billyfs provides a core.ArtifactStore persisted on a go-billy
// filesystem. Use memfs for tests and osfs to keep artifacts on disk.
//
// Layout: <root>/<runID>/<artifactID>
package billyfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"slices"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hupe1980/chimera/artifact"
	"github.com/hupe1980/chimera/core"
)

var _ core.ArtifactStore = (*Store)(nil)

// Options configures a Store.
type Options struct {
	// Root is the directory holding one subdirectory per run.
	// Defaults to "artifacts".
	Root string

	// Perm is the file mode used for new artifacts. Defaults to 0o644.
	Perm os.FileMode
}

// Store keeps artifacts as files on a billy filesystem.
type Store struct {
	fs   billy.Filesystem
	opts Options
	mu   sync.RWMutex
}

// New creates a Store writing to fsys.
func New(fsys billy.Filesystem, optFns ...func(o *Options)) *Store {
	opts := Options{Root: "artifacts", Perm: 0o644}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{fs: fsys, opts: opts}
}

func (s *Store) runDir(runID string) string {
	return path.Join(s.opts.Root, runID)
}

func (s *Store) file(runID, artifactID string) string {
	return path.Join(s.opts.Root, runID, artifactID)
}

// Save writes (or overwrites) the artifact file, creating parent directories.
func (s *Store) Save(runID, artifactID string, data []byte) error {
	if err := artifact.ValidateIDs(runID, artifactID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.file(runID, artifactID)
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	return util.WriteFile(s.fs, name, data, s.opts.Perm)
}

// Get reads the artifact or returns artifact.ErrNotFound.
func (s *Store) Get(runID, artifactID string) ([]byte, error) {
	if err := artifact.ValidateIDs(runID, artifactID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := util.ReadFile(s.fs, s.file(runID, artifactID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, artifact.ErrNotFound
	}
	return data, err
}

// List returns the sorted artifact ids of a run.
func (s *Store) List(runID string) ([]string, error) {
	if err := artifact.ValidateIDs(runID, "x"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	root := s.runDir(runID)
	if _, err := s.fs.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ids, nil
		}
		return nil, err
	}
	if err := s.walk(root, "", &ids); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) walk(dir, prefix string, ids *[]string) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := path.Join(prefix, e.Name())
		if e.IsDir() {
			if err := s.walk(path.Join(dir, e.Name()), rel, ids); err != nil {
				return err
			}
			continue
		}
		*ids = append(*ids, rel)
	}
	return nil
}

// Delete removes the artifact file or returns artifact.ErrNotFound.
func (s *Store) Delete(runID, artifactID string) error {
	if err := artifact.ValidateIDs(runID, artifactID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.file(runID, artifactID)
	if _, err := s.fs.Stat(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.ErrNotFound
		}
		return err
	}
	return s.fs.Remove(name)
}
