package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store loads artifacts from a build directory. Both the flat Truffle and
// Hardhat layout (<dir>/<Name>.json) and the Foundry layout
// (<dir>/<Name>.sol/<Name>.json) are searched.
type Store struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string]*Artifact)}
}

// Dir returns the build directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the artifact for the named contract.
func (s *Store) Load(name string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.cache[name]; ok {
		return a, nil
	}

	candidates := []string{
		filepath.Join(s.dir, name+".json"),
		filepath.Join(s.dir, name+".sol", name+".json"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", path, err)
		}

		a, err := Parse(name, data)
		if err != nil {
			return nil, err
		}
		s.cache[name] = a
		return a, nil
	}

	return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.dir)
}
