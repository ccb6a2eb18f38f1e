package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileRegistry keeps deployments in a single JSON document. The file is
// re-read on every call and replaced atomically on every write.
type FileRegistry struct {
	path string
	mu   sync.Mutex
}

type fileDoc struct {
	Deployments []*Deployment `json:"deployments"`
}

// NewFileRegistry creates a registry backed by path. The file is created on
// the first Record.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Path returns the backing file.
func (r *FileRegistry) Path() string {
	return r.path
}

func (r *FileRegistry) Record(ctx context.Context, d *Deployment) error {
	if err := prepare(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	doc.Deployments = append(doc.Deployments, d)
	return r.write(doc)
}

func (r *FileRegistry) Latest(ctx context.Context, network, contract string) (*Deployment, error) {
	list, err := r.List(ctx, Filter{Network: network, Contract: contract})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, contract, network)
	}
	return list[len(list)-1], nil
}

func (r *FileRegistry) List(ctx context.Context, f Filter) ([]*Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}

	out := make([]*Deployment, 0, len(doc.Deployments))
	for _, d := range doc.Deployments {
		if f.match(d) {
			out = append(out, d)
		}
	}
	sortDeployments(out)
	return out, nil
}

func (r *FileRegistry) Close() error {
	return nil
}

func (r *FileRegistry) read() (*fileDoc, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDoc{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var doc fileDoc
	if len(data) == 0 {
		return &doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	return &doc, nil
}

func (r *FileRegistry) write(doc *fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(append(data, '\n'))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write registry: %w", err)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

var _ Registry = (*FileRegistry)(nil)
