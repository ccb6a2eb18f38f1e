// Package registry records deployed contract instances so later commands
// can find them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/pkg/ulid"
)

// ErrNotFound is returned when no matching deployment is recorded.
var ErrNotFound = errors.New("dcip: deployment not found")

// Deployment is one contract instance created by a migration step.
type Deployment struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Network     string    `json:"network"`
	ChainID     uint64    `json:"chain_id"`
	Step        string    `json:"step"`
	Contract    string    `json:"contract"`
	Address     string    `json:"address"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	Deployer    string    `json:"deployer"`
	Args        []string  `json:"args"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Network  string
	Contract string
}

func (f Filter) match(d *Deployment) bool {
	if f.Network != "" && !strings.EqualFold(f.Network, d.Network) {
		return false
	}
	if f.Contract != "" && f.Contract != d.Contract {
		return false
	}
	return true
}

// Registry stores deployment records.
type Registry interface {
	// Record stores d, assigning ID and CreatedAt when unset.
	Record(ctx context.Context, d *Deployment) error
	// Latest returns the most recent deployment of contract on network.
	Latest(ctx context.Context, network, contract string) (*Deployment, error)
	// List returns matching deployments, oldest first.
	List(ctx context.Context, f Filter) ([]*Deployment, error)
	Close() error
}

// Open returns the registry selected by cfg. Relative file paths resolve
// against baseDir.
func Open(ctx context.Context, cfg config.RegistryConfig, baseDir string) (Registry, error) {
	switch cfg.Driver {
	case "", config.RegistryFile:
		path := cfg.Path
		if path == "" {
			path = config.DefaultRegistryPath
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return NewFileRegistry(path), nil
	case config.RegistryPostgres:
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown registry driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

func prepare(d *Deployment) error {
	if d.Network == "" || d.Contract == "" || d.Address == "" {
		return fmt.Errorf("deployment record needs network, contract and address")
	}
	d.Network = strings.ToLower(d.Network)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.ID == "" {
		d.ID = ulid.NewAt(d.CreatedAt)
	}
	return nil
}

// sortDeployments orders by ID, which sorts by creation time.
func sortDeployments(ds []*Deployment) {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
}
