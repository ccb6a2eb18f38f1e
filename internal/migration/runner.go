package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/dcipctl/internal/artifacts"
	"github.com/Bidon15/dcipctl/internal/deployer"
	"github.com/Bidon15/dcipctl/internal/metrics"
	"github.com/Bidon15/dcipctl/internal/pkg/ulid"
	"github.com/Bidon15/dcipctl/internal/registry"
)

// ErrInvalidPlan is returned for plans that cannot run.
var ErrInvalidPlan = errors.New("dcip: invalid migration plan")

// Deployer is the part of *deployer.Deployer the runner uses.
type Deployer interface {
	From() common.Address
	Deploy(ctx context.Context, a *artifacts.Artifact, args ...any) (*deployer.Result, error)
	DryRun(ctx context.Context, a *artifacts.Artifact, args ...any) error
}

// Options configures a Runner.
type Options struct {
	Network     string
	ChainID     uint64
	SolcVersion string
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name        string `json:"name"`
	Contract    string `json:"contract"`
	Address     string `json:"address,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

// Report summarizes a run. Steps holds only the steps that completed.
type Report struct {
	RunID    string       `json:"run_id"`
	Network  string       `json:"network"`
	ChainID  uint64       `json:"chain_id"`
	Deployer string       `json:"deployer"`
	DryRun   bool         `json:"dry_run"`
	Steps    []StepResult `json:"steps"`
}

// Runner executes plans against one network.
type Runner struct {
	deployer  Deployer
	artifacts *artifacts.Store
	registry  registry.Registry
	opts      Options
	logger    *slog.Logger
}

// NewRunner creates a Runner. reg may be nil for dry runs.
func NewRunner(d Deployer, store *artifacts.Store, reg registry.Registry, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{deployer: d, artifacts: store, registry: reg, opts: opts, logger: logger}
}

type preparedStep struct {
	Step
	artifact *artifacts.Artifact
	args     []any
}

// prepare loads, pins and converts every step before anything is sent.
func (r *Runner) prepare(plan Plan) ([]preparedStep, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	out := make([]preparedStep, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		a, err := r.artifacts.Load(s.Contract)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		if err := artifacts.CheckCompiler(r.opts.SolcVersion, a); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		args, err := a.ConstructorArgs(s.Args)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		out = append(out, preparedStep{Step: s, artifact: a, args: args})
	}
	return out, nil
}

func (r *Runner) newReport(dryRun bool) *Report {
	return &Report{
		RunID:    ulid.New(),
		Network:  r.opts.Network,
		ChainID:  r.opts.ChainID,
		Deployer: r.deployer.From().Hex(),
		DryRun:   dryRun,
		Steps:    []StepResult{},
	}
}

// Run executes the plan in order. Each step is confirmed and recorded
// before the next starts; the first failure stops the run. The returned
// report lists the steps that completed, also on error.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Report, error) {
	if r.registry == nil {
		return nil, fmt.Errorf("%w: no registry to record deployments", ErrInvalidPlan)
	}

	steps, err := r.prepare(plan)
	if err != nil {
		return nil, err
	}

	report := r.newReport(false)
	r.logger.Info("starting migration",
		slog.String("run_id", report.RunID),
		slog.String("network", r.opts.Network),
		slog.Int("steps", len(steps)),
	)

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		r.logger.Info("running step", slog.String("step", s.Name), slog.String("contract", s.Contract))

		started := time.Now()
		res, err := r.deployer.Deploy(ctx, s.artifact, s.args...)
		if err != nil {
			r.opts.Metrics.ObserveDeployment(r.opts.Network, s.Contract, status(err), time.Since(started), 0)
			return report, fmt.Errorf("step %s: %w", s.Name, err)
		}
		r.opts.Metrics.ObserveDeployment(r.opts.Network, s.Contract, metrics.StatusSuccess, time.Since(started), res.GasUsed)

		rec := &registry.Deployment{
			RunID:       report.RunID,
			Network:     r.opts.Network,
			ChainID:     r.opts.ChainID,
			Step:        s.Name,
			Contract:    s.Contract,
			Address:     res.Address.Hex(),
			TxHash:      res.TxHash.Hex(),
			BlockNumber: res.BlockNumber,
			Deployer:    res.From.Hex(),
			Args:        s.Args,
		}
		if err := r.registry.Record(ctx, rec); err != nil {
			return report, fmt.Errorf("step %s: record deployment %s: %w", s.Name, res.Address.Hex(), err)
		}

		report.Steps = append(report.Steps, StepResult{
			Name:        s.Name,
			Contract:    s.Contract,
			Address:     res.Address.Hex(),
			TxHash:      res.TxHash.Hex(),
			BlockNumber: res.BlockNumber,
			GasUsed:     res.GasUsed,
		})
	}

	r.opts.Metrics.MarkRun(r.opts.Network, "migrate")
	r.logger.Info("migration complete", slog.String("run_id", report.RunID), slog.Int("deployed", len(report.Steps)))
	return report, nil
}

// DryRun simulates every step with eth_call and sends nothing. Steps are
// simulated independently against the current chain state.
func (r *Runner) DryRun(ctx context.Context, plan Plan) (*Report, error) {
	steps, err := r.prepare(plan)
	if err != nil {
		return nil, err
	}

	report := r.newReport(true)
	for _, s := range steps {
		if err := r.deployer.DryRun(ctx, s.artifact, s.args...); err != nil {
			r.opts.Metrics.ObserveDeployment(r.opts.Network, s.Contract, status(err), 0, 0)
			return report, fmt.Errorf("step %s: %w", s.Name, err)
		}
		r.opts.Metrics.ObserveDeployment(r.opts.Network, s.Contract, metrics.StatusDryRun, 0, 0)
		report.Steps = append(report.Steps, StepResult{Name: s.Name, Contract: s.Contract, DryRun: true})
		r.logger.Info("dry run passed", slog.String("step", s.Name), slog.String("contract", s.Contract))
	}
	return report, nil
}

func status(err error) string {
	switch {
	case errors.Is(err, deployer.ErrReverted):
		return metrics.StatusReverted
	case errors.Is(err, deployer.ErrTimeout):
		return metrics.StatusTimeout
	default:
		return metrics.StatusError
	}
}
