// Package assertion checks post-deployment invariants against the most
// recently deployed instance of each contract.
package assertion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/dcipctl/internal/artifacts"
	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/metrics"
	"github.com/Bidon15/dcipctl/internal/registry"
)

// ErrFailed is returned by Report.Err when at least one invariant failed.
var ErrFailed = errors.New("dcip: assertions failed")

// Invariant is an accessor whose return value must equal Expected.
type Invariant struct {
	Contract string   `json:"contract" yaml:"contract"`
	Method   string   `json:"method" yaml:"method"`
	Args     []string `json:"args,omitempty" yaml:"args,omitempty"`
	Expected any      `json:"expected" yaml:"expected"`
}

func (i Invariant) String() string {
	return i.Contract + "." + i.Method
}

// Defaults are the invariants checked when none are configured.
func Defaults() []Invariant {
	return []Invariant{
		{Contract: "Presale", Method: "rate", Expected: 750},
		{Contract: "PrivateSale", Method: "getName", Expected: "my name"},
	}
}

// FromConfig converts configured invariants, falling back to Defaults.
func FromConfig(cfgs []config.InvariantConfig) []Invariant {
	if len(cfgs) == 0 {
		return Defaults()
	}
	out := make([]Invariant, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Invariant{Contract: c.Contract, Method: c.Method, Args: c.Args, Expected: c.Expected})
	}
	return out
}

// Result is the outcome of one invariant.
type Result struct {
	Invariant string `json:"invariant"`
	Address   string `json:"address,omitempty"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual,omitempty"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message,omitempty"`
}

// Report collects the results of a suite run.
type Report struct {
	Network string   `json:"network"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Results []Result `json:"results"`
}

// Err returns ErrFailed listing every failure, or nil.
func (r *Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	msgs := make([]string, 0, r.Failed)
	for _, res := range r.Results {
		if !res.Passed {
			msgs = append(msgs, res.Message)
		}
	}
	return fmt.Errorf("%w: %s", ErrFailed, strings.Join(msgs, "; "))
}

// Suite evaluates invariants on one network. It only reads chain state.
type Suite struct {
	client    chain.Client
	artifacts *artifacts.Store
	registry  registry.Registry
	network   string
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// NewSuite creates a Suite. m and logger may be nil.
func NewSuite(client chain.Client, store *artifacts.Store, reg registry.Registry, network string, m *metrics.Recorder, logger *slog.Logger) *Suite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suite{client: client, artifacts: store, registry: reg, network: network, metrics: m, logger: logger}
}

// Run evaluates every invariant, continuing past failures. The returned
// error is non-nil only when the context is cancelled; failed invariants
// are reported through Report.Err.
func (s *Suite) Run(ctx context.Context, invariants []Invariant) (*Report, error) {
	report := &Report{Network: s.network, Results: make([]Result, 0, len(invariants))}

	for _, inv := range invariants {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := s.evaluate(ctx, inv)
		report.Results = append(report.Results, res)
		s.metrics.ObserveAssertion(s.network, inv.Contract, inv.Method, res.Passed)

		if res.Passed {
			report.Passed++
			s.logger.Info("invariant holds", slog.String("invariant", inv.String()), slog.String("value", res.Actual))
		} else {
			report.Failed++
			s.logger.Error("invariant failed", slog.String("invariant", inv.String()), slog.String("message", res.Message))
		}
	}

	s.metrics.MarkRun(s.network, "test")
	return report, nil
}

func (s *Suite) evaluate(ctx context.Context, inv Invariant) Result {
	res := Result{Invariant: inv.String(), Expected: format(inv.Expected)}
	fail := func(msg string, args ...any) Result {
		res.Message = inv.String() + ": " + fmt.Sprintf(msg, args...)
		return res
	}

	rec, err := s.registry.Latest(ctx, s.network, inv.Contract)
	if err != nil {
		return fail("%v", err)
	}
	res.Address = rec.Address
	addr := common.HexToAddress(rec.Address)

	code, err := s.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return fail("get code at %s: %v", rec.Address, err)
	}
	if len(code) == 0 {
		return fail("no contract code at %s", rec.Address)
	}

	a, err := s.artifacts.Load(inv.Contract)
	if err != nil {
		return fail("%v", err)
	}
	method, ok := a.ABIDef().Methods[inv.Method]
	if !ok {
		return fail("method %s not in ABI", inv.Method)
	}

	args, err := artifacts.ConvertArgs(method.Inputs, inv.Args)
	if err != nil {
		return fail("%v", err)
	}
	data, err := a.ABIDef().Pack(inv.Method, args...)
	if err != nil {
		return fail("encode call: %v", err)
	}

	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return fail("call: %v", err)
	}
	values, err := method.Outputs.Unpack(out)
	if err != nil {
		return fail("decode result: %v", err)
	}
	if len(values) == 0 {
		return fail("method returns nothing")
	}

	actual := values[0]
	res.Actual = format(actual)

	eq, err := equal(inv.Expected, actual)
	if err != nil {
		return fail("%v", err)
	}
	if !eq {
		return fail("expected %s, got %s", res.Expected, res.Actual)
	}

	res.Passed = true
	return res
}
