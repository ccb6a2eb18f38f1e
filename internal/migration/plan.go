// Package migration runs ordered deployment plans, one transaction per step.
package migration

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/dcipctl/internal/config"
)

// DefaultStepName names the token deployment step.
const DefaultStepName = "2_token_migration"

// Step deploys one contract. Args are converted with the contract's
// constructor ABI.
type Step struct {
	Name     string   `json:"name" yaml:"name"`
	Contract string   `json:"contract" yaml:"contract"`
	Args     []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// Plan is an ordered list of steps.
type Plan struct {
	Steps []Step
}

// TokenArgs are the DCIP constructor arguments, in constructor order.
type TokenArgs struct {
	Router          common.Address
	MarketingWallet common.Address
	Community       common.Address
}

// TestNetworkArgs are the arguments used on the BSC test network: the
// PancakeSwap router plus the marketing and community wallets.
var TestNetworkArgs = TokenArgs{
	Router:          common.HexToAddress("0x6725F303b657a9451d8BA641348b6761A6CC7a17"),
	MarketingWallet: common.HexToAddress("0xDCDb52F336Ed4E0577F2Ab6b298269aaf20A1EC1"),
	Community:       common.HexToAddress("0xd3EaF9906a4FeE2d4334044559DF0579Fa65F253"),
}

// Strings returns the arguments as checksummed hex, in constructor order.
func (a TokenArgs) Strings() []string {
	return []string{a.Router.Hex(), a.MarketingWallet.Hex(), a.Community.Hex()}
}

// DefaultPlan deploys DCIP with TestNetworkArgs.
func DefaultPlan() Plan {
	return Plan{Steps: []Step{{
		Name:     DefaultStepName,
		Contract: "DCIP",
		Args:     TestNetworkArgs.Strings(),
	}}}
}

// PlanFromConfig builds the plan declared in the config file, falling back
// to DefaultPlan when none is declared.
func PlanFromConfig(steps []config.StepConfig) Plan {
	if len(steps) == 0 {
		return DefaultPlan()
	}
	plan := Plan{Steps: make([]Step, 0, len(steps))}
	for _, s := range steps {
		plan.Steps = append(plan.Steps, Step{Name: s.Name, Contract: s.Contract, Args: s.Args})
	}
	return plan
}

// Validate checks step names are present and unique.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrInvalidPlan)
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Contract) == "" {
			return fmt.Errorf("%w: step %d needs a name and a contract", ErrInvalidPlan, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidPlan, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
