// Package preflight provides pre-deployment validation checks.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/config"
)

// DefaultTimeout is the default timeout for RPC calls.
const DefaultTimeout = 10 * time.Second

// ErrFailed is returned by Report.Err when any check failed.
var ErrFailed = errors.New("dcip: preflight checks failed")

// CheckName identifies a specific pre-flight check.
type CheckName string

const (
	// CheckReachable verifies the RPC endpoint answers.
	CheckReachable CheckName = "rpc_reachable"
	// CheckChainIDMatch verifies the chain ID matches the profile.
	CheckChainIDMatch CheckName = "chain_id_match"
	// CheckDeployerBalance verifies the deployer has funds.
	CheckDeployerBalance CheckName = "deployer_balance"
)

// CheckResult represents the result of a single pre-flight check.
type CheckResult struct {
	Name    CheckName      `json:"name"`
	Passed  bool           `json:"passed"`
	Skipped bool           `json:"skipped,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Request contains the parameters for pre-flight checks.
type Request struct {
	Network string
	// ChainID is the expected chain id; nil skips the comparison.
	ChainID  *big.Int
	Deployer common.Address
	// MinBalance is the required balance in wei; nil requires any non-zero balance.
	MinBalance *big.Int
}

// NewRequest builds the request for a network profile. Wildcard profiles
// skip the chain id comparison.
func NewRequest(p *config.NetworkProfile, deployer common.Address) *Request {
	req := &Request{
		Network:    p.Name,
		Deployer:   deployer,
		MinBalance: p.MinBalanceWei(),
	}
	if id, ok := p.ChainID(); ok {
		req.ChainID = new(big.Int).SetUint64(id)
	}
	return req
}

// Report contains the results of all pre-flight checks.
type Report struct {
	OK         bool          `json:"ok"`
	Network    string        `json:"network"`
	ChainID    uint64        `json:"chain_id"`
	Deployer   string        `json:"deployer"`
	BalanceETH string        `json:"balance_eth,omitempty"`
	Checks     []CheckResult `json:"checks"`
}

// Err returns an error naming the failed checks, or nil.
func (r *Report) Err() error {
	if r.OK {
		return nil
	}
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed && !c.Skipped {
			failed = append(failed, fmt.Sprintf("%s: %s", c.Name, c.Message))
		}
	}
	return fmt.Errorf("%w: %s", ErrFailed, strings.Join(failed, "; "))
}

// Checker performs pre-flight validation checks.
type Checker struct {
	timeout time.Duration
}

// NewChecker creates a new pre-flight checker.
func NewChecker() *Checker {
	return &Checker{
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets a custom timeout for RPC calls.
func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// RunChecks performs all pre-flight checks against client. A failed check
// is reported in the Report, not as an error.
func (c *Checker) RunChecks(ctx context.Context, client chain.Client, req *Request) (*Report, error) {
	if client == nil {
		return nil, fmt.Errorf("invalid request: client is required")
	}
	if req.Deployer == (common.Address{}) {
		return nil, fmt.Errorf("invalid request: deployer address is required")
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report := &Report{
		OK:       true,
		Network:  req.Network,
		Deployer: req.Deployer.Hex(),
		Checks:   make([]CheckResult, 0, 3),
	}

	// Check 1: reachable
	actualChainID, reachable := c.checkReachable(rpcCtx, client)
	report.Checks = append(report.Checks, reachable)
	if !reachable.Passed {
		report.OK = false
		return report, nil // Can't continue without connection
	}
	report.ChainID = actualChainID.Uint64()

	// Check 2: chain id
	chainIDResult := c.checkChainIDMatch(actualChainID, req.ChainID)
	report.Checks = append(report.Checks, chainIDResult)
	if !chainIDResult.Passed && !chainIDResult.Skipped {
		report.OK = false
	}

	// Check 3: balance
	balanceResult := c.checkDeployerBalance(rpcCtx, client, req.Deployer, req.MinBalance)
	report.Checks = append(report.Checks, balanceResult)
	if !balanceResult.Passed {
		report.OK = false
	}
	if haveETH, ok := balanceResult.Details["have_eth"].(string); ok {
		report.BalanceETH = haveETH
	}

	return report, nil
}

func (c *Checker) checkReachable(ctx context.Context, client chain.Client) (*big.Int, CheckResult) {
	result := CheckResult{
		Name: CheckReachable,
	}

	id, err := client.ChainID(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("RPC connection failed: %v", err)
		result.Details = map[string]any{
			"error": err.Error(),
		}
		return nil, result
	}

	result.Passed = true
	result.Message = "Connected to RPC successfully"
	return id, result
}

func (c *Checker) checkChainIDMatch(actual, expected *big.Int) CheckResult {
	result := CheckResult{
		Name: CheckChainIDMatch,
	}

	if expected == nil {
		result.Skipped = true
		result.Passed = true
		result.Message = fmt.Sprintf("Wildcard network id, accepting chain %d (%s)", actual.Uint64(), GetNetworkName(actual.Uint64()))
		return result
	}

	if actual.Cmp(expected) != 0 {
		result.Message = fmt.Sprintf("Chain ID mismatch: expected %d, got %d", expected.Uint64(), actual.Uint64())
		result.Details = map[string]any{
			"expected": expected.Uint64(),
			"actual":   actual.Uint64(),
		}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Chain ID %d confirmed (%s)", expected.Uint64(), GetNetworkName(expected.Uint64()))
	result.Details = map[string]any{
		"chain_id": expected.Uint64(),
	}
	return result
}

func (c *Checker) checkDeployerBalance(ctx context.Context, client chain.Client, addr common.Address, required *big.Int) CheckResult {
	result := CheckResult{
		Name: CheckDeployerBalance,
	}

	balance, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get deployer balance: %v", err)
		result.Details = map[string]any{
			"error": err.Error(),
		}
		return result
	}

	haveETH := weiToETHString(balance)
	result.Details = map[string]any{
		"have_wei": balance.String(),
		"have_eth": haveETH,
	}

	if required == nil {
		if balance.Sign() <= 0 {
			result.Message = fmt.Sprintf("Deployer %s has no funds", addr.Hex())
			return result
		}
		result.Passed = true
		result.Message = fmt.Sprintf("Deployer has %s ETH", haveETH)
		return result
	}

	needETH := weiToETHString(required)
	result.Details["need_wei"] = required.String()
	result.Details["need_eth"] = needETH

	if balance.Cmp(required) < 0 {
		result.Message = fmt.Sprintf("Insufficient deployer balance: have %s ETH, need %s ETH", haveETH, needETH)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Deployer has sufficient balance: %s ETH", haveETH)
	return result
}

// weiToETHString converts wei to a human-readable ETH string.
func weiToETHString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	weiFloat := new(big.Float).SetInt(wei)
	ethFloat := new(big.Float).Quo(weiFloat, big.NewFloat(1e18))

	// Format with up to 4 decimal places
	return ethFloat.Text('f', 4)
}

// GetNetworkName returns a human-readable name for a chain ID.
func GetNetworkName(chainID uint64) string {
	switch chainID {
	case 1:
		return "Ethereum Mainnet"
	case 56:
		return "BNB Smart Chain"
	case 97:
		return "BNB Smart Chain Testnet"
	case 1337:
		return "Local development"
	case 31337:
		return "Hardhat / Anvil"
	case 11155111:
		return "Sepolia"
	default:
		return fmt.Sprintf("Chain %d", chainID)
	}
}
