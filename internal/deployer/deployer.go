// Package deployer submits single contract-creation transactions and waits
// for them to become final.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Bidon15/dcipctl/internal/artifacts"
	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/config"
)

const (
	// DefaultGasLimit is used when gas estimation fails.
	DefaultGasLimit uint64 = 6_721_975
	// DefaultTimeoutBlocks applies to profiles that leave timeout_blocks unset.
	DefaultTimeoutBlocks = 50

	DefaultPollInterval      = time.Second
	DefaultLocalPollInterval = 100 * time.Millisecond

	// DefaultBlockTime is the slowest block interval a wait tolerates before
	// giving up on a stalled node.
	DefaultBlockTime = 15 * time.Second
)

// minGasPrice is the floor applied to node gas price suggestions (2 gwei).
var minGasPrice = big.NewInt(2_000_000_000)

// Config controls how a deployment is sent and when it is final.
type Config struct {
	Confirmations int
	TimeoutBlocks int
	SkipDryRun    bool
	// Gas overrides estimation when non-zero.
	Gas uint64
	// GasPrice overrides the node's suggestion when non-nil.
	GasPrice     *big.Int
	PollInterval time.Duration
	// BlockTime and WaitSlack bound every wait in wall-clock time: waiting
	// for n blocks fails after n*BlockTime + WaitSlack even if no block
	// arrives.
	BlockTime time.Duration
	WaitSlack time.Duration
}

// waitBudget is the wall-clock limit for waiting on that many new blocks.
func (c Config) waitBudget(blocks int) time.Duration {
	return time.Duration(blocks)*c.BlockTime + c.WaitSlack
}

// ConfigFromProfile derives a Config from a network profile.
func ConfigFromProfile(p *config.NetworkProfile) Config {
	cfg := Config{
		Confirmations: p.Confirmations,
		TimeoutBlocks: p.TimeoutBlocks,
		SkipDryRun:    p.SkipDryRun,
		Gas:           p.Gas,
		GasPrice:      p.GasPriceWei(),
		PollInterval:  DefaultPollInterval,
		BlockTime:     DefaultBlockTime,
		WaitSlack:     p.NetworkCheckTimeout,
	}
	if p.IsLocal() {
		cfg.PollInterval = DefaultLocalPollInterval
	}
	return cfg
}

// Result describes a confirmed deployment.
type Result struct {
	Contract    string
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	From        common.Address
}

// Deployer deploys contracts from one account.
type Deployer struct {
	client chain.Client
	sender Sender
	cfg    Config
	logger *slog.Logger
}

// New creates a Deployer.
func New(client chain.Client, sender Sender, cfg Config, logger *slog.Logger) *Deployer {
	if cfg.TimeoutBlocks <= 0 {
		cfg.TimeoutBlocks = DefaultTimeoutBlocks
	}
	if cfg.Confirmations < 0 {
		cfg.Confirmations = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultBlockTime
	}
	if cfg.WaitSlack <= 0 {
		cfg.WaitSlack = config.DefaultNetworkCheckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{client: client, sender: sender, cfg: cfg, logger: logger}
}

// From returns the deploying account.
func (d *Deployer) From() common.Address {
	return d.sender.From()
}

// DryRun simulates the creation with eth_call. A revert is returned as a
// *RevertError; nothing is sent.
func (d *Deployer) DryRun(ctx context.Context, a *artifacts.Artifact, args ...any) error {
	data, err := a.CreationData(args...)
	if err != nil {
		return err
	}
	return d.simulate(ctx, a.ContractName, data)
}

func (d *Deployer) simulate(ctx context.Context, name string, data []byte) error {
	_, err := d.client.CallContract(ctx, ethereum.CallMsg{
		From: d.sender.From(),
		Gas:  d.cfg.Gas,
		Data: data,
	}, nil)
	if err == nil {
		return nil
	}
	if reason, ok := revertReason(err); ok {
		return &RevertError{Contract: name, Reason: reason, DryRun: true}
	}
	return fmt.Errorf("%s: simulate creation: %w", name, err)
}

// Deploy sends exactly one contract-creation transaction for a, waits for it
// to be included and confirmed, and returns the new contract address.
func (d *Deployer) Deploy(ctx context.Context, a *artifacts.Artifact, args ...any) (*Result, error) {
	name := a.ContractName
	data, err := a.CreationData(args...)
	if err != nil {
		return nil, err
	}

	from := d.sender.From()

	if !d.cfg.SkipDryRun {
		if err := d.simulate(ctx, name, data); err != nil {
			return nil, err
		}
		d.logger.Debug("dry run passed", slog.String("contract", name))
	}

	gasPrice, err := d.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	gasLimit := d.gasLimit(ctx, name, from, data)

	d.logger.Info("sending contract creation",
		slog.String("contract", name),
		slog.String("from", from.Hex()),
		slog.Uint64("gas_limit", gasLimit),
		slog.String("gas_price", gasPrice.String()),
	)

	txHash, err := d.sender.Send(ctx, Creation{Gas: gasLimit, GasPrice: gasPrice, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	d.logger.Info("transaction submitted, waiting for receipt",
		slog.String("contract", name),
		slog.String("tx_hash", txHash.Hex()),
	)

	receipt, err := d.waitMined(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &RevertError{
			Contract: name,
			TxHash:   txHash,
			Reason:   d.replayReason(ctx, from, gasLimit, data, receipt.BlockNumber),
		}
	}

	block := receipt.BlockNumber.Uint64()
	if err := d.waitConfirmations(ctx, block); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	d.logger.Info("contract deployed",
		slog.String("contract", name),
		slog.String("address", receipt.ContractAddress.Hex()),
		slog.Uint64("block_number", block),
		slog.Uint64("gas_used", receipt.GasUsed),
	)

	return &Result{
		Contract:    name,
		Address:     receipt.ContractAddress,
		TxHash:      txHash,
		BlockNumber: block,
		GasUsed:     receipt.GasUsed,
		From:        from,
	}, nil
}

func (d *Deployer) gasPrice(ctx context.Context) (*big.Int, error) {
	if d.cfg.GasPrice != nil {
		return d.cfg.GasPrice, nil
	}

	gasPrice, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	// Boost by 50%
	boosted := new(big.Int).Mul(gasPrice, big.NewInt(150))
	boosted = boosted.Div(boosted, big.NewInt(100))

	if boosted.Cmp(minGasPrice) < 0 {
		boosted = new(big.Int).Set(minGasPrice)
	}
	return boosted, nil
}

func (d *Deployer) gasLimit(ctx context.Context, name string, from common.Address, data []byte) uint64 {
	if d.cfg.Gas > 0 {
		return d.cfg.Gas
	}

	estimated, err := d.client.EstimateGas(ctx, ethereum.CallMsg{From: from, Data: data})
	if err != nil {
		d.logger.Warn("gas estimation failed, using default",
			slog.String("contract", name),
			slog.Uint64("gas_limit", DefaultGasLimit),
			slog.String("error", err.Error()),
		)
		return DefaultGasLimit
	}
	// Add 20% buffer
	return estimated * 120 / 100
}

// waitMined polls for the receipt until it appears, more than TimeoutBlocks
// blocks have been produced since submission, or the wall-clock budget for
// that many blocks runs out.
func (d *Deployer) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	budget := d.cfg.waitBudget(d.cfg.TimeoutBlocks)
	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	stalled := func() error {
		return fmt.Errorf("%w: %s not included within %s", ErrTimeout, txHash.Hex(), budget)
	}

	start, err := d.client.BlockNumber(waitCtx)
	if err != nil {
		if expired(ctx, waitCtx) {
			return nil, stalled()
		}
		return nil, fmt.Errorf("block number: %w", err)
	}
	deadline := start + uint64(d.cfg.TimeoutBlocks)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			d.logger.Debug("receipt not available", slog.String("tx_hash", txHash.Hex()), slog.String("error", err.Error()))
		}

		head, err := d.client.BlockNumber(waitCtx)
		if err != nil {
			if expired(ctx, waitCtx) {
				return nil, stalled()
			}
			return nil, fmt.Errorf("block number: %w", err)
		}
		if head > deadline {
			return nil, fmt.Errorf("%w: %s not included after %d blocks", ErrTimeout, txHash.Hex(), head-start)
		}

		select {
		case <-waitCtx.Done():
			if expired(ctx, waitCtx) {
				return nil, stalled()
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// expired reports whether wait hit its own deadline while parent is still live.
func expired(parent, wait context.Context) bool {
	return parent.Err() == nil && errors.Is(wait.Err(), context.DeadlineExceeded)
}

func (d *Deployer) waitConfirmations(ctx context.Context, block uint64) error {
	if d.cfg.Confirmations == 0 {
		return nil
	}

	target := block + uint64(d.cfg.Confirmations)
	d.logger.Info("waiting for confirmations",
		slog.Int("confirmations", d.cfg.Confirmations),
		slog.Uint64("target_block", target),
	)
	budget := d.cfg.waitBudget(d.cfg.Confirmations)
	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	head, err := chain.WaitForBlock(waitCtx, d.client, target, d.cfg.PollInterval)
	if err != nil {
		if expired(ctx, waitCtx) {
			return fmt.Errorf("%w: block %d not reached within %s, head %d", ErrTimeout, target, budget, head)
		}
		return fmt.Errorf("wait for confirmations: %w", err)
	}
	return nil
}

// replayReason re-executes a failed creation at its parent block to recover
// the revert reason, which receipts do not carry.
func (d *Deployer) replayReason(ctx context.Context, from common.Address, gas uint64, data []byte, block *big.Int) string {
	var at *big.Int
	if block != nil && block.Sign() > 0 {
		at = new(big.Int).Sub(block, big.NewInt(1))
	}

	_, err := d.client.CallContract(ctx, ethereum.CallMsg{From: from, Gas: gas, Data: data}, at)
	if err == nil {
		return ""
	}
	if reason, ok := revertReason(err); ok {
		return reason
	}
	return err.Error()
}
