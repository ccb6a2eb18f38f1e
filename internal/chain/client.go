// Package chain holds the narrow RPC surface dcipctl needs and the code to
// dial it.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrUnreachable is returned when the endpoint cannot be dialed or does not
// answer within the network check timeout.
var ErrUnreachable = errors.New("dcip: rpc endpoint unreachable")

// Client is the subset of the Ethereum JSON-RPC API used for deploying and
// reading contracts. *ethclient.Client and the simulated backend client
// both satisfy it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RawCaller issues JSON-RPC calls that have no typed wrapper, such as
// eth_sendTransaction. *rpc.Client satisfies it.
type RawCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Connection is a dialed endpoint.
type Connection struct {
	Client  Client
	Raw     RawCaller
	ChainID *big.Int

	close func()
}

// NewConnection wraps an existing client. When the client also exposes its
// underlying *rpc.Client, raw calls go through it.
func NewConnection(ctx context.Context, client Client) (*Connection, error) {
	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrUnreachable, err)
	}

	c := &Connection{Client: client, ChainID: id, close: func() {}}
	if rc, ok := client.(interface{ Client() *rpc.Client }); ok {
		c.Raw = rc.Client()
	}
	return c, nil
}

// Dial connects to endpoint and performs one round trip, both bounded by
// timeout.
func Dial(ctx context.Context, endpoint string, timeout time.Duration) (*Connection, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", ErrUnreachable)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, endpoint, err)
	}
	client := ethclient.NewClient(rpcClient)

	id, err := client.ChainID(dialCtx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint, err)
	}

	return &Connection{
		Client:  client,
		Raw:     rpcClient,
		ChainID: id,
		close:   rpcClient.Close,
	}, nil
}

// Close releases the underlying transport.
func (c *Connection) Close() {
	if c != nil && c.close != nil {
		c.close()
	}
}

// WaitForBlock polls until the chain head reaches target. It returns the
// last head seen.
func WaitForBlock(ctx context.Context, client Client, target uint64, interval time.Duration) (uint64, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("block number: %w", err)
		}
		if head >= target {
			return head, nil
		}

		select {
		case <-ctx.Done():
			return head, ctx.Err()
		case <-ticker.C:
		}
	}
}
