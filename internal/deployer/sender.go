package deployer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/signer"
)

// Creation is an unsent contract-creation transaction.
type Creation struct {
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// Sender submits contract-creation transactions for one account.
type Sender interface {
	From() common.Address
	Send(ctx context.Context, c Creation) (common.Hash, error)
}

// KeySender signs locally and submits with eth_sendRawTransaction.
type KeySender struct {
	client chain.Client
	signer signer.TransactionSigner
}

// NewKeySender creates a KeySender.
func NewKeySender(client chain.Client, s signer.TransactionSigner) *KeySender {
	return &KeySender{client: client, signer: s}
}

func (s *KeySender) From() common.Address {
	return s.signer.Address()
}

func (s *KeySender) Send(ctx context.Context, c Creation) (common.Hash, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}

	tx := types.NewContractCreation(nonce, big.NewInt(0), c.Gas, c.GasPrice, c.Data)
	signedTx, err := s.signer.SignTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signedTx.Hash(), nil
}

// NodeSender submits through eth_sendTransaction, leaving signing to an
// account the node manages (ganache, anvil, hardhat node).
type NodeSender struct {
	raw  chain.RawCaller
	from common.Address
}

// NewNodeSender uses the node's first account.
func NewNodeSender(ctx context.Context, raw chain.RawCaller) (*NodeSender, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no raw rpc transport", ErrNoAccounts)
	}

	var accounts []common.Address
	if err := raw.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return &NodeSender{raw: raw, from: accounts[0]}, nil
}

func (s *NodeSender) From() common.Address {
	return s.from
}

type sendTxArgs struct {
	From     common.Address `json:"from"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice,omitempty"`
	Value    *hexutil.Big   `json:"value"`
	Data     hexutil.Bytes  `json:"data"`
}

func (s *NodeSender) Send(ctx context.Context, c Creation) (common.Hash, error) {
	args := sendTxArgs{
		From:  s.from,
		Gas:   hexutil.Uint64(c.Gas),
		Value: (*hexutil.Big)(big.NewInt(0)),
		Data:  c.Data,
	}
	if c.GasPrice != nil {
		args.GasPrice = (*hexutil.Big)(c.GasPrice)
	}

	var hash common.Hash
	if err := s.raw.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return hash, nil
}

var (
	_ Sender = (*KeySender)(nil)
	_ Sender = (*NodeSender)(nil)
)
