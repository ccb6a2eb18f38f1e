// Package signer provides the transaction signers used to deploy contracts
// from a locally held key.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Bidon15/dcipctl/internal/config"
)

// ErrUnsupportedSecret is returned for secrets that cannot produce a key.
var ErrUnsupportedSecret = errors.New("dcip: unsupported secret")

// TransactionSigner signs transactions for a single account.
type TransactionSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// LocalSigner implements TransactionSigner with an in-memory private key.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewLocalSigner creates a LocalSigner for key on the given chain.
func NewLocalSigner(key *ecdsa.PrivateKey, chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    new(big.Int).Set(chainID),
	}
}

// NewFromHex creates a LocalSigner from a hex-encoded private key without 0x prefix.
func NewFromHex(hexKey string, chainID *big.Int) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewLocalSigner(key, chainID), nil
}

// FromSecret builds the signer described by a provider and its secret.
func FromSecret(p *config.ProviderConfig, s *config.Secret, chainID *big.Int) (*LocalSigner, error) {
	if p == nil || s == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrUnsupportedSecret)
	}

	switch s.Kind {
	case config.ProviderPrivateKey:
		return NewFromHex(s.Value(), chainID)
	case config.ProviderMnemonic:
		key, err := DeriveKey(s.Value(), p.DerivationPath, p.AccountIndex)
		if err != nil {
			return nil, err
		}
		return NewLocalSigner(key, chainID), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSecret, s.Kind)
	}
}

// Address returns the signer's address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain ID used for EIP-155 signing.
func (s *LocalSigner) ChainID() *big.Int {
	return s.chainID
}

// SignTransaction signs tx with the local key.
func (s *LocalSigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(s.chainID)
	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signedTx, nil
}

var _ TransactionSigner = (*LocalSigner)(nil)
