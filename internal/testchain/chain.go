package testchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

// Well known development credentials. The mnemonic derives DevKey at
// m/44'/60'/0'/0/0.
const (
	DevMnemonic = "test test test test test test test test test test test junk"
	DevKey      = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

// DefaultBlockInterval is how often New mines a block.
const DefaultBlockInterval = 10 * time.Millisecond

// Chain is a simulated chain with one funded account.
type Chain struct {
	Backend *simulated.Backend
	Client  simulated.Client
	Key     *ecdsa.PrivateKey
	Address common.Address
	ChainID *big.Int
}

// New starts a simulated chain that mines a block every
// DefaultBlockInterval until the test ends.
func New(t testing.TB) *Chain {
	t.Helper()
	c := NewManual(t)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(DefaultBlockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.Backend.Commit()
			}
		}
	}()

	// Registered after NewManual's cleanup, so it runs first.
	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
	return c
}

// NewManual starts a simulated chain that only mines on Commit.
func NewManual(t testing.TB) *Chain {
	t.Helper()

	key, err := crypto.HexToECDSA(DevKey)
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	funds := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	backend := simulated.NewBackend(types.GenesisAlloc{
		addr: {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })

	client := backend.Client()
	chainID, err := client.ChainID(context.Background())
	require.NoError(t, err)

	return &Chain{
		Backend: backend,
		Client:  client,
		Key:     key,
		Address: addr,
		ChainID: chainID,
	}
}
