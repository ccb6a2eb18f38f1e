package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	hdwallet "github.com/ethereum-optimism/go-ethereum-hdwallet"

	"github.com/Bidon15/dcipctl/internal/config"
)

// DeriveKey derives the private key at base/index from a BIP-39 mnemonic.
// An empty base uses m/44'/60'/0'/0.
func DeriveKey(mnemonic, base string, index uint32) (*ecdsa.PrivateKey, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidSecret, err)
	}

	if base == "" {
		base = config.DefaultDerivationPath
	}
	path, err := hdwallet.ParseDerivationPath(fmt.Sprintf("%s/%d", strings.TrimSuffix(base, "/"), index))
	if err != nil {
		return nil, fmt.Errorf("parse derivation path %q: %w", base, err)
	}

	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive account: %w", err)
	}
	key, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}
	return key, nil
}
