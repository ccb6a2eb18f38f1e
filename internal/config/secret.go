package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/crypto"
)

// Secret is the signing material read from a provider's secret file.
// Its String and GoString forms never expose the value.
type Secret struct {
	Kind  string
	value string
}

// Value returns the raw mnemonic phrase or hex private key.
func (s *Secret) Value() string {
	return s.value
}

func (s *Secret) String() string {
	return fmt.Sprintf("%s(********)", s.Kind)
}

func (s *Secret) GoString() string {
	return s.String()
}

// PrivateKey parses a private_key secret.
func (s *Secret) PrivateKey() (*ecdsa.PrivateKey, error) {
	if s.Kind != ProviderPrivateKey {
		return nil, fmt.Errorf("%w: secret is a %s, not a private key", ErrInvalidSecret, s.Kind)
	}
	key, err := crypto.HexToECDSA(s.value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// NewSecret validates value as the given kind of secret.
func NewSecret(kind, value string) (*Secret, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrEmptySecret
	}

	switch kind {
	case ProviderMnemonic:
		value = strings.Join(strings.Fields(value), " ")
		if !bip39.IsMnemonicValid(value) {
			return nil, fmt.Errorf("%w: not a valid BIP-39 mnemonic", ErrInvalidSecret)
		}
	case ProviderPrivateKey:
		value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
		if _, err := crypto.HexToECDSA(value); err != nil {
			return nil, fmt.Errorf("%w: not a valid hex private key", ErrInvalidSecret)
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider type %q", ErrInvalidSecret, kind)
	}

	return &Secret{Kind: kind, value: value}, nil
}

// ReadSecret reads and validates the secret file at path.
func ReadSecret(path, kind string) (*Secret, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no secret_file configured", ErrMissingSecret)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSecret, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrMissingSecret, path, err)
	}

	s, err := NewSecret(kind, string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
