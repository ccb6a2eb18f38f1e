package config

import (
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WildcardNetworkID matches whatever chain the endpoint reports.
const WildcardNetworkID = "*"

// Provider types.
const (
	ProviderMnemonic   = "mnemonic"
	ProviderPrivateKey = "private_key"
)

// DefaultDerivationPath is the BIP-44 Ethereum base path; the account
// index is appended as the last component.
const DefaultDerivationPath = "m/44'/60'/0'/0"

// NetworkProfile describes how to reach one network and how transactions
// sent to it are considered final.
type NetworkProfile struct {
	Name string `mapstructure:"-" yaml:"-"`

	Host   string `mapstructure:"host" yaml:"host,omitempty" validate:"omitempty,hostname_rfc1123|ip"`
	Port   int    `mapstructure:"port" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	RPCURL string `mapstructure:"rpc_url" yaml:"rpc_url,omitempty" validate:"omitempty,url"`

	// NetworkID is "*" or the decimal chain id.
	NetworkID string          `mapstructure:"network_id" yaml:"network_id"`
	Provider  *ProviderConfig `mapstructure:"provider" yaml:"provider,omitempty"`

	Confirmations int  `mapstructure:"confirmations" yaml:"confirmations" validate:"min=0"`
	TimeoutBlocks int  `mapstructure:"timeout_blocks" yaml:"timeout_blocks" validate:"min=0"`
	SkipDryRun    bool `mapstructure:"skip_dry_run" yaml:"skip_dry_run"`

	Gas        uint64 `mapstructure:"gas" yaml:"gas,omitempty"`
	GasPrice   string `mapstructure:"gas_price" yaml:"gas_price,omitempty" validate:"omitempty,numeric"`
	MinBalance string `mapstructure:"min_balance" yaml:"min_balance,omitempty" validate:"omitempty,numeric"`

	NetworkCheckTimeout time.Duration `mapstructure:"network_check_timeout" yaml:"network_check_timeout"`
}

// profileAliases maps the camelCase profile keys of truffle-style configs,
// lowercased the way viper stores them, to their canonical names.
var profileAliases = map[string]string{
	"rpcurl":                  "rpc_url",
	"networkid":               "network_id",
	"timeoutblocks":           "timeout_blocks",
	"skipdryrun":              "skip_dry_run",
	"gasprice":                "gas_price",
	"minbalance":              "min_balance",
	"networkchecktimeout":     "network_check_timeout",
	"provider.secretfile":     "provider.secret_file",
	"provider.derivationpath": "provider.derivation_path",
	"provider.accountindex":   "provider.account_index",
}

// ProviderConfig describes the credential used to sign transactions.
// Profiles without a provider send through the node's own unlocked accounts.
type ProviderConfig struct {
	Type           string `mapstructure:"type" yaml:"type" validate:"required,oneof=mnemonic private_key"`
	URL            string `mapstructure:"url" yaml:"url,omitempty" validate:"omitempty,url"`
	SecretFile     string `mapstructure:"secret_file" yaml:"secret_file" validate:"required"`
	DerivationPath string `mapstructure:"derivation_path" yaml:"derivation_path,omitempty"`
	AccountIndex   uint32 `mapstructure:"account_index" yaml:"account_index"`
}

// Network is a profile resolved for use: the profile plus its secret.
type Network struct {
	Profile *NetworkProfile
	Secret  *Secret
}

func (p *NetworkProfile) applyDefaults() {
	if p.NetworkCheckTimeout <= 0 {
		p.NetworkCheckTimeout = DefaultNetworkCheckTimeout
	}
	if p.Provider != nil && p.Provider.Type == ProviderMnemonic && p.Provider.DerivationPath == "" {
		p.Provider.DerivationPath = DefaultDerivationPath
	}
	p.NetworkID = strings.TrimSpace(p.NetworkID)
}

// IsLocal reports whether the profile accepts any network id.
func (p *NetworkProfile) IsLocal() bool {
	return p.NetworkID == WildcardNetworkID
}

// ChainID returns the pinned chain id. ok is false for wildcard profiles.
func (p *NetworkProfile) ChainID() (id uint64, ok bool) {
	if p.IsLocal() {
		return 0, false
	}
	id, err := strconv.ParseUint(p.NetworkID, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Endpoint returns the JSON-RPC URL: the provider url, then rpc_url, then
// http://host:port.
func (p *NetworkProfile) Endpoint() string {
	if p.Provider != nil && p.Provider.URL != "" {
		return p.Provider.URL
	}
	if p.RPCURL != "" {
		return p.RPCURL
	}
	if p.Host == "" || p.Port == 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// GasPriceWei returns the configured gas price or nil to use the node's suggestion.
func (p *NetworkProfile) GasPriceWei() *big.Int {
	return parseWei(p.GasPrice)
}

// MinBalanceWei returns the minimum deployer balance or nil for "anything above zero".
func (p *NetworkProfile) MinBalanceWei() *big.Int {
	return parseWei(p.MinBalance)
}

// Validate checks the profile. Local profiles only need a well formed
// endpoint; public profiles also need a provider and positive
// confirmations and timeout_blocks.
func (p *NetworkProfile) Validate() error {
	problems := structProblems(p)

	hasURL := p.RPCURL != "" || (p.Provider != nil && p.Provider.URL != "")

	switch {
	case p.NetworkID == "":
		problems = append(problems, "network_id is required")
	case p.IsLocal():
		// ok
	default:
		if _, ok := p.ChainID(); !ok {
			problems = append(problems, fmt.Sprintf("network_id must be %q or a positive integer, got %q", WildcardNetworkID, p.NetworkID))
		}
		if p.Provider == nil {
			problems = append(problems, "provider is required for public networks")
		}
		if p.Confirmations <= 0 {
			problems = append(problems, "confirmations must be a positive integer")
		}
		if p.TimeoutBlocks <= 0 {
			problems = append(problems, "timeout_blocks must be a positive integer")
		}
	}

	if !hasURL {
		if strings.TrimSpace(p.Host) == "" {
			problems = append(problems, "host is required")
		}
		if p.Port == 0 {
			problems = append(problems, "port is required")
		}
	} else if u, err := url.Parse(p.Endpoint()); err != nil || u.Host == "" {
		problems = append(problems, fmt.Sprintf("endpoint %q is not a valid URL", p.Endpoint()))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: network %q: %s", ErrInvalidProfile, p.Name, strings.Join(problems, "; "))
	}
	return nil
}

func parseWei(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}
