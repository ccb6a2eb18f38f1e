package main

import (
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/preflight"
	"github.com/Bidon15/dcipctl/internal/signer"
)

// networkView is the printable form of a profile. Secret values are
// never included.
type networkView struct {
	Name                string        `json:"name" yaml:"name"`
	NetworkID           string        `json:"network_id" yaml:"network_id"`
	Chain               string        `json:"chain,omitempty" yaml:"chain,omitempty"`
	Local               bool          `json:"local" yaml:"local"`
	Endpoint            string        `json:"endpoint" yaml:"endpoint"`
	Confirmations       int           `json:"confirmations" yaml:"confirmations"`
	TimeoutBlocks       int           `json:"timeout_blocks" yaml:"timeout_blocks"`
	SkipDryRun          bool          `json:"skip_dry_run" yaml:"skip_dry_run"`
	Gas                 uint64        `json:"gas,omitempty" yaml:"gas,omitempty"`
	GasPrice            string        `json:"gas_price,omitempty" yaml:"gas_price,omitempty"`
	MinBalance          string        `json:"min_balance,omitempty" yaml:"min_balance,omitempty"`
	NetworkCheckTimeout time.Duration `json:"network_check_timeout" yaml:"network_check_timeout"`
	Provider            *providerView `json:"provider,omitempty" yaml:"provider,omitempty"`
}

type providerView struct {
	Type           string `json:"type" yaml:"type"`
	SecretFile     string `json:"secret_file" yaml:"secret_file"`
	DerivationPath string `json:"derivation_path,omitempty" yaml:"derivation_path,omitempty"`
	AccountIndex   uint32 `json:"account_index" yaml:"account_index"`
	Secret         string `json:"secret,omitempty" yaml:"secret,omitempty"`
	Account        string `json:"account,omitempty" yaml:"account,omitempty"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newNetworkView(p *config.NetworkProfile) networkView {
	v := networkView{
		Name:                p.Name,
		NetworkID:           p.NetworkID,
		Local:               p.IsLocal(),
		Endpoint:            p.Endpoint(),
		Confirmations:       p.Confirmations,
		TimeoutBlocks:       p.TimeoutBlocks,
		SkipDryRun:          p.SkipDryRun,
		Gas:                 p.Gas,
		GasPrice:            p.GasPrice,
		MinBalance:          p.MinBalance,
		NetworkCheckTimeout: p.NetworkCheckTimeout,
	}
	if id, ok := p.ChainID(); ok {
		v.Chain = preflight.GetNetworkName(id)
	}
	if p.Provider != nil {
		v.Provider = &providerView{
			Type:           p.Provider.Type,
			SecretFile:     p.Provider.SecretFile,
			DerivationPath: p.Provider.DerivationPath,
			AccountIndex:   p.Provider.AccountIndex,
		}
	}
	return v
}

func newNetworksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "Inspect configured network profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List network profiles",
		Args:  cobra.NoArgs,
		RunE:  runNetworksList,
	}, &cobra.Command{
		Use:   "show <name>",
		Short: "Show one network profile",
		Long: `Show a network profile as YAML. The provider's secret file is read to
report which account it controls; the secret itself is masked.`,
		Args: cobra.ExactArgs(1),
		RunE: runNetworksShow,
	})
	return cmd
}

func runNetworksList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	views := make([]networkView, 0, len(cfg.Networks))
	for _, name := range cfg.NetworkNames() {
		views = append(views, newNetworkView(cfg.Networks[name]))
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, views)
	}

	t := newTable(out)
	printTableHeader(t, "NAME", "NETWORK ID", "ENDPOINT", "SIGNER", "CONFIRMATIONS", "TIMEOUT BLOCKS", "DRY RUN")
	for _, v := range views {
		signerType := "node accounts"
		if v.Provider != nil {
			signerType = v.Provider.Type
		}
		_, _ = fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			v.Name, v.NetworkID, v.Endpoint, signerType, v.Confirmations, v.TimeoutBlocks, yesNo(!v.SkipDryRun))
	}
	return t.Flush()
}

func runNetworksShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	p, err := cfg.Profile(args[0])
	if err != nil {
		return err
	}
	v := newNetworkView(p)

	if v.Provider != nil {
		n, err := cfg.Resolve(p.Name)
		switch {
		case err != nil:
			v.Provider.Error = err.Error()
		default:
			v.Provider.Secret = n.Secret.String()
			if sig, err := signer.FromSecret(p.Provider, n.Secret, big.NewInt(0)); err == nil {
				v.Provider.Account = sig.Address().Hex()
			} else {
				v.Provider.Error = err.Error()
			}
		}
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), v)
	}
	return printYAML(cmd.OutOrStdout(), v)
}

// printYAML outputs data as YAML.
func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
