package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bidon15/dcipctl/internal/registry"
)

var (
	deploymentsContract string
	deploymentsAll      bool
)

func newDeploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "List recorded deployments",
		Long: `List the deployments recorded in the registry for the selected network,
oldest first. Reads only the registry; no network connection is made.`,
		Args: cobra.NoArgs,
		RunE: runDeployments,
	}
	cmd.Flags().StringVar(&deploymentsContract, "contract", "", "only list deployments of this contract")
	cmd.Flags().BoolVar(&deploymentsAll, "all", false, "list deployments on every network")
	return cmd
}

func runDeployments(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	filter := registry.Filter{Contract: deploymentsContract}
	if !deploymentsAll {
		p, err := cfg.Profile(networkName)
		if err != nil {
			return err
		}
		filter.Network = p.Name
	}

	reg, err := registry.Open(ctx, cfg.Registry, cfg.BaseDir)
	if err != nil {
		return err
	}
	defer reg.Close()

	list, err := reg.List(ctx, filter)
	if err != nil {
		return err
	}

	if list == nil {
		list = []*registry.Deployment{}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, list)
	}

	if len(list) == 0 {
		_, _ = fmt.Fprintln(out, "No deployments recorded.")
		return nil
	}

	t := newTable(out)
	printTableHeader(t, "NETWORK", "STEP", "CONTRACT", "ADDRESS", "BLOCK", "CREATED")
	for _, d := range list {
		_, _ = fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.Network, d.Step, d.Contract, d.Address, d.BlockNumber, d.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return t.Flush()
}
