package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Bidon15/dcipctl/internal/preflight"
)

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the network is reachable and the deployer account is funded",
		Long: `Run the pre-flight checks for the selected network: the endpoint answers,
its chain id matches the profile's network_id and the deployer account
holds at least min_balance. Nothing is sent.`,
		Args: cobra.NoArgs,
		RunE: runPreflight,
	}
}

func runPreflight(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	snd, err := s.sender(ctx)
	if err != nil {
		return err
	}

	report, err := s.preflight(ctx, snd)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printPreflight(cmd.OutOrStdout(), report)
	}
	return report.Err()
}

func printPreflight(w io.Writer, r *preflight.Report) {
	_, _ = fmt.Fprintf(w, "Network:  %s (%s, chain id %d)\n", r.Network, preflight.GetNetworkName(r.ChainID), r.ChainID)
	_, _ = fmt.Fprintf(w, "Deployer: %s\n", r.Deployer)
	if r.BalanceETH != "" {
		_, _ = fmt.Fprintf(w, "Balance:  %s ETH\n", r.BalanceETH)
	}
	_, _ = fmt.Fprintln(w)

	for _, c := range r.Checks {
		mark := passFail(c.Passed)
		if c.Skipped {
			mark = colorYellow("-")
		}
		_, _ = fmt.Fprintf(w, "  %s %-22s %s\n", mark, c.Name, c.Message)
	}
}
