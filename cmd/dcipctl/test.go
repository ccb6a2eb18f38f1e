package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Bidon15/dcipctl/internal/assertion"
	"github.com/Bidon15/dcipctl/internal/registry"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check invariants of the deployed contracts",
		Long: `Call each configured accessor on the most recently deployed instance of its
contract and compare the result with the expected value. Every invariant
is evaluated; the command fails if any of them does not hold.

Without an assertions section in dcip.yaml the suite checks
Presale.rate() == 750 and PrivateSale.getName() == "my name".`,
		Args: cobra.NoArgs,
		RunE: runTest,
	}
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	reg, err := registry.Open(ctx, s.cfg.Registry, s.cfg.BaseDir)
	if err != nil {
		return err
	}
	defer reg.Close()

	suite := assertion.NewSuite(s.conn.Client, s.store, reg, s.profile().Name, s.metrics, logger)
	report, err := suite.Run(ctx, assertion.FromConfig(s.cfg.Assertions))
	if err != nil {
		return err
	}
	s.pushMetrics(ctx)

	if jsonOut {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printAssertions(cmd.OutOrStdout(), report)
	}
	return report.Err()
}

func printAssertions(w io.Writer, r *assertion.Report) {
	for _, res := range r.Results {
		if res.Passed {
			_, _ = fmt.Fprintf(w, "  %s %s == %s\n", passFail(true), res.Invariant, res.Actual)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", passFail(false), res.Message)
	}
	_, _ = fmt.Fprintf(w, "\n%d passing, %d failing\n", r.Passed, r.Failed)
}
