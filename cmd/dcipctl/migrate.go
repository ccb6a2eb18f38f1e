package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Bidon15/dcipctl/internal/deployer"
	"github.com/Bidon15/dcipctl/internal/migration"
	"github.com/Bidon15/dcipctl/internal/registry"
)

var dryRun bool

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the migration plan against the selected network",
		Long: `Deploy every contract in the migration plan, in order. Each deployment
is mined, confirmed and recorded in the deployment registry before the
next step starts. The first failure stops the run.

Without a migrations section in dcip.yaml the plan deploys DCIP with the
BSC test network router, marketing and community addresses.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate every step without sending transactions")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	plan := migration.PlanFromConfig(s.cfg.Migrations)
	if err := plan.Validate(); err != nil {
		return err
	}

	snd, err := s.sender(ctx)
	if err != nil {
		return err
	}

	check, err := s.preflight(ctx, snd)
	if err != nil {
		return err
	}
	if err := check.Err(); err != nil {
		return err
	}

	p := s.profile()
	d := deployer.New(s.conn.Client, snd, deployer.ConfigFromProfile(p), logger)
	opts := migration.Options{
		Network:     p.Name,
		ChainID:     s.conn.ChainID.Uint64(),
		SolcVersion: s.cfg.Compilers.Solc.Version,
		Metrics:     s.metrics,
		Logger:      logger,
	}

	var report *migration.Report
	if dryRun {
		report, err = migration.NewRunner(d, s.store, nil, opts).DryRun(ctx, plan)
	} else {
		reg, openErr := registry.Open(ctx, s.cfg.Registry, s.cfg.BaseDir)
		if openErr != nil {
			return openErr
		}
		defer reg.Close()
		report, err = migration.NewRunner(d, s.store, reg, opts).Run(ctx, plan)
	}
	s.pushMetrics(ctx)

	if report != nil {
		if jsonOut {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil && err == nil {
				err = perr
			}
		} else {
			printMigration(cmd.OutOrStdout(), report)
		}
	}
	return err
}

func printMigration(w io.Writer, r *migration.Report) {
	mode := ""
	if r.DryRun {
		mode = colorYellow(" (dry run)")
	}
	_, _ = fmt.Fprintf(w, "Run %s on %s (chain id %d) from %s%s\n\n", r.RunID, r.Network, r.ChainID, r.Deployer, mode)

	if len(r.Steps) == 0 {
		_, _ = fmt.Fprintln(w, "No steps completed.")
		return
	}

	t := newTable(w)
	printTableHeader(t, "STEP", "CONTRACT", "ADDRESS", "TX", "BLOCK", "GAS")
	for _, st := range r.Steps {
		addr, tx := st.Address, st.TxHash
		if st.DryRun {
			addr, tx = "-", "-"
		}
		_, _ = fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%d\t%d\n", st.Name, st.Contract, addr, truncate(tx, 18), st.BlockNumber, st.GasUsed)
	}
	_ = t.Flush()
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
