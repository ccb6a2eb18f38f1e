package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/Bidon15/dcipctl/internal/artifacts"
	"github.com/Bidon15/dcipctl/internal/assertion"
	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/deployer"
	"github.com/Bidon15/dcipctl/internal/migration"
	"github.com/Bidon15/dcipctl/internal/preflight"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Global flag variables
var (
	cfgFile     string
	networkName string
	jsonOut     bool
	verbose     bool
)

// DefaultNetwork is used when --network is not given.
const DefaultNetwork = "development"

// Exit codes.
const (
	ExitFailure   = 1
	ExitConfig    = 2
	ExitProvider  = 3
	ExitRevert    = 4
	ExitAssertion = 5
)

// dial opens the JSON-RPC connection for the selected network.
var dial = chain.Dial

// logger is configured before every command runs.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// rootCmd is the base command for the CLI
var rootCmd *cobra.Command

func init() {
	rootCmd = newRootCmd()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dcipctl",
		Short: "dcipctl - deploy and check the DCIP token and presale contracts",
		Long: `dcipctl deploys the DCIP token, Presale and PrivateSale contracts to an
EVM network and checks their invariants afterwards.

Networks are described in dcip.yaml (searched in ., ./config and ~/.dcip).
Every key can be overridden with a DCIP_ environment variable, e.g.
DCIP_NETWORKS_TESTNET_PROVIDER_URL. A .env file in the working directory
is loaded first.

Get started:
  $ dcipctl config init               # Write a sample dcip.yaml
  $ dcipctl networks list             # Show configured networks
  $ dcipctl migrate --network testnet # Deploy
  $ dcipctl test --network testnet    # Check deployed contracts`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: .env: %v", config.ErrInvalidConfig, err)
			}
			logger = newLogger(cmd.ErrOrStderr(), verbose)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dcip.yaml)")
	root.PersistentFlags().StringVarP(&networkName, "network", "n", DefaultNetwork, "network profile to use")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newVersionCmd(),
		newNetworksCmd(),
		newConfigCmd(),
		newPreflightCmd(),
		newMigrateCmd(),
		newTestCmd(),
		newDeploymentsCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dcipctl %s\n", Version)
			if verbose {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", Commit)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", BuildDate)
			}
		},
	}
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the root command with the provided arguments (for testing)
func ExecuteWithArgs(args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

// SetOutput sets the output writer for the root command (for testing)
func SetOutput(w io.Writer) {
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)
}

// ResetFlags resets all global flags and rebuilds the command tree (for testing)
func ResetFlags() {
	cfgFile = ""
	networkName = DefaultNetwork
	jsonOut = false
	verbose = false
	rootCmd = newRootCmd()
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(w),
	}))
}

// loadConfig reads the configuration. With resolve set the selected
// network and its secret are resolved as well.
func loadConfig(resolve bool) (*config.Config, error) {
	opts := config.LoadOptions{ConfigFile: cfgFile}
	if resolve {
		opts.Network = networkName
	}
	return config.Load(opts)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrNetworkNotFound),
		errors.Is(err, config.ErrInvalidProfile),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrMissingSecret),
		errors.Is(err, config.ErrEmptySecret),
		errors.Is(err, config.ErrInvalidSecret),
		errors.Is(err, migration.ErrInvalidPlan),
		errors.Is(err, artifacts.ErrNotFound),
		errors.Is(err, artifacts.ErrInvalid),
		errors.Is(err, artifacts.ErrUnlinked),
		errors.Is(err, artifacts.ErrArgs),
		errors.Is(err, artifacts.ErrCompilerMatch):
		return ExitConfig
	case errors.Is(err, chain.ErrUnreachable),
		errors.Is(err, preflight.ErrFailed),
		errors.Is(err, deployer.ErrTimeout),
		errors.Is(err, deployer.ErrNoAccounts):
		return ExitProvider
	case errors.Is(err, deployer.ErrReverted):
		return ExitRevert
	case errors.Is(err, assertion.ErrFailed):
		return ExitAssertion
	default:
		return ExitFailure
	}
}

// Output helpers

// printJSON outputs data as formatted JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints an error message.
func printError(w io.Writer, err error) {
	var revert *deployer.RevertError
	if errors.As(err, &revert) {
		_, _ = fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), err.Error())
		if revert.Reason != "" {
			_, _ = fmt.Fprintf(w, "  Reason: %s\n", revert.Reason)
		}
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), err.Error())
}

// newTable creates a new tabwriter for formatted output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printTableHeader prints a bold header row.
func printTableHeader(w *tabwriter.Writer, columns ...string) {
	for i, col := range columns {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, colorBold(col))
	}
	_, _ = fmt.Fprintln(w)
}

// Terminal colors

func colorRed(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

func colorGreen(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func colorYellow(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func colorBold(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func isTTY() bool {
	return isTerminal(os.Stdout)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// passFail renders a check outcome.
func passFail(passed bool) string {
	if passed {
		return colorGreen("✓")
	}
	return colorRed("✗")
}
