package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Bidon15/dcipctl/internal/assertion"
	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/migration"
)

//go:embed dcip.example.yaml
var sampleConfig []byte

var forceInit bool

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dcipctl configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample dcip.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd, &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}, &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the selected network's secret",
		Long: `Load and validate every network profile, then resolve the selected
network including its secret file. No network connection is made.`,
		Args: cobra.NoArgs,
		RunE: runConfigValidate,
	})
	return cmd
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultConfigName + ".yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%w: %s already exists (use --force to overwrite)", config.ErrInvalidConfig, path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, sampleConfig, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s Config file created at %s\n", colorGreen("✓"), path)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  Put the testnet mnemonic in %s and keep it out of version control.\n",
		filepath.Join(filepath.Dir(path), ".secret"))
	return nil
}

// configView is the printable form of the resolved configuration.
type configView struct {
	File         string                `json:"file,omitempty" yaml:"file,omitempty"`
	Networks     []networkView         `json:"networks" yaml:"networks"`
	SolcVersion  string                `json:"solc_version" yaml:"solc_version"`
	ArtifactsDir string                `json:"artifacts_dir" yaml:"artifacts_dir"`
	Registry     registryView          `json:"registry" yaml:"registry"`
	Migrations   []migration.Step      `json:"migrations" yaml:"migrations"`
	Assertions   []assertion.Invariant `json:"assertions" yaml:"assertions"`
	Pushgateway  string                `json:"pushgateway_url,omitempty" yaml:"pushgateway_url,omitempty"`
	MetricsJob   string                `json:"metrics_job" yaml:"metrics_job"`
}

type registryView struct {
	Driver string `json:"driver" yaml:"driver"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	v := configView{
		File:         cfg.File,
		SolcVersion:  cfg.Compilers.Solc.Version,
		ArtifactsDir: cfg.Path(cfg.ArtifactsDir),
		Registry:     registryView{Driver: cfg.Registry.Driver, DSN: maskDSN(cfg.Registry.DSN)},
		Migrations:   migration.PlanFromConfig(cfg.Migrations).Steps,
		Assertions:   assertion.FromConfig(cfg.Assertions),
		Pushgateway:  cfg.Metrics.PushgatewayURL,
		MetricsJob:   cfg.MetricsJob(),
	}
	if cfg.Registry.Driver != config.RegistryPostgres {
		v.Registry.Path = cfg.Path(cfg.Registry.Path)
	}
	for _, name := range cfg.NetworkNames() {
		v.Networks = append(v.Networks, newNetworkView(cfg.Networks[name]))
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), v)
	}
	return printYAML(cmd.OutOrStdout(), v)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if err := migration.PlanFromConfig(cfg.Migrations).Validate(); err != nil {
		return err
	}

	file := cfg.File
	if file == "" {
		file = "(built-in defaults)"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d networks, network %q ready\n",
		colorGreen("✓"), file, len(cfg.Networks), cfg.Active.Profile.Name)
	return nil
}

// maskDSN hides the password in a connection string.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable dsn)"
	}
	return u.Redacted()
}
