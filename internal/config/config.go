// Package config provides the network profile table and the rest of the
// dcipctl configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default values shared by the loader and the sample config.
const (
	DefaultConfigName   = "dcip"
	DefaultArtifactsDir = "build/contracts"
	DefaultRegistryPath = "build/deployments.json"
	DefaultSolcVersion  = "^0.6.8"
	DefaultMetricsJob   = "dcipctl"

	// DefaultNetworkCheckTimeout bounds dialing and the first RPC round trip.
	DefaultNetworkCheckTimeout = 20 * time.Second
)

// Registry drivers.
const (
	RegistryFile     = "file"
	RegistryPostgres = "postgres"
)

// Config holds all configuration for dcipctl.
type Config struct {
	Networks     map[string]*NetworkProfile `mapstructure:"networks"`
	Compilers    CompilersConfig            `mapstructure:"compilers"`
	ArtifactsDir string                     `mapstructure:"artifacts_dir" validate:"required"`
	Registry     RegistryConfig             `mapstructure:"registry"`
	Migrations   []StepConfig               `mapstructure:"migrations" validate:"dive"`
	Assertions   []InvariantConfig          `mapstructure:"assertions" validate:"dive"`
	Metrics      MetricsConfig              `mapstructure:"metrics"`

	// BaseDir is the directory relative paths are resolved against: the
	// directory of the config file that was read, or the working directory.
	BaseDir string `mapstructure:"-"`
	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`

	// Active is the resolved network selected at load time, nil when no
	// network was requested.
	Active *Network `mapstructure:"-" validate:"-"`
}

// CompilersConfig pins the compiler the artifacts must have been built with.
type CompilersConfig struct {
	Solc SolcConfig `mapstructure:"solc"`
}

// SolcConfig holds the solc version constraint, e.g. "^0.6.8".
type SolcConfig struct {
	Version string `mapstructure:"version"`
}

// RegistryConfig selects where deployment records are kept.
type RegistryConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=file postgres"`
	Path   string `mapstructure:"path" validate:"required_if=Driver file"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

// StepConfig is one migration step declared in the config file.
type StepConfig struct {
	Name     string   `mapstructure:"name" validate:"required"`
	Contract string   `mapstructure:"contract" validate:"required"`
	Args     []string `mapstructure:"args"`
}

// InvariantConfig is one post-deployment assertion declared in the config
// file. Expected may be a zero value such as 0 or false.
type InvariantConfig struct {
	Contract string   `mapstructure:"contract" validate:"required"`
	Method   string   `mapstructure:"method" validate:"required"`
	Args     []string `mapstructure:"args"`
	Expected any      `mapstructure:"expected"`
}

// MetricsConfig configures the optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job"`
}

// LoadOptions controls Load.
type LoadOptions struct {
	// ConfigFile is an explicit config file. When empty the loader searches
	// for dcip.yaml in ., ./config and $HOME/.dcip; not finding one is fine.
	ConfigFile string
	// Network selects the active network. Its secret, if any, is read
	// during Load.
	Network string
}

// Load reads configuration from files and environment variables, validates
// every network profile and, when opts.Network is set, resolves the active
// network including its secret material.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dcip"))
		}
	}

	v.SetEnvPrefix("DCIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || opts.ConfigFile != "" {
			return nil, fmt.Errorf("%w: read config file: %v", ErrInvalidConfig, err)
		}
	}

	if err := normalizeProfileKeys(v); err != nil {
		return nil, err
	}

	var (
		cfg Config
		md  mapstructure.Metadata
	)
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.Metadata = &md }); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrInvalidConfig, err)
	}
	if unknown := unknownKeys(md.Unused); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrInvalidConfig, strings.Join(unknown, ", "))
	}

	cfg.File = v.ConfigFileUsed()
	cfg.BaseDir = "."
	if cfg.File != "" {
		cfg.BaseDir = filepath.Dir(cfg.File)
	}

	for name, p := range cfg.Networks {
		if p == nil {
			// "networks: {foo: }" decodes to a nil profile.
			p = &NetworkProfile{}
			cfg.Networks[name] = p
		}
		p.Name = name
		p.applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.Network != "" {
		active, err := cfg.Resolve(opts.Network)
		if err != nil {
			return nil, err
		}
		cfg.Active = active
	}

	return &cfg, nil
}

// normalizeProfileKeys copies camelCase profile keys onto their canonical
// names. Setting both spellings in one profile is an error.
func normalizeProfileKeys(v *viper.Viper) error {
	for name := range v.GetStringMap("networks") {
		prefix := "networks." + name + "."
		for alias, key := range profileAliases {
			if !v.InConfig(prefix + alias) {
				continue
			}
			if v.InConfig(prefix + key) {
				return fmt.Errorf("%w: network %q sets both %s and %s", ErrInvalidConfig, name, alias, key)
			}
			v.Set(prefix+key, v.Get(prefix+alias))
		}
	}
	return nil
}

// unknownKeys drops the aliases normalizeProfileKeys already consumed from
// the decoder's unused keys, which look like "networks[testnet].gasprice".
func unknownKeys(unused []string) []string {
	var out []string
	for _, k := range unused {
		if rest, ok := strings.CutPrefix(k, "networks["); ok {
			if i := strings.Index(rest, "]."); i >= 0 {
				if _, alias := profileAliases[rest[i+2:]]; alias {
					continue
				}
			}
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// setDefaults configures the built-in network table and default settings.
func setDefaults(v *viper.Viper) {
	// Local development node (ganache / anvil / hardhat node).
	v.SetDefault("networks.development.host", "127.0.0.1")
	v.SetDefault("networks.development.port", 8545)
	v.SetDefault("networks.development.network_id", WildcardNetworkID)

	// Binance Smart Chain testnet.
	v.SetDefault("networks.testnet.network_id", "97")
	v.SetDefault("networks.testnet.confirmations", 10)
	v.SetDefault("networks.testnet.timeout_blocks", 200)
	v.SetDefault("networks.testnet.skip_dry_run", true)
	v.SetDefault("networks.testnet.provider.type", ProviderMnemonic)
	v.SetDefault("networks.testnet.provider.url", "https://data-seed-prebsc-1-s1.binance.org:8545")
	v.SetDefault("networks.testnet.provider.secret_file", ".secret")

	v.SetDefault("compilers.solc.version", DefaultSolcVersion)
	v.SetDefault("artifacts_dir", DefaultArtifactsDir)

	v.SetDefault("registry.driver", RegistryFile)
	v.SetDefault("registry.path", DefaultRegistryPath)

	v.SetDefault("metrics.job", DefaultMetricsJob)
}

// Validate checks the whole configuration, including every network profile.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("%w: no networks configured", ErrInvalidConfig)
	}

	if problems := structProblems(c); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	for _, name := range c.NetworkNames() {
		if err := c.Networks[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NetworkNames returns the configured network names in sorted order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the profile with the given name. Lookup is
// case-insensitive because viper lowercases map keys.
func (c *Config) Profile(name string) (*NetworkProfile, error) {
	p, ok := c.Networks[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %s)", ErrNetworkNotFound, name, strings.Join(c.NetworkNames(), ", "))
	}
	return p, nil
}

// Resolve selects a network and reads its secret material.
func (c *Config) Resolve(name string) (*Network, error) {
	p, err := c.Profile(name)
	if err != nil {
		return nil, err
	}

	n := &Network{Profile: p}
	if p.Provider != nil {
		secret, err := ReadSecret(c.Path(p.Provider.SecretFile), p.Provider.Type)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", p.Name, err)
		}
		n.Secret = secret
	}
	return n, nil
}

// Path resolves p against BaseDir unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// MetricsJob returns the Pushgateway job name.
func (c *Config) MetricsJob() string {
	if c.Metrics.Job == "" {
		return DefaultMetricsJob
	}
	return c.Metrics.Job
}
