package main

import (
	"context"
	"fmt"

	"github.com/Bidon15/dcipctl/internal/artifacts"
	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/deployer"
	"github.com/Bidon15/dcipctl/internal/metrics"
	"github.com/Bidon15/dcipctl/internal/preflight"
	"github.com/Bidon15/dcipctl/internal/signer"
)

// session is a loaded configuration plus a live connection to the
// selected network.
type session struct {
	cfg     *config.Config
	network *config.Network
	conn    *chain.Connection
	store   *artifacts.Store
	metrics *metrics.Recorder
}

// openSession loads the configuration and the selected network's secret,
// then dials. Configuration problems surface before any network I/O.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	p := cfg.Active.Profile

	logger.Debug("dialing network",
		"network", p.Name,
		"endpoint", p.Endpoint(),
		"timeout", p.NetworkCheckTimeout)

	conn, err := dial(ctx, p.Endpoint(), p.NetworkCheckTimeout)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", p.Name, err)
	}

	return &session{
		cfg:     cfg,
		network: cfg.Active,
		conn:    conn,
		store:   artifacts.NewStore(cfg.Path(cfg.ArtifactsDir)),
		metrics: metrics.New(),
	}, nil
}

func (s *session) profile() *config.NetworkProfile {
	return s.network.Profile
}

func (s *session) Close() {
	s.conn.Close()
}

// sender signs locally when the profile has a provider and falls back to
// the node's first unlocked account otherwise.
func (s *session) sender(ctx context.Context) (deployer.Sender, error) {
	if s.network.Secret != nil {
		sig, err := signer.FromSecret(s.profile().Provider, s.network.Secret, s.conn.ChainID)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", s.profile().Name, err)
		}
		return deployer.NewKeySender(s.conn.Client, sig), nil
	}

	snd, err := deployer.NewNodeSender(ctx, s.conn.Raw)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", s.profile().Name, err)
	}
	return snd, nil
}

// preflight runs the pre-flight checks for the deployer account.
func (s *session) preflight(ctx context.Context, snd deployer.Sender) (*preflight.Report, error) {
	p := s.profile()
	req := preflight.NewRequest(p, snd.From())
	return preflight.NewChecker().
		WithTimeout(p.NetworkCheckTimeout).
		RunChecks(ctx, s.conn.Client, req)
}

// pushMetrics pushes to the configured Pushgateway. Failures are logged.
func (s *session) pushMetrics(ctx context.Context) {
	url := s.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	if err := s.metrics.Push(ctx, url, s.cfg.MetricsJob(), s.profile().Name); err != nil {
		logger.Warn("metrics push failed", "error", err)
		return
	}
	logger.Debug("metrics pushed", "url", url, "job", s.cfg.MetricsJob())
}
