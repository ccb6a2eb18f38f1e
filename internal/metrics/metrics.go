// Package metrics exposes Prometheus metrics for migration and test runs.
// A CLI run is short lived, so metrics are pushed to a Pushgateway at exit
// instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Deployment outcomes.
const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
	StatusTimeout  = "timeout"
	StatusError    = "error"
	StatusDryRun   = "dry_run"
)

// Recorder owns a private registry. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	deployments      *prometheus.CounterVec
	deployDuration   *prometheus.HistogramVec
	gasUsed          *prometheus.CounterVec
	assertions       *prometheus.CounterVec
	lastRunTimestamp *prometheus.GaugeVec
}

// New creates a Recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// deployments tracks contract creations per network, contract and outcome
		deployments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcip_deployments_total",
				Help: "Total number of contract deployments",
			},
			[]string{"network", "contract", "status"},
		),

		deployDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dcip_deployment_duration_seconds",
				Help:    "Time from submission to final confirmation",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"network", "contract"},
		),

		gasUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcip_deployment_gas_used_total",
				Help: "Gas consumed by successful deployments",
			},
			[]string{"network"},
		),

		assertions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcip_assertions_total",
				Help: "Post-deployment invariant checks",
			},
			[]string{"network", "contract", "method", "result"},
		),

		lastRunTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dcip_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run",
			},
			[]string{"network", "command"},
		),
	}
}

// ObserveDeployment records one deployment attempt.
func (r *Recorder) ObserveDeployment(network, contract, status string, elapsed time.Duration, gas uint64) {
	if r == nil {
		return
	}
	r.deployments.WithLabelValues(network, contract, status).Inc()
	if status == StatusSuccess {
		r.deployDuration.WithLabelValues(network, contract).Observe(elapsed.Seconds())
		r.gasUsed.WithLabelValues(network).Add(float64(gas))
	}
}

// ObserveAssertion records one invariant check.
func (r *Recorder) ObserveAssertion(network, contract, method string, passed bool) {
	if r == nil {
		return
	}
	result := "pass"
	if !passed {
		result = "fail"
	}
	r.assertions.WithLabelValues(network, contract, method, result).Inc()
}

// MarkRun sets the last-run timestamp for a command.
func (r *Recorder) MarkRun(network, command string) {
	if r == nil {
		return
	}
	r.lastRunTimestamp.WithLabelValues(network, command).SetToCurrentTime()
}

// Gatherer returns the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Push sends all metrics to the Pushgateway at url, replacing the job's
// previous group for network, which is sent as the "instance" grouping
// key. An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, job, network string) error {
	if r == nil || url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("instance", network).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
