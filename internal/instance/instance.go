// Package instance wires one monitored environment: its ledger, the worker
// feeding it from the bus and the detector schedule publishing to it. Each
// Instance is constructed once and owned by its caller; there is no
// process-wide registry.
package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"achievements/internal/detector"
	detectormetrics "achievements/internal/detector/metrics"
	"achievements/internal/eventbus"
	"achievements/internal/ledger"
	ledgermetrics "achievements/internal/ledger/metrics"
	"achievements/internal/storage"
)

// Config selects per-instance behaviour.
type Config struct {
	ID          string
	HostVersion string

	DetectorEnabled  bool
	DetectorInterval time.Duration

	LedgerDelay        time.Duration
	LedgerFlushTimeout time.Duration
	Location           *time.Location

	Logger *slog.Logger
	// Registerer receives the ledger and detector metrics; nil disables them.
	Registerer prometheus.Registerer
}

// Instance is the per-environment context passed to every component.
type Instance struct {
	ID     string
	Ledger *ledger.Ledger
	Facts  *detector.StaticFacts
	Bus    eventbus.Bus

	worker *ledger.Worker
	runner *detector.Runner
	logger *slog.Logger
}

// New builds an instance over the given document store and bus. The ledger is
// not loaded until Run.
func New(cfg Config, docs storage.Documents, bus eventbus.Bus) (*Instance, error) {
	if cfg.ID == "" {
		return nil, errors.New("instance id is required")
	}
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("instance", cfg.ID)

	ledgerOpts := []ledger.Option{
		ledger.WithDelay(cfg.LedgerDelay),
		ledger.WithFlushTimeout(cfg.LedgerFlushTimeout),
		ledger.WithLocation(cfg.Location),
		ledger.WithLogger(logger),
	}
	detectorOpts := []detector.Option{detector.WithLogger(logger)}
	runnerOpts := []detector.RunnerOption{
		detector.WithInterval(cfg.DetectorInterval),
		detector.WithRunnerLogger(logger),
	}
	if cfg.Registerer != nil {
		reg := prometheus.WrapRegistererWith(prometheus.Labels{"instance": cfg.ID}, cfg.Registerer)
		ledgerOpts = append(ledgerOpts, ledger.WithMetrics(ledgermetrics.New(reg)))
		dm := detectormetrics.New(reg)
		detectorOpts = append(detectorOpts, detector.WithMetrics(dm))
		runnerOpts = append(runnerOpts, detector.WithPassMetrics(dm))
	}

	l := ledger.New(docs, ledger.DocumentKey(cfg.ID), ledgerOpts...)
	facts := detector.NewStaticFacts()

	inst := &Instance{
		ID:     cfg.ID,
		Ledger: l,
		Facts:  facts,
		Bus:    bus,
		worker: ledger.NewWorker(l, bus, ledger.WithWorkerLogger(logger)),
		logger: logger,
	}

	if cfg.DetectorEnabled {
		marker := detector.NewMarkerStore(docs, detector.MarkerKey(cfg.ID))
		runner, err := detector.NewRunner(
			detector.New(detector.SemverComparer{}, detectorOpts...),
			facts,
			marker,
			bus,
			cfg.HostVersion,
			runnerOpts...,
		)
		if err != nil {
			return nil, fmt.Errorf("create detector runner: %w", err)
		}
		inst.runner = runner
	}
	return inst, nil
}

// Run loads the ledger, then runs the worker and the detector schedule until
// ctx is cancelled. Cancellation is a clean stop and returns nil.
func (i *Instance) Run(ctx context.Context) error {
	if err := i.Ledger.Load(ctx); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	// Subscribe before the first detection pass publishes anything.
	if err := i.worker.Subscribe(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.worker.Run(ctx)
	})
	if i.runner != nil {
		g.Go(func() error {
			return i.runner.Run(ctx)
		})
	}

	i.logger.InfoContext(ctx, "achievement instance running",
		"detector", i.runner != nil,
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown flushes the ledger and closes the bus. Call it after Run returns.
func (i *Instance) Shutdown(ctx context.Context) error {
	var errs []error
	if err := i.Ledger.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	if err := i.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}
