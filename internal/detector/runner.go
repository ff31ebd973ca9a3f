package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"achievements/internal/achievement"
	"achievements/internal/eventbus"
)

var tracer = otel.Tracer("achievements/internal/detector")

// DefaultInterval is the time between detection passes.
const DefaultInterval = time.Hour

// VersionMarker records the host version seen by the last pass.
type VersionMarker interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, version string) error
}

// readyNotifier is implemented by providers that can announce their first
// snapshot, so the runner does not wait a full interval for it.
type readyNotifier interface {
	Ready() <-chan struct{}
}

// PassMetrics receives one observation per detection pass.
type PassMetrics interface {
	ObservePass(start time.Time, outcome string)
}

// Pass outcomes.
const (
	OutcomeOK = "ok"
	// OutcomePartial means facts were unavailable and only the version
	// rules ran.
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Runner schedules detection passes: one immediately, then one every
// interval until the context is cancelled.
type Runner struct {
	detector       *Detector
	facts          FactsProvider
	marker         VersionMarker
	publisher      eventbus.Publisher
	currentVersion string
	interval       time.Duration
	logger         *slog.Logger
	metrics        PassMetrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithPassMetrics(m PassMetrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

func NewRunner(
	d *Detector,
	facts FactsProvider,
	marker VersionMarker,
	publisher eventbus.Publisher,
	currentVersion string,
	opts ...RunnerOption,
) (*Runner, error) {
	if d == nil {
		return nil, errors.New("detector is required")
	}
	if facts == nil {
		return nil, errors.New("facts provider is required")
	}
	if marker == nil {
		return nil, errors.New("version marker is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	r := &Runner{
		detector:       d,
		facts:          facts,
		marker:         marker,
		publisher:      publisher,
		currentVersion: currentVersion,
		interval:       DefaultInterval,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run blocks until ctx is cancelled. Passes never overlap. When the facts
// provider reports its first snapshot after startup, an extra pass runs
// right away.
func (r *Runner) Run(ctx context.Context) error {
	var ready <-chan struct{}
	if n, ok := r.facts.(readyNotifier); ok {
		ready = n.Ready()
		select {
		case <-ready:
			ready = nil
		default:
		}
	}
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ready:
			ready = nil
			r.RunOnce(ctx)
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single detection pass and reports its outcome.
func (r *Runner) RunOnce(ctx context.Context) string {
	ctx, span := tracer.Start(ctx, "detector.pass",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("detector.running_version", r.currentVersion)),
	)
	defer span.End()

	start := time.Now()
	outcome, err := r.pass(ctx)
	span.SetAttributes(attribute.String("detector.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if r.metrics != nil {
		r.metrics.ObservePass(start, outcome)
	}
	return outcome
}

func (r *Runner) pass(ctx context.Context) (string, error) {
	previous, err := r.marker.Load(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "version marker unreadable, treating as first run", "error", err)
		previous = ""
	}

	outcome := OutcomeOK
	var envelopes []achievement.Envelope
	facts, err := r.facts.Facts(ctx)
	switch {
	case errors.Is(err, ErrFactsUnavailable):
		r.logger.InfoContext(ctx, "no facts yet, running version rules only")
		outcome = OutcomePartial
		envelopes = r.detector.EvaluateVersions(ctx, previous, r.currentVersion)
	case err != nil:
		r.logger.WarnContext(ctx, "failed to read facts, running version rules only", "error", err)
		outcome = OutcomePartial
		envelopes = r.detector.EvaluateVersions(ctx, previous, r.currentVersion)
	default:
		envelopes, err = r.detector.Evaluate(ctx, facts, previous, r.currentVersion)
		if err != nil {
			r.logger.ErrorContext(ctx, "detection pass rejected facts", "error", err)
			return OutcomeFailed, err
		}
	}

	var publishErr error
	for _, env := range envelopes {
		if err := r.publisher.Publish(ctx, env); err != nil {
			r.logger.ErrorContext(ctx, "failed to publish achievement candidate",
				"key", env.Achievement.IdentityKey(),
				"error", err,
			)
			publishErr = errors.Join(publishErr, err)
		}
	}
	if publishErr != nil {
		// Keep the old marker so version based rules fire again next pass.
		return OutcomeFailed, fmt.Errorf("publish candidates: %w", publishErr)
	}

	if r.currentVersion != "" && r.currentVersion != previous {
		if err := r.marker.Save(ctx, r.currentVersion); err != nil {
			r.logger.WarnContext(ctx, "failed to save version marker", "error", err)
			return OutcomeFailed, err
		}
	}

	r.logger.DebugContext(ctx, "detection pass complete",
		"outcome", outcome,
		"candidates", len(envelopes),
		"previous_version", previous,
		"current_version", r.currentVersion,
	)
	return outcome, nil
}
