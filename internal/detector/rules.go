// Package detector turns environment facts into achievement candidates.
// Rules are stateless: the detector re-emits a candidate on every pass while
// its condition holds and leaves deduplication to the ledger.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"achievements/internal/achievement"
)

// Source tags every candidate produced by the built-in rules.
const Source = "achievements-core"

// Fixed rule identities. Changing one re-grants the achievement.
const (
	CollectorID       = "6a6a8a11-f477-4b08-8dad-51b9b1f0d49d"
	OutOfDateID       = "ac347c90-f2a5-4166-af0f-e7fb00c81e59"
	DangerousLivingID = "2a9129ec-17c1-4a4b-afae-4fd7ddddf341"
)

const (
	// CollectorThreshold is inclusive.
	CollectorThreshold = 50
	// OutOfDateThreshold is strict.
	OutOfDateThreshold = 10
)

var ErrInvalidFacts = errors.New("invalid facts")

// Facts is the environment snapshot the rules evaluate.
type Facts struct {
	CustomIntegrationCount int `json:"custom_integration_count"`
	PendingUpdateCount     int `json:"pending_update_count"`
}

func (f Facts) Validate() error {
	if f.CustomIntegrationCount < 0 {
		return fmt.Errorf("%w: negative custom_integration_count %d", ErrInvalidFacts, f.CustomIntegrationCount)
	}
	if f.PendingUpdateCount < 0 {
		return fmt.Errorf("%w: negative pending_update_count %d", ErrInvalidFacts, f.PendingUpdateCount)
	}
	return nil
}

// Metrics receives detector observations. A nil Metrics is allowed.
type Metrics interface {
	IncCandidate(rule string)
	IncRuleError(rule string)
}

type rule struct {
	name       string
	needsFacts bool
	eval       func(f Facts, previous, current string) (achievement.Candidate, bool, error)
}

// Detector evaluates the built-in rules.
type Detector struct {
	versions VersionComparer
	logger   *slog.Logger
	metrics  Metrics
	rules    []rule
}

// Option configures a Detector.
type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// New creates a detector. A nil comparer falls back to SemverComparer.
func New(versions VersionComparer, opts ...Option) *Detector {
	if versions == nil {
		versions = SemverComparer{}
	}
	d := &Detector{
		versions: versions,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.rules = []rule{
		{name: "collector", needsFacts: true, eval: d.collector},
		{name: "out_of_date", needsFacts: true, eval: d.outOfDate},
		{name: "dangerous_living", eval: d.dangerousLiving},
	}
	return d
}

// Evaluate runs every rule against facts and returns one envelope per rule
// whose condition holds. A rule that fails is logged and skipped.
func (d *Detector) Evaluate(ctx context.Context, facts Facts, previousVersion, currentVersion string) ([]achievement.Envelope, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	return d.evaluate(ctx, facts, true, previousVersion, currentVersion), nil
}

// EvaluateVersions runs only the rules that need no facts snapshot, for
// passes where the host has not reported facts.
func (d *Detector) EvaluateVersions(ctx context.Context, previousVersion, currentVersion string) []achievement.Envelope {
	return d.evaluate(ctx, Facts{}, false, previousVersion, currentVersion)
}

func (d *Detector) evaluate(ctx context.Context, facts Facts, haveFacts bool, previousVersion, currentVersion string) []achievement.Envelope {
	var out []achievement.Envelope
	for _, r := range d.rules {
		if r.needsFacts && !haveFacts {
			continue
		}
		c, ok, err := r.eval(facts, previousVersion, currentVersion)
		if err != nil {
			d.logger.WarnContext(ctx, "achievement rule failed",
				"rule", r.name,
				"error", err,
			)
			if d.metrics != nil {
				d.metrics.IncRuleError(r.name)
			}
			continue
		}
		if !ok {
			continue
		}
		if d.metrics != nil {
			d.metrics.IncCandidate(r.name)
		}
		out = append(out, achievement.NewEnvelope(c))
	}
	return out
}

func newCandidate(id, title, description string) achievement.Candidate {
	return achievement.Candidate{
		achievement.FieldTitle:       title,
		achievement.FieldDescription: description,
		achievement.FieldSource:      Source,
		achievement.FieldID:          id,
	}
}

func (d *Detector) collector(f Facts, _, _ string) (achievement.Candidate, bool, error) {
	if f.CustomIntegrationCount < CollectorThreshold {
		return nil, false, nil
	}
	return newCandidate(CollectorID, "Collector",
		fmt.Sprintf("You have installed %d custom integration.", f.CustomIntegrationCount)), true, nil
}

func (d *Detector) outOfDate(f Facts, _, _ string) (achievement.Candidate, bool, error) {
	if f.PendingUpdateCount <= OutOfDateThreshold {
		return nil, false, nil
	}
	return newCandidate(OutOfDateID, "Out of date",
		fmt.Sprintf("You have %d pending updates.", f.PendingUpdateCount)), true, nil
}

// dangerousLiving fires when the host moved from one pre-release to a newer
// one. Without a recorded previous version there is nothing to compare.
func (d *Detector) dangerousLiving(_ Facts, previous, current string) (achievement.Candidate, bool, error) {
	if previous == "" || current == "" {
		return nil, false, nil
	}
	prevBeta, err := d.versions.IsPrerelease(previous)
	if err != nil {
		return nil, false, err
	}
	curBeta, err := d.versions.IsPrerelease(current)
	if err != nil {
		return nil, false, err
	}
	if !prevBeta || !curBeta {
		return nil, false, nil
	}
	cmp, err := d.versions.Compare(current, previous)
	if err != nil {
		return nil, false, err
	}
	if cmp <= 0 {
		return nil, false, nil
	}
	return newCandidate(DangerousLivingID, "Dangerous living",
		fmt.Sprintf("You upgraded from beta %s to beta %s.", previous, current)), true, nil
}
