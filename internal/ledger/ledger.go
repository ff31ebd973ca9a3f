// Package ledger keeps the ordered, deduplicated log of granted achievements
// for one instance and persists it with coalesced writes.
//
// All mutation goes through Receive. A single mutex guards the log, the
// identity index, the dirty flag and the armed flush timer; store I/O never
// happens while it is held.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"achievements/internal/achievement"
	"achievements/pkg/platform/sentinel"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks achievements/internal/ledger Store,Metrics

var tracer = otel.Tracer("achievements/internal/ledger")

var (
	ErrNotReady          = fmt.Errorf("ledger not loaded: %w", sentinel.ErrInvalidState)
	ErrClosed            = fmt.Errorf("ledger: %w", sentinel.ErrClosed)
	ErrAlreadyGranted    = errors.New("achievement already granted")
	ErrUnsupportedSchema = errors.New("unsupported envelope schema")
)

// DefaultDelay is how long a burst of grants is coalesced before the
// snapshot is written.
const DefaultDelay = 10 * time.Second

// DocumentKey returns the store key of an instance's snapshot.
func DocumentKey(instance string) string {
	return "achievements." + instance
}

// Store is the durable document store the snapshot is loaded from and
// saved to.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Metrics receives ledger observations. A nil Metrics is allowed.
type Metrics interface {
	IncGranted()
	IncRejected(field string)
	IncDuplicate()
	ObserveFlush(start time.Time, err error)
	SetEntries(n int)
}

// State is the ledger lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Ledger is the in-memory log plus its persistence schedule.
type Ledger struct {
	store        Store
	key          string
	delay        time.Duration
	flushTimeout time.Duration
	clock        func() time.Time
	location     *time.Location
	logger       *slog.Logger
	metrics      Metrics
	afterFunc    afterFunc

	// saveMu serializes writes so an older snapshot never lands after a
	// newer one.
	saveMu sync.Mutex

	mu          sync.Mutex
	state       State
	loadStarted bool
	entries     []achievement.Achievement
	index       map[string]int
	dirty       bool
	generation  uint64
	timer       stopper
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.delay = d
		}
	}
}

// WithFlushTimeout bounds a timer-triggered write.
func WithFlushTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.flushTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithClock overrides the receipt-time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLocation sets the zone persisted timestamps are written in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.location = loc
		}
	}
}

// New creates a ledger in the Loading state. Load must complete before
// Receive is called.
func New(store Store, key string, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		key:          key,
		delay:        DefaultDelay,
		flushTimeout: 30 * time.Second,
		clock:        time.Now,
		location:     time.Local,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		afterFunc:    realAfterFunc,
		state:        StateLoading,
		index:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the stored snapshot and moves the ledger to Ready. A missing,
// unreachable or unreadable snapshot yields an empty ledger rather than an
// error. Stored entries are trusted: they are not re-validated and do not
// schedule a flush.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.loadStarted || l.state == StateClosed {
		l.mu.Unlock()
		return fmt.Errorf("load ledger %s: %w", l.key, sentinel.ErrInvalidState)
	}
	l.loadStarted = true
	l.mu.Unlock()

	ctx, span := tracer.Start(ctx, "ledger.load")
	defer span.End()

	records := l.readRecords(ctx)
	span.SetAttributes(attribute.Int("ledger.entries", len(records)))

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		a, err := r.toAchievement(l.location)
		if err != nil {
			l.logger.WarnContext(ctx, "stored achievement has unreadable timestamp",
				"key", r.Key,
				"error", err,
			)
		}
		if _, seen := l.index[a.Key]; !seen {
			l.index[a.Key] = len(l.entries)
		}
		l.entries = append(l.entries, a)
	}
	l.state = StateReady
	if l.metrics != nil {
		l.metrics.SetEntries(len(l.entries))
	}

	l.logger.InfoContext(ctx, "achievement ledger loaded",
		"key", l.key,
		"entries", len(l.entries),
	)
	return nil
}

func (l *Ledger) readRecords(ctx context.Context) []Record {
	data, err := l.store.Load(ctx, l.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		l.logger.InfoContext(ctx, "no stored achievement ledger, starting empty", "key", l.key)
		return nil
	}
	if err != nil {
		l.logger.WarnContext(ctx, "achievement store unavailable, starting empty",
			"key", l.key,
			"error", err,
		)
		return nil
	}
	records, err := decodeRecords(data)
	if err != nil {
		l.logger.WarnContext(ctx, "stored achievement ledger unreadable, starting empty",
			"key", l.key,
			"error", err,
		)
		return nil
	}
	return records
}

// ReceiveEnvelope checks the envelope schema and receives its candidate.
func (l *Ledger) ReceiveEnvelope(ctx context.Context, env achievement.Envelope) (achievement.Achievement, error) {
	if env.MajorVersion != achievement.SchemaMajor {
		return achievement.Achievement{}, fmt.Errorf("%w: %d.%d", ErrUnsupportedSchema, env.MajorVersion, env.MinorVersion)
	}
	return l.Receive(ctx, env.Achievement)
}

// Receive validates a candidate and appends it to the log.
//
// Returns *achievement.InvalidCandidateError when a required field is
// missing, in which case the log is unchanged. A candidate whose identity key
// is already in the log returns the stored achievement and ErrAlreadyGranted.
// Receive never blocks on storage; persistence is scheduled, not performed.
func (l *Ledger) Receive(ctx context.Context, c achievement.Candidate) (achievement.Achievement, error) {
	if state := l.State(); state != StateReady {
		return achievement.Achievement{}, l.stateError(state)
	}

	if err := c.Validate(); err != nil {
		var invalid *achievement.InvalidCandidateError
		if l.metrics != nil && errors.As(err, &invalid) {
			l.metrics.IncRejected(invalid.Field)
		}
		return achievement.Achievement{}, err
	}

	grantedOn, err := c.GrantedOn(l.clock().UTC())
	if err != nil {
		l.logger.WarnContext(ctx, "malformed granted_on, using receipt time",
			"key", c.IdentityKey(),
			"error", err,
		)
	}
	a := c.Build(grantedOn)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateReady {
		return achievement.Achievement{}, l.stateError(l.state)
	}
	if i, ok := l.index[a.Key]; ok {
		if l.metrics != nil {
			l.metrics.IncDuplicate()
		}
		return l.entries[i], ErrAlreadyGranted
	}

	l.index[a.Key] = len(l.entries)
	l.entries = append(l.entries, a)
	l.generation++
	l.dirty = true
	l.scheduleLocked()

	if l.metrics != nil {
		l.metrics.IncGranted()
		l.metrics.SetEntries(len(l.entries))
	}
	return a, nil
}

func (l *Ledger) stateError(state State) error {
	if state == StateClosed {
		return ErrClosed
	}
	return ErrNotReady
}

// Snapshot returns a copy of the log in grant order.
func (l *Ledger) Snapshot() []achievement.Achievement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]achievement.Achievement(nil), l.entries...)
}

// Get returns the achievement with the given identity key.
func (l *Ledger) Get(key string) (achievement.Achievement, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[key]
	if !ok {
		return achievement.Achievement{}, false
	}
	return l.entries[i], true
}

// Len returns the number of entries in the log.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// State returns the lifecycle state.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Dirty reports whether the log has changes not yet written.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}
