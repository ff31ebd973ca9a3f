package ledger

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// scheduleLocked arms the debounce timer unless one is already armed.
// Callers hold l.mu.
func (l *Ledger) scheduleLocked() {
	if l.timer != nil {
		return
	}
	l.timer = l.afterFunc(l.delay, l.onTimer)
}

func (l *Ledger) onTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), l.flushTimeout)
	defer cancel()
	// Failures are logged and counted in flush; the log stays dirty and the
	// next mutation arms a new timer.
	_ = l.flush(ctx)
}

// Flush writes the full current snapshot immediately if there are unsaved
// changes. Any armed timer is disarmed.
func (l *Ledger) Flush(ctx context.Context) error {
	return l.flush(ctx)
}

// Close stops the debounce timer, writes any unsaved changes synchronously
// and rejects further grants. Calling Close more than once is a no-op.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	l.state = StateClosed
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	if err := l.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func (l *Ledger) flush(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	records := encodeEntries(l.entries, l.location)
	generation := l.generation
	l.mu.Unlock()

	ctx, span := tracer.Start(ctx, "ledger.flush")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.key", l.key),
		attribute.Int("ledger.entries", len(records)),
	)

	start := time.Now()
	err := l.save(ctx, records)
	if l.metrics != nil {
		l.metrics.ObserveFlush(start, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		l.logger.ErrorContext(ctx, "failed to persist achievement ledger",
			"key", l.key,
			"entries", len(records),
			"error", err,
		)
		return err
	}
	// A grant that landed after the copy keeps the log dirty; it armed its
	// own timer.
	if l.generation == generation {
		l.dirty = false
	}
	l.logger.DebugContext(ctx, "achievement ledger persisted",
		"key", l.key,
		"entries", len(records),
	)
	return nil
}

func (l *Ledger) save(ctx context.Context, records []Record) error {
	data, err := marshalRecords(records)
	if err != nil {
		return err
	}
	if err := l.store.Save(ctx, l.key, data); err != nil {
		return fmt.Errorf("save ledger %s: %w", l.key, err)
	}
	return nil
}
