package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"achievements/internal/achievement"
	"achievements/internal/eventbus"
)

// Worker consumes envelopes from the bus and hands them to the ledger.
// Rejected and duplicate candidates are logged and skipped; they never stop
// the worker.
type Worker struct {
	ledger     *Ledger
	subscriber eventbus.Subscriber
	logger     *slog.Logger
	sub        eventbus.Subscription
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWorker(l *Ledger, subscriber eventbus.Subscriber, opts ...WorkerOption) *Worker {
	w := &Worker{
		ledger:     l,
		subscriber: subscriber,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe opens the bus subscription ahead of Run, so nothing published
// between startup and Run is missed. Run subscribes itself otherwise.
func (w *Worker) Subscribe(ctx context.Context) error {
	if w.sub != nil {
		return nil
	}
	sub, err := w.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	w.sub = sub
	return nil
}

// Run processes messages until ctx is cancelled, the subscription ends or
// the ledger is closed. The subscription is closed on return.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Subscribe(ctx); err != nil {
		return err
	}
	sub := w.sub
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if err := w.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg eventbus.Message) error {
	a, err := w.ledger.ReceiveEnvelope(ctx, msg.Envelope)
	switch {
	case err == nil:
		w.logger.InfoContext(ctx, "achievement granted",
			"message_id", msg.ID,
			"key", a.Key,
			"title", a.Title,
		)
		return nil
	case errors.Is(err, ErrAlreadyGranted):
		w.logger.DebugContext(ctx, "achievement already granted",
			"message_id", msg.ID,
			"key", a.Key,
		)
		return nil
	case errors.Is(err, achievement.ErrInvalidCandidate), errors.Is(err, ErrUnsupportedSchema):
		w.logger.WarnContext(ctx, "rejected achievement candidate",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	case errors.Is(err, ErrClosed):
		return err
	default:
		w.logger.ErrorContext(ctx, "failed to record achievement",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}
}
