// Package eventbus carries achievement candidates from producers to the
// ledger. Memory is the in-process bus; package kafka provides a broker
// backed implementation with the same interface.
package eventbus

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"achievements/internal/achievement"
	"achievements/pkg/platform/sentinel"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = fmt.Errorf("event bus: %w", sentinel.ErrClosed)

// Message is one delivered envelope. ID is assigned at publish time and
// only used for correlation in logs.
type Message struct {
	ID       uuid.UUID
	Envelope achievement.Envelope
}

// Publisher sends envelopes to every current subscriber.
type Publisher interface {
	Publish(ctx context.Context, env achievement.Envelope) error
}

// Subscriber opens a subscription. The caller owns it and must Close it.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Bus is a publish/subscribe channel for envelopes.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription delivers messages until closed. Messages is closed once the
// subscription or the bus is closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}
