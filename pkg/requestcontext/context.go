// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values set by middleware and read by handlers and logs.
//
//	requestID := requestcontext.RequestID(ctx)
//	producer := requestcontext.Producer(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	producerKey    struct{}
	requestTimeKey struct{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Producer is the authenticated subject allowed to publish events, or ""
// when authentication is disabled.
func Producer(ctx context.Context) string {
	if p, ok := ctx.Value(producerKey{}).(string); ok {
		return p
	}
	return ""
}

func WithProducer(ctx context.Context, producer string) context.Context {
	return context.WithValue(ctx, producerKey{}, producer)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
