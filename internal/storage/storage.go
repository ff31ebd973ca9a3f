// Package storage defines the durable document store the ledger and the
// version marker are clients of. Each backend gives atomic whole-document
// load and save; there are no partial updates and no cross-document
// transactions.
package storage

import "context"

// Documents loads and saves opaque JSON documents by key.
//
// Load returns sentinel.ErrNotFound when no document exists for key. Backend
// failures are wrapped with sentinel.ErrUnavailable.
type Documents interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// HealthChecker is implemented by backends that can report reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}
