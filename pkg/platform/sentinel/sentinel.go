package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the event bus return
// these (optionally wrapped) so the ledger and detector can decide how to
// degrade without knowing which backend is configured.
//
// - ErrNotFound: document does not exist in the store
// - ErrUnavailable: store or broker could not be reached or answered with an error
// - ErrInvalidState: component in the wrong lifecycle state for the call
// - ErrClosed: component already shut down
//
// For candidate validation failures, use achievement.InvalidCandidateError.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
	ErrClosed       = errors.New("closed")
)
