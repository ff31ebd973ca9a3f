package achievement

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCandidate matches every InvalidCandidateError via errors.Is.
	ErrInvalidCandidate = errors.New("invalid candidate")
	// ErrMalformedTimestamp is returned by ParseWireTime for unparsable input.
	ErrMalformedTimestamp = errors.New("malformed timestamp")
)

// InvalidCandidateError names the required field a candidate was missing.
type InvalidCandidateError struct {
	Field string
}

func (e *InvalidCandidateError) Error() string {
	return fmt.Sprintf("invalid candidate: missing field %q", e.Field)
}

func (e *InvalidCandidateError) Is(target error) bool {
	return target == ErrInvalidCandidate
}
