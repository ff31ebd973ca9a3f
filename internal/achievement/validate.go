package achievement

import (
	"fmt"
	"time"
)

// WireLayout is how granted_on travels on the event channel: UTC offset
// present, no fractional seconds.
const WireLayout = "2006-01-02T15:04:05-07:00"

// Layouts accepted when parsing granted_on. time.RFC3339 also accepts a
// fractional second and a "Z" suffix; the others cover offsets without a
// colon, which some producers emit.
var wireParseLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
}

// ParseWireTime parses a wire-format timestamp into UTC.
func ParseWireTime(s string) (time.Time, error) {
	for _, layout := range wireParseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// FormatWireTime renders t in WireLayout.
func FormatWireTime(t time.Time) string {
	return t.Format(WireLayout)
}

// Validate checks that every required field is present as a non-empty
// string. The first missing field is reported.
func (c Candidate) Validate() error {
	for _, field := range RequiredFields {
		v, ok := c[field].(string)
		if !ok || v == "" {
			return &InvalidCandidateError{Field: field}
		}
	}
	return nil
}

// GrantedOn resolves the grant time. An absent granted_on yields now. A
// malformed one also yields now, together with an error the caller may log;
// the candidate itself stays valid.
func (c Candidate) GrantedOn(now time.Time) (time.Time, error) {
	raw, present := c[FieldGrantedOn]
	if !present || raw == nil {
		return now, nil
	}
	s, ok := raw.(string)
	if !ok {
		return now, fmt.Errorf("%w: unexpected type %T", ErrMalformedTimestamp, raw)
	}
	t, err := ParseWireTime(s)
	if err != nil {
		return now, err
	}
	return t, nil
}

// Build constructs the achievement from a validated candidate.
func (c Candidate) Build(grantedOn time.Time) Achievement {
	source, _ := c[FieldSource].(string)
	id, _ := c[FieldID].(string)
	title, _ := c[FieldTitle].(string)
	description, _ := c[FieldDescription].(string)
	return Achievement{
		ID:          id,
		Source:      source,
		Key:         IdentityKey(source, id),
		Title:       title,
		Description: description,
		GrantedOn:   grantedOn,
	}
}
