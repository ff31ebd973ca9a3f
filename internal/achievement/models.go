// Package achievement holds the domain types shared by the detector, the
// event bus and the ledger: granted achievements, untrusted candidates and
// the envelope they travel in.
package achievement

import "time"

// Schema version of the envelope carried on the event channel.
const (
	SchemaMajor = 0
	SchemaMinor = 1
)

// Candidate field names as they appear on the wire.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldSource      = "source"
	FieldID          = "id"
	FieldGrantedOn   = "granted_on"
)

// RequiredFields lists the candidate fields that must be present, in the
// order they are checked.
var RequiredFields = []string{FieldTitle, FieldSource, FieldDescription, FieldID}

// Achievement is an immutable granted fact. Values are copied, never shared.
type Achievement struct {
	ID          string
	Source      string
	Key         string
	Title       string
	Description string
	GrantedOn   time.Time
}

// IdentityKey is the deduplication identity of an achievement.
func IdentityKey(source, id string) string {
	return source + "." + id
}

// Candidate is the loosely typed payload proposing a new achievement. It is
// untrusted until Validate succeeds.
type Candidate map[string]any

// Envelope wraps a candidate with the schema version it was produced with.
type Envelope struct {
	MajorVersion int       `json:"major_version"`
	MinorVersion int       `json:"minor_version"`
	Achievement  Candidate `json:"achievement"`
}

// NewEnvelope wraps a candidate with the current schema version.
func NewEnvelope(c Candidate) Envelope {
	return Envelope{
		MajorVersion: SchemaMajor,
		MinorVersion: SchemaMinor,
		Achievement:  c,
	}
}

// IdentityKey returns the candidate's identity key, or "" when source or id
// are missing. Used for routing and logging before validation.
func (c Candidate) IdentityKey() string {
	source, _ := c[FieldSource].(string)
	id, _ := c[FieldID].(string)
	if source == "" || id == "" {
		return ""
	}
	return IdentityKey(source, id)
}
