package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"achievements/internal/achievement"
)

// StoredLayout is the persisted granted_on format: wall-clock time in the
// ledger's location, microsecond fraction, no offset.
const StoredLayout = "2006-01-02T15:04:05.000000"

// Record is one persisted snapshot entry.
type Record struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Description string `json:"description"`
	GrantedOn   string `json:"granted_on"`
	Source      string `json:"source"`
}

func encodeEntries(entries []achievement.Achievement, loc *time.Location) []Record {
	records := make([]Record, 0, len(entries))
	for _, a := range entries {
		records = append(records, Record{
			Name:        a.Title,
			Key:         a.Key,
			Description: a.Description,
			GrantedOn:   formatStoredTime(a.GrantedOn, loc),
			Source:      a.Source,
		})
	}
	return records
}

func marshalRecords(records []Record) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger snapshot: %w", err)
	}
	return data, nil
}

func decodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal ledger snapshot: %w", err)
	}
	return records, nil
}

// toAchievement rebuilds an achievement from a trusted record. The id is
// recovered from the key; keys that do not start with the source are kept
// whole as the id. An unreadable timestamp yields the zero time and an error.
func (r Record) toAchievement(loc *time.Location) (achievement.Achievement, error) {
	id, ok := strings.CutPrefix(r.Key, r.Source+".")
	if !ok {
		id = r.Key
	}
	grantedOn, err := parseStoredTime(r.GrantedOn, loc)
	return achievement.Achievement{
		ID:          id,
		Source:      r.Source,
		Key:         r.Key,
		Title:       r.Name,
		Description: r.Description,
		GrantedOn:   grantedOn,
	}, err
}

func formatStoredTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(StoredLayout)
}

// parseStoredTime reads StoredLayout (with or without the fraction) in loc.
// Values that carry an offset are honoured as written.
func parseStoredTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", achievement.ErrMalformedTimestamp, s)
}
