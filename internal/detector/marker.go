package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"achievements/internal/storage"
	"achievements/pkg/platform/sentinel"
)

// Marker is the persisted record of the version seen on the last pass.
type Marker struct {
	PreviousRunningVersion string `json:"previous_running_version"`
}

// MarkerKey returns the document key of an instance's version marker.
func MarkerKey(instance string) string {
	return "achievements." + instance + ".version"
}

// MarkerStore reads and writes the version marker document.
type MarkerStore struct {
	docs storage.Documents
	key  string
}

func NewMarkerStore(docs storage.Documents, key string) *MarkerStore {
	return &MarkerStore{docs: docs, key: key}
}

// Load returns the recorded version, or "" when none was ever saved.
func (m *MarkerStore) Load(ctx context.Context) (string, error) {
	data, err := m.docs.Load(ctx, m.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load version marker: %w", err)
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return "", fmt.Errorf("decode version marker: %w", err)
	}
	return marker.PreviousRunningVersion, nil
}

func (m *MarkerStore) Save(ctx context.Context, version string) error {
	data, err := json.Marshal(Marker{PreviousRunningVersion: version})
	if err != nil {
		return fmt.Errorf("encode version marker: %w", err)
	}
	if err := m.docs.Save(ctx, m.key, data); err != nil {
		return fmt.Errorf("save version marker: %w", err)
	}
	return nil
}
