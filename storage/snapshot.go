package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"yelp-dataset/models"
)

const (
	RawSnapshotFile     = "businesses.json"
	DerivedSnapshotFile = "features.json"
)

// RawSnapshot is the collection stage output. A later run can resume from
// it and skip the search API entirely.
type RawSnapshot struct {
	RunID       string                `json:"run_id"`
	Location    string                `json:"location"`
	CollectedAt time.Time             `json:"collected_at"`
	Businesses  []*models.RawBusiness `json:"businesses"`
}

// DerivedSnapshot is the feature derivation stage output.
type DerivedSnapshot struct {
	RunID     string                 `json:"run_id"`
	Rules     string                 `json:"rules"`
	DerivedAt time.Time              `json:"derived_at"`
	Records   []models.FeatureRecord `json:"records"`
}

// WriteSnapshot stores v as indented JSON at path, creating directories as
// needed.
func WriteSnapshot(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode %q: %w", path, err)
	}
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("snapshot: write %q: %w", path, err)
	}
	return f.Close()
}

// ReadSnapshot decodes the JSON snapshot at path into v.
func ReadSnapshot(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("snapshot: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("snapshot: decode %q: %w", path, err)
	}
	return nil
}
