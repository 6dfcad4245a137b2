package storage

import (
	"context"

	"yelp-dataset/models"
)

// RawBusinessWriter persists collected businesses before any derivation.
type RawBusinessWriter interface {
	WriteRaw(businesses []*models.RawBusiness) error
	Close() error
}

// RecordStore persists the derived records of a pipeline run.
type RecordStore interface {
	ReplaceRun(ctx context.Context, runID string, records []models.FeatureRecord) error
	FetchRun(ctx context.Context, runID string) ([]models.FeatureRecord, error)
	Close() error
}
