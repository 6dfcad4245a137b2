package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewSQLStore(ctx, "sqlite", filepath.Join(t.TempDir(), "test.db"), utils.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecords(n int) []models.FeatureRecord {
	records := make([]models.FeatureRecord, n)
	for i := range records {
		records[i] = models.FeatureRecord{
			Name:     fmt.Sprintf("Restaurant %d", i),
			URL:      fmt.Sprintf("https://www.yelp.com/biz/r-%d", i),
			Label:    i % 2,
			Enriched: i%3 == 0,
		}
		records[i].Set(models.Feature(i%models.NumFeatures), true)
		records[i].Set(models.CovidConcerned, i%4 == 0)
	}
	return records
}

func TestSQLStoreReplaceAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// more than one insert batch
	want := sampleRecords(120)
	require.NoError(t, store.ReplaceRun(ctx, "run-a", want))

	got, err := store.FetchRun(ctx, "run-a")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fetched records (-want +got):\n%s", diff)
	}
}

func TestSQLStoreReplaceOverwritesRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceRun(ctx, "run-a", sampleRecords(10)))
	require.NoError(t, store.ReplaceRun(ctx, "run-b", sampleRecords(4)))
	require.NoError(t, store.ReplaceRun(ctx, "run-a", sampleRecords(3)))

	a, err := store.FetchRun(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, a, 3)

	b, err := store.FetchRun(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, b, 4)
}

func TestSQLStoreUnknownRun(t *testing.T) {
	store := newTestStore(t)

	got, err := store.FetchRun(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSQLStoreMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	first, err := NewSQLStore(ctx, "sqlite", path, utils.Discard())
	require.NoError(t, err)
	require.NoError(t, first.ReplaceRun(ctx, "run", sampleRecords(2)))
	require.NoError(t, first.Close())

	second, err := NewSQLStore(ctx, "sqlite", path, utils.Discard())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.FetchRun(ctx, "run")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestNewSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLStore(context.Background(), "mysql", "", utils.Discard())
	require.Error(t, err)
}
