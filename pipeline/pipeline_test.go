package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yelp-dataset/models"
	"yelp-dataset/scraper/yelp"
	"yelp-dataset/services"
	"yelp-dataset/storage"
	"yelp-dataset/utils"
)

var ratings = []float64{4.5, 4.0, 5.0, 4.2, 3.0, 2.5}

func page(saturday string, amenities ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 7; i++ {
		hours := "11:00 AM - 10:00 PM"
		if i == 5 {
			hours = saturday
		}
		fmt.Fprintf(&b, `<p class="no-wrap__373c0__2vNX7 css-1h1j0y3">%s</p>`, hours)
	}
	for _, a := range amenities {
		fmt.Fprintf(&b, `<span class="css-1h1j0y3">%s</span>`, a)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// newYelpServer serves both the search endpoint and the business pages.
// Business 1 has no page.
func newYelpServer(t *testing.T) *httptest.Server {
	t.Helper()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v3/businesses/search":
			items := make([]map[string]any, 0, len(ratings))
			for i, rating := range ratings {
				items = append(items, map[string]any{
					"id":           fmt.Sprintf("biz-%d", i),
					"name":         fmt.Sprintf("Restaurant %d", i),
					"rating":       rating,
					"price":        "$$$",
					"transactions": []string{"delivery"},
					"categories":   []map[string]string{{"alias": "pizza"}},
					"url":          fmt.Sprintf("%s/biz/%d", ts.URL, i),
				})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"total": len(ratings), "businesses": items})
		case r.URL.Path == "/biz/1":
			http.NotFound(w, r)
		case r.URL.Path == "/biz/0":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page("10:00 AM - 3:00 PM", "Outdoor Seating", "Staff wears masks")))
		case strings.HasPrefix(r.URL.Path, "/biz/"):
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page("5:00 PM - 11:00 PM")))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newRunner(t *testing.T, baseURL, outDir string, store storage.RecordStore) *Runner {
	t.Helper()
	logger := utils.Discard()
	collector := yelp.NewCollector(yelp.CollectorOptions{BaseURL: baseURL, APIKey: "k"}, logger)
	retry := &utils.RetryConfig{MaxAttempts: 1, Logger: logger}
	enricher := yelp.NewEnricher(yelp.SchemaV1, yelp.NewHTTPFetcher(5*time.Second, retry, logger),
		utils.NewWorkerPool(3, 0), logger)
	return NewRunner(Options{Location: "Pittsburgh", OutputDir: outDir}, collector, enricher, store, logger)
}

func TestRunEndToEnd(t *testing.T) {
	ts := newYelpServer(t)
	outDir := t.TempDir()
	store, err := storage.NewSQLStore(context.Background(), "sqlite", filepath.Join(outDir, "test.db"), utils.Discard())
	require.NoError(t, err)
	defer store.Close()

	res, err := newRunner(t, ts.URL, outDir, store).Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, res.RunID)
	require.Len(t, res.Businesses, 6)
	require.Len(t, res.Records, 6)

	first := res.Records[0]
	require.True(t, first.Enriched)
	require.True(t, first.Get(models.OpensInAM))
	require.True(t, first.Get(models.HasOutdoorSeating))
	require.True(t, first.Get(models.CovidConcerned))
	require.True(t, first.Get(models.HighPrices))
	require.True(t, first.Get(models.HasPizza))

	require.False(t, res.Records[1].Enriched)
	require.False(t, res.Records[2].Get(models.OpensInAM))
	require.True(t, res.Records[2].Enriched)

	// 4 positives, 2 negatives: the first two positives and both negatives
	require.Equal(t, models.Vector{1, 1, 0, 0}, res.Dataset.Y)

	for _, name := range []string{storage.RawSnapshotFile, storage.DerivedSnapshotFile, "businesses.csv", storage.XTrainFile, storage.YTrainFile} {
		_, err := os.Stat(filepath.Join(res.RunDir, name))
		require.NoError(t, err, "missing artifact %s", name)
	}

	stored, err := store.FetchRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Equal(t, res.Records, stored)

	require.Equal(t, 6, res.Report.TotalBusinesses)
	require.Equal(t, 5, res.Report.Enriched)
	require.Equal(t, 4, res.Report.BalancedRows)
}

type fakeCollector struct {
	businesses []*models.RawBusiness
	err        error
	calls      int
}

func (c *fakeCollector) Collect(context.Context, string) ([]*models.RawBusiness, error) {
	c.calls++
	return c.businesses, c.err
}

type fakeEnricher struct{}

func (fakeEnricher) EnrichAll(_ context.Context, businesses []*models.RawBusiness) []models.Enrichment {
	out := make([]models.Enrichment, len(businesses))
	for i := range out {
		out[i] = models.Available(true, []string{"Outdoor Seating"})
	}
	return out
}

func TestRunResumesFromRawSnapshot(t *testing.T) {
	outDir := t.TempDir()
	snapPath := filepath.Join(t.TempDir(), storage.RawSnapshotFile)
	require.NoError(t, storage.WriteSnapshot(snapPath, storage.RawSnapshot{
		RunID:    "earlier-run",
		Location: "Pittsburgh",
		Businesses: []*models.RawBusiness{
			{ID: "a", Name: "A", Rating: 4.5, URL: "u"},
			{ID: "b", Name: "B", Rating: 3.5, URL: "u"},
		},
	}))

	collector := &fakeCollector{}
	r := NewRunner(Options{OutputDir: outDir, ResumeFrom: snapPath}, collector, fakeEnricher{}, nil, utils.Discard())
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 0, collector.calls)
	require.Equal(t, "earlier-run", res.RunID)
	require.Equal(t, filepath.Join(outDir, "earlier-run"), res.RunDir)
	require.Equal(t, 2, res.Dataset.Len())
	require.True(t, res.Records[0].Get(models.OpensInAM))
}

func TestRunWithoutBusinesses(t *testing.T) {
	r := NewRunner(Options{OutputDir: t.TempDir()}, &fakeCollector{}, fakeEnricher{}, nil, utils.Discard())
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoBusinesses)
}

func TestRunPropagatesCollectionError(t *testing.T) {
	cause := &yelp.CollectionError{Query: "Pittsburgh", StatusCode: 401, Err: errors.New("unauthorized")}
	r := NewRunner(Options{OutputDir: t.TempDir()}, &fakeCollector{err: cause}, fakeEnricher{}, nil, utils.Discard())

	_, err := r.Run(context.Background())
	var collErr *yelp.CollectionError
	require.ErrorAs(t, err, &collErr)
	require.Equal(t, 401, collErr.StatusCode)
}

func TestRunRejectsBadResumeSnapshot(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.json")
	r := NewRunner(Options{OutputDir: dir, ResumeFrom: missing}, &fakeCollector{}, fakeEnricher{}, nil, utils.Discard())
	_, err := r.Run(context.Background())
	require.Error(t, err)

	noID := filepath.Join(dir, "noid.json")
	require.NoError(t, storage.WriteSnapshot(noID, storage.RawSnapshot{}))
	r = NewRunner(Options{OutputDir: dir, ResumeFrom: noID}, &fakeCollector{}, fakeEnricher{}, nil, utils.Discard())
	_, err = r.Run(context.Background())
	require.Error(t, err)
}

func TestEncodeSnapshotAndRecords(t *testing.T) {
	outDir := t.TempDir()
	collector := &fakeCollector{businesses: []*models.RawBusiness{
		{ID: "a", Rating: 4.5, URL: "u"},
		{ID: "b", Rating: 4.1, URL: "u"},
		{ID: "c", Rating: 1.0, URL: "u"},
	}}
	r := NewRunner(Options{OutputDir: outDir, Rules: services.LegacyRules}, collector, fakeEnricher{}, nil, utils.Discard())

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.Vector{1, 0}, first.Dataset.Y)

	again, err := r.EncodeSnapshot(filepath.Join(first.RunDir, storage.DerivedSnapshotFile))
	require.NoError(t, err)
	require.Equal(t, first.Dataset, again.Dataset)

	records, err := r.Records(context.Background(), first.RunID)
	require.NoError(t, err)
	require.Equal(t, first.Records, records)

	var snap storage.DerivedSnapshot
	require.NoError(t, storage.ReadSnapshot(filepath.Join(first.RunDir, storage.DerivedSnapshotFile), &snap))
	require.Equal(t, "legacy", snap.Rules)

	report, err := r.Report(context.Background(), first.RunID)
	require.NoError(t, err)
	require.Equal(t, first.Report, report)

	// without the CSV files the dataset is re-encoded from the records
	require.NoError(t, os.Remove(first.XPath))
	report, err = r.Report(context.Background(), first.RunID)
	require.NoError(t, err)
	require.Equal(t, 2, report.BalancedRows)

	_, err = r.Report(context.Background(), "unknown-run")
	require.Error(t, err)
}

// cancellingEnricher enriches the first business, then cancels the run.
type cancellingEnricher struct {
	cancel context.CancelFunc
}

func (e cancellingEnricher) EnrichAll(_ context.Context, businesses []*models.RawBusiness) []models.Enrichment {
	out := make([]models.Enrichment, len(businesses))
	for i := range out {
		out[i] = models.Unavailable("not attempted")
	}
	out[0] = models.Available(true, nil)
	e.cancel()
	return out
}

func TestRunStopsWhenCancelledDuringEnrichment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &fakeCollector{businesses: []*models.RawBusiness{
		{ID: "a", Rating: 4.5, URL: "u"},
		{ID: "b", Rating: 4.1, URL: "u"},
		{ID: "c", Rating: 1.0, URL: "u"},
	}}
	outDir := t.TempDir()
	r := NewRunner(Options{OutputDir: outDir}, collector, cancellingEnricher{cancel: cancel}, nil, utils.Discard())

	res, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, res)

	matches, err := filepath.Glob(filepath.Join(outDir, "*", storage.XTrainFile))
	require.NoError(t, err)
	require.Empty(t, matches, "no dataset should be written for an interrupted build")

	matches, err = filepath.Glob(filepath.Join(outDir, "*", storage.DerivedSnapshotFile))
	require.NoError(t, err)
	require.Empty(t, matches)
}
