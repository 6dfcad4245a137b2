package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"yelp-dataset/models"
	"yelp-dataset/services"
	"yelp-dataset/storage"
	"yelp-dataset/utils"
)

var tracer = otel.Tracer("pipeline")

// ErrNoBusinesses is returned when collection yields nothing to build on.
var ErrNoBusinesses = errors.New("no businesses collected")

// Collector gathers every business for a location.
type Collector interface {
	Collect(ctx context.Context, query string) ([]*models.RawBusiness, error)
}

// Enricher scrapes page signals for a batch of businesses. The result is
// aligned with the input.
type Enricher interface {
	EnrichAll(ctx context.Context, businesses []*models.RawBusiness) []models.Enrichment
}

// Options controls where a run reads from and writes to. ResumeFrom, when
// set, is a raw snapshot to load instead of calling the search API.
type Options struct {
	Location   string
	OutputDir  string
	Rules      services.RuleSet
	ResumeFrom string
}

// Result is everything a run produced.
type Result struct {
	RunID      string
	RunDir     string
	Businesses []*models.RawBusiness
	Records    []models.FeatureRecord
	Dataset    models.Dataset
	Report     *models.DatasetReport
	XPath      string
	YPath      string
}

// Runner wires the four stages together and persists each stage's output
// under OutputDir/<run id>.
type Runner struct {
	opts      Options
	collector Collector
	enricher  Enricher
	deriver   *services.Deriver
	balancer  *services.Balancer
	reporter  *services.ReportService
	store     storage.RecordStore
	logger    *utils.Logger
}

// NewRunner builds a Runner. store may be nil, in which case records are
// only written to files.
func NewRunner(opts Options, collector Collector, enricher Enricher, store storage.RecordStore, logger *utils.Logger) *Runner {
	if opts.Rules.Name == "" {
		opts.Rules = services.CorrectedRules
	}
	return &Runner{
		opts:      opts,
		collector: collector,
		enricher:  enricher,
		deriver:   services.NewDeriver(opts.Rules, logger),
		balancer:  services.NewBalancer(logger),
		reporter:  services.NewReportService(logger),
		store:     store,
		logger:    logger,
	}
}

// Reporter exposes the report service so callers can print the result.
func (r *Runner) Reporter() *services.ReportService {
	return r.reporter
}

// Run executes collection (or loads the resume snapshot), enrichment,
// derivation and balancing, then writes every artifact.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	var (
		snap *storage.RawSnapshot
		err  error
	)
	if r.opts.ResumeFrom != "" {
		snap, err = LoadRawSnapshot(r.opts.ResumeFrom)
		if err != nil {
			return nil, err
		}
		r.logger.Info("[pipeline] Resuming run %s from %s (%d businesses)",
			snap.RunID, r.opts.ResumeFrom, len(snap.Businesses))
	} else {
		snap, err = r.Collect(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(snap.Businesses) == 0 {
		return nil, ErrNoBusinesses
	}

	res := &Result{
		RunID:      snap.RunID,
		RunDir:     r.runDir(snap.RunID),
		Businesses: snap.Businesses,
	}

	ctx, span := tracer.Start(ctx, "pipeline:Build", trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.Int("businesses", len(res.Businesses)),
	))
	defer span.End()

	enrichments := r.enricher.EnrichAll(ctx, res.Businesses)
	// an interrupted pass leaves businesses unattempted, so nothing is written
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	res.Records = r.deriver.DeriveAll(res.Businesses, enrichments)

	derived := storage.DerivedSnapshot{
		RunID:     res.RunID,
		Rules:     r.opts.Rules.Name,
		DerivedAt: time.Now().UTC(),
		Records:   res.Records,
	}
	if err := storage.WriteSnapshot(filepath.Join(res.RunDir, storage.DerivedSnapshotFile), derived); err != nil {
		return nil, err
	}

	if r.store != nil {
		if err := r.store.ReplaceRun(ctx, res.RunID, res.Records); err != nil {
			// files already hold the records, so the database is best-effort
			r.logger.Error("[pipeline] Database write failed: %v", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := r.encode(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Collect runs the collection stage for a fresh run ID and writes the raw
// snapshot and raw CSV.
func (r *Runner) Collect(ctx context.Context) (*storage.RawSnapshot, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "pipeline:Collect", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("location", r.opts.Location),
	))
	defer span.End()

	r.logger.Info("[pipeline] Run %s: collecting %q", runID, r.opts.Location)
	businesses, err := r.collector.Collect(ctx, r.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	snap := &storage.RawSnapshot{
		RunID:       runID,
		Location:    r.opts.Location,
		CollectedAt: time.Now().UTC(),
		Businesses:  businesses,
	}
	dir := r.runDir(runID)
	if err := storage.WriteSnapshot(filepath.Join(dir, storage.RawSnapshotFile), snap); err != nil {
		return nil, err
	}

	csvPath := filepath.Join(dir, "businesses.csv")
	w, err := storage.NewCSVWriter(csvPath)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	if err := w.WriteRaw(businesses); err != nil {
		return nil, err
	}
	r.logger.Info("[pipeline] Raw businesses saved to %s", csvPath)
	return snap, nil
}

// EncodeSnapshot rebuilds the balanced dataset from a derived snapshot
// without touching the network.
func (r *Runner) EncodeSnapshot(path string) (*Result, error) {
	var snap storage.DerivedSnapshot
	if err := storage.ReadSnapshot(path, &snap); err != nil {
		return nil, err
	}
	res := &Result{
		RunID:   snap.RunID,
		RunDir:  filepath.Dir(path),
		Records: snap.Records,
	}
	if err := r.encode(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Records returns the derived records of a run, from the database when one
// is configured and from the run's snapshot otherwise.
func (r *Runner) Records(ctx context.Context, runID string) ([]models.FeatureRecord, error) {
	if r.store != nil {
		records, err := r.store.FetchRun(ctx, runID)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			r.logger.Warn("[pipeline] Database read failed, falling back to snapshot: %v", err)
		}
	}
	var snap storage.DerivedSnapshot
	if err := storage.ReadSnapshot(filepath.Join(r.runDir(runID), storage.DerivedSnapshotFile), &snap); err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Report rebuilds the dataset report of an earlier run. The balanced
// dataset is read back from the run directory, or recomputed when the CSV
// files are gone.
func (r *Runner) Report(ctx context.Context, runID string) (*models.DatasetReport, error) {
	records, err := r.Records(ctx, runID)
	if err != nil {
		return nil, err
	}
	ds, err := storage.ReadDataset(r.runDir(runID))
	if err != nil {
		r.logger.Warn("[pipeline] %v; re-encoding run %s", err, runID)
		ds = r.balancer.EncodeBalanced(records)
	}
	return r.reporter.Generate(runID, records, ds), nil
}

func (r *Runner) encode(res *Result) error {
	res.Dataset = r.balancer.EncodeBalanced(res.Records)

	xPath, yPath, err := storage.WriteDataset(res.RunDir, res.Dataset)
	if err != nil {
		return err
	}
	res.XPath, res.YPath = xPath, yPath
	r.logger.Info("[pipeline] Dataset written: %s, %s (%d rows)", xPath, yPath, res.Dataset.Len())

	res.Report = r.reporter.Generate(res.RunID, res.Records, res.Dataset)
	return nil
}

func (r *Runner) runDir(runID string) string {
	return filepath.Join(r.opts.OutputDir, runID)
}

// LoadRawSnapshot reads a raw snapshot and checks it is usable for a
// resumed run.
func LoadRawSnapshot(path string) (*storage.RawSnapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	var snap storage.RawSnapshot
	if err := storage.ReadSnapshot(path, &snap); err != nil {
		return nil, err
	}
	if snap.RunID == "" {
		return nil, fmt.Errorf("resume: %s has no run id", path)
	}
	return &snap, nil
}
