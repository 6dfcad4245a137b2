package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

const featuresTable = "restaurant_features"

var _ RecordStore = (*SQLStore)(nil)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not map to a
	// bindvar style on its own.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore persists derived records to PostgreSQL or SQLite. Each record
// is one row keyed by (run_id, row_index), one INTEGER column per feature.
type SQLStore struct {
	db     *sqlx.DB
	logger *utils.Logger
}

// NewSQLStore connects to the database, waiting for it to come up, and
// runs schema migrations. driver is "postgres" or "sqlite".
func NewSQLStore(ctx context.Context, driver, source string, logger *utils.Logger) (*SQLStore, error) {
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "storage: ping "+driver, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	cols := make([]string, 0, models.NumFeatures)
	for _, name := range models.FeatureNames {
		cols = append(cols, fmt.Sprintf("%s INTEGER NOT NULL DEFAULT 0", name))
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id     TEXT    NOT NULL,
			row_index  INTEGER NOT NULL,
			name       TEXT    NOT NULL DEFAULT '',
			url        TEXT    NOT NULL DEFAULT '',
			label      INTEGER NOT NULL,
			enriched   INTEGER NOT NULL DEFAULT 0,
			%s,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, row_index)
		)`, featuresTable, strings.Join(cols, ",\n\t\t\t")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_label ON %s(run_id, label)`, featuresTable, featuresTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceRun deletes any rows stored for runID and inserts records in
// order, inside one transaction.
func (s *SQLStore) ReplaceRun(ctx context.Context, runID string, records []models.FeatureRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", featuresTable))
	if _, err := tx.ExecContext(ctx, del, runID); err != nil {
		return fmt.Errorf("storage: clear run %s: %w", runID, err)
	}

	const batchSize = 50
	insert := insertQuery()
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := make([]map[string]interface{}, 0, end-i)
		for pos := i; pos < end; pos++ {
			batch = append(batch, recordArgs(runID, pos, &records[pos]))
		}
		if _, err := tx.NamedExecContext(ctx, insert, batch); err != nil {
			return fmt.Errorf("storage: insert batch at %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	s.logger.Info("[storage] Stored %d records for run %s", len(records), runID)
	return nil
}

// FetchRun returns the records stored for runID in their original order.
func (s *SQLStore) FetchRun(ctx context.Context, runID string) ([]models.FeatureRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		"SELECT name, url, label, enriched, %s FROM %s WHERE run_id = ? ORDER BY row_index",
		strings.Join(models.FeatureNames[:], ", "), featuresTable))

	rows, err := s.db.QueryxContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []models.FeatureRecord
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func insertQuery() string {
	cols := append([]string{"run_id", "row_index", "name", "url", "label", "enriched"}, models.FeatureNames[:]...)
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		featuresTable, strings.Join(cols, ", "), strings.Join(params, ", "))
}

func recordArgs(runID string, position int, r *models.FeatureRecord) map[string]interface{} {
	args := map[string]interface{}{
		"run_id":    runID,
		"row_index": position,
		"name":      r.Name,
		"url":       r.URL,
		"label":     r.Label,
		"enriched":  boolInt(r.Enriched),
	}
	for i, name := range models.FeatureNames {
		args[name] = boolInt(r.Features[i])
	}
	return args
}

func recordFromRow(row map[string]interface{}) (models.FeatureRecord, error) {
	var rec models.FeatureRecord
	var err error

	rec.Name = asString(row["name"])
	rec.URL = asString(row["url"])
	if rec.Label, err = asInt(row["label"]); err != nil {
		return rec, fmt.Errorf("storage: label: %w", err)
	}
	enriched, err := asInt(row["enriched"])
	if err != nil {
		return rec, fmt.Errorf("storage: enriched: %w", err)
	}
	rec.Enriched = enriched != 0

	for i, name := range models.FeatureNames {
		v, err := asInt(row[name])
		if err != nil {
			return rec, fmt.Errorf("storage: %s: %w", name, err)
		}
		rec.Features[i] = v != 0
	}
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// asString and asInt normalise the driver-specific values MapScan yields.
func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int:
		return t, nil
	case bool:
		return boolInt(t), nil
	case []byte:
		return strconv.Atoi(string(t))
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unexpected column type %T", v)
	}
}
