package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"yelp-dataset/models"
)

const (
	XTrainFile = "XTrain.csv"
	YTrainFile = "yTrain.csv"
)

var _ RawBusinessWriter = (*CSVWriter)(nil)

// CSVWriter writes collected businesses to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"id", "name", "rating", "price", "url", "categories", "transactions",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends one row per business.
func (c *CSVWriter) WriteRaw(businesses []*models.RawBusiness) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range businesses {
		price := ""
		if b.Price != nil {
			price = strings.Repeat("$", *b.Price)
		}
		row := []string{
			b.ID,
			b.Name,
			strconv.FormatFloat(b.Rating, 'f', -1, 64),
			price,
			b.URL,
			strings.Join(b.Categories, "|"),
			strings.Join(b.Transactions, "|"),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// WriteDataset writes the feature matrix and label vector to XTrain.csv and
// yTrain.csv under dir. Both files start with a header of column indices
// and hold one row per dataset row, cells formatted as 1.0 or 0.0.
func WriteDataset(dir string, ds models.Dataset) (xPath, yPath string, err error) {
	xPath = filepath.Join(dir, XTrainFile)
	yPath = filepath.Join(dir, YTrainFile)

	header := make([]string, models.NumFeatures)
	for j := range header {
		header[j] = strconv.Itoa(j)
	}
	xRows := make([][]string, 0, len(ds.X))
	for _, row := range ds.X {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		xRows = append(xRows, cells)
	}
	if err := writeTable(xPath, header, xRows); err != nil {
		return "", "", err
	}

	yRows := make([][]string, 0, len(ds.Y))
	for _, v := range ds.Y {
		yRows = append(yRows, []string{formatCell(v)})
	}
	if err := writeTable(yPath, []string{"0"}, yRows); err != nil {
		return "", "", err
	}
	return xPath, yPath, nil
}

// ReadDataset loads a dataset previously written by WriteDataset.
func ReadDataset(dir string) (models.Dataset, error) {
	xRows, err := readTable(filepath.Join(dir, XTrainFile))
	if err != nil {
		return models.Dataset{}, err
	}
	yRows, err := readTable(filepath.Join(dir, YTrainFile))
	if err != nil {
		return models.Dataset{}, err
	}
	if len(xRows) != len(yRows) {
		return models.Dataset{}, fmt.Errorf("csv: %s has %d rows but %s has %d",
			XTrainFile, len(xRows), YTrainFile, len(yRows))
	}

	ds := models.Dataset{
		X: make(models.Matrix, len(xRows)),
		Y: make(models.Vector, len(yRows)),
	}
	for i, cells := range xRows {
		row := make([]float64, len(cells))
		for j, c := range cells {
			if row[j], err = strconv.ParseFloat(c, 64); err != nil {
				return models.Dataset{}, fmt.Errorf("csv: %s row %d col %d: %w", XTrainFile, i+1, j, err)
			}
		}
		ds.X[i] = row
	}
	for i, cells := range yRows {
		if len(cells) == 0 {
			return models.Dataset{}, fmt.Errorf("csv: %s row %d is empty", YTrainFile, i+1)
		}
		if ds.Y[i], err = strconv.ParseFloat(cells[0], 64); err != nil {
			return models.Dataset{}, fmt.Errorf("csv: %s row %d: %w", YTrainFile, i+1, err)
		}
	}
	return ds, nil
}

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("storage: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("storage: create file %q: %w", path, err)
	}
	return f, nil
}

func writeTable(path string, header []string, rows [][]string) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("csv: write %q: %w", path, err)
	}
	return f.Close()
}

// readTable returns every row after the header.
func readTable(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read %q: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv: %q has no header", path)
	}
	return rows[1:], nil
}
