package services

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

type ReportService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger, out: os.Stdout}
}

// SetOutput redirects Print.
func (s *ReportService) SetOutput(w io.Writer) {
	s.out = w
}

func (s *ReportService) Generate(runID string, records []models.FeatureRecord, balanced models.Dataset) *models.DatasetReport {
	report := &models.DatasetReport{
		RunID:           runID,
		TotalBusinesses: len(records),
		Features:        make([]models.FeatureStat, models.NumFeatures),
	}
	for i := range report.Features {
		report.Features[i].Feature = models.Feature(i)
	}

	for i := range records {
		r := &records[i]
		if r.Enriched {
			report.Enriched++
		} else {
			report.Unenriched++
		}
		if r.Label == 1 {
			report.Positives++
		} else {
			report.Negatives++
		}
		for j, v := range r.Features {
			if !v {
				continue
			}
			if r.Label == 1 {
				report.Features[j].Positives++
			} else {
				report.Features[j].Negatives++
			}
		}
	}

	report.BalancedRows = balanced.Len()
	report.BalancedNegative, report.BalancedPositive = balanced.Y.ClassCounts()

	s.logger.Info("[report] Run %s: %d businesses (%d enriched), %d positive / %d negative, %d rows after balancing",
		runID, report.TotalBusinesses, report.Enriched, report.Positives, report.Negatives, report.BalancedRows)
	return report
}

func (s *ReportService) Print(r *models.DatasetReport) {
	sep := strings.Repeat("═", 54)

	fmt.Fprintf(s.out, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(s.out, "\033[1;35m  RESTAURANT DATASET REPORT\033[0m  run %s\n", r.RunID)
	fmt.Fprintf(s.out, "\033[1;35m%s\033[0m\n\n", sep)

	overview := newTable(s.out)
	overview.SetTitle("Overview")
	overview.AppendRows([]table.Row{
		{"Businesses collected", r.TotalBusinesses},
		{"Pages enriched", r.Enriched},
		{"Pages unavailable", r.Unenriched},
		{"Label 1 (rating >= 4.0)", r.Positives},
		{"Label 0", r.Negatives},
		{"Rows after balancing", r.BalancedRows},
		{"  label 1", r.BalancedPositive},
		{"  label 0", r.BalancedNegative},
	})
	overview.Render()
	fmt.Fprintln(s.out)

	features := newTable(s.out)
	features.SetTitle("Feature prevalence")
	features.AppendHeader(table.Row{"Feature", "Label 1", "Label 0", "Share of label 1", "Share of label 0"})
	for _, f := range r.Features {
		features.AppendRow(table.Row{
			f.Feature.String(),
			f.Positives,
			f.Negatives,
			percent(f.Positives, r.Positives),
			percent(f.Negatives, r.Negatives),
		})
	}
	features.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	features.Render()

	fmt.Fprintf(s.out, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func percent(n, of int) string {
	if of == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", round2(float64(n)*100/float64(of)))
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
