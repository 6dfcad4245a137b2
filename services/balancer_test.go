package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

// labelled builds records whose first five columns spell out the record's
// position in binary, so every row is distinct.
func labelled(labels ...int) []models.FeatureRecord {
	records := make([]models.FeatureRecord, len(labels))
	for i, l := range labels {
		records[i].Label = l
		for bit := 0; bit < 5; bit++ {
			records[i].Set(models.Feature(bit), i>>bit&1 == 1)
		}
	}
	return records
}

func repeat(label, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func TestEncodeShapeAndValues(t *testing.T) {
	rec := models.FeatureRecord{Label: 1}
	rec.Set(models.HasPickup, true)
	rec.Set(models.CovidConcerned, true)

	x, y := Encode([]models.FeatureRecord{rec, {}})

	require.Len(t, x, 2)
	require.Len(t, x[0], models.NumFeatures)
	want := make([]float64, models.NumFeatures)
	want[models.HasPickup] = 1
	want[models.CovidConcerned] = 1
	if diff := cmp.Diff(want, x[0]); diff != "" {
		t.Errorf("row 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(models.Vector{1, 0}, y); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := NewDeriver(CorrectedRules, utils.Discard())
	raws := []*models.RawBusiness{
		{Transactions: []string{"delivery", "takeout"}, Categories: []string{"pizza", "sports_bars"}, Price: intPtr(3), Rating: 4.5},
		{Categories: []string{"bakeries", "vegan"}, Rating: 3.0},
		{},
	}
	enrichments := []models.Enrichment{
		models.Available(true, []string{"Outdoor Seating", "Masks required"}),
		models.Unavailable("404"),
		models.Available(false, nil),
	}
	records := d.DeriveAll(raws, enrichments)

	x, _ := Encode(records)
	for i, row := range x {
		got := DecodeRow(row)
		if diff := cmp.Diff(records[i].Features, got); diff != "" {
			t.Errorf("record %d round trip (-want +got):\n%s", i, diff)
		}
		for j, name := range models.FeatureNames {
			if got[j] != records[i].Map()[name] {
				t.Errorf("record %d column %d (%s) does not match the feature mapping", i, j, name)
			}
		}
	}
}

func TestBalanceTruncatesPositives(t *testing.T) {
	// 10 positives followed by 3 negatives
	records := labelled(append(repeat(1, 10), repeat(0, 3)...)...)
	x, y := Encode(records)

	bx, by := Balance(x, y)

	require.Len(t, by, 6)
	require.Equal(t, models.Vector{1, 1, 1, 0, 0, 0}, by)
	// first three positives in original order, then every negative
	wantRows := []int{0, 1, 2, 10, 11, 12}
	for i, src := range wantRows {
		require.Equal(t, x[src], bx[i], "row %d should be source row %d", i, src)
	}
}

func TestBalanceKeepsEverythingWhenPositivesAreMinority(t *testing.T) {
	records := labelled(append(repeat(0, 5), append(repeat(1, 2), repeat(0, 5)...)...)...)
	x, y := Encode(records)

	bx, by := Balance(x, y)

	require.Len(t, by, 12)
	neg, pos := by.ClassCounts()
	require.Equal(t, 2, pos)
	require.Equal(t, 10, neg)
	// positives are moved to the front
	require.Equal(t, x[5], bx[0])
	require.Equal(t, x[6], bx[1])
	require.Equal(t, x[0], bx[2])
}

func TestBalanceInterleavedOrder(t *testing.T) {
	records := labelled(1, 0, 1, 1, 0, 1)
	x, y := Encode(records)

	bx, by := Balance(x, y)

	require.Equal(t, models.Vector{1, 1, 0, 0}, by)
	for i, src := range []int{0, 2, 1, 4} {
		require.Equal(t, x[src], bx[i])
	}
}

func TestBalanceDegenerateInputs(t *testing.T) {
	tests := []struct {
		name     string
		labels   []int
		wantRows int
	}{
		{"empty", nil, 0},
		{"only positives", repeat(1, 4), 0},
		{"only negatives", repeat(0, 4), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := Encode(labelled(tt.labels...))
			bx, by := Balance(x, y)
			require.Len(t, bx, tt.wantRows)
			require.Len(t, by, tt.wantRows)
		})
	}
}

func TestEncodeBalancedLogsMinorityWarning(t *testing.T) {
	var buf bytes.Buffer
	b := NewBalancer(utils.NewLoggerTo(&buf, utils.LevelInfo))

	ds := b.EncodeBalanced(labelled(1, 0, 0, 0))

	require.Equal(t, 4, ds.Len())
	require.True(t, strings.Contains(buf.String(), "minority"), "expected a minority warning, got %q", buf.String())
}
