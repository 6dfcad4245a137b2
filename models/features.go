package models

import "fmt"

// Feature indexes one column of the feature schema.
type Feature int

const (
	HasDelivery Feature = iota
	HasPickup
	HasTakeout
	HasReservations
	HighPrices
	OpensInAM
	HasBar
	HasPizza
	HasBreakfast
	HasAsian
	HasMexican
	HasVegan
	HasIcecream
	IsBakery
	HasItalian
	HasOutdoorSeating
	CovidConcerned

	NumFeatures int = iota
)

// FeatureNames is the fixed column order of the feature matrix.
var FeatureNames = [NumFeatures]string{
	"has_delivery",
	"has_pickup",
	"has_takeout",
	"has_reservations",
	"high_prices",
	"opens_in_am",
	"has_bar",
	"has_pizza",
	"has_breakfast",
	"has_asian",
	"has_mexican",
	"has_vegan",
	"has_icecream",
	"is_bakery",
	"has_italian",
	"has_outdoor_seating",
	"covid_concerned",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= NumFeatures {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return FeatureNames[f]
}

// ParseFeature resolves a schema name to its column.
func ParseFeature(name string) (Feature, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return Feature(i), true
		}
	}
	return 0, false
}

// FeatureRecord is the derived, classifier-ready view of one business.
// Features is a fixed-size array so every schema column always has a value.
type FeatureRecord struct {
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Features [NumFeatures]bool `json:"features"`
	Label    int               `json:"label"`
	Enriched bool              `json:"enriched"`
}

func (r *FeatureRecord) Get(f Feature) bool {
	return r.Features[f]
}

func (r *FeatureRecord) Set(f Feature, v bool) {
	r.Features[f] = v
}

// Map returns the feature mapping keyed by schema name.
func (r *FeatureRecord) Map() map[string]bool {
	m := make(map[string]bool, NumFeatures)
	for i, name := range FeatureNames {
		m[name] = r.Features[i]
	}
	return m
}

// Matrix is a dense row-major feature matrix, one row per business.
type Matrix [][]float64

// Vector holds one label per matrix row.
type Vector []float64

// Dataset is the final feature/label pair handed to a classifier.
type Dataset struct {
	X Matrix
	Y Vector
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }

// ClassCounts returns the number of label 0 and label 1 rows.
func (v Vector) ClassCounts() (negatives, positives int) {
	for _, y := range v {
		if y == 1 {
			positives++
		} else {
			negatives++
		}
	}
	return negatives, positives
}
