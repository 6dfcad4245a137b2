package models

// FeatureStat is the prevalence of one feature split by label.
type FeatureStat struct {
	Feature   Feature
	Positives int
	Negatives int
}

// DatasetReport holds summary statistics over a pipeline run.
type DatasetReport struct {
	RunID            string
	TotalBusinesses  int
	Enriched         int
	Unenriched       int
	Positives        int
	Negatives        int
	BalancedRows     int
	BalancedPositive int
	BalancedNegative int
	Features         []FeatureStat
}
