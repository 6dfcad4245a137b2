package services

import (
	"yelp-dataset/models"
	"yelp-dataset/utils"
)

// Encode projects records onto the fixed feature schema: one row per record,
// one 0/1 column per feature, plus the label vector.
func Encode(records []models.FeatureRecord) (models.Matrix, models.Vector) {
	x := make(models.Matrix, len(records))
	y := make(models.Vector, len(records))

	for i := range records {
		row := make([]float64, models.NumFeatures)
		for j, v := range records[i].Features {
			if v {
				row[j] = 1
			}
		}
		x[i] = row
		y[i] = float64(records[i].Label)
	}
	return x, y
}

// DecodeRow maps an encoded row back to feature values. Any non-zero cell
// reads as true.
func DecodeRow(row []float64) [models.NumFeatures]bool {
	var out [models.NumFeatures]bool
	for j := 0; j < models.NumFeatures && j < len(row); j++ {
		out[j] = row[j] != 0
	}
	return out
}

// Balance keeps, in order, the first c0 positive rows followed by every
// negative row, where c0 is the number of negative rows. The selection is
// deterministic. When positives are already the minority nothing is
// dropped, so the output stays skewed toward the negative class.
func Balance(x models.Matrix, y models.Vector) (models.Matrix, models.Vector) {
	var positives, negatives []int
	for i, label := range y {
		if label == 1 {
			positives = append(positives, i)
		} else {
			negatives = append(negatives, i)
		}
	}

	if len(positives) > len(negatives) {
		positives = positives[:len(negatives)]
	}
	keep := make([]int, 0, len(positives)+len(negatives))
	keep = append(keep, positives...)
	keep = append(keep, negatives...)

	bx := make(models.Matrix, 0, len(keep))
	by := make(models.Vector, 0, len(keep))
	for _, i := range keep {
		bx = append(bx, x[i])
		by = append(by, y[i])
	}
	return bx, by
}

// Balancer encodes derived records into the final balanced dataset.
type Balancer struct {
	logger *utils.Logger
}

func NewBalancer(logger *utils.Logger) *Balancer {
	return &Balancer{logger: logger}
}

// EncodeBalanced encodes records and balances the result.
func (b *Balancer) EncodeBalanced(records []models.FeatureRecord) models.Dataset {
	x, y := Encode(records)
	negatives, positives := y.ClassCounts()

	bx, by := Balance(x, y)
	bNeg, bPos := by.ClassCounts()

	b.logger.Info("[balancer] %d rows (%d positive, %d negative) -> %d rows (%d positive, %d negative)",
		len(y), positives, negatives, len(by), bPos, bNeg)
	if positives < negatives {
		b.logger.Warn("[balancer] Positive class is the minority; negatives were not subsampled")
	}
	if positives == 0 || negatives == 0 {
		b.logger.Warn("[balancer] Only one label class present, dataset is degenerate")
	}

	return models.Dataset{X: bx, Y: by}
}
