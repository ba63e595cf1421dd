package ports

import (
	"context"
)

// OutlierDetector is a trainable outlier model over standardized feature rows.
// Lower scores are more anomalous; rows scoring below Threshold are outliers.
type OutlierDetector interface {
	// Fit trains the model. Calling Fit again retrains from scratch.
	Fit(ctx context.Context, rows [][]float64) error

	// ScoreSamples scores rows against the trained model
	ScoreSamples(rows [][]float64) ([]float64, error)

	// Threshold is the decision offset learned during Fit
	Threshold() float64
}
