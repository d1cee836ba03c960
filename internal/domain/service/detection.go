package service

import (
	"context"

	"ChainWatch/internal/domain/models"
)

// RuleDetector evaluates baseline-relative anomaly rules for one symbol-day
// and extracts the feature vector used by the composite scorer.
type RuleDetector interface {
	Evaluate(ctx context.Context, snap *models.ChainSnapshot, base *models.BaselineStats) ([]models.AnomalySignal, models.FeatureVector)
}

// CompositeScorer fits an unsupervised outlier model over the full day's
// feature matrix and returns one score in [0,1] per row. Fit-and-score in a
// single call; no model state survives the run.
type CompositeScorer interface {
	FitScore(features []models.FeatureVector) []float64
}
