package ml

import (
	"errors"
	"fmt"
)

// Example is one cleaned training row.
type Example struct {
	Features FeatureRecord
	Targets  TargetVector
}

// TrainingSet is the cleaned input to a fit.
type TrainingSet []Example

// Records returns the feature side of every example.
func (ts TrainingSet) Records() []FeatureRecord {
	records := make([]FeatureRecord, len(ts))
	for i, ex := range ts {
		records[i] = ex.Features
	}
	return records
}

// TargetMatrix returns one row of target values per example.
func (ts TrainingSet) TargetMatrix() [][]float64 {
	targets := make([][]float64, len(ts))
	for i, ex := range ts {
		v := ex.Targets.Values()
		targets[i] = v[:]
	}
	return targets
}

// FitArtifact fits the encoder on ts, encodes every row and fits a k-NN
// regressor over the encoded matrix and the target matrix.
func FitArtifact(ts TrainingSet, k int, meta Metadata) (*Artifact, error) {
	if len(ts) == 0 {
		return nil, errors.New("training set is empty")
	}
	if k <= 0 {
		k = DefaultNeighbors
	}
	if k > len(ts) {
		return nil, fmt.Errorf("need at least %d training rows for k=%d, have %d", k, k, len(ts))
	}

	records := ts.Records()
	encoder, err := FitEncoder(records)
	if err != nil {
		return nil, fmt.Errorf("fit encoder: %w", err)
	}

	regressor := NewKNNRegressor(k)
	if err := regressor.Fit(encoder.TransformAll(records), ts.TargetMatrix()); err != nil {
		return nil, fmt.Errorf("fit regressor: %w", err)
	}
	return NewArtifact(encoder, regressor, meta)
}
