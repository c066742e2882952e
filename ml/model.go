package ml

import "context"

// Regressor is a fitted multi-output model over encoded feature vectors.
type Regressor interface {
	Predict(features []float64) ([]float64, error)
	PredictBatch(ctx context.Context, features [][]float64) ([][]float64, error)
}

// ScorePredictor is what request handlers depend on.
type ScorePredictor interface {
	Ready() bool
	Sentinel() string
	Predict(rec FeatureRecord) (TargetVector, error)
	PredictJSON(raw []byte) (TargetVector, error)
	Info() (ModelInfo, error)
}

var (
	_ Regressor      = (*KNNRegressor)(nil)
	_ ScorePredictor = (*Predictor)(nil)
)
