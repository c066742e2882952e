package ml

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKNNNeighborsTieBreakByIndex(t *testing.T) {
	x := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	y := [][]float64{{10}, {20}, {30}, {40}}

	m := NewKNNRegressor(2)
	require.NoError(t, m.Fit(x, y))

	neighbors, err := m.Neighbors([]float64{0, 0})
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, 0, neighbors[0].Index)
	assert.Equal(t, 1, neighbors[1].Index, "row 1 and row 2 tie, lower index wins")
	assert.Equal(t, 1.0, neighbors[1].Distance)

	pred, err := m.Predict([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{15}, pred)
}

func TestKNNPredictMultiOutputMean(t *testing.T) {
	x := [][]float64{{0}, {1}, {1}, {1}, {5}}
	y := [][]float64{{1, 100}, {2, 200}, {3, 300}, {4, 400}, {5, 500}}

	m := NewKNNRegressor(3)
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, pred[0], 1e-9)
	assert.InDelta(t, 300.0, pred[1], 1e-9)
}

func TestKNNFitErrors(t *testing.T) {
	tests := []struct {
		name string
		k    int
		x    [][]float64
		y    [][]float64
	}{
		{name: "empty", k: 1},
		{name: "size mismatch", k: 1, x: [][]float64{{1}}, y: [][]float64{{1}, {2}}},
		{name: "k exceeds rows", k: 7, x: [][]float64{{1}, {2}}, y: [][]float64{{1}, {2}}},
		{name: "ragged features", k: 1, x: [][]float64{{1}, {2, 3}}, y: [][]float64{{1}, {2}}},
		{name: "ragged targets", k: 1, x: [][]float64{{1}, {2}}, y: [][]float64{{1}, {2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewKNNRegressor(tt.k).Fit(tt.x, tt.y)
			assert.Error(t, err)
		})
	}
}

func TestKNNQueryWidthMismatch(t *testing.T) {
	m := NewKNNRegressor(1)
	require.NoError(t, m.Fit([][]float64{{0, 1}}, [][]float64{{1}}))
	_, err := m.Predict([]float64{1})
	assert.Error(t, err)

	_, err = NewKNNRegressor(1).Predict([]float64{1})
	assert.Error(t, err, "untrained model")
}

func TestKNNPredictBatchMatchesSerial(t *testing.T) {
	ts := ladder()
	enc, err := FitEncoder(ts.Records())
	require.NoError(t, err)
	x := enc.TransformAll(ts.Records())

	m := NewKNNRegressor(7)
	require.NoError(t, m.Fit(x, ts.TargetMatrix()))

	batch, err := m.PredictBatch(context.Background(), x)
	require.NoError(t, err)
	require.Len(t, batch, len(x))
	for i, q := range x {
		serial, err := m.Predict(q)
		require.NoError(t, err)
		assert.Equal(t, serial, batch[i])
	}
}

func TestKNNPredictBatchCancelled(t *testing.T) {
	m := NewKNNRegressor(1)
	require.NoError(t, m.Fit([][]float64{{0}}, [][]float64{{1}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.PredictBatch(ctx, [][]float64{{0}, {1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKNNStateRoundTrip(t *testing.T) {
	m := NewKNNRegressor(2)
	require.NoError(t, m.Fit([][]float64{{0, 1}, {1, 0}, {1, 1}}, [][]float64{{1}, {2}, {3}}))

	restored, err := regressorFromState(m.state())
	require.NoError(t, err)
	a, _ := m.Predict([]float64{1, 1})
	b, _ := restored.Predict([]float64{1, 1})
	assert.Equal(t, a, b)

	bad := m.state()
	bad.X = bad.X[:1]
	_, err = regressorFromState(bad)
	assert.Error(t, err)

	bad = m.state()
	bad.K = 4
	_, err = regressorFromState(bad)
	assert.Error(t, err)
}

func TestEuclideanDistanceOnIndicators(t *testing.T) {
	m := NewKNNRegressor(1)
	require.NoError(t, m.Fit([][]float64{{1, 0, 1, 0}}, [][]float64{{1}}))
	n, err := m.Neighbors([]float64{0, 1, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, n[0].Distance, 1e-12)
}
