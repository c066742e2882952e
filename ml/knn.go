package ml

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	MetricEuclidean = "euclidean"
	WeightsUniform  = "uniform"
)

// Neighbor is a training row selected for a query.
type Neighbor struct {
	Index    int
	Distance float64
}

// KNNRegressor is a brute-force multi-output k-nearest-neighbors regressor
// with Euclidean distance and uniform weights.
type KNNRegressor struct {
	k int
	x *mat.Dense
	y *mat.Dense
}

// NewKNNRegressor returns an unfitted regressor averaging k neighbors.
func NewKNNRegressor(k int) *KNNRegressor {
	if k <= 0 {
		k = DefaultNeighbors
	}
	return &KNNRegressor{k: k}
}

// Fit stores the training matrices. Rows of x and y correspond one to one.
func (m *KNNRegressor) Fit(x [][]float64, y [][]float64) error {
	if len(x) == 0 || len(y) == 0 {
		return errors.New("features or targets empty")
	}
	if len(x) != len(y) {
		return fmt.Errorf("features and targets size mismatch: %d != %d", len(x), len(y))
	}
	if m.k > len(x) {
		return fmt.Errorf("k=%d exceeds %d training rows", m.k, len(x))
	}

	dim, outputs := len(x[0]), len(y[0])
	if dim == 0 || outputs == 0 {
		return errors.New("zero-width features or targets")
	}
	xData := make([]float64, 0, len(x)*dim)
	yData := make([]float64, 0, len(y)*outputs)
	for i := range x {
		if len(x[i]) != dim {
			return fmt.Errorf("feature row %d has width %d, want %d", i, len(x[i]), dim)
		}
		if len(y[i]) != outputs {
			return fmt.Errorf("target row %d has width %d, want %d", i, len(y[i]), outputs)
		}
		xData = append(xData, x[i]...)
		yData = append(yData, y[i]...)
	}

	m.x = mat.NewDense(len(x), dim, xData)
	m.y = mat.NewDense(len(y), outputs, yData)
	return nil
}

// K is the configured neighbor count.
func (m *KNNRegressor) K() int { return m.k }

// Rows is the number of stored training rows.
func (m *KNNRegressor) Rows() int {
	if m.x == nil {
		return 0
	}
	r, _ := m.x.Dims()
	return r
}

// Dim is the feature width.
func (m *KNNRegressor) Dim() int {
	if m.x == nil {
		return 0
	}
	_, c := m.x.Dims()
	return c
}

// Outputs is the number of predicted targets.
func (m *KNNRegressor) Outputs() int {
	if m.y == nil {
		return 0
	}
	_, c := m.y.Dims()
	return c
}

// Neighbors returns the k rows closest to q, ordered by distance and then by
// training row index, so ties at the kth place always keep the earlier row.
func (m *KNNRegressor) Neighbors(q []float64) ([]Neighbor, error) {
	if m.x == nil {
		return nil, errors.New("model not trained")
	}
	if len(q) != m.Dim() {
		return nil, fmt.Errorf("query width %d, want %d", len(q), m.Dim())
	}

	best := make([]Neighbor, 0, m.k+1)
	rows := m.Rows()
	for i := 0; i < rows; i++ {
		d := floats.Distance(q, m.x.RawRowView(i), 2)
		if len(best) == m.k && d >= best[m.k-1].Distance {
			continue
		}
		// rows arrive in index order, so inserting after equal distances keeps ties stable
		pos := sort.Search(len(best), func(j int) bool { return best[j].Distance > d })
		best = append(best, Neighbor{})
		copy(best[pos+1:], best[pos:])
		best[pos] = Neighbor{Index: i, Distance: d}
		if len(best) > m.k {
			best = best[:m.k]
		}
	}
	return best, nil
}

// Predict averages the target rows of the k nearest neighbors of q.
func (m *KNNRegressor) Predict(q []float64) ([]float64, error) {
	neighbors, err := m.Neighbors(q)
	if err != nil {
		return nil, err
	}
	out := make([]float64, m.Outputs())
	for _, n := range neighbors {
		floats.Add(out, m.y.RawRowView(n.Index))
	}
	floats.Scale(1/float64(len(neighbors)), out)
	return out, nil
}

// PredictBatch predicts every query, spreading rows across GOMAXPROCS workers.
func (m *KNNRegressor) PredictBatch(ctx context.Context, queries [][]float64) ([][]float64, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	out := make([][]float64, len(queries))
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(queries) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(queries); start += chunk {
		start, end := start, min(start+chunk, len(queries))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				pred, err := m.Predict(queries[i])
				if err != nil {
					return fmt.Errorf("query %d: %w", i, err)
				}
				out[i] = pred
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// regressorState is the serialized form of a fitted KNNRegressor.
type regressorState struct {
	K       int
	Metric  string
	Weights string
	Rows    int
	Dim     int
	Outputs int
	X       []float64
	Y       []float64
}

func (m *KNNRegressor) state() regressorState {
	s := regressorState{
		K:       m.k,
		Metric:  MetricEuclidean,
		Weights: WeightsUniform,
		Rows:    m.Rows(),
		Dim:     m.Dim(),
		Outputs: m.Outputs(),
	}
	if m.x != nil {
		s.X = append([]float64(nil), m.x.RawMatrix().Data...)
		s.Y = append([]float64(nil), m.y.RawMatrix().Data...)
	}
	return s
}

func regressorFromState(s regressorState) (*KNNRegressor, error) {
	if s.Metric != MetricEuclidean || s.Weights != WeightsUniform {
		return nil, fmt.Errorf("unsupported metric/weights %q/%q", s.Metric, s.Weights)
	}
	if s.Rows <= 0 || s.Dim <= 0 || s.Outputs <= 0 {
		return nil, fmt.Errorf("invalid shape %dx%d/%d", s.Rows, s.Dim, s.Outputs)
	}
	if len(s.X) != s.Rows*s.Dim || len(s.Y) != s.Rows*s.Outputs {
		return nil, errors.New("matrix data does not match declared shape")
	}
	if s.K <= 0 || s.K > s.Rows {
		return nil, fmt.Errorf("k=%d invalid for %d rows", s.K, s.Rows)
	}
	return &KNNRegressor{
		k: s.K,
		x: mat.NewDense(s.Rows, s.Dim, s.X),
		y: mat.NewDense(s.Rows, s.Outputs, s.Y),
	}, nil
}
