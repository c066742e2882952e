package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorecast/ml"
)

// TrainOptions configures one training run.
type TrainOptions struct {
	Neighbors int
	Sentinel  string
	// TestRatio in (0,1) enables a holdout evaluation before the final fit.
	TestRatio float64
	Seed      int64
	Logger    *zap.Logger
}

// TrainReport summarizes a finished run.
type TrainReport struct {
	RunID       string
	Source      string
	Cleaning    CleaningStats
	RowsTotal   int
	RowsUsed    int
	RowsDropped int
	// SentinelCollisions counts rows where a real value equals the sentinel.
	// Such rows become indistinguishable from rows with that field missing.
	SentinelCollisions int
	Width              int
	Neighbors          int
	Metrics            *ml.EvalMetrics
	Duration           time.Duration
}

// Train cleans ds, fits the encoder and regressor and returns the bundled
// artifact. Failures caused by the input are *ml.DataError; nothing is
// returned alongside an error.
func Train(ctx context.Context, ds *Dataset, opts TrainOptions) (*ml.Artifact, *TrainReport, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Neighbors <= 0 {
		opts.Neighbors = ml.DefaultNeighbors
	}
	if opts.Sentinel == "" {
		opts.Sentinel = ml.DefaultSentinel
	}
	if ds == nil || len(ds.Points) == 0 {
		return nil, nil, ml.NewDataError(nil, "dataset has no rows")
	}

	collisions := countSentinelCollisions(ds.Points, opts.Sentinel)
	if collisions > 0 {
		logger.Warn("sentinel value also appears as a real category",
			zap.String("sentinel", opts.Sentinel),
			zap.Int("rows", collisions),
		)
	}

	cleaner := NewDataCleaner(opts.Sentinel)
	cleaned := cleaner.Clean(ds.Points)
	stats := cleaner.GetStats()
	logger.Info("cleaned dataset",
		zap.String("source", ds.Source),
		zap.Int64("processed", stats.TotalProcessed),
		zap.Int64("passed", stats.Passed),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("filled", stats.Corrected),
		zap.Any("issues", stats.Issues),
	)
	if len(cleaned) == 0 {
		return nil, nil, ml.NewDataError(nil, "no usable rows after cleaning (%d rejected)", stats.Rejected)
	}
	if len(cleaned) < opts.Neighbors {
		return nil, nil, ml.NewDataError(nil, "%d usable rows is fewer than k=%d neighbors", len(cleaned), opts.Neighbors)
	}

	ts := toTrainingSet(cleaned)
	report := &TrainReport{
		RunID:       uuid.NewString(),
		Source:      ds.Source,
		Cleaning:    stats,
		RowsTotal:   len(ds.Points),
		RowsUsed:    len(ts),
		RowsDropped: len(ds.Points) - len(ts),
		Neighbors:   opts.Neighbors,

		SentinelCollisions: collisions,
	}

	if opts.TestRatio > 0 && opts.TestRatio < 1 {
		metrics, err := evaluateHoldout(ctx, ts, opts)
		switch {
		case err != nil:
			return nil, nil, err
		case metrics == nil:
			logger.Warn("holdout evaluation skipped: too few rows", zap.Int("rows", len(ts)), zap.Float64("test_ratio", opts.TestRatio))
		default:
			report.Metrics = metrics
			logger.Info("holdout evaluation",
				zap.Int("train_rows", metrics.TrainRows),
				zap.Int("test_rows", metrics.TestRows),
				zap.Float64s("mae", metrics.MAE[:]),
				zap.Float64s("rmse", metrics.RMSE[:]),
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	artifact, err := ml.FitArtifact(ts, opts.Neighbors, ml.Metadata{
		RunID:       report.RunID,
		CreatedAt:   time.Now().UTC(),
		Source:      ds.Source,
		Sentinel:    opts.Sentinel,
		RowsTotal:   report.RowsTotal,
		RowsUsed:    report.RowsUsed,
		RowsDropped: report.RowsDropped,
		Metrics:     report.Metrics,
	})
	if err != nil {
		return nil, nil, ml.NewDataError(err, "fit model")
	}
	report.Width = artifact.Encoder().Width()
	report.Duration = time.Since(start)

	logger.Info("model fitted",
		zap.String("run_id", report.RunID),
		zap.Int("rows", report.RowsUsed),
		zap.Int("width", report.Width),
		zap.Int("k", report.Neighbors),
		zap.Duration("duration", report.Duration),
	)
	return artifact, report, nil
}

// countSentinelCollisions counts rows that survive the target rules and carry
// the sentinel as a real value in some feature.
func countSentinelCollisions(points []*DataPoint, sentinel string) int {
	targetRules := []CleaningRule{TargetPresenceRule{}, PositiveTargetRule{}}
	n := 0
points:
	for _, p := range points {
		for _, rule := range targetRules {
			if _, err := rule.Apply(p); err != nil {
				continue points
			}
		}
		for i, v := range p.Features {
			if !p.Missing[i] && v == sentinel {
				n++
				break
			}
		}
	}
	return n
}

func toTrainingSet(points []*DataPoint) ml.TrainingSet {
	ts := make(ml.TrainingSet, len(points))
	for i, p := range points {
		ts[i] = ml.Example{
			Features: ml.RecordFromValues(p.Features),
			Targets:  ml.TargetFromValues(p.Targets),
		}
	}
	return ts
}

// evaluateHoldout fits a throwaway model on a seeded split and scores the
// held-out rows. It returns nil metrics when the split leaves fewer than k
// training rows or no test rows.
func evaluateHoldout(ctx context.Context, ts ml.TrainingSet, opts TrainOptions) (*ml.EvalMetrics, error) {
	train, test := splitDataset(ts, opts.TestRatio, opts.Seed)
	if len(test) == 0 || len(train) < opts.Neighbors {
		return nil, nil
	}

	holdout, err := ml.FitArtifact(train, opts.Neighbors, ml.Metadata{Sentinel: opts.Sentinel})
	if err != nil {
		return nil, ml.NewDataError(err, "fit holdout model")
	}
	queries := holdout.Encoder().TransformAll(test.Records())
	preds, err := holdout.Regressor().PredictBatch(ctx, queries)
	if err != nil {
		return nil, err
	}

	metrics := &ml.EvalMetrics{TrainRows: len(train), TestRows: len(test)}
	for i, ex := range test {
		for j, actual := range ex.Targets.Values() {
			diff := preds[i][j] - actual
			metrics.MAE[j] += math.Abs(diff)
			metrics.RMSE[j] += diff * diff
		}
	}
	n := float64(len(test))
	for j := range metrics.MAE {
		metrics.MAE[j] /= n
		metrics.RMSE[j] = math.Sqrt(metrics.RMSE[j] / n)
	}
	return metrics, nil
}

func splitDataset(ts ml.TrainingSet, testRatio float64, seed int64) (train, test ml.TrainingSet) {
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(ts))

	split := int(math.Round(float64(len(ts)) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			train = append(train, ts[idx])
		} else {
			test = append(test, ts[idx])
		}
	}
	return train, test
}
