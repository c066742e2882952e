package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scorecast/db"
	"scorecast/ml"
)

// RunConfig describes a full offline training job.
type RunConfig struct {
	DataPath  string
	ModelPath string
	Read      ReadOptions
	Train     TrainOptions
}

// TrainAndSave reads the dataset, trains, persists the artifact and, when
// store is non-nil, appends the run to the training log. The artifact file is
// only replaced after a successful fit.
func TrainAndSave(ctx context.Context, cfg RunConfig, store *db.Store) (*TrainReport, error) {
	logger := cfg.Train.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ds, err := ReadDataset(cfg.DataPath, cfg.Read)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded", zap.String("path", cfg.DataPath), zap.Int("rows", len(ds.Points)))

	artifact, report, err := Train(ctx, ds, cfg.Train)
	if err != nil {
		return nil, err
	}
	if err := ml.SaveArtifact(cfg.ModelPath, artifact); err != nil {
		return nil, err
	}
	logger.Info("model saved", zap.String("path", cfg.ModelPath), zap.String("run_id", report.RunID))

	if store != nil {
		run := db.TrainingRun{
			RunID:       report.RunID,
			ModelPath:   cfg.ModelPath,
			Source:      report.Source,
			RowsTotal:   report.RowsTotal,
			RowsUsed:    report.RowsUsed,
			RowsDropped: report.RowsDropped,
			Width:       report.Width,
			Neighbors:   report.Neighbors,
			Metrics:     report.Metrics,
			Duration:    report.Duration,
			TrainedAt:   time.Now().UTC(),
		}
		if err := store.SaveTrainingRun(ctx, run); err != nil {
			logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return report, nil
}
