package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"scorecast/config"
	"scorecast/db"
	"scorecast/logging"
	"scorecast/ml"
	"scorecast/pipeline"
)

var (
	version = "v0.0.1-default"
	commit  = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "train_model: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "train_model",
		Usage:   "Fit the exam score KNN model from a microdata export",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config.yaml (default: ./config.yaml or ../config.yaml)"},
			&cli.StringFlag{Name: "data", Usage: "Delimited microdata file to train on"},
			&cli.StringFlag{Name: "model", Usage: "Artifact output path"},
			&cli.IntFlag{Name: "k", Usage: "Number of neighbors", Value: ml.DefaultNeighbors},
			&cli.FloatFlag{Name: "test-ratio", Usage: "Holdout fraction for evaluation, 0 disables it"},
			&cli.IntFlag{Name: "seed", Usage: "Seed for the holdout split"},
			&cli.StringFlag{Name: "encoding", Usage: "Input character encoding label, e.g. iso-8859-1 or utf-8"},
			&cli.StringFlag{Name: "delimiter", Usage: "Field delimiter"},
			&cli.StringFlag{Name: "db", Usage: "Sqlite history database; \"-\" disables the training log"},
			&cli.BoolFlag{Name: "watch", Usage: "Retrain whenever the data file changes"},
			&cli.BoolFlag{Name: "debug", Usage: "Verbose logging"},
		},
		Action: runTraining,
	}
}

func runTraining(ctx context.Context, cmd *cli.Command) error {
	cfg, cfgPath, err := config.LoadOrDefault(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()
	if cfgPath != "" {
		logger.Info("config loaded", zap.String("path", cfgPath))
	}

	delimiter, err := cfg.Training.DelimiterRune()
	if err != nil {
		return err
	}
	runCfg := pipeline.RunConfig{
		DataPath:  cfg.Training.DataPath,
		ModelPath: cfg.Model.Path,
		Read:      pipeline.ReadOptions{Delimiter: delimiter, Encoding: cfg.Training.Encoding},
		Train: pipeline.TrainOptions{
			Neighbors: cfg.Model.Neighbors,
			Sentinel:  cfg.Training.Sentinel,
			TestRatio: cfg.Training.TestRatio,
			Seed:      cfg.Training.Seed,
			Logger:    logger,
		},
	}

	var store *db.Store
	if cfg.Database.Path != "" && cfg.Database.Path != "-" {
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	train := func(ctx context.Context) error {
		report, err := pipeline.TrainAndSave(ctx, runCfg, store)
		if err != nil {
			return err
		}
		printReport(report, runCfg.ModelPath)
		return nil
	}

	if !cmd.Bool("watch") {
		return train(ctx)
	}

	// start watching before the first run so edits made during it are seen
	watcher, err := pipeline.NewDatasetWatcher(runCfg.DataPath, cfg.Training.WatchDebounce, logger)
	if err != nil {
		return err
	}
	if err := train(ctx); err != nil {
		logger.Error("initial training failed, waiting for dataset changes", zap.Error(err))
	}
	logger.Info("watching dataset", zap.String("path", runCfg.DataPath))
	return watcher.Run(ctx, train)
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("data") {
		cfg.Training.DataPath = cmd.String("data")
	}
	if cmd.IsSet("model") {
		cfg.Model.Path = cmd.String("model")
	}
	if cmd.IsSet("k") {
		cfg.Model.Neighbors = int(cmd.Int("k"))
	}
	if cmd.IsSet("test-ratio") {
		cfg.Training.TestRatio = cmd.Float("test-ratio")
	}
	if cmd.IsSet("seed") {
		cfg.Training.Seed = cmd.Int("seed")
	}
	if cmd.IsSet("encoding") {
		cfg.Training.Encoding = cmd.String("encoding")
	}
	if cmd.IsSet("delimiter") {
		cfg.Training.Delimiter = cmd.String("delimiter")
	}
	if cmd.IsSet("db") {
		cfg.Database.Path = cmd.String("db")
	}
	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
	}
}

func printReport(report *pipeline.TrainReport, modelPath string) {
	fmt.Printf("run %s: %d rows used, %d dropped, width %d, k=%d (%s)\n",
		report.RunID, report.RowsUsed, report.RowsDropped, report.Width, report.Neighbors, report.Duration.Round(time.Millisecond))
	if m := report.Metrics; m != nil {
		fmt.Printf("holdout %d/%d rows\n", m.TrainRows, m.TestRows)
		for i, name := range ml.TargetNames {
			fmt.Printf("  %-16s MAE=%7.2f RMSE=%7.2f\n", name, m.MAE[i], m.RMSE[i])
		}
	}
	fmt.Printf("model saved to %s\n", modelPath)
}
