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
	qhttp "scorecast/http"
	"scorecast/logging"
	"scorecast/ml"
)

func main() {
	cmd := &cli.Command{
		Name:  "scorecast",
		Usage: "Serve exam score predictions from a trained KNN artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config.yaml (default: ./config.yaml or ../config.yaml)"},
			&cli.IntFlag{Name: "port", Usage: "HTTP port, overrides http.port"},
			&cli.StringFlag{Name: "model", Usage: "Artifact path, overrides model.path"},
		},
		Action: serve,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "scorecast: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, cfgPath, err := config.LoadOrDefault(cmd.String("config"))
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		cfg.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("model") {
		cfg.Model.Path = cmd.String("model")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()
	if cfgPath == "" {
		logger.Info("no config file found, using defaults")
	} else {
		logger.Info("config loaded", zap.String("path", cfgPath))
	}

	// a missing or broken artifact leaves the service up in degraded mode
	predictor := ml.LoadPredictor(cfg.Model.Path)
	if predictor.Ready() {
		logger.Info("model loaded", zap.String("path", cfg.Model.Path))
	} else {
		logger.Warn("model unavailable, predictions will fail until the service is restarted with a valid artifact",
			zap.String("path", cfg.Model.Path),
			zap.Stringer("kind", ml.LoadKind(predictor.LoadErr())),
			zap.Error(predictor.LoadErr()),
		)
	}

	var recorder *db.PredictionRecorder
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Warn("history store disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
	} else {
		defer store.Close()
		recorder = db.NewPredictionRecorder(store, cfg.Database.HistoryBuffer, logger)
		defer recorder.Close()
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	api, err := qhttp.NewAPI(qhttp.Deps{
		Predictor: predictor,
		Store:     store,
		Recorder:  recorder,
		CacheSize: cfg.Cache.Size,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, api, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}
