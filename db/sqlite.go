package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scorecast/ml"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    model_path TEXT NOT NULL,
    source TEXT,
    rows_total INTEGER NOT NULL,
    rows_used INTEGER NOT NULL,
    rows_dropped INTEGER NOT NULL,
    width INTEGER NOT NULL,
    neighbors INTEGER NOT NULL,
    metrics TEXT,
    duration_ms INTEGER NOT NULL,
    trained_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT,
    q002 TEXT NOT NULL,
    q006 TEXT NOT NULL,
    tp_escola TEXT NOT NULL,
    tp_cor_raca TEXT NOT NULL,
    sg_uf_prova TEXT NOT NULL,
    nota_mt REAL NOT NULL,
    nota_cn REAL NOT NULL,
    nota_lc REAL NOT NULL,
    nota_ch REAL NOT NULL,
    nota_redacao REAL NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

// Store keeps training and prediction history in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxLifetime(time.Hour)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TrainingRun is one row of the training log.
type TrainingRun struct {
	RunID       string          `json:"run_id"`
	ModelPath   string          `json:"model_path"`
	Source      string          `json:"source"`
	RowsTotal   int             `json:"rows_total"`
	RowsUsed    int             `json:"rows_used"`
	RowsDropped int             `json:"rows_dropped"`
	Width       int             `json:"width"`
	Neighbors   int             `json:"neighbors"`
	Metrics     *ml.EvalMetrics `json:"metrics,omitempty"`
	Duration    time.Duration   `json:"duration"`
	TrainedAt   time.Time       `json:"trained_at"`
}

// SaveTrainingRun appends one row to training_log.
func (s *Store) SaveTrainingRun(ctx context.Context, run TrainingRun) error {
	var metrics sql.NullString
	if run.Metrics != nil {
		payload, err := json.Marshal(run.Metrics)
		if err != nil {
			return err
		}
		metrics = sql.NullString{String: string(payload), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            run_id, model_path, source, rows_total, rows_used, rows_dropped,
            width, neighbors, metrics, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ModelPath, run.Source, run.RowsTotal, run.RowsUsed, run.RowsDropped,
		run.Width, run.Neighbors, metrics, run.Duration.Milliseconds(), run.TrainedAt.UnixMilli(),
	)
	return err
}

// ListTrainingRuns returns the newest runs first.
func (s *Store) ListTrainingRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, model_path, source, rows_total, rows_used, rows_dropped,
               width, neighbors, metrics, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		var source, metrics sql.NullString
		var durationMs, trainedAt int64
		if err := rows.Scan(&run.RunID, &run.ModelPath, &source, &run.RowsTotal, &run.RowsUsed, &run.RowsDropped,
			&run.Width, &run.Neighbors, &metrics, &durationMs, &trainedAt); err != nil {
			return nil, err
		}
		run.Source = source.String
		if metrics.Valid && metrics.String != "" {
			run.Metrics = &ml.EvalMetrics{}
			if err := json.Unmarshal([]byte(metrics.String), run.Metrics); err != nil {
				return nil, fmt.Errorf("decode metrics for run %s: %w", run.RunID, err)
			}
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.TrainedAt = time.UnixMilli(trainedAt).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	RequestID string           `json:"request_id"`
	Input     ml.FeatureRecord `json:"input"`
	Output    ml.TargetVector  `json:"output"`
	CreatedAt time.Time        `json:"created_at"`
}

// SavePredictions inserts records in a single transaction.
func (s *Store) SavePredictions(ctx context.Context, records []PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (
            request_id, q002, q006, tp_escola, tp_cor_raca, sg_uf_prova,
            nota_mt, nota_cn, nota_lc, nota_ch, nota_redacao, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		in, out := rec.Input, rec.Output
		if _, err := stmt.ExecContext(ctx, rec.RequestID,
			in.MotherEducation, in.HouseholdIncome, in.SchoolType, in.RaceEthnicity, in.ExamState,
			out.Math, out.NaturalSciences, out.Languages, out.HumanSciences, out.Essay,
			rec.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
	}
	return tx.Commit()
}

// RecentPredictions returns the newest predictions first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT request_id, q002, q006, tp_escola, tp_cor_raca, sg_uf_prova,
               nota_mt, nota_cn, nota_lc, nota_ch, nota_redacao, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var requestID sql.NullString
		var createdAt int64
		in, out := &rec.Input, &rec.Output
		if err := rows.Scan(&requestID,
			&in.MotherEducation, &in.HouseholdIncome, &in.SchoolType, &in.RaceEthnicity, &in.ExamState,
			&out.Math, &out.NaturalSciences, &out.Languages, &out.HumanSciences, &out.Essay,
			&createdAt); err != nil {
			return nil, err
		}
		rec.RequestID = requestID.String
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
