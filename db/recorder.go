package db

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PredictionRecorder writes prediction history off the request path. Records
// are batched by a single worker; when the buffer is full they are dropped.
type PredictionRecorder struct {
	store  *Store
	logger *zap.Logger
	queue  chan PredictionRecord

	flushInterval time.Duration
	batchSize     int

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewPredictionRecorder starts the flush worker. Close must be called to drain it.
func NewPredictionRecorder(store *Store, buffer int, logger *zap.Logger) *PredictionRecorder {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &PredictionRecorder{
		store:         store,
		logger:        logger,
		queue:         make(chan PredictionRecord, buffer),
		flushInterval: time.Second,
		batchSize:     100,
		done:          make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues rec and reports whether it was accepted. It returns false
// once the recorder is closed.
func (r *PredictionRecorder) Record(rec PredictionRecord) bool {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- rec:
		return true
	default:
		r.logger.Warn("prediction history buffer full, dropping record", zap.String("request_id", rec.RequestID))
		return false
	}
}

// Close flushes pending records and stops the worker. It is safe to call
// more than once and concurrently with Record.
func (r *PredictionRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *PredictionRecorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]PredictionRecord, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.SavePredictions(ctx, batch); err != nil {
			r.logger.Error("failed to save predictions", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
