package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DatasetWatcher calls back when a dataset file is written or replaced.
// Bursts of events inside the debounce window collapse into one call.
type DatasetWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

// NewDatasetWatcher starts watching the directory holding path. Changes made
// after it returns are delivered by Run.
func NewDatasetWatcher(path string, debounce time.Duration, logger *zap.Logger) (*DatasetWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// editors and exporters often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &DatasetWatcher{path: abs, debounce: debounce, watcher: watcher, logger: logger}, nil
}

// Run blocks until ctx is done. Errors from onChange are logged, not fatal.
func (w *DatasetWatcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("dataset changed", zap.String("path", w.path), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("dataset watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := onChange(ctx); err != nil {
				w.logger.Error("retrain after dataset change failed", zap.String("path", w.path), zap.Error(err))
			}
		}
	}
}
