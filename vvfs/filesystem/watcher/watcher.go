package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultConfig returns a default watcher configuration
func DefaultConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDelay:    100 * time.Millisecond,
		MaxDebounceDelay: 2 * time.Second,
		QueueCapacity:    1000,
	}
}

// NewWatcherWithProcessor creates a watcher with a batch processor
func NewWatcherWithProcessor(config WatcherConfig, processor BatchProcessor) (*FSNotifyWatcher, error) {
	w, err := NewFSNotifyWatcher(config)
	if err != nil {
		return nil, err
	}
	w.SetProcessor(processor)
	return w, nil
}

// WatchPaths starts watching paths and hands coalesced batches to handler on
// a single worker. The returned watcher must be closed by the caller; errors
// reported by fsnotify are logged.
func WatchPaths(ctx context.Context, paths []string, config WatcherConfig, handler BatchHandler) (Watcher, error) {
	processor := NewQueuedProcessor(config.QueueCapacity, handler)
	processor.Start()

	w, err := NewWatcherWithProcessor(config, processor)
	if err != nil {
		_ = processor.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.Start(ctx, paths); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to start watching: %w", err)
	}

	go func() {
		for err := range w.Errors() {
			slog.Error("Watcher error", "error", err)
		}
	}()

	return w, nil
}
