package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"
)

// FSNotifyWatcher implements the Watcher interface using fsnotify. New
// directories under a watched root are watched as they appear.
type FSNotifyWatcher struct {
	watcher      *fsnotify.Watcher
	eventChan    chan Event
	errorChan    chan error
	debouncer    Debouncer
	processor    BatchProcessor
	config       WatcherConfig
	ctx          context.Context
	cancel       context.CancelFunc
	wg           conc.WaitGroup
	mu           sync.RWMutex
	watchedPaths map[string]bool
	closeOnce    sync.Once
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher
func NewFSNotifyWatcher(config WatcherConfig) (*FSNotifyWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &FSNotifyWatcher{
		watcher:      fsWatcher,
		eventChan:    make(chan Event, max(config.QueueCapacity, 1)),
		errorChan:    make(chan error, 10),
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
		watchedPaths: make(map[string]bool),
	}

	if config.DebounceDelay > 0 {
		w.debouncer = NewDebouncer(config.DebounceDelay, config.MaxDebounceDelay, max(config.QueueCapacity, 1))
	}

	return w, nil
}

// SetProcessor routes debounced batches to processor instead of Events
func (w *FSNotifyWatcher) SetProcessor(processor BatchProcessor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processor = processor
}

// Start begins watching the specified paths
func (w *FSNotifyWatcher) Start(ctx context.Context, paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			slog.Warn("Failed to add path to watcher", "path", path, "error", err)
			continue
		}
		w.watchedPaths[path] = true
	}

	context.AfterFunc(ctx, w.cancel)
	w.wg.Go(w.processEvents)
	w.wg.Go(w.watchLoop)

	slog.Info("FSNotify watcher started", "paths", len(paths), "debounce", w.config.DebounceDelay)
	return nil
}

// Events returns the event channel
func (w *FSNotifyWatcher) Events() <-chan Event {
	return w.eventChan
}

// Errors returns the error channel
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// Add adds paths to watch
func (w *FSNotifyWatcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			return fmt.Errorf("failed to add path %s: %w", path, err)
		}
		w.watchedPaths[path] = true
	}

	slog.Debug("Added paths to watcher", "count", len(paths))
	return nil
}

// Remove removes paths from watching
func (w *FSNotifyWatcher) Remove(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.watcher.Remove(path); err != nil {
			slog.Warn("Failed to remove path from watcher", "path", path, "error", err)
		}
		delete(w.watchedPaths, path)
	}

	slog.Debug("Removed paths from watcher", "count", len(paths))
	return nil
}

// WatchedPaths returns the roots passed to Start and Add
func (w *FSNotifyWatcher) WatchedPaths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.watchedPaths))
	for p := range w.watchedPaths {
		out = append(out, p)
	}
	return out
}

// Close stops watching and cleans up resources
func (w *FSNotifyWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()

		if err := w.watcher.Close(); err != nil {
			slog.Warn("Error closing fsnotify watcher", "error", err)
		}
		if w.debouncer != nil {
			w.debouncer.Close()
		}

		w.wg.Wait()

		w.mu.RLock()
		processor := w.processor
		w.mu.RUnlock()
		if processor != nil {
			if err := processor.Close(); err != nil {
				slog.Warn("Error closing processor", "error", err)
			}
		}

		close(w.eventChan)
		close(w.errorChan)
		slog.Info("FSNotify watcher closed")
	})
	return nil
}

// addPathRecursive adds a path and all its subdirectories to the watcher
func (w *FSNotifyWatcher) addPathRecursive(rootPath string) error {
	if err := w.watcher.Add(rootPath); err != nil {
		return fmt.Errorf("failed to add root path %s: %w", rootPath, err)
	}

	return filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != rootPath {
			if err := w.watcher.Add(path); err != nil {
				slog.Warn("Failed to add subdirectory to watcher", "path", path, "error", err)
			}
		}
		return nil
	})
}

// watchLoop is the main event processing loop
func (w *FSNotifyWatcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			watcherEvent := w.convertEvent(event)
			if watcherEvent == nil {
				continue
			}
			if watcherEvent.Type == EventCreate && watcherEvent.IsDir {
				w.mu.Lock()
				if err := w.addPathRecursive(watcherEvent.Path); err != nil {
					slog.Warn("Failed to watch new directory", "path", watcherEvent.Path, "error", err)
				}
				w.mu.Unlock()
			}

			if w.debouncer != nil {
				w.debouncer.Add(*watcherEvent)
			} else {
				w.dispatch([]Event{*watcherEvent})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errorChan <- err:
			case <-w.ctx.Done():
				return
			default:
				slog.Warn("Error channel full, dropping error", "error", err)
			}
		}
	}
}

// processEvents handles debounced events
func (w *FSNotifyWatcher) processEvents() {
	if w.debouncer == nil {
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case events, ok := <-w.debouncer.Events():
			if !ok {
				return
			}
			w.dispatch(events)
		}
	}
}

// dispatch hands a batch to the processor or, without one, to Events
func (w *FSNotifyWatcher) dispatch(events []Event) {
	w.mu.RLock()
	processor := w.processor
	w.mu.RUnlock()

	if processor != nil {
		if err := processor.Process(w.ctx, events); err != nil {
			slog.Error("Error processing events", "error", err)
		}
		return
	}

	for _, event := range events {
		select {
		case w.eventChan <- event:
		case <-w.ctx.Done():
			return
		default:
			slog.Warn("Event channel full, dropping event", "path", event.Path)
		}
	}
}

// convertEvent converts fsnotify.Event to watcher.Event
func (w *FSNotifyWatcher) convertEvent(event fsnotify.Event) *Event {
	var eventType EventType

	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventWrite
	case event.Has(fsnotify.Remove):
		eventType = EventRemove
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	case event.Has(fsnotify.Chmod):
		eventType = EventChmod
	default:
		return nil
	}

	isDir := false
	if eventType == EventCreate || eventType == EventWrite {
		if info, err := os.Lstat(event.Name); err == nil {
			isDir = info.IsDir()
		}
	}

	return &Event{
		Type:      eventType,
		Path:      event.Name,
		Timestamp: time.Now(),
		IsDir:     isDir,
	}
}
