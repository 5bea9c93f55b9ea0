package watcher

import (
	"context"
	"time"
)

// EventType represents the type of file system event
type EventType int

const (
	// EventCreate represents file/directory creation
	EventCreate EventType = iota
	// EventWrite represents file modification
	EventWrite
	// EventRemove represents file/directory removal
	EventRemove
	// EventRename represents a file/directory moved away from Path
	EventRename
	// EventChmod represents permission changes
	EventChmod
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	case EventChmod:
		return "chmod"
	}
	return "unknown"
}

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	OldPath   string // For rename events
	Timestamp time.Time
	IsDir     bool
}

// Watcher defines the interface for file system watching
type Watcher interface {
	// Start begins watching the specified paths. Cancelling ctx stops the
	// watcher's loops; Close must still be called.
	Start(ctx context.Context, paths []string) error

	// Events returns a channel of file system events. It is only fed when no
	// batch processor is set.
	Events() <-chan Event

	// Errors returns a channel of errors encountered during watching
	Errors() <-chan error

	// Close stops watching and cleans up resources
	Close() error

	// Add adds paths to watch
	Add(paths ...string) error

	// Remove removes paths from watching
	Remove(paths ...string) error
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	// DebounceDelay is the quiet period after the last event on a path
	// before its batch is emitted. Zero disables debouncing.
	DebounceDelay time.Duration

	// MaxDebounceDelay bounds how long a busy path can hold back its batch
	MaxDebounceDelay time.Duration

	// QueueCapacity is the capacity of the event and batch queues
	QueueCapacity int
}

// Debouncer handles event debouncing
type Debouncer interface {
	// Add adds an event to be debounced
	Add(event Event)

	// Events returns debounced events, one batch per path
	Events() <-chan []Event

	// Close stops the debouncer
	Close()
}

// BatchProcessor processes events in batches
type BatchProcessor interface {
	// Process processes a batch of events
	Process(ctx context.Context, events []Event) error

	// Close stops the processor
	Close() error
}
