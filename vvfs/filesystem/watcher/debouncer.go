package watcher

import (
	"sync"
	"time"
)

// EventBatch collects the events seen for one path since its last flush
type EventBatch struct {
	Path      string
	Events    []Event
	FirstSeen time.Time
	Timer     *time.Timer
}

// DebouncerImpl implements the Debouncer interface. A path's batch is emitted
// once the path has been quiet for delay, or maxDelay after its first event,
// whichever comes first.
type DebouncerImpl struct {
	delay    time.Duration
	maxDelay time.Duration

	eventChan chan []Event
	done      chan struct{}
	inflight  sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	pendingEvents map[string]*EventBatch
}

// NewDebouncer creates a new debouncer
func NewDebouncer(delay, maxDelay time.Duration, queueCapacity int) *DebouncerImpl {
	return &DebouncerImpl{
		delay:         delay,
		maxDelay:      maxDelay,
		eventChan:     make(chan []Event, queueCapacity),
		done:          make(chan struct{}),
		pendingEvents: make(map[string]*EventBatch),
	}
}

// Add adds an event to be debounced
func (d *DebouncerImpl) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	batch, exists := d.pendingEvents[event.Path]
	if !exists {
		batch = &EventBatch{
			Path:      event.Path,
			Events:    make([]Event, 0, 4),
			FirstSeen: time.Now(),
		}
		d.pendingEvents[event.Path] = batch
	}
	batch.Events = append(batch.Events, event)

	wait := d.delay
	if d.maxDelay > 0 {
		wait = min(wait, max(d.maxDelay-time.Since(batch.FirstSeen), 0))
	}
	if batch.Timer != nil {
		batch.Timer.Stop()
	}
	batch.Timer = time.AfterFunc(wait, func() { d.flush(batch) })
}

// Events returns the debounced events channel
func (d *DebouncerImpl) Events() <-chan []Event {
	return d.eventChan
}

// flush emits batch unless it was already emitted or the debouncer closed.
// The lock is released before sending so a slow consumer never blocks Add.
func (d *DebouncerImpl) flush(batch *EventBatch) {
	d.mu.Lock()
	if d.closed || d.pendingEvents[batch.Path] != batch {
		d.mu.Unlock()
		return
	}
	delete(d.pendingEvents, batch.Path)
	events := batch.Events
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	select {
	case d.eventChan <- events:
	case <-d.done:
	}
}

// Pending returns the number of paths with unflushed events
func (d *DebouncerImpl) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendingEvents)
}

// Close stops the debouncer, dropping unflushed batches. It is safe to call
// more than once.
func (d *DebouncerImpl) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, batch := range d.pendingEvents {
		batch.Timer.Stop()
	}
	d.pendingEvents = nil
	close(d.done)
	d.mu.Unlock()

	d.inflight.Wait()
	close(d.eventChan)
}
