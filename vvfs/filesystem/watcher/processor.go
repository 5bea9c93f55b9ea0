package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// ErrProcessorClosed is returned by Process after Close
var ErrProcessorClosed = errors.New("processor is shutting down")

// BatchHandler consumes one coalesced batch of events
type BatchHandler func(ctx context.Context, events []Event) error

// QueuedProcessor implements BatchProcessor with a bounded queue drained by a
// single worker, so batches are handled in arrival order
type QueuedProcessor struct {
	handler  BatchHandler
	workChan chan []Event
	ctx      context.Context
	cancel   context.CancelFunc
	wg       conc.WaitGroup

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once

	statsMu         sync.Mutex
	processedEvents int64
	processingTime  time.Duration
}

// NewQueuedProcessor creates a processor handing coalesced batches to handler
func NewQueuedProcessor(queueCapacity int, handler BatchHandler) *QueuedProcessor {
	ctx, cancel := context.WithCancel(context.Background())

	return &QueuedProcessor{
		handler:  handler,
		workChan: make(chan []Event, max(queueCapacity, 1)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the worker. It is safe to call more than once.
func (p *QueuedProcessor) Start() {
	p.startOnce.Do(func() { p.wg.Go(p.worker) })
}

// Process queues a batch of events
func (p *QueuedProcessor) Process(ctx context.Context, events []Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProcessorClosed
	}

	select {
	case p.workChan <- events:
		slog.Debug("Queued event batch for processing", "count", len(events))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrProcessorClosed
	}
}

func (p *QueuedProcessor) worker() {
	for events := range p.workChan {
		p.processBatch(events)
	}
}

func (p *QueuedProcessor) processBatch(events []Event) {
	start := time.Now()
	batch := Coalesce(events)

	var pc panics.Catcher
	var err error
	pc.Try(func() { err = p.handler(p.ctx, batch) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		slog.Error("Error processing event batch", "count", len(batch), "error", err)
	}

	p.statsMu.Lock()
	p.processedEvents += int64(len(events))
	p.processingTime += time.Since(start)
	p.statsMu.Unlock()
}

// GetStats returns processing statistics
func (p *QueuedProcessor) GetStats() (processedEvents int64, avgProcessingTime time.Duration) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	if p.processedEvents == 0 {
		return 0, 0
	}

	return p.processedEvents, p.processingTime / time.Duration(p.processedEvents)
}

// Close stops accepting batches, drains the queue and waits for the worker
func (p *QueuedProcessor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.workChan)
	p.mu.Unlock()

	p.Start()
	p.wg.Wait()
	p.cancel()

	slog.Debug("Queued processor closed")
	return nil
}

// Coalesce reduces a batch to one event per path, in order of first
// appearance. The last event's type wins, except that writes and permission
// changes after a creation still report a creation.
func Coalesce(events []Event) []Event {
	index := make(map[string]int, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		i, ok := index[e.Path]
		if !ok {
			index[e.Path] = len(out)
			out = append(out, e)
			continue
		}
		prev := out[i]
		if prev.Type == EventCreate && (e.Type == EventWrite || e.Type == EventChmod) {
			e.Type = EventCreate
		}
		if e.OldPath == "" {
			e.OldPath = prev.OldPath
		}
		e.IsDir = e.IsDir || prev.IsDir
		out[i] = e
	}
	return out
}
