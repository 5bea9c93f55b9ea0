package filetypes

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/indexing"
)

const (
	DefaultRedetectChunkSize = 10
	DefaultCrashBackoff      = 10 * time.Second
	DefaultMaxCrashRetries   = 3
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn to run once after d.
type AfterFunc func(d time.Duration, fn func()) Timer

func realAfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

// redetectFunc classifies a chunk from scratch and reports type changes and
// files whose content could not be read.
type redetectFunc func(files []FileWithID) (changes []TypeChange, crashed []FileWithID)

// Redetector drains a deduplicated queue of files in chunks on a single
// worker. Files that fail to read are retried as a batch after a back-off.
type Redetector struct {
	process redetectFunc
	owner   Owner

	chunkSize  int
	backoff    time.Duration
	maxRetries int
	afterFunc  AfterFunc

	// guards the queue; never held while classifying
	mu      sync.Mutex
	queue   []FileWithID
	queued  *indexing.IdentitySet
	crashes map[FileID]int
	timers  map[uint64]Timer
	nextID  uint64
	closed  bool

	exec *SerialExecutor

	activations atomic.Int64
	processed   atomic.Int64
	changed     atomic.Int64
	crashed     atomic.Int64
}

func newRedetector(process redetectFunc, owner Owner, opts Options) *Redetector {
	return &Redetector{
		process:    process,
		owner:      owner,
		chunkSize:  opts.ChunkSize,
		backoff:    opts.CrashBackoff,
		maxRetries: opts.MaxCrashRetries,
		afterFunc:  opts.AfterFunc,
		queued:     indexing.NewIdentitySet(),
		crashes:    make(map[FileID]int),
		timers:     make(map[uint64]Timer),
		exec:       NewSerialExecutor("redetect"),
	}
}

// Enqueue adds files not already queued and wakes the worker if any was added.
func (r *Redetector) Enqueue(files []FileWithID) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	added := false
	for _, f := range files {
		if r.queued.Add(f.ID()) {
			r.queue = append(r.queue, f)
			added = true
		}
	}
	r.mu.Unlock()

	if added {
		r.awake()
	}
	return added
}

func (r *Redetector) awake() {
	r.exec.Submit(r.activate)
}

func (r *Redetector) activate() {
	r.mu.Lock()
	n := min(r.chunkSize, len(r.queue))
	chunk := make([]FileWithID, n)
	copy(chunk, r.queue[:n])
	clear(r.queue[:n])
	r.queue = r.queue[n:]
	for _, f := range chunk {
		r.queued.Remove(f.ID())
	}
	r.mu.Unlock()

	if n == r.chunkSize {
		r.awake()
	}
	if n == 0 {
		return
	}
	r.activations.Add(1)

	changes, crashed := r.process(chunk)
	r.processed.Add(int64(n))
	slog.Debug("Re-detected chunk", "files", n, "changed", len(changes), "crashed", len(crashed))

	r.forgetCrashes(chunk, crashed)
	if len(changes) > 0 {
		r.changed.Add(int64(len(changes)))
		files := make([]File, len(changes))
		for i, c := range changes {
			files[i] = c.File
		}
		r.owner.TypesChanged(changes)
		r.owner.ReparseFiles(files)
	}
	if len(crashed) > 0 {
		r.crashed.Add(int64(len(crashed)))
		r.retryLater(crashed)
	}
}

func (r *Redetector) forgetCrashes(chunk, crashed []FileWithID) {
	failed := make(map[FileID]bool, len(crashed))
	for _, f := range crashed {
		failed[f.ID()] = true
	}
	r.mu.Lock()
	for _, f := range chunk {
		if !failed[f.ID()] {
			delete(r.crashes, f.ID())
		}
	}
	r.mu.Unlock()
}

// retryLater re-queues crashed files after the back-off. Files that keep
// failing are handed to the owner for a plain reparse instead.
func (r *Redetector) retryLater(crashed []FileWithID) {
	var retry []FileWithID
	var exhausted []File

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	for _, f := range crashed {
		r.crashes[f.ID()]++
		if r.maxRetries > 0 && r.crashes[f.ID()] > r.maxRetries {
			delete(r.crashes, f.ID())
			exhausted = append(exhausted, f)
			continue
		}
		retry = append(retry, f)
	}

	r.mu.Unlock()

	if len(retry) > 0 {
		r.schedule(retry)
		slog.Debug("Scheduled re-detection retry", "files", len(retry), "backoff", r.backoff)
	}
	if len(exhausted) > 0 {
		slog.Warn("Giving up re-detection of unreadable files", "files", len(exhausted))
		r.owner.ReparseFiles(exhausted)
	}
}

func (r *Redetector) schedule(files []FileWithID) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.mu.Unlock()

	var fired atomic.Bool
	t := r.afterFunc(r.backoff, func() {
		fired.Store(true)
		r.mu.Lock()
		delete(r.timers, id)
		r.mu.Unlock()
		r.Enqueue(files)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		t.Stop()
		return
	}
	if !fired.Load() {
		r.timers[id] = t
	}
}

// Dump returns the queued files in order.
func (r *Redetector) Dump() []FileWithID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FileWithID(nil), r.queue...)
}

// Wait blocks until the worker is idle.
func (r *Redetector) Wait(ctx context.Context) error {
	return r.exec.WaitIdle(ctx)
}

// Close stops retries, drops queued files and waits for the running chunk.
func (r *Redetector) Close() {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
	r.queue = nil
	r.queued.Clear()
	r.mu.Unlock()

	r.exec.Close()
}

// RedetectStats are cumulative re-detection counters.
type RedetectStats struct {
	Activations int64
	Processed   int64
	Changed     int64
	Crashed     int64
	Queued      int
}

func (r *Redetector) Stats() RedetectStats {
	r.mu.Lock()
	queued := len(r.queue)
	r.mu.Unlock()
	return RedetectStats{
		Activations: r.activations.Load(),
		Processed:   r.processed.Load(),
		Changed:     r.changed.Load(),
		Crashed:     r.crashed.Load(),
		Queued:      queued,
	}
}
