package filetypes

import (
	"sync"
	"time"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/ignore"
)

// Options configures a Manager. Zero fields take the defaults.
type Options struct {
	// SniffLimit is the largest content prefix read for detection.
	SniffLimit int
	// ChunkSize is the number of files re-detected per worker activation.
	ChunkSize int
	// CrashBackoff delays the retry of files that failed to read.
	CrashBackoff time.Duration
	// MaxCrashRetries bounds retries before a file is handed to the owner
	// for a reparse. Negative means retry forever.
	MaxCrashRetries int
	// IgnoredFiles is the initial ";"-separated ignore mask list.
	IgnoredFiles string

	// Locker guards the association tables and lazy type construction.
	Locker sync.Locker
	// Attributes persists the per-file detection byte. Nil keeps nothing.
	Attributes AttributeStorage
	// Generations persists the generation counter. Nil keeps it in memory.
	Generations GenerationStore
	// Rules persists the fingerprint of the startup rules. Nil makes every
	// LoadState that applies rules start a new generation.
	Rules RulesStore
	Owner Owner
	// ReadBarrier runs a retried read once concurrent writers are done.
	ReadBarrier func(read func() error) error
	AfterFunc   AfterFunc
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		SniffLimit:      DefaultSniffLimit,
		ChunkSize:       DefaultRedetectChunkSize,
		CrashBackoff:    DefaultCrashBackoff,
		MaxCrashRetries: DefaultMaxCrashRetries,
		IgnoredFiles:    ignore.DefaultIgnoredMasks,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SniffLimit <= 0 {
		o.SniffLimit = d.SniffLimit
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.CrashBackoff <= 0 {
		o.CrashBackoff = d.CrashBackoff
	}
	if o.MaxCrashRetries == 0 {
		o.MaxCrashRetries = d.MaxCrashRetries
	}
	if o.IgnoredFiles == "" {
		o.IgnoredFiles = d.IgnoredFiles
	}
	if o.Locker == nil {
		o.Locker = &sync.Mutex{}
	}
	if o.Owner == nil {
		o.Owner = nopOwner{}
	}
	if o.ReadBarrier == nil {
		o.ReadBarrier = func(read func() error) error { return read() }
	}
	if o.AfterFunc == nil {
		o.AfterFunc = realAfterFunc
	}
	return o
}

type nopOwner struct{}

func (nopOwner) TypesChanged([]TypeChange) {}
func (nopOwner) ReparseFiles([]File)       {}
