package vfile

import (
	"context"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filesystem/watcher"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
)

// ChangeSink receives batches of file changes. *filetypes.Manager is one.
type ChangeSink interface {
	OnFileChanges(events []filetypes.ChangeEvent)
}

var kinds = map[watcher.EventType]filetypes.ChangeKind{
	watcher.EventCreate: filetypes.ChangeCreate,
	watcher.EventWrite:  filetypes.ChangeWrite,
	watcher.EventRemove: filetypes.ChangeRemove,
	watcher.EventRename: filetypes.ChangeRename,
	watcher.EventChmod:  filetypes.ChangeAttrib,
}

// ChangeEvents converts watcher events to change events on canonical handles.
// Directory events are dropped. A creation on a path that already has a
// handle is reported as a write, since the handle outlives the file it
// named before.
func (s *FileSystem) ChangeEvents(events []watcher.Event) []filetypes.ChangeEvent {
	out := make([]filetypes.ChangeEvent, 0, len(events))
	for _, e := range events {
		if e.IsDir || e.Path == "" {
			continue
		}
		kind, ok := kinds[e.Type]
		if !ok {
			continue
		}
		if kind == filetypes.ChangeCreate {
			if _, known := s.files.Load(canonical(e.Path)); known {
				kind = filetypes.ChangeWrite
			}
		}
		f, err := s.File(e.Path)
		if err != nil {
			continue
		}
		out = append(out, filetypes.ChangeEvent{Kind: kind, File: f})
	}
	return out
}

// Handler returns a watcher batch handler that feeds sink.
func (s *FileSystem) Handler(sink ChangeSink) watcher.BatchHandler {
	return func(_ context.Context, events []watcher.Event) error {
		if changes := s.ChangeEvents(events); len(changes) > 0 {
			sink.OnFileChanges(changes)
		}
		return nil
	}
}
