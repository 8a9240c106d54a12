package monitor

import (
	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend adapts *fsnotify.Watcher to Backend. fsnotify does not
// expose a dedicated "changes done" close-out event on any platform; Monitor
// treats its Chmod events as the close-out of a pending write and otherwise
// falls back to CoalesceTimeout.
type fsnotifyBackend struct {
	w      *fsnotify.Watcher
	events chan RawEvent
	errors chan error
	done   chan struct{}
}

// NewFsnotifyBackend starts translating the local fsnotify watcher into
// Backend's raw event vocabulary.
func NewFsnotifyBackend() (Backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	b := &fsnotifyBackend{
		w:      w,
		events: make(chan RawEvent, 64),
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *fsnotifyBackend) pump() {
	defer close(b.events)
	defer close(b.errors)
	for {
		select {
		case ev, ok := <-b.w.Events:
			if !ok {
				return
			}
			select {
			case b.events <- RawEvent{Path: ev.Name, Op: translateOp(ev.Op)}:
			case <-b.done:
				return
			}
		case err, ok := <-b.w.Errors:
			if !ok {
				return
			}
			select {
			case b.errors <- err:
			case <-b.done:
				return
			}
		case <-b.done:
			return
		}
	}
}

func translateOp(op fsnotify.Op) RawOp {
	var out RawOp
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	if op.Has(fsnotify.Chmod) {
		out |= OpChmod
	}
	return out
}

func (b *fsnotifyBackend) Add(dir string) error    { return b.w.Add(dir) }
func (b *fsnotifyBackend) Remove(dir string)       { _ = b.w.Remove(dir) }
func (b *fsnotifyBackend) Events() <-chan RawEvent { return b.events }
func (b *fsnotifyBackend) Errors() <-chan error    { return b.errors }
func (b *fsnotifyBackend) Name() string            { return "fsnotify" }
func (b *fsnotifyBackend) Close() error {
	close(b.done)
	return b.w.Close()
}
