//go:build !linux

package fswatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type fsnotifyWatcher struct {
	mu     sync.Mutex
	fw     *fsnotify.Watcher
	next   Handle
	paths  map[Handle]string
	byPath map[string]Handle
	closed bool
}

func newBackend() (Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify init: %w", err)
	}
	return &fsnotifyWatcher{
		fw:     fw,
		next:   1,
		paths:  make(map[Handle]string),
		byPath: make(map[string]Handle),
	}, nil
}

func (w *fsnotifyWatcher) Watch(path string) (Handle, error) {
	clean := filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errClosed
	}
	if h, ok := w.byPath[clean]; ok {
		return h, nil
	}
	if err := w.fw.Add(clean); err != nil {
		return 0, fmt.Errorf("fsnotify add %s: %w", clean, err)
	}
	h := w.next
	w.next++
	w.paths[h] = clean
	w.byPath[clean] = h
	return h, nil
}

func (w *fsnotifyWatcher) Unwatch(h Handle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.paths[h]
	if !ok {
		return fmt.Errorf("unwatch %d: %w", h, errUnknownHandle)
	}
	delete(w.paths, h)
	delete(w.byPath, path)
	if w.closed {
		return nil
	}
	if err := w.fw.Remove(path); err != nil {
		return fmt.Errorf("fsnotify remove %s: %w", path, err)
	}
	return nil
}

func (w *fsnotifyWatcher) Poll(timeout time.Duration) ([]Event, error) {
	if timeout < 0 {
		timeout = 0
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var events []Event
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return events, errClosed
			}
			if mapped, keep := w.translate(ev); keep {
				events = append(events, mapped)
			}
			// drain whatever else is already queued, then return
			for {
				select {
				case ev, ok := <-w.fw.Events:
					if !ok {
						return events, nil
					}
					if mapped, keep := w.translate(ev); keep {
						events = append(events, mapped)
					}
				default:
					return events, nil
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return events, errClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				return append(events, Event{Handle: -1, Op: OpOverflow}), nil
			}
			return events, fmt.Errorf("fsnotify: %w", err)
		case <-timer.C:
			return events, nil
		}
	}
}

// translate resolves ev against the registered paths. fsnotify reports the
// changed file's path, so a directory watch yields Path=dir and Name=entry.
func (w *fsnotifyWatcher) translate(ev fsnotify.Event) (Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	name := filepath.Clean(ev.Name)
	op := translateOp(ev.Op)
	if h, ok := w.byPath[name]; ok {
		if ev.Op&fsnotify.Remove != 0 {
			op |= OpDeleteSelf | OpIgnored
		}
		if ev.Op&fsnotify.Rename != 0 {
			op |= OpMoveSelf | OpIgnored
		}
		if op.Has(OpIgnored) {
			delete(w.paths, h)
			delete(w.byPath, name)
		}
		return Event{Handle: h, Path: name, Mask: uint32(ev.Op), Op: op}, true
	}
	dir := filepath.Dir(name)
	if h, ok := w.byPath[dir]; ok {
		return Event{Handle: h, Path: dir, Name: filepath.Base(name), Mask: uint32(ev.Op), Op: op}, true
	}
	return Event{}, false
}

func (w *fsnotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.paths = make(map[Handle]string)
	w.byPath = make(map[string]Handle)
	w.mu.Unlock()
	return w.fw.Close()
}

// fsnotify has no close-write; writes and creates stand in for it.
func translateOp(op fsnotify.Op) Op {
	var out Op
	if op&(fsnotify.Write|fsnotify.Create) != 0 {
		out |= OpCloseWrite
	}
	if op&fsnotify.Create != 0 {
		out |= OpMovedTo
	}
	if op&fsnotify.Remove != 0 {
		out |= OpDelete
	}
	if op&fsnotify.Rename != 0 {
		out |= OpMovedFrom
	}
	if out == 0 {
		out = OpOther
	}
	return out
}
