//go:build linux

package fswatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// watchMask is the set of inotify signals requested for every path.
const watchMask = unix.IN_ALL_EVENTS |
	unix.IN_CLOSE_WRITE | unix.IN_DELETE |
	unix.IN_MOVE_SELF | unix.IN_MOVED_TO | unix.IN_MOVED_FROM

type inotifyWatcher struct {
	mu     sync.Mutex
	fd     int
	paths  map[Handle]string
	byPath map[string]Handle
	buf    []byte
	closed bool
}

func newBackend() (Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	return &inotifyWatcher{
		fd:     fd,
		paths:  make(map[Handle]string),
		byPath: make(map[string]Handle),
		buf:    make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1)),
	}, nil
}

func (w *inotifyWatcher) Watch(path string) (Handle, error) {
	clean := filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errClosed
	}
	if h, ok := w.byPath[clean]; ok {
		return h, nil
	}
	wd, err := unix.InotifyAddWatch(w.fd, clean, watchMask)
	if err != nil {
		return 0, fmt.Errorf("inotify add watch %s: %w", clean, err)
	}
	h := Handle(wd)
	// the kernel reuses a descriptor when another path resolves to the same inode
	if prev, ok := w.paths[h]; ok && prev != clean {
		delete(w.byPath, prev)
	}
	w.paths[h] = clean
	w.byPath[clean] = h
	return h, nil
}

func (w *inotifyWatcher) Unwatch(h Handle) error {
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
	if _, err := unix.InotifyRmWatch(w.fd, uint32(h)); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("inotify rm watch %s: %w", path, err)
	}
	return nil
}

func (w *inotifyWatcher) Poll(timeout time.Duration) ([]Event, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, errClosed
	}
	fd := w.fd
	w.mu.Unlock()

	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("inotify poll: %w", err)
	}
	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errClosed
	}
	read, err := unix.Read(w.fd, w.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("inotify read: %w", err)
	}
	return w.parse(w.buf[:read]), nil
}

func (w *inotifyWatcher) parse(data []byte) []Event {
	var events []Event
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(data) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&data[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		nameEnd := nameStart + int(raw.Len)
		if nameEnd > len(data) {
			break
		}
		name := trimNul(data[nameStart:nameEnd])
		offset = nameEnd

		h := Handle(raw.Wd)
		op := translateMask(raw.Mask)
		ev := Event{Handle: h, Name: name, Mask: raw.Mask, Op: op}
		if op.Has(OpOverflow) {
			ev.Handle = -1
			events = append(events, ev)
			continue
		}
		path, ok := w.paths[h]
		if !ok {
			continue
		}
		ev.Path = path
		if op.Has(OpIgnored) {
			delete(w.paths, h)
			delete(w.byPath, path)
		}
		events = append(events, ev)
	}
	return events
}

func (w *inotifyWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	for h, path := range w.paths {
		_, _ = unix.InotifyRmWatch(w.fd, uint32(h))
		delete(w.byPath, path)
		delete(w.paths, h)
	}
	return unix.Close(w.fd)
}

func translateMask(mask uint32) Op {
	var op Op
	if mask&unix.IN_CLOSE_WRITE != 0 {
		op |= OpCloseWrite
	}
	if mask&unix.IN_DELETE != 0 {
		op |= OpDelete
	}
	if mask&unix.IN_MOVED_FROM != 0 {
		op |= OpMovedFrom
	}
	if mask&unix.IN_MOVED_TO != 0 {
		op |= OpMovedTo
	}
	if mask&unix.IN_MOVE_SELF != 0 {
		op |= OpMoveSelf
	}
	if mask&unix.IN_DELETE_SELF != 0 {
		op |= OpDeleteSelf
	}
	if mask&unix.IN_IGNORED != 0 {
		op |= OpIgnored
	}
	if mask&unix.IN_Q_OVERFLOW != 0 {
		op |= OpOverflow
	}
	if op == 0 {
		op = OpOther
	}
	return op
}

func trimNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
