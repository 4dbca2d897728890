// Package fswatch wraps the platform's file-change notification facility
// behind a small poll-based interface.
//
// A Watcher hands out integer handles per watched path and delivers events in
// batches from Poll, which never blocks longer than the requested timeout.
// Linux uses inotify directly; other platforms go through fsnotify.
package fswatch

import (
	"path/filepath"
	"strings"
	"time"
)

// Handle identifies one watched path.
type Handle int

// Op is a portable bit set describing what happened.
type Op uint32

const (
	// OpCloseWrite reports a file opened for writing was closed.
	OpCloseWrite Op = 1 << iota
	// OpDelete reports an entry was removed from a watched directory.
	OpDelete
	// OpMovedFrom reports an entry was moved out of a watched directory.
	OpMovedFrom
	// OpMovedTo reports an entry was moved into a watched directory.
	OpMovedTo
	// OpMoveSelf reports the watched path itself was moved.
	OpMoveSelf
	// OpDeleteSelf reports the watched path itself was deleted.
	OpDeleteSelf
	// OpIgnored reports the backend dropped the watch; the handle is no longer valid.
	OpIgnored
	// OpOverflow reports events were lost; Handle is -1.
	OpOverflow
	// OpOther covers every remaining notification (open, access, attrib, ...).
	OpOther
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCloseWrite, "CLOSE_WRITE"},
	{OpDelete, "DELETE"},
	{OpMovedFrom, "MOVED_FROM"},
	{OpMovedTo, "MOVED_TO"},
	{OpMoveSelf, "MOVE_SELF"},
	{OpDeleteSelf, "DELETE_SELF"},
	{OpIgnored, "IGNORED"},
	{OpOverflow, "Q_OVERFLOW"},
	{OpOther, "OTHER"},
}

// Has reports whether every bit of other is set in o.
func (o Op) Has(other Op) bool { return o&other == other }

func (o Op) String() string {
	if o == 0 {
		return "NONE"
	}
	var parts []string
	for _, entry := range opNames {
		if o.Has(entry.op) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

// Event is a single notification for a watched path.
type Event struct {
	Handle Handle
	// Path is the watched path the handle was created for.
	Path string
	// Name is the entry inside a watched directory, empty for file watches.
	Name string
	// Mask is the backend's raw mask.
	Mask uint32
	Op   Op
}

// FullPath joins the watched path with the entry name when one is present.
func (e Event) FullPath() string {
	if e.Name == "" {
		return e.Path
	}
	return filepath.Join(e.Path, e.Name)
}

// Watcher is the capability the supervisor needs from the platform.
type Watcher interface {
	// Watch subscribes to path. Watching the same path twice returns the
	// existing handle.
	Watch(path string) (Handle, error)
	// Poll waits at most timeout for events and returns them. A timeout is
	// not an error and yields an empty slice.
	Poll(timeout time.Duration) ([]Event, error)
	// Unwatch releases the subscription for h.
	Unwatch(h Handle) error
	// Close releases every subscription and the backend itself.
	Close() error
}

// New returns the platform's Watcher implementation.
func New() (Watcher, error) {
	return newBackend()
}
