package fswatch

import "errors"

var (
	errClosed        = errors.New("watcher closed")
	errUnknownHandle = errors.New("unknown handle")
)

// IsClosed reports whether err came from using a closed Watcher.
func IsClosed(err error) bool { return errors.Is(err, errClosed) }
