package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrWatchSetup     = errors.New("watch setup error")
	ErrIndexRead      = errors.New("index read error")
	ErrLedgerRead     = errors.New("ledger read error")
	ErrLedgerWrite    = errors.New("ledger write error")
	ErrAuthentication = errors.New("authentication error")
	ErrSubmission     = errors.New("submission error")
	ErrTransport      = errors.New("transport error")
	ErrNotFound       = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must stop the watcher loop. Index and ledger
// failures are fatal; everything a single scan can produce is not.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrIndexRead), errors.Is(err, ErrLedgerRead), errors.Is(err, ErrLedgerWrite):
		return true
	default:
		return false
	}
}

// Kind returns a short label for err suitable for metrics and log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "auth"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrSubmission):
		return "submission"
	case errors.Is(err, ErrIndexRead):
		return "index_read"
	case errors.Is(err, ErrLedgerRead):
		return "ledger_read"
	case errors.Is(err, ErrLedgerWrite):
		return "ledger_write"
	case errors.Is(err, ErrWatchSetup):
		return "watch_setup"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
