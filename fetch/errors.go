// Package fetch coordinates deduplicated, priority-aware, cancellable
// retrieval of media resources through the shared asset cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Class partitions fetch failures by how callers should react.
type Class int

const (
	// ClassTransient failures (timeouts, resets, corrupt payloads) are
	// eligible for a single bounded retry by the caller.
	ClassTransient Class = iota
	// ClassTerminal failures (client errors, decode failures) must surface
	// to the user without further automatic action.
	ClassTerminal
	// ClassCancelled is not an error condition: the caller abandoned the
	// request before it resolved.
	ClassCancelled
)

// String returns the lowercase class label.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassTerminal:
		return "terminal"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrCorruptPayload marks a payload that fails media container validation,
// a recognized transient condition worth one retry after cache invalidation.
var ErrCorruptPayload = errors.New("corrupt media payload")

// Error is the typed failure every coordinator caller receives.
type Error struct {
	Key   string
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Key, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf extracts the failure class from an error chain.
// The second return is false when the error is not a fetch failure.
func ClassOf(err error) (Class, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class, true
	}
	return 0, false
}

// IsTransient reports whether the error is a transient fetch failure.
func IsTransient(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassTransient
}

// IsTerminal reports whether the error is a terminal fetch failure.
func IsTerminal(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassTerminal
}

// IsCancelled reports whether the outcome was a cancellation.
func IsCancelled(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassCancelled
}

// classifyStatus maps an HTTP response status onto a failure class:
// client errors are terminal, everything else is worth retrying.
func classifyStatus(status int) Class {
	if status >= 400 && status < 500 {
		return ClassTerminal
	}
	return ClassTransient
}

// classifyErr maps a transport-level failure onto a failure class.
func classifyErr(err error) Class {
	switch {
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, ErrCorruptPayload):
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		// Timeouts and connection-level failures are transient.
		return ClassTransient
	}

	return ClassTransient
}

// statusErr is a tiny helper for non-200 responses.
func statusErr(resp *http.Response) error {
	return fmt.Errorf("unexpected status %s", resp.Status)
}
