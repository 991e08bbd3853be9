package cosmopolite

import (
	"errors"
	"fmt"
)

// ErrShutdown fails every command still queued, and every pending
// GetProfile waiter, when Shutdown stops the worker. Promises returned by
// API calls made after Shutdown has completed are not failed with it.
var ErrShutdown = errors.New("cosmopolite: client is shut down")

// ErrNoSubjects is returned by Subscribe when called with an empty subject list.
var ErrNoSubjects = errors.New("cosmopolite: subscribe requires at least one subject")

// MalformedEnvelopeError reports that a server response failed shape
// validation (spec.md §4.3): missing top-level keys, a non-array
// responses field, or a responses length mismatched against the number of
// commands sent. The worker treats it identically to a transport failure.
type MalformedEnvelopeError struct {
	Reason string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("cosmopolite: malformed envelope: %s", e.Reason)
}

// CommandFailedError wraps a server-advised non-ok, non-retry result for a
// single command (spec.md §7, "server-advised failure").
type CommandFailedError struct {
	Command string
	Result  string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("cosmopolite: %s failed: result=%q", e.Command, e.Result)
}
