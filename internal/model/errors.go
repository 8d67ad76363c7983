package model

import "errors"

// Sentinel errors shared across the engine. Callers match with errors.Is;
// producers wrap with fmt.Errorf("...: %w", Err...) to add context.
var (
	// ErrInvalidArgument is returned for malformed input: blank message
	// content without an attachment, a message id that does not match the
	// server-assigned format, a conversation with no target.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when an operation references an id absent
	// from local state.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the remote service rejects a creation
	// as a duplicate (e.g. user name collision).
	ErrConflict = errors.New("conflict")

	// ErrDuplicate reports an idempotent no-op: the entity is already
	// present locally. It is a signal, not a failure.
	ErrDuplicate = errors.New("duplicate")

	// ErrTransportUnavailable is returned when an operation needs the
	// session channel but it is disconnected and could not be brought up.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrRemoteFailure wraps non-success responses from the remote service.
	ErrRemoteFailure = errors.New("remote failure")
)
