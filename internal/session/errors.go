package session

import "errors"

var (
	// ErrMachineUnavailable means the requested machine is not online. The
	// caller is told so and must not retry blindly.
	ErrMachineUnavailable = errors.New("machine unavailable")

	// ErrSessionConflict means a concurrent or duplicate transition attempt
	// was rejected. Duplicate activations land here and are treated as
	// already-handled by the payment confirmation flow.
	ErrSessionConflict = errors.New("session conflict")
)
