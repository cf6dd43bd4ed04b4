package store

import "fmt"

// TransportError covers network, status, and parse failures. Background
// pollers treat it as "no change this tick"; user-initiated actions surface
// it to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedTransitionError reports a booking update the backend refused even
// though local validation passed. State is left unchanged pending the next
// refresh.
type RejectedTransitionError struct {
	Message string
}

func (e *RejectedTransitionError) Error() string {
	if e.Message == "" {
		return "status update rejected"
	}
	return "status update rejected: " + e.Message
}
