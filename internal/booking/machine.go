package booking

import (
	"fmt"
)

// Status is a booking lifecycle state. The zero value is not valid.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusDiproses   Status = "Diproses"
	StatusSelesai    Status = "Selesai"
	StatusDibatalkan Status = "Dibatalkan"
)

// Action is an operator-triggered transition request.
type Action string

const (
	ActionAdvance Action = "advance"
	ActionCancel  Action = "cancel"
)

// IllegalTransitionError reports an action that is not legal for the
// booking's current status. It is raised locally, before any network call.
type IllegalTransitionError struct {
	Status Status
	Action Action
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s from status %s", e.Action, e.Status)
}

// ParseStatus validates a wire status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusDiproses, StatusSelesai, StatusDibatalkan:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusSelesai || s == StatusDibatalkan
}

// LegalActions returns the actions allowed from the given status, in a
// stable order. Terminal statuses return nil.
func LegalActions(s Status) []Action {
	switch s {
	case StatusPending, StatusDiproses:
		return []Action{ActionAdvance, ActionCancel}
	default:
		return nil
	}
}

// Next resolves the status an action leads to. It fails with
// *IllegalTransitionError when the action is not legal for the status.
func Next(s Status, a Action) (Status, error) {
	switch {
	case s == StatusPending && a == ActionAdvance:
		return StatusDiproses, nil
	case s == StatusDiproses && a == ActionAdvance:
		return StatusSelesai, nil
	case (s == StatusPending || s == StatusDiproses) && a == ActionCancel:
		return StatusDibatalkan, nil
	}
	return "", &IllegalTransitionError{Status: s, Action: a}
}
