package booking_models

import (
	"errors"
	"fmt"
)

// Event drives a booking from one status to the next.
type Event string

const (
	EventAccept   Event = "accept"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
	EventStart    Event = "start"
	EventComplete Event = "complete"
)

var ErrInvalidTransition = errors.New("invalid booking transition")

// transitions is the only place booking status changes are defined.
// Statuses without an entry are terminal.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventAccept: StatusAccepted,
		EventReject: StatusRejected,
		EventCancel: StatusCancelled,
	},
	StatusAccepted: {
		EventCancel:   StatusCancelled,
		EventStart:    StatusInProgress,
		EventComplete: StatusCompleted,
	},
	StatusAssigned: {
		EventCancel:   StatusCancelled,
		EventStart:    StatusInProgress,
		EventComplete: StatusCompleted,
	},
	StatusInProgress: {
		EventComplete: StatusCompleted,
	},
}

// Next returns the status reached from `from` on ev.
func Next(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// AllowedFrom lists the statuses from which ev is legal, in a stable order.
func AllowedFrom(ev Event) []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusAccepted, StatusAssigned, StatusInProgress} {
		if _, ok := transitions[s][ev]; ok {
			out = append(out, s)
		}
	}
	return out
}

// CanTransition reports whether ev is legal from s.
func (s Status) CanTransition(ev Event) bool {
	_, ok := transitions[s][ev]
	return ok
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsActive reports whether a professional is working the booking.
func (s Status) IsActive() bool {
	return s == StatusAccepted || s == StatusAssigned || s == StatusInProgress
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// ReschedulableStatuses are the statuses a booking may be rescheduled from.
var ReschedulableStatuses = []Status{StatusPending, StatusAccepted}

// Contains reports whether s is in set.
func Contains(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
