package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of a booking.
type State string

const (
	StateOpen      State = "pending-unattended"
	StateAttended  State = "attended"
	StateCancelled State = "cancelled"
)

// Action is a requested lifecycle change.
type Action string

const (
	ActionClientCancel   Action = "client_cancel"
	ActionProviderCancel Action = "provider_cancel"
	ActionMarkAttended   Action = "mark_attended"
)

// ErrReasonRequired is returned for a provider cancellation without a reason.
var ErrReasonRequired = errors.New("cancellation reason is required")

// TransitionError rejects an action that is not allowed from the booking's state.
type TransitionError struct {
	BookingID int64
	From      State
	Action    Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %d: %s not allowed from state %s", e.BookingID, e.Action, e.From)
}

// Transition describes one requested change.
type Transition struct {
	Action Action
	Reason string    // provider cancellations only
	At     time.Time // stamped into cancelled_at
}

// StateOf derives the lifecycle state from status and attendance.
func StateOf(b *Booking) State {
	switch {
	case b.Status == StatusCancelled:
		return StateCancelled
	case b.Attended:
		return StateAttended
	default:
		return StateOpen
	}
}

// Terminal reports whether no action can leave the state.
func (s State) Terminal() bool {
	return s == StateAttended || s == StateCancelled
}

// ApplyTransition returns the booking after the transition, leaving b untouched.
// Every action is only valid from the open state; attended and cancelled are terminal.
func ApplyTransition(b Booking, t Transition) (Booking, error) {
	from := StateOf(&b)
	if from != StateOpen {
		return b, &TransitionError{BookingID: b.ID, From: from, Action: t.Action}
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	switch t.Action {
	case ActionClientCancel:
		b.Status = StatusCancelled
		b.CancelledBy = CancelledByClient
		b.CancellationReason = ""
		b.CancelledAt = &at
	case ActionProviderCancel:
		reason := strings.TrimSpace(t.Reason)
		if reason == "" {
			return b, ErrReasonRequired
		}
		b.Status = StatusCancelled
		b.CancelledBy = CancelledByProvider
		b.CancellationReason = reason
		b.CancelledAt = &at
		b.Attended = false
	case ActionMarkAttended:
		b.Attended = true
	default:
		return b, fmt.Errorf("unknown booking action %q", t.Action)
	}

	return b, nil
}
