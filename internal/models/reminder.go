package models

import "time"

const (
	ReminderScheduled = "scheduled"
	ReminderSent      = "sent"
	ReminderFailed    = "failed"
	ReminderCancelled = "cancelled"
)

// Reminder is a scheduled notice for a booking, fired once.
type Reminder struct {
	ID        int64      `json:"id"`
	BookingID int64      `json:"booking_id"`
	UserID    int64      `json:"user_id"`
	FireAt    time.Time  `json:"fire_at"`
	Message   string     `json:"message"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError *string    `json:"last_error,omitempty"`
	NextTryAt *time.Time `json:"next_try_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
