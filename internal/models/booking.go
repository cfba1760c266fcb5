package models

import "time"

const (
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

const (
	CancelledByClient   = "client"
	CancelledByProvider = "provider"
)

const (
	ServiceTypeInPerson = "in_person"
	VisitReasonDefault  = "unspecified"
)

// Booking is one client's reservation of one slot on one date.
type Booking struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	Date               time.Time  `json:"date"`
	Time               string     `json:"time"`
	Status             string     `json:"status"`   // pending, cancelled
	Attended           bool       `json:"attended"` // set by the provider only
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	ServiceType        string     `json:"service_type"`
	VisitReason        string     `json:"visit_reason"`
	CreatedAt          time.Time  `json:"created_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	Version            int64      `json:"version"`
}

// NewBooking returns a pending, unattended booking for the slot.
func NewBooking(userID int64, date time.Time, slot string) *Booking {
	return &Booking{
		UserID:      userID,
		Date:        DateOf(date),
		Time:        slot,
		Status:      StatusPending,
		ServiceType: ServiceTypeInPerson,
		VisitReason: VisitReasonDefault,
	}
}

// Occupies reports whether the booking takes its slot out of the bookable set.
func (b *Booking) Occupies() bool {
	return b.Status != StatusCancelled
}

// Before orders bookings by (date, time).
func (b *Booking) Before(other *Booking) bool {
	if !b.Date.Equal(other.Date) {
		return b.Date.Before(other.Date)
	}
	return b.Time < other.Time
}
