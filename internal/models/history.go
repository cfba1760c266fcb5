package models

// HistorySections splits a client's bookings for display. Empty sections are omitted.
type HistorySections struct {
	Upcoming []*Booking `json:"upcoming,omitempty"`
	History  []*Booking `json:"history,omitempty"`
}

func (s *HistorySections) Empty() bool {
	return len(s.Upcoming) == 0 && len(s.History) == 0
}

// PurgeResult reports a bulk history purge. Zero deletions is informational.
type PurgeResult struct {
	Deleted int64  `json:"deleted"`
	Message string `json:"message"`
}

// AgendaEntry is a booking of the provider's day with the client's contacts.
type AgendaEntry struct {
	Booking     *Booking `json:"booking"`
	ClientName  string   `json:"client_name"`
	ClientEmail string   `json:"client_email"`
	ClientPhone string   `json:"client_phone"`
}
