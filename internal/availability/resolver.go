// Package availability computes the bookable slots of a calendar date.
package availability

import (
	"fmt"
	"regexp"
	"time"

	"agenda/internal/models"
)

var slotLabel = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ResolveAvailableSlots returns the template slots still bookable on date.
//
// A full day block empties the day. Otherwise slots taken by non-cancelled
// bookings or single slot blocks are removed, keeping template order. When date
// is the calendar date of now, labels at or before now (HH:MM) are dropped too.
// Past dates are not filtered by time of day.
func ResolveAvailableSlots(
	template []string,
	date time.Time,
	bookings []*models.Booking,
	blocks []*models.Block,
	now time.Time,
) []string {
	for _, bl := range blocks {
		if bl.Type == models.BlockFullDay {
			return []string{}
		}
	}

	occupied := make(map[string]struct{}, len(bookings)+len(blocks))
	for _, b := range bookings {
		if b.Occupies() {
			occupied[b.Time] = struct{}{}
		}
	}
	for _, bl := range blocks {
		if bl.Type == models.BlockSingleSlot {
			occupied[bl.Time] = struct{}{}
		}
	}

	today := models.SameDate(date, now)
	cutoff := models.ClockLabel(now)

	free := make([]string, 0, len(template))
	for _, slot := range template {
		if _, taken := occupied[slot]; taken {
			continue
		}
		// Labels are zero-padded HH:MM, so string order is clock order.
		if today && slot <= cutoff {
			continue
		}
		free = append(free, slot)
	}
	return free
}

// IsBookable reports whether slot is in the resolver output for date.
func IsBookable(
	template []string,
	date time.Time,
	slot string,
	bookings []*models.Booking,
	blocks []*models.Block,
	now time.Time,
) bool {
	for _, s := range ResolveAvailableSlots(template, date, bookings, blocks, now) {
		if s == slot {
			return true
		}
	}
	return false
}

// InTemplate reports whether slot is one of the template labels.
func InTemplate(template []string, slot string) bool {
	for _, s := range template {
		if s == slot {
			return true
		}
	}
	return false
}

// ValidateTemplate checks that labels are zero-padded HH:MM and strictly increasing.
func ValidateTemplate(template []string) error {
	if len(template) == 0 {
		return fmt.Errorf("slot template is empty")
	}
	for i, slot := range template {
		if !slotLabel.MatchString(slot) {
			return fmt.Errorf("slot %q: expected zero-padded HH:MM", slot)
		}
		if i > 0 && slot <= template[i-1] {
			return fmt.Errorf("slot %q: template must be strictly increasing", slot)
		}
	}
	return nil
}
