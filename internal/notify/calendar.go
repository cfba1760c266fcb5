package notify

import (
	"fmt"
	"strconv"
	"time"

	"agenda/internal/config"
	"agenda/internal/models"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// EventUID is stable per booking so that re-downloads update the same event.
func EventUID(bookingID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("agenda:booking:"+strconv.FormatInt(bookingID, 10))).String()
}

// CalendarEvent renders the booking as a single-event iCalendar document.
func CalendarEvent(b *models.Booking, cfg config.CalendarConfig, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	clock, err := time.Parse("15:04", b.Time)
	if err != nil {
		return nil, fmt.Errorf("invalid slot %q: %w", b.Time, err)
	}
	duration := cfg.DurationMinutes
	if duration <= 0 {
		duration = models.DefaultEventDuration
	}
	summary := cfg.Summary
	if summary == "" {
		summary = "Appointment"
	}

	y, m, d := b.Date.Date()
	start := time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc)
	end := start.Add(time.Duration(duration) * time.Minute)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	if cfg.ProductID != "" {
		cal.SetProductId(cfg.ProductID)
	}

	stamp := b.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	event := cal.AddEvent(EventUID(b.ID))
	event.SetDtStampTime(stamp.UTC())
	event.SetStartAt(start)
	event.SetEndAt(end)
	event.SetSummary(summary)
	if cfg.Location != "" {
		event.SetLocation(cfg.Location)
	}
	if b.Status == models.StatusCancelled {
		event.SetProperty(ical.ComponentPropertyStatus, "CANCELLED")
	}

	return []byte(cal.Serialize()), nil
}
