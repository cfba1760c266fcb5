package service

import (
	"time"

	"agenda/internal/domain"

	"github.com/rs/zerolog"
)

func online(c domain.Connectivity) bool {
	return c == nil || c.Online()
}

func clock(loc *time.Location) func() time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

func publish(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload interface{}) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
