package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"agenda/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the relay uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	})
}

// KafkaRelay forwards every bus event to Kafka, keyed by the aggregate id so that
// events of one booking stay ordered within a partition.
type KafkaRelay struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewKafkaRelay(writer MessageWriter, logger *zerolog.Logger) *KafkaRelay {
	return &KafkaRelay{writer: writer, timeout: 5 * time.Second, logger: logger}
}

// Attach subscribes the relay to every event of the bus.
func (r *KafkaRelay) Attach(bus *EventBus) {
	bus.SubscribeAll(r.Handle)
}

func (r *KafkaRelay) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(aggregateKey(event)),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.logger.Error().Err(err).Str("event", event.Type).Msg("kafka relay failed")
		return fmt.Errorf("failed to relay %s: %w", event.Type, err)
	}
	return nil
}

func (r *KafkaRelay) Close() error {
	return r.writer.Close()
}

func aggregateKey(event *Event) string {
	var ids struct {
		BookingID int64 `json:"booking_id"`
		BlockID   int64 `json:"block_id"`
		UserID    int64 `json:"user_id"`
	}
	_ = json.Unmarshal(event.Payload, &ids)
	switch {
	case ids.BookingID != 0:
		return "booking:" + strconv.FormatInt(ids.BookingID, 10)
	case ids.BlockID != 0:
		return "block:" + strconv.FormatInt(ids.BlockID, 10)
	case ids.UserID != 0:
		return "user:" + strconv.FormatInt(ids.UserID, 10)
	default:
		return event.Type
	}
}
