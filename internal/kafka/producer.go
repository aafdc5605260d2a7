package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReservationEvent is the payload published for every reservation lifecycle
// transition (hold_created, booking_confirmed, hold_released, hold_expired,
// refund_requested, trip_halted).
type ReservationEvent struct {
	Type         string    `json:"type"`
	HoldID       string    `json:"hold_id"`
	TripID       string    `json:"trip_id"`
	SeatIDs      []string  `json:"seat_ids"`
	CustomerRef  string    `json:"customer_ref"`
	State        string    `json:"state"`
	TotalCents   int64     `json:"total_cents"`
	HoldDeadline time.Time `json:"hold_deadline"`
	Reason       string    `json:"reason,omitempty"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
