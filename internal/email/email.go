package email

import (
	"context"

	"github.com/Boitumelo14/busbooking/internal/kafka"
	"go.uber.org/zap"
)

// Sender delivers booking notifications. The actual mail transport lives
// outside this service; this implementation only logs the delivery.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.ReservationEvent) error {
	s.logger.Info("sending booking notification",
		zap.String("type", event.Type),
		zap.String("customer_ref", event.CustomerRef),
		zap.String("trip_id", event.TripID),
		zap.Strings("seat_ids", event.SeatIDs),
	)
	return nil
}
