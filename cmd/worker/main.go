package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Boitumelo14/busbooking/config"
	"github.com/Boitumelo14/busbooking/internal/cache"
	"github.com/Boitumelo14/busbooking/internal/email"
	"github.com/Boitumelo14/busbooking/internal/kafka"
	"github.com/Boitumelo14/busbooking/internal/payment"
	"github.com/Boitumelo14/busbooking/internal/pricing"
	"github.com/Boitumelo14/busbooking/internal/repository"
	"github.com/Boitumelo14/busbooking/internal/service/reservation"
	"github.com/Boitumelo14/busbooking/internal/ticket"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// The worker runs the expiry sweeper and consumes notification events to send
// booking emails and render e-tickets for confirmed bookings.
func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.SnapshotCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	verifier := payment.NewGatewayVerifier(cfg.Payment.GatewayURL, time.Duration(cfg.Payment.VerifyTimeoutSeconds)*time.Second)
	pricer := pricing.NewCalculator(pricing.TableFromConfig(cfg.Pricing))

	inventoryRepo := repository.NewInventoryRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	reservationService := reservation.NewService(
		reservationRepo,
		inventoryRepo,
		redisCache,
		producer,
		verifier,
		pricer,
		logger,
		cfg.Kafka.ReservationTopic,
		time.Duration(cfg.Booking.HoldTTLMinutes)*time.Minute,
		reservation.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		reservation.WithAlertsTopic(cfg.Kafka.AlertsTopic),
		reservation.WithSweepBatchSize(cfg.Worker.SweepBatchSize),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender(logger)
	renderer := ticket.NewRenderer()

	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.ReservationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				logger.Warn("decode event error", zap.Error(err))
				return nil
			}
			if err := emailSender.Send(ctx, event); err != nil {
				return err
			}
			if event.Type == "booking_confirmed" {
				if err := writeTicket(ctx, cfg.Worker.TicketDir, inventoryRepo, reservationRepo, renderer, event, logger); err != nil {
					logger.Error("render e-ticket", zap.String("hold_id", event.HoldID), zap.Error(err))
				}
			}
			return nil
		})
		if err != nil {
			logger.Warn("consumer stopped", zap.Error(err))
		}
	}()

	sweepInterval := time.Duration(cfg.Worker.ExpirySweepSeconds) * time.Second
	if sweepInterval == 0 {
		sweepInterval = 45 * time.Second
	}
	expireTicker := time.NewTicker(sweepInterval)
	defer expireTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expireTicker.C:
			expired, err := reservationService.ExpireOverdueHolds(ctx)
			if err != nil {
				logger.Error("expire holds error", zap.Error(err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("expired holds", zap.Int("count", len(expired)))
			}
		case s := <-sig:
			logger.Info("received signal, shutting down", zap.String("signal", s.String()))
			return
		}
	}
}

func writeTicket(ctx context.Context, dir string, inventory repository.InventoryRepository, reservations repository.ReservationRepository, renderer *ticket.Renderer, event kafka.ReservationEvent, logger *zap.Logger) error {
	res, err := reservations.GetByHoldID(ctx, event.HoldID)
	if err != nil {
		return err
	}
	trip, err := inventory.GetTrip(ctx, res.TripID)
	if err != nil {
		return err
	}

	pdf, err := renderer.Render(trip, res)
	if err != nil {
		return err
	}

	if dir == "" {
		dir = "tickets"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, res.HoldID+".pdf")
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return err
	}
	logger.Info("e-ticket rendered", zap.String("hold_id", res.HoldID), zap.String("path", path))
	return nil
}
