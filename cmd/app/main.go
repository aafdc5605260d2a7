package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Boitumelo14/busbooking/config"
	"github.com/Boitumelo14/busbooking/internal/bootstrap"
	"github.com/Boitumelo14/busbooking/internal/cache"
	"github.com/Boitumelo14/busbooking/internal/kafka"
	"github.com/Boitumelo14/busbooking/internal/payment"
	"github.com/Boitumelo14/busbooking/internal/pricing"
	"github.com/Boitumelo14/busbooking/internal/repository"
	"github.com/Boitumelo14/busbooking/internal/service/reservation"
	"github.com/Boitumelo14/busbooking/internal/service/trips"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	tripService := trips.NewTripService(inventoryRepo, redisCache, logger)
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
		reservation.WithMaxSeatsPerBooking(cfg.Booking.MaxSeatsPerBooking),
		reservation.WithIdempotencyWindow(time.Duration(cfg.Booking.IdempotencyWindowSeconds)*time.Second),
		reservation.WithVerifyTimeout(time.Duration(cfg.Payment.VerifyTimeoutSeconds)*time.Second),
		reservation.WithConflictRetries(cfg.Booking.ConflictRetries),
	)

	if err := bootstrap.Run(ctx, cfg, tripService, reservationService, redisCache, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
