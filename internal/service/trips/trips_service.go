package trips

import (
	"context"
	"errors"
	"time"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/Boitumelo14/busbooking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TripUseCase interface {
	Create(ctx context.Context, input CreateTripInput) (*domain.Trip, error)
	List(ctx context.Context) ([]domain.Trip, error)
	Get(ctx context.Context, tripID string) (*domain.Trip, error)
	Inventory(ctx context.Context, tripID string) (*InventorySnapshot, error)
}

// SnapshotCache holds short-lived seat-state views for display. Snapshots are
// eventually consistent; a hold re-validates against the live inventory.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, tripID string) (map[string]domain.SeatState, int64, bool, error)
	SetSnapshot(ctx context.Context, tripID string, states map[string]domain.SeatState, version int64) error
}

type CreateTripInput struct {
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	FareCents     int64     `json:"fare_cents"`
	Capacity      int       `json:"capacity"`
}

// InventorySnapshot is the read-only seat view exposed to the seat-map UI.
type InventorySnapshot struct {
	TripID     string                      `json:"trip_id"`
	SeatStates map[string]domain.SeatState `json:"seat_states"`
	Version    int64                       `json:"version"`
	Available  int                         `json:"available"`
	Held       int                         `json:"held"`
	Confirmed  int                         `json:"confirmed"`
}

type TripService struct {
	repo   repository.InventoryRepository
	cache  SnapshotCache
	logger *zap.Logger
}

func NewTripService(repo repository.InventoryRepository, cache SnapshotCache, logger *zap.Logger) *TripService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TripService{repo: repo, cache: cache, logger: logger}
}

// Create schedules a trip from a fresh seat map: every seat starts available
// and the inventory version starts at 1.
func (s *TripService) Create(ctx context.Context, input CreateTripInput) (*domain.Trip, error) {
	if input.Origin == "" || input.Destination == "" {
		return nil, errors.New("origin and destination are required")
	}
	if input.FareCents <= 0 {
		return nil, errors.New("fare must be positive")
	}
	if input.DepartureTime.Before(time.Now()) {
		return nil, errors.New("departure time must be in the future")
	}

	seatMap, err := domain.NewSeatMap(uuid.NewString(), input.Capacity)
	if err != nil {
		return nil, err
	}

	states := make(map[string]domain.SeatState, seatMap.Capacity)
	for _, seat := range seatMap.Layout {
		states[seat] = domain.SeatAvailable
	}

	trip := &domain.Trip{
		ID:            uuid.NewString(),
		Origin:        input.Origin,
		Destination:   input.Destination,
		DepartureTime: input.DepartureTime,
		FareCents:     input.FareCents,
		Capacity:      seatMap.Capacity,
		SeatLabels:    seatMap.Layout,
		SeatStates:    states,
		Version:       1,
	}

	if err := s.repo.CreateTrip(ctx, trip); err != nil {
		return nil, err
	}

	s.logger.Info("trip scheduled",
		zap.String("trip_id", trip.ID),
		zap.String("origin", trip.Origin),
		zap.String("destination", trip.Destination),
		zap.Int("capacity", trip.Capacity),
	)
	return trip, nil
}

func (s *TripService) List(ctx context.Context) ([]domain.Trip, error) {
	return s.repo.ListTrips(ctx)
}

func (s *TripService) Get(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.repo.GetTrip(ctx, tripID)
}

func (s *TripService) Inventory(ctx context.Context, tripID string) (*InventorySnapshot, error) {
	if s.cache != nil {
		if states, version, ok, err := s.cache.GetSnapshot(ctx, tripID); err == nil && ok {
			return buildSnapshot(tripID, states, version), nil
		}
	}

	states, version, err := s.repo.Snapshot(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, tripID, states, version); err != nil {
			s.logger.Warn("failed to cache inventory snapshot", zap.String("trip_id", tripID), zap.Error(err))
		}
	}
	return buildSnapshot(tripID, states, version), nil
}

func buildSnapshot(tripID string, states map[string]domain.SeatState, version int64) *InventorySnapshot {
	snap := &InventorySnapshot{TripID: tripID, SeatStates: states, Version: version}
	for _, state := range states {
		switch state {
		case domain.SeatAvailable:
			snap.Available++
		case domain.SeatHeld:
			snap.Held++
		case domain.SeatConfirmed:
			snap.Confirmed++
		}
	}
	return snap
}

var _ TripUseCase = (*TripService)(nil)
