package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InventoryRepository interface {
	CreateTrip(ctx context.Context, trip *domain.Trip) error
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	ListTrips(ctx context.Context) ([]domain.Trip, error)
	Snapshot(ctx context.Context, tripID string) (map[string]domain.SeatState, int64, error)
}

type PGInventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) InventoryRepository {
	return &PGInventoryRepository{db: db}
}

func (r *PGInventoryRepository) CreateTrip(ctx context.Context, trip *domain.Trip) error {
	labelsRaw, err := json.Marshal(trip.SeatLabels)
	if err != nil {
		return fmt.Errorf("marshal seat labels: %w", err)
	}
	statesRaw, err := json.Marshal(trip.SeatStates)
	if err != nil {
		return fmt.Errorf("marshal seat states: %w", err)
	}

	return r.db.QueryRow(ctx, `INSERT INTO trip_inventory (trip_id, origin, destination, departure_time, fare_cents, capacity, seat_labels, seat_states, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		trip.ID, trip.Origin, trip.Destination, trip.DepartureTime, trip.FareCents, trip.Capacity, labelsRaw, statesRaw, trip.Version).
		Scan(&trip.CreatedAt, &trip.UpdatedAt)
}

func (r *PGInventoryRepository) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	row := r.db.QueryRow(ctx, `SELECT trip_id, origin, destination, departure_time, fare_cents, capacity, seat_labels, seat_states, version, created_at, updated_at FROM trip_inventory WHERE trip_id=$1`, tripID)
	trip, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTripNotFound
		}
		return nil, err
	}
	return trip, nil
}

func (r *PGInventoryRepository) ListTrips(ctx context.Context) ([]domain.Trip, error) {
	rows, err := r.db.Query(ctx, `SELECT trip_id, origin, destination, departure_time, fare_cents, capacity, seat_labels, seat_states, version, created_at, updated_at FROM trip_inventory ORDER BY departure_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]domain.Trip, 0)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *trip)
	}
	return trips, rows.Err()
}

// Snapshot reads the seat states without any locking. The result is an
// eventually-consistent view for display; callers must not treat it as a
// promise of availability at hold time.
func (r *PGInventoryRepository) Snapshot(ctx context.Context, tripID string) (map[string]domain.SeatState, int64, error) {
	var statesRaw []byte
	var version int64
	err := r.db.QueryRow(ctx, `SELECT seat_states, version FROM trip_inventory WHERE trip_id=$1`, tripID).Scan(&statesRaw, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, domain.ErrTripNotFound
		}
		return nil, 0, err
	}

	var states map[string]domain.SeatState
	if err := json.Unmarshal(statesRaw, &states); err != nil {
		return nil, 0, fmt.Errorf("unmarshal seat states: %w", err)
	}
	return states, version, nil
}

func scanTrip(row pgx.Row) (*domain.Trip, error) {
	var t domain.Trip
	var labelsRaw, statesRaw []byte
	if err := row.Scan(&t.ID, &t.Origin, &t.Destination, &t.DepartureTime, &t.FareCents, &t.Capacity, &labelsRaw, &statesRaw, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(labelsRaw, &t.SeatLabels); err != nil {
		return nil, fmt.Errorf("unmarshal seat labels: %w", err)
	}
	if err := json.Unmarshal(statesRaw, &t.SeatStates); err != nil {
		return nil, fmt.Errorf("unmarshal seat states: %w", err)
	}
	return &t, nil
}

var _ InventoryRepository = (*PGInventoryRepository)(nil)
