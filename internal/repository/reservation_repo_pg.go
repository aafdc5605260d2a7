package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationRepository owns the atomic hold/confirm/release primitives. Every
// method that changes state runs the inventory compare-and-swap and the ledger
// transition inside one transaction, so the two tables can never diverge
// through this code path.
type ReservationRepository interface {
	HoldSeats(ctx context.Context, res *domain.Reservation) error
	ConfirmHold(ctx context.Context, holdID string, manifest []domain.Passenger, confirmedAt time.Time) (*domain.Reservation, error)
	ReleaseHold(ctx context.Context, holdID string, from, to domain.ReservationState, reason string) (*domain.Reservation, error)
	GetByHoldID(ctx context.Context, holdID string) (*domain.Reservation, error)
	FindActiveHold(ctx context.Context, customerRef, tripID string, seatIDs []string) (*domain.Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

const ledgerColumns = `hold_id, trip_id, seat_ids, customer_ref, state, created_at, hold_deadline, confirmed_at, cancel_reason, price_snapshot, manifest`

// HoldSeats marks the requested seats held and appends the ledger entry. The
// seat-state write is guarded by the inventory version; a concurrent writer
// that commits first makes this fail with ErrVersionConflict, and a seat
// already owned by another entry fails with ErrSeatUnavailable.
func (r *PGReservationRepository) HoldSeats(ctx context.Context, res *domain.Reservation) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	states, version, err := readSeatStates(ctx, tx, res.TripID)
	if err != nil {
		return err
	}

	for _, seat := range res.SeatIDs {
		state, ok := states[seat]
		if !ok {
			return fmt.Errorf("%w: seat %s not in trip %s", domain.ErrInvalidSeatSet, seat, res.TripID)
		}
		if state != domain.SeatAvailable {
			return fmt.Errorf("%w: seat %s", domain.ErrSeatUnavailable, seat)
		}
		states[seat] = domain.SeatHeld
	}

	if err := writeSeatStates(ctx, tx, res.TripID, states, version); err != nil {
		return err
	}

	seatsRaw, err := json.Marshal(res.SeatIDs)
	if err != nil {
		return fmt.Errorf("marshal seat ids: %w", err)
	}
	priceRaw, err := json.Marshal(res.Price)
	if err != nil {
		return fmt.Errorf("marshal price snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO reservation_ledger (hold_id, trip_id, seat_ids, customer_ref, state, created_at, hold_deadline, price_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.HoldID, res.TripID, seatsRaw, res.CustomerRef, res.State, res.CreatedAt, res.HoldDeadline, priceRaw); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return tx.Commit(ctx)
}

// ConfirmHold transitions the ledger entry held -> confirmed and the held
// seats to confirmed in one transaction. The update is guarded by both state
// and deadline, so a hold past hold_deadline cannot be confirmed even before
// the sweeper reaches it. A lost guard fails with ErrStaleTransition; a held
// seat found available in the inventory fails with ErrInventoryDiverged.
func (r *PGReservationRepository) ConfirmHold(ctx context.Context, holdID string, manifest []domain.Passenger, confirmedAt time.Time) (*domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	manifestRaw, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	row := tx.QueryRow(ctx, `UPDATE reservation_ledger SET state=$2, confirmed_at=$3, manifest=$4
		WHERE hold_id=$1 AND state=$5 AND hold_deadline > now()
		RETURNING `+ledgerColumns, holdID, domain.ReservationConfirmed, confirmedAt, manifestRaw, domain.ReservationHeld)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.staleOrMissing(ctx, holdID)
		}
		return nil, err
	}

	if err := r.moveSeats(ctx, tx, res, domain.SeatHeld, domain.SeatConfirmed); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseHold transitions the entry from -> to (released or expired) and
// returns the seats to available. Duplicate attempts lose the guarded ledger
// update and get ErrStaleTransition, which makes sweeps safe to run from
// several instances at once.
func (r *PGReservationRepository) ReleaseHold(ctx context.Context, holdID string, from, to domain.ReservationState, reason string) (*domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE reservation_ledger SET state=$2, cancel_reason=$3
		WHERE hold_id=$1 AND state=$4
		RETURNING `+ledgerColumns, holdID, to, reason, from)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.staleOrMissing(ctx, holdID)
		}
		return nil, err
	}

	fromSeat := domain.SeatHeld
	if from == domain.ReservationConfirmed {
		fromSeat = domain.SeatConfirmed
	}
	if err := r.moveSeats(ctx, tx, res, fromSeat, domain.SeatAvailable); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PGReservationRepository) GetByHoldID(ctx context.Context, holdID string) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM reservation_ledger WHERE hold_id=$1`, holdID)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHoldNotFound
		}
		return nil, err
	}
	return res, nil
}

// FindActiveHold returns the live held entry for the exact same customer,
// trip, and seat set, if one exists. Used as the idempotency fallback when the
// cache has no record of a recent identical hold.
func (r *PGReservationRepository) FindActiveHold(ctx context.Context, customerRef, tripID string, seatIDs []string) (*domain.Reservation, error) {
	seatsRaw, err := json.Marshal(seatIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal seat ids: %w", err)
	}

	row := r.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM reservation_ledger
		WHERE customer_ref=$1 AND trip_id=$2 AND state=$3 AND hold_deadline > now() AND seat_ids=$4
		ORDER BY created_at DESC LIMIT 1`, customerRef, tripID, domain.ReservationHeld, seatsRaw)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (r *PGReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ledgerColumns+` FROM reservation_ledger
		WHERE state=$1 AND hold_deadline <= $2 ORDER BY hold_deadline LIMIT $3`, domain.ReservationHeld, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, *res)
	}
	return overdue, rows.Err()
}

// moveSeats applies a seat-state transition for every seat of the entry under
// the inventory version guard. A seat not in the expected source state means
// the ledger and the inventory disagree.
func (r *PGReservationRepository) moveSeats(ctx context.Context, tx pgx.Tx, res *domain.Reservation, from, to domain.SeatState) error {
	states, version, err := readSeatStates(ctx, tx, res.TripID)
	if err != nil {
		return err
	}

	for _, seat := range res.SeatIDs {
		state, ok := states[seat]
		if !ok || state != from {
			return fmt.Errorf("%w: seat %s of trip %s is %q, expected %q", domain.ErrInventoryDiverged, seat, res.TripID, state, from)
		}
		states[seat] = to
	}

	return writeSeatStates(ctx, tx, res.TripID, states, version)
}

// staleOrMissing decides whether a lost guarded update was a missing entry or
// a transition raced by someone else.
func (r *PGReservationRepository) staleOrMissing(ctx context.Context, holdID string) error {
	var state domain.ReservationState
	err := r.db.QueryRow(ctx, `SELECT state FROM reservation_ledger WHERE hold_id=$1`, holdID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrHoldNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: entry %s is %q", domain.ErrStaleTransition, holdID, state)
}

func readSeatStates(ctx context.Context, tx pgx.Tx, tripID string) (map[string]domain.SeatState, int64, error) {
	var statesRaw []byte
	var version int64
	err := tx.QueryRow(ctx, `SELECT seat_states, version FROM trip_inventory WHERE trip_id=$1`, tripID).Scan(&statesRaw, &version)
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

func writeSeatStates(ctx context.Context, tx pgx.Tx, tripID string, states map[string]domain.SeatState, expectedVersion int64) error {
	raw, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal seat states: %w", err)
	}

	cmd, err := tx.Exec(ctx, `UPDATE trip_inventory SET seat_states=$2, version=version+1, updated_at=now()
		WHERE trip_id=$1 AND version=$3`, tripID, raw, expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	var seatsRaw, priceRaw []byte
	var manifestRaw []byte
	var confirmedAt *time.Time
	var cancelReason *string
	if err := row.Scan(&res.HoldID, &res.TripID, &seatsRaw, &res.CustomerRef, &res.State, &res.CreatedAt, &res.HoldDeadline, &confirmedAt, &cancelReason, &priceRaw, &manifestRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(seatsRaw, &res.SeatIDs); err != nil {
		return nil, fmt.Errorf("unmarshal seat ids: %w", err)
	}
	if err := json.Unmarshal(priceRaw, &res.Price); err != nil {
		return nil, fmt.Errorf("unmarshal price snapshot: %w", err)
	}
	if len(manifestRaw) > 0 {
		if err := json.Unmarshal(manifestRaw, &res.Manifest); err != nil {
			return nil, fmt.Errorf("unmarshal manifest: %w", err)
		}
	}
	res.ConfirmedAt = confirmedAt
	if cancelReason != nil {
		res.CancelReason = *cancelReason
	}
	return &res, nil
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
