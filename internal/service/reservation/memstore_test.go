package reservation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/Boitumelo14/busbooking/internal/payment"
	"github.com/Boitumelo14/busbooking/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore backs the engine with an in-memory inventory and ledger that keep
// the same transition guarantees as the SQL implementation: seat moves and
// ledger transitions happen atomically, versions advance on every write, and
// lost guarded transitions surface as ErrStaleTransition.
type memStore struct {
	mu     sync.Mutex
	trips  map[string]*domain.Trip
	ledger map[string]*domain.Reservation
}

func newMemStore() *memStore {
	return &memStore{
		trips:  make(map[string]*domain.Trip),
		ledger: make(map[string]*domain.Reservation),
	}
}

func cloneReservation(res *domain.Reservation) *domain.Reservation {
	out := *res
	out.SeatIDs = append([]string(nil), res.SeatIDs...)
	out.Manifest = append([]domain.Passenger(nil), res.Manifest...)
	return &out
}

func cloneTrip(trip *domain.Trip) *domain.Trip {
	out := *trip
	out.SeatLabels = append([]string(nil), trip.SeatLabels...)
	out.SeatStates = make(map[string]domain.SeatState, len(trip.SeatStates))
	for seat, state := range trip.SeatStates {
		out.SeatStates[seat] = state
	}
	return &out
}

func (s *memStore) CreateTrip(_ context.Context, trip *domain.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (s *memStore) GetTrip(_ context.Context, tripID string) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return nil, domain.ErrTripNotFound
	}
	return cloneTrip(trip), nil
}

func (s *memStore) ListTrips(_ context.Context) ([]domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trips := make([]domain.Trip, 0, len(s.trips))
	for _, trip := range s.trips {
		trips = append(trips, *cloneTrip(trip))
	}
	return trips, nil
}

func (s *memStore) Snapshot(_ context.Context, tripID string) (map[string]domain.SeatState, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return nil, 0, domain.ErrTripNotFound
	}
	states := make(map[string]domain.SeatState, len(trip.SeatStates))
	for seat, state := range trip.SeatStates {
		states[seat] = state
	}
	return states, trip.Version, nil
}

func (s *memStore) HoldSeats(_ context.Context, res *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[res.TripID]
	if !ok {
		return domain.ErrTripNotFound
	}
	for _, seat := range res.SeatIDs {
		state, ok := trip.SeatStates[seat]
		if !ok {
			return fmt.Errorf("%w: seat %s", domain.ErrInvalidSeatSet, seat)
		}
		if state != domain.SeatAvailable {
			return fmt.Errorf("%w: seat %s", domain.ErrSeatUnavailable, seat)
		}
	}
	for _, seat := range res.SeatIDs {
		trip.SeatStates[seat] = domain.SeatHeld
	}
	trip.Version++
	s.ledger[res.HoldID] = cloneReservation(res)
	return nil
}

func (s *memStore) ConfirmHold(_ context.Context, holdID string, manifest []domain.Passenger, confirmedAt time.Time) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.ledger[holdID]
	if !ok {
		return nil, domain.ErrHoldNotFound
	}
	if res.State != domain.ReservationHeld || res.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: entry %s is %q", domain.ErrStaleTransition, holdID, res.State)
	}
	trip := s.trips[res.TripID]
	for _, seat := range res.SeatIDs {
		if trip.SeatStates[seat] != domain.SeatHeld {
			return nil, fmt.Errorf("%w: seat %s", domain.ErrInventoryDiverged, seat)
		}
	}
	for _, seat := range res.SeatIDs {
		trip.SeatStates[seat] = domain.SeatConfirmed
	}
	trip.Version++
	res.State = domain.ReservationConfirmed
	res.ConfirmedAt = &confirmedAt
	res.Manifest = append([]domain.Passenger(nil), manifest...)
	return cloneReservation(res), nil
}

func (s *memStore) ReleaseHold(_ context.Context, holdID string, from, to domain.ReservationState, reason string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.ledger[holdID]
	if !ok {
		return nil, domain.ErrHoldNotFound
	}
	if res.State != from {
		return nil, fmt.Errorf("%w: entry %s is %q", domain.ErrStaleTransition, holdID, res.State)
	}
	fromSeat := domain.SeatHeld
	if from == domain.ReservationConfirmed {
		fromSeat = domain.SeatConfirmed
	}
	trip := s.trips[res.TripID]
	for _, seat := range res.SeatIDs {
		if trip.SeatStates[seat] != fromSeat {
			return nil, fmt.Errorf("%w: seat %s", domain.ErrInventoryDiverged, seat)
		}
	}
	for _, seat := range res.SeatIDs {
		trip.SeatStates[seat] = domain.SeatAvailable
	}
	trip.Version++
	res.State = to
	res.CancelReason = reason
	return cloneReservation(res), nil
}

func (s *memStore) GetByHoldID(_ context.Context, holdID string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.ledger[holdID]
	if !ok {
		return nil, domain.ErrHoldNotFound
	}
	return cloneReservation(res), nil
}

func (s *memStore) FindActiveHold(_ context.Context, customerRef, tripID string, seatIDs []string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range s.ledger {
		if res.CustomerRef != customerRef || res.TripID != tripID || res.State != domain.ReservationHeld {
			continue
		}
		if res.Expired(time.Now()) || len(res.SeatIDs) != len(seatIDs) {
			continue
		}
		match := true
		for i := range seatIDs {
			if res.SeatIDs[i] != seatIDs[i] {
				match = false
				break
			}
		}
		if match {
			return cloneReservation(res), nil
		}
	}
	return nil, nil
}

func (s *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var overdue []domain.Reservation
	for _, res := range s.ledger {
		if res.State == domain.ReservationHeld && !res.HoldDeadline.After(now) {
			overdue = append(overdue, *cloneReservation(res))
			if len(overdue) == limit {
				break
			}
		}
	}
	return overdue, nil
}

// echoVerifier accepts every proof at its claimed amount, which lets tests
// drive the amount check from the proof alone.
type echoVerifier struct{}

func (echoVerifier) Verify(_ context.Context, proof payment.Proof) (payment.Result, error) {
	return payment.Result{Accepted: true, AmountCents: proof.AmountCents, Reference: proof.Reference}, nil
}

func newMemService(store *memStore, holdTTL time.Duration) *Service {
	return NewService(store, store, nil, nil, echoVerifier{}, pricing.NewCalculator(pricing.DefaultTable()), nil, "", holdTTL)
}

func seedTrip(t *testing.T, store *memStore, capacity int) *domain.Trip {
	t.Helper()
	labels := domain.GenerateLayout(capacity)
	states := make(map[string]domain.SeatState, capacity)
	for _, seat := range labels {
		states[seat] = domain.SeatAvailable
	}
	trip := &domain.Trip{
		ID:            "trip-mem",
		Origin:        "Gaborone",
		Destination:   "Francistown",
		DepartureTime: time.Now().Add(12 * time.Hour),
		FareCents:     15000,
		Capacity:      capacity,
		SeatLabels:    labels,
		SeatStates:    states,
		Version:       1,
	}
	require.NoError(t, store.CreateTrip(context.Background(), trip))
	return trip
}

func TestEngine_ContestedLastSeatHasOneWinner(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	seedTrip(t, store, 4)
	ctx := context.Background()

	const contenders = 8
	results := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.Hold(ctx, HoldInput{
				TripID:      "trip-mem",
				SeatIDs:     []string{"1A"},
				CustomerRef: fmt.Sprintf("cust-%d", i),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrSeatUnavailable)
		}
	}
	assert.Equal(t, 1, winners, "exactly one contender wins the seat")

	states, _, err := store.Snapshot(ctx, "trip-mem")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatHeld, states["1A"])
}

func TestEngine_NoOversellUnderConcurrentHolds(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	trip := seedTrip(t, store, 8)
	ctx := context.Background()

	// Thirty customers race for pairs drawn from eight seats; the engine must
	// never grant a seat to two live reservations.
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			first := trip.SeatLabels[(2*i)%8]
			second := trip.SeatLabels[(2*i+1)%8]
			_, _ = service.Hold(ctx, HoldInput{
				TripID:      "trip-mem",
				SeatIDs:     []string{first, second},
				CustomerRef: fmt.Sprintf("cust-%d", i),
			})
		}(i)
	}
	wg.Wait()

	states, _, err := store.Snapshot(ctx, "trip-mem")
	require.NoError(t, err)

	owners := make(map[string]int)
	store.mu.Lock()
	for _, res := range store.ledger {
		if res.State != domain.ReservationHeld {
			continue
		}
		for _, seat := range res.SeatIDs {
			owners[seat]++
		}
	}
	store.mu.Unlock()

	for seat, count := range owners {
		assert.Equal(t, 1, count, "seat %s owned by more than one live hold", seat)
		assert.Equal(t, domain.SeatHeld, states[seat])
	}
	held := 0
	for _, state := range states {
		if state == domain.SeatHeld {
			held++
		}
	}
	assert.Equal(t, len(owners), held, "every held seat belongs to exactly one ledger entry")
}

func TestEngine_CancelRestoresSeatCapacity(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	seedTrip(t, store, 8)
	ctx := context.Background()

	first, err := service.Hold(ctx, HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"1A", "1B"},
		CustomerRef: "cust-1",
	})
	require.NoError(t, err)

	second, err := service.Hold(ctx, HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"2C"},
		CustomerRef: "cust-2",
	})
	require.NoError(t, err)

	released, err := service.Cancel(ctx, first.HoldID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReleased, released.State)

	states, _, err := store.Snapshot(ctx, "trip-mem")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatAvailable, states["1A"])
	assert.Equal(t, domain.SeatAvailable, states["1B"])
	assert.Equal(t, domain.SeatHeld, states["2C"], "unrelated hold must survive the cancellation")

	entry, err := store.GetByHoldID(ctx, second.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, entry.State)

	// The freed seats can be claimed again straight away.
	_, err = service.Hold(ctx, HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"1A", "1B"},
		CustomerRef: "cust-3",
	})
	assert.NoError(t, err)
}

func TestEngine_SweeperReclaimsAbandonedHold(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	seedTrip(t, store, 4)
	ctx := context.Background()

	abandoned, err := service.Hold(ctx, HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"1A", "1B"},
		CustomerRef: "cust-1",
		HoldTTL:     20 * time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	expired, err := service.ExpireOverdueHolds(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, abandoned.HoldID, expired[0].HoldID)
	assert.Equal(t, domain.ReservationExpired, expired[0].State)

	// A second sweep finds nothing left to do.
	again, err := service.ExpireOverdueHolds(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	// The reclaimed seats go to the next customer.
	rehold, err := service.Hold(ctx, HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"1A", "1B"},
		CustomerRef: "cust-2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, abandoned.HoldID, rehold.HoldID)
}

func TestEngine_ConfirmedBookingSurvivesSweep(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	seedTrip(t, store, 4)
	ctx := context.Background()

	held, err := service.Hold(ctx, HoldInput{
		TripID:        "trip-mem",
		SeatIDs:       []string{"1A"},
		CustomerRef:   "cust-1",
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	confirmed, err := service.Confirm(ctx, ConfirmInput{
		HoldID: held.HoldID,
		Proof:  payment.Proof{Method: "cash", Reference: "till-42", AmountCents: held.Price.TotalCents},
		Manifest: []domain.Passenger{
			{SeatID: "1A", FullName: "Kabelo Tau", ContactPhone: "+26771000001"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, confirmed.State)
	assert.NotNil(t, confirmed.ConfirmedAt)

	expired, err := service.ExpireOverdueHolds(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired, "confirmed bookings never expire")

	states, _, err := store.Snapshot(ctx, "trip-mem")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatConfirmed, states["1A"])
}

func TestEngine_ConfirmAfterDeadlineReleasesSeats(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	seedTrip(t, store, 4)
	ctx := context.Background()

	held, err := service.Hold(ctx, HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"1A"},
		CustomerRef: "cust-1",
		HoldTTL:     10 * time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = service.Confirm(ctx, ConfirmInput{
		HoldID: held.HoldID,
		Proof:  payment.Proof{Method: "cash", AmountCents: held.Price.TotalCents},
		Manifest: []domain.Passenger{
			{SeatID: "1A", FullName: "Kabelo Tau"},
		},
	})
	assert.ErrorIs(t, err, domain.ErrHoldExpired)

	entry, err := store.GetByHoldID(ctx, held.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, entry.State)

	states, _, err := store.Snapshot(ctx, "trip-mem")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatAvailable, states["1A"])
}

func TestEngine_RepeatedHoldReturnsExistingEntry(t *testing.T) {
	store := newMemStore()
	service := newMemService(store, 10*time.Minute)
	seedTrip(t, store, 4)
	ctx := context.Background()

	input := HoldInput{
		TripID:      "trip-mem",
		SeatIDs:     []string{"1B", "1A"},
		CustomerRef: "cust-1",
	}
	first, err := service.Hold(ctx, input)
	require.NoError(t, err)

	second, err := service.Hold(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.HoldID, second.HoldID, "identical request returns the existing hold")

	store.mu.Lock()
	entries := len(store.ledger)
	store.mu.Unlock()
	assert.Equal(t, 1, entries)
}
