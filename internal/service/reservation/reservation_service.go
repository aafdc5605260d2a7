package reservation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/Boitumelo14/busbooking/internal/kafka"
	"github.com/Boitumelo14/busbooking/internal/payment"
	"github.com/Boitumelo14/busbooking/internal/pricing"
	"github.com/Boitumelo14/busbooking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReservationUseCase is the engine's public surface. Holds are best effort:
// when two holds race for overlapping seats, whichever commits its atomic
// transition first wins; there is no FIFO or priority ordering across callers.
type ReservationUseCase interface {
	Hold(ctx context.Context, input HoldInput) (*domain.Reservation, error)
	Confirm(ctx context.Context, input ConfirmInput) (*domain.Reservation, error)
	Cancel(ctx context.Context, holdID, reason string) (*domain.Reservation, error)
	ExpireOverdueHolds(ctx context.Context) ([]domain.Reservation, error)
}

type Cache interface {
	GetHoldKey(ctx context.Context, key string) (string, error)
	PutHoldKey(ctx context.Context, key, holdID string, window time.Duration) (bool, error)
	DropHoldKey(ctx context.Context, key string) error
	InvalidateSnapshot(ctx context.Context, tripID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type HoldInput struct {
	TripID        string        `json:"trip_id"`
	SeatIDs       []string      `json:"seat_ids"`
	CustomerRef   string        `json:"customer_ref"`
	PaymentMethod string        `json:"payment_method"`
	HoldTTL       time.Duration `json:"-"`
}

type ConfirmInput struct {
	HoldID   string
	Proof    payment.Proof
	Manifest []domain.Passenger
}

type Service struct {
	reservations repository.ReservationRepository
	inventory    repository.InventoryRepository
	cache        Cache
	producer     Producer
	verifier     payment.Verifier
	pricer       *pricing.Calculator
	logger       *zap.Logger

	reservationTopic   string
	notificationsTopic string
	alertsTopic        string

	holdTTL       time.Duration
	maxPerBooking int
	idemWindow    time.Duration
	verifyTimeout time.Duration
	maxRetries    int
	sweepBatch    int

	// trips where the ledger and the inventory were observed to disagree;
	// all further processing for them is refused until an operator intervenes.
	halted sync.Map
}

type ServiceOption func(*Service)

func WithNotificationsTopic(topic string) ServiceOption {
	return func(s *Service) { s.notificationsTopic = topic }
}

func WithAlertsTopic(topic string) ServiceOption {
	return func(s *Service) { s.alertsTopic = topic }
}

func WithMaxSeatsPerBooking(n int) ServiceOption {
	return func(s *Service) { s.maxPerBooking = n }
}

func WithIdempotencyWindow(d time.Duration) ServiceOption {
	return func(s *Service) { s.idemWindow = d }
}

func WithVerifyTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.verifyTimeout = d }
}

func WithConflictRetries(n int) ServiceOption {
	return func(s *Service) { s.maxRetries = n }
}

func WithSweepBatchSize(n int) ServiceOption {
	return func(s *Service) { s.sweepBatch = n }
}

func NewService(
	reservations repository.ReservationRepository,
	inventory repository.InventoryRepository,
	cache Cache,
	producer Producer,
	verifier payment.Verifier,
	pricer *pricing.Calculator,
	logger *zap.Logger,
	reservationTopic string,
	holdTTL time.Duration,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		reservations:     reservations,
		inventory:        inventory,
		cache:            cache,
		producer:         producer,
		verifier:         verifier,
		pricer:           pricer,
		logger:           logger,
		reservationTopic: reservationTopic,
		holdTTL:          holdTTL,
		maxPerBooking:    10,
		idemWindow:       2 * time.Minute,
		verifyTimeout:    10 * time.Second,
		maxRetries:       3,
		sweepBatch:       100,
	}
	if service.holdTTL == 0 {
		service.holdTTL = 10 * time.Minute
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Hold places a time-limited claim on the requested seats. Identical requests
// from the same customer inside the idempotency window return the existing
// hold instead of creating a duplicate. Version conflicts are retried a few
// times with jitter before surfacing.
func (s *Service) Hold(ctx context.Context, input HoldInput) (*domain.Reservation, error) {
	if err := s.tripUsable(input.TripID); err != nil {
		return nil, err
	}
	if input.CustomerRef == "" {
		return nil, errors.New("customer ref is required")
	}

	seats, err := normalizeSeatSet(input.SeatIDs)
	if err != nil {
		return nil, err
	}
	if len(seats) > s.maxPerBooking {
		return nil, fmt.Errorf("%w: %d seats, limit %d", domain.ErrCapacityExceeded, len(seats), s.maxPerBooking)
	}

	trip, err := s.inventory.GetTrip(ctx, input.TripID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if trip.Departed(now) {
		return nil, domain.ErrTripDeparted
	}
	for _, seat := range seats {
		if !trip.HasSeat(seat) {
			return nil, fmt.Errorf("%w: seat %s not in trip %s", domain.ErrInvalidSeatSet, seat, trip.ID)
		}
	}

	if existing, err := s.findExistingHold(ctx, input.CustomerRef, trip.ID, seats); err == nil && existing != nil {
		return existing, nil
	}

	method := input.PaymentMethod
	if method == "" {
		method = "cash"
	}
	quote, err := s.pricer.Price(trip.FareCents, len(seats), method)
	if err != nil {
		return nil, err
	}

	ttl := input.HoldTTL
	if ttl == 0 {
		ttl = s.holdTTL
	}

	res := &domain.Reservation{
		HoldID:       uuid.NewString(),
		TripID:       trip.ID,
		SeatIDs:      seats,
		CustomerRef:  input.CustomerRef,
		State:        domain.ReservationHeld,
		CreatedAt:    now,
		HoldDeadline: now.Add(ttl),
		Price:        quote,
	}

	if err := s.retryConflict(ctx, func() error { return s.reservations.HoldSeats(ctx, res) }); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if _, err := s.cache.PutHoldKey(ctx, holdIdemKey(input.CustomerRef, trip.ID, seats), res.HoldID, s.idemWindow); err != nil {
			s.logger.Warn("failed to register idempotency key", zap.Error(err))
		}
		_ = s.cache.InvalidateSnapshot(ctx, trip.ID)
	}

	s.publish(ctx, "hold_created", res, "")
	return res, nil
}

// Confirm commits a hold into a paid booking. It fails closed: a hold past its
// deadline is expired before returning, no matter how valid the payment proof
// is. Payment verification happens outside any lock; when it fails the hold
// stays intact until the TTL clock runs out.
func (s *Service) Confirm(ctx context.Context, input ConfirmInput) (*domain.Reservation, error) {
	res, err := s.reservations.GetByHoldID(ctx, input.HoldID)
	if err != nil {
		return nil, err
	}
	if err := s.tripUsable(res.TripID); err != nil {
		return nil, err
	}

	switch res.State {
	case domain.ReservationHeld:
	case domain.ReservationExpired:
		return nil, domain.ErrHoldExpired
	default:
		return nil, domain.ErrAlreadyTerminal
	}

	if res.Expired(time.Now()) {
		return nil, s.expireNow(ctx, res)
	}

	if err := validateManifest(res.SeatIDs, input.Manifest); err != nil {
		return nil, err
	}

	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	result, err := s.verifier.Verify(vctx, input.Proof)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if !result.Accepted || result.AmountCents != res.Price.TotalCents {
		return nil, fmt.Errorf("%w: reference %s", domain.ErrPaymentRejected, input.Proof.Reference)
	}

	// Verification may have been slow; re-check the deadline before committing.
	if res.Expired(time.Now()) {
		return nil, s.expireNow(ctx, res)
	}

	var confirmed *domain.Reservation
	err = s.retryConflict(ctx, func() error {
		var cerr error
		confirmed, cerr = s.reservations.ConfirmHold(ctx, res.HoldID, input.Manifest, time.Now())
		return cerr
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			// The sweeper or another caller beat us to a terminal state.
			return nil, s.terminalError(ctx, res.HoldID)
		}
		if errors.Is(err, domain.ErrInventoryDiverged) {
			s.haltTrip(ctx, res, err)
			return nil, err
		}
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.InvalidateSnapshot(ctx, confirmed.TripID)
	}
	s.publish(ctx, "booking_confirmed", confirmed, "")
	return confirmed, nil
}

// Cancel releases a held or confirmed reservation. Confirmed bookings are
// additionally marked for the external refund workflow. Terminal entries
// return ErrAlreadyTerminal and change nothing.
func (s *Service) Cancel(ctx context.Context, holdID, reason string) (*domain.Reservation, error) {
	res, err := s.reservations.GetByHoldID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if err := s.tripUsable(res.TripID); err != nil {
		return nil, err
	}

	var from domain.ReservationState
	switch res.State {
	case domain.ReservationHeld:
		from = domain.ReservationHeld
	case domain.ReservationConfirmed:
		from = domain.ReservationConfirmed
	default:
		return nil, domain.ErrAlreadyTerminal
	}

	released, err := s.releaseWithRetry(ctx, holdID, from, domain.ReservationReleased, reason)
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil, domain.ErrAlreadyTerminal
		}
		if errors.Is(err, domain.ErrInventoryDiverged) {
			s.haltTrip(ctx, res, err)
		}
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.InvalidateSnapshot(ctx, released.TripID)
	}
	s.dropIdemKey(ctx, released)
	if from == domain.ReservationConfirmed {
		s.publish(ctx, "booking_cancelled", released, reason)
		s.publish(ctx, "refund_requested", released, reason)
	} else {
		s.publish(ctx, "hold_released", released, reason)
	}
	return released, nil
}

// ExpireOverdueHolds reclaims seats from holds past their deadline. Safe to
// run from several instances at once: losing the guarded ledger transition is
// a no-op, not an error.
func (s *Service) ExpireOverdueHolds(ctx context.Context) ([]domain.Reservation, error) {
	overdue, err := s.reservations.ListExpired(ctx, time.Now(), s.sweepBatch)
	if err != nil {
		return nil, err
	}

	var expired []domain.Reservation
	for _, res := range overdue {
		if s.isHalted(res.TripID) {
			continue
		}
		released, err := s.releaseWithRetry(ctx, res.HoldID, domain.ReservationHeld, domain.ReservationExpired, "hold deadline passed")
		if err != nil {
			if errors.Is(err, domain.ErrStaleTransition) {
				continue
			}
			if errors.Is(err, domain.ErrInventoryDiverged) {
				s.haltTrip(ctx, &res, err)
				continue
			}
			s.logger.Error("failed to expire hold", zap.String("hold_id", res.HoldID), zap.Error(err))
			continue
		}
		if s.cache != nil {
			_ = s.cache.InvalidateSnapshot(ctx, released.TripID)
		}
		s.dropIdemKey(ctx, released)
		s.publish(ctx, "hold_expired", released, "hold deadline passed")
		expired = append(expired, *released)
	}
	return expired, nil
}

// retryConflict runs op, retrying a small bounded number of times with jitter
// when the inventory CAS loses to a concurrent writer on the same trip row.
// The guarded ledger transition makes every op passed here safe to repeat.
func (s *Service) retryConflict(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = op()
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(rand.Intn(40)+10) * time.Millisecond):
		}
	}
	return err
}

func (s *Service) releaseWithRetry(ctx context.Context, holdID string, from, to domain.ReservationState, reason string) (*domain.Reservation, error) {
	var released *domain.Reservation
	err := s.retryConflict(ctx, func() error {
		var rerr error
		released, rerr = s.reservations.ReleaseHold(ctx, holdID, from, to, reason)
		return rerr
	})
	return released, err
}

func (s *Service) findExistingHold(ctx context.Context, customerRef, tripID string, seats []string) (*domain.Reservation, error) {
	if s.cache != nil {
		holdID, err := s.cache.GetHoldKey(ctx, holdIdemKey(customerRef, tripID, seats))
		if err == nil && holdID != "" {
			existing, err := s.reservations.GetByHoldID(ctx, holdID)
			if err == nil && existing.State == domain.ReservationHeld && !existing.Expired(time.Now()) {
				return existing, nil
			}
		}
	}
	return s.reservations.FindActiveHold(ctx, customerRef, tripID, seats)
}

func (s *Service) expireNow(ctx context.Context, res *domain.Reservation) error {
	released, err := s.releaseWithRetry(ctx, res.HoldID, domain.ReservationHeld, domain.ReservationExpired, "hold deadline passed")
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			// Sweeper already expired it; either way the hold is gone.
			return domain.ErrHoldExpired
		}
		if errors.Is(err, domain.ErrInventoryDiverged) {
			s.haltTrip(ctx, res, err)
			return err
		}
		return err
	}
	if s.cache != nil {
		_ = s.cache.InvalidateSnapshot(ctx, released.TripID)
	}
	s.dropIdemKey(ctx, released)
	s.publish(ctx, "hold_expired", released, "hold deadline passed")
	return domain.ErrHoldExpired
}

// dropIdemKey frees the idempotency slot once a hold leaves the held state,
// so an identical follow-up request creates a fresh hold.
func (s *Service) dropIdemKey(ctx context.Context, res *domain.Reservation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DropHoldKey(ctx, holdIdemKey(res.CustomerRef, res.TripID, res.SeatIDs)); err != nil {
		s.logger.Warn("failed to drop idempotency key", zap.String("hold_id", res.HoldID), zap.Error(err))
	}
}

// terminalError re-reads the entry after a lost transition to report the
// right condition: expired holds get ErrHoldExpired, everything else
// ErrAlreadyTerminal. A hold still marked held but past its deadline lost the
// confirm to the deadline guard, not to another caller, so it reads as
// expired too.
func (s *Service) terminalError(ctx context.Context, holdID string) error {
	current, err := s.reservations.GetByHoldID(ctx, holdID)
	if err != nil {
		return err
	}
	if current.State == domain.ReservationExpired {
		return domain.ErrHoldExpired
	}
	if current.State == domain.ReservationHeld && current.Expired(time.Now()) {
		return domain.ErrHoldExpired
	}
	return domain.ErrAlreadyTerminal
}

func (s *Service) tripUsable(tripID string) error {
	if s.isHalted(tripID) {
		return fmt.Errorf("%w: trip %s is halted", domain.ErrInventoryDiverged, tripID)
	}
	return nil
}

func (s *Service) isHalted(tripID string) bool {
	_, halted := s.halted.Load(tripID)
	return halted
}

// haltTrip stops all processing for a trip after a divergence between the
// ledger and the inventory and raises an operator alert. There is no
// automatic repair.
func (s *Service) haltTrip(ctx context.Context, res *domain.Reservation, cause error) {
	s.halted.Store(res.TripID, struct{}{})
	s.logger.Error("inventory and ledger diverged, halting trip",
		zap.String("trip_id", res.TripID),
		zap.String("hold_id", res.HoldID),
		zap.Error(cause),
	)
	if s.producer != nil && s.alertsTopic != "" {
		event := kafka.ReservationEvent{
			Type:        "trip_halted",
			HoldID:      res.HoldID,
			TripID:      res.TripID,
			SeatIDs:     res.SeatIDs,
			CustomerRef: res.CustomerRef,
			Reason:      cause.Error(),
		}
		if err := s.producer.Publish(ctx, s.alertsTopic, res.TripID, event); err != nil {
			s.logger.Error("failed to publish operator alert", zap.Error(err))
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType string, res *domain.Reservation, reason string) {
	if s.producer == nil || s.reservationTopic == "" {
		return
	}
	event := kafka.ReservationEvent{
		Type:         eventType,
		HoldID:       res.HoldID,
		TripID:       res.TripID,
		SeatIDs:      res.SeatIDs,
		CustomerRef:  res.CustomerRef,
		State:        string(res.State),
		TotalCents:   res.Price.TotalCents,
		HoldDeadline: res.HoldDeadline,
		Reason:       reason,
	}
	if err := s.producer.Publish(ctx, s.reservationTopic, res.HoldID, event); err != nil {
		s.logger.Warn("failed to publish reservation event", zap.String("type", eventType), zap.Error(err))
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, res.HoldID, event); err != nil {
			s.logger.Warn("failed to publish notification event", zap.String("type", eventType), zap.Error(err))
		}
	}
}

// normalizeSeatSet sorts the requested seats into deterministic order and
// rejects empty or duplicated selections.
func normalizeSeatSet(seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: no seats requested", domain.ErrInvalidSeatSet)
	}
	seats := make([]string, len(seatIDs))
	copy(seats, seatIDs)
	sort.Strings(seats)
	for i := 1; i < len(seats); i++ {
		if seats[i] == seats[i-1] {
			return nil, fmt.Errorf("%w: duplicate seat %s", domain.ErrInvalidSeatSet, seats[i])
		}
	}
	return seats, nil
}

func validateManifest(seatIDs []string, manifest []domain.Passenger) error {
	if len(manifest) != len(seatIDs) {
		return fmt.Errorf("%w: %d passengers for %d seats", domain.ErrManifestMismatch, len(manifest), len(seatIDs))
	}
	held := make(map[string]bool, len(seatIDs))
	for _, seat := range seatIDs {
		held[seat] = true
	}
	seen := make(map[string]bool, len(manifest))
	for _, p := range manifest {
		if p.FullName == "" {
			return fmt.Errorf("%w: passenger for seat %s has no name", domain.ErrManifestMismatch, p.SeatID)
		}
		if !held[p.SeatID] {
			return fmt.Errorf("%w: seat %s is not part of the hold", domain.ErrManifestMismatch, p.SeatID)
		}
		if seen[p.SeatID] {
			return fmt.Errorf("%w: seat %s listed twice", domain.ErrManifestMismatch, p.SeatID)
		}
		seen[p.SeatID] = true
	}
	return nil
}

func holdIdemKey(customerRef, tripID string, seats []string) string {
	return customerRef + "|" + tripID + "|" + strings.Join(seats, ",")
}

var _ ReservationUseCase = (*Service)(nil)
