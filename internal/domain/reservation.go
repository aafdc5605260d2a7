package domain

import "time"

type ReservationState string

const (
	ReservationHeld      ReservationState = "held"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationReleased  ReservationState = "released"
	ReservationExpired   ReservationState = "expired"
)

// Terminal reports whether no further transitions are allowed. Held is the
// only state with outgoing transitions.
func (s ReservationState) Terminal() bool {
	return s != ReservationHeld
}

// PriceQuote is the fare breakdown snapshotted into the ledger at hold time.
// All amounts are in thebe (cents of a pula).
type PriceQuote struct {
	PaymentMethod   string `json:"payment_method"`
	SubtotalCents   int64  `json:"subtotal_cents"`
	ServiceFeeCents int64  `json:"service_fee_cents"`
	SurchargeCents  int64  `json:"surcharge_cents"`
	TotalCents      int64  `json:"total_cents"`
}

type Passenger struct {
	SeatID       string `json:"seat_id"`
	FullName     string `json:"full_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// Reservation is a ledger entry: the durable record of one hold and its
// lifecycle. It transitions exactly once out of held; terminal entries are
// immutable. Manifest is attached only when the entry is confirmed.
type Reservation struct {
	HoldID       string
	TripID       string
	SeatIDs      []string
	CustomerRef  string
	State        ReservationState
	CreatedAt    time.Time
	HoldDeadline time.Time
	ConfirmedAt  *time.Time
	CancelReason string
	Price        PriceQuote
	Manifest     []Passenger
}

func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.HoldDeadline)
}
