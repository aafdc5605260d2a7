package domain

import "time"

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"
	SeatConfirmed SeatState = "confirmed"
)

// Trip is the per-scheduled-trip inventory row: the unit of concurrency
// control. SeatStates is mutated only through the reservation engine's atomic
// primitives; Version is the optimistic-concurrency token, incremented on
// every successful transition.
type Trip struct {
	ID            string
	Origin        string
	Destination   string
	DepartureTime time.Time
	FareCents     int64
	Capacity      int
	SeatLabels    []string
	SeatStates    map[string]SeatState
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *Trip) HasSeat(seatID string) bool {
	_, ok := t.SeatStates[seatID]
	return ok
}

func (t *Trip) CountByState(state SeatState) int {
	n := 0
	for _, s := range t.SeatStates {
		if s == state {
			n++
		}
	}
	return n
}

// Departed reports whether the trip's inventory is retired (read-only).
func (t *Trip) Departed(now time.Time) bool {
	return now.After(t.DepartureTime)
}
