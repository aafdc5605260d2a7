package domain

import "errors"

// Error values surfaced by the reservation engine. Callers match with errors.Is.
var (
	// ErrSeatUnavailable means another hold or booking already owns at least
	// one requested seat. Recoverable: re-query inventory and pick other seats.
	ErrSeatUnavailable = errors.New("seat unavailable")

	// ErrVersionConflict is an optimistic-concurrency collision on the trip
	// inventory row. The engine retries these internally before surfacing.
	ErrVersionConflict = errors.New("inventory version conflict")

	// ErrStaleTransition means the ledger entry was not in the expected state,
	// e.g. a double confirm or a sweeper racing a release.
	ErrStaleTransition = errors.New("stale ledger transition")

	ErrHoldExpired      = errors.New("hold expired")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrTripNotFound     = errors.New("trip not found")
	ErrTripDeparted     = errors.New("trip already departed")
	ErrInvalidSeatSet   = errors.New("invalid seat set")
	ErrCapacityExceeded = errors.New("too many seats requested")
	ErrManifestMismatch = errors.New("passenger manifest does not match held seats")
	ErrPaymentRejected  = errors.New("payment rejected")
	ErrAlreadyTerminal  = errors.New("reservation already in a terminal state")

	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrRateLimited          = errors.New("too many attempts, try again later")

	// ErrInventoryDiverged means the ledger and the inventory disagree about a
	// seat. Processing for the trip is halted; an operator has to intervene.
	ErrInventoryDiverged = errors.New("inventory and ledger diverged")
)
