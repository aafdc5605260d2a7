package api

import (
	"errors"
	"net/http"

	"github.com/Boitumelo14/busbooking/internal/domain"
)

// statusFromError maps engine error kinds onto HTTP statuses. Messages for the
// recoverable seat races are phrased for end users; everything else surfaces
// the error text verbatim.
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSeatUnavailable):
		return http.StatusConflict, "someone just took that seat, please choose another"
	case errors.Is(err, domain.ErrHoldExpired):
		return http.StatusGone, "your reservation timed out, please select seats again"
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrStaleTransition),
		errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrTripDeparted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrHoldNotFound), errors.Is(err, domain.ErrTripNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidSeatSet), errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrManifestMismatch), errors.Is(err, domain.ErrUnknownPaymentMethod):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrPaymentRejected):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrInventoryDiverged):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusBadRequest, err.Error()
	}
}
