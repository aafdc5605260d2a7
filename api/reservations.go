package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/Boitumelo14/busbooking/internal/payment"
	"github.com/Boitumelo14/busbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

// Limiter bounds hold attempts per customer inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, subject string, maxAttempts int, window time.Duration) (bool, error)
}

type ReservationHandler struct {
	service     reservation.ReservationUseCase
	limiter     Limiter
	maxAttempts int
	window      time.Duration
}

type holdRequest struct {
	TripID         string   `json:"trip_id"`
	SeatIDs        []string `json:"seat_ids"`
	CustomerRef    string   `json:"customer_ref"`
	PaymentMethod  string   `json:"payment_method"`
	HoldTTLSeconds int      `json:"hold_ttl_seconds"`
}

type confirmRequest struct {
	Proof      payment.Proof      `json:"payment_proof"`
	Passengers []domain.Passenger `json:"passengers"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type priceResponse struct {
	PaymentMethod   string `json:"payment_method"`
	SubtotalCents   int64  `json:"subtotal_cents"`
	ServiceFeeCents int64  `json:"service_fee_cents"`
	SurchargeCents  int64  `json:"surcharge_cents"`
	TotalCents      int64  `json:"total_cents"`
}

type reservationResponse struct {
	HoldID       string             `json:"hold_id"`
	TripID       string             `json:"trip_id"`
	SeatIDs      []string           `json:"seat_ids"`
	CustomerRef  string             `json:"customer_ref"`
	State        string             `json:"state"`
	HoldDeadline string             `json:"hold_deadline"`
	ConfirmedAt  string             `json:"confirmed_at,omitempty"`
	Price        priceResponse      `json:"price"`
	Passengers   []domain.Passenger `json:"passengers,omitempty"`
}

func NewReservationHandler(service reservation.ReservationUseCase, limiter Limiter, maxAttempts int, window time.Duration) *ReservationHandler {
	return &ReservationHandler{service: service, limiter: limiter, maxAttempts: maxAttempts, window: window}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("/holds", h.hold)
	router.POST("/holds/:id/confirm", h.confirm)
	router.POST("/reservations/:id/cancel", h.cancel)
}

func (h *ReservationHandler) hold(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.limiter != nil && req.CustomerRef != "" {
		ok, err := h.limiter.Allow(c.Request.Context(), req.CustomerRef, h.maxAttempts, h.window)
		if err == nil && !ok {
			status, msg := statusFromError(domain.ErrRateLimited)
			c.JSON(status, gin.H{"error": msg})
			return
		}
	}

	res, err := h.service.Hold(c.Request.Context(), reservation.HoldInput{
		TripID:        req.TripID,
		SeatIDs:       req.SeatIDs,
		CustomerRef:   req.CustomerRef,
		PaymentMethod: req.PaymentMethod,
		HoldTTL:       time.Duration(req.HoldTTLSeconds) * time.Second,
	})
	if err != nil {
		status, msg := statusFromError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *ReservationHandler) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.Confirm(c.Request.Context(), reservation.ConfirmInput{
		HoldID:   c.Param("id"),
		Proof:    req.Proof,
		Manifest: req.Passengers,
	})
	if err != nil {
		status, msg := statusFromError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		status, msg := statusFromError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, toReservationResponse(res))
}

func toReservationResponse(res *domain.Reservation) reservationResponse {
	out := reservationResponse{
		HoldID:       res.HoldID,
		TripID:       res.TripID,
		SeatIDs:      res.SeatIDs,
		CustomerRef:  res.CustomerRef,
		State:        string(res.State),
		HoldDeadline: res.HoldDeadline.Format(time.RFC3339),
		Price: priceResponse{
			PaymentMethod:   res.Price.PaymentMethod,
			SubtotalCents:   res.Price.SubtotalCents,
			ServiceFeeCents: res.Price.ServiceFeeCents,
			SurchargeCents:  res.Price.SurchargeCents,
			TotalCents:      res.Price.TotalCents,
		},
		Passengers: res.Manifest,
	}
	if res.ConfirmedAt != nil {
		out.ConfirmedAt = res.ConfirmedAt.Format(time.RFC3339)
	}
	return out
}
