package api

import (
	"net/http"
	"time"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/Boitumelo14/busbooking/internal/service/trips"
	"github.com/gin-gonic/gin"
)

type TripHandler struct {
	service trips.TripUseCase
}

type createTripRequest struct {
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	FareCents     int64     `json:"fare_cents"`
	Capacity      int       `json:"capacity"`
}

type tripResponse struct {
	ID            string   `json:"id"`
	Origin        string   `json:"origin"`
	Destination   string   `json:"destination"`
	DepartureTime string   `json:"departure_time"`
	FareCents     int64    `json:"fare_cents"`
	Capacity      int      `json:"capacity"`
	SeatLabels    []string `json:"seat_labels"`
	Version       int64    `json:"version"`
}

func NewTripHandler(service trips.TripUseCase) *TripHandler {
	return &TripHandler{service: service}
}

func (h *TripHandler) Register(router *gin.RouterGroup) {
	router.GET("/trips", h.list)
	router.POST("/trips", h.create)
	router.GET("/trips/:id", h.get)
	router.GET("/trips/:id/inventory", h.inventory)
}

func (h *TripHandler) list(c *gin.Context) {
	all, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]tripResponse, 0, len(all))
	for i := range all {
		out = append(out, toTripResponse(&all[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *TripHandler) create(c *gin.Context) {
	var req createTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.service.Create(c.Request.Context(), trips.CreateTripInput{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		FareCents:     req.FareCents,
		Capacity:      req.Capacity,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toTripResponse(trip))
}

func (h *TripHandler) get(c *gin.Context) {
	trip, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := statusFromError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

// inventory serves the eventually-consistent seat-state snapshot for the
// seat-map UI. Clients must re-validate at hold time.
func (h *TripHandler) inventory(c *gin.Context) {
	snap, err := h.service.Inventory(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := statusFromError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func toTripResponse(trip *domain.Trip) tripResponse {
	return tripResponse{
		ID:            trip.ID,
		Origin:        trip.Origin,
		Destination:   trip.Destination,
		DepartureTime: trip.DepartureTime.Format(time.RFC3339),
		FareCents:     trip.FareCents,
		Capacity:      trip.Capacity,
		SeatLabels:    trip.SeatLabels,
		Version:       trip.Version,
	}
}
