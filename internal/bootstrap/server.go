package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Boitumelo14/busbooking/api"
	"github.com/Boitumelo14/busbooking/config"
	"github.com/Boitumelo14/busbooking/internal/service/reservation"
	"github.com/Boitumelo14/busbooking/internal/service/trips"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(ctx context.Context, cfg *config.Config, tripSvc trips.TripUseCase, reservationSvc reservation.ReservationUseCase, limiter api.Limiter, logger *zap.Logger) error {
	router := newRouter(cfg, tripSvc, reservationSvc, limiter)

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("http server listening", zap.String("address", cfg.HTTP.Address))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newRouter(cfg *config.Config, tripSvc trips.TripUseCase, reservationSvc reservation.ReservationUseCase, limiter api.Limiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	group := router.Group("/api")
	api.NewTripHandler(tripSvc).Register(group)
	api.NewReservationHandler(
		reservationSvc,
		limiter,
		cfg.RateLimit.MaxAttempts,
		time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute,
	).Register(group)

	if cfg.HTTP.SwaggerDoc != "" {
		router.StaticFile("/swagger/doc.json", cfg.HTTP.SwaggerDoc)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))))
	}

	return router
}
