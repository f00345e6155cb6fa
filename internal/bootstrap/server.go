package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/api"
	"github.com/MiladFarazian/park-and-sync-sub001/config"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/service/booking"
	"github.com/gin-gonic/gin"
)

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func Run(ctx context.Context, cfg *config.Config, bookingSvc booking.BookingUseCase) error {
	router := NewRouter(bookingSvc)

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

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

// NewRouter assembles the gin engine. Renter and host operations live under
// /bookings; guest operations keyed by access token live under
// /guest/bookings.
func NewRouter(bookingSvc booking.BookingUseCase) *gin.Engine {
	router := gin.Default()

	handler := api.NewBookingHandler(bookingSvc)
	handler.Register(router.Group("/bookings"))
	handler.RegisterGuest(router.Group("/guest/bookings"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
