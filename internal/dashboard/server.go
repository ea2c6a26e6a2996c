// Package dashboard serves a small read-only JSON and SSE view of the local
// trip cache.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/models"
)

// Source is the read side of the trip cache.
type Source interface {
	CurrentTrip() (*models.Trip, bool, error)
	Messages(chatID int64) ([]cache.StoredMessage, error)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store  Source
	Broker *Broker // optional; /api/events only heartbeats without one
	Port   int
	Out    io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Store, opts.Broker),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with all dashboard routes registered.
func NewRouter(store Source, broker *Broker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, store, broker)
	return router
}
